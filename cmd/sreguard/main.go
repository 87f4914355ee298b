package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonwraymond/sreguard/internal/cmd"
)

// Version information set via ldflags during build
// Example: go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-01-02"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	err := cmd.Execute(context.Background(), cmd.VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sreguard: %v\n", err)
		os.Exit(1)
	}
}
