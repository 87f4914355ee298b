// Package cmd implements the sreguard command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/sreguard/config"
)

// VersionInfo describes the running binary. It is set from ldflags by main.
type VersionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	cfgFile string
	version VersionInfo
}

// loadConfig loads the configuration named by --config.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.cfgFile)
}

// NewRootCommand builds the sreguard command tree.
func NewRootCommand(version VersionInfo) *cobra.Command {
	opts := &rootOptions{version: version}

	root := &cobra.Command{
		Use:   "sreguard",
		Short: "Rate limiting, circuit breaking, metrics and health checks for an HTTP service",
		Long: `sreguard serves an HTTP service guarded by a per-client rate limiter and a
circuit breaker, and exposes Prometheus metrics and health probes.

Use the subcommands to perform specific operations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML; optional)")

	root.AddCommand(
		newServeCmd(opts),
		newHealthCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context, version VersionInfo) error {
	return NewRootCommand(version).ExecuteContext(ctx)
}
