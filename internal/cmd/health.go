package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/sreguard/health"
)

// ErrUnhealthy is returned by the health command when the service reports
// an unhealthy status.
var ErrUnhealthy = errors.New("service is unhealthy")

func newHealthCmd(opts *rootOptions) *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running server's health endpoint",
		Long: `Query GET <url>/health on a running server and print each check as a table.

Exits non-zero when the service reports unhealthy. Without --url the server
address comes from the loaded configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				url = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := fetchHealth(ctx, http.DefaultClient, url)
			if err != nil {
				return err
			}

			if err := renderHealthTable(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if resp.Status == health.StatusUnhealthy.String() {
				return ErrUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "base URL of the server (default http://localhost:<server.port>)")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "request timeout")
	return cmd
}

// fetchHealth performs GET <baseURL>/health. Both 200 and 503 carry a report.
func fetchHealth(ctx context.Context, client *http.Client, baseURL string) (*health.HealthResponse, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("GET %s: unexpected status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out health.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &out, nil
}

func renderHealthTable(w io.Writer, resp *health.HealthResponse) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(fmt.Sprintf("Overall: %s (%s)", resp.Status, resp.Timestamp))

	names := make([]string, 0, len(resp.Checks))
	for name := range resp.Checks {
		names = append(names, name)
	}
	slices.Sort(names)

	t.AppendHeader(table.Row{"Check", "Status", "Details"})
	for _, name := range names {
		check := resp.Checks[name]
		t.AppendRow(table.Row{name, check["status"], formatCheckDetails(check)})
	}

	t.Render()
	return nil
}

// formatCheckDetails renders every field but status as sorted key=value pairs.
func formatCheckDetails(check map[string]any) string {
	keys := make([]string, 0, len(check))
	for k := range check {
		if k != "status" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, check[k]))
	}
	return strings.Join(parts, " ")
}
