package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd(opts *rootOptions) *cobra.Command {
	var extended bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version information. Use --extended for commit, build date and Go version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			v := opts.version

			_, _ = fmt.Fprintf(out, "sreguard %s\n", v.Version)
			if extended {
				_, _ = fmt.Fprintf(out, "Commit: %s\n", v.Commit)
				_, _ = fmt.Fprintf(out, "Built: %s\n", v.BuildDate)
				_, _ = fmt.Fprintf(out, "Go: %s\n", runtime.Version())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
	return cmd
}
