package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/himplant/crmsync/internal/version"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			info := version.GetInfo()
			if rootOpts.Format == "json" {
				return json.NewEncoder(out).Encode(map[string]string{
					"version":    version.Version,
					"commit":     version.CommitHash,
					"build_time": version.BuildTime,
				})
			}
			fmt.Fprintf(out, "crmsync %s\n", info)
			return nil
		},
	}
}
