package main

import (
	"fmt"

	"github.com/getpup/fanout-orchestrator/pkg/version"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "fanout %s (%s)\n", version.Version, version.Commit)
			return err
		},
	}
}
