package main

import (
	"errors"
	"fmt"

	"github.com/getpup/fanout-orchestrator/ledger"
	"github.com/getpup/fanout-orchestrator/pkg/orchestrator"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newReportCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the persisted report of a finished job",
		Args:  cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, _ []string) {
			bindStateFlags(v, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			log, err := newLogger(v)
			if err != nil {
				return err
			}

			st, closeStore, err := openStateStore(ctx, v, log)
			if err != nil {
				return fmt.Errorf("failed to open state store: %w", err)
			}
			defer func() {
				_ = closeStore()
			}()

			prefix := v.GetString(keyPrefixConf)
			report, err := orchestrator.LoadReport(ctx, st, prefix)
			if errors.Is(err, ledger.ErrReportNotFound) {
				return fmt.Errorf("job %q has not finished: %w", prefix, err)
			}
			if err != nil {
				return err
			}

			return printReport(cmd.OutOrStdout(), report)
		},
	}

	defineStateFlags(cmd.Flags())

	return cmd
}
