package main

import (
	"fmt"

	"github.com/getpup/fanout-orchestrator/store/sqlstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newMigrateCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the state table of a SQL state backend",
		Long: `Migrate creates the state table for the postgres, mysql and sqlite
backends. Pass --print to write the SQL to stdout instead of applying it.`,
		Args: cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, _ []string) {
			bindStateFlags(v, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			backend := v.GetString(stateBackendConf)

			dialect, err := sqlstore.ParseDialect(backend)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "state backend %s needs no migration\n", backend)
				return nil
			}

			if printOnly, _ := cmd.Flags().GetBool("print"); printOnly {
				fmt.Fprint(cmd.OutOrStdout(), sqlstore.MigrationUp(dialect, tableConfig(v)))
				return nil
			}

			log, err := newLogger(v)
			if err != nil {
				return err
			}

			v.Set(stateMigrateConf, true)
			_, closeStore, err := openStateStore(ctx, v, log)
			if err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			defer func() {
				_ = closeStore()
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "table %s is ready\n", tableConfig(v).StateTable)
			return nil
		},
	}

	defineStateFlags(cmd.Flags())
	cmd.Flags().Bool("print", false, "print the migration SQL without applying it")

	return cmd
}
