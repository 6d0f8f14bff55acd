package main

import (
	"fmt"
	"strings"

	"github.com/getpup/fanout-orchestrator/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCommand returns the "fanout" root command with its subcommands.
// Every command reads its configuration from v, which layers flags over
// FANOUT_* environment variables over an optional config file.
func newRootCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fanout",
		Short:         "Split a collection across parallel worker runs and merge their results",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(v, v.GetString("config"))
		},
	}

	v.SetEnvPrefix("FANOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	flags := cmd.PersistentFlags()
	flags.String("config", "", "path to a YAML, JSON or TOML config file")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("log-level", "info", "log level: none, debug, info, warn or error")

	mustBindPFlag(v, "config", flags.Lookup("config"))
	mustBindPFlag(v, logFormatConf, flags.Lookup("log-format"))
	mustBindPFlag(v, logLevelConf, flags.Lookup("log-level"))

	cmd.AddCommand(newRunCommand(v))
	cmd.AddCommand(newReportCommand(v))
	cmd.AddCommand(newMigrateCommand(v))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// loadConfig merges the config file at path into v. An empty path is a no-op.
func loadConfig(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

func newLogger(v *viper.Viper) (*logger.ZapLogger, error) {
	log, err := logger.New(v.GetString(logFormatConf), v.GetString(logLevelConf))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}
