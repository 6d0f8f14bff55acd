package main

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Configuration keys. Nested keys map to sections of the config file and to
// FANOUT_* environment variables with dots replaced by underscores.
const (
	logFormatConf = "log.format"
	logLevelConf  = "log.level"

	platformURLConf   = "platform.url"
	platformTokenConf = "platform.token"

	stateBackendConf = "state.backend"
	stateDSNConf     = "state.dsn"
	statePathConf    = "state.path"
	stateTableConf   = "state.table"
	stateMigrateConf = "state.migrate"

	keyPrefixConf       = "keyPrefix"
	defaultOutputConf   = "defaultOutputCollectionId"
	pollIntervalConf    = "pollInterval"
	launchPacingConf    = "launchPacing"
	maxLaunchPacingConf = "maxLaunchPacing"
	sweepTimeoutConf    = "sweepTimeout"

	metricsEnabledConf = "metrics.enabled"
	metricsAddrConf    = "metrics.addr"

	jobInputConf         = "job.inputCollectionId"
	jobOutputConf        = "job.outputCollectionId"
	jobActorConf         = "job.workerTargetActorId"
	jobTaskConf          = "job.workerTargetTaskId"
	jobPayloadConf       = "job.workerPayload"
	jobOptionsConf       = "job.workerOptions"
	jobWorkersConf       = "job.workerCount"
	jobParentRunIDConf   = "job.parentRunId"
	jobAbortOthersConf   = "job.abortOthersOnFailure"
	jobFireAndForgetConf = "job.fireAndForget"
	jobAnonymizeConf     = "job.anonymize"
	jobPartialConf       = "job.countPartialOutput"
	jobWorkerTimeoutConf = "job.workerTimeout"
)

// mustBindPFlag binds a viper key to a flag and panics on failure.
func mustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %q is not defined", key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func defineStateFlags(flags *pflag.FlagSet) {
	flags.String("state-backend", "badger", "state store backend: memory, badger, postgres, mysql or sqlite")
	flags.String("state-dsn", "", "data source name for the postgres, mysql and sqlite backends")
	flags.String("state-path", ".fanout", "directory of the badger backend")
	flags.String("state-table", "", "state table name for SQL backends (default \"fanout_state\")")
	flags.Bool("state-migrate", true, "create the state table on startup for SQL backends")
	flags.String("key-prefix", "fanout", "namespace of the job's state; reuse it to resume a crashed job")
}

// bindStateFlags binds the state flags of one command. Subcommands share keys,
// so binding happens in PreRun for the command actually executed.
func bindStateFlags(v *viper.Viper, flags *pflag.FlagSet) {
	mustBindPFlag(v, stateBackendConf, flags.Lookup("state-backend"))
	mustBindPFlag(v, stateDSNConf, flags.Lookup("state-dsn"))
	mustBindPFlag(v, statePathConf, flags.Lookup("state-path"))
	mustBindPFlag(v, stateTableConf, flags.Lookup("state-table"))
	mustBindPFlag(v, stateMigrateConf, flags.Lookup("state-migrate"))
	mustBindPFlag(v, keyPrefixConf, flags.Lookup("key-prefix"))
}
