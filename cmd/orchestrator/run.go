package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	rootpkg "github.com/getpup/fanout-orchestrator"
	"github.com/getpup/fanout-orchestrator/metrics"
	"github.com/getpup/fanout-orchestrator/pkg/orchestrator"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func newRunCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a fan-out job and print its report",
		Long: `Run partitions the input collection across worker runs, waits for them
and prints the merged report as JSON.

Running again with the same --key-prefix resumes a crashed job: workers
already launched are not launched again.`,
		Args: cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, _ []string) {
			bindRunFlags(v, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd.Context(), v, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()

	flags.String("input", "", "id of the collection to partition")
	flags.String("output", "", "id of one collection all workers write to")
	flags.String("actor", "", "actor launched for every worker")
	flags.String("task", "", "task launched for every worker")
	flags.String("payload", "", "JSON object merged into every worker's input")
	flags.String("options", "", "JSON object of launch options passed to every run")
	flags.Int("workers", rootpkg.DefaultWorkerCount, "number of workers to launch")
	flags.String("parent-run-id", "", "correlation id forwarded to every worker")
	flags.Bool("abort-others", true, "cancel still running workers on the first failure; unset means true unless --fire-and-forget")
	flags.Bool("fire-and-forget", false, "launch workers and exit without waiting for them")
	flags.Bool("anonymize", false, "strip run handles and per-worker collections from the report")
	flags.Bool("count-partial-output", false, "count output of failed workers in a failed job's report")
	flags.Duration("worker-timeout", 0, "cancel runs still unfinished this long after launch (0 waits forever)")

	flags.String("platform-url", "", "base URL of the execution platform API")
	flags.String("platform-token", "", "API token of the execution platform")

	defineStateFlags(flags)
	flags.String("default-output", "", "output collection used when --output is not set (default \"<key-prefix>-output\")")
	flags.Duration("poll-interval", 10*time.Second, "delay between two status queries of one run")
	flags.Duration("launch-pacing", 100*time.Millisecond, "per-worker delay between two launches")
	flags.Duration("max-launch-pacing", 5*time.Second, "upper bound of the delay between two launches")
	flags.Duration("sweep-timeout", 30*time.Second, "time allowed to cancel remaining runs after a failure")

	flags.Bool("metrics-enabled", true, "collect Prometheus metrics")
	flags.String("metrics-addr", "", "serve /metrics and /healthz on this address, e.g. :9090")

	return cmd
}

func bindRunFlags(v *viper.Viper, flags *pflag.FlagSet) {
	mustBindPFlag(v, jobInputConf, flags.Lookup("input"))
	mustBindPFlag(v, jobOutputConf, flags.Lookup("output"))
	mustBindPFlag(v, jobActorConf, flags.Lookup("actor"))
	mustBindPFlag(v, jobTaskConf, flags.Lookup("task"))
	mustBindPFlag(v, jobPayloadConf, flags.Lookup("payload"))
	mustBindPFlag(v, jobOptionsConf, flags.Lookup("options"))
	mustBindPFlag(v, jobWorkersConf, flags.Lookup("workers"))
	mustBindPFlag(v, jobParentRunIDConf, flags.Lookup("parent-run-id"))
	mustBindPFlag(v, jobAbortOthersConf, flags.Lookup("abort-others"))
	mustBindPFlag(v, jobFireAndForgetConf, flags.Lookup("fire-and-forget"))
	mustBindPFlag(v, jobAnonymizeConf, flags.Lookup("anonymize"))
	mustBindPFlag(v, jobPartialConf, flags.Lookup("count-partial-output"))
	mustBindPFlag(v, jobWorkerTimeoutConf, flags.Lookup("worker-timeout"))

	mustBindPFlag(v, platformURLConf, flags.Lookup("platform-url"))
	mustBindPFlag(v, platformTokenConf, flags.Lookup("platform-token"))

	bindStateFlags(v, flags)
	mustBindPFlag(v, defaultOutputConf, flags.Lookup("default-output"))
	mustBindPFlag(v, pollIntervalConf, flags.Lookup("poll-interval"))
	mustBindPFlag(v, launchPacingConf, flags.Lookup("launch-pacing"))
	mustBindPFlag(v, maxLaunchPacingConf, flags.Lookup("max-launch-pacing"))
	mustBindPFlag(v, sweepTimeoutConf, flags.Lookup("sweep-timeout"))

	mustBindPFlag(v, metricsEnabledConf, flags.Lookup("metrics-enabled"))
	mustBindPFlag(v, metricsAddrConf, flags.Lookup("metrics-addr"))
}

func runJob(ctx context.Context, v *viper.Viper, out io.Writer) error {
	log, err := newLogger(v)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	job, err := jobConfig(v)
	if err != nil {
		return err
	}

	platformURL := v.GetString(platformURLConf)
	if platformURL == "" {
		return fmt.Errorf("%w: --platform-url is required", rootpkg.ErrInvalidConfig)
	}

	st, closeStore, err := openStateStore(ctx, v, log)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error(ctx, "failed to close state store", "error", err)
		}
	}()

	metricsEnabled := v.GetBool(metricsEnabledConf)
	if addr := v.GetString(metricsAddrConf); addr != "" && metricsEnabled {
		srv := metrics.NewServer(addr)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(ctx, "failed to stop metrics server", "error", err)
			}
		}()
		log.Info(ctx, "serving metrics", "addr", srv.Addr())
	}

	orch, err := orchestrator.New(
		orchestrator.WithJob(job),
		orchestrator.WithPlatformURL(platformURL, v.GetString(platformTokenConf)),
		orchestrator.WithStateStore(st),
		orchestrator.WithKeyPrefix(v.GetString(keyPrefixConf)),
		orchestrator.WithDefaultOutputCollection(v.GetString(defaultOutputConf)),
		orchestrator.WithPollInterval(v.GetDuration(pollIntervalConf)),
		orchestrator.WithLaunchPacing(v.GetDuration(launchPacingConf), v.GetDuration(maxLaunchPacingConf)),
		orchestrator.WithSweepTimeout(v.GetDuration(sweepTimeoutConf)),
		orchestrator.WithLogger(log),
		orchestrator.WithMetricsEnabled(metricsEnabled),
	)
	if err != nil {
		return err
	}

	report, runErr := orch.Run(ctx)
	if report.Outcome != "" {
		if err := printReport(out, report); err != nil {
			return errors.Join(runErr, err)
		}
	}

	return runErr
}

// jobConfig builds the job from flags, environment and config file.
func jobConfig(v *viper.Viper) (rootpkg.JobConfig, error) {
	job := rootpkg.JobConfig{
		InputCollectionID:   v.GetString(jobInputConf),
		OutputCollectionID:  v.GetString(jobOutputConf),
		WorkerTargetActorID: v.GetString(jobActorConf),
		WorkerTargetTaskID:  v.GetString(jobTaskConf),
		WorkerCount:         v.GetInt(jobWorkersConf),
		ParentRunID:         v.GetString(jobParentRunIDConf),
		FireAndForget:       v.GetBool(jobFireAndForgetConf),
		Anonymize:           v.GetBool(jobAnonymizeConf),
		CountPartialOutput:  v.GetBool(jobPartialConf),
		WorkerTimeout:       v.GetDuration(jobWorkerTimeoutConf),
	}

	// Left unset, the default depends on FireAndForget.
	if v.IsSet(jobAbortOthersConf) {
		abort := v.GetBool(jobAbortOthersConf)
		job.AbortOthersOnFailure = &abort
	}

	var err error
	if job.WorkerPayload, err = objectValue(v, jobPayloadConf); err != nil {
		return rootpkg.JobConfig{}, err
	}
	if job.WorkerOptions, err = objectValue(v, jobOptionsConf); err != nil {
		return rootpkg.JobConfig{}, err
	}

	return job, nil
}

// objectValue reads key as a JSON object string. Config files must use a
// string as well: viper lowercases the keys of nested maps.
func objectValue(v *viper.Viper, key string) (map[string]any, error) {
	switch raw := v.Get(key).(type) {
	case nil:
		return nil, nil
	case string:
		if raw == "" {
			return nil, nil
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, fmt.Errorf("%w: %s must be a JSON object: %v", rootpkg.ErrInvalidConfig, key, err)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a JSON object string, got %T", rootpkg.ErrInvalidConfig, key, raw)
	}
}

func printReport(w io.Writer, report rootpkg.JobReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to print report: %w", err)
	}
	return nil
}
