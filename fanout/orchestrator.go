package fanout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getpup/fanout-orchestrator"
	"github.com/getpup/fanout-orchestrator/aggregator"
	"github.com/getpup/fanout-orchestrator/coordinator"
	"github.com/getpup/fanout-orchestrator/executor"
	"github.com/getpup/fanout-orchestrator/launcher"
	"github.com/getpup/fanout-orchestrator/ledger"
	"github.com/getpup/fanout-orchestrator/metrics"
	"github.com/getpup/fanout-orchestrator/monitor"
	"github.com/getpup/fanout-orchestrator/planner"
	"github.com/getpup/fanout-orchestrator/store"
	"github.com/getpup/pupsourcing/es"
)

// Config holds configuration for the fan-out orchestrator.
type Config struct {
	// Job is the raw job configuration, validated at the start of Run (required).
	Job orchestrator.JobConfig

	// Platform launches, observes and cancels worker runs (required).
	Platform executor.Platform

	// Collections reads the input and output collections.
	// If nil, Platform is used when it also implements CollectionStore.
	Collections executor.CollectionStore

	// StateStore persists the launch ledger, status table and report (required).
	StateStore store.StateStore

	// KeyPrefix namespaces the job's state store keys (default: "fanout").
	// Reusing the prefix of a crashed job resumes it.
	KeyPrefix string

	// DefaultOutputCollectionID is the job-level output collection when the
	// job does not configure one (default: "<prefix>-output").
	DefaultOutputCollectionID string

	// PollInterval is the delay between status queries of one run (default: 10s).
	PollInterval time.Duration

	// LaunchPacing is the per-worker delay between two launches (default: 100ms).
	LaunchPacing time.Duration

	// MaxLaunchPacing caps the delay between two launches (default: 5s).
	MaxLaunchPacing time.Duration

	// SweepTimeout bounds the cancellation sweep and the wait for cancelled
	// runs to settle (default: 30s).
	SweepTimeout time.Duration

	// MaxConcurrentLookups bounds concurrent output collection lookups (default: 8).
	MaxConcurrentLookups int

	// Logger is for observability (optional).
	Logger es.Logger

	// MetricsEnabled enables Prometheus metrics collection (default: true).
	// Set to false explicitly to disable metrics.
	MetricsEnabled *bool
}

// Orchestrator runs one fan-out/fan-in job.
type Orchestrator struct {
	config    Config
	keys      ledger.Keys
	planner   *planner.Planner
	collector *metrics.Collector
}

// Compile-time check that Orchestrator implements orchestrator.Orchestrator.
var _ orchestrator.Orchestrator = (*Orchestrator)(nil)

// New creates a new Orchestrator with the given configuration.
// Applies default values for the state layout and output collection if zero.
func New(cfg Config) *Orchestrator {
	keys := ledger.NewKeys(cfg.KeyPrefix)

	if cfg.Collections == nil {
		if cs, ok := cfg.Platform.(executor.CollectionStore); ok {
			cfg.Collections = cs
		}
	}
	if cfg.DefaultOutputCollectionID == "" {
		cfg.DefaultOutputCollectionID = strings.ReplaceAll(keys.Prefix(), "/", "-") + "-output"
	}

	// Create metrics collector if enabled (default: true)
	var collector *metrics.Collector
	metricsEnabled := true
	if cfg.MetricsEnabled != nil {
		metricsEnabled = *cfg.MetricsEnabled
	}
	if metricsEnabled {
		collector = metrics.NewCollector(keys.Prefix())
	}

	return &Orchestrator{
		config:    cfg,
		keys:      keys,
		planner:   planner.New(cfg.Collections, cfg.Logger),
		collector: collector,
	}
}

// Run executes the job: plan, launch, monitor, coordinate failures, aggregate
// and persist the report. See orchestrator.Orchestrator for the contract.
func (o *Orchestrator) Run(ctx context.Context) (orchestrator.JobReport, error) {
	start := time.Now()

	// 1. Validate the job before touching the platform
	spec, err := orchestrator.NewWorkSpec(o.config.Job)
	if err != nil {
		return orchestrator.JobReport{}, err
	}
	if o.config.Platform == nil || o.config.Collections == nil || o.config.StateStore == nil {
		return orchestrator.JobReport{}, fmt.Errorf("%w: platform, collection store and state store are required", orchestrator.ErrInvalidConfig)
	}

	// A persisted report is final: the job already finished under this prefix.
	finished, err := ledger.LoadReport(ctx, o.config.StateStore, o.keys)
	if err == nil {
		if o.config.Logger != nil {
			o.config.Logger.Info(ctx, "job already finished, returning its report",
				"prefix", o.keys.Prefix(),
				"outcome", finished.Outcome,
				"completedAt", finished.CompletedAt)
		}
		return finished, finishedError(finished)
	}
	if !errors.Is(err, ledger.ErrReportNotFound) {
		return orchestrator.JobReport{}, err
	}

	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "starting job",
			"prefix", o.keys.Prefix(),
			"target", spec.Target.ID,
			"workerCount", spec.WorkerCount,
			"fireAndForget", spec.FireAndForget,
			"abortOthersOnFailure", spec.AbortOthersOnFailure)
	}

	// 2. Resolve the target once
	targetID, err := o.config.Platform.ResolveTarget(ctx, spec.Target)
	if err != nil {
		return orchestrator.JobReport{}, fmt.Errorf("failed to resolve worker target: %w", err)
	}

	// 3. Open the job-level output collection
	outputID := spec.OutputCollectionID
	if outputID == "" {
		outputID = o.config.DefaultOutputCollectionID
	}
	output, err := o.config.Collections.GetOrCreate(ctx, outputID)
	if err != nil {
		return orchestrator.JobReport{}, fmt.Errorf("failed to open output collection: %w", err)
	}
	forwardedOutput := ""
	if spec.OutputCollectionID != "" {
		forwardedOutput = output.ID
	}

	// 4. Partition the input
	plan, err := o.planner.Plan(ctx, spec.InputCollectionID, spec.WorkerCount)
	if err != nil {
		return orchestrator.JobReport{}, err
	}
	if o.collector != nil {
		o.collector.SetPlannedWorkers(len(plan.Slots))
	}

	// 5. Launch every slot missing from the ledger
	led, err := ledger.Open(ctx, o.config.StateStore, o.keys, len(plan.Slots))
	if err != nil {
		return orchestrator.JobReport{}, err
	}

	l := launcher.New(launcher.Config{
		Platform:        o.config.Platform,
		Ledger:          led,
		LaunchPacing:    o.config.LaunchPacing,
		MaxLaunchPacing: o.config.MaxLaunchPacing,
		Logger:          o.config.Logger,
		Metrics:         o.collector,
	}, launcher.Job{
		Spec:               spec,
		TargetID:           targetID,
		OutputCollectionID: forwardedOutput,
		EmptySource:        plan.EmptySource,
	})

	records, err := l.LaunchAll(ctx, plan)
	if err != nil {
		o.observeJob(orchestrator.JobOutcomeFailed, start)
		return orchestrator.JobReport{}, err
	}

	in := aggregator.Input{
		Plan:               plan,
		Records:            records,
		OutputCollectionID: output.ID,
		ParentRunID:        spec.ParentRunID,
		CountPartialOutput: spec.CountPartialOutput,
	}

	statuses, err := ledger.OpenStatusTable(ctx, o.config.StateStore, o.keys, led.Handles())
	if err != nil {
		return orchestrator.JobReport{}, err
	}

	mon := monitor.New(monitor.Config{
		Platform:      o.config.Platform,
		Statuses:      statuses,
		PollInterval:  o.config.PollInterval,
		WorkerTimeout: spec.WorkerTimeout,
		Logger:        o.config.Logger,
		Metrics:       o.collector,
	})

	// 6. Fire-and-forget jobs end here
	if spec.FireAndForget {
		in.Statuses = mon.Skip()
		return o.finish(ctx, spec, aggregator.Launched(in), nil, start)
	}

	// 7. Wait for every run, sweeping on the first failure when configured
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()

	coord := coordinator.New(coordinator.Config{
		Platform:     o.config.Platform,
		Statuses:     statuses,
		AbortOthers:  spec.AbortOthersOnFailure,
		OnAbort:      stopMonitor,
		SweepTimeout: o.config.SweepTimeout,
		PollInterval: o.config.PollInterval,
		Logger:       o.config.Logger,
		Metrics:      o.collector,
	}, records)

	observed, err := mon.AwaitAll(monitorCtx, records, coord.HandleTerminal)
	failure := coord.Failure()
	if err != nil {
		if ctx.Err() != nil {
			return orchestrator.JobReport{}, ctx.Err()
		}
		// A settled sweep stops the monitor on purpose.
		if failure == nil || !errors.Is(err, context.Canceled) {
			o.observeJob(orchestrator.JobOutcomeFailed, start)
			return orchestrator.JobReport{}, fmt.Errorf("failed to monitor worker runs: %w", err)
		}
	}

	// 8. Aggregate
	in.Statuses = observed
	in.Failure = failure

	a := aggregator.New(aggregator.Config{
		Collections:          o.config.Collections,
		MaxConcurrentLookups: o.config.MaxConcurrentLookups,
		Logger:               o.config.Logger,
		Metrics:              o.collector,
	})

	report, aggErr := a.Aggregate(ctx, in)

	var runErr error
	switch {
	case failure != nil && aggErr != nil:
		runErr = errors.Join(failure, aggErr)
		report.Error = runErr.Error()
	case failure != nil:
		runErr = failure
	case aggErr != nil:
		runErr = aggErr
		report.Outcome = orchestrator.JobOutcomeFailed
		report.Error = aggErr.Error()
	}

	return o.finish(ctx, spec, report, runErr, start)
}

// finish persists the report and records the job outcome.
func (o *Orchestrator) finish(ctx context.Context, spec orchestrator.WorkSpec, report orchestrator.JobReport, runErr error, start time.Time) (orchestrator.JobReport, error) {
	if report.CompletedAt.IsZero() {
		report.CompletedAt = time.Now().UTC()
	}
	if spec.Anonymize {
		report = aggregator.Anonymize(report)
	}

	if err := ledger.SaveReport(ctx, o.config.StateStore, o.keys, report); err != nil {
		runErr = errors.Join(runErr, err)
	}

	o.observeJob(report.Outcome, start)

	if o.config.Logger != nil {
		if runErr != nil {
			o.config.Logger.Error(ctx, "job finished", "outcome", report.Outcome, "totalItemCount", report.TotalItemCount, "error", runErr)
		} else {
			o.config.Logger.Info(ctx, "job finished", "outcome", report.Outcome, "totalItemCount", report.TotalItemCount, "duration", time.Since(start))
		}
	}

	return report, runErr
}

// finishedError rebuilds the error of a job whose report an earlier Run
// persisted. A failed job matches ErrRunFailed when one of its runs ended in a
// non-success state.
func finishedError(report orchestrator.JobReport) error {
	if report.Outcome != orchestrator.JobOutcomeFailed {
		return nil
	}
	for _, w := range report.Workers {
		if w.Status != nil && w.Status.State.IsTerminal() && w.Status.State != orchestrator.RunStateSucceeded {
			return fmt.Errorf("%w: %s", orchestrator.ErrRunFailed, report.Error)
		}
	}
	return errors.New(report.Error)
}

func (o *Orchestrator) observeJob(outcome orchestrator.JobOutcome, start time.Time) {
	if o.collector == nil {
		return
	}
	o.collector.IncJobs(string(outcome))
	o.collector.ObserveJobDuration(time.Since(start).Seconds())
}
