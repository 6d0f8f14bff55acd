package launcher

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/getpup/fanout-orchestrator"
	"github.com/getpup/fanout-orchestrator/executor"
	"github.com/getpup/fanout-orchestrator/ledger"
	"github.com/getpup/fanout-orchestrator/metrics"
	"github.com/getpup/pupsourcing/es"
)

// Payload keys merged into every worker's input.
const (
	PayloadOffset             = "offset"
	PayloadLimit              = "limit"
	PayloadInputCollectionID  = "inputCollectionId"
	PayloadOutputCollectionID = "outputCollectionId"
	PayloadWorkerID           = "workerId"
	PayloadEmptySource        = "emptySource"
	PayloadParentRunID        = "parentRunId"
)

// Config holds configuration for the Launcher.
type Config struct {
	// Platform submits the launches (required).
	Platform executor.Platform

	// Ledger records launched slots (required).
	Ledger *ledger.Ledger

	// LaunchPacing is the delay per worker inserted between two consecutive
	// submissions, so larger jobs launch more gently (default: 100ms).
	LaunchPacing time.Duration

	// MaxLaunchPacing caps the delay between two submissions (default: 5s).
	MaxLaunchPacing time.Duration

	// Logger is for observability (optional).
	Logger es.Logger

	// Metrics records launch counters (optional).
	Metrics *metrics.Collector
}

// Job is what every launch of one job shares.
type Job struct {
	Spec orchestrator.WorkSpec

	// TargetID is the canonical id the target resolved to.
	TargetID string

	// OutputCollectionID is forwarded to workers only when the job configured
	// one explicitly. It holds the resolved collection id.
	OutputCollectionID string

	// EmptySource marks a plan built for an empty input collection.
	EmptySource bool
}

// Launcher launches worker slots exactly once each.
type Launcher struct {
	config    Config
	job       Job
	submitted bool
}

// New creates a new Launcher for job.
// Applies default values for the pacing settings if zero.
func New(cfg Config, job Job) *Launcher {
	if cfg.LaunchPacing == 0 {
		cfg.LaunchPacing = 100 * time.Millisecond
	}
	if cfg.MaxLaunchPacing == 0 {
		cfg.MaxLaunchPacing = 5 * time.Second
	}

	return &Launcher{
		config: cfg,
		job:    job,
	}
}

// Pacing returns the delay inserted between two consecutive submissions.
func (l *Launcher) Pacing() time.Duration {
	d := l.config.LaunchPacing * time.Duration(l.job.Spec.WorkerCount)
	if d > l.config.MaxLaunchPacing {
		return l.config.MaxLaunchPacing
	}
	return d
}

// LaunchAll ensures every slot of plan is launched, in slot order.
// It stops at the first submission error.
func (l *Launcher) LaunchAll(ctx context.Context, plan orchestrator.Plan) ([]orchestrator.LaunchRecord, error) {
	records := make([]orchestrator.LaunchRecord, 0, len(plan.Slots))
	for _, slot := range plan.Slots {
		rec, err := l.EnsureLaunched(ctx, slot)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// EnsureLaunched returns the ledger record of slot, launching the slot first
// if the ledger has none. A slot found in the ledger is never submitted again.
func (l *Launcher) EnsureLaunched(ctx context.Context, slot orchestrator.WorkerSlot) (orchestrator.LaunchRecord, error) {
	if rec, ok := l.config.Ledger.Get(slot.Index); ok {
		if l.config.Metrics != nil {
			l.config.Metrics.IncLaunchesSkipped()
		}
		if l.config.Logger != nil {
			l.config.Logger.Debug(ctx, "slot already launched", "workerID", slot.WorkerID(), "handle", rec.Handle)
		}
		return rec, nil
	}

	if l.submitted {
		if err := sleep(ctx, l.Pacing()); err != nil {
			return orchestrator.LaunchRecord{}, err
		}
	}

	payload := l.Payload(slot)

	start := time.Now()
	launch, err := l.config.Platform.SubmitLaunch(ctx, l.job.Spec.Target.Kind, l.job.TargetID, payload, maps.Clone(l.job.Spec.Options))
	if err != nil {
		if l.config.Metrics != nil {
			l.config.Metrics.IncLaunchErrors()
		}
		if l.config.Logger != nil {
			l.config.Logger.Error(ctx, "launch failed", "workerID", slot.WorkerID(), "error", err)
		}
		return orchestrator.LaunchRecord{}, fmt.Errorf("%w: worker %d: %w", orchestrator.ErrLaunchFailed, slot.WorkerID(), err)
	}
	l.submitted = true

	if l.config.Metrics != nil {
		l.config.Metrics.IncLaunches()
		l.config.Metrics.ObserveLaunchLatency(time.Since(start).Seconds())
	}

	launchedAt := launch.StartedAt
	if launchedAt.IsZero() {
		launchedAt = time.Now()
	}

	rec := orchestrator.LaunchRecord{
		SlotIndex:  slot.Index,
		Handle:     launch.Handle,
		LaunchedAt: launchedAt.UTC(),
	}
	if err := l.config.Ledger.Append(ctx, rec); err != nil {
		return orchestrator.LaunchRecord{}, fmt.Errorf("failed to record launch of worker %d: %w", slot.WorkerID(), err)
	}

	if l.config.Logger != nil {
		l.config.Logger.Info(ctx, "worker launched", "workerID", slot.WorkerID(), "handle", rec.Handle, "offset", slot.Offset, "limit", slot.Limit)
	}

	return rec, nil
}

// Payload builds the input handed to the worker of slot.
func (l *Launcher) Payload(slot orchestrator.WorkerSlot) map[string]any {
	payload := make(map[string]any, len(l.job.Spec.Payload)+7)
	maps.Copy(payload, l.job.Spec.Payload)

	payload[PayloadOffset] = slot.Offset
	payload[PayloadLimit] = slot.Limit
	payload[PayloadInputCollectionID] = l.job.Spec.InputCollectionID
	payload[PayloadWorkerID] = slot.WorkerID()
	payload[PayloadEmptySource] = l.job.EmptySource
	if l.job.OutputCollectionID != "" {
		payload[PayloadOutputCollectionID] = l.job.OutputCollectionID
	}
	if l.job.Spec.ParentRunID != "" {
		payload[PayloadParentRunID] = l.job.Spec.ParentRunID
	}

	return payload
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
