package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/getpup/fanout-orchestrator"
	"github.com/getpup/fanout-orchestrator/executor"
	"github.com/getpup/fanout-orchestrator/ledger"
	"github.com/getpup/fanout-orchestrator/metrics"
	"github.com/getpup/pupsourcing/es"
	"github.com/sourcegraph/conc/pool"
)

var errNotTerminal = errors.New("run not terminal yet")

// Config holds configuration for the Monitor.
type Config struct {
	// Platform is queried for run statuses (required).
	Platform executor.Platform

	// Statuses receives every observed status (required).
	Statuses *ledger.StatusTable

	// PollInterval is the delay between two status queries of the same run (default: 10s).
	PollInterval time.Duration

	// WorkerTimeout cancels runs still non-terminal this long after launch.
	// Zero waits indefinitely.
	WorkerTimeout time.Duration

	// Logger is for observability (optional).
	Logger es.Logger

	// Metrics records poll counters (optional).
	Metrics *metrics.Collector
}

// TerminalFunc is called once per run, when the run is first seen terminal.
// Calls are serialized.
type TerminalFunc func(ctx context.Context, rec orchestrator.LaunchRecord, status orchestrator.RunStatus)

// Monitor waits for launched runs to reach a terminal state.
type Monitor struct {
	config Config
}

// New creates a new Monitor with the given configuration.
// Applies default values for PollInterval if zero.
func New(cfg Config) *Monitor {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}

	return &Monitor{
		config: cfg,
	}
}

// Skip returns an empty status map without contacting the platform.
// It is used in fire-and-forget mode.
func (m *Monitor) Skip() map[string]orchestrator.RunStatus {
	return map[string]orchestrator.RunStatus{}
}

// AwaitAll polls every run in records independently until each one is terminal
// and returns the last observed statuses. Runs already terminal in the status
// table are reported to onTerminal first and are not polled again.
//
// AwaitAll returns early with ctx.Err() when ctx is cancelled, and with an
// error when the platform no longer knows a run.
func (m *Monitor) AwaitAll(ctx context.Context, records []orchestrator.LaunchRecord, onTerminal TerminalFunc) (map[string]orchestrator.RunStatus, error) {
	var notifyMu sync.Mutex
	notify := func(ctx context.Context, rec orchestrator.LaunchRecord, status orchestrator.RunStatus) {
		if m.config.Metrics != nil {
			m.config.Metrics.IncRunsTerminal(string(status.State))
		}
		if onTerminal == nil {
			return
		}
		notifyMu.Lock()
		defer notifyMu.Unlock()
		onTerminal(ctx, rec, status)
	}

	pending := make([]orchestrator.LaunchRecord, 0, len(records))
	for _, rec := range records {
		if status, ok := m.config.Statuses.Get(rec.Handle); ok && status.State.IsTerminal() {
			if m.config.Logger != nil {
				m.config.Logger.Info(ctx, "run already finished", "workerID", rec.SlotIndex+1, "handle", rec.Handle, "state", status.State)
			}
			notify(ctx, rec, status)
			continue
		}
		pending = append(pending, rec)
	}

	if m.config.Logger != nil {
		m.config.Logger.Info(ctx, "awaiting workers", "pending", len(pending), "total", len(records))
	}

	remaining := len(pending)
	var remainingMu sync.Mutex
	if m.config.Metrics != nil {
		m.config.Metrics.SetActiveRuns(remaining)
	}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, rec := range pending {
		p.Go(func(ctx context.Context) error {
			err := m.poll(ctx, rec, notify)
			if err == nil {
				remainingMu.Lock()
				remaining--
				if m.config.Metrics != nil {
					m.config.Metrics.SetActiveRuns(remaining)
				}
				remainingMu.Unlock()
			}
			return err
		})
	}

	err := p.Wait()

	statuses := make(map[string]orchestrator.RunStatus, len(records))
	for _, rec := range records {
		if status, ok := m.config.Statuses.Get(rec.Handle); ok {
			statuses[rec.Handle] = status
		}
	}

	if err != nil {
		if ctx.Err() != nil {
			return statuses, ctx.Err()
		}
		return statuses, err
	}

	return statuses, nil
}

// poll queries one run on a fixed interval until it is terminal.
func (m *Monitor) poll(ctx context.Context, rec orchestrator.LaunchRecord, notify TerminalFunc) error {
	operation := func() error {
		// A cancel response may already have recorded a terminal state.
		if m.config.Statuses.IsTerminal(rec.Handle) {
			return nil
		}

		if m.config.Metrics != nil {
			m.config.Metrics.IncStatusPolls()
		}

		status, err := m.config.Platform.GetStatus(ctx, rec.Handle)
		if err != nil {
			if m.config.Metrics != nil {
				m.config.Metrics.IncPollErrors()
			}
			if errors.Is(err, executor.ErrRunNotFound) {
				return backoff.Permanent(fmt.Errorf("worker %d: %w", rec.SlotIndex+1, err))
			}
			return err
		}
		status.Handle = rec.Handle

		if !status.State.IsTerminal() && m.timedOut(rec) {
			status = m.timeout(ctx, rec)
		}

		accepted, err := m.config.Statuses.Record(ctx, status)
		if err != nil {
			return backoff.Permanent(err)
		}

		if !status.State.IsTerminal() {
			if m.config.Logger != nil {
				m.config.Logger.Debug(ctx, "run still in progress", "workerID", rec.SlotIndex+1, "handle", rec.Handle, "state", status.State)
			}
			return errNotTerminal
		}

		if accepted {
			if m.config.Logger != nil {
				m.config.Logger.Info(ctx, "run finished", "workerID", rec.SlotIndex+1, "handle", rec.Handle, "state", status.State)
			}
			notify(ctx, rec, status)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(m.config.PollInterval), ctx)

	return backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		if errors.Is(err, errNotTerminal) || m.config.Logger == nil {
			return
		}
		m.config.Logger.Error(ctx, "status query failed, retrying", "workerID", rec.SlotIndex+1, "handle", rec.Handle, "wait", wait, "error", err)
	})
}

func (m *Monitor) timedOut(rec orchestrator.LaunchRecord) bool {
	return m.config.WorkerTimeout > 0 && time.Since(rec.LaunchedAt) > m.config.WorkerTimeout
}

// timeout cancels a run that exceeded WorkerTimeout and returns its TIMED_OUT status.
func (m *Monitor) timeout(ctx context.Context, rec orchestrator.LaunchRecord) orchestrator.RunStatus {
	result := "ok"
	if _, err := m.config.Platform.Cancel(ctx, rec.Handle); err != nil {
		result = "error"
		if m.config.Logger != nil {
			m.config.Logger.Error(ctx, "failed to cancel timed out run", "workerID", rec.SlotIndex+1, "handle", rec.Handle, "error", err)
		}
	}
	if m.config.Metrics != nil {
		m.config.Metrics.IncCancellations(result)
	}
	if m.config.Logger != nil {
		m.config.Logger.Info(ctx, "run timed out", "workerID", rec.SlotIndex+1, "handle", rec.Handle, "timeout", m.config.WorkerTimeout)
	}

	now := time.Now().UTC()
	return orchestrator.RunStatus{
		Handle:     rec.Handle,
		State:      orchestrator.RunStateTimedOut,
		FinishedAt: &now,
	}
}
