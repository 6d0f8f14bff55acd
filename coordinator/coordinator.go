package coordinator

import (
	"context"
	"errors"
	"sort"
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

var errNotSettled = errors.New("cancelled runs not terminal yet")

// Config holds configuration for the Coordinator.
type Config struct {
	// Platform receives cancel requests (required).
	Platform executor.Platform

	// Statuses is the shared status table (required).
	Statuses *ledger.StatusTable

	// AbortOthers enables the cancellation sweep on the first failure.
	AbortOthers bool

	// OnAbort is called once the sweep completed and the cancelled runs
	// settled, typically to stop monitoring (optional).
	OnAbort func()

	// SweepTimeout bounds the whole sweep, including the wait for cancelled
	// runs to reach a terminal state (default: 30s).
	SweepTimeout time.Duration

	// PollInterval is the delay between two status queries of a cancelled
	// run whose cancel response was not final (default: 10s).
	PollInterval time.Duration

	// Logger is for observability (optional).
	Logger es.Logger

	// Metrics records cancellation results (optional).
	Metrics *metrics.Collector
}

// CancelResult is the outcome of one cancel request issued by a sweep.
type CancelResult struct {
	SlotIndex int
	Handle    string
	State     orchestrator.RunState
	Err       error
}

// Coordinator turns the first failed run into a job failure and, when
// configured, cancels every run that is still in flight.
type Coordinator struct {
	config  Config
	records []orchestrator.LaunchRecord

	mu      sync.Mutex
	failure *orchestrator.RunFailedError
	swept   []CancelResult
}

// New creates a new Coordinator for the given launch records.
// Applies default values for SweepTimeout and PollInterval if zero.
func New(cfg Config, records []orchestrator.LaunchRecord) *Coordinator {
	if cfg.SweepTimeout == 0 {
		cfg.SweepTimeout = 30 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}

	return &Coordinator{
		config:  cfg,
		records: records,
	}
}

// HandleTerminal observes one terminal run. Only the first non-success
// status is acted upon; later ones are ignored.
//
// The sweep runs on a context detached from ctx so that stopping the
// monitor never interrupts cancel requests already in flight.
func (c *Coordinator) HandleTerminal(ctx context.Context, rec orchestrator.LaunchRecord, status orchestrator.RunStatus) {
	if status.State == orchestrator.RunStateSucceeded {
		return
	}

	c.mu.Lock()
	if c.failure != nil {
		c.mu.Unlock()
		return
	}
	c.failure = &orchestrator.RunFailedError{
		SlotIndex: rec.SlotIndex,
		Handle:    rec.Handle,
		State:     status.State,
	}
	c.mu.Unlock()

	if c.config.Logger != nil {
		c.config.Logger.Error(ctx, "worker run failed",
			"workerID", rec.SlotIndex+1,
			"handle", rec.Handle,
			"state", status.State,
			"abortOthers", c.config.AbortOthers)
	}

	if !c.config.AbortOthers {
		return
	}

	sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.SweepTimeout)
	defer cancel()

	results := c.Sweep(sweepCtx)
	c.settle(sweepCtx, results)

	c.mu.Lock()
	c.swept = results
	c.mu.Unlock()

	if c.config.OnAbort != nil {
		c.config.OnAbort()
	}
}

// Sweep issues one cancel request per run whose last observed state is not
// terminal. Requests run concurrently and a failed request never stops the
// others. Results are ordered by slot index.
func (c *Coordinator) Sweep(ctx context.Context) []CancelResult {
	p := pool.NewWithResults[CancelResult]()

	targets := 0
	for _, rec := range c.records {
		if c.config.Statuses.IsTerminal(rec.Handle) {
			continue
		}
		targets++
		p.Go(func() CancelResult {
			return c.cancel(ctx, rec)
		})
	}

	results := p.Wait()
	sort.Slice(results, func(i, j int) bool {
		return results[i].SlotIndex < results[j].SlotIndex
	})

	if c.config.Logger != nil {
		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		c.config.Logger.Info(ctx, "cancellation sweep finished", "cancelled", targets-failed, "failed", failed)
	}

	return results
}

func (c *Coordinator) cancel(ctx context.Context, rec orchestrator.LaunchRecord) CancelResult {
	result := CancelResult{SlotIndex: rec.SlotIndex, Handle: rec.Handle}

	state, err := c.config.Platform.Cancel(ctx, rec.Handle)
	if err != nil {
		result.Err = err
		if c.config.Metrics != nil {
			c.config.Metrics.IncCancellations("error")
		}
		if c.config.Logger != nil {
			c.config.Logger.Error(ctx, "failed to cancel run", "workerID", rec.SlotIndex+1, "handle", rec.Handle, "error", err)
		}
		return result
	}

	result.State = state
	if c.config.Metrics != nil {
		c.config.Metrics.IncCancellations("ok")
	}
	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "run cancelled", "workerID", rec.SlotIndex+1, "handle", rec.Handle, "state", state)
	}

	if state.IsTerminal() {
		now := time.Now().UTC()
		if _, err := c.config.Statuses.Record(ctx, orchestrator.RunStatus{
			Handle:     rec.Handle,
			State:      state,
			FinishedAt: &now,
		}); err != nil {
			result.Err = err
			if c.config.Logger != nil {
				c.config.Logger.Error(ctx, "failed to record cancel response", "handle", rec.Handle, "error", err)
			}
		}
	}

	return result
}

// settle polls the runs whose cancel response was not terminal (the
// platform's ABORTING) until each one reaches a terminal state or ctx
// expires. Terminal states land in the status table.
func (c *Coordinator) settle(ctx context.Context, results []CancelResult) {
	pending := make(map[string]int)
	for _, r := range results {
		if r.Err == nil && !r.State.IsTerminal() {
			pending[r.Handle] = r.SlotIndex
		}
	}
	if len(pending) == 0 {
		return
	}

	operation := func() error {
		for handle, slot := range pending {
			if c.config.Statuses.IsTerminal(handle) {
				delete(pending, handle)
				continue
			}

			status, err := c.config.Platform.GetStatus(ctx, handle)
			if err != nil {
				if c.config.Logger != nil {
					c.config.Logger.Error(ctx, "failed to query cancelled run", "workerID", slot+1, "handle", handle, "error", err)
				}
				continue
			}
			if !status.State.IsTerminal() {
				continue
			}

			status.Handle = handle
			if _, err := c.config.Statuses.Record(ctx, status); err != nil {
				return backoff.Permanent(err)
			}
			delete(pending, handle)
		}

		if len(pending) > 0 {
			return errNotSettled
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(c.config.PollInterval), ctx)
	if err := backoff.Retry(operation, policy); err != nil && c.config.Logger != nil {
		c.config.Logger.Error(ctx, "cancelled runs did not settle", "pending", len(pending), "error", err)
	}
}

// Failure returns the first observed run failure, or nil.
func (c *Coordinator) Failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failure == nil {
		return nil
	}
	return c.failure
}

// SweepResults returns the results of the sweep, if one ran.
func (c *Coordinator) SweepResults() []CancelResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CancelResult(nil), c.swept...)
}
