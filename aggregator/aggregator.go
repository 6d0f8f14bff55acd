package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/getpup/fanout-orchestrator"
	"github.com/getpup/fanout-orchestrator/executor"
	"github.com/getpup/fanout-orchestrator/metrics"
	"github.com/getpup/pupsourcing/es"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for the Aggregator.
type Config struct {
	// Collections is used to look up worker output collections (required).
	Collections executor.CollectionStore

	// MaxConcurrentLookups bounds concurrent collection lookups (default: 8).
	MaxConcurrentLookups int

	// Logger is for observability (optional).
	Logger es.Logger

	// Metrics records the aggregated item count (optional).
	Metrics *metrics.Collector
}

// Input is everything the aggregator reads to build a report.
type Input struct {
	Plan     orchestrator.Plan
	Records  []orchestrator.LaunchRecord
	Statuses map[string]orchestrator.RunStatus // handle -> final status

	// OutputCollectionID is the job-level output collection.
	OutputCollectionID string

	ParentRunID string

	// Failure is the job's run failure, nil when every worker succeeded.
	Failure error

	// CountPartialOutput counts every worker that reported an output
	// collection when Failure is set, instead of succeeded workers only.
	CountPartialOutput bool
}

// Aggregator builds the final JobReport.
type Aggregator struct {
	config Config
}

// New creates a new Aggregator with the given configuration.
// Applies default values for MaxConcurrentLookups if zero.
func New(cfg Config) *Aggregator {
	if cfg.MaxConcurrentLookups <= 0 {
		cfg.MaxConcurrentLookups = 8
	}

	return &Aggregator{
		config: cfg,
	}
}

// Entries merges slots, launch records and statuses into report entries
// ordered by slot index. Slots without a record get an empty launch, and
// runs never observed get a nil status.
func Entries(plan orchestrator.Plan, records []orchestrator.LaunchRecord, statuses map[string]orchestrator.RunStatus) []orchestrator.WorkerReport {
	bySlot := make(map[int]orchestrator.LaunchRecord, len(records))
	for _, rec := range records {
		bySlot[rec.SlotIndex] = rec
	}

	entries := make([]orchestrator.WorkerReport, 0, len(plan.Slots))
	for _, slot := range plan.Slots {
		entry := orchestrator.WorkerReport{Slot: slot}
		if rec, ok := bySlot[slot.Index]; ok {
			entry.Launch = rec
			if status, ok := statuses[rec.Handle]; ok {
				entry.Status = &status
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// Aggregate sums the item counts of the counted workers' output collections
// and returns the job report.
//
// A counted worker without an output collection id, or whose collection
// cannot be read, fails the aggregation. The returned report then carries
// every entry but a zero TotalItemCount.
func (a *Aggregator) Aggregate(ctx context.Context, in Input) (orchestrator.JobReport, error) {
	report := orchestrator.JobReport{
		Outcome:            orchestrator.JobOutcomeSucceeded,
		Workers:            Entries(in.Plan, in.Records, in.Statuses),
		OutputCollectionID: in.OutputCollectionID,
		EmptySource:        in.Plan.EmptySource,
		ParentRunID:        in.ParentRunID,
	}
	if in.Failure != nil {
		report.Outcome = orchestrator.JobOutcomeFailed
		report.Error = in.Failure.Error()
	}

	counted, err := a.countedWorkers(report.Workers, in)
	if err != nil {
		return report, err
	}

	counts := make([]int, len(counted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.MaxConcurrentLookups)

	for i, w := range counted {
		g.Go(func() error {
			col, err := a.config.Collections.GetInfo(gctx, w.Status.OutputCollectionID)
			if err != nil {
				return fmt.Errorf("failed to read output of worker %d: %w", w.Slot.WorkerID(), err)
			}
			counts[i] = col.ItemCount
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	for _, n := range counts {
		report.TotalItemCount += n
	}

	if a.config.Metrics != nil {
		a.config.Metrics.SetItemsAggregated(report.TotalItemCount)
	}
	if a.config.Logger != nil {
		a.config.Logger.Info(ctx, "output aggregated",
			"outcome", report.Outcome,
			"countedWorkers", len(counted),
			"totalItemCount", report.TotalItemCount,
			"outputCollectionID", report.OutputCollectionID)
	}

	return report, nil
}

// countedWorkers selects the entries whose output is summed.
func (a *Aggregator) countedWorkers(entries []orchestrator.WorkerReport, in Input) ([]orchestrator.WorkerReport, error) {
	counted := make([]orchestrator.WorkerReport, 0, len(entries))

	for _, w := range entries {
		succeeded := w.Status != nil && w.Status.State == orchestrator.RunStateSucceeded

		switch {
		case in.Failure == nil || succeeded:
			if w.Status == nil || w.Status.OutputCollectionID == "" {
				return nil, fmt.Errorf("%w: worker %d", orchestrator.ErrMissingOutputCollection, w.Slot.WorkerID())
			}
		case in.CountPartialOutput:
			if w.Status == nil || w.Status.OutputCollectionID == "" {
				continue
			}
		default:
			continue
		}

		counted = append(counted, w)
	}

	return counted, nil
}

// Launched returns the report of a fire-and-forget job. No run was
// observed, so no output is counted.
func Launched(in Input) orchestrator.JobReport {
	return orchestrator.JobReport{
		Outcome:            orchestrator.JobOutcomeLaunched,
		Workers:            Entries(in.Plan, in.Records, nil),
		OutputCollectionID: in.OutputCollectionID,
		EmptySource:        in.Plan.EmptySource,
		ParentRunID:        in.ParentRunID,
		CompletedAt:        time.Now().UTC(),
	}
}

// Anonymize returns a copy of report without launch handles and per-worker
// output collection ids.
func Anonymize(report orchestrator.JobReport) orchestrator.JobReport {
	workers := make([]orchestrator.WorkerReport, len(report.Workers))
	for i, w := range report.Workers {
		w.Launch.Handle = ""
		if w.Status != nil {
			status := *w.Status
			status.Handle = ""
			status.OutputCollectionID = ""
			w.Status = &status
		}
		workers[i] = w
	}
	report.Workers = workers
	return report
}
