package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/getpup/fanout-orchestrator"
	"github.com/getpup/fanout-orchestrator/executor"
	"github.com/getpup/fanout-orchestrator/internal/logger"
	"github.com/getpup/pupsourcing/es"
)

// Split partitions totalItems into workerCount contiguous slots.
// Every slot gets batchSize = ceil(totalItems/workerCount) items; trailing
// slots may extend past the end of the input, which workers clamp.
// An empty input yields degenerate slots {offset: i, limit: 1} so every
// worker still runs once.
func Split(totalItems, workerCount int) orchestrator.Plan {
	if workerCount < 1 {
		workerCount = 1
	}

	slots := make([]orchestrator.WorkerSlot, workerCount)

	if totalItems <= 0 {
		for i := range slots {
			slots[i] = orchestrator.WorkerSlot{Index: i, Offset: i, Limit: 1}
		}
		return orchestrator.Plan{Slots: slots, TotalItems: 0, EmptySource: true}
	}

	batchSize := (totalItems + workerCount - 1) / workerCount
	for i := range slots {
		slots[i] = orchestrator.WorkerSlot{
			Index:  i,
			Offset: i * batchSize,
			Limit:  batchSize,
		}
	}

	return orchestrator.Plan{Slots: slots, TotalItems: totalItems}
}

// Planner computes a job's plan from its input collection.
type Planner struct {
	collections executor.CollectionStore
	logger      es.Logger
}

// New creates a new Planner reading item counts from collections.
func New(collections executor.CollectionStore, logger es.Logger) *Planner {
	return &Planner{
		collections: collections,
		logger:      logger,
	}
}

// Plan reads the input collection size and splits it into workerCount slots.
// A missing or empty input collection is not an error: it is logged and the
// degenerate empty-source plan is returned.
func (p *Planner) Plan(ctx context.Context, inputCollectionID string, workerCount int) (orchestrator.Plan, error) {
	col, err := p.collections.GetInfo(ctx, inputCollectionID)
	if errors.Is(err, executor.ErrCollectionNotFound) {
		logger.Warn(ctx, p.logger, "input collection not found, launching workers with empty source", "inputCollectionID", inputCollectionID)
		return Split(0, workerCount), nil
	}
	if err != nil {
		return orchestrator.Plan{}, fmt.Errorf("failed to read input collection: %w", err)
	}

	if col.ItemCount == 0 {
		logger.Warn(ctx, p.logger, "input collection is empty, launching workers with empty source", "inputCollectionID", inputCollectionID)
	}

	plan := Split(col.ItemCount, workerCount)

	if p.logger != nil {
		p.logger.Info(ctx, "planned batches", "totalItems", plan.TotalItems, "workers", len(plan.Slots), "emptySource", plan.EmptySource)
	}

	return plan, nil
}
