package executor

import (
	"context"
	"time"

	"github.com/getpup/fanout-orchestrator"
)

// Launch is the platform's acknowledgement of a submitted worker run.
type Launch struct {
	// Handle is the opaque run id used for status queries and cancellation.
	Handle string

	// StartedAt is when the platform accepted the run.
	StartedAt time.Time
}

// Collection describes an item collection held by the collection store.
type Collection struct {
	ID        string
	ItemCount int
}

// Platform is the remote job-execution platform workers run on.
// Implementations must be safe for concurrent use.
type Platform interface {
	// ResolveTarget returns the canonical id of an actor or task.
	// Returns ErrTargetNotFound if the target does not exist.
	ResolveTarget(ctx context.Context, target orchestrator.Target) (string, error)

	// SubmitLaunch starts a worker run without waiting for it to finish.
	SubmitLaunch(ctx context.Context, kind orchestrator.TargetKind, targetID string, payload map[string]any, options orchestrator.LaunchOptions) (Launch, error)

	// GetStatus returns the current status of a run.
	// Returns ErrRunNotFound if the platform does not know the handle.
	GetStatus(ctx context.Context, handle string) (orchestrator.RunStatus, error)

	// Cancel requests the run to abort and returns the state reported in response.
	Cancel(ctx context.Context, handle string) (orchestrator.RunState, error)
}

// CollectionStore holds the input and output item collections.
type CollectionStore interface {
	// GetOrCreate opens the collection with the given id or name, creating it if needed.
	GetOrCreate(ctx context.Context, id string) (Collection, error)

	// GetInfo returns the collection metadata.
	// Returns ErrCollectionNotFound if the collection does not exist.
	GetInfo(ctx context.Context, id string) (Collection, error)
}
