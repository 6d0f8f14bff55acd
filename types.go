package orchestrator

import "time"

// TargetKind identifies what kind of worker definition a launch targets.
type TargetKind string

const (
	// TargetKindActor launches a worker from an actor definition.
	TargetKindActor TargetKind = "actor"

	// TargetKindTask launches a worker from a saved task (an actor plus preset input).
	TargetKindTask TargetKind = "task"
)

// Target is the worker launch target. Exactly one kind is set per job.
// It is resolved once to a canonical id before any launch happens.
type Target struct {
	// Kind is either TargetKindActor or TargetKindTask.
	Kind TargetKind `json:"kind"`

	// ID is the identifier as configured (name or id) or, after resolution,
	// the canonical id returned by the execution platform.
	ID string `json:"id"`
}

// ActorTarget returns a Target for an actor id.
func ActorTarget(id string) Target {
	return Target{Kind: TargetKindActor, ID: id}
}

// TaskTarget returns a Target for a task id.
func TaskTarget(id string) Target {
	return Target{Kind: TargetKindTask, ID: id}
}

// LaunchOptions are per-launch platform options (build, memory, timeout, ...)
// passed through to the execution platform untouched.
type LaunchOptions map[string]any

// WorkerSlot is one contiguous partition of the input collection assigned to
// exactly one worker.
type WorkerSlot struct {
	// Index is 0-based and stable for the lifetime of the job.
	Index int `json:"index"`

	// Offset is the first input item handled by this slot.
	Offset int `json:"offset"`

	// Limit is the maximum number of items handled by this slot.
	Limit int `json:"limit"`
}

// WorkerID returns the 1-based worker id handed to the worker in its payload.
func (s WorkerSlot) WorkerID() int {
	return s.Index + 1
}

// Plan is the ordered partition of a job's input.
type Plan struct {
	// Slots are ordered by Index.
	Slots []WorkerSlot `json:"slots"`

	// TotalItems is the item count the plan was computed from.
	TotalItems int `json:"totalItems"`

	// EmptySource is true when the input collection held no items and every
	// slot carries the degenerate {offset: i, limit: 1} range.
	EmptySource bool `json:"emptySource"`
}

// LaunchRecord is the ledger entry for a launched slot.
// It is created once per slot and never mutated afterwards.
type LaunchRecord struct {
	// SlotIndex is the index of the launched WorkerSlot.
	SlotIndex int `json:"slotIndex"`

	// Handle is the opaque run id assigned by the execution platform.
	Handle string `json:"launchHandle"`

	// LaunchedAt is when the launch was acknowledged.
	LaunchedAt time.Time `json:"launchedAt"`
}

// RunState is the lifecycle state of a launched worker run.
type RunState string

const (
	// RunStateSubmitted indicates the run was accepted but has not started.
	RunStateSubmitted RunState = "SUBMITTED"

	// RunStateRunning indicates the run is executing.
	RunStateRunning RunState = "RUNNING"

	// RunStateSucceeded indicates the run finished successfully.
	RunStateSucceeded RunState = "SUCCEEDED"

	// RunStateFailed indicates the run finished with an error.
	RunStateFailed RunState = "FAILED"

	// RunStateAborted indicates the run was cancelled.
	RunStateAborted RunState = "ABORTED"

	// RunStateTimedOut indicates the run exceeded its time limit.
	RunStateTimedOut RunState = "TIMED_OUT"
)

// IsTerminal reports whether no further transition can follow s.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateSucceeded, RunStateFailed, RunStateAborted, RunStateTimedOut:
		return true
	default:
		return false
	}
}

// ParseRunState maps a platform status string onto the run lifecycle.
// Transitional platform states (READY, TIMING-OUT, ABORTING) map onto the
// nearest non-terminal state. Unknown values are treated as RUNNING so that
// they are re-checked rather than mistaken for a terminal state.
func ParseRunState(s string) RunState {
	switch s {
	case "READY", "SUBMITTED", "QUEUED":
		return RunStateSubmitted
	case "SUCCEEDED":
		return RunStateSucceeded
	case "FAILED":
		return RunStateFailed
	case "ABORTED":
		return RunStateAborted
	case "TIMED-OUT", "TIMED_OUT":
		return RunStateTimedOut
	default:
		return RunStateRunning
	}
}

// RunStatus is the last observed status of a launched run.
type RunStatus struct {
	// Handle is the launch handle this status belongs to.
	Handle string `json:"launchHandle"`

	// State is the current lifecycle state.
	State RunState `json:"state"`

	// FinishedAt is set only once State is terminal.
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	// OutputCollectionID is the collection the worker wrote to, once known.
	OutputCollectionID string `json:"outputCollectionId,omitempty"`
}

// JobOutcome summarizes how a job ended.
type JobOutcome string

const (
	// JobOutcomeSucceeded indicates every worker succeeded and results were aggregated.
	JobOutcomeSucceeded JobOutcome = "SUCCEEDED"

	// JobOutcomeFailed indicates at least one worker did not succeed.
	JobOutcomeFailed JobOutcome = "FAILED"

	// JobOutcomeLaunched indicates a fire-and-forget job whose workers were
	// launched but never observed.
	JobOutcomeLaunched JobOutcome = "LAUNCHED"
)

// WorkerReport is one per-slot entry of the job report.
type WorkerReport struct {
	Slot   WorkerSlot   `json:"slot"`
	Launch LaunchRecord `json:"launch"`

	// Status is nil when the run was never observed (fire-and-forget).
	Status *RunStatus `json:"status,omitempty"`
}

// JobReport is the final aggregate persisted once at the end of a job.
type JobReport struct {
	Outcome            JobOutcome     `json:"outcome"`
	Workers            []WorkerReport `json:"workers"`
	TotalItemCount     int            `json:"totalItemCount"`
	OutputCollectionID string         `json:"outputCollectionId"`
	EmptySource        bool           `json:"emptySource"`
	ParentRunID        string         `json:"parentRunId,omitempty"`
	Error              string         `json:"error,omitempty"`
	CompletedAt        time.Time      `json:"completedAt"`
}
