package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates a malformed or contradictory job configuration.
	// It is always returned before anything is launched.
	ErrInvalidConfig = errors.New("invalid job configuration")

	// ErrLaunchFailed indicates a worker launch could not be submitted.
	// Launch failures are fatal; resuming the job relaunches only slots
	// missing from the ledger.
	ErrLaunchFailed = errors.New("launch failed")

	// ErrRunFailed indicates a worker run reached a terminal state other than SUCCEEDED.
	ErrRunFailed = errors.New("worker run failed")

	// ErrMissingOutputCollection indicates a succeeded worker did not report
	// an output collection, so its results cannot be aggregated.
	ErrMissingOutputCollection = errors.New("missing output collection")
)

// RunFailedError identifies the first worker run observed in a non-success terminal state.
type RunFailedError struct {
	SlotIndex int
	Handle    string
	State     RunState
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("worker %d returned fail status %s (run %s)", e.SlotIndex+1, e.State, e.Handle)
}

// Is makes errors.Is(err, ErrRunFailed) match any RunFailedError.
func (e *RunFailedError) Is(target error) bool {
	return target == ErrRunFailed
}
