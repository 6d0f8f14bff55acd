package ledger

import "errors"

var (
	// ErrAlreadyLaunched indicates a slot already has a ledger entry.
	ErrAlreadyLaunched = errors.New("slot already launched")

	// ErrReportNotFound indicates no report was persisted for the job.
	ErrReportNotFound = errors.New("report not found")
)
