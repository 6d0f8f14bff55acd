package store

import "context"

// StateStore is the durable key/value store holding a job's launch ledger,
// status table and final report.
// Implementations must be safe for concurrent access from multiple goroutines.
type StateStore interface {
	// Load returns the value stored under key.
	// Returns ErrNotFound if the key does not exist.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save stores value under key, replacing any previous value.
	Save(ctx context.Context, key string, value []byte) error
}
