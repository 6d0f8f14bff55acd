package executor

import "errors"

var (
	// ErrTargetNotFound indicates the actor or task does not exist on the platform.
	ErrTargetNotFound = errors.New("target not found")

	// ErrRunNotFound indicates the platform does not know the launch handle.
	ErrRunNotFound = errors.New("run not found")

	// ErrCollectionNotFound indicates the collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrUnexpectedStatus indicates the platform answered with a non-success HTTP status.
	ErrUnexpectedStatus = errors.New("unexpected platform response")
)
