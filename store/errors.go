package store

import "errors"

var (
	// ErrNotFound indicates the key does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrEmptyKey indicates an empty key was passed to the store.
	ErrEmptyKey = errors.New("key must not be empty")
)
