package database

import "errors"

// Store error kinds. Callers classify failures with errors.Is and map
// them onto socket or HTTP responses.
var (
	// ErrNotFound means the requested row does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict means the write collided with existing state
	ErrConflict = errors.New("conflict")

	// ErrTransient means the store itself failed and the caller may
	// retry or fall back
	ErrTransient = errors.New("transient store failure")
)
