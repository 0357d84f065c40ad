package schema

import "errors"

// Errors returned by the sync core.
//
// These can be checked with errors.Is:
//
//	if errors.Is(err, schema.ErrImmutableResource) {
//	    // the task is done and cannot change
//	}
var (
	// ErrImmutableResource is returned when a mutation targets a done task.
	// It is raised locally and never reaches the network or the queue.
	ErrImmutableResource = errors.New("done tasks are read-only")

	// ErrNetwork wraps any failed call to the remote task service.
	ErrNetwork = errors.New("task service unavailable")

	// ErrMissingIdentifier is returned when a queued update or delete has
	// no id to resolve.
	ErrMissingIdentifier = errors.New("missing task id")

	// ErrMalformedStorage marks persisted data that could not be decoded.
	// Readers recover from it by treating the table as empty.
	ErrMalformedStorage = errors.New("malformed stored data")

	// ErrInvalidTask is returned when task fields fail validation.
	ErrInvalidTask = errors.New("invalid task")

	// ErrNotFound is returned when a task id is not in the cache.
	ErrNotFound = errors.New("task not found")
)
