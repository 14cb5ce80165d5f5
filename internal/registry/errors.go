package registry

import "errors"

// Registry domain errors, mapped onto HTTP status codes by the C7
// handlers (SPEC_FULL.md §7).
var (
	// ErrNotFound means no task with the given id is known to the registry.
	ErrNotFound = errors.New("registry: task not found")

	// ErrConflict means a submission reused a task_id that is already
	// queued or processing.
	ErrConflict = errors.New("registry: task already queued or processing")

	// ErrInvalidTransition means a terminal transition was requested with
	// a value that does not match the task's existing terminal state.
	ErrInvalidTransition = errors.New("registry: invalid state transition")

	// ErrCapacity means the pool is at capacity (current_queue_depth +
	// processing_count >= capacity) and the submission was rejected
	// (spec.md §4.5, §6 "429 pool_full").
	ErrCapacity = errors.New("registry: pool at capacity")
)
