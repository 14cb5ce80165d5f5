// Package registry implements the Task Registry (C4) and the Admission &
// Queue rule (C5), folded into one mutex-guarded structure per
// SPEC_FULL.md §4.5: the admission predicate reads directly off the
// Registry's own queue/processing counters, so a separate struct would
// only add indirection around the same lock.
package registry

import (
	"sync"
	"time"

	"github.com/finchlake/transcribeq/internal/store"
)

// State is one of the Task lifecycle states defined in spec.md §3.
type State string

const (
	Queued     State = "QUEUED"
	Processing State = "PROCESSING"
	Completed  State = "COMPLETED"
	Failed     State = "FAILED"
	Cancelled  State = "CANCELLED"
)

func isTerminal(s State) bool {
	return s == Completed || s == Failed || s == Cancelled
}

// TaskError is the machine-readable/human error pair attached to a failed
// task (spec.md §7).
type TaskError struct {
	Code    string
	Message string
}

// Task is a snapshot of one task's lifecycle state. Values returned from
// the Registry are copies; mutating them has no effect on registry state.
type Task struct {
	ID         string
	Model      string
	BundlePath string
	WorkDir    string
	State      State
	SubmittedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Err         *TaskError
	Result      *store.ResultDescriptor

	// CancelRequested is set when a DELETE arrives for a task that is
	// already PROCESSING; the worker polls it cooperatively (SPEC_FULL.md §4.6).
	CancelRequested bool

	// Revision increments on every transition. It is not part of the
	// state machine itself, and the progress stream does not read it.
	Revision int
}

// PoolStatus is the derived admission view (spec.md §3).
type PoolStatus struct {
	CurrentQueueDepth int
	ProcessingCount   int
	Capacity          int
	IsFull            bool
}

// Registry holds the authoritative state of every known task plus the
// FIFO order of queued ids. All mutations are serialized under mu;
// readers get consistent snapshots. No method performs I/O.
type Registry struct {
	mu       sync.Mutex
	tasks    map[string]*Task
	queue    []string
	capacity int
	wake     chan struct{}
}

// New creates a Registry admitting at most capacity concurrently
// non-terminal tasks (queued + processing).
func New(capacity int) *Registry {
	return &Registry{
		tasks:    make(map[string]*Task),
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

// Wake returns the channel the Worker Loop selects on to learn that a new
// task may be available without busy-waiting (spec.md §4.6).
func (r *Registry) Wake() <-chan struct{} {
	return r.wake
}

func (r *Registry) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Registry) processingCount() int {
	count := 0
	for _, t := range r.tasks {
		if t.State == Processing {
			count++
		}
	}
	return count
}

// PoolView returns the derived Pool Status (spec.md §3).
func (r *Registry) PoolView() PoolStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	depth := len(r.queue)
	processing := r.processingCount()
	return PoolStatus{
		CurrentQueueDepth: depth,
		ProcessingCount:   processing,
		Capacity:          r.capacity,
		IsFull:            depth+processing >= r.capacity,
	}
}

// Admit accepts a new submission. If task_id already exists and is
// terminal, the old record is evicted and returned so the caller can
// clean up its artifacts before the new one is queued (spec.md §4.4). A
// task_id that is QUEUED or PROCESSING yields ErrConflict. Capacity is
// enforced here, under the same lock as the conflict check and the
// append, so that the check-then-admit sequence in spec.md §4.5 ("a new
// submission is accepted only if current_queue_depth + processing_count
// < capacity after a synthetic increment") can never race with a
// concurrent Admit or ClaimNext: current_queue_depth + processing_count
// already excludes any terminal task being replaced, so a resubmission of
// a completed/failed/cancelled task_id is judged solely against the live
// (queued+processing) population, never penalized by its own prior
// terminal record. The capacity check runs before that record is evicted,
// so a rejected-for-capacity resubmission leaves the existing terminal
// task (and its result) untouched rather than destroying it for nothing.
func (r *Registry) Admit(id, model, bundlePath string, now time.Time) (evicted *Task, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tasks[id]; ok && !isTerminal(existing.State) {
		return nil, ErrConflict
	}

	if len(r.queue)+r.processingCount() >= r.capacity {
		return nil, ErrCapacity
	}

	if existing, ok := r.tasks[id]; ok {
		cp := *existing
		evicted = &cp
		delete(r.tasks, id)
	}

	r.tasks[id] = &Task{
		ID:          id,
		Model:       model,
		BundlePath:  bundlePath,
		State:       Queued,
		SubmittedAt: now,
	}
	r.queue = append(r.queue, id)
	r.notify()

	return evicted, nil
}

// ClaimNext pops the head of the queue and marks it PROCESSING. It is
// non-blocking; callers wait on Wake() when it returns false.
func (r *Registry) ClaimNext(now time.Time) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queue) == 0 {
		return nil, false
	}
	id := r.queue[0]
	r.queue = r.queue[1:]

	t, ok := r.tasks[id]
	if !ok {
		// Evicted between enqueue and claim (shouldn't happen given the
		// single-writer rule, but never block the worker on it).
		return nil, false
	}

	t.State = Processing
	t.StartedAt = timePtr(now)
	t.Revision++

	cp := *t
	return &cp, true
}

// SetWorkDir records the working directory a claimed task is using.
func (r *Registry) SetWorkDir(id, workDir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		t.WorkDir = workDir
	}
}

// Complete transitions id to COMPLETED. Idempotent if id is already
// COMPLETED; ErrInvalidTransition if terminal in a different state.
func (r *Registry) Complete(id string, desc store.ResultDescriptor, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.State == Completed {
		return nil
	}
	if isTerminal(t.State) {
		return ErrInvalidTransition
	}

	t.State = Completed
	t.FinishedAt = timePtr(now)
	d := desc
	t.Result = &d
	t.Revision++
	return nil
}

// Fail transitions id to FAILED carrying taskErr. Idempotent if id is
// already FAILED with the same code; ErrInvalidTransition if terminal in
// a different state.
func (r *Registry) Fail(id string, taskErr TaskError, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.State == Failed && t.Err != nil && t.Err.Code == taskErr.Code {
		return nil
	}
	if isTerminal(t.State) {
		return ErrInvalidTransition
	}

	t.State = Failed
	t.FinishedAt = timePtr(now)
	e := taskErr
	t.Err = &e
	t.Revision++
	return nil
}

// Cancel requests cancellation of a non-terminal task. A QUEUED task
// transitions straight to CANCELLED and is removed from the queue. A
// PROCESSING task is flagged for cooperative cancellation (it can only
// ever resolve to FAILED or COMPLETED per the state machine in spec.md
// §3 — CANCELLED is reachable from QUEUED only). Calling Cancel on an
// already-terminal task is a no-op (idempotent); ErrNotFound if unknown.
func (r *Registry) Cancel(id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return ErrNotFound
	}

	switch t.State {
	case Queued:
		for i, qid := range r.queue {
			if qid == id {
				r.queue = append(r.queue[:i], r.queue[i+1:]...)
				break
			}
		}
		t.State = Cancelled
		t.FinishedAt = timePtr(now)
		t.Revision++
	case Processing:
		t.CancelRequested = true
	default:
		// terminal: idempotent no-op
	}
	return nil
}

// IsCancelRequested reports whether a processing task has a pending
// cancellation the worker should act on.
func (r *Registry) IsCancelRequested(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	return ok && t.CancelRequested
}

// Evict unconditionally removes a terminal task's record, returning the
// removed copy so the caller can clean up its artifacts (full eviction
// on DELETE /tasks/{id} for an already-terminal task, spec.md §4.7).
// Returns false if the task is unknown or not yet terminal.
func (r *Registry) Evict(id string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || !isTerminal(t.State) {
		return nil, false
	}
	cp := *t
	delete(r.tasks, id)
	return &cp, true
}

// ClearResult removes a COMPLETED task's result descriptor, evicting the
// whole record (a COMPLETED task with no result descriptor would violate
// the §3 invariant that completed tasks always have a readable result).
// Returns false if the task is unknown or not COMPLETED.
func (r *Registry) ClearResult(id string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.State != Completed {
		return nil, false
	}
	cp := *t
	delete(r.tasks, id)
	return &cp, true
}

// Status returns a snapshot of one task.
func (r *Registry) Status(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return *t, nil
}

// ExpireResult drops the result descriptor for a completed task whose
// retention window has passed, used by the periodic sweeper
// (SPEC_FULL.md §4.6). It evicts the whole record, same as ClearResult.
func (r *Registry) ExpireResult(id string) {
	r.ClearResult(id)
}

func timePtr(t time.Time) *time.Time { return &t }
