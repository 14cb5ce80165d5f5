// Package progress implements the Progress Stream (C9): an in-memory
// fan-out of a task's live stderr progress lines to zero or more
// subscribers. It is pure pub-sub — the actual SSE wire writing lives in
// internal/httpapi, grounded in the teacher's hand-rolled
// flush-per-event technique (see DESIGN.md for why the third-party
// go-sse module is not wired in here).
package progress

import "sync"

// subscriberBuffer is how many unread lines a slow subscriber can lag by
// before new lines are dropped for it. The progress stream is a
// best-effort operational aid, never required for correctness (SPEC_FULL.md §2),
// so a slow HTTP client must never block the worker.
const subscriberBuffer = 64

// Hub fans out progress lines per task id to any number of subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan string]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan string]struct{})}
}

// Subscribe registers a new listener for taskID's progress lines. The
// returned channel is closed by Close or Unsubscribe; callers must drain
// it until closed to avoid leaking the registration.
func (h *Hub) Subscribe(taskID string) (ch <-chan string, unsubscribe func()) {
	c := make(chan string, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[taskID]
	if !ok {
		set = make(map[chan string]struct{})
		h.subs[taskID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	return c, func() { h.unsubscribe(taskID, c) }
}

func (h *Hub) unsubscribe(taskID string, c chan string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[taskID]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		delete(set, c)
		close(c)
	}
	if len(set) == 0 {
		delete(h.subs, taskID)
	}
}

// Publish delivers line to every current subscriber of taskID. A
// subscriber whose buffer is full misses the line rather than blocking
// the publisher.
func (h *Hub) Publish(taskID, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs[taskID] {
		select {
		case c <- line:
		default:
		}
	}
}

// Close ends the stream for taskID, closing every subscriber channel.
// The worker calls this once a task reaches a terminal state.
func (h *Hub) Close(taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs[taskID] {
		close(c)
	}
	delete(h.subs, taskID)
}
