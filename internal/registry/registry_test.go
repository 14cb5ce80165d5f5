package registry

import (
	"testing"
	"time"

	"github.com/finchlake/transcribeq/internal/store"
)

func TestAdmitAndClaimFIFO(t *testing.T) {
	r := New(10)
	now := time.Now()

	if _, err := r.Admit("A", "small", "/up/A", now); err != nil {
		t.Fatalf("admit A: %v", err)
	}
	if _, err := r.Admit("B", "small", "/up/B", now); err != nil {
		t.Fatalf("admit B: %v", err)
	}

	first, ok := r.ClaimNext(now)
	if !ok || first.ID != "A" {
		t.Fatalf("expected to claim A first, got %+v ok=%v", first, ok)
	}
	if first.State != Processing {
		t.Fatalf("expected Processing, got %s", first.State)
	}

	// B must not have been promoted to PROCESSING while A holds the slot.
	statusB, err := r.Status("B")
	if err != nil {
		t.Fatalf("status B: %v", err)
	}
	if statusB.State != Queued {
		t.Fatalf("expected B still QUEUED, got %s", statusB.State)
	}
}

func TestAdmitDuplicateNonTerminalConflicts(t *testing.T) {
	r := New(10)
	now := time.Now()
	if _, err := r.Admit("T3", "small", "/up/T3", now); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := r.Admit("T3", "small", "/up/T3-2", now); err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAdmitReplacesTerminal(t *testing.T) {
	r := New(10)
	now := time.Now()
	r.Admit("T3", "small", "/up/T3", now)
	task, _ := r.ClaimNext(now)
	if err := r.Complete(task.ID, store.ResultDescriptor{Path: "/r/T3.srt"}, now); err != nil {
		t.Fatalf("complete: %v", err)
	}

	evicted, err := r.Admit("T3", "small", "/up/T3-new", now)
	if err != nil {
		t.Fatalf("re-admit: %v", err)
	}
	if evicted == nil || evicted.Result == nil || evicted.Result.Path != "/r/T3.srt" {
		t.Fatalf("expected evicted record with prior result, got %+v", evicted)
	}

	st, _ := r.Status("T3")
	if st.State != Queued {
		t.Fatalf("expected re-admitted task to be QUEUED, got %s", st.State)
	}
}

func TestPoolViewIsFull(t *testing.T) {
	r := New(1)
	now := time.Now()
	view := r.PoolView()
	if view.IsFull {
		t.Fatalf("expected empty pool not full")
	}

	r.Admit("T1", "small", "/up/T1", now)
	view = r.PoolView()
	if !view.IsFull {
		t.Fatalf("expected pool full at capacity 1 with one queued task")
	}
}

func TestAdmitRejectsAtCapacity(t *testing.T) {
	r := New(1)
	now := time.Now()
	if _, err := r.Admit("T1", "small", "/up/T1", now); err != nil {
		t.Fatalf("admit T1: %v", err)
	}

	if _, err := r.Admit("T2", "small", "/up/T2", now); err != ErrCapacity {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
	if _, err := r.Status("T2"); err != ErrNotFound {
		t.Fatalf("expected T2 never admitted, got %v", err)
	}
}

func TestAdmitReplaceTerminalNotPenalizedByOwnSlot(t *testing.T) {
	r := New(1)
	now := time.Now()
	r.Admit("T1", "small", "/up/T1", now)
	task, _ := r.ClaimNext(now)
	if err := r.Complete(task.ID, store.ResultDescriptor{Path: "/r/T1.srt"}, now); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// T1 is now terminal and holds no queue/processing slot, so capacity 1
	// must still allow it to be replaced even though the pool "looks" full
	// from a naive count of all known records.
	if _, err := r.Admit("T1", "small", "/up/T1-new", now); err != nil {
		t.Fatalf("expected re-admit under capacity, got %v", err)
	}
	st, _ := r.Status("T1")
	if st.State != Queued {
		t.Fatalf("expected re-admitted task QUEUED, got %s", st.State)
	}
}

func TestCompleteIdempotent(t *testing.T) {
	r := New(10)
	now := time.Now()
	r.Admit("T1", "small", "/up/T1", now)
	task, _ := r.ClaimNext(now)

	desc := store.ResultDescriptor{Path: "/r/T1.srt"}
	if err := r.Complete(task.ID, desc, now); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if err := r.Complete(task.ID, desc, now); err != nil {
		t.Fatalf("second complete should be idempotent no-op, got %v", err)
	}

	if err := r.Fail(task.ID, TaskError{Code: "internal"}, now); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition failing a completed task, got %v", err)
	}
}

func TestFailIdempotent(t *testing.T) {
	r := New(10)
	now := time.Now()
	r.Admit("T1", "small", "/up/T1", now)
	task, _ := r.ClaimNext(now)

	taskErr := TaskError{Code: "bundle.auth", Message: "bad password"}
	if err := r.Fail(task.ID, taskErr, now); err != nil {
		t.Fatalf("first fail: %v", err)
	}
	if err := r.Fail(task.ID, taskErr, now); err != nil {
		t.Fatalf("second fail should be idempotent no-op, got %v", err)
	}
}

func TestCancelQueuedTask(t *testing.T) {
	r := New(10)
	now := time.Now()
	r.Admit("T4", "small", "/up/T4", now)
	r.Admit("T5", "small", "/up/T5", now)
	r.ClaimNext(now) // claims T4, leaving worker "busy"

	if err := r.Cancel("T5", now); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	st, _ := r.Status("T5")
	if st.State != Cancelled {
		t.Fatalf("expected CANCELLED, got %s", st.State)
	}

	// T5 must no longer be claimable.
	next, ok := r.ClaimNext(now)
	if ok {
		t.Fatalf("expected no claimable task, got %+v", next)
	}
}

func TestCancelProcessingFlagsCooperatively(t *testing.T) {
	r := New(10)
	now := time.Now()
	r.Admit("T1", "small", "/up/T1", now)
	task, _ := r.ClaimNext(now)

	if err := r.Cancel(task.ID, now); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	st, _ := r.Status(task.ID)
	if st.State != Processing {
		t.Fatalf("expected state to remain PROCESSING, got %s", st.State)
	}
	if !r.IsCancelRequested(task.ID) {
		t.Fatalf("expected cancel to be flagged")
	}
}

func TestEvictOnlyTerminal(t *testing.T) {
	r := New(10)
	now := time.Now()
	r.Admit("T1", "small", "/up/T1", now)

	if _, ok := r.Evict("T1"); ok {
		t.Fatalf("expected Evict to refuse a QUEUED task")
	}

	task, _ := r.ClaimNext(now)
	r.Complete(task.ID, store.ResultDescriptor{Path: "/r/T1.srt"}, now)

	evicted, ok := r.Evict("T1")
	if !ok || evicted.ID != "T1" {
		t.Fatalf("expected successful eviction, got %+v ok=%v", evicted, ok)
	}
	if _, err := r.Status("T1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after eviction, got %v", err)
	}
}

func TestMonotonicStateNeverRegresses(t *testing.T) {
	r := New(10)
	now := time.Now()
	r.Admit("T1", "small", "/up/T1", now)

	seen := []State{Queued}
	task, _ := r.ClaimNext(now)
	seen = append(seen, task.State)
	r.Complete(task.ID, store.ResultDescriptor{Path: "/r/T1.srt"}, now)
	st, _ := r.Status("T1")
	seen = append(seen, st.State)

	rank := map[State]int{Queued: 0, Processing: 1, Completed: 2, Failed: 2, Cancelled: 2}
	for i := 1; i < len(seen); i++ {
		if rank[seen[i]] < rank[seen[i-1]] {
			t.Fatalf("state regressed: %v", seen)
		}
	}
}
