package feed

import (
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueueCoalescesRepeatUpdates(t *testing.T) {
	q := newDispatchQueue(8, testLogger())

	q.enqueue("mkt-1")
	q.enqueue("mkt-1")
	q.enqueue("mkt-1")
	q.enqueue("mkt-2")

	if got := q.len(); got != 2 {
		t.Fatalf("len = %d, want 2", got)
	}

	first, _ := q.pop()
	second, _ := q.pop()
	if first != "mkt-1" || second != "mkt-2" {
		t.Errorf("pop order = %q, %q; want mkt-1, mkt-2", first, second)
	}
	if _, ok := q.pop(); ok {
		t.Error("queue should be empty")
	}
}

func TestQueueDropsWhenSaturated(t *testing.T) {
	q := newDispatchQueue(2, testLogger())

	q.enqueue("a")
	q.enqueue("b")
	q.enqueue("c") // dropped

	if got := q.len(); got != 2 {
		t.Fatalf("len = %d, want 2", got)
	}
	// An update for an already-queued market still coalesces at capacity.
	q.enqueue("a")
	if got := q.len(); got != 2 {
		t.Fatalf("len after coalesce = %d, want 2", got)
	}
}

func TestQueueForgetDiscardsPendingWork(t *testing.T) {
	q := newDispatchQueue(8, testLogger())

	q.enqueue("gone")
	q.enqueue("kept")
	q.forget("gone")

	got, ok := q.pop()
	if !ok || got != "kept" {
		t.Fatalf("pop = %q, %v; want kept", got, ok)
	}
	if _, ok := q.pop(); ok {
		t.Error("forgotten market should not be popped")
	}
}

func TestQueueWakeSignal(t *testing.T) {
	q := newDispatchQueue(8, testLogger())

	q.enqueue("x")
	select {
	case <-q.wake:
	default:
		t.Fatal("enqueue should signal wake")
	}
}
