package memqueue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wagmirep/lahstats/internal/queue/memqueue"
)

func TestPushPopFIFO(t *testing.T) {
	t.Parallel()

	q := memqueue.New(8)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Push(ctx, id); err != nil {
			t.Fatalf("Push(%s): %v", id, err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		job, err := q.Pop(ctx, time.Second)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if job == nil {
			t.Fatal("Pop returned nil job with jobs pending")
		}
		if job.SessionID != want {
			t.Errorf("Pop session = %q, want %q", job.SessionID, want)
		}
	}
}

func TestPushFullQueue(t *testing.T) {
	t.Parallel()

	q := memqueue.New(1)
	ctx := context.Background()
	if err := q.Push(ctx, "s1"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := q.Push(ctx, "s2"); !errors.Is(err, memqueue.ErrFull) {
		t.Fatalf("Push on full queue = %v, want ErrFull", err)
	}

	// Draining frees the slot again.
	if _, err := q.Pop(ctx, time.Second); err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if err := q.Push(ctx, "s2"); err != nil {
		t.Fatalf("Push after drain: %v", err)
	}
}

func TestPopTimeout(t *testing.T) {
	t.Parallel()

	q := memqueue.New(1)
	start := time.Now()
	job, err := q.Pop(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if job != nil {
		t.Fatalf("Pop returned job %+v from empty queue", job)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Pop returned after %v, want at least the timeout", elapsed)
	}
}

func TestPopCancelled(t *testing.T) {
	t.Parallel()

	q := memqueue.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Pop(ctx, time.Minute); err == nil {
		t.Fatal("Pop with cancelled context: expected error, got nil")
	}
}

func TestFailRecordsDeadLetter(t *testing.T) {
	t.Parallel()

	q := memqueue.New(4)
	ctx := context.Background()
	if err := q.Push(ctx, "doomed"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	job, err := q.Pop(ctx, time.Second)
	if err != nil || job == nil {
		t.Fatalf("Pop: job=%v err=%v", job, err)
	}
	if err := q.Fail(ctx, job, "diarization unreachable"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	dead, err := q.DeadLetters(ctx)
	if err != nil {
		t.Fatalf("DeadLetters: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("DeadLetters len = %d, want 1", len(dead))
	}
	if dead[0].Job.SessionID != "doomed" || dead[0].Reason != "diarization unreachable" {
		t.Errorf("dead letter = %+v", dead[0])
	}
	if dead[0].FailedAt.IsZero() {
		t.Error("dead letter FailedAt is zero")
	}
}
