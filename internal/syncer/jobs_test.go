package syncer

import (
	"errors"
	"testing"
	"time"
)

func TestQueueEnqueueAfterStop(t *testing.T) {
	q := NewQueue(&Service{}, 1, time.Minute)
	q.Start()
	q.Stop()

	if _, err := q.Enqueue("u1", false); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}

	// Stop is safe to call twice.
	q.Stop()
}

func TestQueueEnqueueFullBuffer(t *testing.T) {
	// Workers never started: the channel buffer is the only capacity.
	q := NewQueue(&Service{}, 1, time.Minute)

	for i := 0; i < cap(q.ch); i++ {
		job, err := q.Enqueue("u1", false)
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		if job.Status != JobPending {
			t.Fatalf("enqueue %d: expected pending job, got %+v", i, job)
		}
	}

	if _, err := q.Enqueue("u1", false); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("a full buffer must reject instead of blocking, got %v", err)
	}
}

func TestQueueGetJobSnapshot(t *testing.T) {
	q := NewQueue(&Service{}, 1, time.Minute)

	job, err := q.Enqueue("u1", true)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got := q.GetJob(job.ID)
	if got == nil || got.UserID != "u1" || !got.Force {
		t.Fatalf("unexpected job: %+v", got)
	}
	if q.GetJob("nope") != nil {
		t.Fatal("unknown job id must return nil")
	}
}
