package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/emeka/bulksms-back/internal/domain"
)

func TestLocalQueueRoundTrip(t *testing.T) {
	q := NewLocalQueue(4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Enqueue(ctx, domain.DispatchTask{JobID: "job-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	received := make(chan domain.DispatchTask, 1)
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, task domain.DispatchTask) error {
			received <- task
			return nil
		})
	}()

	select {
	case task := <-received:
		if task.JobID != "job-1" {
			t.Fatalf("unexpected task: %+v", task)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for task")
	}
}

func TestLocalQueueBackpressure(t *testing.T) {
	q := NewLocalQueue(1, zerolog.Nop())
	ctx := context.Background()

	if err := q.Enqueue(ctx, domain.DispatchTask{JobID: "job-1"}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	err := q.Enqueue(ctx, domain.DispatchTask{JobID: "job-2"})
	if !errors.Is(err, ErrQueueBackpressure) {
		t.Fatalf("expected ErrQueueBackpressure, got %v", err)
	}
	if q.Depth() != 1 {
		t.Fatalf("expected depth 1, got %d", q.Depth())
	}
}

func TestLocalQueueEnqueueHonorsCanceledContext(t *testing.T) {
	q := NewLocalQueue(4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, domain.DispatchTask{JobID: "job-1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLocalQueueConsumeStopsOnCancel(t *testing.T) {
	q := NewLocalQueue(4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, func(context.Context, domain.DispatchTask) error { return nil })
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("consume did not stop after cancel")
	}
}

func TestLocalQueueDropsFailedTasks(t *testing.T) {
	q := NewLocalQueue(4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"job-1", "job-2"} {
		if err := q.Enqueue(ctx, domain.DispatchTask{JobID: id}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	seen := make(chan string, 4)
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, task domain.DispatchTask) error {
			seen <- task.JobID
			if task.JobID == "job-1" {
				return errors.New("handler failure")
			}
			return nil
		})
	}()

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case id := <-seen:
			got = append(got, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, saw %v", got)
		}
	}
	if got[0] != "job-1" || got[1] != "job-2" {
		t.Fatalf("expected both tasks delivered exactly once in order, got %v", got)
	}

	select {
	case id := <-seen:
		t.Fatalf("unexpected redelivery of %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}
