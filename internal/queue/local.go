package queue

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/emeka/bulksms-back/internal/domain"
)

var ErrQueueBackpressure = errors.New("queue backpressure: enqueue buffer is full")

// LocalQueue is an in-process dispatch queue backed by a buffered
// channel. Tasks are delivered at most once: there is no retry and no
// dead letter store, because a redelivered task could double-send
// messages that already reached the provider.
type LocalQueue struct {
	ch     chan domain.DispatchTask
	logger zerolog.Logger
}

func NewLocalQueue(bufferSize int, logger zerolog.Logger) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &LocalQueue{
		ch:     make(chan domain.DispatchTask, bufferSize),
		logger: logger,
	}
}

// Enqueue never blocks. A full buffer is backpressure the caller must
// surface to the client instead of stalling the request.
func (q *LocalQueue) Enqueue(ctx context.Context, task domain.DispatchTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- task:
		return nil
	default:
		return ErrQueueBackpressure
	}
}

// Consume delivers tasks to handler until ctx is canceled. A handler
// error drops the task; the worker records per-contact failures on the
// job itself, so redelivering here would only risk duplicate sends.
func (q *LocalQueue) Consume(ctx context.Context, handler func(context.Context, domain.DispatchTask) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-q.ch:
			if err := handler(ctx, task); err != nil {
				q.logger.Error().Err(err).Str("job_id", task.JobID).Msg("dispatch task failed")
			}
		}
	}
}

// Depth reports how many tasks are waiting in the buffer.
func (q *LocalQueue) Depth() int {
	return len(q.ch)
}
