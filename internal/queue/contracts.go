package queue

import (
	"context"

	"github.com/emeka/bulksms-back/internal/domain"
)

// Producer sends dispatch tasks to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, task domain.DispatchTask) error
}

// Consumer receives dispatch tasks and executes handlers.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.DispatchTask) error) error
}
