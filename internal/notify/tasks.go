package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/storefront/internal/events"
)

// TypeOrderPlaced is the asynq task type for order confirmation side effects.
const TypeOrderPlaced = "order:placed"

// OrderPlacedPayload mirrors the order.placed event payload.
type OrderPlacedPayload struct {
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	ItemCount int    `json:"itemCount"`
	Total     string `json:"total"`
	Currency  string `json:"currency"`
}

// TaskEnqueuer is the subset of *asynq.Client used to publish tasks.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer turns order.placed events into asynq tasks. It implements events.Notifier.
type Enqueuer struct {
	Client    TaskEnqueuer
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

// NewOrderPlacedTask wraps an event payload in a task. The order id doubles as task id so a
// repeated event never sends a second email.
func NewOrderPlacedTask(orderID string, payload json.RawMessage, opts ...asynq.Option) *asynq.Task {
	opts = append([]asynq.Option{asynq.TaskID(TypeOrderPlaced + ":" + orderID)}, opts...)
	return asynq.NewTask(TypeOrderPlaced, payload, opts...)
}

// Notify implements events.Notifier.
func (e Enqueuer) Notify(ctx context.Context, event events.Event) error {
	if event.Topic != events.TopicOrderPlaced || e.Client == nil {
		return nil
	}
	var opts []asynq.Option
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	if e.Retention > 0 {
		opts = append(opts, asynq.Retention(e.Retention))
	}
	_, err := e.Client.EnqueueContext(ctx, NewOrderPlacedTask(event.AggregateID, event.Payload, opts...))
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue %s: %w", TypeOrderPlaced, err)
	}
	return nil
}

// NewServeMux routes worker tasks to their handlers.
func NewServeMux(email OrderEmailHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeOrderPlaced, email)
	return mux
}
