package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/evoqwell/evoqsite/internal/store"
)

// TypeOrderConfirmation is the asynq task type for post-checkout email.
const TypeOrderConfirmation = "email:order_confirmation"

type orderConfirmationPayload struct {
	OrderNumber string `json:"orderNumber"`
}

// NewOrderConfirmationTask builds the asynq task for an order number.
func NewOrderConfirmationTask(orderNumber string) (*asynq.Task, error) {
	payload, err := json.Marshal(orderConfirmationPayload{OrderNumber: orderNumber})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOrderConfirmation, payload,
		asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// Enqueuer schedules notification tasks on the shared asynq client.
type Enqueuer struct {
	Client *asynq.Client
}

// EnqueueOrderConfirmation schedules the confirmation email for an order.
func (e Enqueuer) EnqueueOrderConfirmation(ctx context.Context, orderNumber string) error {
	if e.Client == nil {
		return nil
	}
	task, err := NewOrderConfirmationTask(orderNumber)
	if err != nil {
		return err
	}
	_, err = e.Client.EnqueueContext(ctx, task)
	return err
}

// orderGetter loads orders for the email worker.
type orderGetter interface {
	GetOrderByNumber(ctx context.Context, number string) (store.Order, error)
}

// OrderConfirmationHandler processes confirmation email tasks in the worker.
type OrderConfirmationHandler struct {
	Store  orderGetter
	Mailer OrderMailer
}

// ProcessTask implements asynq.Handler.
func (h OrderConfirmationHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload orderConfirmationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode confirmation payload: %v: %w", err, asynq.SkipRetry)
	}
	o, err := h.Store.GetOrderByNumber(ctx, payload.OrderNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The order vanished; retrying will not bring it back.
			return fmt.Errorf("order %s not found: %w", payload.OrderNumber, asynq.SkipRetry)
		}
		return err
	}
	return h.Mailer.SendConfirmation(o)
}
