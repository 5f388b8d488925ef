package services

import (
	"context"

	"github.com/Ahmed3117/silverbook/internal/core/jobs"
)

// FulfillmentRetryHandler replays failed Khazenly handoffs from the job
// queue.
type FulfillmentRetryHandler struct {
	orders *OrderService
}

func NewFulfillmentRetryHandler(orders *OrderService) *FulfillmentRetryHandler {
	return &FulfillmentRetryHandler{orders: orders}
}

func (h *FulfillmentRetryHandler) Type() string {
	return jobs.TypeFulfillmentRetry
}

func (h *FulfillmentRetryHandler) Handle(ctx context.Context, job *jobs.Job) error {
	return h.orders.RetryFulfillment(ctx, job.OrderID)
}
