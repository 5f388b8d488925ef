package services

import (
	"context"
	"time"

	"github.com/Ahmed3117/silverbook/internal/core/payment"
	"github.com/Ahmed3117/silverbook/internal/repositories"
	"github.com/rs/zerolog/log"
)

const reconcileBatchSize = 200

// ReconcileService sweeps unpaid orders that hold a gateway invoice and
// re-checks their payment status, catching payments whose webhook never
// arrived.
type ReconcileService struct {
	orders   repositories.OrderRepo
	payments *payment.Service
	machine  *OrderService
	now      func() time.Time
}

func NewReconcileService(orders repositories.OrderRepo, payments *payment.Service, machine *OrderService) *ReconcileService {
	return &ReconcileService{orders: orders, payments: payments, machine: machine, now: time.Now}
}

// Sweep checks one batch of unpaid invoiced orders. Gateway failures on one
// order never stop the sweep.
func (s *ReconcileService) Sweep(ctx context.Context) {
	orders, err := s.orders.ListUnpaidWithInvoice(ctx, reconcileBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("reconciliation sweep query failed")
		return
	}
	if len(orders) == 0 {
		return
	}

	var marked int
	for i := range orders {
		order := &orders[i]
		if s.payments.IsExpired(order, s.now()) {
			continue
		}
		result, err := s.payments.CheckStatus(ctx, order)
		if err != nil {
			log.Warn().Err(err).
				Str("order_number", order.OrderNumber).
				Msg("payment status check failed")
			continue
		}
		if result.PaymentStatus != payment.StatusPaid {
			continue
		}
		if _, err := s.machine.MarkPaid(ctx, order.ID); err != nil {
			log.Error().Err(err).
				Str("order_number", order.OrderNumber).
				Msg("marking reconciled order paid failed")
			continue
		}
		marked++
	}

	log.Info().
		Int("checked", len(orders)).
		Int("marked_paid", marked).
		Msg("payment reconciliation sweep finished")
}
