package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Ahmed3117/silverbook/internal/core/fulfillment"
	"github.com/Ahmed3117/silverbook/internal/core/jobs"
	"github.com/Ahmed3117/silverbook/internal/core/notification"
	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/Ahmed3117/silverbook/internal/repositories"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidStatus    = errors.New("invalid order status")
	ErrEmptyOrder       = errors.New("order has no lines")
	ErrOrderNumberTaken = errors.New("could not allocate a unique order number")
	ErrMissingAddress   = errors.New("order has no shipping address")
)

const (
	orderNumberLength        = 20
	orderNumberMaxAttempts   = 5
	fulfillmentQueueName     = "fulfillment"
	fulfillmentRetryAttempts = 5
)

// FulfillmentQueue schedules fulfillment retries. Satisfied by jobs.Queue.
type FulfillmentQueue interface {
	Enqueue(ctx context.Context, queue, jobType string, orderID uuid.UUID, payload datatypes.JSON, maxRetries int) (*jobs.Job, error)
	HasPending(ctx context.Context, orderID uuid.UUID, jobType string) (bool, error)
}

// LineInput is one requested product line.
type LineInput struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Size      string    `json:"size"`
	Color     string    `json:"color"`
}

// AddressInput is the shipping address of a new order.
type AddressInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	Government string `json:"government"`
	City       string `json:"city"`
	PayMethod  string `json:"pay_method"`
}

// CreateOrderInput creates an order. Status defaults to initiated; Paid and a
// non-default Status are only set through trusted (admin) callers.
type CreateOrderInput struct {
	UserID  uuid.UUID          `json:"user_id"`
	Lines   []LineInput        `json:"lines"`
	Address *AddressInput      `json:"address,omitempty"`
	Status  models.OrderStatus `json:"status,omitempty"`
	Paid    bool               `json:"paid,omitempty"`
}

// TransitionInput changes an order's status and/or paid flag. Nil fields are
// left untouched.
type TransitionInput struct {
	Status *models.OrderStatus `json:"status,omitempty"`
	Paid   *bool               `json:"paid,omitempty"`
}

// OrderService is the order state machine. Every status or paid change goes
// through ApplyTransition so the side effects (status log, line propagation,
// price snapshots, inventory finalization and restoration, gift re-evaluation,
// fulfillment handoff, stock problem detection) always run together.
type OrderService struct {
	tx          repositories.TxManager
	orders      repositories.OrderRepo
	inventory   repositories.InventoryRepo
	statusLog   repositories.StatusLogRepo
	prices      *PriceService
	fulfillment fulfillment.Client
	notifier    notification.Sender
	retryQueue  FulfillmentQueue

	now func() time.Time
}

func NewOrderService(
	tx repositories.TxManager,
	orders repositories.OrderRepo,
	inventory repositories.InventoryRepo,
	statusLog repositories.StatusLogRepo,
	prices *PriceService,
	fulfillmentClient fulfillment.Client,
	notifier notification.Sender,
	retryQueue FulfillmentQueue,
) *OrderService {
	return &OrderService{
		tx:          tx,
		orders:      orders,
		inventory:   inventory,
		statusLog:   statusLog,
		prices:      prices,
		fulfillment: fulfillmentClient,
		notifier:    notifier,
		retryQueue:  retryQueue,
		now:         time.Now,
	}
}

// Create builds and persists a new order. The initial status is logged, line
// statuses mirror the order's, and when the order starts out paid or
// delivered the same side effects run as for a transition into that state.
func (s *OrderService) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if len(input.Lines) == 0 {
		return nil, ErrEmptyOrder
	}
	status := input.Status
	if status == "" {
		status = models.StatusInitiated
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	orderNumber, err := s.allocateOrderNumber(ctx)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:      input.UserID,
		OrderNumber: orderNumber,
		Status:      status,
		Paid:        input.Paid,
	}
	for _, l := range input.Lines {
		quantity := l.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		order.Lines = append(order.Lines, models.OrderLine{
			UserID:    input.UserID,
			ProductID: l.ProductID,
			Quantity:  quantity,
			Size:      l.Size,
			Color:     l.Color,
			Status:    status,
		})
	}
	if input.Address != nil {
		order.Address = &models.OrderAddress{
			Name:       input.Address.Name,
			Email:      input.Address.Email,
			Phone:      input.Address.Phone,
			Address:    input.Address.Address,
			Government: input.Address.Government,
			City:       input.Address.City,
			PayMethod:  input.Address.PayMethod,
		}
	}

	err = s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		if err := orders.Create(ctx, order); err != nil {
			return err
		}
		if err := s.statusLog.WithTx(tx).Upsert(ctx, order.ID, status); err != nil {
			return err
		}
		if status == models.StatusPaid || status == models.StatusDelivered {
			if err := s.snapshotLinePrices(ctx, orders, order); err != nil {
				return err
			}
		}
		if !order.Paid && status != models.StatusDelivered {
			if err := s.reevaluateGift(ctx, orders, order); err != nil {
				return err
			}
		}
		if status == models.StatusDelivered {
			return s.inventory.WithTx(tx).Deduct(ctx, movementsFor(order.Lines))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if order.Paid {
		if err := s.onPaid(ctx, order); err != nil {
			return order, err
		}
	}
	return order, nil
}

// ApplyTransition is the single entry point for status and paid changes.
// Inventory effects run in one transaction with the order update, so a
// failed delivery finalization leaves both the order and the ledger
// untouched.
func (s *OrderService) ApplyTransition(ctx context.Context, orderID uuid.UUID, input TransitionInput) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	prevStatus := order.Status
	prevPaid := order.Paid

	newStatus := prevStatus
	if input.Status != nil {
		newStatus = *input.Status
		if !newStatus.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
		}
	}
	newPaid := prevPaid
	if input.Paid != nil {
		newPaid = *input.Paid
	}

	statusChanged := newStatus != prevStatus
	risingPaid := newPaid && !prevPaid
	if !statusChanged && newPaid == prevPaid {
		return order, nil
	}

	err = s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)

		order.Status = newStatus
		order.Paid = newPaid
		if err := orders.Save(ctx, order); err != nil {
			return err
		}

		if statusChanged {
			if err := s.statusLog.WithTx(tx).Upsert(ctx, order.ID, newStatus); err != nil {
				return err
			}
			if err := orders.UpdateLinesStatus(ctx, order.ID, newStatus); err != nil {
				return err
			}
			for i := range order.Lines {
				order.Lines[i].Status = newStatus
			}
		}

		if newStatus == models.StatusPaid || newStatus == models.StatusDelivered {
			if err := s.snapshotLinePrices(ctx, orders, order); err != nil {
				return err
			}
		}

		if !newPaid && newStatus != models.StatusDelivered {
			if err := s.reevaluateGift(ctx, orders, order); err != nil {
				return err
			}
		}

		inventory := s.inventory.WithTx(tx)
		if statusChanged && prevStatus == models.StatusDelivered && newStatus.Terminal() {
			// Delivered goods came out of the ledger; a cancel or refusal
			// puts them back. Variants whose rows were deleted are skipped.
			if err := inventory.Restore(ctx, movementsFor(order.Lines)); err != nil {
				return err
			}
		}
		if statusChanged && newStatus == models.StatusDelivered && prevStatus != models.StatusDelivered {
			if err := inventory.Deduct(ctx, movementsFor(order.Lines)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// A paid order moving past the paid status gets the payment
	// notification; the webhook path lands on paid itself and stays quiet.
	if statusChanged && order.Paid && order.Status != models.StatusPaid {
		s.notifyPaymentReceived(order)
	}

	if risingPaid {
		if err := s.onPaid(ctx, order); err != nil {
			return order, err
		}
	} else if order.Paid && !order.IsResolved {
		// Already-paid orders keep their shortfall report current until an
		// operator resolves it.
		if err := s.detectStockProblems(ctx, order); err != nil {
			log.Error().Err(err).
				Str("order_number", order.OrderNumber).
				Msg("stock problem detection failed")
		}
	}
	return order, nil
}

// MarkPaid records a confirmed payment, used by payment webhooks and the
// reconciliation sweep: the paid flag flips and the order moves into the paid
// status in one transition, so the status log and line statuses reflect the
// payment. Already-paid orders are a no-op so duplicate webhook deliveries
// stay harmless.
func (s *OrderService) MarkPaid(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Paid {
		return order, nil
	}
	paid := true
	status := models.StatusPaid
	return s.ApplyTransition(ctx, orderID, TransitionInput{Status: &status, Paid: &paid})
}

// onPaid runs the effects of the paid rising edge: hand the order to
// fulfillment and record any stock shortfall.
func (s *OrderService) onPaid(ctx context.Context, order *models.Order) error {
	fulfillErr := s.createFulfillmentOrder(ctx, order)

	if !order.IsResolved {
		if err := s.detectStockProblems(ctx, order); err != nil {
			log.Error().Err(err).
				Str("order_number", order.OrderNumber).
				Msg("stock problem detection failed")
		}
	}
	return fulfillErr
}

// createFulfillmentOrder creates the Khazenly order exactly once. Failures
// are queued for retry when the retry queue is configured, and always
// reported to the caller.
func (s *OrderService) createFulfillmentOrder(ctx context.Context, order *models.Order) error {
	if s.fulfillment == nil {
		return nil
	}
	if order.HasFulfillmentOrder() {
		return nil
	}
	if order.Address == nil {
		return ErrMissingAddress
	}

	result, err := s.fulfillment.CreateOrder(ctx, order)
	if err != nil {
		log.Error().Err(err).
			Str("order_number", order.OrderNumber).
			Msg("fulfillment order creation failed")
		s.enqueueFulfillmentRetry(ctx, order)
		return err
	}

	now := s.now()
	raw, err := marshalRaw(result.Raw)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{
		"khazenly_order_id":           result.OrderID,
		"khazenly_sales_order_number": result.SalesOrderNumber,
		"khazenly_data":               raw,
		"khazenly_created_at":         now,
		"is_shipped":                  true,
	}
	if err := s.orders.PatchFields(ctx, order.ID, fields); err != nil {
		return err
	}
	order.KhazenlyOrderID = result.OrderID
	order.KhazenlySalesOrderNumber = result.SalesOrderNumber
	order.KhazenlyData = raw
	order.KhazenlyCreatedAt = &now
	order.IsShipped = true

	log.Info().
		Str("order_number", order.OrderNumber).
		Str("khazenly_order_id", result.OrderID).
		Msg("fulfillment order created")
	return nil
}

func (s *OrderService) enqueueFulfillmentRetry(ctx context.Context, order *models.Order) {
	if s.retryQueue == nil {
		return
	}
	pending, err := s.retryQueue.HasPending(ctx, order.ID, jobs.TypeFulfillmentRetry)
	if err != nil {
		log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("retry queue check failed")
		return
	}
	if pending {
		return
	}
	if _, err := s.retryQueue.Enqueue(ctx, fulfillmentQueueName, jobs.TypeFulfillmentRetry,
		order.ID, nil, fulfillmentRetryAttempts); err != nil {
		log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("fulfillment retry enqueue failed")
		return
	}
	log.Info().Str("order_number", order.OrderNumber).Msg("fulfillment retry scheduled")
}

// RetryFulfillment re-attempts the Khazenly handoff for one order. Used by
// the job worker; already-fulfilled orders complete immediately.
func (s *OrderService) RetryFulfillment(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.HasFulfillmentOrder() {
		return nil
	}
	if s.fulfillment == nil {
		return nil
	}
	if order.Address == nil {
		return ErrMissingAddress
	}
	result, err := s.fulfillment.CreateOrder(ctx, order)
	if err != nil {
		return err
	}
	raw, err := marshalRaw(result.Raw)
	if err != nil {
		return err
	}
	now := s.now()
	return s.orders.PatchFields(ctx, order.ID, map[string]interface{}{
		"khazenly_order_id":           result.OrderID,
		"khazenly_sales_order_number": result.SalesOrderNumber,
		"khazenly_data":               raw,
		"khazenly_created_at":         now,
		"is_shipped":                  true,
	})
}

func marshalRaw(raw map[string]interface{}) (datatypes.JSON, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func (s *OrderService) notifyPaymentReceived(order *models.Order) {
	if s.notifier == nil || order.Address == nil || order.Address.Phone == "" {
		return
	}
	message := notification.PaymentReceivedMessage(order.Address.Name, order.OrderNumber)
	if err := s.notifier.SendSMS(order.Address.Phone, message); err != nil {
		log.Warn().Err(err).Str("order_number", order.OrderNumber).Msg("payment SMS failed")
	}
	s.notifier.SendWhatsApp(order.Address.Phone, message)
}

// detectStockProblems checks every line against the ledger and patches the
// problem flags directly, bypassing the transition pipeline. The reason
// precedence is: no availability record, out of stock, insufficient quantity.
// Clearing a previously flagged order marks it resolved, which stops further
// re-detection.
func (s *OrderService) detectStockProblems(ctx context.Context, order *models.Order) error {
	var problems []models.StockProblemItem
	for i := range order.Lines {
		line := &order.Lines[i]
		key := repositories.VariantKey{ProductID: line.ProductID, Size: line.Size, Color: line.Color}

		record, err := s.inventory.Get(ctx, key)
		var available int
		var reason string
		switch {
		case errors.Is(err, repositories.ErrRecordNotFound):
			reason = models.StockReasonNoRecord
		case err != nil:
			return err
		case record.Quantity == 0:
			reason = models.StockReasonOutOfStock
		case record.Quantity < line.Quantity:
			available = record.Quantity
			reason = models.StockReasonInsufficient
		default:
			continue
		}

		productName := ""
		if product, err := s.prices.pricing.GetProduct(ctx, line.ProductID); err == nil {
			productName = product.Name
		}
		problems = append(problems, models.StockProblemItem{
			LineID:            line.ID,
			ProductID:         line.ProductID,
			ProductName:       productName,
			Size:              line.Size,
			Color:             line.Color,
			RequiredQuantity:  line.Quantity,
			AvailableQuantity: available,
			Reason:            reason,
		})
	}

	if len(problems) == 0 {
		if !order.HasStockProblem {
			return nil
		}
		order.HasStockProblem = false
		order.StockProblemItems = nil
		order.IsResolved = true
		return s.orders.PatchFields(ctx, order.ID, map[string]interface{}{
			"has_stock_problem":   false,
			"stock_problem_items": nil,
			"is_resolved":         true,
		})
	}

	payload, err := json.Marshal(problems)
	if err != nil {
		return err
	}
	order.HasStockProblem = true
	order.StockProblemItems = payload
	order.IsResolved = false
	return s.orders.PatchFields(ctx, order.ID, map[string]interface{}{
		"has_stock_problem":   true,
		"stock_problem_items": datatypes.JSON(payload),
		"is_resolved":         false,
	})
}

// snapshotLinePrices freezes the prices of lines that have not been sold yet.
func (s *OrderService) snapshotLinePrices(ctx context.Context, orders repositories.OrderRepo, order *models.Order) error {
	now := s.now()
	for i := range order.Lines {
		line := &order.Lines[i]
		if line.DateSold != nil {
			continue
		}
		native, price, err := s.prices.LinePrice(ctx, line)
		if err != nil {
			return err
		}
		line.NativePriceAtSale = native
		line.PriceAtSale = price
		line.DateSold = &now
		if err := orders.SaveLine(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// reevaluateGift re-picks the best eligible gift for the current subtotal.
func (s *OrderService) reevaluateGift(ctx context.Context, orders repositories.OrderRepo, order *models.Order) error {
	subtotal, err := s.prices.Subtotal(ctx, order)
	if err != nil {
		return err
	}
	gift, err := s.prices.BestGift(ctx, subtotal)
	if err != nil {
		return err
	}

	var giftID *uuid.UUID
	if gift != nil {
		giftID = &gift.ID
	}
	if equalUUIDPtr(order.GiftID, giftID) {
		return nil
	}
	order.GiftID = giftID
	return orders.PatchFields(ctx, order.ID, map[string]interface{}{"gift_id": giftID})
}

func (s *OrderService) allocateOrderNumber(ctx context.Context) (string, error) {
	for attempt := 0; attempt < orderNumberMaxAttempts; attempt++ {
		candidate := randomDigits(orderNumberLength)
		exists, err := s.orders.OrderNumberExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrOrderNumberTaken
}

func movementsFor(lines []models.OrderLine) []repositories.Movement {
	movements := make([]repositories.Movement, 0, len(lines))
	for i := range lines {
		movements = append(movements, repositories.Movement{
			Key: repositories.VariantKey{
				ProductID: lines[i].ProductID,
				Size:      lines[i].Size,
				Color:     lines[i].Color,
			},
			Quantity: lines[i].Quantity,
		})
	}
	return movements
}

func randomDigits(n int) string {
	digits := make([]byte, n)
	for i := range digits {
		digits[i] = byte('0' + rand.Intn(10))
	}
	return string(digits)
}

func equalUUIDPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
