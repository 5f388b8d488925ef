package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Ahmed3117/silverbook/internal/core/jobs"
	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/Ahmed3117/silverbook/internal/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakeQueue struct {
	enqueued int
	pending  bool
}

func (q *fakeQueue) Enqueue(_ context.Context, _, _ string, _ uuid.UUID, _ datatypes.JSON, _ int) (*jobs.Job, error) {
	q.enqueued++
	q.pending = true
	return &jobs.Job{ID: uuid.New()}, nil
}

func (q *fakeQueue) HasPending(_ context.Context, _ uuid.UUID, _ string) (bool, error) {
	return q.pending, nil
}

type orderServiceFixture struct {
	svc       *OrderService
	orders    *fakeOrderRepo
	inventory *fakeInventoryRepo
	statusLog *fakeStatusLogRepo
	pricing   *fakePricingRepo
	shipper   *fakeFulfillmentClient
	notifier  *fakeNotifier
	queue     *fakeQueue
}

func newOrderServiceFixture() *orderServiceFixture {
	f := &orderServiceFixture{
		orders:    newFakeOrderRepo(),
		inventory: newFakeInventoryRepo(),
		statusLog: newFakeStatusLogRepo(),
		pricing:   newFakePricingRepo(),
		shipper:   &fakeFulfillmentClient{},
		notifier:  &fakeNotifier{},
		queue:     &fakeQueue{},
	}
	prices := newTestPriceService(f.pricing)
	f.svc = NewOrderService(fakeTxManager{}, f.orders, f.inventory, f.statusLog, prices, f.shipper, f.notifier, f.queue)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *orderServiceFixture) stock(product *models.Product, size string, quantity int) repositories.VariantKey {
	key := repositories.VariantKey{ProductID: product.ID, Size: size}
	f.inventory.records[key] = quantity
	return key
}

func (f *orderServiceFixture) createOrder(t *testing.T, input CreateOrderInput) *models.Order {
	t.Helper()
	order, err := f.svc.Create(context.Background(), input)
	require.NoError(t, err)
	return order
}

func lineInput(product *models.Product, quantity int, size string) LineInput {
	return LineInput{ProductID: product.ID, Quantity: quantity, Size: size}
}

func testAddress() *AddressInput {
	return &AddressInput{Name: "Ali", Phone: "01001234567", Government: "1", City: "Cairo", Address: "12 Main St"}
}

func TestCreateAllocatesOrderNumberAndSeedsLog(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 100)

	order := f.createOrder(t, CreateOrderInput{
		UserID: uuid.New(),
		Lines:  []LineInput{lineInput(product, 2, "M")},
	})

	assert.Len(t, order.OrderNumber, 20)
	for _, c := range order.OrderNumber {
		assert.True(t, c >= '0' && c <= '9')
	}
	assert.Equal(t, models.StatusInitiated, order.Status)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, models.StatusInitiated, order.Lines[0].Status)

	entries, err := f.statusLog.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusInitiated, entries[0].Status)
}

func TestCreateRejectsEmptyAndInvalid(t *testing.T) {
	f := newOrderServiceFixture()

	_, err := f.svc.Create(context.Background(), CreateOrderInput{UserID: uuid.New()})
	assert.ErrorIs(t, err, ErrEmptyOrder)

	product := addProduct(f.pricing, 100)
	_, err = f.svc.Create(context.Background(), CreateOrderInput{
		UserID: uuid.New(),
		Lines:  []LineInput{lineInput(product, 1, "")},
		Status: "xx",
	})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestStatusLogKeepsOneRowPerStatus(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 100)
	order := f.createOrder(t, CreateOrderInput{UserID: uuid.New(), Lines: []LineInput{lineInput(product, 1, "M")}})

	transition := func(status models.OrderStatus) {
		_, err := f.svc.ApplyTransition(context.Background(), order.ID, TransitionInput{Status: &status})
		require.NoError(t, err)
	}
	transition(models.StatusWaiting)
	transition(models.StatusBeingPrepared)
	transition(models.StatusWaiting) // revisit

	entries, err := f.statusLog.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 3) // i, w, bp - the second w refreshed the existing row
	assert.Equal(t, 4, f.statusLog.upserts)
}

func TestTransitionPropagatesStatusToLines(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 100)
	order := f.createOrder(t, CreateOrderInput{UserID: uuid.New(), Lines: []LineInput{lineInput(product, 1, "M"), lineInput(product, 2, "L")}})

	status := models.StatusWaiting
	updated, err := f.svc.ApplyTransition(context.Background(), order.ID, TransitionInput{Status: &status})
	require.NoError(t, err)
	for _, line := range updated.Lines {
		assert.Equal(t, models.StatusWaiting, line.Status)
	}
}

func TestDeliveryDeductsInventoryAndSnapshotsPrices(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 100)
	f.pricing.productDiscounts[product.ID] = 10
	key := f.stock(product, "M", 5)

	order := f.createOrder(t, CreateOrderInput{UserID: uuid.New(), Lines: []LineInput{lineInput(product, 2, "M")}})

	status := models.StatusDelivered
	updated, err := f.svc.ApplyTransition(context.Background(), order.ID, TransitionInput{Status: &status})
	require.NoError(t, err)

	assert.Equal(t, 3, f.inventory.records[key])
	require.Len(t, updated.Lines, 1)
	require.NotNil(t, updated.Lines[0].DateSold)
	assert.InDelta(t, 100, updated.Lines[0].NativePriceAtSale, 0.001)
	assert.InDelta(t, 90, updated.Lines[0].PriceAtSale, 0.001)
}

func TestDeliveryAbortsOnInsufficientStock(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 100)
	key := f.stock(product, "M", 2)

	order := f.createOrder(t, CreateOrderInput{UserID: uuid.New(), Lines: []LineInput{lineInput(product, 3, "M")}})

	status := models.StatusDelivered
	_, err := f.svc.ApplyTransition(context.Background(), order.ID, TransitionInput{Status: &status})
	assert.ErrorIs(t, err, repositories.ErrInsufficientStock)
	assert.Equal(t, 2, f.inventory.records[key], "failed finalization must leave the ledger untouched")
}

func TestCancelAfterDeliveryRestoresInventory(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 100)
	key := f.stock(product, "M", 5)

	order := f.createOrder(t, CreateOrderInput{
		UserID: uuid.New(),
		Lines:  []LineInput{lineInput(product, 2, "M")},
		Status: models.StatusDelivered,
	})
	assert.Equal(t, 3, f.inventory.records[key])

	status := models.StatusCanceled
	_, err := f.svc.ApplyTransition(context.Background(), order.ID, TransitionInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 5, f.inventory.records[key])
}

func TestRestoreSkipsRemovedVariants(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 100)
	key := f.stock(product, "M", 5)

	order := f.createOrder(t, CreateOrderInput{
		UserID: uuid.New(),
		Lines:  []LineInput{lineInput(product, 2, "M")},
		Status: models.StatusDelivered,
	})

	// the availability record disappears before the refusal
	delete(f.inventory.records, key)

	status := models.StatusRefused
	_, err := f.svc.ApplyTransition(context.Background(), order.ID, TransitionInput{Status: &status})
	require.NoError(t, err)
	_, exists := f.inventory.records[key]
	assert.False(t, exists)
}

func TestPaidRisingEdgeCreatesFulfillmentOnce(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 100)
	f.stock(product, "M", 10)

	order := f.createOrder(t, CreateOrderInput{
		UserID:  uuid.New(),
		Lines:   []LineInput{lineInput(product, 1, "M")},
		Address: testAddress(),
	})

	updated, err := f.svc.MarkPaid(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, updated.Paid)
	assert.Equal(t, 1, f.shipper.calls)
	assert.Equal(t, "KH-1", updated.KhazenlyOrderID)
	assert.Equal(t, "SO-"+updated.OrderNumber, updated.KhazenlySalesOrderNumber)
	assert.True(t, updated.IsShipped)

	// duplicate webhook delivery
	_, err = f.svc.MarkPaid(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.shipper.calls)
}

func TestMarkPaidMovesOrderIntoPaidStatus(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 100)
	f.stock(product, "M", 10)

	order := f.createOrder(t, CreateOrderInput{
		UserID:  uuid.New(),
		Lines:   []LineInput{lineInput(product, 1, "M")},
		Address: testAddress(),
	})
	require.Equal(t, models.StatusInitiated, order.Status)

	updated, err := f.svc.MarkPaid(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, updated.Paid)
	assert.Equal(t, models.StatusPaid, updated.Status)
	require.Len(t, updated.Lines, 1)
	assert.Equal(t, models.StatusPaid, updated.Lines[0].Status)
	require.NotNil(t, updated.Lines[0].DateSold, "entering paid snapshots line prices")

	entries, err := f.statusLog.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	statuses := make([]models.OrderStatus, 0, len(entries))
	for _, e := range entries {
		statuses = append(statuses, e.Status)
	}
	assert.Contains(t, statuses, models.StatusPaid)
}

func TestPaidSendsPaymentNotification(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 100)
	f.stock(product, "M", 10)

	order := f.createOrder(t, CreateOrderInput{
		UserID:  uuid.New(),
		Lines:   []LineInput{lineInput(product, 1, "M")},
		Address: testAddress(),
	})

	_, err := f.svc.MarkPaid(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, f.notifier.sms, "landing on paid itself sends nothing")

	status := models.StatusBeingPrepared
	_, err = f.svc.ApplyTransition(context.Background(), order.ID, TransitionInput{Status: &status})
	require.NoError(t, err)
	require.Len(t, f.notifier.sms, 1)
	assert.Contains(t, f.notifier.sms[0], order.OrderNumber)
	assert.Len(t, f.notifier.whatsapp, 1)
}

func TestFulfillmentFailurePropagatesAndSchedulesRetry(t *testing.T) {
	f := newOrderServiceFixture()
	f.shipper.err = errors.New("khazenly unavailable")
	product := addProduct(f.pricing, 100)
	f.stock(product, "M", 10)

	order := f.createOrder(t, CreateOrderInput{
		UserID:  uuid.New(),
		Lines:   []LineInput{lineInput(product, 1, "M")},
		Address: testAddress(),
	})

	updated, err := f.svc.MarkPaid(context.Background(), order.ID)
	require.Error(t, err)
	require.NotNil(t, updated)
	assert.True(t, updated.Paid, "the paid flag commits before fulfillment runs")
	assert.Equal(t, 1, f.queue.enqueued)

	// a second failure does not double-book the retry
	f.orders.orders[order.ID].Paid = false
	_, err = f.svc.MarkPaid(context.Background(), order.ID)
	require.Error(t, err)
	assert.Equal(t, 1, f.queue.enqueued)
}

func TestRetryFulfillmentIsIdempotent(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 100)

	order := f.createOrder(t, CreateOrderInput{
		UserID:  uuid.New(),
		Lines:   []LineInput{lineInput(product, 1, "M")},
		Address: testAddress(),
	})
	order.KhazenlyOrderID = "KH-9"

	require.NoError(t, f.svc.RetryFulfillment(context.Background(), order.ID))
	assert.Zero(t, f.shipper.calls)
}

func TestStockProblemReasonClassification(t *testing.T) {
	f := newOrderServiceFixture()
	missing := addProduct(f.pricing, 10)
	outOfStock := addProduct(f.pricing, 10)
	short := addProduct(f.pricing, 10)
	f.stock(outOfStock, "M", 0)
	f.stock(short, "M", 1)

	order := f.createOrder(t, CreateOrderInput{
		UserID: uuid.New(),
		Lines: []LineInput{
			lineInput(missing, 1, "M"),
			lineInput(outOfStock, 1, "M"),
			lineInput(short, 3, "M"),
		},
		Address: testAddress(),
	})

	updated, err := f.svc.MarkPaid(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, updated.HasStockProblem)
	assert.False(t, updated.IsResolved)

	var items []models.StockProblemItem
	require.NoError(t, json.Unmarshal(updated.StockProblemItems, &items))
	require.Len(t, items, 3)

	reasons := map[uuid.UUID]models.StockProblemItem{}
	for _, item := range items {
		reasons[item.ProductID] = item
	}
	assert.Equal(t, models.StockReasonNoRecord, reasons[missing.ID].Reason)
	assert.Equal(t, models.StockReasonOutOfStock, reasons[outOfStock.ID].Reason)
	assert.Equal(t, models.StockReasonInsufficient, reasons[short.ID].Reason)
	assert.Equal(t, 1, reasons[short.ID].AvailableQuantity)
	assert.Equal(t, 3, reasons[short.ID].RequiredQuantity)
}

func TestStockProblemResolvedAfterRestock(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 10)
	key := f.stock(product, "M", 1)

	order := f.createOrder(t, CreateOrderInput{
		UserID:  uuid.New(),
		Lines:   []LineInput{lineInput(product, 3, "M")},
		Address: testAddress(),
	})

	updated, err := f.svc.MarkPaid(context.Background(), order.ID)
	require.NoError(t, err)
	require.True(t, updated.HasStockProblem)
	require.False(t, updated.IsResolved)

	f.inventory.records[key] = 5

	status := models.StatusBeingPrepared
	updated, err = f.svc.ApplyTransition(context.Background(), order.ID, TransitionInput{Status: &status})
	require.NoError(t, err)
	assert.False(t, updated.HasStockProblem)
	assert.True(t, updated.IsResolved)
	assert.Empty(t, updated.StockProblemItems)

	// the resolved latch stops further re-detection
	patches := len(f.orders.patches)
	status = models.StatusReady
	_, err = f.svc.ApplyTransition(context.Background(), order.ID, TransitionInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, patches, len(f.orders.patches))
}

func TestRetryFulfillmentMarksOrderShipped(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 100)

	order := f.createOrder(t, CreateOrderInput{
		UserID:  uuid.New(),
		Lines:   []LineInput{lineInput(product, 1, "M")},
		Address: testAddress(),
	})

	require.NoError(t, f.svc.RetryFulfillment(context.Background(), order.ID))
	assert.Equal(t, 1, f.shipper.calls)
	stored := f.orders.orders[order.ID]
	assert.Equal(t, "KH-1", stored.KhazenlyOrderID)
	assert.True(t, stored.IsShipped)
}

func TestGiftReevaluatedWhileUnpaid(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 200)

	order := f.createOrder(t, CreateOrderInput{UserID: uuid.New(), Lines: []LineInput{lineInput(product, 1, "M")}})
	assert.Nil(t, order.GiftID)

	gift := models.GiftPromotion{ID: uuid.New(), DiscountValue: 10, IsActive: true, MinOrderValue: 100}
	f.pricing.gifts = []models.GiftPromotion{gift}

	status := models.StatusWaiting
	updated, err := f.svc.ApplyTransition(context.Background(), order.ID, TransitionInput{Status: &status})
	require.NoError(t, err)
	require.NotNil(t, updated.GiftID)
	assert.Equal(t, gift.ID, *updated.GiftID)
}

func TestNoopTransitionReturnsOrderUnchanged(t *testing.T) {
	f := newOrderServiceFixture()
	product := addProduct(f.pricing, 100)
	order := f.createOrder(t, CreateOrderInput{UserID: uuid.New(), Lines: []LineInput{lineInput(product, 1, "M")}})

	status := models.StatusInitiated
	paid := false
	updated, err := f.svc.ApplyTransition(context.Background(), order.ID, TransitionInput{Status: &status, Paid: &paid})
	require.NoError(t, err)
	assert.Equal(t, order.ID, updated.ID)
	assert.Equal(t, 1, f.statusLog.upserts)
}
