package services

import (
	"context"
	"strings"
	"time"

	"github.com/Ahmed3117/silverbook/internal/core/fulfillment"
	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/Ahmed3117/silverbook/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// fakeTxManager runs the callback directly; the fake repos below keep their
// state in memory, so binding to a nil tx is a no-op.
type fakeTxManager struct{}

func (fakeTxManager) Transaction(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeOrderRepo struct {
	orders  map[uuid.UUID]*models.Order
	patches []map[string]interface{}
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uuid.UUID]*models.Order)}
}

func (r *fakeOrderRepo) WithTx(*gorm.DB) repositories.OrderRepo { return r }

func (r *fakeOrderRepo) Create(_ context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Lines {
		if order.Lines[i].ID == uuid.Nil {
			order.Lines[i].ID = uuid.New()
		}
		order.Lines[i].OrderID = &order.ID
	}
	r.orders[order.ID] = order
	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, repositories.ErrRecordNotFound
	}
	return order, nil
}

func (r *fakeOrderRepo) GetByOrderNumber(_ context.Context, orderNumber string) (*models.Order, error) {
	for _, order := range r.orders {
		if order.OrderNumber == orderNumber {
			return order, nil
		}
	}
	return nil, repositories.ErrRecordNotFound
}

func (r *fakeOrderRepo) GetByInvoiceRef(_ context.Context, provider models.PaymentProvider, ref string) (*models.Order, error) {
	for _, order := range r.orders {
		switch provider {
		case models.ProviderShakeout:
			if order.ShakeoutInvoiceID == ref || order.ShakeoutInvoiceRef == ref {
				return order, nil
			}
		case models.ProviderEasypay:
			if order.EasypayInvoiceUID == ref || order.EasypayFawryRef == ref {
				return order, nil
			}
		}
	}
	return nil, repositories.ErrRecordNotFound
}

func (r *fakeOrderRepo) Save(_ context.Context, order *models.Order) error {
	r.orders[order.ID] = order
	return nil
}

func (r *fakeOrderRepo) SaveLine(_ context.Context, line *models.OrderLine) error {
	if line.OrderID == nil {
		return nil
	}
	order, ok := r.orders[*line.OrderID]
	if !ok {
		return repositories.ErrRecordNotFound
	}
	for i := range order.Lines {
		if order.Lines[i].ID == line.ID {
			order.Lines[i] = *line
			return nil
		}
	}
	order.Lines = append(order.Lines, *line)
	return nil
}

func (r *fakeOrderRepo) UpdateLinesStatus(_ context.Context, orderID uuid.UUID, status models.OrderStatus) error {
	order, ok := r.orders[orderID]
	if !ok {
		return repositories.ErrRecordNotFound
	}
	for i := range order.Lines {
		order.Lines[i].Status = status
	}
	return nil
}

func (r *fakeOrderRepo) PatchFields(_ context.Context, id uuid.UUID, fields map[string]interface{}) error {
	order, ok := r.orders[id]
	if !ok {
		return repositories.ErrRecordNotFound
	}
	r.patches = append(r.patches, fields)
	for key, value := range fields {
		switch key {
		case "has_stock_problem":
			order.HasStockProblem = value.(bool)
		case "is_resolved":
			order.IsResolved = value.(bool)
		case "is_shipped":
			order.IsShipped = value.(bool)
		case "khazenly_order_id":
			order.KhazenlyOrderID = value.(string)
		case "khazenly_sales_order_number":
			order.KhazenlySalesOrderNumber = value.(string)
		case "coupon_discount":
			order.CouponDiscount = value.(float64)
		case "coupon_id":
			id := value.(uuid.UUID)
			order.CouponID = &id
		case "gift_id":
			if value == nil {
				order.GiftID = nil
			} else if giftID, ok := value.(*uuid.UUID); ok {
				order.GiftID = giftID
			}
		}
	}
	return nil
}

func (r *fakeOrderRepo) OrderNumberExists(_ context.Context, orderNumber string) (bool, error) {
	_, err := r.GetByOrderNumber(context.Background(), orderNumber)
	return err == nil, nil
}

func (r *fakeOrderRepo) ListUnpaidWithInvoice(_ context.Context, limit int) ([]models.Order, error) {
	var out []models.Order
	for _, order := range r.orders {
		if !order.Paid && (order.ShakeoutInvoiceID != "" || order.EasypayInvoiceUID != "") {
			out = append(out, *order)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// fakeInventoryRepo applies deductions only after checking every movement,
// mirroring the all-or-nothing behavior the real repo gets from its
// transaction.
type fakeInventoryRepo struct {
	records map[repositories.VariantKey]int
}

func newFakeInventoryRepo() *fakeInventoryRepo {
	return &fakeInventoryRepo{records: make(map[repositories.VariantKey]int)}
}

func (r *fakeInventoryRepo) WithTx(*gorm.DB) repositories.InventoryRepo { return r }

func (r *fakeInventoryRepo) Get(_ context.Context, key repositories.VariantKey) (*models.InventoryRecord, error) {
	quantity, ok := r.records[key]
	if !ok {
		return nil, repositories.ErrRecordNotFound
	}
	return &models.InventoryRecord{
		ProductID: key.ProductID,
		Size:      key.Size,
		Color:     key.Color,
		Quantity:  quantity,
	}, nil
}

func (r *fakeInventoryRepo) Deduct(_ context.Context, movements []repositories.Movement) error {
	for _, m := range movements {
		quantity, ok := r.records[m.Key]
		if !ok {
			return repositories.ErrRecordNotFound
		}
		if quantity < m.Quantity {
			return repositories.ErrInsufficientStock
		}
	}
	for _, m := range movements {
		r.records[m.Key] -= m.Quantity
	}
	return nil
}

func (r *fakeInventoryRepo) Restore(_ context.Context, movements []repositories.Movement) error {
	for _, m := range movements {
		if _, ok := r.records[m.Key]; !ok {
			continue
		}
		r.records[m.Key] += m.Quantity
	}
	return nil
}

type statusLogKey struct {
	orderID uuid.UUID
	status  models.OrderStatus
}

type fakeStatusLogRepo struct {
	entries map[statusLogKey]time.Time
	upserts int
}

func newFakeStatusLogRepo() *fakeStatusLogRepo {
	return &fakeStatusLogRepo{entries: make(map[statusLogKey]time.Time)}
}

func (r *fakeStatusLogRepo) WithTx(*gorm.DB) repositories.StatusLogRepo { return r }

func (r *fakeStatusLogRepo) Upsert(_ context.Context, orderID uuid.UUID, status models.OrderStatus) error {
	r.upserts++
	r.entries[statusLogKey{orderID, status}] = time.Now()
	return nil
}

func (r *fakeStatusLogRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]models.StatusLogEntry, error) {
	var out []models.StatusLogEntry
	for key, changedAt := range r.entries {
		if key.orderID == orderID {
			out = append(out, models.StatusLogEntry{OrderID: key.orderID, Status: key.status, ChangedAt: changedAt})
		}
	}
	return out, nil
}

type fakePricingRepo struct {
	products          map[uuid.UUID]*models.Product
	productDiscounts  map[uuid.UUID]float64
	categoryDiscounts map[uuid.UUID]float64
	coupons           map[uuid.UUID]*models.Coupon
	gifts             []models.GiftPromotion
	overTax           *models.OverTaxConfig
	shippingFees      map[string]float64
	freeShipping      []models.FreeShippingOffer
}

func newFakePricingRepo() *fakePricingRepo {
	return &fakePricingRepo{
		products:          make(map[uuid.UUID]*models.Product),
		productDiscounts:  make(map[uuid.UUID]float64),
		categoryDiscounts: make(map[uuid.UUID]float64),
		coupons:           make(map[uuid.UUID]*models.Coupon),
		shippingFees:      make(map[string]float64),
	}
}

func (r *fakePricingRepo) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	product, ok := r.products[id]
	if !ok {
		return nil, repositories.ErrRecordNotFound
	}
	return product, nil
}

func (r *fakePricingRepo) BestProductDiscount(_ context.Context, productID uuid.UUID, _ time.Time) (float64, error) {
	return r.productDiscounts[productID], nil
}

func (r *fakePricingRepo) BestCategoryDiscount(_ context.Context, categoryID uuid.UUID, _ time.Time) (float64, error) {
	return r.categoryDiscounts[categoryID], nil
}

func (r *fakePricingRepo) GetCoupon(_ context.Context, id uuid.UUID) (*models.Coupon, error) {
	coupon, ok := r.coupons[id]
	if !ok {
		return nil, repositories.ErrRecordNotFound
	}
	return coupon, nil
}

func (r *fakePricingRepo) GetCouponByCode(_ context.Context, code string) (*models.Coupon, error) {
	for _, coupon := range r.coupons {
		if strings.EqualFold(coupon.Code, code) {
			return coupon, nil
		}
	}
	return nil, repositories.ErrRecordNotFound
}

func (r *fakePricingRepo) CreateCoupon(_ context.Context, coupon *models.Coupon) error {
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	r.coupons[coupon.ID] = coupon
	return nil
}

func (r *fakePricingRepo) ConsumeCouponUse(_ context.Context, id uuid.UUID) error {
	coupon, ok := r.coupons[id]
	if !ok || coupon.AvailableUseTimes <= 0 {
		return repositories.ErrRecordNotFound
	}
	coupon.AvailableUseTimes--
	return nil
}

func (r *fakePricingRepo) GetGift(_ context.Context, id uuid.UUID) (*models.GiftPromotion, error) {
	for i := range r.gifts {
		if r.gifts[i].ID == id {
			return &r.gifts[i], nil
		}
	}
	return nil, repositories.ErrRecordNotFound
}

func (r *fakePricingRepo) EligibleGifts(_ context.Context, subtotal float64, now time.Time) ([]models.GiftPromotion, error) {
	var out []models.GiftPromotion
	for i := range r.gifts {
		if r.gifts[i].Available(subtotal, now) {
			out = append(out, r.gifts[i])
		}
	}
	// best discount first, newest on ties
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			if out[j].DiscountValue > out[j-1].DiscountValue ||
				(out[j].DiscountValue == out[j-1].DiscountValue && out[j].CreatedAt.After(out[j-1].CreatedAt)) {
				out[j], out[j-1] = out[j-1], out[j]
			}
		}
	}
	return out, nil
}

func (r *fakePricingRepo) ActiveOverTaxConfig(_ context.Context) (*models.OverTaxConfig, error) {
	return r.overTax, nil
}

func (r *fakePricingRepo) ActivateOverTaxConfig(_ context.Context, id uuid.UUID) error {
	if r.overTax != nil {
		r.overTax.IsActive = r.overTax.ID == id
	}
	return nil
}

func (r *fakePricingRepo) ShippingFee(_ context.Context, government string) (float64, error) {
	return r.shippingFees[government], nil
}

func (r *fakePricingRepo) ActiveFreeShippingOffers(_ context.Context, _ time.Time) ([]models.FreeShippingOffer, error) {
	return r.freeShipping, nil
}

type fakeFulfillmentClient struct {
	calls  int
	err    error
	result *fulfillment.Result
}

func (c *fakeFulfillmentClient) CreateOrder(_ context.Context, order *models.Order) (*fulfillment.Result, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if c.result != nil {
		return c.result, nil
	}
	return &fulfillment.Result{
		OrderID:          "KH-1",
		SalesOrderNumber: "SO-" + order.OrderNumber,
	}, nil
}

type fakeNotifier struct {
	sms      []string
	whatsapp []string
}

func (n *fakeNotifier) SendSMS(phone, message string) error {
	n.sms = append(n.sms, phone+": "+message)
	return nil
}

func (n *fakeNotifier) SendWhatsApp(phone, message string) {
	n.whatsapp = append(n.whatsapp, phone+": "+message)
}
