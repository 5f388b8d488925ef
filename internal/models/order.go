package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Order is the purchase aggregate. It owns its lines exclusively and carries
// the payment gateway invoice fields, the Khazenly fulfillment fields and the
// stock problem tracking fields.
type Order struct {
	ID          uuid.UUID   `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID      uuid.UUID   `gorm:"type:uuid;not null;index" json:"user_id"`
	OrderNumber string      `gorm:"type:varchar(20);unique;not null" json:"order_number"`
	Status      OrderStatus `gorm:"type:varchar(2);not null;default:'i';index" json:"status"`
	Paid        bool        `gorm:"not null;default:false;index" json:"paid"`

	Lines   []OrderLine   `gorm:"foreignKey:OrderID" json:"lines"`
	Address *OrderAddress `gorm:"foreignKey:OrderID" json:"address,omitempty"`

	CouponID       *uuid.UUID `gorm:"type:uuid" json:"coupon_id,omitempty"`
	CouponDiscount float64    `gorm:"type:decimal(12,2);not null;default:0" json:"coupon_discount"`
	GiftID         *uuid.UUID `gorm:"type:uuid" json:"gift_id,omitempty"`

	// Payment gateway tracking. PaymentGateway names the authoritative
	// provider; per-provider invoice fields mirror the gateway responses.
	PaymentGateway         *PaymentProvider `gorm:"type:varchar(20)" json:"payment_gateway,omitempty"`
	ShakeoutInvoiceID      string           `gorm:"type:text" json:"shakeout_invoice_id,omitempty"`
	ShakeoutInvoiceRef     string           `gorm:"type:text" json:"shakeout_invoice_ref,omitempty"`
	ShakeoutData           datatypes.JSON   `gorm:"type:jsonb" json:"shakeout_data,omitempty"`
	ShakeoutCreatedAt      *time.Time       `json:"shakeout_created_at,omitempty"`
	EasypayInvoiceUID      string           `gorm:"type:text" json:"easypay_invoice_uid,omitempty"`
	EasypayInvoiceSequence string           `gorm:"type:text" json:"easypay_invoice_sequence,omitempty"`
	EasypayFawryRef        string           `gorm:"type:text" json:"easypay_fawry_ref,omitempty"`
	EasypayData            datatypes.JSON   `gorm:"type:jsonb" json:"easypay_data,omitempty"`
	EasypayCreatedAt       *time.Time       `json:"easypay_created_at,omitempty"`

	// Khazenly fulfillment tracking.
	IsShipped                bool           `gorm:"not null;default:false" json:"is_shipped"`
	KhazenlyOrderID          string         `gorm:"type:text" json:"khazenly_order_id,omitempty"`
	KhazenlySalesOrderNumber string         `gorm:"type:text" json:"khazenly_sales_order_number,omitempty"`
	KhazenlyData             datatypes.JSON `gorm:"type:jsonb" json:"khazenly_data,omitempty"`
	KhazenlyCreatedAt        *time.Time     `json:"khazenly_created_at,omitempty"`

	// Stock problem tracking, re-evaluated while the order is paid and
	// unresolved.
	HasStockProblem   bool           `gorm:"not null;default:false" json:"has_stock_problem"`
	StockProblemItems datatypes.JSON `gorm:"type:jsonb" json:"stock_problem_items,omitempty"`
	IsResolved        bool           `gorm:"not null;default:false" json:"is_resolved"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// HasFulfillmentOrder reports whether a Khazenly order was already created.
func (o *Order) HasFulfillmentOrder() bool {
	return len(o.KhazenlyData) > 0 || o.KhazenlyOrderID != ""
}

// ActiveInvoiceProvider resolves which gateway owns the authoritative invoice:
// the explicit field when set, otherwise whichever provider has invoice data.
func (o *Order) ActiveInvoiceProvider() (PaymentProvider, bool) {
	if o.PaymentGateway != nil {
		return *o.PaymentGateway, true
	}
	if o.EasypayInvoiceUID != "" {
		return ProviderEasypay, true
	}
	if o.ShakeoutInvoiceID != "" {
		return ProviderShakeout, true
	}
	return "", false
}

// OrderLine is a single product line within an order. Its status mirrors the
// order's; prices are snapshotted the first time it reaches paid/delivered.
type OrderLine struct {
	ID                uuid.UUID   `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OrderID           *uuid.UUID  `gorm:"type:uuid;index" json:"order_id,omitempty"`
	UserID            uuid.UUID   `gorm:"type:uuid;not null" json:"user_id"`
	ProductID         uuid.UUID   `gorm:"type:uuid;not null;index:idx_lines_product_status" json:"product_id"`
	Quantity          int         `gorm:"not null;default:1" json:"quantity"`
	Size              string      `gorm:"type:varchar(10)" json:"size"`
	Color             string      `gorm:"type:text" json:"color"`
	Status            OrderStatus `gorm:"type:varchar(2);index:idx_lines_product_status" json:"status"`
	NativePriceAtSale float64     `gorm:"type:decimal(12,2)" json:"native_price_at_sale"`
	PriceAtSale       float64     `gorm:"type:decimal(12,2)" json:"price_at_sale"`
	DateSold          *time.Time  `gorm:"index" json:"date_sold,omitempty"`
	CreatedAt         time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func (OrderLine) TableName() string { return "order_lines" }

func (l *OrderLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// OrderAddress is the 1:1 shipping address of an order.
type OrderAddress struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OrderID    uuid.UUID `gorm:"type:uuid;unique;not null" json:"order_id"`
	Name       string    `gorm:"type:text" json:"name"`
	Email      string    `gorm:"type:text" json:"email"`
	Phone      string    `gorm:"type:varchar(15)" json:"phone"`
	Address    string    `gorm:"type:text" json:"address"`
	Government string    `gorm:"type:varchar(2)" json:"government"`
	City       string    `gorm:"type:text" json:"city"`
	PayMethod  string    `gorm:"type:varchar(2);default:'c'" json:"pay_method"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (OrderAddress) TableName() string { return "order_addresses" }

func (a *OrderAddress) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// StatusLogEntry is the append-only audit of every status an order ever
// reached. One row per distinct status; re-entering a status refreshes
// ChangedAt instead of inserting a duplicate.
type StatusLogEntry struct {
	ID        uuid.UUID   `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OrderID   uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_status_log_order_status" json:"order_id"`
	Status    OrderStatus `gorm:"type:varchar(2);not null;uniqueIndex:idx_status_log_order_status" json:"status"`
	ChangedAt time.Time   `gorm:"autoCreateTime" json:"changed_at"`
}

func (StatusLogEntry) TableName() string { return "order_status_logs" }

func (e *StatusLogEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// StockProblemItem describes one line's shortfall, serialized into
// Order.StockProblemItems.
type StockProblemItem struct {
	LineID            uuid.UUID `json:"line_id"`
	ProductID         uuid.UUID `json:"product_id"`
	ProductName       string    `json:"product_name"`
	Size              string    `json:"size"`
	Color             string    `json:"color,omitempty"`
	RequiredQuantity  int       `json:"required_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	Reason            string    `json:"reason"`
}

// Stock problem reasons, in detection precedence order.
const (
	StockReasonNoRecord     = "no_availability_record"
	StockReasonOutOfStock   = "out_of_stock"
	StockReasonInsufficient = "insufficient_quantity"
)
