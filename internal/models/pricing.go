package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Discount is a windowed percentage discount targeting either a product or a
// category, never both.
type Discount struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ProductID  *uuid.UUID `gorm:"type:uuid;index" json:"product_id,omitempty"`
	CategoryID *uuid.UUID `gorm:"type:uuid;index" json:"category_id,omitempty"`
	Discount   float64    `gorm:"not null" json:"discount"`
	Start      time.Time  `gorm:"column:discount_start;not null" json:"discount_start"`
	End        time.Time  `gorm:"column:discount_end;not null" json:"discount_end"`
	IsActive   bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Discount) TableName() string { return "discounts" }

// ActiveAt reports whether the discount window covers now.
func (d *Discount) ActiveAt(now time.Time) bool {
	return d.IsActive && !now.Before(d.Start) && !now.After(d.End)
}

// Coupon is a server-generated percentage discount code with a usage budget
// and an optional user restriction.
type Coupon struct {
	ID                uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Code              string     `gorm:"type:varchar(100);unique;not null" json:"code"`
	DiscountValue     float64    `gorm:"not null;default:0" json:"discount_value"`
	Start             *time.Time `gorm:"column:coupon_start" json:"coupon_start,omitempty"`
	End               *time.Time `gorm:"column:coupon_end" json:"coupon_end,omitempty"`
	AvailableUseTimes int        `gorm:"not null;default:1" json:"available_use_times"`
	UserID            *uuid.UUID `gorm:"type:uuid" json:"user_id,omitempty"`
	MinOrderValue     float64    `gorm:"not null;default:0" json:"min_order_value"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Coupon) TableName() string { return "coupons" }

func (c *Coupon) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// WindowContains reports whether now falls inside the coupon validity window.
// A coupon with no window set never grants a discount.
func (c *Coupon) WindowContains(now time.Time) bool {
	if c.Start == nil || c.End == nil {
		return false
	}
	return !now.Before(*c.Start) && !now.After(*c.End)
}

// GiftPromotion is an automatic percentage discount applied when the order
// subtotal falls inside [MinOrderValue, MaxOrderValue] during the validity
// window. Nil window edges mean unbounded.
type GiftPromotion struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	DiscountValue float64    `gorm:"not null" json:"discount_value"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	IsActive      bool       `gorm:"not null;default:true" json:"is_active"`
	MinOrderValue float64    `gorm:"not null;default:0" json:"min_order_value"`
	MaxOrderValue *float64   `json:"max_order_value,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (GiftPromotion) TableName() string { return "gift_promotions" }

// Available reports whether the gift applies to orderValue at now.
func (g *GiftPromotion) Available(orderValue float64, now time.Time) bool {
	if !g.IsActive {
		return false
	}
	if g.StartDate != nil && now.Before(*g.StartDate) {
		return false
	}
	if g.EndDate != nil && now.After(*g.EndDate) {
		return false
	}
	if orderValue < g.MinOrderValue {
		return false
	}
	if g.MaxOrderValue != nil && orderValue > *g.MaxOrderValue {
		return false
	}
	return true
}

// OverTaxConfig defines the per-excess-item surcharge added to shipping once
// an order's line count exceeds MaxProductsWithoutTax. At most one row is
// active; activating a config deactivates the others.
type OverTaxConfig struct {
	ID                    uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	MaxProductsWithoutTax int       `gorm:"not null;default:0" json:"max_products_without_tax"`
	TaxAmountPerItem      float64   `gorm:"type:decimal(10,2);not null;default:0" json:"tax_amount_per_item"`
	IsActive              bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OverTaxConfig) TableName() string { return "over_tax_configs" }

// SurchargeFor returns the surcharge for an order with lineCount lines.
func (c *OverTaxConfig) SurchargeFor(lineCount int) float64 {
	over := lineCount - c.MaxProductsWithoutTax
	if over <= 0 {
		return 0
	}
	return float64(over) * c.TaxAmountPerItem
}

// Free shipping offer target dimensions.
const (
	FreeShippingTargetCategory    = "category"
	FreeShippingTargetSubCategory = "subcategory"
	FreeShippingTargetBrand       = "brand"
	FreeShippingTargetSubject     = "subject"
	FreeShippingTargetTeacher     = "teacher"
)

// FreeShippingOffer waives the shipping base fee for orders containing at
// least one product matching the target dimension during the window.
type FreeShippingOffer struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Description   string     `gorm:"type:varchar(500)" json:"description"`
	TargetType    string     `gorm:"type:varchar(20);not null" json:"target_type"`
	CategoryID    *uuid.UUID `gorm:"type:uuid" json:"category_id,omitempty"`
	SubCategoryID *uuid.UUID `gorm:"type:uuid" json:"subcategory_id,omitempty"`
	BrandID       *uuid.UUID `gorm:"type:uuid" json:"brand_id,omitempty"`
	SubjectID     *uuid.UUID `gorm:"type:uuid" json:"subject_id,omitempty"`
	TeacherID     *uuid.UUID `gorm:"type:uuid" json:"teacher_id,omitempty"`
	StartDate     time.Time  `gorm:"not null" json:"start_date"`
	EndDate       time.Time  `gorm:"not null" json:"end_date"`
	IsActive      bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (FreeShippingOffer) TableName() string { return "free_shipping_offers" }

// AppliesTo reports whether the offer covers the given product.
func (o *FreeShippingOffer) AppliesTo(p *Product) bool {
	match := func(target, field *uuid.UUID) bool {
		return target != nil && field != nil && *target == *field
	}
	switch o.TargetType {
	case FreeShippingTargetCategory:
		return match(o.CategoryID, p.CategoryID)
	case FreeShippingTargetSubCategory:
		return match(o.SubCategoryID, p.SubCategoryID)
	case FreeShippingTargetBrand:
		return match(o.BrandID, p.BrandID)
	case FreeShippingTargetSubject:
		return match(o.SubjectID, p.SubjectID)
	case FreeShippingTargetTeacher:
		return match(o.TeacherID, p.TeacherID)
	}
	return false
}

// ShippingFee is the per-government base delivery fee.
type ShippingFee struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Government string    `gorm:"type:varchar(2);unique;not null" json:"government"`
	Price      float64   `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
}

func (ShippingFee) TableName() string { return "shipping_fees" }
