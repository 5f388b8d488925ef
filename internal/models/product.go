package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category groups products; discounts and free shipping offers can target it.
type Category struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name      string    `gorm:"type:text;unique;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Category) TableName() string { return "categories" }

type SubCategory struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name       string    `gorm:"type:text;not null" json:"name"`
	CategoryID uuid.UUID `gorm:"type:uuid;not null" json:"category_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (SubCategory) TableName() string { return "sub_categories" }

type Brand struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name      string    `gorm:"type:text;unique;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Brand) TableName() string { return "brands" }

type Subject struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Subject) TableName() string { return "subjects" }

type Teacher struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name      string     `gorm:"type:text;not null" json:"name"`
	SubjectID *uuid.UUID `gorm:"type:uuid" json:"subject_id,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Teacher) TableName() string { return "teachers" }

// Product is the catalog entry order lines refer to. Catalog CRUD lives
// outside this service; the engine only reads these rows.
type Product struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name          string     `gorm:"type:text;not null" json:"name"`
	Price         float64    `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	CategoryID    *uuid.UUID `gorm:"type:uuid" json:"category_id,omitempty"`
	SubCategoryID *uuid.UUID `gorm:"type:uuid" json:"sub_category_id,omitempty"`
	BrandID       *uuid.UUID `gorm:"type:uuid" json:"brand_id,omitempty"`
	SubjectID     *uuid.UUID `gorm:"type:uuid" json:"subject_id,omitempty"`
	TeacherID     *uuid.UUID `gorm:"type:uuid" json:"teacher_id,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Product) TableName() string { return "products" }

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// InventoryRecord holds the available quantity for one (product, size, color)
// variant. NativePrice is the cost basis the owner paid for the batch.
type InventoryRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ProductID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_variant" json:"product_id"`
	Size        string    `gorm:"type:text;uniqueIndex:idx_inventory_variant" json:"size"`
	Color       string    `gorm:"type:text;uniqueIndex:idx_inventory_variant" json:"color"`
	Quantity    int       `gorm:"not null;default:0" json:"quantity"`
	NativePrice float64   `gorm:"type:decimal(12,2);not null;default:0" json:"native_price"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (InventoryRecord) TableName() string { return "inventory_records" }

func (r *InventoryRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
