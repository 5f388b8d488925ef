package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VariantKey identifies one inventory row: a (product, size, color) triple.
type VariantKey struct {
	ProductID uuid.UUID
	Size      string
	Color     string
}

// Movement is a quantity change against one variant.
type Movement struct {
	Key      VariantKey
	Quantity int
}

// InventoryRepo is the inventory ledger. Deduct and Restore lock each touched
// row FOR UPDATE and must run inside the caller's transaction (bind with
// WithTx); rows are visited in a consistent key order so concurrent
// transitions touching the same variants serialize instead of deadlocking.
type InventoryRepo interface {
	WithTx(tx *gorm.DB) InventoryRepo
	Get(ctx context.Context, key VariantKey) (*models.InventoryRecord, error)
	Deduct(ctx context.Context, movements []Movement) error
	Restore(ctx context.Context, movements []Movement) error
}

type inventoryRepo struct {
	db *gorm.DB
}

func NewInventoryRepo(db *gorm.DB) InventoryRepo {
	return &inventoryRepo{db: db}
}

func (r *inventoryRepo) WithTx(tx *gorm.DB) InventoryRepo {
	return &inventoryRepo{db: tx}
}

func (r *inventoryRepo) Get(ctx context.Context, key VariantKey) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND size = ? AND color = ?", key.ProductID, key.Size, key.Color).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Deduct decrements each movement's variant row. A missing row fails with
// ErrRecordNotFound and a short row with ErrInsufficientStock; either error
// rolls back the surrounding transaction, leaving every row untouched.
func (r *inventoryRepo) Deduct(ctx context.Context, movements []Movement) error {
	sortMovements(movements)
	for _, m := range movements {
		record, err := r.lock(ctx, m.Key)
		if err != nil {
			return err
		}
		if record.Quantity < m.Quantity {
			return fmt.Errorf("%w: product %s size %q color %q has %d, need %d",
				ErrInsufficientStock, m.Key.ProductID, m.Key.Size, m.Key.Color, record.Quantity, m.Quantity)
		}
		record.Quantity -= m.Quantity
		if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
			return err
		}
	}
	return nil
}

// Restore increments each movement's variant row. Restoration is best-effort:
// a variant whose inventory row has since been deleted is skipped.
func (r *inventoryRepo) Restore(ctx context.Context, movements []Movement) error {
	sortMovements(movements)
	for _, m := range movements {
		record, err := r.lock(ctx, m.Key)
		if errors.Is(err, ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		record.Quantity += m.Quantity
		if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *inventoryRepo) lock(ctx context.Context, key VariantKey) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND size = ? AND color = ?", key.ProductID, key.Size, key.Color).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func sortMovements(movements []Movement) {
	sort.Slice(movements, func(i, j int) bool {
		a, b := movements[i].Key, movements[j].Key
		if a.ProductID != b.ProductID {
			return a.ProductID.String() < b.ProductID.String()
		}
		if a.Size != b.Size {
			return a.Size < b.Size
		}
		return a.Color < b.Color
	})
}
