package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatusLogRepo records every status an order ever reached. One row per
// (order, status); re-entering a status only refreshes its timestamp.
type StatusLogRepo interface {
	WithTx(tx *gorm.DB) StatusLogRepo
	Upsert(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StatusLogEntry, error)
}

type statusLogRepo struct {
	db *gorm.DB
}

func NewStatusLogRepo(db *gorm.DB) StatusLogRepo {
	return &statusLogRepo{db: db}
}

func (r *statusLogRepo) WithTx(tx *gorm.DB) StatusLogRepo {
	return &statusLogRepo{db: tx}
}

func (r *statusLogRepo) Upsert(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) error {
	var entry models.StatusLogEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, status).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		entry = models.StatusLogEntry{OrderID: orderID, Status: status, ChangedAt: time.Now()}
		return r.db.WithContext(ctx).Create(&entry).Error
	}
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&entry).Update("changed_at", time.Now()).Error
}

func (r *statusLogRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StatusLogEntry, error) {
	var entries []models.StatusLogEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("changed_at DESC").
		Find(&entries).Error
	return entries, err
}
