package repositories

import (
	"context"
	"errors"

	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderRepo interface {
	WithTx(tx *gorm.DB) OrderRepo
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	GetByInvoiceRef(ctx context.Context, provider models.PaymentProvider, ref string) (*models.Order, error)
	Save(ctx context.Context, order *models.Order) error
	SaveLine(ctx context.Context, line *models.OrderLine) error
	UpdateLinesStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) error
	// PatchFields writes columns directly, bypassing the transition
	// pipeline. Used for stock problem flags, gateway invoice fields and
	// fulfillment fields so the state machine never re-enters itself.
	PatchFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	OrderNumberExists(ctx context.Context, orderNumber string) (bool, error)
	ListUnpaidWithInvoice(ctx context.Context, limit int) ([]models.Order, error)
}

type orderRepo struct {
	db *gorm.DB
}

func NewOrderRepo(db *gorm.DB) OrderRepo {
	return &orderRepo{db: db}
}

func (r *orderRepo) WithTx(tx *gorm.DB) OrderRepo {
	return &orderRepo{db: tx}
}

func (r *orderRepo) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Address").
		First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepo) GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Address").
		Where("order_number = ?", orderNumber).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepo) GetByInvoiceRef(ctx context.Context, provider models.PaymentProvider, ref string) (*models.Order, error) {
	query := r.db.WithContext(ctx).Preload("Lines").Preload("Address")
	switch provider {
	case models.ProviderShakeout:
		query = query.Where("shakeout_invoice_id = ? OR shakeout_invoice_ref = ?", ref, ref)
	case models.ProviderEasypay:
		query = query.Where("easypay_invoice_uid = ? OR easypay_invoice_sequence = ? OR easypay_fawry_ref = ?", ref, ref, ref)
	default:
		return nil, ErrRecordNotFound
	}
	var order models.Order
	err := query.First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepo) Save(ctx context.Context, order *models.Order) error {
	// Omit associations: lines are written through SaveLine and
	// UpdateLinesStatus, the address is immutable here.
	return r.db.WithContext(ctx).Omit("Lines", "Address").Save(order).Error
}

func (r *orderRepo) SaveLine(ctx context.Context, line *models.OrderLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

func (r *orderRepo) UpdateLinesStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) error {
	return r.db.WithContext(ctx).Model(&models.OrderLine{}).
		Where("order_id = ?", orderID).
		Update("status", status).Error
}

func (r *orderRepo) PatchFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *orderRepo) OrderNumberExists(ctx context.Context, orderNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("order_number = ?", orderNumber).
		Count(&count).Error
	return count > 0, err
}

func (r *orderRepo) ListUnpaidWithInvoice(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Address").
		Where("paid = false AND (shakeout_invoice_id <> '' OR easypay_invoice_uid <> '')").
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&orders).Error
	return orders, err
}
