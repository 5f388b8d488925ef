package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PricingRepo serves the read side of the price engine: active discounts,
// coupons, gifts, the over-tax singleton, shipping fees and free shipping
// offers. Writes are limited to coupon budget decrement and the over-tax
// activation.
type PricingRepo interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	BestProductDiscount(ctx context.Context, productID uuid.UUID, now time.Time) (float64, error)
	BestCategoryDiscount(ctx context.Context, categoryID uuid.UUID, now time.Time) (float64, error)

	GetCoupon(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	CreateCoupon(ctx context.Context, coupon *models.Coupon) error
	ConsumeCouponUse(ctx context.Context, id uuid.UUID) error

	GetGift(ctx context.Context, id uuid.UUID) (*models.GiftPromotion, error)
	EligibleGifts(ctx context.Context, subtotal float64, now time.Time) ([]models.GiftPromotion, error)

	ActiveOverTaxConfig(ctx context.Context) (*models.OverTaxConfig, error)
	ActivateOverTaxConfig(ctx context.Context, id uuid.UUID) error

	ShippingFee(ctx context.Context, government string) (float64, error)
	ActiveFreeShippingOffers(ctx context.Context, now time.Time) ([]models.FreeShippingOffer, error)
}

type pricingRepo struct {
	db *gorm.DB
}

func NewPricingRepo(db *gorm.DB) PricingRepo {
	return &pricingRepo{db: db}
}

func (r *pricingRepo) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *pricingRepo) BestProductDiscount(ctx context.Context, productID uuid.UUID, now time.Time) (float64, error) {
	return r.bestDiscount(ctx, "product_id = ?", productID, now)
}

func (r *pricingRepo) BestCategoryDiscount(ctx context.Context, categoryID uuid.UUID, now time.Time) (float64, error) {
	return r.bestDiscount(ctx, "category_id = ?", categoryID, now)
}

func (r *pricingRepo) bestDiscount(ctx context.Context, cond string, id uuid.UUID, now time.Time) (float64, error) {
	var discount models.Discount
	err := r.db.WithContext(ctx).
		Where(cond, id).
		Where("is_active = true AND discount_start <= ? AND discount_end >= ?", now, now).
		Order("discount DESC").
		First(&discount).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return discount.Discount, nil
}

func (r *pricingRepo) GetCoupon(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).First(&coupon, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *pricingRepo) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *pricingRepo) CreateCoupon(ctx context.Context, coupon *models.Coupon) error {
	return r.db.WithContext(ctx).Create(coupon).Error
}

// ConsumeCouponUse decrements the usage budget, guarded so a concurrent
// redemption cannot push it below zero.
func (r *pricingRepo) ConsumeCouponUse(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("id = ? AND available_use_times > 0", id).
		Update("available_use_times", gorm.Expr("available_use_times - 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *pricingRepo) GetGift(ctx context.Context, id uuid.UUID) (*models.GiftPromotion, error) {
	var gift models.GiftPromotion
	err := r.db.WithContext(ctx).First(&gift, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &gift, nil
}

// EligibleGifts returns active gifts covering subtotal, best discount first,
// newest first on ties.
func (r *pricingRepo) EligibleGifts(ctx context.Context, subtotal float64, now time.Time) ([]models.GiftPromotion, error) {
	var gifts []models.GiftPromotion
	err := r.db.WithContext(ctx).
		Where("is_active = true AND min_order_value <= ?", subtotal).
		Where("max_order_value IS NULL OR max_order_value >= ?", subtotal).
		Where("start_date IS NULL OR start_date <= ?", now).
		Where("end_date IS NULL OR end_date >= ?", now).
		Order("discount_value DESC, created_at DESC").
		Find(&gifts).Error
	return gifts, err
}

func (r *pricingRepo) ActiveOverTaxConfig(ctx context.Context) (*models.OverTaxConfig, error) {
	var config models.OverTaxConfig
	err := r.db.WithContext(ctx).Where("is_active = true").First(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// ActivateOverTaxConfig makes the given config the single active one.
func (r *pricingRepo) ActivateOverTaxConfig(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.OverTaxConfig{}).
			Where("is_active = true AND id <> ?", id).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.OverTaxConfig{}).
			Where("id = ?", id).
			Update("is_active", true).Error
	})
}

func (r *pricingRepo) ShippingFee(ctx context.Context, government string) (float64, error) {
	var fee models.ShippingFee
	err := r.db.WithContext(ctx).Where("government = ?", government).First(&fee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return fee.Price, nil
}

func (r *pricingRepo) ActiveFreeShippingOffers(ctx context.Context, now time.Time) ([]models.FreeShippingOffer, error) {
	var offers []models.FreeShippingOffer
	err := r.db.WithContext(ctx).
		Where("is_active = true AND start_date <= ? AND end_date >= ?", now, now).
		Find(&offers).Error
	return offers, err
}
