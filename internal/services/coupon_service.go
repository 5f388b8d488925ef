package services

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/Ahmed3117/silverbook/internal/repositories"
	"github.com/google/uuid"
)

var (
	ErrCouponNotFound    = errors.New("coupon not found")
	ErrCouponNotActive   = errors.New("coupon is outside its validity window")
	ErrCouponExhausted   = errors.New("coupon usage budget exhausted")
	ErrCouponRestricted  = errors.New("coupon is restricted to another user")
	ErrCouponMinOrder    = errors.New("order value below coupon minimum")
	ErrCouponAlreadyUsed = errors.New("order already carries a coupon")
)

// Coupon token alphabets. The digit set deliberately skips 1 to avoid
// confusion with the letter l.
const (
	couponLetters  = "abcdefghijklmnopqrstuvwxyz"
	couponDigits   = "023456789"
	couponSymbols  = "@#$%&*"
	couponSegments = 5
)

// GenerateCouponToken builds a coupon code of five dash-joined segments, each
// a lowercase letter, a digit and a symbol.
func GenerateCouponToken() string {
	segments := make([]string, couponSegments)
	for i := range segments {
		segments[i] = string([]byte{
			couponLetters[rand.Intn(len(couponLetters))],
			couponDigits[rand.Intn(len(couponDigits))],
			couponSymbols[rand.Intn(len(couponSymbols))],
		})
	}
	return strings.Join(segments, "-")
}

// CreateCouponInput describes a coupon to mint. The code is always generated
// server-side.
type CreateCouponInput struct {
	DiscountValue     float64    `json:"discount_value"`
	Start             *time.Time `json:"coupon_start,omitempty"`
	End               *time.Time `json:"coupon_end,omitempty"`
	AvailableUseTimes int        `json:"available_use_times"`
	UserID            *uuid.UUID `json:"user_id,omitempty"`
	MinOrderValue     float64    `json:"min_order_value"`
}

// CouponService mints coupon codes and redeems them against orders.
type CouponService struct {
	pricing repositories.PricingRepo
	orders  repositories.OrderRepo
	prices  *PriceService
	now     func() time.Time
}

func NewCouponService(pricing repositories.PricingRepo, orders repositories.OrderRepo, prices *PriceService) *CouponService {
	return &CouponService{pricing: pricing, orders: orders, prices: prices, now: time.Now}
}

// Create mints a coupon with a fresh token.
func (s *CouponService) Create(ctx context.Context, input CreateCouponInput) (*models.Coupon, error) {
	useTimes := input.AvailableUseTimes
	if useTimes <= 0 {
		useTimes = 1
	}
	coupon := &models.Coupon{
		Code:              GenerateCouponToken(),
		DiscountValue:     input.DiscountValue,
		Start:             input.Start,
		End:               input.End,
		AvailableUseTimes: useTimes,
		UserID:            input.UserID,
		MinOrderValue:     input.MinOrderValue,
	}
	if err := s.pricing.CreateCoupon(ctx, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

// Redeem attaches a coupon to an order. The coupon must be inside its window,
// have budget left, match the user restriction and the order subtotal must
// reach the coupon minimum. The budget decrement is guarded against
// concurrent redemptions.
func (s *CouponService) Redeem(ctx context.Context, orderID uuid.UUID, code string, userID uuid.UUID) (*models.Order, error) {
	coupon, err := s.pricing.GetCouponByCode(ctx, code)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}

	if !coupon.WindowContains(s.now()) {
		return nil, ErrCouponNotActive
	}
	if coupon.AvailableUseTimes <= 0 {
		return nil, ErrCouponExhausted
	}
	if coupon.UserID != nil && *coupon.UserID != userID {
		return nil, ErrCouponRestricted
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CouponID != nil {
		return nil, ErrCouponAlreadyUsed
	}

	subtotal, err := s.prices.Subtotal(ctx, order)
	if err != nil {
		return nil, err
	}
	if subtotal < coupon.MinOrderValue {
		return nil, ErrCouponMinOrder
	}

	if err := s.pricing.ConsumeCouponUse(ctx, coupon.ID); err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, ErrCouponExhausted
		}
		return nil, err
	}

	discount := subtotal * coupon.DiscountValue / 100
	if err := s.orders.PatchFields(ctx, order.ID, map[string]interface{}{
		"coupon_id":       coupon.ID,
		"coupon_discount": discount,
	}); err != nil {
		return nil, err
	}
	order.CouponID = &coupon.ID
	order.CouponDiscount = discount
	return order, nil
}
