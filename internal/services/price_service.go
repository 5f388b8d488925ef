package services

import (
	"context"
	"errors"
	"time"

	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/Ahmed3117/silverbook/internal/repositories"
)

// Quote is the full price breakdown of an order.
type Quote struct {
	Subtotal       float64 `json:"subtotal"`
	GiftDiscount   float64 `json:"gift_discount"`
	CouponDiscount float64 `json:"coupon_discount"`
	ShippingBase   float64 `json:"shipping_base"`
	OverTax        float64 `json:"over_tax"`
	FreeShipping   bool    `json:"free_shipping"`
	Total          float64 `json:"total"`
}

// PriceService computes order totals: discounted line prices, gift and coupon
// deductions, and shipping with the over-tax surcharge. It satisfies
// payment.TotalCalculator.
type PriceService struct {
	pricing repositories.PricingRepo
	now     func() time.Time
}

func NewPriceService(pricing repositories.PricingRepo) *PriceService {
	return &PriceService{pricing: pricing, now: time.Now}
}

// DiscountedPrice applies the strongest active discount, whether it targets
// the product itself or its category.
func (s *PriceService) DiscountedPrice(ctx context.Context, product *models.Product) (float64, error) {
	now := s.now()
	best, err := s.pricing.BestProductDiscount(ctx, product.ID, now)
	if err != nil {
		return 0, err
	}
	if product.CategoryID != nil {
		categoryBest, err := s.pricing.BestCategoryDiscount(ctx, *product.CategoryID, now)
		if err != nil {
			return 0, err
		}
		if categoryBest > best {
			best = categoryBest
		}
	}
	return product.Price * (1 - best/100), nil
}

// LinePrice returns the line's unit prices. Sold lines keep their snapshot,
// unsold lines are priced live.
func (s *PriceService) LinePrice(ctx context.Context, line *models.OrderLine) (native, price float64, err error) {
	if line.DateSold != nil {
		return line.NativePriceAtSale, line.PriceAtSale, nil
	}
	product, err := s.pricing.GetProduct(ctx, line.ProductID)
	if err != nil {
		return 0, 0, err
	}
	price, err = s.DiscountedPrice(ctx, product)
	if err != nil {
		return 0, 0, err
	}
	return product.Price, price, nil
}

// Subtotal is the sum of line unit prices times quantities, before any
// order-level deduction.
func (s *PriceService) Subtotal(ctx context.Context, order *models.Order) (float64, error) {
	var subtotal float64
	for i := range order.Lines {
		_, price, err := s.LinePrice(ctx, &order.Lines[i])
		if err != nil {
			return 0, err
		}
		subtotal += price * float64(order.Lines[i].Quantity)
	}
	return subtotal, nil
}

// GiftDiscount values the order's attached gift as a percentage of subtotal.
// The gift must still be available for the subtotal at valuation time; an
// attached gift that went inactive or fell out of its window contributes
// nothing without detaching.
func (s *PriceService) GiftDiscount(ctx context.Context, order *models.Order, subtotal float64) (float64, error) {
	if order.GiftID == nil {
		return 0, nil
	}
	gift, err := s.pricing.GetGift(ctx, *order.GiftID)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !gift.Available(subtotal, s.now()) {
		return 0, nil
	}
	return subtotal * gift.DiscountValue / 100, nil
}

// BestGift picks the gift a new or re-evaluated order should carry: the
// eligible one with the highest discount, newest on ties. Nil when none apply.
func (s *PriceService) BestGift(ctx context.Context, subtotal float64) (*models.GiftPromotion, error) {
	gifts, err := s.pricing.EligibleGifts(ctx, subtotal, s.now())
	if err != nil {
		return nil, err
	}
	if len(gifts) == 0 {
		return nil, nil
	}
	return &gifts[0], nil
}

// CouponDiscount values the order's attached coupon as a percentage of
// subtotal, but only while the coupon window is open. A coupon outside its
// window contributes nothing without detaching.
func (s *PriceService) CouponDiscount(ctx context.Context, order *models.Order, subtotal float64) (float64, error) {
	if order.CouponID == nil {
		return 0, nil
	}
	coupon, err := s.pricing.GetCoupon(ctx, *order.CouponID)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !coupon.WindowContains(s.now()) {
		return 0, nil
	}
	return subtotal * coupon.DiscountValue / 100, nil
}

// freeShipping reports whether any active offer covers any product on the
// order.
func (s *PriceService) freeShipping(ctx context.Context, order *models.Order) (bool, error) {
	offers, err := s.pricing.ActiveFreeShippingOffers(ctx, s.now())
	if err != nil {
		return false, err
	}
	if len(offers) == 0 {
		return false, nil
	}
	for i := range order.Lines {
		product, err := s.pricing.GetProduct(ctx, order.Lines[i].ProductID)
		if errors.Is(err, repositories.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		for j := range offers {
			if offers[j].AppliesTo(product) {
				return true, nil
			}
		}
	}
	return false, nil
}

// Shipping returns the base fee, the over-tax surcharge and whether free
// shipping applied. The surcharge is added even when the base fee is waived.
func (s *PriceService) Shipping(ctx context.Context, order *models.Order) (base, overTax float64, free bool, err error) {
	if config, cfgErr := s.pricing.ActiveOverTaxConfig(ctx); cfgErr != nil {
		return 0, 0, false, cfgErr
	} else if config != nil {
		overTax = config.SurchargeFor(len(order.Lines))
	}

	free, err = s.freeShipping(ctx, order)
	if err != nil {
		return 0, 0, false, err
	}
	if free || order.Address == nil {
		return 0, overTax, free, nil
	}

	base, err = s.pricing.ShippingFee(ctx, order.Address.Government)
	if err != nil {
		return 0, 0, false, err
	}
	return base, overTax, free, nil
}

// Price computes the full breakdown. Gift and coupon deductions apply to the
// subtotal and cannot push it below zero; shipping is added afterwards.
func (s *PriceService) Price(ctx context.Context, order *models.Order) (*Quote, error) {
	subtotal, err := s.Subtotal(ctx, order)
	if err != nil {
		return nil, err
	}
	gift, err := s.GiftDiscount(ctx, order, subtotal)
	if err != nil {
		return nil, err
	}
	coupon, err := s.CouponDiscount(ctx, order, subtotal)
	if err != nil {
		return nil, err
	}
	base, overTax, free, err := s.Shipping(ctx, order)
	if err != nil {
		return nil, err
	}

	goods := subtotal - gift - coupon
	if goods < 0 {
		goods = 0
	}
	return &Quote{
		Subtotal:       subtotal,
		GiftDiscount:   gift,
		CouponDiscount: coupon,
		ShippingBase:   base,
		OverTax:        overTax,
		FreeShipping:   free,
		Total:          goods + base + overTax,
	}, nil
}

// FinalTotal is the amount payment invoices are created for.
func (s *PriceService) FinalTotal(ctx context.Context, order *models.Order) (float64, error) {
	quote, err := s.Price(ctx, order)
	if err != nil {
		return 0, err
	}
	return quote.Total, nil
}
