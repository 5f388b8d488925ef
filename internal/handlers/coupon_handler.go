package handlers

import (
	"errors"

	"github.com/Ahmed3117/silverbook/internal/repositories"
	"github.com/Ahmed3117/silverbook/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type CouponHandler struct {
	coupons *services.CouponService
}

func NewCouponHandler(coupons *services.CouponService) *CouponHandler {
	return &CouponHandler{coupons: coupons}
}

// POST /coupons
func (h *CouponHandler) Create(c *fiber.Ctx) error {
	var req services.CreateCouponInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.DiscountValue <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "discount_value must be greater than 0"})
	}

	coupon, err := h.coupons.Create(c.Context(), req)
	if err != nil {
		log.Error().Err(err).Msg("coupon creation failed")
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(201).JSON(fiber.Map{
		"message": "coupon created",
		"coupon":  coupon,
	})
}

type redeemCouponRequest struct {
	Code   string    `json:"code"`
	UserID uuid.UUID `json:"user_id"`
}

// POST /orders/:id/coupon
func (h *CouponHandler) Redeem(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid order id"})
	}
	var req redeemCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Code == "" {
		return c.Status(400).JSON(fiber.Map{"error": "code is required"})
	}

	order, err := h.coupons.Redeem(c.Context(), orderID, req.Code, req.UserID)
	if err != nil {
		return couponError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "coupon applied",
		"order":   order,
	})
}

func couponError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrCouponNotFound):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, repositories.ErrRecordNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "order not found"})
	case errors.Is(err, services.ErrCouponNotActive),
		errors.Is(err, services.ErrCouponExhausted),
		errors.Is(err, services.ErrCouponRestricted),
		errors.Is(err, services.ErrCouponMinOrder),
		errors.Is(err, services.ErrCouponAlreadyUsed):
		return c.Status(422).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("coupon request failed")
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}
}
