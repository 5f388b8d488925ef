package handlers

import (
	"github.com/Ahmed3117/silverbook/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type PricingHandler struct {
	pricing repositories.PricingRepo
}

func NewPricingHandler(pricing repositories.PricingRepo) *PricingHandler {
	return &PricingHandler{pricing: pricing}
}

// POST /over-tax/:id/activate
func (h *PricingHandler) ActivateOverTax(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid config id"})
	}
	if err := h.pricing.ActivateOverTaxConfig(c.Context(), id); err != nil {
		log.Error().Err(err).Str("config_id", id.String()).Msg("over-tax activation failed")
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}
	return c.JSON(fiber.Map{"message": "over-tax config activated"})
}
