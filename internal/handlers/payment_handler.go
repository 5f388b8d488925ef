package handlers

import (
	"errors"

	"github.com/Ahmed3117/silverbook/internal/core/payment"
	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/Ahmed3117/silverbook/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type PaymentHandler struct {
	payments  *payment.Service
	orderRepo repositories.OrderRepo
}

func NewPaymentHandler(payments *payment.Service, orderRepo repositories.OrderRepo) *PaymentHandler {
	return &PaymentHandler{payments: payments, orderRepo: orderRepo}
}

type createInvoiceRequest struct {
	Provider models.PaymentProvider `json:"provider,omitempty"`
}

// POST /orders/:id/invoice
func (h *PaymentHandler) CreateInvoice(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid order id"})
	}
	var req createInvoiceRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
	}

	order, err := h.orderRepo.GetByID(c.Context(), id)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "order not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}
	if order.Paid {
		return c.Status(409).JSON(fiber.Map{"error": "order is already paid"})
	}

	invoice, err := h.payments.CreateInvoice(c.Context(), order, req.Provider)
	switch {
	case errors.Is(err, payment.ErrInvoiceConflict):
		return c.Status(409).JSON(fiber.Map{"error": "order already has an active invoice"})
	case errors.Is(err, payment.ErrGateway):
		log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("invoice creation failed")
		return c.Status(502).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("invoice creation failed")
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}

	return c.Status(201).JSON(fiber.Map{
		"message": "invoice created",
		"invoice": invoice,
	})
}

// GET /orders/:id/invoice
func (h *PaymentHandler) CheckStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid order id"})
	}
	order, err := h.orderRepo.GetByID(c.Context(), id)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "order not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}

	result, err := h.payments.CheckStatus(c.Context(), order)
	switch {
	case errors.Is(err, payment.ErrNoInvoice):
		return c.Status(404).JSON(fiber.Map{"error": "order has no invoice"})
	case err != nil:
		log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("invoice status check failed")
		return c.Status(502).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"order_number":   order.OrderNumber,
		"payment_status": result.PaymentStatus,
	})
}
