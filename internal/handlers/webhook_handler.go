package handlers

import (
	"errors"
	"strconv"

	"github.com/Ahmed3117/silverbook/internal/core/payment"
	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/Ahmed3117/silverbook/internal/repositories"
	"github.com/Ahmed3117/silverbook/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// WebhookHandler ingests payment gateway callbacks. Both endpoints always
// answer 200 for orders they cannot match, so providers stop retrying
// deliveries we can never process.
type WebhookHandler struct {
	payments  *payment.Service
	machine   *services.OrderService
	orderRepo repositories.OrderRepo
}

func NewWebhookHandler(payments *payment.Service, machine *services.OrderService, orderRepo repositories.OrderRepo) *WebhookHandler {
	return &WebhookHandler{payments: payments, machine: machine, orderRepo: orderRepo}
}

// POST /webhooks/shakeout
func (h *WebhookHandler) Shakeout(c *fiber.Ctx) error {
	var payload map[string]interface{}
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}

	ref := firstString(payload, "invoice_id", "invoice_ref", "id")
	if ref == "" {
		return c.Status(400).JSON(fiber.Map{"error": "missing invoice reference"})
	}
	status := firstString(payload, "status", "invoice_status")

	return h.process(c, models.ProviderShakeout, ref, status, payload)
}

// POST /webhooks/easypay
func (h *WebhookHandler) Easypay(c *fiber.Ctx) error {
	var payload map[string]interface{}
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}

	ref := firstString(payload, "invoice_uid", "uid", "fawry_ref_number", "fawryRefNumber")
	if ref == "" {
		return c.Status(400).JSON(fiber.Map{"error": "missing invoice reference"})
	}
	status := firstString(payload, "payment_status", "status")

	return h.process(c, models.ProviderEasypay, ref, status, payload)
}

func (h *WebhookHandler) process(c *fiber.Ctx, provider models.PaymentProvider, ref, rawStatus string, payload map[string]interface{}) error {
	order, err := h.orderRepo.GetByInvoiceRef(c.Context(), provider, ref)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		log.Warn().
			Str("provider", string(provider)).
			Str("ref", ref).
			Msg("webhook for unknown invoice")
		return c.JSON(fiber.Map{"status": "ignored"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}

	if err := h.payments.RecordWebhook(c.Context(), order, provider, payload); err != nil {
		log.Error().Err(err).
			Str("order_number", order.OrderNumber).
			Msg("recording webhook payload failed")
	}

	status := payment.NormalizeStatus(provider, rawStatus)
	log.Info().
		Str("provider", string(provider)).
		Str("order_number", order.OrderNumber).
		Str("payment_status", status).
		Msg("payment webhook received")

	if status != payment.StatusPaid {
		return c.JSON(fiber.Map{"status": "received"})
	}

	if _, err := h.machine.MarkPaid(c.Context(), order.ID); err != nil {
		// Answer 200 anyway so the provider does not retry a payment we
		// already know about; reconciliation will pick the order up.
		log.Error().Err(err).
			Str("order_number", order.OrderNumber).
			Msg("marking order paid from webhook failed")
		return c.JSON(fiber.Map{"status": "received", "message": "payment recorded, confirmation pending"})
	}

	return c.JSON(fiber.Map{"status": "success", "message": "payment confirmed"})
}

func firstString(payload map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if value, ok := payload[key].(string); ok && value != "" {
			return value
		}
		if value, ok := payload[key].(float64); ok {
			return trimFloat(value)
		}
	}
	return ""
}

// trimFloat renders numeric JSON ids without a decimal point.
func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}
