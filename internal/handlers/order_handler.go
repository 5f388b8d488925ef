package handlers

import (
	"errors"

	"github.com/Ahmed3117/silverbook/internal/models"
	"github.com/Ahmed3117/silverbook/internal/repositories"
	"github.com/Ahmed3117/silverbook/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type OrderHandler struct {
	machine   *services.OrderService
	prices    *services.PriceService
	orderRepo repositories.OrderRepo
	statusLog repositories.StatusLogRepo
}

func NewOrderHandler(machine *services.OrderService, prices *services.PriceService, orderRepo repositories.OrderRepo, statusLog repositories.StatusLogRepo) *OrderHandler {
	return &OrderHandler{machine: machine, prices: prices, orderRepo: orderRepo, statusLog: statusLog}
}

// POST /orders
func (h *OrderHandler) Create(c *fiber.Ctx) error {
	var req services.CreateOrderInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.UserID == uuid.Nil {
		return c.Status(400).JSON(fiber.Map{"error": "user_id is required"})
	}
	if len(req.Lines) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "lines is required"})
	}

	order, err := h.machine.Create(c.Context(), req)
	if err != nil {
		return orderError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{
		"message": "order created",
		"order":   order,
	})
}

// GET /orders/:id
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid order id"})
	}
	order, err := h.orderRepo.GetByID(c.Context(), id)
	if err != nil {
		return orderError(c, err)
	}
	return c.JSON(fiber.Map{"order": order})
}

// GET /orders/number/:number
func (h *OrderHandler) GetByNumber(c *fiber.Ctx) error {
	number := c.Params("number")
	if len(number) != 20 {
		return c.Status(400).JSON(fiber.Map{"error": "invalid order number"})
	}
	order, err := h.orderRepo.GetByOrderNumber(c.Context(), number)
	if err != nil {
		return orderError(c, err)
	}
	return c.JSON(fiber.Map{"order": order})
}

// GET /orders/:id/price
func (h *OrderHandler) Price(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid order id"})
	}
	order, err := h.orderRepo.GetByID(c.Context(), id)
	if err != nil {
		return orderError(c, err)
	}
	quote, err := h.prices.Price(c.Context(), order)
	if err != nil {
		return orderError(c, err)
	}
	return c.JSON(fiber.Map{"order_number": order.OrderNumber, "price": quote})
}

// PATCH /orders/:id/status
func (h *OrderHandler) Transition(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid order id"})
	}
	var req services.TransitionInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Status == nil && req.Paid == nil {
		return c.Status(400).JSON(fiber.Map{"error": "status or paid is required"})
	}

	order, err := h.machine.ApplyTransition(c.Context(), id, req)
	if err != nil {
		// The transition may have committed before a paid side effect
		// failed; report the failure but return the order when we have it.
		if order != nil {
			log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("transition side effect failed")
			return c.Status(502).JSON(fiber.Map{
				"error": err.Error(),
				"order": order,
			})
		}
		return orderError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "order updated",
		"order":   order,
	})
}

// GET /orders/:id/status-log
func (h *OrderHandler) StatusLog(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid order id"})
	}
	entries, err := h.statusLog.ListByOrder(c.Context(), id)
	if err != nil {
		return orderError(c, err)
	}
	type entry struct {
		Status    models.OrderStatus `json:"status"`
		Display   string             `json:"display"`
		ChangedAt string             `json:"changed_at"`
	}
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entry{
			Status:    e.Status,
			Display:   e.Status.Display(),
			ChangedAt: e.ChangedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return c.JSON(fiber.Map{"status_log": out})
}

// orderError maps service errors onto HTTP statuses.
func orderError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, repositories.ErrRecordNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "order not found"})
	case errors.Is(err, repositories.ErrInsufficientStock):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrEmptyOrder),
		errors.Is(err, services.ErrMissingAddress):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("order request failed")
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}
}
