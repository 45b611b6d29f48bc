package trading

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/sokocap/soko-backoffice/pkg/errors"
	"github.com/sokocap/soko-backoffice/pkg/middleware"
	"github.com/sokocap/soko-backoffice/pkg/response"
)

// Handler handles trading HTTP requests.
type Handler struct {
	engine *Engine
}

// NewHandler creates a trading handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes mounts the trading endpoints.
func (h *Handler) RegisterRoutes(r fiber.Router) {
	r.Post("/trades", h.Execute)
	r.Get("/trades", h.ListTrades)
	r.Get("/trades/:id", h.GetTrade)
}

// Execute handles order placement.
func (h *Handler) Execute(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req Request
	if err := c.BodyParser(&req); err != nil {
		return apperrors.ErrValidation.WithMessage("invalid request body")
	}
	req.UserID = userID

	result, err := h.engine.Execute(c.Context(), req)
	if err != nil {
		return err
	}
	return response.Created(c, result)
}

// GetTrade retrieves one trade by ID.
func (h *Handler) GetTrade(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	trade, err := h.engine.GetTrade(c.Context(), userID, c.Params("id"))
	if err != nil {
		return err
	}
	return response.Success(c, trade)
}

// ListTrades retrieves the user's recent trades.
func (h *Handler) ListTrades(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	limit := c.QueryInt("limit", 50)

	trades, err := h.engine.ListTrades(c.Context(), userID, limit)
	if err != nil {
		return err
	}
	return response.Success(c, fiber.Map{
		"trades": trades,
		"count":  len(trades),
	})
}
