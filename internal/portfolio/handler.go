package portfolio

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sokocap/soko-backoffice/pkg/middleware"
	"github.com/sokocap/soko-backoffice/pkg/response"
)

// Handler handles portfolio HTTP requests.
type Handler struct {
	svc *Service
}

// NewHandler creates a portfolio handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the portfolio endpoints.
func (h *Handler) RegisterRoutes(r fiber.Router) {
	r.Get("/portfolio", h.GetSummary)
	r.Get("/portfolio/:companyId", h.GetPosition)
}

// GetSummary returns the caller's holdings with market values.
func (h *Handler) GetSummary(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	summary, err := h.svc.GetSummary(c.Context(), userID)
	if err != nil {
		return err
	}
	return response.Success(c, summary)
}

// GetPosition returns the caller's position in one company.
func (h *Handler) GetPosition(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	pos, err := h.svc.GetPosition(c.Context(), userID, c.Params("companyId"))
	if err != nil {
		return err
	}
	return response.Success(c, pos)
}
