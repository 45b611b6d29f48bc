package wallet

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sokocap/soko-backoffice/pkg/middleware"
	"github.com/sokocap/soko-backoffice/pkg/response"
)

// Handler handles wallet HTTP requests.
type Handler struct {
	svc *Service
}

// NewHandler creates a wallet handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the wallet endpoints.
func (h *Handler) RegisterRoutes(r fiber.Router) {
	r.Get("/wallet", h.GetWallet)
}

// GetWallet returns the caller's cash balance.
func (h *Handler) GetWallet(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	w, err := h.svc.Get(c.Context(), userID)
	if err != nil {
		return err
	}
	return response.Success(c, fiber.Map{
		"wallet":            w,
		"available_balance": w.AvailableBalance(),
	})
}
