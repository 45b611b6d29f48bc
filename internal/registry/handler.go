package registry

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/sokocap/soko-backoffice/pkg/errors"
	"github.com/sokocap/soko-backoffice/pkg/response"
)

// Handler handles company registry HTTP requests.
type Handler struct {
	svc *Service
}

// NewHandler creates a registry handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public company endpoints.
func (h *Handler) RegisterRoutes(r fiber.Router) {
	r.Get("/companies", h.List)
	r.Get("/companies/:id", h.Get)
}

// RegisterAdminRoutes mounts the registration endpoint.
func (h *Handler) RegisterAdminRoutes(r fiber.Router) {
	r.Post("/companies", h.Create)
}

// List returns every listed company.
func (h *Handler) List(c *fiber.Ctx) error {
	companies, err := h.svc.List(c.Context())
	if err != nil {
		return err
	}
	return response.Success(c, fiber.Map{
		"companies": companies,
		"count":     len(companies),
	})
}

// Get returns one company by ID or ticker symbol.
func (h *Handler) Get(c *fiber.Ctx) error {
	id := c.Params("id")

	company, err := h.svc.Get(c.Context(), id)
	if err == nil {
		return response.Success(c, company)
	}
	company, err = h.svc.GetBySymbol(c.Context(), id)
	if err != nil {
		return err
	}
	return response.Success(c, company)
}

// Create registers a new listed company.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req CreateCompanyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.ErrValidation.WithMessage("invalid request body")
	}

	company, err := h.svc.Create(c.Context(), req)
	if err != nil {
		return err
	}
	return response.Created(c, company)
}
