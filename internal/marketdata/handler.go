package marketdata

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sokocap/soko-backoffice/internal/registry"
	apperrors "github.com/sokocap/soko-backoffice/pkg/errors"
	"github.com/sokocap/soko-backoffice/pkg/response"
)

// Handler handles market data HTTP requests.
type Handler struct {
	cache     *Cache
	companies *registry.Service
	scraper   *Scraper
}

// NewHandler creates a market data handler. cache and scraper may be nil.
func NewHandler(cache *Cache, companies *registry.Service, scraper *Scraper) *Handler {
	return &Handler{cache: cache, companies: companies, scraper: scraper}
}

// RegisterRoutes mounts the public quote endpoints.
func (h *Handler) RegisterRoutes(r fiber.Router) {
	r.Get("/quotes/:symbol", h.GetQuote)
}

// RegisterAdminRoutes mounts the manual refresh endpoint.
func (h *Handler) RegisterAdminRoutes(r fiber.Router) {
	r.Post("/marketdata/refresh", h.Refresh)
}

// GetQuote returns the latest price for a symbol, cache first.
func (h *Handler) GetQuote(c *fiber.Ctx) error {
	symbol := strings.ToUpper(c.Params("symbol"))
	if symbol == "" {
		return apperrors.ErrValidation.WithMessage("symbol is required")
	}

	if h.cache != nil {
		if quote, err := h.cache.GetQuote(c.Context(), symbol); err == nil {
			return response.Success(c, quote)
		}
	}

	company, err := h.companies.GetBySymbol(c.Context(), symbol)
	if err != nil {
		return err
	}

	price := company.SharePrice
	if !price.IsPositive() {
		price = company.ClosingPrice
	}
	return response.Success(c, Quote{
		Symbol:    symbol,
		Price:     price.String(),
		FetchedAt: time.Now().UTC(),
	})
}

// Refresh triggers an immediate scrape.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	if h.scraper == nil {
		return apperrors.ErrServiceUnavailable.WithMessage("market data feed is not configured")
	}
	if err := h.scraper.ScrapeOnce(c.Context()); err != nil {
		return apperrors.ErrServiceUnavailable.WithError(err)
	}
	return response.Success(c, fiber.Map{"refreshed": true})
}
