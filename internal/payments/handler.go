package payments

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	apperrors "github.com/sokocap/soko-backoffice/pkg/errors"
	"github.com/sokocap/soko-backoffice/pkg/logger"
	"github.com/sokocap/soko-backoffice/pkg/middleware"
	"github.com/sokocap/soko-backoffice/pkg/response"
)

// Handler handles payment HTTP requests.
type Handler struct {
	svc *Service
}

// NewHandler creates a payments handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the authenticated payment endpoints.
func (h *Handler) RegisterRoutes(r fiber.Router) {
	r.Post("/payments/deposit", h.Deposit)
	r.Post("/payments/withdraw", h.Withdraw)
	r.Get("/transactions", h.ListTransactions)
	r.Get("/transactions/:id", h.GetTransaction)
}

// RegisterCallbackRoutes mounts the unauthenticated provider callbacks.
func (h *Handler) RegisterCallbackRoutes(r fiber.Router) {
	r.Post("/callbacks/mpesa/stk", h.STKCallback)
	r.Post("/callbacks/mpesa/b2c", h.B2CCallback)
}

type paymentRequest struct {
	Phone  string `json:"phone"`
	Amount string `json:"amount"`
}

func (r *paymentRequest) amount() (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return decimal.Zero, apperrors.ErrValidation.WithMessage("amount must be a decimal string")
	}
	return amount, nil
}

// Deposit initiates a mobile money deposit.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.ErrValidation.WithMessage("invalid request body")
	}
	amount, err := req.amount()
	if err != nil {
		return err
	}

	txn, err := h.svc.Deposit(c.Context(), userID, req.Phone, amount)
	if err != nil {
		return err
	}
	return response.Created(c, txn)
}

// Withdraw initiates a mobile money withdrawal.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.ErrValidation.WithMessage("invalid request body")
	}
	amount, err := req.amount()
	if err != nil {
		return err
	}

	txn, err := h.svc.Withdraw(c.Context(), userID, req.Phone, amount)
	if err != nil {
		return err
	}
	return response.Created(c, txn)
}

// STKCallback receives deposit settlements from the provider. Always
// answers 200 so the provider does not retry malformed payloads forever.
func (h *Handler) STKCallback(c *fiber.Ctx) error {
	var cb STKCallback
	if err := c.BodyParser(&cb); err != nil {
		logger.Error().Err(err).Msg("failed to parse STK callback")
		return c.SendStatus(fiber.StatusOK)
	}

	if err := h.svc.HandleDepositCallback(c.Context(), ParseSTKCallback(&cb)); err != nil {
		logger.Error().Err(err).Msg("failed to handle STK callback")
	}
	return c.SendStatus(fiber.StatusOK)
}

// B2CCallback receives payout results from the provider.
func (h *Handler) B2CCallback(c *fiber.Ctx) error {
	var cb B2CCallback
	if err := c.BodyParser(&cb); err != nil {
		logger.Error().Err(err).Msg("failed to parse B2C callback")
		return c.SendStatus(fiber.StatusOK)
	}

	if err := h.svc.HandlePayoutCallback(c.Context(), ParseB2CCallback(&cb)); err != nil {
		logger.Error().Err(err).Msg("failed to handle B2C callback")
	}
	return c.SendStatus(fiber.StatusOK)
}

// GetTransaction retrieves one of the caller's transactions.
func (h *Handler) GetTransaction(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	txn, err := h.svc.GetTransaction(c.Context(), userID, c.Params("id"))
	if err != nil {
		return err
	}
	return response.Success(c, txn)
}

// ListTransactions retrieves the caller's recent transactions.
func (h *Handler) ListTransactions(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	limit := c.QueryInt("limit", 50)

	txs, err := h.svc.ListTransactions(c.Context(), userID, limit)
	if err != nil {
		return err
	}
	return response.Success(c, fiber.Map{
		"transactions": txs,
		"count":        len(txs),
	})
}
