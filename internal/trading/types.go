package trading

import (
	"github.com/shopspring/decimal"

	"github.com/sokocap/soko-backoffice/internal/types"
	apperrors "github.com/sokocap/soko-backoffice/pkg/errors"
)

// Request is one trade order. RequestedPrice is a decimal string and is
// required for LIMIT orders; ClientRef is an optional idempotency key.
type Request struct {
	UserID         string `json:"-"`
	CompanyID      string `json:"company_id"`
	Side           string `json:"side"`
	PriceMode      string `json:"price_mode"`
	RequestedPrice string `json:"requested_price,omitempty"`
	Quantity       int64  `json:"quantity"`
	ClientRef      string `json:"client_ref,omitempty"`
}

// Result is the outcome of an executed trade: the immutable trade record
// plus the post-trade wallet and position views.
type Result struct {
	Trade    *types.Trade    `json:"trade"`
	Wallet   *types.Wallet   `json:"wallet"`
	Position *types.Position `json:"position,omitempty"`
}

// validate checks the request shape before any state is touched.
func (r *Request) validate(lotSize int64) (decimal.Decimal, error) {
	if r.UserID == "" || r.CompanyID == "" {
		return decimal.Zero, apperrors.ErrValidation.WithMessage("user and company are required")
	}

	switch r.Side {
	case types.SideBuy, types.SideSell:
	default:
		return decimal.Zero, apperrors.ErrValidation.WithMessage("side must be BUY or SELL")
	}

	if r.PriceMode == "" {
		r.PriceMode = types.PriceModeMarket
	}

	if r.Quantity <= 0 {
		return decimal.Zero, apperrors.ErrInvalidQuantity.WithDetails(map[string]any{
			"quantity": r.Quantity,
		})
	}
	if lotSize > 1 && r.Quantity%lotSize != 0 {
		return decimal.Zero, apperrors.ErrInvalidLotSize.WithDetails(map[string]any{
			"quantity": r.Quantity,
			"lot_size": lotSize,
		})
	}

	requestedPrice := decimal.Zero
	if r.RequestedPrice != "" {
		var err error
		requestedPrice, err = decimal.NewFromString(r.RequestedPrice)
		if err != nil {
			return decimal.Zero, apperrors.ErrValidation.WithMessage("requested price must be a decimal string")
		}
	}
	if r.PriceMode == types.PriceModeLimit && !requestedPrice.IsPositive() {
		return decimal.Zero, apperrors.ErrValidation.WithMessage("limit orders require a positive requested price")
	}

	return requestedPrice, nil
}
