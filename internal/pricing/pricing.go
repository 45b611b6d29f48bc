// Package pricing resolves the execution price for a trade request.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/sokocap/soko-backoffice/internal/types"
	apperrors "github.com/sokocap/soko-backoffice/pkg/errors"
)

// Resolve returns the price one share executes at.
//
// MARKET orders execute at the company's closing price, falling back to
// the listed share price when no closing price is set yet. The scraped
// live price is advisory and never settles a trade. LIMIT orders execute
// at exactly the requested price. A MARKET order against a company with
// neither price fails with PRICE_UNAVAILABLE rather than executing at zero.
func Resolve(company *types.Company, priceMode string, requestedPrice decimal.Decimal) (decimal.Decimal, error) {
	switch priceMode {
	case types.PriceModeLimit:
		if !requestedPrice.IsPositive() {
			return decimal.Zero, apperrors.ErrBadRequest.WithMessage("limit price must be positive")
		}
		return requestedPrice, nil

	case types.PriceModeMarket:
		if company.ClosingPrice.IsPositive() {
			return company.ClosingPrice, nil
		}
		if company.SharePrice.IsPositive() {
			return company.SharePrice, nil
		}
		return decimal.Zero, apperrors.ErrPriceUnavailable.WithDetails(map[string]any{
			"company_id": company.ID,
			"symbol":     company.Symbol,
		})

	default:
		return decimal.Zero, apperrors.ErrBadRequest.WithMessage("price mode must be MARKET or LIMIT")
	}
}
