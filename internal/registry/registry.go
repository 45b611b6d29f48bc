// Package registry maintains the listed-company records and their
// trading statistics.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokocap/soko-backoffice/internal/ledger"
	"github.com/sokocap/soko-backoffice/internal/types"
	apperrors "github.com/sokocap/soko-backoffice/pkg/errors"
)

// GetForTrade locks and returns the company a trade targets, verifying
// share availability for buys before any money moves.
func GetForTrade(ctx context.Context, tx ledger.Tx, companyID, side string, quantity int64) (*types.Company, error) {
	company, err := tx.GetCompanyForUpdate(ctx, companyID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, apperrors.ErrCompanyNotFound.WithDetails(map[string]any{
				"company_id": companyID,
			})
		}
		return nil, fmt.Errorf("get company: %w", err)
	}

	if side == types.SideBuy && company.AvailableShares < quantity {
		return nil, apperrors.ErrSharesUnavailable.WithDetails(map[string]any{
			"symbol":    company.Symbol,
			"available": company.AvailableShares,
			"requested": quantity,
		})
	}
	return company, nil
}

// ApplyTrade folds one executed trade into the company's market
// statistics, inside the same atomic unit as the trade itself:
//
//   - previous closing price <- old closing price
//   - closing price          <- executed price
//   - price change           <- closing minus previous close, 2 decimals
//   - available shares       -= quantity for buys, += for sells
//   - traded volume          += quantity
//   - traded value           += total amount (excluding fees)
func ApplyTrade(ctx context.Context, tx ledger.Tx, company *types.Company, side string, quantity int64, executedPrice, totalAmount decimal.Decimal) error {
	previousClosing := company.ClosingPrice
	closing := executedPrice

	priceChange := closing.Sub(previousClosing).StringFixed(2)

	available := company.AvailableShares
	if side == types.SideBuy {
		available -= quantity
	} else {
		available += quantity
	}

	err := tx.UpdateCompanyMarketStats(ctx, company.ID,
		closing, previousClosing, priceChange,
		available,
		company.TradedVolume+quantity,
		company.TradedValue.Add(totalAmount))
	if err != nil {
		return fmt.Errorf("update company market stats: %w", err)
	}
	return nil
}

// Service exposes company registry reads and registration.
type Service struct {
	store ledger.Store
}

// NewService creates a registry service.
func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// CreateCompanyRequest registers a new listing.
type CreateCompanyRequest struct {
	Symbol          string `json:"symbol"`
	Name            string `json:"name"`
	SharePrice      string `json:"share_price"`
	TotalShares     int64  `json:"total_shares"`
	AvailableShares int64  `json:"available_shares"`
}

// Create registers a listed company. Available shares default to the
// total issue when unset.
func (s *Service) Create(ctx context.Context, req CreateCompanyRequest) (*types.Company, error) {
	if req.Symbol == "" || req.Name == "" {
		return nil, apperrors.ErrValidation.WithMessage("symbol and name are required")
	}
	if req.TotalShares <= 0 {
		return nil, apperrors.ErrValidation.WithMessage("total shares must be positive")
	}

	sharePrice, err := decimal.NewFromString(req.SharePrice)
	if err != nil || !sharePrice.IsPositive() {
		return nil, apperrors.ErrValidation.WithMessage("share price must be a positive decimal")
	}

	available := req.AvailableShares
	if available <= 0 || available > req.TotalShares {
		available = req.TotalShares
	}

	company := &types.Company{
		ID:                   uuid.New().String(),
		Symbol:               req.Symbol,
		Name:                 req.Name,
		SharePrice:           sharePrice,
		ClosingPrice:         sharePrice,
		PreviousClosingPrice: sharePrice,
		PriceChange:          "0.00",
		TotalShares:          req.TotalShares,
		AvailableShares:      available,
		TradedVolume:         0,
		TradedValue:          decimal.Zero,
	}
	if err := s.store.CreateCompany(ctx, company); err != nil {
		if errors.Is(err, ledger.ErrDuplicate) {
			return nil, apperrors.ErrConflict.WithMessage("company symbol already registered")
		}
		return nil, fmt.Errorf("create company: %w", err)
	}
	return company, nil
}

// Get returns a company by ID.
func (s *Service) Get(ctx context.Context, companyID string) (*types.Company, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, apperrors.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("get company: %w", err)
	}
	return company, nil
}

// GetBySymbol returns a company by ticker symbol.
func (s *Service) GetBySymbol(ctx context.Context, symbol string) (*types.Company, error) {
	company, err := s.store.GetCompanyBySymbol(ctx, symbol)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, apperrors.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("get company by symbol: %w", err)
	}
	return company, nil
}

// List returns every listed company.
func (s *Service) List(ctx context.Context) ([]types.Company, error) {
	companies, err := s.store.ListCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	return companies, nil
}
