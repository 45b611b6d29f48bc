// Package portfolio maintains per-user share positions. Position math is
// pure decimal arithmetic; the invariant is that a position row exists
// exactly when its quantity is positive.
package portfolio

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

// ApplyBuy folds an executed buy into the user's position for the company.
// totalAmount is the execution value excluding fees; fees never enter the
// cost basis. The average buy price is recomputed from the new totals in
// the same unit.
func ApplyBuy(ctx context.Context, tx ledger.Tx, userID, companyID string, quantity int64, totalAmount decimal.Decimal) (*types.Position, error) {
	pos, err := tx.GetPositionForUpdate(ctx, userID, companyID)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("get position: %w", err)
		}
		pos = &types.Position{
			ID:        uuid.New().String(),
			UserID:    userID,
			CompanyID: companyID,
		}
		pos.Quantity = quantity
		pos.TotalInvested = totalAmount
		pos.AverageBuyPrice = averagePrice(pos.TotalInvested, pos.Quantity)
		if err := tx.CreatePosition(ctx, pos); err != nil {
			return nil, fmt.Errorf("create position: %w", err)
		}
		return pos, nil
	}

	pos.Quantity += quantity
	pos.TotalInvested = pos.TotalInvested.Add(totalAmount)
	pos.AverageBuyPrice = averagePrice(pos.TotalInvested, pos.Quantity)
	if err := tx.UpdatePosition(ctx, pos.ID, pos.Quantity, pos.TotalInvested, pos.AverageBuyPrice); err != nil {
		return nil, fmt.Errorf("update position: %w", err)
	}
	return pos, nil
}

// ApplySell removes quantity shares from the position, reducing the cost
// basis proportionally: selling k of n shares removes k/n of the invested
// amount, so the average buy price of the remainder is unchanged. Selling
// the full position deletes the row.
func ApplySell(ctx context.Context, tx ledger.Tx, userID, companyID string, quantity int64) (*types.Position, error) {
	pos, err := tx.GetPositionForUpdate(ctx, userID, companyID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, apperrors.ErrInsufficientShares.WithDetails(map[string]any{
				"held":      0,
				"requested": quantity,
			})
		}
		return nil, fmt.Errorf("get position: %w", err)
	}

	if pos.Quantity < quantity {
		return nil, apperrors.ErrInsufficientShares.WithDetails(map[string]any{
			"held":      pos.Quantity,
			"requested": quantity,
		})
	}

	if pos.Quantity == quantity {
		if err := tx.DeletePosition(ctx, pos.ID); err != nil {
			return nil, fmt.Errorf("delete position: %w", err)
		}
		pos.Quantity = 0
		pos.TotalInvested = decimal.Zero
		pos.AverageBuyPrice = decimal.Zero
		return pos, nil
	}

	sold := decimal.NewFromInt(quantity)
	held := decimal.NewFromInt(pos.Quantity)
	removed := pos.TotalInvested.Mul(sold).Div(held)

	pos.Quantity -= quantity
	pos.TotalInvested = pos.TotalInvested.Sub(removed)
	pos.AverageBuyPrice = averagePrice(pos.TotalInvested, pos.Quantity)
	if err := tx.UpdatePosition(ctx, pos.ID, pos.Quantity, pos.TotalInvested, pos.AverageBuyPrice); err != nil {
		return nil, fmt.Errorf("update position: %w", err)
	}
	return pos, nil
}

func averagePrice(totalInvested decimal.Decimal, quantity int64) decimal.Decimal {
	if quantity <= 0 {
		return decimal.Zero
	}
	return totalInvested.Div(decimal.NewFromInt(quantity))
}

// Holding is a position enriched with current market data.
type Holding struct {
	types.Position
	Symbol           string          `json:"symbol"`
	CompanyName      string          `json:"company_name"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	MarketValue      decimal.Decimal `json:"market_value"`
	UnrealizedGain   decimal.Decimal `json:"unrealized_gain"`
	UnrealizedGainPc decimal.Decimal `json:"unrealized_gain_pct"`
}

// Summary aggregates a user's holdings.
type Summary struct {
	Holdings       []Holding       `json:"holdings"`
	TotalInvested  decimal.Decimal `json:"total_invested"`
	TotalValue     decimal.Decimal `json:"total_value"`
	UnrealizedGain decimal.Decimal `json:"unrealized_gain"`
}

// Service exposes portfolio reads.
type Service struct {
	store ledger.Store
}

// NewService creates a portfolio service.
func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// GetPosition returns the user's position in one company.
func (s *Service) GetPosition(ctx context.Context, userID, companyID string) (*types.Position, error) {
	pos, err := s.store.GetPosition(ctx, userID, companyID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("no position in this company")
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return pos, nil
}

// GetSummary returns all holdings priced at each company's current
// effective price, with unrealized gains against the cost basis.
func (s *Service) GetSummary(ctx context.Context, userID string) (*Summary, error) {
	positions, err := s.store.ListPositionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	summary := &Summary{
		Holdings:       make([]Holding, 0, len(positions)),
		TotalInvested:  decimal.Zero,
		TotalValue:     decimal.Zero,
		UnrealizedGain: decimal.Zero,
	}

	for _, pos := range positions {
		h := Holding{Position: pos}

		company, err := s.store.GetCompany(ctx, pos.CompanyID)
		if err == nil {
			h.Symbol = company.Symbol
			h.CompanyName = company.Name
			h.CurrentPrice = effectivePrice(company)
			h.MarketValue = h.CurrentPrice.Mul(decimal.NewFromInt(pos.Quantity))
			h.UnrealizedGain = h.MarketValue.Sub(pos.TotalInvested)
			if pos.TotalInvested.IsPositive() {
				h.UnrealizedGainPc = h.UnrealizedGain.
					Div(pos.TotalInvested).
					Mul(decimal.NewFromInt(100)).
					Round(2)
			}
		}

		summary.Holdings = append(summary.Holdings, h)
		summary.TotalInvested = summary.TotalInvested.Add(pos.TotalInvested)
		summary.TotalValue = summary.TotalValue.Add(h.MarketValue)
	}

	summary.UnrealizedGain = summary.TotalValue.Sub(summary.TotalInvested)
	return summary, nil
}

func effectivePrice(c *types.Company) decimal.Decimal {
	if c.SharePrice.IsPositive() {
		return c.SharePrice
	}
	return c.ClosingPrice
}
