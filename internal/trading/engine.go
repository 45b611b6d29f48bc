// Package trading executes buy and sell orders. Every order runs as one
// atomic unit over the ledger: price resolution, sufficiency checks,
// wallet movement, position update, company statistics, and the trade and
// transaction records all commit together or not at all. Notifications
// and events fire only after the unit commits.
package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokocap/soko-backoffice/internal/ledger"
	"github.com/sokocap/soko-backoffice/internal/portfolio"
	"github.com/sokocap/soko-backoffice/internal/pricing"
	"github.com/sokocap/soko-backoffice/internal/registry"
	"github.com/sokocap/soko-backoffice/internal/types"
	"github.com/sokocap/soko-backoffice/internal/wallet"
	apperrors "github.com/sokocap/soko-backoffice/pkg/errors"
	"github.com/sokocap/soko-backoffice/pkg/logger"
	"github.com/sokocap/soko-backoffice/pkg/metrics"
)

// Notifier receives post-commit trade notifications. Implementations must
// not fail the trade; errors are theirs to log.
type Notifier interface {
	TradeExecuted(ctx context.Context, trade *types.Trade, company *types.Company)
}

// Config tunes the engine.
type Config struct {
	// FeeRate is the brokerage commission as a fraction of the trade
	// value, e.g. 0.005 for 0.5%. Applied to both sides.
	FeeRate decimal.Decimal

	// LotSize is the required quantity multiple. 1 disables the check.
	LotSize int64

	// UnitTimeout bounds one atomic unit, lock wait included.
	UnitTimeout time.Duration
}

// Engine executes orders synchronously.
type Engine struct {
	store    ledger.Store
	cfg      Config
	notifier Notifier
}

// NewEngine creates a trade execution engine. notifier may be nil.
func NewEngine(store ledger.Store, cfg Config, notifier Notifier) *Engine {
	if cfg.LotSize <= 0 {
		cfg.LotSize = 1
	}
	if cfg.UnitTimeout <= 0 {
		cfg.UnitTimeout = 10 * time.Second
	}
	return &Engine{store: store, cfg: cfg, notifier: notifier}
}

// Execute runs one order to completion. On any failure the ledger is left
// exactly as it was.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	requestedPrice, err := req.validate(e.cfg.LotSize)
	if err != nil {
		metrics.RecordTrade(req.Side, "rejected")
		return nil, err
	}

	unitCtx, cancel := context.WithTimeout(ctx, e.cfg.UnitTimeout)
	defer cancel()

	start := time.Now()
	var (
		result  Result
		company *types.Company
	)
	err = e.store.WithinTx(unitCtx, func(tx ledger.Tx) error {
		company, err = registry.GetForTrade(unitCtx, tx, req.CompanyID, req.Side, req.Quantity)
		if err != nil {
			return err
		}

		executedPrice, err := pricing.Resolve(company, req.PriceMode, requestedPrice)
		if err != nil {
			return err
		}

		totalAmount := executedPrice.Mul(decimal.NewFromInt(req.Quantity))
		fees := totalAmount.Mul(e.cfg.FeeRate).Round(2)

		trade := &types.Trade{
			ID:             uuid.New().String(),
			UserID:         req.UserID,
			CompanyID:      req.CompanyID,
			Side:           req.Side,
			PriceMode:      req.PriceMode,
			RequestedPrice: requestedPrice,
			ExecutedPrice:  executedPrice,
			Quantity:       req.Quantity,
			Fees:           fees,
			TotalAmount:    totalAmount,
			Status:         types.TradeStatusExecuted,
			ClientRef:      req.ClientRef,
		}

		if req.Side == types.SideBuy {
			// Buyer pays the trade value plus commission.
			w, err := wallet.Debit(unitCtx, tx, req.UserID, totalAmount.Add(fees))
			if err != nil {
				return err
			}
			pos, err := portfolio.ApplyBuy(unitCtx, tx, req.UserID, req.CompanyID, req.Quantity, totalAmount)
			if err != nil {
				return err
			}
			result.Wallet = w
			result.Position = pos
		} else {
			// Shares leave first so an oversell aborts before money moves.
			pos, err := portfolio.ApplySell(unitCtx, tx, req.UserID, req.CompanyID, req.Quantity)
			if err != nil {
				return err
			}
			// Seller receives the trade value minus commission.
			w, err := wallet.Credit(unitCtx, tx, req.UserID, totalAmount.Sub(fees))
			if err != nil {
				return err
			}
			result.Wallet = w
			if pos.Quantity > 0 {
				result.Position = pos
			}
		}

		if err := registry.ApplyTrade(unitCtx, tx, company, req.Side, req.Quantity, executedPrice, totalAmount); err != nil {
			return err
		}

		txType := types.TxTypeBuyShares
		if req.Side == types.SideSell {
			txType = types.TxTypeSellShares
		}
		ledgerTx := &types.Transaction{
			ID:     uuid.New().String(),
			UserID: req.UserID,
			Type:   txType,
			Amount: totalAmount,
			Status: types.TxStatusCompleted,
			Metadata: map[string]string{
				"symbol":   company.Symbol,
				"quantity": fmt.Sprintf("%d", req.Quantity),
				"price":    executedPrice.String(),
				"fees":     fees.String(),
			},
		}
		if err := tx.InsertTransaction(unitCtx, ledgerTx); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		trade.TransactionID = ledgerTx.ID
		if err := tx.InsertTrade(unitCtx, trade); err != nil {
			if errors.Is(err, ledger.ErrDuplicate) {
				return apperrors.ErrDuplicateTrade.WithDetails(map[string]any{
					"client_ref": req.ClientRef,
				})
			}
			return fmt.Errorf("insert trade: %w", err)
		}

		result.Trade = trade
		return nil
	})
	if err != nil {
		metrics.RecordTrade(req.Side, "failed")
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		logger.Error().Err(err).
			Str("user_id", req.UserID).
			Str("company_id", req.CompanyID).
			Str("side", req.Side).
			Msg("trade execution failed")
		return nil, apperrors.ErrExecutionFailed.WithError(err)
	}

	metrics.RecordTrade(req.Side, "executed")
	metrics.ObserveTradeExecution(req.Side, time.Since(start))

	logger.Info().
		Str("trade_id", result.Trade.ID).
		Str("user_id", req.UserID).
		Str("symbol", company.Symbol).
		Str("side", req.Side).
		Int64("quantity", req.Quantity).
		Str("executed_price", result.Trade.ExecutedPrice.String()).
		Str("total_amount", result.Trade.TotalAmount.String()).
		Msg("trade executed")

	if e.notifier != nil {
		e.notifier.TradeExecuted(ctx, result.Trade, company)
	}
	return &result, nil
}

// GetTrade returns one trade, scoped to its owner.
func (e *Engine) GetTrade(ctx context.Context, userID, tradeID string) (*types.Trade, error) {
	trade, err := e.store.GetTrade(ctx, tradeID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("trade not found")
		}
		return nil, fmt.Errorf("get trade: %w", err)
	}
	if trade.UserID != userID {
		return nil, apperrors.ErrNotFound.WithMessage("trade not found")
	}
	return trade, nil
}

// ListTrades returns the user's most recent trades.
func (e *Engine) ListTrades(ctx context.Context, userID string, limit int) ([]types.Trade, error) {
	trades, err := e.store.ListTradesByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return trades, nil
}
