// Package ledger defines the persistence interface for the back office.
// PostgreSQL is the source of truth; the in-memory implementation serves
// tests and development.
//
// All mutating operations for one trade, deposit, or withdrawal run inside
// a single atomic unit opened with WithinTx. Reads used to decide
// sufficiency must come from the Tx, never from an earlier plain read.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/sokocap/soko-backoffice/internal/types"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("ledger: not found")

// ErrDuplicate is returned when a unique constraint (e.g. a trade's
// client_ref) rejects an insert.
var ErrDuplicate = errors.New("ledger: duplicate key")

// Tx is the set of operations available inside one atomic unit. ForUpdate
// reads take row locks; two units touching the same wallet, position, or
// company serialize against each other.
type Tx interface {
	// GetWalletForUpdate locks and returns the user's wallet.
	GetWalletForUpdate(ctx context.Context, userID string) (*types.Wallet, error)

	// CreateWallet inserts a fresh wallet with zero balances.
	CreateWallet(ctx context.Context, wallet *types.Wallet) error

	// UpdateWalletBalance writes new balance figures for a locked wallet.
	UpdateWalletBalance(ctx context.Context, walletID string, balance, locked decimal.Decimal) error

	// GetPositionForUpdate locks and returns the (user, company) position.
	GetPositionForUpdate(ctx context.Context, userID, companyID string) (*types.Position, error)

	// CreatePosition inserts a new position.
	CreatePosition(ctx context.Context, position *types.Position) error

	// UpdatePosition writes quantity, total invested, and the recomputed
	// average buy price for a locked position.
	UpdatePosition(ctx context.Context, positionID string, quantity int64, totalInvested, averageBuyPrice decimal.Decimal) error

	// DeletePosition removes a fully liquidated position.
	DeletePosition(ctx context.Context, positionID string) error

	// GetCompanyForUpdate locks and returns the company registry row.
	GetCompanyForUpdate(ctx context.Context, companyID string) (*types.Company, error)

	// UpdateCompanyMarketStats writes the post-trade aggregate fields.
	UpdateCompanyMarketStats(ctx context.Context, companyID string, closingPrice, previousClosingPrice decimal.Decimal, priceChange string, availableShares, tradedVolume int64, tradedValue decimal.Decimal) error

	// UpdateCompanySharePrice writes an advisory live price from the
	// market data feed. Trade settlement never depends on it directly.
	UpdateCompanySharePrice(ctx context.Context, companyID string, sharePrice decimal.Decimal) error

	// InsertTransaction appends an immutable transaction row.
	InsertTransaction(ctx context.Context, tx *types.Transaction) error

	// GetTransactionForUpdate locks and returns a transaction so that a
	// settlement decision and its status transition share one unit.
	GetTransactionForUpdate(ctx context.Context, transactionID string) (*types.Transaction, error)

	// UpdateTransactionStatus transitions a pending transaction once.
	UpdateTransactionStatus(ctx context.Context, transactionID, status string, metadata map[string]string) error

	// SetTransactionProviderRef attaches the payment provider's reference
	// once it is known, after the external call returns.
	SetTransactionProviderRef(ctx context.Context, transactionID, provider, providerRef string) error

	// InsertTrade appends an immutable trade row.
	InsertTrade(ctx context.Context, trade *types.Trade) error
}

// Store is the persistence interface. WithinTx runs fn inside one atomic
// unit: if fn returns an error the unit aborts with nothing applied.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// Plain reads (no locks, outside any unit)

	GetWallet(ctx context.Context, userID string) (*types.Wallet, error)
	GetPosition(ctx context.Context, userID, companyID string) (*types.Position, error)
	ListPositionsByUser(ctx context.Context, userID string) ([]types.Position, error)
	GetCompany(ctx context.Context, companyID string) (*types.Company, error)
	GetCompanyBySymbol(ctx context.Context, symbol string) (*types.Company, error)
	ListCompanies(ctx context.Context) ([]types.Company, error)
	GetTrade(ctx context.Context, tradeID string) (*types.Trade, error)
	ListTradesByUser(ctx context.Context, userID string, limit int) ([]types.Trade, error)
	GetTransaction(ctx context.Context, transactionID string) (*types.Transaction, error)
	GetTransactionByProviderRef(ctx context.Context, providerRef string) (*types.Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID string, limit int) ([]types.Transaction, error)

	// CreateCompany registers a listed company (seeding and admin use).
	CreateCompany(ctx context.Context, company *types.Company) error
}
