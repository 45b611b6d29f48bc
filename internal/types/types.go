// Package types holds the persisted domain entities shared by the back
// office services. All monetary values use shopspring/decimal, never
// float64 for money.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Price modes
const (
	PriceModeMarket = "MARKET"
	PriceModeLimit  = "LIMIT"
)

// Trade statuses. The synchronous engine only ever produces EXECUTED;
// the remaining statuses are reserved for a future asynchronous order book.
const (
	TradeStatusExecuted          = "EXECUTED"
	TradeStatusPending           = "PENDING"
	TradeStatusPartiallyExecuted = "PARTIALLY_EXECUTED"
	TradeStatusCancelled         = "CANCELLED"
	TradeStatusRejected          = "REJECTED"
)

// Transaction types
const (
	TxTypeDeposit    = "DEPOSIT"
	TxTypeWithdraw   = "WITHDRAW"
	TxTypeBuyShares  = "BUY_SHARES"
	TxTypeSellShares = "SELL_SHARES"
)

// Transaction statuses
const (
	TxStatusPending   = "PENDING"
	TxStatusCompleted = "COMPLETED"
	TxStatusFailed    = "FAILED"
	TxStatusCancelled = "CANCELLED"
)

// Wallet holds a user's cash. One wallet per user, created lazily on the
// first financial operation and never deleted.
type Wallet struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	LockedBalance decimal.Decimal `json:"locked_balance"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AvailableBalance returns the balance available for trading and
// withdrawals: balance minus any amount held for pending obligations.
func (w *Wallet) AvailableBalance() decimal.Decimal {
	return w.Balance.Sub(w.LockedBalance)
}

// Position is one user's holding in one company. Exists iff quantity > 0.
// AverageBuyPrice is derived from TotalInvested/Quantity but persisted;
// every mutation recomputes it inside the same atomic unit.
type Position struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	CompanyID       string          `json:"company_id"`
	Quantity        int64           `json:"quantity"`
	TotalInvested   decimal.Decimal `json:"total_invested"`
	AverageBuyPrice decimal.Decimal `json:"average_buy_price"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Trade is the immutable record of one execution. Never mutated after
// creation except to attach the linked transaction id.
type Trade struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	CompanyID      string          `json:"company_id"`
	Side           string          `json:"side"`
	PriceMode      string          `json:"price_mode"`
	RequestedPrice decimal.Decimal `json:"requested_price"`
	ExecutedPrice  decimal.Decimal `json:"executed_price"`
	Quantity       int64           `json:"quantity"`
	Fees           decimal.Decimal `json:"fees"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Status         string          `json:"status"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	ClientRef      string          `json:"client_ref,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Transaction is an immutable ledger entry. Trade-driven rows are created
// COMPLETED; deposits and withdrawals start PENDING and transition exactly
// once via the payment gateway callback.
type Transaction struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Type        string            `json:"type"`
	Amount      decimal.Decimal   `json:"amount"`
	Status      string            `json:"status"`
	Provider    string            `json:"provider,omitempty"`
	ProviderRef string            `json:"provider_ref,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Company is the trading-relevant registry entry for a listed company.
type Company struct {
	ID                   string          `json:"id"`
	Symbol               string          `json:"symbol"`
	Name                 string          `json:"name"`
	SharePrice           decimal.Decimal `json:"share_price"`
	ClosingPrice         decimal.Decimal `json:"closing_price"`
	PreviousClosingPrice decimal.Decimal `json:"previous_closing_price"`
	PriceChange          string          `json:"price_change"`
	TotalShares          int64           `json:"total_shares"`
	AvailableShares      int64           `json:"available_shares"`
	TradedVolume         int64           `json:"traded_volume"`
	TradedValue          decimal.Decimal `json:"traded_value"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}
