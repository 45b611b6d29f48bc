// Package payments moves money between user wallets and mobile money.
// Deposits ride an STK push; withdrawals a B2C payout. Provider calls
// always happen outside ledger atomic units, with the transaction row
// carrying PENDING state across the gap until the callback settles it.
package payments

import "context"

// DepositIntent is the provider's acceptance of a deposit request. The
// money has not moved yet; the callback decides the outcome.
type DepositIntent struct {
	ProviderRef     string
	CustomerMessage string
}

// PayoutIntent is the provider's acceptance of a withdrawal payout.
type PayoutIntent struct {
	ProviderRef string
}

// CallbackResult is a settled provider callback, deposit or payout.
type CallbackResult struct {
	ProviderRef string
	Success     bool
	Reason      string
	ReceiptNo   string
	Phone       string
}

// Gateway is the mobile money provider. Amounts are whole shillings.
type Gateway interface {
	RequestDeposit(ctx context.Context, phone string, amount int64, reference string) (*DepositIntent, error)
	RequestPayout(ctx context.Context, phone string, amount int64, reference string) (*PayoutIntent, error)
}
