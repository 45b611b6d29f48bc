package notify

import (
	"context"
	"fmt"

	"github.com/sokocap/soko-backoffice/internal/ledger"
)

// LedgerPhones resolves a user's phone from the number captured on their
// most recent mobile money transaction. Users who have never deposited
// or withdrawn have no number on file and get no SMS.
type LedgerPhones struct {
	store ledger.Store
}

// NewLedgerPhones creates a ledger-backed phone lookup.
func NewLedgerPhones(store ledger.Store) *LedgerPhones {
	return &LedgerPhones{store: store}
}

func (p *LedgerPhones) Phone(ctx context.Context, userID string) (string, error) {
	txs, err := p.store.ListTransactionsByUser(ctx, userID, 20)
	if err != nil {
		return "", fmt.Errorf("list transactions: %w", err)
	}
	for _, tx := range txs {
		if phone := tx.Metadata["phone"]; phone != "" {
			return phone, nil
		}
	}
	return "", nil
}
