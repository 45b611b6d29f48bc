package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokocap/soko-backoffice/internal/types"
)

func TestMemoryStore_WithinTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	errBoom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.CreateWallet(ctx, &types.Wallet{
			ID:      uuid.New().String(),
			UserID:  "u-1",
			Balance: decimal.NewFromInt(1000),
		}); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("WithinTx error = %v, want %v", err, errBoom)
	}

	if _, err := store.GetWallet(ctx, "u-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("wallet should not exist after rollback, got err = %v", err)
	}
}

func TestMemoryStore_WithinTx_CommitOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	walletID := uuid.New().String()
	err := store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.CreateWallet(ctx, &types.Wallet{
			ID:      walletID,
			UserID:  "u-1",
			Balance: decimal.NewFromInt(1000),
		}); err != nil {
			return err
		}
		return tx.UpdateWalletBalance(ctx, walletID, decimal.NewFromInt(750), decimal.Zero)
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}

	w, err := store.GetWallet(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if !w.Balance.Equal(decimal.NewFromInt(750)) {
		t.Errorf("balance = %s, want 750", w.Balance)
	}
}

func TestMemoryStore_RollbackRestoresPriorState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	walletID := uuid.New().String()
	if err := store.WithinTx(ctx, func(tx Tx) error {
		return tx.CreateWallet(ctx, &types.Wallet{
			ID:      walletID,
			UserID:  "u-1",
			Balance: decimal.NewFromInt(500),
		})
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	errAbort := errors.New("abort")
	err := store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.UpdateWalletBalance(ctx, walletID, decimal.Zero, decimal.Zero); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("WithinTx error = %v, want %v", err, errAbort)
	}

	w, err := store.GetWallet(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if !w.Balance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("balance = %s, want 500 after rollback", w.Balance)
	}
}

func TestMemoryStore_DuplicateClientRef(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	trade := func(id string) *types.Trade {
		return &types.Trade{
			ID:        id,
			UserID:    "u-1",
			CompanyID: "c-1",
			Side:      types.SideBuy,
			Quantity:  1,
			Status:    types.TradeStatusExecuted,
			ClientRef: "ref-1",
		}
	}

	if err := store.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertTrade(ctx, trade(uuid.New().String()))
	}); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	err := store.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertTrade(ctx, trade(uuid.New().String()))
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("second insert error = %v, want ErrDuplicate", err)
	}
}

func TestMemoryStore_PositionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	posID := uuid.New().String()
	if err := store.WithinTx(ctx, func(tx Tx) error {
		return tx.CreatePosition(ctx, &types.Position{
			ID:              posID,
			UserID:          "u-1",
			CompanyID:       "c-1",
			Quantity:        10,
			TotalInvested:   decimal.NewFromInt(5000),
			AverageBuyPrice: decimal.NewFromInt(500),
		})
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.WithinTx(ctx, func(tx Tx) error {
		p, err := tx.GetPositionForUpdate(ctx, "u-1", "c-1")
		if err != nil {
			return err
		}
		return tx.UpdatePosition(ctx, p.ID, 6, decimal.NewFromInt(3000), decimal.NewFromInt(500))
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	p, err := store.GetPosition(ctx, "u-1", "c-1")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if p.Quantity != 6 {
		t.Errorf("quantity = %d, want 6", p.Quantity)
	}

	if err := store.WithinTx(ctx, func(tx Tx) error {
		return tx.DeletePosition(ctx, posID)
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetPosition(ctx, "u-1", "c-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("position should be gone, got err = %v", err)
	}
}

// Mirrors the partial unique index on transactions.provider_ref: only a
// real provider reference participates in uniqueness, so transaction rows
// written without one (every trade-driven row, and payments before the
// gateway responds) never collide with each other.
func TestMemoryStore_EmptyProviderRefsDoNotCollide(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	txn := func(ref string) *types.Transaction {
		return &types.Transaction{
			ID:          uuid.New().String(),
			UserID:      "u-1",
			Type:        types.TxTypeBuyShares,
			Amount:      decimal.NewFromInt(100),
			Status:      types.TxStatusCompleted,
			ProviderRef: ref,
		}
	}

	if err := store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.InsertTransaction(ctx, txn("")); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, txn(""))
	}); err != nil {
		t.Fatalf("inserting two ref-less transactions: %v", err)
	}

	if err := store.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertTransaction(ctx, txn("chk-9"))
	}); err != nil {
		t.Fatalf("insert with ref: %v", err)
	}
	err := store.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertTransaction(ctx, txn("chk-9"))
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate ref error = %v, want ErrDuplicate", err)
	}
}

func TestMemoryStore_ListTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var ids []string
	for i := 0; i < 3; i++ {
		id := uuid.New().String()
		ids = append(ids, id)
		if err := store.WithinTx(ctx, func(tx Tx) error {
			return tx.InsertTransaction(ctx, &types.Transaction{
				ID:     id,
				UserID: "u-1",
				Type:   types.TxTypeDeposit,
				Amount: decimal.NewFromInt(100),
				Status: types.TxStatusPending,
			})
		}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		time.Sleep(time.Millisecond)
	}

	txs, err := store.ListTransactionsByUser(ctx, "u-1", 2)
	if err != nil {
		t.Fatalf("ListTransactionsByUser: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("len = %d, want 2", len(txs))
	}
	if txs[0].ID != ids[2] || txs[1].ID != ids[1] {
		t.Errorf("order = [%s %s], want newest first [%s %s]", txs[0].ID, txs[1].ID, ids[2], ids[1])
	}
}

func TestMemoryStore_GetTransactionByProviderRef(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	txID := uuid.New().String()
	if err := store.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertTransaction(ctx, &types.Transaction{
			ID:          txID,
			UserID:      "u-1",
			Type:        types.TxTypeDeposit,
			Amount:      decimal.NewFromInt(100),
			Status:      types.TxStatusPending,
			Provider:    "MPESA",
			ProviderRef: "chk-123",
		})
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.GetTransactionByProviderRef(ctx, "chk-123")
	if err != nil {
		t.Fatalf("GetTransactionByProviderRef: %v", err)
	}
	if got.ID != txID {
		t.Errorf("id = %s, want %s", got.ID, txID)
	}
}
