package payments

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sokocap/soko-backoffice/internal/ledger"
	"github.com/sokocap/soko-backoffice/internal/types"
	"github.com/sokocap/soko-backoffice/internal/wallet"
	apperrors "github.com/sokocap/soko-backoffice/pkg/errors"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newService(store ledger.Store, gw Gateway) *Service {
	return NewService(store, gw, nil, Config{MinAmount: 10, MaxAmount: 150_000})
}

func TestDeposit_PendingUntilCallback(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	gw := NewMockGateway()
	svc := newService(store, gw)

	txn, err := svc.Deposit(ctx, "u-1", "+254700000001", dec("500"))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if txn.Status != types.TxStatusPending {
		t.Errorf("status = %s, want PENDING", txn.Status)
	}
	if txn.ProviderRef == "" {
		t.Error("provider ref should be attached after the push")
	}
	if len(gw.Deposits) != 1 || gw.Deposits[0].Amount != 500 {
		t.Errorf("gateway deposits = %+v, want one for 500", gw.Deposits)
	}

	// No money moves before settlement.
	w, err := wallet.NewService(store).Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("Get wallet: %v", err)
	}
	if !w.Balance.IsZero() {
		t.Errorf("balance = %s, want 0 before callback", w.Balance)
	}

	err = svc.HandleDepositCallback(ctx, &CallbackResult{
		ProviderRef: txn.ProviderRef,
		Success:     true,
		ReceiptNo:   "QAB12CD34E",
	})
	if err != nil {
		t.Fatalf("HandleDepositCallback: %v", err)
	}

	w, _ = wallet.NewService(store).Get(ctx, "u-1")
	if !w.Balance.Equal(dec("500")) {
		t.Errorf("balance = %s, want 500 after settlement", w.Balance)
	}
	settled, _ := store.GetTransaction(ctx, txn.ID)
	if settled.Status != types.TxStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", settled.Status)
	}
	if settled.Metadata["receipt"] != "QAB12CD34E" {
		t.Errorf("receipt = %s, want QAB12CD34E", settled.Metadata["receipt"])
	}
}

func TestDeposit_CallbackReplayCreditsOnce(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	svc := newService(store, NewMockGateway())

	txn, err := svc.Deposit(ctx, "u-1", "+254700000001", dec("500"))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	cb := &CallbackResult{ProviderRef: txn.ProviderRef, Success: true}
	for i := 0; i < 3; i++ {
		if err := svc.HandleDepositCallback(ctx, cb); err != nil {
			t.Fatalf("callback %d: %v", i, err)
		}
	}

	w, _ := wallet.NewService(store).Get(ctx, "u-1")
	if !w.Balance.Equal(dec("500")) {
		t.Errorf("balance = %s, want 500 after replayed callbacks", w.Balance)
	}
}

func TestDeposit_ConcurrentCallbacksCreditOnce(t *testing.T) {
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		store := ledger.NewMemoryStore()
		svc := newService(store, NewMockGateway())

		txn, err := svc.Deposit(ctx, "u-1", "+254700000001", dec("1000"))
		if err != nil {
			t.Fatalf("Deposit: %v", err)
		}

		cb := &CallbackResult{ProviderRef: txn.ProviderRef, Success: true}
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := svc.HandleDepositCallback(ctx, cb); err != nil {
					t.Errorf("callback: %v", err)
				}
			}()
		}
		wg.Wait()

		w, _ := wallet.NewService(store).Get(ctx, "u-1")
		if !w.Balance.Equal(dec("1000")) {
			t.Fatalf("round %d: balance = %s, want 1000 credited exactly once", round, w.Balance)
		}
	}
}

func TestDeposit_FailedCallbackNoCredit(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	svc := newService(store, NewMockGateway())

	txn, err := svc.Deposit(ctx, "u-1", "+254700000001", dec("500"))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	err = svc.HandleDepositCallback(ctx, &CallbackResult{
		ProviderRef: txn.ProviderRef,
		Success:     false,
		Reason:      "Request cancelled by user",
	})
	if err != nil {
		t.Fatalf("HandleDepositCallback: %v", err)
	}

	w, _ := wallet.NewService(store).Get(ctx, "u-1")
	if !w.Balance.IsZero() {
		t.Errorf("balance = %s, want 0 after failed deposit", w.Balance)
	}
	settled, _ := store.GetTransaction(ctx, txn.ID)
	if settled.Status != types.TxStatusFailed {
		t.Errorf("status = %s, want FAILED", settled.Status)
	}
}

func TestDeposit_GatewayRejectionMarksFailed(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	gw := NewMockGateway()
	gw.Err = errors.New("provider unreachable")
	svc := newService(store, gw)

	_, err := svc.Deposit(ctx, "u-1", "+254700000001", dec("500"))
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrPaymentFailed.Code {
		t.Fatalf("err = %v, want PAYMENT_FAILED", err)
	}

	txs, _ := store.ListTransactionsByUser(ctx, "u-1", 10)
	if len(txs) != 1 || txs[0].Status != types.TxStatusFailed {
		t.Errorf("transactions = %+v, want one FAILED row", txs)
	}
}

func TestDeposit_AmountValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(ledger.NewMemoryStore(), NewMockGateway())

	for _, amount := range []string{"5", "150001", "100.50", "0", "-20"} {
		if _, err := svc.Deposit(ctx, "u-1", "+254700000001", dec(amount)); err == nil {
			t.Errorf("deposit of %s should be rejected", amount)
		}
	}
}

func TestWithdraw_DebitsUpFrontAndSettles(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	svc := newService(store, NewMockGateway())

	if _, err := wallet.NewService(store).Deposit(ctx, "u-1", dec("1000")); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}

	txn, err := svc.Withdraw(ctx, "u-1", "+254700000001", dec("400"))
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	w, _ := wallet.NewService(store).Get(ctx, "u-1")
	if !w.Balance.Equal(dec("600")) {
		t.Errorf("balance = %s, want 600 while payout is pending", w.Balance)
	}

	err = svc.HandlePayoutCallback(ctx, &CallbackResult{
		ProviderRef: txn.ProviderRef,
		Success:     true,
		ReceiptNo:   "TX99",
	})
	if err != nil {
		t.Fatalf("HandlePayoutCallback: %v", err)
	}

	settled, _ := store.GetTransaction(ctx, txn.ID)
	if settled.Status != types.TxStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", settled.Status)
	}
	w, _ = wallet.NewService(store).Get(ctx, "u-1")
	if !w.Balance.Equal(dec("600")) {
		t.Errorf("balance = %s, want 600 after settlement", w.Balance)
	}
}

func TestWithdraw_FailedPayoutRefunds(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	svc := newService(store, NewMockGateway())

	if _, err := wallet.NewService(store).Deposit(ctx, "u-1", dec("1000")); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}

	txn, err := svc.Withdraw(ctx, "u-1", "+254700000001", dec("400"))
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	err = svc.HandlePayoutCallback(ctx, &CallbackResult{
		ProviderRef: txn.ProviderRef,
		Success:     false,
		Reason:      "insufficient float",
	})
	if err != nil {
		t.Fatalf("HandlePayoutCallback: %v", err)
	}

	w, _ := wallet.NewService(store).Get(ctx, "u-1")
	if !w.Balance.Equal(dec("1000")) {
		t.Errorf("balance = %s, want 1000 refunded", w.Balance)
	}
	settled, _ := store.GetTransaction(ctx, txn.ID)
	if settled.Status != types.TxStatusFailed {
		t.Errorf("status = %s, want FAILED", settled.Status)
	}
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	gw := NewMockGateway()
	svc := newService(store, gw)

	if _, err := wallet.NewService(store).Deposit(ctx, "u-1", dec("100")); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}

	_, err := svc.Withdraw(ctx, "u-1", "+254700000001", dec("200"))
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrInsufficientFunds.Code {
		t.Fatalf("err = %v, want INSUFFICIENT_FUNDS", err)
	}
	if len(gw.Payouts) != 0 {
		t.Errorf("no payout should be requested, got %d", len(gw.Payouts))
	}

	w, _ := wallet.NewService(store).Get(ctx, "u-1")
	if !w.Balance.Equal(dec("100")) {
		t.Errorf("balance = %s, want 100 unchanged", w.Balance)
	}
}

func TestCallback_UnknownRefIgnored(t *testing.T) {
	svc := newService(ledger.NewMemoryStore(), NewMockGateway())

	err := svc.HandleDepositCallback(context.Background(), &CallbackResult{
		ProviderRef: "never-seen",
		Success:     true,
	})
	if err != nil {
		t.Fatalf("unknown ref should be ignored, got %v", err)
	}
}
