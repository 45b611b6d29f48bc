package trading

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sokocap/soko-backoffice/internal/ledger"
	"github.com/sokocap/soko-backoffice/internal/registry"
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

type fixture struct {
	store   *ledger.MemoryStore
	engine  *Engine
	company *types.Company
}

// newFixture seeds one company at 500/share with 10,000 available shares
// and gives the user a funded wallet. Fee rate is 0.5%.
func newFixture(t *testing.T, userID, balance string) *fixture {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewMemoryStore()

	company, err := registry.NewService(store).Create(ctx, registry.CreateCompanyRequest{
		Symbol:      "SCOM",
		Name:        "Safaricom Plc",
		SharePrice:  "500",
		TotalShares: 10_000,
	})
	if err != nil {
		t.Fatalf("seed company: %v", err)
	}

	if balance != "0" {
		if _, err := wallet.NewService(store).Deposit(ctx, userID, dec(balance)); err != nil {
			t.Fatalf("seed wallet: %v", err)
		}
	}

	engine := NewEngine(store, Config{FeeRate: dec("0.005"), LotSize: 1}, nil)
	return &fixture{store: store, engine: engine, company: company}
}

func appCode(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func TestExecute_BuySettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u-1", "10000")

	res, err := f.engine.Execute(ctx, Request{
		UserID:    "u-1",
		CompanyID: f.company.ID,
		Side:      types.SideBuy,
		PriceMode: types.PriceModeMarket,
		Quantity:  10,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// 10 @ 500 = 5,000 plus 0.5% fee (25.00): wallet drops to 4,975.00.
	if !res.Wallet.Balance.Equal(dec("4975")) {
		t.Errorf("balance = %s, want 4975", res.Wallet.Balance)
	}
	if !res.Trade.Fees.Equal(dec("25.00")) {
		t.Errorf("fees = %s, want 25.00", res.Trade.Fees)
	}
	if !res.Trade.TotalAmount.Equal(dec("5000")) {
		t.Errorf("total amount = %s, want 5000", res.Trade.TotalAmount)
	}
	if res.Trade.Status != types.TradeStatusExecuted {
		t.Errorf("status = %s, want EXECUTED", res.Trade.Status)
	}

	// Fees never enter the cost basis.
	if res.Position.Quantity != 10 {
		t.Errorf("position quantity = %d, want 10", res.Position.Quantity)
	}
	if !res.Position.TotalInvested.Equal(dec("5000")) {
		t.Errorf("total invested = %s, want 5000", res.Position.TotalInvested)
	}
	if !res.Position.AverageBuyPrice.Equal(dec("500")) {
		t.Errorf("average buy price = %s, want 500", res.Position.AverageBuyPrice)
	}

	// Company statistics move in the same unit.
	c, _ := f.store.GetCompany(ctx, f.company.ID)
	if c.AvailableShares != 9990 {
		t.Errorf("available shares = %d, want 9990", c.AvailableShares)
	}
	if c.TradedVolume != 10 {
		t.Errorf("traded volume = %d, want 10", c.TradedVolume)
	}

	// A completed transaction is linked to the trade.
	if res.Trade.TransactionID == "" {
		t.Fatal("trade should link a transaction")
	}
	txn, err := f.store.GetTransaction(ctx, res.Trade.TransactionID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if txn.Status != types.TxStatusCompleted {
		t.Errorf("transaction status = %s, want COMPLETED", txn.Status)
	}
	if txn.Type != types.TxTypeBuyShares {
		t.Errorf("transaction type = %s, want BUY_SHARES", txn.Type)
	}
}

func TestExecute_SellProportionalReduction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u-1", "100000")

	// Build a position of 100 shares at 50,000 invested.
	if _, err := f.engine.Execute(ctx, Request{
		UserID: "u-1", CompanyID: f.company.ID,
		Side: types.SideBuy, PriceMode: types.PriceModeMarket, Quantity: 100,
	}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	before, _ := f.store.GetWallet(ctx, "u-1")

	res, err := f.engine.Execute(ctx, Request{
		UserID: "u-1", CompanyID: f.company.ID,
		Side: types.SideSell, PriceMode: types.PriceModeLimit,
		RequestedPrice: "600", Quantity: 40,
	})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	// 40 of 100 sold: invested drops from 50,000 to 30,000, average holds.
	if res.Position.Quantity != 60 {
		t.Errorf("quantity = %d, want 60", res.Position.Quantity)
	}
	if !res.Position.TotalInvested.Equal(dec("30000")) {
		t.Errorf("total invested = %s, want 30000", res.Position.TotalInvested)
	}
	if !res.Position.AverageBuyPrice.Equal(dec("500")) {
		t.Errorf("average buy price = %s, want 500", res.Position.AverageBuyPrice)
	}

	// Proceeds 24,000 minus 0.5% fee (120.00) are credited.
	wantBalance := before.Balance.Add(dec("23880"))
	if !res.Wallet.Balance.Equal(wantBalance) {
		t.Errorf("balance = %s, want %s", res.Wallet.Balance, wantBalance)
	}
	if !res.Trade.ExecutedPrice.Equal(dec("600")) {
		t.Errorf("executed price = %s, want limit price 600", res.Trade.ExecutedPrice)
	}
}

func TestExecute_InsufficientFundsLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u-1", "1000")

	_, err := f.engine.Execute(ctx, Request{
		UserID: "u-1", CompanyID: f.company.ID,
		Side: types.SideBuy, PriceMode: types.PriceModeMarket, Quantity: 10,
	})
	if appCode(err) != apperrors.ErrInsufficientFunds.Code {
		t.Fatalf("err = %v, want INSUFFICIENT_FUNDS", err)
	}

	w, _ := f.store.GetWallet(ctx, "u-1")
	if !w.Balance.Equal(dec("1000")) {
		t.Errorf("balance = %s, want 1000 unchanged", w.Balance)
	}
	if _, err := f.store.GetPosition(ctx, "u-1", f.company.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("no position should exist, got err = %v", err)
	}
	c, _ := f.store.GetCompany(ctx, f.company.ID)
	if c.AvailableShares != 10_000 || c.TradedVolume != 0 {
		t.Errorf("company stats moved: available=%d volume=%d", c.AvailableShares, c.TradedVolume)
	}
	trades, _ := f.store.ListTradesByUser(ctx, "u-1", 10)
	if len(trades) != 0 {
		t.Errorf("trades recorded = %d, want 0", len(trades))
	}
}

func TestExecute_InsufficientSharesLeavesWalletUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u-1", "10000")

	_, err := f.engine.Execute(ctx, Request{
		UserID: "u-1", CompanyID: f.company.ID,
		Side: types.SideSell, PriceMode: types.PriceModeMarket, Quantity: 5,
	})
	if appCode(err) != apperrors.ErrInsufficientShares.Code {
		t.Fatalf("err = %v, want INSUFFICIENT_SHARES", err)
	}

	w, _ := f.store.GetWallet(ctx, "u-1")
	if !w.Balance.Equal(dec("10000")) {
		t.Errorf("balance = %s, want 10000 unchanged", w.Balance)
	}
}

func TestExecute_RoundTripLosesOnlyFees(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u-1", "10000")

	if _, err := f.engine.Execute(ctx, Request{
		UserID: "u-1", CompanyID: f.company.ID,
		Side: types.SideBuy, PriceMode: types.PriceModeLimit,
		RequestedPrice: "500", Quantity: 10,
	}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	res, err := f.engine.Execute(ctx, Request{
		UserID: "u-1", CompanyID: f.company.ID,
		Side: types.SideSell, PriceMode: types.PriceModeLimit,
		RequestedPrice: "500", Quantity: 10,
	})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	// Buy and sell at the same price: back to start minus two commissions.
	if !res.Wallet.Balance.Equal(dec("9950")) {
		t.Errorf("balance = %s, want 9950", res.Wallet.Balance)
	}
	if res.Position != nil {
		t.Errorf("position should be gone after full liquidation, got %+v", res.Position)
	}
	if _, err := f.store.GetPosition(ctx, "u-1", f.company.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("position row should be deleted, got err = %v", err)
	}
}

func TestExecute_ConcurrentSellsNeverOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u-1", "100000")

	if _, err := f.engine.Execute(ctx, Request{
		UserID: "u-1", CompanyID: f.company.ID,
		Side: types.SideBuy, PriceMode: types.PriceModeMarket, Quantity: 100,
	}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// 20 goroutines each try to sell 10 of the 100 held shares.
	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Execute(ctx, Request{
				UserID: "u-1", CompanyID: f.company.ID,
				Side: types.SideSell, PriceMode: types.PriceModeMarket, Quantity: 10,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, failed int
	for err := range results {
		if err == nil {
			succeeded++
		} else if appCode(err) == apperrors.ErrInsufficientShares.Code {
			failed++
		} else {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 10 {
		t.Errorf("succeeded = %d, want exactly 10", succeeded)
	}
	if failed != 10 {
		t.Errorf("failed = %d, want 10 insufficiency rejections", failed)
	}
	if _, err := f.store.GetPosition(ctx, "u-1", f.company.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("position should be fully sold, got err = %v", err)
	}
}

func TestExecute_DuplicateClientRef(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u-1", "100000")

	req := Request{
		UserID: "u-1", CompanyID: f.company.ID,
		Side: types.SideBuy, PriceMode: types.PriceModeMarket,
		Quantity: 10, ClientRef: "order-42",
	}
	if _, err := f.engine.Execute(ctx, req); err != nil {
		t.Fatalf("first execute: %v", err)
	}

	_, err := f.engine.Execute(ctx, req)
	if appCode(err) != apperrors.ErrDuplicateTrade.Code {
		t.Fatalf("err = %v, want DUPLICATE_TRADE", err)
	}

	// The retry must not double-charge.
	w, _ := f.store.GetWallet(ctx, "u-1")
	if !w.Balance.Equal(dec("94975")) {
		t.Errorf("balance = %s, want 94975 after a single fill", w.Balance)
	}
}

func TestExecute_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u-1", "10000")

	tests := []struct {
		name     string
		mutate   func(*Request)
		lotSize  int64
		wantCode string
	}{
		{
			name:     "zero quantity",
			mutate:   func(r *Request) { r.Quantity = 0 },
			wantCode: apperrors.ErrInvalidQuantity.Code,
		},
		{
			name:     "negative quantity",
			mutate:   func(r *Request) { r.Quantity = -5 },
			wantCode: apperrors.ErrInvalidQuantity.Code,
		},
		{
			name:     "off-lot quantity",
			mutate:   func(r *Request) { r.Quantity = 17 },
			lotSize:  100,
			wantCode: apperrors.ErrInvalidLotSize.Code,
		},
		{
			name:     "bad side",
			mutate:   func(r *Request) { r.Side = "HOLD" },
			wantCode: apperrors.ErrValidation.Code,
		},
		{
			name:     "limit without price",
			mutate:   func(r *Request) { r.PriceMode = types.PriceModeLimit; r.RequestedPrice = "" },
			wantCode: apperrors.ErrValidation.Code,
		},
		{
			name:     "unknown company",
			mutate:   func(r *Request) { r.CompanyID = "missing" },
			wantCode: apperrors.ErrCompanyNotFound.Code,
		},
		{
			name:     "more shares than available",
			mutate:   func(r *Request) { r.Quantity = 10_001 },
			wantCode: apperrors.ErrSharesUnavailable.Code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := f.engine
			if tt.lotSize > 1 {
				engine = NewEngine(f.store, Config{FeeRate: dec("0.005"), LotSize: tt.lotSize}, nil)
			}
			req := Request{
				UserID: "u-1", CompanyID: f.company.ID,
				Side: types.SideBuy, PriceMode: types.PriceModeMarket, Quantity: 10,
			}
			tt.mutate(&req)

			_, err := engine.Execute(ctx, req)
			if appCode(err) != tt.wantCode {
				t.Errorf("err = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}
