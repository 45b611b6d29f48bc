// Package wallet manages user cash balances. Mutations run inside a
// ledger atomic unit; sufficiency is always decided from the locked row,
// never from a stale read.
package wallet

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

// Service exposes wallet operations over the ledger store.
type Service struct {
	store ledger.Store
}

// NewService creates a wallet service.
func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// GetOrCreate returns the user's locked wallet, creating it with zero
// balances on first use.
func GetOrCreate(ctx context.Context, tx ledger.Tx, userID string) (*types.Wallet, error) {
	w, err := tx.GetWalletForUpdate(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	w = &types.Wallet{
		ID:            uuid.New().String(),
		UserID:        userID,
		Balance:       decimal.Zero,
		LockedBalance: decimal.Zero,
	}
	if err := tx.CreateWallet(ctx, w); err != nil {
		// Another unit created it between our read and insert. With row
		// locks this only happens on first use; re-read under the lock.
		if errors.Is(err, ledger.ErrDuplicate) {
			return tx.GetWalletForUpdate(ctx, userID)
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return w, nil
}

// Debit removes amount from the user's available balance. Fails with
// ErrInsufficientFunds when available (balance minus locked) is short.
func Debit(ctx context.Context, tx ledger.Tx, userID string, amount decimal.Decimal) (*types.Wallet, error) {
	if amount.IsNegative() {
		return nil, apperrors.ErrBadRequest.WithMessage("debit amount cannot be negative")
	}

	w, err := GetOrCreate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if w.AvailableBalance().LessThan(amount) {
		return nil, apperrors.ErrInsufficientFunds.WithDetails(map[string]any{
			"available": w.AvailableBalance().String(),
			"required":  amount.String(),
		})
	}

	w.Balance = w.Balance.Sub(amount)
	if err := tx.UpdateWalletBalance(ctx, w.ID, w.Balance, w.LockedBalance); err != nil {
		return nil, fmt.Errorf("debit wallet: %w", err)
	}
	return w, nil
}

// Credit adds amount to the user's balance.
func Credit(ctx context.Context, tx ledger.Tx, userID string, amount decimal.Decimal) (*types.Wallet, error) {
	if amount.IsNegative() {
		return nil, apperrors.ErrBadRequest.WithMessage("credit amount cannot be negative")
	}

	w, err := GetOrCreate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	w.Balance = w.Balance.Add(amount)
	if err := tx.UpdateWalletBalance(ctx, w.ID, w.Balance, w.LockedBalance); err != nil {
		return nil, fmt.Errorf("credit wallet: %w", err)
	}
	return w, nil
}

// Get returns the user's wallet without locking it. A user who has never
// transacted gets a zero-balance view rather than an error.
func (s *Service) Get(ctx context.Context, userID string) (*types.Wallet, error) {
	w, err := s.store.GetWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return &types.Wallet{
				UserID:        userID,
				Balance:       decimal.Zero,
				LockedBalance: decimal.Zero,
			}, nil
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// Deposit credits the wallet inside its own atomic unit. Used for
// settled payment callbacks and admin adjustments.
func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*types.Wallet, error) {
	if !amount.IsPositive() {
		return nil, apperrors.ErrBadRequest.WithMessage("deposit amount must be positive")
	}

	var out *types.Wallet
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		w, err := Credit(ctx, tx, userID, amount)
		if err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Withdraw debits the wallet inside its own atomic unit.
func (s *Service) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (*types.Wallet, error) {
	if !amount.IsPositive() {
		return nil, apperrors.ErrBadRequest.WithMessage("withdrawal amount must be positive")
	}

	var out *types.Wallet
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		w, err := Debit(ctx, tx, userID, amount)
		if err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
