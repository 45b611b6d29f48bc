package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokocap/soko-backoffice/internal/ledger"
	"github.com/sokocap/soko-backoffice/internal/types"
	"github.com/sokocap/soko-backoffice/internal/wallet"
	apperrors "github.com/sokocap/soko-backoffice/pkg/errors"
	"github.com/sokocap/soko-backoffice/pkg/logger"
	"github.com/sokocap/soko-backoffice/pkg/metrics"
)

const providerMpesa = "MPESA"

// Notifier receives post-commit payment notifications.
type Notifier interface {
	PaymentInitiated(ctx context.Context, txn *types.Transaction)
	PaymentSettled(ctx context.Context, txn *types.Transaction, reason string)
}

// Config bounds payment amounts in whole shillings.
type Config struct {
	MinAmount int64
	MaxAmount int64
}

// Service runs deposits and withdrawals. Wallet money only moves when the
// provider confirms: deposits credit on the settlement callback, and
// withdrawals debit up front but refund when the payout fails.
type Service struct {
	store    ledger.Store
	gateway  Gateway
	notifier Notifier
	cfg      Config
}

// NewService creates a payments service. notifier may be nil.
func NewService(store ledger.Store, gateway Gateway, notifier Notifier, cfg Config) *Service {
	return &Service{store: store, gateway: gateway, notifier: notifier, cfg: cfg}
}

func (s *Service) validateAmount(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(0)) {
		return apperrors.ErrValidation.WithMessage("amount must be whole shillings")
	}
	n := amount.IntPart()
	if n < s.cfg.MinAmount || n > s.cfg.MaxAmount {
		return apperrors.ErrValidation.WithDetails(map[string]any{
			"min": s.cfg.MinAmount,
			"max": s.cfg.MaxAmount,
		})
	}
	return nil
}

// Deposit records a pending deposit and pushes the payment prompt to the
// user's phone. The wallet is not credited until the callback confirms.
func (s *Service) Deposit(ctx context.Context, userID, phone string, amount decimal.Decimal) (*types.Transaction, error) {
	if phone == "" {
		return nil, apperrors.ErrValidation.WithMessage("phone is required")
	}
	if err := s.validateAmount(amount); err != nil {
		return nil, err
	}

	txn := &types.Transaction{
		ID:       uuid.New().String(),
		UserID:   userID,
		Type:     types.TxTypeDeposit,
		Amount:   amount,
		Status:   types.TxStatusPending,
		Provider: providerMpesa,
		Metadata: map[string]string{"phone": phone},
	}
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.InsertTransaction(ctx, txn)
	})
	if err != nil {
		return nil, fmt.Errorf("record deposit: %w", err)
	}

	intent, err := s.gateway.RequestDeposit(ctx, phone, amount.IntPart(), txn.ID)
	if err != nil {
		s.markFailed(ctx, txn, "provider rejected the deposit request")
		metrics.RecordPaymentTransaction(types.TxTypeDeposit, "failed")
		return nil, apperrors.ErrPaymentFailed.WithError(err)
	}

	if err := s.attachProviderRef(ctx, txn, intent.ProviderRef); err != nil {
		return nil, err
	}

	metrics.RecordPaymentTransaction(types.TxTypeDeposit, "initiated")
	if s.notifier != nil {
		s.notifier.PaymentInitiated(ctx, txn)
	}
	return txn, nil
}

// Withdraw debits the wallet, records a pending withdrawal, and requests
// the payout. A failed payout refunds the debit.
func (s *Service) Withdraw(ctx context.Context, userID, phone string, amount decimal.Decimal) (*types.Transaction, error) {
	if phone == "" {
		return nil, apperrors.ErrValidation.WithMessage("phone is required")
	}
	if err := s.validateAmount(amount); err != nil {
		return nil, err
	}

	txn := &types.Transaction{
		ID:       uuid.New().String(),
		UserID:   userID,
		Type:     types.TxTypeWithdraw,
		Amount:   amount,
		Status:   types.TxStatusPending,
		Provider: providerMpesa,
		Metadata: map[string]string{"phone": phone},
	}
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if _, err := wallet.Debit(ctx, tx, userID, amount); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, txn)
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("record withdrawal: %w", err)
	}

	intent, err := s.gateway.RequestPayout(ctx, phone, amount.IntPart(), txn.ID)
	if err != nil {
		s.refundAndFail(ctx, txn, "provider rejected the payout request")
		metrics.RecordPaymentTransaction(types.TxTypeWithdraw, "failed")
		return nil, apperrors.ErrPaymentFailed.WithError(err)
	}

	if err := s.attachProviderRef(ctx, txn, intent.ProviderRef); err != nil {
		return nil, err
	}

	metrics.RecordPaymentTransaction(types.TxTypeWithdraw, "initiated")
	if s.notifier != nil {
		s.notifier.PaymentInitiated(ctx, txn)
	}
	return txn, nil
}

// HandleDepositCallback settles a deposit. Credits the wallet exactly
// once; replays and unknown references are ignored. The PENDING check
// happens on a locked row inside the settlement unit, so two concurrent
// replays of the same callback cannot both credit.
func (s *Service) HandleDepositCallback(ctx context.Context, result *CallbackResult) error {
	txn, done, err := s.loadPending(ctx, result.ProviderRef)
	if err != nil || done {
		return err
	}

	settled := false
	if result.Success {
		err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
			current, err := tx.GetTransactionForUpdate(ctx, txn.ID)
			if err != nil {
				return err
			}
			if current.Status != types.TxStatusPending {
				return nil
			}
			if _, err := wallet.Credit(ctx, tx, txn.UserID, txn.Amount); err != nil {
				return err
			}
			if err := tx.UpdateTransactionStatus(ctx, txn.ID, types.TxStatusCompleted, map[string]string{
				"receipt": result.ReceiptNo,
			}); err != nil {
				return err
			}
			settled = true
			return nil
		})
		if err != nil {
			return fmt.Errorf("settle deposit: %w", err)
		}
		if !settled {
			return nil
		}
		txn.Status = types.TxStatusCompleted
		metrics.RecordPaymentTransaction(types.TxTypeDeposit, "completed")
	} else {
		err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
			current, err := tx.GetTransactionForUpdate(ctx, txn.ID)
			if err != nil {
				return err
			}
			if current.Status != types.TxStatusPending {
				return nil
			}
			if err := tx.UpdateTransactionStatus(ctx, txn.ID, types.TxStatusFailed, map[string]string{
				"reason": result.Reason,
			}); err != nil {
				return err
			}
			settled = true
			return nil
		})
		if err != nil {
			return fmt.Errorf("fail deposit: %w", err)
		}
		if !settled {
			return nil
		}
		txn.Status = types.TxStatusFailed
		metrics.RecordPaymentTransaction(types.TxTypeDeposit, "failed")
	}

	if s.notifier != nil {
		s.notifier.PaymentSettled(ctx, txn, result.Reason)
	}
	return nil
}

// HandlePayoutCallback settles a withdrawal. A failed payout refunds the
// wallet in the same unit that marks the transaction FAILED.
func (s *Service) HandlePayoutCallback(ctx context.Context, result *CallbackResult) error {
	txn, done, err := s.loadPending(ctx, result.ProviderRef)
	if err != nil || done {
		return err
	}

	settled := false
	if result.Success {
		err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
			current, err := tx.GetTransactionForUpdate(ctx, txn.ID)
			if err != nil {
				return err
			}
			if current.Status != types.TxStatusPending {
				return nil
			}
			if err := tx.UpdateTransactionStatus(ctx, txn.ID, types.TxStatusCompleted, map[string]string{
				"receipt": result.ReceiptNo,
			}); err != nil {
				return err
			}
			settled = true
			return nil
		})
		if err != nil {
			return fmt.Errorf("settle withdrawal: %w", err)
		}
		if !settled {
			return nil
		}
		txn.Status = types.TxStatusCompleted
		metrics.RecordPaymentTransaction(types.TxTypeWithdraw, "completed")
	} else {
		err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
			current, err := tx.GetTransactionForUpdate(ctx, txn.ID)
			if err != nil {
				return err
			}
			if current.Status != types.TxStatusPending {
				return nil
			}
			if _, err := wallet.Credit(ctx, tx, txn.UserID, txn.Amount); err != nil {
				return err
			}
			if err := tx.UpdateTransactionStatus(ctx, txn.ID, types.TxStatusFailed, map[string]string{
				"reason": result.Reason,
			}); err != nil {
				return err
			}
			settled = true
			return nil
		})
		if err != nil {
			return fmt.Errorf("refund withdrawal: %w", err)
		}
		if !settled {
			return nil
		}
		txn.Status = types.TxStatusFailed
		metrics.RecordPaymentTransaction(types.TxTypeWithdraw, "failed")
	}

	if s.notifier != nil {
		s.notifier.PaymentSettled(ctx, txn, result.Reason)
	}
	return nil
}

// GetTransaction returns one transaction, scoped to its owner.
func (s *Service) GetTransaction(ctx context.Context, userID, transactionID string) (*types.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if txn.UserID != userID {
		return nil, apperrors.ErrTransactionNotFound
	}
	return txn, nil
}

// ListTransactions returns the user's recent transactions.
func (s *Service) ListTransactions(ctx context.Context, userID string, limit int) ([]types.Transaction, error) {
	txs, err := s.store.ListTransactionsByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// loadPending fetches the transaction a callback refers to. done is true
// when there is nothing left to do: unknown reference or already settled.
// This read is only a fast path; the settle-once decision is made on the
// locked row inside the settlement unit.
func (s *Service) loadPending(ctx context.Context, providerRef string) (*types.Transaction, bool, error) {
	txn, err := s.store.GetTransactionByProviderRef(ctx, providerRef)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			logger.Warn().Str("provider_ref", providerRef).Msg("callback for unknown transaction, ignoring")
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("load transaction: %w", err)
	}
	if txn.Status != types.TxStatusPending {
		logger.Info().
			Str("transaction_id", txn.ID).
			Str("status", txn.Status).
			Msg("callback replay for settled transaction, ignoring")
		return nil, true, nil
	}
	return txn, false, nil
}

func (s *Service) attachProviderRef(ctx context.Context, txn *types.Transaction, providerRef string) error {
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.SetTransactionProviderRef(ctx, txn.ID, providerMpesa, providerRef)
	})
	if err != nil {
		return fmt.Errorf("attach provider ref: %w", err)
	}
	txn.ProviderRef = providerRef
	return nil
}

func (s *Service) markFailed(ctx context.Context, txn *types.Transaction, reason string) {
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.UpdateTransactionStatus(ctx, txn.ID, types.TxStatusFailed, map[string]string{"reason": reason})
	})
	if err != nil {
		logger.Error().Err(err).Str("transaction_id", txn.ID).Msg("failed to mark transaction FAILED")
	}
	txn.Status = types.TxStatusFailed
}

func (s *Service) refundAndFail(ctx context.Context, txn *types.Transaction, reason string) {
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if _, err := wallet.Credit(ctx, tx, txn.UserID, txn.Amount); err != nil {
			return err
		}
		return tx.UpdateTransactionStatus(ctx, txn.ID, types.TxStatusFailed, map[string]string{"reason": reason})
	})
	if err != nil {
		logger.Error().Err(err).Str("transaction_id", txn.ID).Msg("failed to refund withdrawal")
	}
	txn.Status = types.TxStatusFailed
}
