// Package notify delivers post-commit side effects: Kafka events for
// downstream consumers and SMS confirmations for the user. Nothing here
// can fail a trade or a payment; delivery problems are logged and dropped.
package notify

import (
	"context"
	"fmt"

	"github.com/sokocap/soko-backoffice/internal/types"
	"github.com/sokocap/soko-backoffice/pkg/events"
	"github.com/sokocap/soko-backoffice/pkg/logger"
)

// PhoneLookup resolves a user's SMS number. Returning an empty string
// skips the SMS without error.
type PhoneLookup interface {
	Phone(ctx context.Context, userID string) (string, error)
}

// Dispatcher fans one committed ledger change out to Kafka and SMS.
// Any of the dependencies may be nil; the corresponding channel is skipped.
type Dispatcher struct {
	publisher events.Publisher
	sms       SMSSender
	phones    PhoneLookup
	source    string
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(publisher events.Publisher, sms SMSSender, phones PhoneLookup, source string) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		sms:       sms,
		phones:    phones,
		source:    source,
	}
}

// TradeExecuted publishes the trade event and texts a confirmation.
func (d *Dispatcher) TradeExecuted(ctx context.Context, trade *types.Trade, company *types.Company) {
	d.publish(ctx, events.TopicTradeExecuted,
		events.NewEvent(events.EventTypeTradeExecuted, d.source, events.TradeExecutedPayload{
			TradeID:       trade.ID,
			TransactionID: trade.TransactionID,
			UserID:        trade.UserID,
			CompanyID:     trade.CompanyID,
			Symbol:        company.Symbol,
			Side:          trade.Side,
			Quantity:      trade.Quantity,
			ExecutedPrice: trade.ExecutedPrice.String(),
			TotalAmount:   trade.TotalAmount.String(),
			Fees:          trade.Fees.String(),
		}))

	verb := "Bought"
	if trade.Side == types.SideSell {
		verb = "Sold"
	}
	d.text(ctx, trade.UserID, fmt.Sprintf(
		"%s %d %s shares @ KES %s. Total KES %s, fees KES %s. Ref %s.",
		verb, trade.Quantity, company.Symbol,
		trade.ExecutedPrice.StringFixed(2),
		trade.TotalAmount.StringFixed(2),
		trade.Fees.StringFixed(2),
		shortRef(trade.ID)))
}

// PaymentInitiated publishes the initiation event for a pending deposit
// or withdrawal.
func (d *Dispatcher) PaymentInitiated(ctx context.Context, txn *types.Transaction) {
	topic := events.TopicPaymentInitiated
	eventType := events.EventTypePaymentInitiated
	if txn.Type == types.TxTypeWithdraw {
		topic = events.TopicWithdrawalInitiated
		eventType = events.EventTypeWithdrawalInitiated
	}
	d.publish(ctx, topic, events.NewEvent(eventType, d.source, paymentPayload(txn, "")))
}

// PaymentSettled publishes the outcome of a deposit or withdrawal and
// texts the user on success.
func (d *Dispatcher) PaymentSettled(ctx context.Context, txn *types.Transaction, reason string) {
	completed := txn.Status == types.TxStatusCompleted

	var topic, eventType string
	switch {
	case txn.Type == types.TxTypeWithdraw && completed:
		topic, eventType = events.TopicWithdrawalCompleted, events.EventTypeWithdrawalCompleted
	case txn.Type == types.TxTypeWithdraw:
		topic, eventType = events.TopicWithdrawalFailed, events.EventTypeWithdrawalFailed
	case completed:
		topic, eventType = events.TopicPaymentCompleted, events.EventTypePaymentCompleted
	default:
		topic, eventType = events.TopicPaymentFailed, events.EventTypePaymentFailed
	}
	d.publish(ctx, topic, events.NewEvent(eventType, d.source, paymentPayload(txn, reason)))

	if !completed {
		return
	}
	action := "Deposit of"
	if txn.Type == types.TxTypeWithdraw {
		action = "Withdrawal of"
	}
	message := fmt.Sprintf("%s KES %s confirmed. Ref %s.",
		action, txn.Amount.StringFixed(2), shortRef(txn.ID))

	// The payment flow captures the phone on the transaction itself.
	if phone := txn.Metadata["phone"]; phone != "" {
		d.textTo(ctx, txn.UserID, phone, message)
		return
	}
	d.text(ctx, txn.UserID, message)
}

func paymentPayload(txn *types.Transaction, reason string) events.PaymentPayload {
	return events.PaymentPayload{
		TransactionID: txn.ID,
		UserID:        txn.UserID,
		Type:          txn.Type,
		Amount:        txn.Amount.String(),
		Status:        txn.Status,
		ProviderRef:   txn.ProviderRef,
		Reason:        reason,
	}
}

func (d *Dispatcher) publish(ctx context.Context, topic string, event *events.Event) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, topic, event); err != nil {
		logger.Error().Err(err).
			Str("topic", topic).
			Str("event_type", event.EventType).
			Msg("failed to publish event")
	}
}

func (d *Dispatcher) text(ctx context.Context, userID, message string) {
	if d.sms == nil || d.phones == nil {
		return
	}
	phone, err := d.phones.Phone(ctx, userID)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("phone lookup failed, skipping SMS")
		return
	}
	d.textTo(ctx, userID, phone, message)
}

func (d *Dispatcher) textTo(ctx context.Context, userID, phone, message string) {
	if d.sms == nil || phone == "" {
		return
	}
	if err := d.sms.Send(ctx, phone, message); err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("failed to send SMS")
	}
}

func shortRef(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
