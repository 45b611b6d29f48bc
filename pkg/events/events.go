package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the standard envelope for all messages published to Kafka.
//
// Topic naming convention: soko.<domain>.<action>
// Event types are versioned: "trade.executed.v1". Breaking payload changes
// require a new version; consumers should ignore unknown fields.
type Event struct {
	// EventID is a unique identifier for this event instance
	EventID string `json:"event_id"`

	// EventType describes the event in format: <domain>.<action>.v<version>
	EventType string `json:"event_type"`

	// OccurredAt is when the event actually happened (not when it was published)
	OccurredAt time.Time `json:"occurred_at"`

	// CorrelationID links related events across consumers
	CorrelationID string `json:"correlation_id,omitempty"`

	// Source identifies the producer
	Source string `json:"source"`

	// Payload contains the event-specific data
	Payload any `json:"payload"`

	// Metadata contains optional key-value pairs for tracing and debugging
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, payload any) *Event {
	return &Event{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Source:     source,
		Payload:    payload,
		Metadata:   make(map[string]string),
	}
}

// WithCorrelationID sets the correlation ID for request tracing
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithMetadata adds a metadata key-value pair
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Publisher publishes events to a topic. The Kafka implementation is the
// production path; tests use an in-memory fake.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Close() error
}

// Topic registry. All topics used by the back office are defined here.
const (
	// TopicTradeExecuted is published after a trade commits.
	// Payload: TradeExecutedPayload
	TopicTradeExecuted = "soko.trades.executed"

	// TopicPaymentInitiated is published when a deposit STK push is sent
	TopicPaymentInitiated = "soko.payments.initiated"

	// TopicPaymentCompleted is published when a deposit callback succeeds
	TopicPaymentCompleted = "soko.payments.completed"

	// TopicPaymentFailed is published when a deposit callback reports failure
	TopicPaymentFailed = "soko.payments.failed"

	// TopicWithdrawalInitiated is published when a withdrawal is requested
	TopicWithdrawalInitiated = "soko.withdrawals.initiated"

	// TopicWithdrawalCompleted is published when a payout confirms
	TopicWithdrawalCompleted = "soko.withdrawals.completed"

	// TopicWithdrawalFailed is published when a payout fails and is refunded
	TopicWithdrawalFailed = "soko.withdrawals.failed"
)

// Event type constants
const (
	EventTypeTradeExecuted       = "trade.executed.v1"
	EventTypePaymentInitiated    = "payment.initiated.v1"
	EventTypePaymentCompleted    = "payment.completed.v1"
	EventTypePaymentFailed       = "payment.failed.v1"
	EventTypeWithdrawalInitiated = "withdrawal.initiated.v1"
	EventTypeWithdrawalCompleted = "withdrawal.completed.v1"
	EventTypeWithdrawalFailed    = "withdrawal.failed.v1"
)

// TradeExecutedPayload is the payload for TopicTradeExecuted. Monetary
// fields are decimal strings to survive JSON round-trips exactly.
type TradeExecutedPayload struct {
	TradeID       string `json:"trade_id"`
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	CompanyID     string `json:"company_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Quantity      int64  `json:"quantity"`
	ExecutedPrice string `json:"executed_price"`
	TotalAmount   string `json:"total_amount"`
	Fees          string `json:"fees"`
}

// PaymentPayload is the payload for payment and withdrawal topics.
type PaymentPayload struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	ProviderRef   string `json:"provider_ref,omitempty"`
	Reason        string `json:"reason,omitempty"`
}
