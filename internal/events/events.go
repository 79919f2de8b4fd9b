// Package events turns ledger entries into outbox messages and defines the
// broker side the relay publishes to.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/fastprodman/flipledger/internal/repos/outbox"
)

// Event is the JSON payload of a ledger message.
type Event struct {
	EntryID     string    `json:"entry_id"`
	AccountID   string    `json:"account_id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Amount      string    `json:"amount"`
	ExternalRef *string   `json:"external_ref,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Topic is ledger.<kind>.<status>, e.g. ledger.withdraw.failed.
func Topic(kind ledger.Kind, status ledger.Status) string {
	return fmt.Sprintf("ledger.%s.%s", kind, status)
}

func FromEntry(e ledger.Entry, at time.Time) Event {
	return Event{
		EntryID:     e.ID,
		AccountID:   e.AccountID,
		Kind:        string(e.Kind),
		Status:      string(e.Status),
		Amount:      e.Amount.String(),
		ExternalRef: e.ExternalRef,
		OccurredAt:  at.UTC(),
	}
}

// Message builds the outbox row for e, keyed by account so brokers that
// partition by key keep one account's events in order.
func Message(e ledger.Entry, at time.Time) (outbox.Message, error) {
	payload, err := json.Marshal(FromEntry(e, at))
	if err != nil {
		return outbox.Message{}, fmt.Errorf("marshal ledger event: %w", err)
	}

	return outbox.Message{
		Key:       e.AccountID,
		Topic:     Topic(e.Kind, e.Status),
		Payload:   payload,
		CreatedAt: at,
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

// LogPublisher only logs; it is used when no broker is configured.
type LogPublisher struct{}

var _ Publisher = LogPublisher{}

func (LogPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	slog.DebugContext(ctx, "ledger event", "topic", topic, "key", key, "payload", string(payload))

	return nil
}

func (LogPublisher) Close() error { return nil }
