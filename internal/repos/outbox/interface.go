package outbox

import (
	"context"
	"time"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

type Message struct {
	ID         int64
	Key        string
	Topic      string
	Payload    []byte
	Status     string
	RetryCount int
	CreatedAt  time.Time
}

type Outbox interface {
	Insert(ctx context.Context, msg Message) error
	ListPending(ctx context.Context, limit int) ([]Message, error)
	MarkSent(ctx context.Context, id int64) error
	// RecordFailure bumps the retry counter and marks the message failed once
	// maxRetries is reached.
	RecordFailure(ctx context.Context, id int64, maxRetries int) error
}
