package outbox

import (
	"context"
	"fmt"

	"github.com/fastprodman/flipledger/internal/infra/pgutils"
	"github.com/fastprodman/flipledger/internal/repos/outbox"
)

var _ outbox.Outbox = (*outboxRepo)(nil)

type outboxRepo struct{ q pgutils.Querier }

func New(q pgutils.Querier) *outboxRepo {
	return &outboxRepo{q: q}
}

func (r *outboxRepo) Insert(ctx context.Context, msg outbox.Message) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO outbox_messages (message_key, topic, payload, status)
		VALUES ($1, $2, $3::jsonb, 'pending')
	`, msg.Key, msg.Topic, string(msg.Payload))
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}

	return nil
}

func (r *outboxRepo) ListPending(ctx context.Context, limit int) ([]outbox.Message, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, message_key, topic, payload, status, retry_count, created_at
		FROM outbox_messages
		WHERE status = 'pending'
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending messages: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	var out []outbox.Message

	for rows.Next() {
		var (
			m       outbox.Message
			payload string
		)

		err = rows.Scan(&m.ID, &m.Key, &m.Topic, &payload, &m.Status, &m.RetryCount, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		m.Payload = []byte(payload)
		out = append(out, m)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return out, nil
}

func (r *outboxRepo) MarkSent(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = 'sent', updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark message sent: %w", err)
	}

	return nil
}

func (r *outboxRepo) RecordFailure(ctx context.Context, id int64, maxRetries int) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE outbox_messages
		SET retry_count = retry_count + 1,
		    status = CASE WHEN retry_count + 1 >= $2 THEN 'failed' ELSE status END,
		    updated_at = now()
		WHERE id = $1
	`, id, maxRetries)
	if err != nil {
		return fmt.Errorf("record message failure: %w", err)
	}

	return nil
}
