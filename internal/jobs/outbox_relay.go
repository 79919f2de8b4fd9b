package jobs

import (
	"context"
	"log/slog"

	"github.com/fastprodman/flipledger/internal/config"
	"github.com/fastprodman/flipledger/internal/events"
	"github.com/fastprodman/flipledger/internal/repos"
	"github.com/fastprodman/flipledger/internal/repos/outbox"
)

// OutboxRelay publishes pending outbox messages. Delivery is at least once:
// a crash between Publish and MarkSent resends the message.
type OutboxRelay struct {
	*loop

	store      repos.Store
	publisher  events.Publisher
	batchSize  int
	maxRetries int
}

func NewOutboxRelay(store repos.Store, publisher events.Publisher, cfg config.EventsConfig) *OutboxRelay {
	return &OutboxRelay{
		loop:       newLoop("outbox_relay", cfg.RelayEvery),
		store:      store,
		publisher:  publisher,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
	}
}

// Start blocks until Stop or ctx ends.
func (r *OutboxRelay) Start(ctx context.Context) {
	r.run(ctx, func(ctx context.Context) {
		_, _, err := r.RunOnce(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "outbox relay", "error", err)
		}
	})
}

// RunOnce drains one batch and reports how many messages were sent and how
// many failed to publish.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, int, error) {
	var pending []outbox.Message

	err := r.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		var err error

		pending, err = tx.Outbox().ListPending(ctx, r.batchSize)

		return err
	})
	if err != nil {
		return 0, 0, err
	}

	sent, failed := 0, 0

	for _, msg := range pending {
		perr := r.publisher.Publish(ctx, msg.Topic, msg.Key, msg.Payload)

		err = r.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
			if perr == nil {
				return tx.Outbox().MarkSent(ctx, msg.ID)
			}

			return tx.Outbox().RecordFailure(ctx, msg.ID, r.maxRetries)
		})
		if err != nil {
			return sent, failed, err
		}

		if perr != nil {
			slog.WarnContext(ctx, "publish ledger event",
				"message_id", msg.ID,
				"topic", msg.Topic,
				"retry", msg.RetryCount+1,
				"error", perr,
			)

			failed++

			continue
		}

		sent++
	}

	if sent > 0 || failed > 0 {
		slog.DebugContext(ctx, "outbox relayed", "sent", sent, "failed", failed)
	}

	return sent, failed, nil
}
