// Package rabbitmq publishes ledger events to a durable topic exchange.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fastprodman/flipledger/internal/events"
	amqp "github.com/rabbitmq/amqp091-go"
)

var _ events.Publisher = (*Publisher)(nil)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	mu       sync.Mutex
	exchange string
	conn     *amqp.Connection
	ch       channel
	reopen   func() (channel, error)
	declared bool
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")

	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parse amqp url: %w", err)
	}

	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("amqp url scheme must be amqp:// or amqps://")
	}

	return clean, nil
}

// Dial connects with a bounded dial timeout.
func Dial(rawURL, exchange string) (*Publisher, error) {
	clean, err := sanitizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p := newPublisher(ch, exchange, func() (channel, error) { return conn.Channel() })
	p.conn = conn

	return p, nil
}

func newPublisher(ch channel, exchange string, reopen func() (channel, error)) *Publisher {
	return &Publisher{exchange: exchange, ch: ch, reopen: reopen}
}

// Publish uses topic as the routing key. A failed publish reopens the
// channel once before giving up.
func (p *Publisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    key,
		Timestamp:    time.Now(),
		Body:         payload,
	}

	err := p.publish(ctx, topic, msg)
	if err == nil {
		return nil
	}

	slog.WarnContext(ctx, "rabbitmq publish failed, reopening channel", "exchange", p.exchange, "topic", topic, "error", err)

	if p.reopen == nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	ch, rerr := p.reopen()
	if rerr != nil {
		return errors.Join(fmt.Errorf("publish %s: %w", topic, err), fmt.Errorf("reopen channel: %w", rerr))
	}

	_ = p.ch.Close()
	p.ch = ch
	p.declared = false

	err = p.publish(ctx, topic, msg)
	if err != nil {
		return fmt.Errorf("publish %s after reopen: %w", topic, err)
	}

	return nil
}

func (p *Publisher) publish(ctx context.Context, topic string, msg amqp.Publishing) error {
	if !p.declared {
		err := p.ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("declare exchange: %w", err)
		}

		p.declared = true
	}

	return p.ch.PublishWithContext(ctx, p.exchange, topic, false, false, msg)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error

	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}

	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}

	return errors.Join(errs...)
}
