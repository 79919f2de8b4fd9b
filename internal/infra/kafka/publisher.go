// Package kafka publishes ledger events through a sarama sync producer.
package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/fastprodman/flipledger/internal/events"
)

var _ events.Publisher = (*Publisher)(nil)

type Publisher struct {
	producer sarama.SyncProducer
}

// NewConfig waits for all in-sync replicas.
func NewConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	return cfg
}

func Dial(brokers []string) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return New(producer), nil
}

func New(producer sarama.SyncProducer) *Publisher {
	return &Publisher{producer: producer}
}

// Publish sends to the topic named after the event; key keeps one
// account's events on one partition.
func (p *Publisher) Publish(_ context.Context, topic, key string, payload []byte) error {
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("send kafka message to %s: %w", topic, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	err := p.producer.Close()
	if err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}

	return nil
}
