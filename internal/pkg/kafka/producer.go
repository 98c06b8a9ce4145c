package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/Gopher0727/TaskRoom/config"
)

// Producer publishes committed domain events to a single topic.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	retries  int
	backoff  time.Duration
}

// NewProducer connects to the brokers named in the kafka config section.
//
// Returns:
//   - *Producer: the producer bound to cfg.Topics.Events
//   - error: the brokers could not be reached
func NewProducer(cfg *config.KafkaConfig) (*Producer, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = cfg.Producer.MaxRetries
	sc.Producer.Retry.Backoff = time.Duration(cfg.Producer.RetryBackoffMs) * time.Millisecond
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Net.DialTimeout = 10 * time.Second
	sc.Net.ReadTimeout = 10 * time.Second
	sc.Net.WriteTimeout = 10 * time.Second
	sc.Metadata.Retry.Max = 3
	sc.Metadata.Retry.Backoff = 250 * time.Millisecond

	sp, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewProducerWith(sp, cfg), nil
}

// NewProducerWith wraps an existing sarama.SyncProducer.
func NewProducerWith(sp sarama.SyncProducer, cfg *config.KafkaConfig) *Producer {
	return &Producer{
		producer: sp,
		topic:    cfg.Topics.Events,
		retries:  cfg.Producer.MaxRetries,
		backoff:  time.Duration(cfg.Producer.RetryBackoffMs) * time.Millisecond,
	}
}

// Send publishes payload keyed by key so events of one room land on one
// partition. Failed sends are retried with exponential backoff until ctx ends.
func (p *Producer) Send(ctx context.Context, key string, payload []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}

	var lastErr error
	backoff := p.backoff
	for attempt := 0; attempt <= p.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, _, err := p.producer.SendMessage(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < p.retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("failed to send event to topic %s after %d attempts: %w", p.topic, p.retries+1, lastErr)
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
