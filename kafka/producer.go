package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/resilience"
)

// Writer is the subset of *kafkago.Writer the producer needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer writes messages to the configured topic, retrying transient
// broker failures.
type Producer struct {
	w     Writer
	topic string
	retry resilience.RetryConfig
	log   *logger.Logger

	mu     sync.Mutex
	closed bool
}

// NewProducer creates a producer backed by a kafka-go Writer.
func NewProducer(cfg Config, log *logger.Logger) (*Producer, error) {
	cfg.ApplyDefaults()
	transport, err := CreateTransport(&cfg)
	if err != nil {
		return nil, err
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		Compression:  ResolveCompression(cfg.Compression),
		BatchSize:    cfg.BatchSize,
		BatchTimeout: ParseDuration(cfg.BatchTimeout),
		WriteTimeout: ParseDuration(cfg.WriteTimeout),
		RequiredAcks: kafkago.RequiredAcks(cfg.RequiredAcks),
		Async:        cfg.Async,
		// Retries are handled by the producer.
		MaxAttempts: 1,
		Transport:   transport,
	}
	return newProducer(w, cfg, log), nil
}

func newProducer(w Writer, cfg Config, log *logger.Logger) *Producer {
	if log == nil {
		log = logger.Nop()
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	return &Producer{
		w:     w,
		topic: cfg.Topic,
		retry: resilience.RetryConfig{
			MaxAttempts:    retries,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Jitter:         0.2,
			RetryIf:        IsRetryableError,
		},
		log: log,
	}
}

// Topic returns the destination topic.
func (p *Producer) Topic() string { return p.topic }

// WriteMessages sends msgs, retrying while the failure is transient.
func (p *Producer) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("kafka producer is closed")
	}

	cfg := p.retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		p.log.Warn("kafka write failed, retrying", logger.Fields(
			"topic", p.topic,
			logger.FieldAttempt, attempt,
			logger.FieldError, err.Error(),
			"wait", wait.String(),
		))
	}
	return resilience.RetryFunc(ctx, cfg, func(ctx context.Context, _ int) error {
		return p.w.WriteMessages(ctx, msgs...)
	})
}

// PublishJSON marshals value and writes it under key.
func (p *Producer) PublishJSON(ctx context.Context, key string, value any, headers ...kafkago.Header) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal kafka message: %w", err)
	}
	return p.WriteMessages(ctx, kafkago.Message{
		Key:     []byte(key),
		Value:   body,
		Headers: headers,
		Time:    time.Now().UTC(),
	})
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.w.Close()
}
