// Package kafka mirrors audit events onto a Kafka compliance stream.
//
// Delivery is best-effort with a durable fallback: when the broker is
// unreachable the circuit breaker opens and events are written to the
// fallback store instead, so the trail survives broker outages.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "armora/pkg/platform/audit"
	"armora/pkg/platform/circuit"
)

// DefaultTopic is the compliance stream topic.
const DefaultTopic = "armora.audit.v1"

// probeEvery controls how often an open breaker lets one event through to
// test whether the broker recovered.
const probeEvery = 50

// Publisher produces audit events to Kafka, keyed by armory so one armory's
// movements stay ordered within a partition.
type Publisher struct {
	client   *kgo.Client
	topic    string
	fallback audit.Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
	skipped  atomic.Uint64
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithTopic overrides the produce topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithLogger sets the logger for breaker transitions and fallback writes.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New connects to the given brokers. The fallback store receives events while
// the breaker is open; it must not be nil.
func New(brokers []string, fallback audit.Store, opts ...Option) (*Publisher, error) {
	if fallback == nil {
		return nil, fmt.Errorf("fallback store is required")
	}

	p := &Publisher{
		topic:    DefaultTopic,
		fallback: fallback,
		breaker:  circuit.New("audit-kafka"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(p.topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p.client = client
	return p, nil
}

// Emit publishes one event. Failures flip to the fallback store rather than
// failing the business operation that emitted the event.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if p.breaker.IsOpen() && p.skipped.Add(1)%probeEvery != 0 {
		return p.emitFallback(ctx, event)
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.ArmoryID.String()),
		Value: value,
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.Warn("audit kafka breaker opened", "error", err)
		}
		return p.emitFallback(ctx, event)
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.Info("audit kafka breaker closed")
	}
	return nil
}

func (p *Publisher) emitFallback(ctx context.Context, event audit.Event) error {
	if err := p.fallback.Append(ctx, event); err != nil {
		return fmt.Errorf("audit fallback append: %w", err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (p *Publisher) Close() {
	p.client.Close()
}
