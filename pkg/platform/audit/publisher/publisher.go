// Package publisher emits audit events to a Store, synchronously by default
// or through a buffered background drain when configured.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "armora/pkg/domain"
	audit "armora/pkg/platform/audit"
)

const drainTimeout = 5 * time.Second

// Publisher persists audit events. Synchronous mode blocks until the store
// write succeeds, which engines rely on for the fail-closed audit of stock
// movements. Async mode trades that guarantee for latency and is meant for
// advisory events only.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	inbox  chan audit.Event
	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to buffered asynchronous delivery
// with the given capacity.
func WithAsyncBuffer(capacity int) Option {
	return func(p *Publisher) {
		if capacity > 0 {
			p.inbox = make(chan audit.Event, capacity)
		}
	}
}

// WithLogger sets the logger used for drop/drain reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher constructs a publisher over the given store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event. In sync mode the error reflects the store write; in
// async mode a full buffer drops the event with a log line rather than
// blocking the business operation.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
		return nil
	}
}

// List reads back events for an armory, mostly for tests and admin reads.
func (p *Publisher) List(ctx context.Context, armoryID id.ArmoryID) ([]audit.Event, error) {
	return p.store.ListByArmory(ctx, armoryID)
}

// Close stops the background drain, flushing whatever is buffered.
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.closed)
		if p.inbox != nil {
			p.wg.Wait()
		}
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.inbox:
			p.append(event)
		case <-p.closed:
			for {
				select {
				case event := <-p.inbox:
					p.append(event)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) append(event audit.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.Error("audit append failed", "action", event.Action, "error", err)
	}
}
