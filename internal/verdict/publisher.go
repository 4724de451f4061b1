package verdict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/amdetect/internal/observe"
	"github.com/MrWong99/amdetect/internal/resilience"
)

// DefaultSaveTimeout bounds a single [Publisher.Save].
const DefaultSaveTimeout = 5 * time.Second

var _ Store = (*Publisher)(nil)

// Publisher wraps a [Store] and guards writes with a circuit breaker. Every
// failure is counted on the store error metric.
//
// Save detaches from the caller's cancellation: a call that ended with a
// hangup still has its verdict written.
type Publisher struct {
	store   Store
	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics
	timeout time.Duration
}

// PublisherOption configures a [Publisher].
type PublisherOption func(*Publisher)

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) PublisherOption {
	return func(p *Publisher) { p.breaker = cb }
}

// WithMetrics sets the metrics used to count store errors.
func WithMetrics(m *observe.Metrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

// WithSaveTimeout overrides [DefaultSaveTimeout].
func WithSaveTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.timeout = d }
}

// NewPublisher creates a Publisher writing to store.
func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, timeout: DefaultSaveTimeout}
	for _, o := range opts {
		o(p)
	}
	if p.breaker == nil {
		p.breaker = resilience.New(resilience.Config{
			Name: "verdict-store",
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state change", "breaker", name, "from", from, "to", to)
			},
		})
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Store returns the wrapped store.
func (p *Publisher) Store() Store { return p.store }

// Breaker returns the circuit breaker guarding writes.
func (p *Publisher) Breaker() *resilience.CircuitBreaker { return p.breaker }

// Save writes r through the circuit breaker. When the breaker is open the
// write is skipped and an error wrapping [resilience.ErrCircuitOpen] is
// returned.
func (p *Publisher) Save(ctx context.Context, r Record) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	err := p.breaker.Do(ctx, func(ctx context.Context) error {
		return p.store.Save(ctx, r)
	})
	if err != nil {
		p.metrics.RecordStoreError(ctx, "save")
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return fmt.Errorf("verdict: save %q skipped: %w", r.CallID, err)
		}
		return err
	}
	return nil
}

// Get reads from the wrapped store. A missing record is not counted as a
// store error.
func (p *Publisher) Get(ctx context.Context, callID string) (Record, error) {
	r, err := p.store.Get(ctx, callID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		p.metrics.RecordStoreError(ctx, "get")
	}
	return r, err
}

// Ping checks the wrapped store.
func (p *Publisher) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		p.metrics.RecordStoreError(ctx, "ping")
		return err
	}
	return nil
}
