// Package outbox relays committed ledger events to external sinks.
//
// Events are written to the ledger in the same transaction as the state
// change they describe. The relay polls for unpublished events, hands each
// batch to every sink, and marks the batch published only when all sinks
// accepted it. Delivery is at least once: a sink that succeeded before
// another failed sees the batch again on the next attempt, so consumers
// deduplicate on the event id.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"landregistry/internal/registry/metrics"
	"landregistry/internal/registry/models"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// Source is the ledger side of the outbox.
type Source interface {
	ListUnpublishedEvents(ctx context.Context, limit int) ([]models.Event, error)
	MarkEventsPublished(ctx context.Context, sequences []uint64) error
}

// Sink receives batches of events in sequence order.
type Sink interface {
	Name() string
	Publish(ctx context.Context, events []models.Event) error
}

// Relay moves events from the ledger to the sinks.
type Relay struct {
	source   Source
	sinks    []Sink
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	batch    int
	wake     chan struct{}
	flushMu  sync.Mutex
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func NewRelay(source Source, sinks []Sink, opts ...Option) *Relay {
	r := &Relay{
		source:   source,
		sinks:    sinks,
		logger:   slog.Default(),
		interval: defaultPollInterval,
		batch:    defaultBatchSize,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notify wakes the relay without waiting for the next tick. It never blocks.
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run relays until ctx is cancelled. Publish failures are logged and retried
// on the next wake-up; they never stop the loop.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "outbox relay started",
		"sinks", len(r.sinks),
		"poll_interval", r.interval.String(),
		"batch_size", r.batch,
	)
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox flush failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// Flush publishes batches until none are pending or one fails, returning
// how many events were published. Concurrent calls run one at a time.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	published := 0
	for {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		events, err := r.source.ListUnpublishedEvents(ctx, r.batch)
		if err != nil {
			return published, fmt.Errorf("list unpublished events: %w", err)
		}
		if r.metrics != nil {
			r.metrics.OutboxLag.Set(float64(len(events)))
		}
		if len(events) == 0 {
			return published, nil
		}
		if err := r.publish(ctx, events); err != nil {
			return published, err
		}
		sequences := make([]uint64, len(events))
		for i, e := range events {
			sequences[i] = e.Sequence
		}
		if err := r.source.MarkEventsPublished(ctx, sequences); err != nil {
			return published, fmt.Errorf("mark events published: %w", err)
		}
		published += len(events)
		if r.metrics != nil {
			r.metrics.OutboxPublished.Add(float64(len(events)))
		}
		if len(events) < r.batch {
			return published, nil
		}
	}
}

func (r *Relay) publish(ctx context.Context, events []models.Event) error {
	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Publish(ctx, events); err != nil {
			if r.metrics != nil {
				r.metrics.OutboxFailures.WithLabelValues(sink.Name()).Inc()
			}
			errs = append(errs, fmt.Errorf("sink %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
