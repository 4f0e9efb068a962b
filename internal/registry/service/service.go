// Package service is the transfer state machine. Every operation validates
// the caller and the record's state, then applies the transition, the escrow
// movement and the audit events in one ledger transaction.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"landregistry/internal/registry/metrics"
	"landregistry/internal/registry/models"
	"landregistry/internal/registry/store"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/requestcontext"
)

// PropertyCache holds read-side snapshots of properties. Put overwrites and
// is only called by the writer holding the token's lock; Fill writes only
// when no entry exists, so a slow reader never replaces a newer snapshot.
type PropertyCache interface {
	Get(ctx context.Context, tokenID id.TokenID) (*models.Property, error)
	Put(ctx context.Context, p *models.Property) error
	Fill(ctx context.Context, p *models.Property) error
	Delete(ctx context.Context, tokenID id.TokenID) error
}

// CommitNotifier is told when events have been committed.
type CommitNotifier interface {
	Notify()
}

// Service orchestrates the land registry.
type Service struct {
	ledger    store.Ledger
	locks     *shardedLocks
	cache     PropertyCache
	notifier  CommitNotifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	txTimeout time.Duration
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithCache(cache PropertyCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithCommitNotifier(n CommitNotifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithLockShards sets how many lock shards transitions hash onto.
func WithLockShards(n int) Option {
	return func(s *Service) {
		s.locks = newShardedLocks(n)
	}
}

// WithTxTimeout bounds lock wait plus transaction time for callers that do
// not set their own deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.txTimeout = d
	}
}

func New(ledger store.Ledger, opts ...Option) *Service {
	s := &Service{
		ledger:    ledger,
		logger:    slog.Default(),
		tracer:    otel.Tracer("landregistry/internal/registry/service"),
		txTimeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locks == nil {
		s.locks = newShardedLocks(defaultLockShards)
	}
	return s
}

// change is what a committed transaction produced.
type change struct {
	property *models.Property
	mint     *models.MintRequest
	grant    *models.RoleGrant
	amount   id.Amount
	events   []models.Event
}

func (c *change) emit(typ models.EventType, tokenID *id.TokenID, actor id.Address, now time.Time, args map[string]string) {
	c.events = append(c.events, models.NewEvent(typ, tokenID, actor, now, args))
}

// txFunc applies one transition inside a transaction. It returns the change
// to persist; a non-nil property is invariant-checked and saved.
type txFunc func(ctx context.Context, tx store.Store, caller id.Address, now time.Time) (*change, error)

// execute runs fn under the lock for key inside a ledger transaction, then
// updates the cache, logs, metrics and wakes the outbox.
func (s *Service) execute(ctx context.Context, op, key string, attrs []attribute.KeyValue, fn txFunc) (*change, error) {
	ctx, span := s.tracer.Start(ctx, "registry."+op, trace.WithAttributes(attrs...))
	defer span.End()
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.ObserveOperation(op, start)
	}

	c, err := s.run(ctx, key, fn)
	if err != nil {
		err = translate(err)
		s.rejected(ctx, op, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, dErrors.ReasonOf(err))
		return nil, err
	}
	s.committed(ctx, c)
	return c, nil
}

func (s *Service) run(ctx context.Context, key string, fn txFunc) (*change, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "caller identity is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	unlock, err := s.locks.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := requestcontext.Now(ctx).UTC()
	var c *change
	err = s.ledger.RunInTx(ctx, func(tx store.Store) error {
		var err error
		c, err = fn(ctx, tx, caller, now)
		if err != nil {
			return err
		}
		if c.property != nil {
			if err := c.property.CheckInvariants(); err != nil {
				return err
			}
			if err := tx.SaveProperty(ctx, c.property); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save property")
			}
		}
		for i := range c.events {
			if err := tx.AppendEvent(ctx, &c.events[i]); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Still under the token lock, so no later writer can be overtaken.
	if c.property != nil && s.cache != nil {
		s.refreshCache(ctx, c.property)
	}
	return c, nil
}

// refreshCache replaces the cached snapshot after a commit. The commit has
// already happened, so a caller going away must not leave the old snapshot
// behind: the writes run detached from ctx, bounded by cacheWriteTimeout.
func (s *Service) refreshCache(ctx context.Context, p *models.Property) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()

	err := s.cache.Put(ctx, p)
	if err == nil {
		return
	}
	s.cacheWriteFailed("put")
	s.logger.WarnContext(ctx, "property cache update failed",
		"token_id", p.TokenID.String(), "error", err)
	if err := s.cache.Delete(ctx, p.TokenID); err != nil {
		s.cacheWriteFailed("delete")
		s.logger.ErrorContext(ctx, "stale property snapshot left in cache",
			"token_id", p.TokenID.String(), "error", err)
	}
}

func (s *Service) cacheWriteFailed(operation string) {
	if s.metrics != nil {
		s.metrics.IncrementCacheWriteFailure(operation)
	}
}

// translate keeps coded errors and classifies everything else.
func translate(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: deadline exceeded")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "ledger transaction failed")
}

func (s *Service) committed(ctx context.Context, c *change) {
	requestID := requestcontext.RequestID(ctx)
	for _, e := range c.events {
		args := []any{"event", string(e.Type), "actor", e.Actor.String(), "sequence", e.Sequence}
		if e.TokenID != nil {
			args = append(args, "token_id", e.TokenID.String())
		}
		if requestID != "" {
			args = append(args, "request_id", requestID)
		}
		s.logger.InfoContext(ctx, "transition committed", args...)
		s.recordEvent(e)
	}
	if s.notifier != nil && len(c.events) > 0 {
		s.notifier.Notify()
	}
}

func (s *Service) recordEvent(e models.Event) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncrementCommitted(string(e.Type))
	direction := ""
	switch e.Type {
	case models.EventFundsDeposited, models.EventLeaseInitiated:
		direction = "deposited"
	case models.EventEscrowReleased:
		direction = "released"
	case models.EventEscrowRefunded:
		direction = "refunded"
	default:
		return
	}
	if amount, err := id.ParseAmount(e.Args["amount"]); err == nil {
		s.metrics.AddEscrow(direction, e.Args["kind"], uint64(amount))
	}
}

func (s *Service) rejected(ctx context.Context, op string, err error) {
	code := dErrors.CodeOf(err)
	level := slog.LevelWarn
	if code == dErrors.CodeInternal || code == dErrors.CodeInvariantViolation {
		level = slog.LevelError
	}
	args := []any{"operation", op, "code", string(code), "error", err.Error()}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.Log(ctx, level, "transition rejected", args...)
	if s.metrics != nil {
		s.metrics.IncrementRejected(op, string(code))
	}
}

func tokenKey(tokenID id.TokenID) string { return "token:" + tokenID.String() }

func tokenAttr(tokenID id.TokenID) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("token_id", tokenID.String())}
}

func loadProperty(ctx context.Context, tx store.Store, tokenID id.TokenID) (*models.Property, error) {
	p, err := tx.FindProperty(ctx, tokenID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("property %s not found", tokenID))
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}
	return p, nil
}

func loadMintRequest(ctx context.Context, tx store.Store, requestID id.MintRequestID) (*models.MintRequest, error) {
	r, err := tx.FindMintRequest(ctx, requestID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("mint request %s not found", requestID))
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load mint request")
	}
	return r, nil
}
