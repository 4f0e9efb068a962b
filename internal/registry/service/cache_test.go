package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"landregistry/internal/registry/metrics"
	"landregistry/internal/registry/models"
	"landregistry/internal/registry/store"
	id "landregistry/pkg/domain"
	"landregistry/pkg/requestcontext"
)

// memoryCache is a PropertyCache that fails calls made with a done context,
// the way a network-backed cache does.
type memoryCache struct {
	mu        sync.Mutex
	snapshots map[id.TokenID]*models.Property
	failPuts  bool
	failDels  bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{snapshots: make(map[id.TokenID]*models.Property)}
}

var errCacheDown = errors.New("cache unavailable")

func (c *memoryCache) Get(ctx context.Context, tokenID id.TokenID) (*models.Property, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshots[tokenID].Clone(), nil
}

func (c *memoryCache) Put(ctx context.Context, p *models.Property) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failPuts {
		return errCacheDown
	}
	c.snapshots[p.TokenID] = p.Clone()
	return nil
}

func (c *memoryCache) Fill(ctx context.Context, p *models.Property) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.snapshots[p.TokenID]; !ok {
		c.snapshots[p.TokenID] = p.Clone()
	}
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, tokenID id.TokenID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failDels {
		return errCacheDown
	}
	delete(c.snapshots, tokenID)
	return nil
}

func (c *memoryCache) setFailures(puts, dels bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failPuts, c.failDels = puts, dels
}

// cancelAfterCommit cancels the caller's context as soon as the next
// transaction commits, like a client hanging up mid-response.
type cancelAfterCommit struct {
	store.Ledger
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (l *cancelAfterCommit) RunInTx(ctx context.Context, fn func(s store.Store) error) error {
	err := l.Ledger.RunInTx(ctx, fn)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil && l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	return err
}

func (l *cancelAfterCommit) cancelNext(cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancel = cancel
}

type CacheSuite struct {
	suite.Suite
	ledger  *cancelAfterCommit
	cache   *memoryCache
	metrics *metrics.Metrics
	service *Service
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.ledger = &cancelAfterCommit{Ledger: store.NewInMemoryLedger()}
	s.cache = newMemoryCache()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.ledger,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithMetrics(s.metrics),
		WithCache(s.cache),
	)
	s.Require().NoError(s.service.Bootstrap(context.Background(), admin))
	_, err := s.service.GrantRole(s.as(context.Background(), admin), models.RoleRegistrar, registrar, nil)
	s.Require().NoError(err)
}

func (s *CacheSuite) as(ctx context.Context, caller id.Address) context.Context {
	return requestcontext.WithCaller(ctx, caller)
}

func (s *CacheSuite) mint() *models.Property {
	p, err := s.service.MintProperty(s.as(context.Background(), registrar), seller, "ipfs://parcel-9", 100)
	s.Require().NoError(err)
	return p
}

func (s *CacheSuite) TestCommitIsVisibleWhenCallerLeavesAfterCommit() {
	p := s.mint()
	cached, err := s.cache.Get(context.Background(), p.TokenID)
	s.Require().NoError(err)
	s.Require().NotNil(cached)
	s.Equal(models.StatusActive, cached.Status)

	ctx, cancel := context.WithCancel(s.as(context.Background(), seller))
	defer cancel()
	s.ledger.cancelNext(cancel)

	_, err = s.service.RecordTrust(ctx, p.TokenID, buyer)
	s.Require().NoError(err)
	s.Require().Error(ctx.Err())

	stored, err := s.ledger.FindProperty(context.Background(), p.TokenID)
	s.Require().NoError(err)
	s.Equal(models.StatusTrusted, stored.Status)

	got, err := s.service.GetProperty(context.Background(), p.TokenID)
	s.Require().NoError(err)
	s.Equal(stored.Status, got.Status)
	s.Equal(buyer, got.PotentialBuyer)
	s.Equal(float64(0), testutil.ToFloat64(s.metrics.CacheWriteFailures.WithLabelValues("put")))
}

func (s *CacheSuite) TestFailedPutEvictsSnapshot() {
	p := s.mint()
	s.cache.setFailures(true, false)

	_, err := s.service.RecordTrust(s.as(context.Background(), seller), p.TokenID, buyer)
	s.Require().NoError(err)

	cached, err := s.cache.Get(context.Background(), p.TokenID)
	s.Require().NoError(err)
	s.Nil(cached)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.CacheWriteFailures.WithLabelValues("put")))
	s.Equal(float64(0), testutil.ToFloat64(s.metrics.CacheWriteFailures.WithLabelValues("delete")))

	s.cache.setFailures(false, false)
	got, err := s.service.GetProperty(context.Background(), p.TokenID)
	s.Require().NoError(err)
	s.Equal(models.StatusTrusted, got.Status)
}

func (s *CacheSuite) TestFailedEvictionIsCounted() {
	p := s.mint()
	s.cache.setFailures(true, true)

	_, err := s.service.RecordTrust(s.as(context.Background(), seller), p.TokenID, buyer)
	s.Require().NoError(err)

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.CacheWriteFailures.WithLabelValues("put")))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.CacheWriteFailures.WithLabelValues("delete")))
}
