// Package cache keeps read-side property snapshots in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"landregistry/internal/registry/models"
	id "landregistry/pkg/domain"
)

const (
	propertyKeyPrefix  = "land_registry:property:"
	defaultPropertyTTL = 10 * time.Minute
)

// RedisPropertyCache stores JSON property snapshots with a TTL. The ledger
// stays authoritative; a missing or stale entry only costs a ledger read.
type RedisPropertyCache struct {
	client *redis.Client
	ttl    time.Duration
}

type Option func(*RedisPropertyCache)

// WithTTL sets how long snapshots live. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(c *RedisPropertyCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func NewRedisPropertyCache(client *redis.Client, opts ...Option) *RedisPropertyCache {
	c := &RedisPropertyCache{
		client: client,
		ttl:    defaultPropertyTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func propertyKey(tokenID id.TokenID) string {
	return propertyKeyPrefix + strconv.FormatUint(uint64(tokenID), 10)
}

// Get returns nil, nil on a miss.
func (c *RedisPropertyCache) Get(ctx context.Context, tokenID id.TokenID) (*models.Property, error) {
	raw, err := c.client.Get(ctx, propertyKey(tokenID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached property %d: %w", tokenID, err)
	}
	var p models.Property
	if err := json.Unmarshal(raw, &p); err != nil {
		// A snapshot we cannot decode is treated as a miss and dropped.
		_ = c.client.Del(ctx, propertyKey(tokenID)).Err()
		return nil, nil
	}
	return &p, nil
}

// Put overwrites the snapshot after a committed write.
func (c *RedisPropertyCache) Put(ctx context.Context, p *models.Property) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode property %d: %w", p.TokenID, err)
	}
	if err := c.client.Set(ctx, propertyKey(p.TokenID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache property %d: %w", p.TokenID, err)
	}
	return nil
}

// Fill stores the snapshot only when no entry exists.
func (c *RedisPropertyCache) Fill(ctx context.Context, p *models.Property) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode property %d: %w", p.TokenID, err)
	}
	if err := c.client.SetNX(ctx, propertyKey(p.TokenID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("fill property %d: %w", p.TokenID, err)
	}
	return nil
}

func (c *RedisPropertyCache) Delete(ctx context.Context, tokenID id.TokenID) error {
	return c.client.Del(ctx, propertyKey(tokenID)).Err()
}
