// Package redis connects the property cache to Redis.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"landregistry/internal/platform/config"
)

// Client is the connection the property cache and the health endpoint share.
type Client struct {
	*redis.Client
}

// New dials the server named by cfg.URL and pings it once. An empty URL
// means the registry runs without a cache, so New returns nil and no error.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return &Client{Client: rdb}, nil
}

// options layers the pool and timeout settings over what the URL carries
// (address, database, credentials). Zero settings keep go-redis defaults.
func options(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Health reports whether the cache server answers; it is served on /healthz
// next to the ledger check.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
