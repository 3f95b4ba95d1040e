// Package redis implements the odds cache and distributed trade locks using
// go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// defaultKeyspace prefixes every key this process writes, so a shared Redis
// can host other tenants without collisions.
const defaultKeyspace = "predictr"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool

	// Keyspace overrides the key prefix; empty means defaultKeyspace.
	Keyspace string
}

// Client wraps a go-redis Client and owns the key naming scheme shared by
// the lock manager and the odds cache.
type Client struct {
	rdb      *redis.Client
	keyspace string
}

// New creates a new Redis Client, pings it to verify connectivity, and
// returns the wrapper.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	keyspace := cfg.Keyspace
	if keyspace == "" {
		keyspace = defaultKeyspace
	}

	return &Client{rdb: rdb, keyspace: keyspace}, nil
}

// key joins the keyspace and the given segments into a Redis key, e.g.
// key("odds", marketID) -> "predictr:odds:{marketID}".
func (c *Client) key(segments ...string) string {
	return c.keyspace + ":" + strings.Join(segments, ":")
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
