// Package rediscache implements ents.Cache on Redis.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/syssam/ents"
)

// DefaultNamespace prefixes every key written by the cache.
const DefaultNamespace = "ents:"

// scanCount is the COUNT hint of the SCAN calls issued by DeletePrefix.
const scanCount = 500

// Cache is an ents.Cache backed by a Redis client.
type Cache struct {
	client    redis.UniversalClient
	namespace string
}

var _ ents.Cache = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithNamespace sets the key namespace. Clear only removes keys of the namespace.
func WithNamespace(ns string) Option {
	return func(c *Cache) {
		c.namespace = ns
	}
}

// New returns a cache using client.
func New(client redis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{client: client, namespace: DefaultNamespace}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open connects to the Redis server at addr and verifies the connection.
func Open(ctx context.Context, addr, password string, db int, opts ...Option) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rediscache: connect %s: %w", addr, err)
	}
	return New(client, opts...), nil
}

// Get retrieves a value. It returns nil, nil for missing keys.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, c.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rediscache: get %s: %w", key, err)
	}
	return b, nil
}

// Set stores a value. A zero ttl stores it without expiration.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.namespace+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: set %s: %w", key, err)
	}
	return nil
}

// Delete removes a value.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.namespace+key).Err(); err != nil {
		return fmt.Errorf("rediscache: delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes all values whose key starts with prefix.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, c.namespace+prefix+"*", scanCount).Iterator()
	pipe := c.client.Pipeline()
	n := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		n++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("rediscache: scan %s: %w", prefix, err)
	}
	if n == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rediscache: delete prefix %s: %w", prefix, err)
	}
	return nil
}

// Clear removes all values of the namespace.
func (c *Cache) Clear(ctx context.Context) error {
	return c.DeletePrefix(ctx, "")
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
