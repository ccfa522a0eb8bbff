package ents

import (
	"context"
	"time"

	"github.com/syssam/ents/store"
)

// Cache is the interface for caching encoded documents.
// Users should implement this interface with their preferred caching solution
// (e.g., Redis, Memcached, in-memory). cache/rediscache provides a Redis
// implementation.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey identifies a cached document.
type CacheKey struct {
	Table string
	ID    store.ID
}

// DocumentKey returns the cache key of the document with the given id.
func DocumentKey(id store.ID) CacheKey {
	return CacheKey{Table: id.Table(), ID: id}
}

// Prefix returns the key prefix shared by all documents of the table.
func (k CacheKey) Prefix() string {
	return "doc:" + k.Table + ":"
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	return k.Prefix() + string(k.ID)
}
