// Package cachestore provides a read-through document cache in front of any
// store.Store. Point reads (Get and GetMany) are served from an ents.Cache;
// writes go to the underlying store and invalidate the cached document.
// Scans always reach the underlying store.
package cachestore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/syssam/ents"
	"github.com/syssam/ents/store"
)

type (
	// Config holds the cache configuration.
	Config struct {
		// TTL of cached documents. Zero means no expiration.
		TTL time.Duration
		// Logger receives cache failures. A failing cache never fails a read.
		Logger *slog.Logger
	}

	// Option configures a Store.
	Option func(*Config) error
)

// WithTTL sets the expiration of cached documents.
func WithTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl < 0 {
			return errors.New("cachestore: negative ttl")
		}
		c.TTL = ttl
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) error {
		if l == nil {
			return errors.New("cachestore: nil logger")
		}
		c.Logger = l
		return nil
	}
}

// WithConfig applies the cache TTL and the logger of a client
// configuration.
func WithConfig(cfg ents.Config) Option {
	return func(c *Config) error {
		if cfg.CacheTTL < 0 {
			return errors.New("cachestore: negative ttl")
		}
		c.TTL = cfg.CacheTTL
		if cfg.Logger != nil {
			c.Logger = cfg.Logger
		}
		return nil
	}
}

// Store is a store.Store that caches documents.
type Store struct {
	store.Store
	cache  ents.Cache
	config Config
}

var (
	_ store.Store       = (*Store)(nil)
	_ store.BatchGetter = (*Store)(nil)
)

// New wraps s with the given cache.
func New(s store.Store, cache ents.Cache, opts ...Option) (*Store, error) {
	c := Config{Logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return nil, err
		}
	}
	if s == nil || cache == nil {
		return nil, errors.New("cachestore: nil store or cache")
	}
	return &Store{Store: s, cache: cache, config: c}, nil
}

// Get returns the document from the cache, loading it from the store on a miss.
func (s *Store) Get(ctx context.Context, id store.ID) (store.Document, error) {
	if d, ok := s.cached(ctx, id); ok {
		return d, nil
	}
	d, err := s.Store.Get(ctx, id)
	if err != nil || d == nil {
		return d, err
	}
	s.fill(ctx, d)
	return d, nil
}

// GetMany returns the documents of ids, loading the misses from the store
// in one batch when it supports it.
func (s *Store) GetMany(ctx context.Context, ids []store.ID) ([]store.Document, error) {
	out := make([]store.Document, len(ids))
	var (
		missing []store.ID
		at      []int
	)
	for i, id := range ids {
		if d, ok := s.cached(ctx, id); ok {
			out[i] = d
			continue
		}
		missing = append(missing, id)
		at = append(at, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	var (
		loaded []store.Document
		err    error
	)
	if bg, ok := s.Store.(store.BatchGetter); ok {
		loaded, err = bg.GetMany(ctx, missing)
	} else {
		loaded = make([]store.Document, len(missing))
		for i, id := range missing {
			if loaded[i], err = s.Store.Get(ctx, id); err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}
	for i, d := range loaded {
		out[at[i]] = d
		if d != nil {
			s.fill(ctx, d)
		}
	}
	return out, nil
}

// Patch patches the document and invalidates its cache entry.
func (s *Store) Patch(ctx context.Context, id store.ID, partial store.Document) error {
	defer s.invalidate(ctx, id)
	return s.Store.Patch(ctx, id, partial)
}

// Replace replaces the document and invalidates its cache entry.
func (s *Store) Replace(ctx context.Context, id store.ID, doc store.Document) error {
	defer s.invalidate(ctx, id)
	return s.Store.Replace(ctx, id, doc)
}

// Delete deletes the document and invalidates its cache entry.
func (s *Store) Delete(ctx context.Context, id store.ID) error {
	defer s.invalidate(ctx, id)
	return s.Store.Delete(ctx, id)
}

// Purge drops the cached documents of a table.
func (s *Store) Purge(ctx context.Context, table string) error {
	return s.cache.DeletePrefix(ctx, ents.CacheKey{Table: table}.Prefix())
}

func (s *Store) cached(ctx context.Context, id store.ID) (store.Document, bool) {
	b, err := s.cache.Get(ctx, ents.DocumentKey(id).String())
	if err != nil {
		s.config.Logger.WarnContext(ctx, "cachestore: get failed", "id", id, "error", err)
		return nil, false
	}
	if b == nil {
		return nil, false
	}
	d, err := store.UnmarshalDocument(b)
	if err != nil {
		s.config.Logger.WarnContext(ctx, "cachestore: dropping undecodable entry", "id", id, "error", err)
		s.invalidate(ctx, id)
		return nil, false
	}
	return d, true
}

func (s *Store) fill(ctx context.Context, d store.Document) {
	b, err := store.MarshalDocument(d)
	if err == nil {
		err = s.cache.Set(ctx, ents.DocumentKey(d.ID()).String(), b, s.config.TTL)
	}
	if err != nil {
		s.config.Logger.WarnContext(ctx, "cachestore: set failed", "id", d.ID(), "error", err)
	}
}

func (s *Store) invalidate(ctx context.Context, id store.ID) {
	if err := s.cache.Delete(ctx, ents.DocumentKey(id).String()); err != nil {
		s.config.Logger.WarnContext(ctx, "cachestore: invalidate failed", "id", id, "error", err)
	}
}
