package cachestore_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ents"
	"github.com/syssam/ents/store"
	"github.com/syssam/ents/store/cachestore"
	"github.com/syssam/ents/store/memstore"
)

// mapCache is an in-memory ents.Cache counting hits.
type mapCache struct {
	mu   sync.Mutex
	m    map[string][]byte
	hits int
	fail bool
}

var _ ents.Cache = (*mapCache)(nil)

func newMapCache() *mapCache { return &mapCache{m: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, errors.New("cache down")
	}
	v, ok := c.m[key]
	if ok {
		c.hits++
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache down")
	}
	c.m[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

func (c *mapCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.m {
		if strings.HasPrefix(k, prefix) {
			delete(c.m, k)
		}
	}
	return nil
}

func (c *mapCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.m)
	return nil
}

func setup(t *testing.T) (*cachestore.Store, *memstore.Store, *mapCache) {
	t.Helper()
	inner, err := memstore.New(nil)
	require.NoError(t, err)
	c := newMapCache()
	s, err := cachestore.New(inner, c, cachestore.WithTTL(time.Minute))
	require.NoError(t, err)
	return s, inner, c
}

func TestReadThrough(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, c := setup(t)
	id, err := s.Insert(ctx, "users", store.Document{"name": "a"})
	require.NoError(t, err)

	first, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, c.hits)
	second, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, c.hits)
	assert.Equal(t, first, second)
	assert.Contains(t, c.m, ents.DocumentKey(id).String())

	missing, err := s.Get(ctx, store.NewID("users"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWritesInvalidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, c := setup(t)
	id, err := s.Insert(ctx, "users", store.Document{"name": "a"})
	require.NoError(t, err)
	_, err = s.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, s.Patch(ctx, id, store.Document{"name": "b"}))
	assert.NotContains(t, c.m, ents.DocumentKey(id).String())
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "b", got["name"])

	require.NoError(t, s.Replace(ctx, id, store.Document{"name": "c"}))
	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "c", got["name"])

	require.NoError(t, s.Delete(ctx, id))
	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetMany(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, c := setup(t)
	a, err := s.Insert(ctx, "users", store.Document{"name": "a"})
	require.NoError(t, err)
	b, err := s.Insert(ctx, "users", store.Document{"name": "b"})
	require.NoError(t, err)
	_, err = s.Get(ctx, b)
	require.NoError(t, err)

	docs, err := s.GetMany(ctx, []store.ID{b, store.NewID("users"), a})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "b", docs[0]["name"])
	assert.Nil(t, docs[1])
	assert.Equal(t, "a", docs[2]["name"])
	assert.Equal(t, 1, c.hits)
	assert.Len(t, c.m, 2)

	require.NoError(t, s.Purge(ctx, "users"))
	assert.Empty(t, c.m)
}

func TestCacheFailureFallsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, c := setup(t)
	id, err := s.Insert(ctx, "users", store.Document{"name": "a"})
	require.NoError(t, err)
	c.fail = true
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a", got["name"])

	c.fail = false
	c.m[ents.DocumentKey(id).String()] = []byte{0xc1}
	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a", got["name"])
}

func TestNew(t *testing.T) {
	t.Parallel()
	inner, err := memstore.New(nil)
	require.NoError(t, err)
	_, err = cachestore.New(nil, newMapCache())
	require.Error(t, err)
	_, err = cachestore.New(inner, nil)
	require.Error(t, err)
	_, err = cachestore.New(inner, newMapCache(), cachestore.WithTTL(-time.Second))
	require.Error(t, err)
	_, err = cachestore.New(inner, newMapCache(), cachestore.WithLogger(nil))
	require.Error(t, err)
}

func TestWithConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	inner, err := memstore.New(nil)
	require.NoError(t, err)
	_, err = cachestore.New(inner, newMapCache(), cachestore.WithConfig(ents.Config{CacheTTL: -time.Second}))
	require.Error(t, err)

	c := newMapCache()
	s, err := cachestore.New(inner, c, cachestore.WithConfig(ents.Config{CacheTTL: time.Minute}))
	require.NoError(t, err)
	id, err := s.Insert(ctx, "users", store.Document{"name": "a"})
	require.NoError(t, err)
	_, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, c.m, ents.DocumentKey(id).String())
}
