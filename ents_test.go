package ents_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ents"
	"github.com/syssam/ents/graph"
	"github.com/syssam/ents/schema"
	"github.com/syssam/ents/schema/edge"
	"github.com/syssam/ents/schema/field"
	"github.com/syssam/ents/schema/index"
	"github.com/syssam/ents/store"
	"github.com/syssam/ents/store/memstore"
)

func chatGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.Compile(
		schema.Table("users").
			Fields(
				field.String("name"),
				field.String("email").Unique().Optional(),
				field.Int("karma").Default(0),
				field.JSON("settings").Default(map[string]any{"theme": "dark"}),
			).
			Edges(
				edge.One("profile").Optional(),
				edge.Many("messages"),
				edge.Many("friends").To("users"),
				edge.Many("groups"),
				edge.Many("followees").To("users").Inverse("followers"),
			),
		schema.Table("profiles").
			Fields(field.String("bio")).
			Edges(edge.One("user").Ref()),
		schema.Table("messages").
			Fields(field.String("text"), field.String("channel").Index()).
			Edges(edge.One("user")).
			SearchIndexes(index.Search("search_text", "text").Filter("channel")),
		schema.Table("groups").
			Fields(field.String("name")).
			Edges(edge.Many("members").To("users")).
			Deletion(schema.SoftDelete),
		schema.Table("tags").
			Fields(field.String("label")).
			Edges(edge.Many("messages")),
	)
	require.NoError(t, err)
	return g
}

// countingStore counts the store calls of the entity layer. It hides the
// batch getter of the wrapped store.
type countingStore struct {
	store.Store
	gets, queries atomic.Int64
}

func (s *countingStore) Get(ctx context.Context, id store.ID) (store.Document, error) {
	s.gets.Add(1)
	return s.Store.Get(ctx, id)
}

func (s *countingStore) Query(table string) store.Scan {
	s.queries.Add(1)
	return s.Store.Query(table)
}

func (s *countingStore) calls() int64 { return s.gets.Load() + s.queries.Load() }

func newClient(t *testing.T, opts ...ents.Option) (*ents.Client, *memstore.Store) {
	t.Helper()
	g := chatGraph(t)
	ms, err := memstore.New(g)
	require.NoError(t, err)
	c, err := ents.NewClient(g, ms, opts...)
	require.NoError(t, err)
	return c, ms
}

func newCountingClient(t *testing.T) (*ents.Client, *countingStore) {
	t.Helper()
	g := chatGraph(t)
	ms, err := memstore.New(g)
	require.NoError(t, err)
	cs := &countingStore{Store: ms}
	c, err := ents.NewClient(g, cs)
	require.NoError(t, err)
	return c, cs
}

func insert(t *testing.T, c *ents.Client, table string, doc store.Document) store.ID {
	t.Helper()
	id, err := c.Table(table).Insert(context.Background(), doc)
	require.NoError(t, err)
	return id
}

func names(t *testing.T, es []*ents.Entity) []string {
	t.Helper()
	out := make([]string, len(es))
	for i, e := range es {
		v, ok := ents.Value[string](e, "name")
		if !ok {
			v, _ = ents.Value[string](e, "text")
		}
		out[i] = v
	}
	return out
}

func TestNewClient(t *testing.T) {
	t.Parallel()
	g := chatGraph(t)
	ms, err := memstore.New(g)
	require.NoError(t, err)

	_, err = ents.NewClient(nil, ms)
	require.Error(t, err)
	_, err = ents.NewClient(g, nil)
	require.Error(t, err)

	tests := []struct {
		name string
		opt  ents.Option
	}{
		{"NilLogger", ents.WithLogger(nil)},
		{"NilClock", ents.WithClock(nil)},
		{"ZeroConcurrency", ents.WithConcurrency(0)},
		{"NegativeConfig", ents.WithConfig(ents.Config{Concurrency: -1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ents.NewClient(g, ms, tt.opt)
			require.Error(t, err)
		})
	}

	c, err := ents.NewClient(g, ms, ents.WithConfig(ents.Config{Concurrency: 3, CacheTTL: time.Minute}))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Config().Concurrency)
	assert.Equal(t, time.Minute, c.Config().CacheTTL)
	assert.Same(t, g, c.Graph())
	assert.Equal(t, store.Store(ms), c.Store())
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "ents.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurrency: 4\ncache_ttl: 5m\nslow_query_threshold: 200ms\n"), 0o600))
	cfg, err := ents.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThreshold)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("concurrency: -2\n"), 0o600))
	_, err = ents.LoadConfig(bad)
	require.Error(t, err)
	_, err = ents.LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newClient(t)
	users := c.Table("users")
	alice := insert(t, c, "users", store.Document{"name": "alice"})
	missing := store.NewID("users")

	t.Run("Existing", func(t *testing.T) {
		u, err := users.Get(alice).Resolve(ctx)
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, alice, u.ID())
		assert.Equal(t, "users", u.Table())
		assert.Equal(t, "alice", u.Get("name"))
		assert.Positive(t, u.CreationTime())
	})
	t.Run("Missing", func(t *testing.T) {
		u, err := users.Get(missing).Resolve(ctx)
		require.NoError(t, err)
		assert.Nil(t, u)
		_, err = users.GetOrFail(missing).Resolve(ctx)
		require.ErrorIs(t, err, ents.ErrNotFound)
	})
	t.Run("IDWithoutLoad", func(t *testing.T) {
		id, err := users.Get(missing).ID(ctx)
		require.NoError(t, err)
		assert.Equal(t, missing, id)
		_, err = users.GetOrFail(missing).ID(ctx)
		require.ErrorIs(t, err, ents.ErrNotFound)
	})
	t.Run("InvalidID", func(t *testing.T) {
		_, err := users.Get(store.NewID("messages")).Resolve(ctx)
		require.ErrorIs(t, err, ents.ErrInvalidID)
	})
	t.Run("UnknownTable", func(t *testing.T) {
		_, err := c.Table("nope").Get(alice).Resolve(ctx)
		require.ErrorIs(t, err, ents.ErrUnknownTable)
		_, err = c.Table("nope").Query().All(ctx)
		require.ErrorIs(t, err, ents.ErrUnknownTable)
		_, ok := c.Table("nope").Normalize(string(alice))
		assert.False(t, ok)
	})
	t.Run("Normalize", func(t *testing.T) {
		id, ok := users.Normalize(string(alice))
		assert.True(t, ok)
		assert.Equal(t, alice, id)
		_, ok = users.Normalize("users|nope")
		assert.False(t, ok)
	})
	t.Run("GetMany", func(t *testing.T) {
		es, err := users.GetMany(ctx, []store.ID{missing, alice})
		require.NoError(t, err)
		require.Len(t, es, 2)
		assert.Nil(t, es[0])
		assert.Equal(t, alice, es[1].ID())
		_, err = users.GetManyOrFail(ctx, []store.ID{alice, missing})
		require.ErrorIs(t, err, ents.ErrNotFound)
		_, err = users.GetMany(ctx, []store.ID{store.NewID("tags")})
		require.ErrorIs(t, err, ents.ErrInvalidID)
	})
	t.Run("GetBy", func(t *testing.T) {
		require.NoError(t, users.Get(alice).Patch(ctx, store.Document{"email": "a@x.io"}))
		u, err := users.GetBy(ctx, "email", "a@x.io")
		require.NoError(t, err)
		assert.Equal(t, alice, u.ID())
		u, err = users.GetBy(ctx, "email", "b@x.io")
		require.NoError(t, err)
		assert.Nil(t, u)
		_, err = users.GetBy(ctx, "by_nothing", "x")
		require.ErrorIs(t, err, store.ErrUnknownIndex)
	})
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newClient(t)
	id := insert(t, c, "users", store.Document{"name": "alice"})

	raw, err := c.Table("users").Get(id).Doc(ctx)
	require.NoError(t, err)
	assert.NotContains(t, raw, "karma")

	u, err := c.Table("users").GetOrFail(id).Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.Get("karma"))
	assert.Equal(t, map[string]any{"theme": "dark"}, u.Get("settings"))

	// Defaults are private to each entity.
	u.Doc()["settings"].(map[string]any)["theme"] = "light"
	u.Get("settings").(map[string]any)["theme"] = "light"
	again, err := c.Table("users").GetOrFail(id).Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"theme": "dark"}, again.Get("settings"))

	// Stored values win over defaults.
	require.NoError(t, u.Patch(ctx, store.Document{"karma": 7}))
	again, err = c.Table("users").GetOrFail(id).Resolve(ctx)
	require.NoError(t, err)
	karma, ok := ents.Value[int64](again, "karma")
	assert.True(t, ok)
	assert.Equal(t, int64(7), karma)
}

func TestQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newClient(t)
	users := c.Table("users")
	for i, name := range []string{"alice", "bob", "carol", "dave"} {
		insert(t, c, "users", store.Document{"name": name, "karma": i})
	}

	t.Run("All", func(t *testing.T) {
		all, err := users.Query().All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, names(t, all))
		n, err := users.Query().Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})
	t.Run("OrderFilterTake", func(t *testing.T) {
		all, err := users.Query().
			Order(store.Desc).
			Filter(store.FieldGTE("karma", 1)).
			Take(2).
			All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"dave", "carol"}, names(t, all))
	})
	t.Run("OrderAfterFilter", func(t *testing.T) {
		_, err := users.Query().Filter(store.FieldGTE("karma", 1)).Order(store.Desc).All(ctx)
		require.ErrorIs(t, err, ents.ErrInvalidChain)
		require.True(t, ents.IsQueryError(err))
		_, err = users.Query().Filter(store.FieldGTE("karma", 1)).WithIndex("email").First().Resolve(ctx)
		require.ErrorIs(t, err, ents.ErrInvalidChain)
		_, err = users.Query().Order(store.Asc, "email", "karma").All(ctx)
		require.ErrorIs(t, err, ents.ErrInvalidChain)
	})
	t.Run("FirstUnique", func(t *testing.T) {
		first, err := users.Query().Filter(store.FieldGT("karma", 1)).First().Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "carol", first.Get("name"))

		none, err := users.Query().Filter(store.FieldGT("karma", 10)).First().Resolve(ctx)
		require.NoError(t, err)
		assert.Nil(t, none)
		_, err = users.Query().Filter(store.FieldGT("karma", 10)).FirstOrFail().Resolve(ctx)
		require.ErrorIs(t, err, ents.ErrNotFound)

		_, err = users.Query().Filter(store.FieldGT("karma", 1)).Unique().Resolve(ctx)
		require.ErrorIs(t, err, ents.ErrNotSingular)
		one, err := users.Query().Filter(store.FieldEQ("name", "bob")).UniqueOrFail().Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "bob", one.Get("name"))
		none, err = users.Query().Filter(store.FieldEQ("name", "zed")).Unique().Resolve(ctx)
		require.NoError(t, err)
		assert.Nil(t, none)
		_, err = users.Query().Filter(store.FieldEQ("name", "zed")).UniqueOrFail().Resolve(ctx)
		require.ErrorIs(t, err, ents.ErrNotFound)
	})
	t.Run("Materialized", func(t *testing.T) {
		taken := users.Query().Take(3)
		first, err := taken.First().Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "alice", first.Get("name"))
		_, err = taken.Unique().Resolve(ctx)
		var nse *ents.NotSingularError
		require.ErrorAs(t, err, &nse)
		assert.Equal(t, 3, nse.Count)
		one, err := users.Query().Take(1).UniqueOrFail().Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "alice", one.Get("name"))
		empty, err := users.Query().Take(0).All(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)
		assert.NotNil(t, empty)
		_, err = users.Query().Take(0).FirstOrFail().Resolve(ctx)
		require.ErrorIs(t, err, ents.ErrNotFound)
	})
	t.Run("Paginate", func(t *testing.T) {
		q := users.Query().Order(store.Desc)
		page, err := q.Paginate(ctx, store.PaginationOptions{NumItems: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"dave", "carol", "bob"}, names(t, page.Entities))
		assert.False(t, page.IsDone)
		page, err = q.Paginate(ctx, store.PaginationOptions{NumItems: 3, Cursor: page.ContinueCursor})
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, names(t, page.Entities))
		assert.True(t, page.IsDone)
		_, err = q.Paginate(ctx, store.PaginationOptions{NumItems: 3, Cursor: "x"})
		require.ErrorIs(t, err, store.ErrInvalidCursor)
	})
	t.Run("Exist", func(t *testing.T) {
		ok, err := users.Query().Filter(store.FieldEQ("name", "bob")).Exist(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = users.Query().Filter(store.FieldEQ("name", "zed")).Exist(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSearchAndIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newClient(t)
	alice := insert(t, c, "users", store.Document{"name": "alice"})
	for _, m := range []store.Document{
		{"text": "hello world", "channel": "general"},
		{"text": "hello there", "channel": "random"},
		{"text": "hello hello world", "channel": "general"},
		{"text": "bye", "channel": "general"},
	} {
		m["user"] = alice
		insert(t, c, "messages", m)
	}
	messages := c.Table("messages")

	general, err := messages.Query().
		WithIndex("channel", func(r *store.IndexRange) { r.Eq("channel", "general") }).
		Order(store.Desc).
		All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bye", "hello hello world", "hello world"}, names(t, general))

	hits, err := messages.Query().
		Search("search_text", func(f *store.SearchFilter) { f.Search("text", "hello world").Eq("channel", "general") }).
		All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello world", "hello hello world"}, names(t, hits))

	_, err = messages.Query().Search("search_text", func(f *store.SearchFilter) { f.Search("text", "x") }).Order(store.Desc).All(ctx)
	require.ErrorIs(t, err, ents.ErrInvalidChain)

	// Searches over an edge stay within the edge.
	bob := insert(t, c, "users", store.Document{"name": "bob"})
	insert(t, c, "messages", store.Document{"text": "hello world", "channel": "general", "user": bob})
	hits, err = c.Table("users").Get(bob).Many("messages").
		Search("search_text", func(f *store.SearchFilter) { f.Search("text", "hello") }).
		All(ctx)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, string(bob), hits[0].Get("userId"))
}

func TestLazyChains(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, cs := newCountingClient(t)
	alice := insert(t, c, "users", store.Document{"name": "alice"})
	insert(t, c, "messages", store.Document{"text": "hi", "channel": "general", "user": alice})
	base := cs.calls()

	users := c.Table("users")
	chain := users.Query().Order(store.Desc).Filter(store.FieldEQ("name", "alice")).First().Many("messages").Take(1)
	single := users.Get(alice).One("profile")
	assert.Equal(t, base, cs.calls(), "building chains reads nothing")

	msgs, err := chain.All(ctx)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Greater(t, cs.calls(), base)

	// Resolving the same chain again gives the same result.
	again, err := chain.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, msgs[0].ID(), again[0].ID())

	p, err := single.Resolve(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNullPropagation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, cs := newCountingClient(t)
	insert(t, c, "users", store.Document{"name": "alice"})
	users := c.Table("users")
	empty := users.Query().Filter(store.FieldEQ("name", "nobody")).First()

	before := cs.queries.Load()
	msgs, err := empty.Many("messages").Order(store.Desc).Take(3).All(ctx)
	require.NoError(t, err)
	assert.Nil(t, msgs)
	page, err := empty.Many("friends").Paginate(ctx, store.PaginationOptions{NumItems: 1})
	require.NoError(t, err)
	assert.Nil(t, page)
	p, err := empty.One("profile").OneOrFail("user").Resolve(ctx)
	require.ErrorIs(t, err, ents.ErrNotFound)
	assert.Nil(t, p)
	p, err = empty.One("profile").One("user").Resolve(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)
	ok, err := empty.Many("friends").Has(ctx, store.NewID("users"))
	require.NoError(t, err)
	assert.False(t, ok)
	// Each resolution scans users once and never reaches the edge tables.
	assert.Equal(t, before+5, cs.queries.Load())

	_, err = users.Query().Filter(store.FieldEQ("name", "nobody")).FirstOrFail().Many("messages").All(ctx)
	require.ErrorIs(t, err, ents.ErrNotFound)

	mapped, err := ents.Map(ctx, empty.Many("messages"), func(context.Context, *ents.Entity) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Nil(t, mapped)

	// Get does not load the source, so the foreign table is scanned by id.
	gets, queries := cs.gets.Load(), cs.queries.Load()
	msgs, err = users.Get(store.NewID("users")).Many("messages").All(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, gets, cs.gets.Load())
	assert.Equal(t, queries+1, cs.queries.Load())
}

func TestMap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newClient(t, ents.WithConcurrency(2))
	want := []string{"a", "b", "c", "d", "e", "f"}
	for _, n := range want {
		insert(t, c, "users", store.Document{"name": n})
	}
	var running, peak atomic.Int64
	got, err := ents.Map(ctx, c.Table("users").Query(), func(_ context.Context, e *ents.Entity) (string, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		name, _ := ents.Value[string](e, "name")
		return name, nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.LessOrEqual(t, peak.Load(), int64(2))

	_, err = ents.Map(ctx, c.Table("users").Query().Take(2), func(context.Context, *ents.Entity) (int, error) {
		return 0, assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
}

func TestEntityEdges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newClient(t)
	users := c.Table("users")
	profile := insert(t, c, "profiles", store.Document{"bio": "hi"})
	alice := insert(t, c, "users", store.Document{"name": "alice", "profile": profile})
	bob := insert(t, c, "users", store.Document{"name": "bob"})
	m1 := insert(t, c, "messages", store.Document{"text": "one", "channel": "general", "user": alice})
	m2 := insert(t, c, "messages", store.Document{"text": "two", "channel": "general", "user": alice})
	insert(t, c, "messages", store.Document{"text": "three", "channel": "general", "user": bob})

	u, err := users.GetOrFail(alice).Resolve(ctx)
	require.NoError(t, err)

	t.Run("OwningField", func(t *testing.T) {
		p, err := u.OneOrFail("profile").Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, profile, p.ID())
		b, err := users.GetOrFail(bob).Resolve(ctx)
		require.NoError(t, err)
		p, err = b.One("profile").Resolve(ctx)
		require.NoError(t, err)
		assert.Nil(t, p)
		_, err = b.OneOrFail("profile").Resolve(ctx)
		require.ErrorIs(t, err, ents.ErrNotFound)

		author, err := c.Table("messages").Get(m1).One("user").Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, alice, author.ID())
	})
	t.Run("Ref", func(t *testing.T) {
		owner, err := c.Table("profiles").Get(profile).OneOrFail("user").Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, alice, owner.ID())
		orphan := insert(t, c, "profiles", store.Document{"bio": "alone"})
		owner, err = c.Table("profiles").Get(orphan).One("user").Resolve(ctx)
		require.NoError(t, err)
		assert.Nil(t, owner)
	})
	t.Run("Foreign", func(t *testing.T) {
		msgs, err := u.Many("messages").Order(store.Desc).All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"two", "one"}, names(t, msgs))
		msgs, err = u.Many("messages").
			WithIndex("channel", func(r *store.IndexRange) { r.Eq("channel", "general") }).
			All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"one", "two"}, names(t, msgs))
		ok, err := u.Many("messages").Has(ctx, m2)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = users.Get(bob).Many("messages").Has(ctx, m2)
		require.NoError(t, err)
		assert.False(t, ok)
	})
	t.Run("Cardinality", func(t *testing.T) {
		_, err := u.One("messages").Resolve(ctx)
		require.ErrorIs(t, err, ents.ErrInvalidChain)
		_, err = u.Many("profile").All(ctx)
		require.ErrorIs(t, err, ents.ErrInvalidChain)
		_, err = u.Many("enemies").All(ctx)
		require.ErrorIs(t, err, ents.ErrUnknownEdge)
	})
}

func TestJoinEdges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newClient(t)
	users := c.Table("users")
	alice := insert(t, c, "users", store.Document{"name": "alice"})
	bob := insert(t, c, "users", store.Document{"name": "bob"})
	carol := insert(t, c, "users", store.Document{"name": "carol", "friends": []store.ID{alice}})

	t.Run("Symmetric", func(t *testing.T) {
		require.NoError(t, users.Get(alice).Patch(ctx, store.Document{"friends": ents.EdgeChange{Add: []store.ID{bob}}}))
		friends, err := users.Get(bob).Many("friends").All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, names(t, friends))
		// Join row order: carol connected first, then bob.
		friends, err = users.Get(alice).Many("friends").All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"carol", "bob"}, names(t, friends))
		friends, err = users.Get(alice).Many("friends").Order(store.Desc).All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"bob", "carol"}, names(t, friends))
		for _, pair := range [][2]store.ID{{alice, bob}, {bob, alice}, {carol, alice}, {alice, carol}} {
			ok, err := users.Get(pair[0]).Many("friends").Has(ctx, pair[1])
			require.NoError(t, err)
			assert.True(t, ok)
		}
		ok, err := users.Get(bob).Many("friends").Has(ctx, carol)
		require.NoError(t, err)
		assert.False(t, ok)

		// Adding an existing friendship from the other side adds no row.
		require.NoError(t, users.Get(bob).Patch(ctx, store.Document{"friends": ents.EdgeChange{Add: []store.ID{alice}}}))
		n, err := users.Get(alice).Many("friends").Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
	t.Run("Asymmetric", func(t *testing.T) {
		require.NoError(t, users.Get(alice).Patch(ctx, store.Document{"followees": []store.ID{bob, carol}}))
		followers, err := users.Get(bob).Many("followers").All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, names(t, followers))
		followees, err := users.Get(bob).Many("followees").All(ctx)
		require.NoError(t, err)
		assert.Empty(t, followees)

		// Setting the targets replaces them.
		require.NoError(t, users.Get(alice).Patch(ctx, store.Document{"followees": []store.ID{carol}}))
		followees, err = users.Get(alice).Many("followees").All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"carol"}, names(t, followees))
	})
	t.Run("Paired", func(t *testing.T) {
		g := insert(t, c, "groups", store.Document{"name": "admins", "members": []store.ID{alice, bob}})
		groups, err := users.Get(bob).Many("groups").All(ctx)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, g, groups[0].ID())
		members, err := c.Table("groups").Get(g).Many("members").Filter(store.FieldEQ("name", "bob")).All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, names(t, members))
	})
	t.Run("OneSided", func(t *testing.T) {
		m := insert(t, c, "messages", store.Document{"text": "hi", "channel": "general", "user": alice})
		tag := insert(t, c, "tags", store.Document{"label": "news", "messages": []store.ID{m}})
		msgs, err := c.Table("tags").Get(tag).Many("messages").All(ctx)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, m, msgs[0].ID())
		_, err = c.Table("messages").Get(m).Many("tags").All(ctx)
		require.ErrorIs(t, err, ents.ErrUnknownEdge)
	})
	t.Run("MissingTarget", func(t *testing.T) {
		err := users.Get(alice).Patch(ctx, store.Document{"friends": ents.EdgeChange{Add: []store.ID{store.NewID("users")}}})
		require.ErrorIs(t, err, ents.ErrNotFound)
		require.True(t, ents.IsMutationError(err))
	})
}

func TestDanglingReferences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, ms := newClient(t)
	users := c.Table("users")
	alice := insert(t, c, "users", store.Document{"name": "alice"})
	bob := insert(t, c, "users", store.Document{"name": "bob"})
	require.NoError(t, users.Get(alice).Patch(ctx, store.Document{"friends": []store.ID{bob}}))
	m := insert(t, c, "messages", store.Document{"text": "hi", "channel": "general", "user": bob})

	rows, err := ms.Query("users_friends").Collect(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// Delete bob behind the entity layer's back.
	require.NoError(t, ms.Delete(ctx, bob))

	_, err = users.Get(alice).Many("friends").All(ctx)
	var de *ents.DanglingReferenceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, rows[0].ID(), de.Row)
	assert.Equal(t, "users", de.Table)
	assert.Equal(t, bob, de.ID)
	assert.Equal(t, "users.friends", de.Edge)

	author := c.Table("messages").Get(m).One("user")
	id, err := author.ID(ctx)
	require.NoError(t, err)
	assert.Equal(t, bob, id)
	_, err = author.Resolve(ctx)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, m, de.Row)
	assert.Equal(t, "userId", de.Field)
	assert.True(t, ents.IsDanglingReference(err))
}

func TestInsertValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newClient(t)
	alice := insert(t, c, "users", store.Document{"name": "alice"})

	tests := []struct {
		name  string
		table string
		doc   store.Document
		check func(error) bool
	}{
		{"UnknownField", "users", store.Document{"name": "a", "nick": "x"}, ents.IsValidationError},
		{"WrongType", "users", store.Document{"name": 1}, ents.IsValidationError},
		{"MissingRequired", "users", store.Document{"karma": 1}, ents.IsValidationError},
		{"RequiredNil", "users", store.Document{"name": nil}, ents.IsValidationError},
		{"MissingEdgeField", "messages", store.Document{"text": "x", "channel": "c"}, ents.IsValidationError},
		{"WrongTable", "messages", store.Document{"text": "x", "channel": "c", "user": store.NewID("tags")}, ents.IsValidationError},
		{"WrongEdgeValue", "users", store.Document{"name": "a", "friends": "x"}, ents.IsValidationError},
		{"ChangeOnWrongTable", "users", store.Document{"name": "a", "friends": []store.ID{store.NewID("tags")}}, ents.IsValidationError},
		{"RefEdge", "profiles", store.Document{"bio": "x", "user": alice}, ents.IsValidationError},
		{"SystemField", "users", store.Document{"name": "a", store.IDField: "users|x"}, ents.IsMutationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Table(tt.table).Insert(ctx, tt.doc)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}

	ids, err := c.Table("users").InsertMany(ctx, []store.Document{{"name": "b"}, {"name": "c"}, {"nick": "d"}})
	require.Error(t, err)
	assert.Len(t, ids, 2)
}

func TestOneToOneUniqueness(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newClient(t)
	profile := insert(t, c, "profiles", store.Document{"bio": "hi"})
	alice := insert(t, c, "users", store.Document{"name": "alice", "profile": profile, "email": "a@x.io"})

	_, err := c.Table("users").Insert(ctx, store.Document{"name": "bob", "profile": profile})
	require.True(t, ents.IsConstraintError(err))
	_, err = c.Table("users").Insert(ctx, store.Document{"name": "bob", "email": "a@x.io"})
	require.True(t, ents.IsConstraintError(err))

	// Writing the same value to the holder is allowed.
	require.NoError(t, c.Table("users").Get(alice).Patch(ctx, store.Document{"profile": profile}))
}

func TestPatchReplace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newClient(t)
	users := c.Table("users")
	profile := insert(t, c, "profiles", store.Document{"bio": "hi"})
	alice := insert(t, c, "users", store.Document{"name": "alice", "profile": profile, "email": "a@x.io"})
	bob := insert(t, c, "users", store.Document{"name": "bob"})

	require.NoError(t, users.Get(alice).Patch(ctx, store.Document{"email": store.Unset, "karma": 3}))
	u, err := users.GetOrFail(alice).Resolve(ctx)
	require.NoError(t, err)
	assert.Nil(t, u.Get("email"))
	assert.Equal(t, int64(3), u.Get("karma"))

	err = users.Get(alice).Patch(ctx, store.Document{"name": store.Unset})
	require.True(t, ents.IsValidationError(err))
	err = users.Get(alice).Patch(ctx, store.Document{store.IDField: string(bob)})
	require.ErrorIs(t, err, store.ErrSystemField)
	err = users.Get(store.NewID("users")).Patch(ctx, store.Document{"karma": 1})
	require.ErrorIs(t, err, ents.ErrNotFound)

	require.NoError(t, u.Replace(ctx, store.Document{"name": "alicia", "friends": []store.ID{bob}}))
	u, err = users.GetOrFail(alice).Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alicia", u.Get("name"))
	assert.Nil(t, u.Get("profileId"))
	assert.Equal(t, int64(0), u.Get("karma"))
	friends, err := u.Many("friends").All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, names(t, friends))

	err = u.Replace(ctx, store.Document{"karma": 1})
	require.True(t, ents.IsValidationError(err))
	err = u.Replace(ctx, store.Document{"name": "x", "friends": ents.EdgeChange{Add: []store.ID{bob}}})
	require.True(t, ents.IsValidationError(err))
}

func TestForeignEdgeWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newClient(t)
	users := c.Table("users")
	alice := insert(t, c, "users", store.Document{"name": "alice"})
	bob := insert(t, c, "users", store.Document{"name": "bob"})
	m := insert(t, c, "messages", store.Document{"text": "hi", "channel": "general", "user": alice})

	require.NoError(t, users.Get(bob).Patch(ctx, store.Document{"messages": ents.EdgeChange{Add: []store.ID{m}}}))
	author, err := c.Table("messages").Get(m).OneOrFail("user").Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, bob, author.ID())

	err = users.Get(bob).Patch(ctx, store.Document{"messages": ents.EdgeChange{Remove: []store.ID{m}}})
	require.True(t, ents.IsValidationError(err))
	err = users.Get(bob).Patch(ctx, store.Document{"messages": []store.ID{}})
	require.True(t, ents.IsValidationError(err))
}

func TestMissingTargetsWriteNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("Insert", func(t *testing.T) {
		t.Parallel()
		c, _ := newClient(t)
		users := c.Table("users")
		id, err := users.Insert(ctx, store.Document{"name": "ghost", "friends": []store.ID{store.NewID("users")}})
		require.ErrorIs(t, err, ents.ErrNotFound)
		assert.True(t, ents.IsMutationError(err))
		assert.Empty(t, id)
		n, err := users.Query().Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
	t.Run("InsertForeign", func(t *testing.T) {
		t.Parallel()
		c, _ := newClient(t)
		id, err := c.Table("users").Insert(ctx, store.Document{"name": "ghost", "messages": []store.ID{store.NewID("messages")}})
		require.ErrorIs(t, err, ents.ErrNotFound)
		assert.Empty(t, id)
		n, err := c.Table("users").Query().Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
	t.Run("Patch", func(t *testing.T) {
		t.Parallel()
		c, _ := newClient(t)
		users := c.Table("users")
		alice := insert(t, c, "users", store.Document{"name": "alice"})
		err := users.Get(alice).Patch(ctx, store.Document{
			"name":    "renamed",
			"friends": ents.EdgeChange{Add: []store.ID{store.NewID("users")}},
		})
		require.ErrorIs(t, err, ents.ErrNotFound)
		u, err := users.GetOrFail(alice).Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "alice", u.Get("name"))
	})
	t.Run("ReplaceDroppingRequiredKey", func(t *testing.T) {
		t.Parallel()
		c, _ := newClient(t)
		users := c.Table("users")
		alice := insert(t, c, "users", store.Document{"name": "alice"})
		insert(t, c, "messages", store.Document{"text": "hi", "channel": "general", "user": alice})
		err := users.Get(alice).Replace(ctx, store.Document{"name": "renamed", "messages": []store.ID{}})
		require.True(t, ents.IsValidationError(err))
		u, err := users.GetOrFail(alice).Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "alice", u.Get("name"))
	})
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	c, ms := newClient(t, ents.WithClock(func() time.Time { return now }))
	users := c.Table("users")
	profile := insert(t, c, "profiles", store.Document{"bio": "hi"})
	alice := insert(t, c, "users", store.Document{"name": "alice", "profile": profile})
	bob := insert(t, c, "users", store.Document{"name": "bob", "friends": []store.ID{alice}, "followees": []store.ID{alice}})
	m := insert(t, c, "messages", store.Document{"text": "hi", "channel": "general", "user": alice})
	tag := insert(t, c, "tags", store.Document{"label": "news", "messages": []store.ID{m}})
	group := insert(t, c, "groups", store.Document{"name": "admins", "members": []store.ID{alice, bob}})

	t.Run("OptionalKeyIsUnset", func(t *testing.T) {
		require.NoError(t, c.Table("profiles").Get(profile).Delete(ctx))
		u, err := users.GetOrFail(alice).Resolve(ctx)
		require.NoError(t, err)
		assert.Nil(t, u.Get("profileId"))
	})
	t.Run("Cascade", func(t *testing.T) {
		require.NoError(t, users.Get(alice).Delete(ctx))
		gone, err := ms.Get(ctx, m)
		require.NoError(t, err)
		assert.Nil(t, gone, "messages require their user")

		for _, e := range []string{"friends", "followees", "groups"} {
			all, err := users.Get(bob).Many(e).All(ctx)
			require.NoError(t, err, e)
			if e == "groups" {
				assert.Len(t, all, 1)
				continue
			}
			assert.Empty(t, all, e)
		}
		msgs, err := c.Table("tags").Get(tag).Many("messages").All(ctx)
		require.NoError(t, err)
		assert.Empty(t, msgs)
		members, err := c.Table("groups").Get(group).Many("members").All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, names(t, members))

		err = users.Get(alice).Delete(ctx)
		require.ErrorIs(t, err, ents.ErrNotFound)
	})
	t.Run("Soft", func(t *testing.T) {
		require.NoError(t, c.Table("groups").Get(group).Delete(ctx))
		g, err := c.Table("groups").GetOrFail(group).Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, float64(now.UnixMilli()), g.Get(schema.DeletionTimeField))
		live, err := c.Table("groups").Query().Filter(store.FieldIsNull(schema.DeletionTimeField)).All(ctx)
		require.NoError(t, err)
		assert.Empty(t, live)
	})
}
