package ents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/syssam/ents/graph"
	"github.com/syssam/ents/store"
)

// DefaultConcurrency bounds the store calls a single traversal or Map
// issues at once.
const DefaultConcurrency = 16

type (
	// Config holds the client configuration. It can be loaded from YAML with
	// LoadConfig; the Logger is only settable in code.
	Config struct {
		// Concurrency bounds the store calls issued at once when expanding
		// join edges, loading batches and mapping over results.
		Concurrency int `yaml:"concurrency"`
		// CacheTTL is the time to live of cached documents when the store is
		// wrapped with store/cachestore.
		CacheTTL time.Duration `yaml:"cache_ttl"`
		// SlowQueryThreshold is the duration above which store/sqlstore
		// queries are logged.
		SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
		// Logger receives debug records of store access and warnings for
		// dangling references.
		Logger *slog.Logger `yaml:"-"`
		// Clock returns the current time. Soft deletion stamps documents
		// with it.
		Clock func() time.Time `yaml:"-"`
	}

	// Option configures a Client.
	Option func(*Config) error
)

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) error {
		if l == nil {
			return errors.New("ents: logger cannot be nil")
		}
		c.Logger = l
		return nil
	}
}

// WithClock sets the clock used to stamp soft deleted documents.
func WithClock(now func() time.Time) Option {
	return func(c *Config) error {
		if now == nil {
			return errors.New("ents: clock cannot be nil")
		}
		c.Clock = now
		return nil
	}
}

// WithConcurrency bounds the concurrent store calls of one operation.
func WithConcurrency(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("ents: concurrency must be positive, got %d", n)
		}
		c.Concurrency = n
		return nil
	}
}

// WithConfig applies the non-zero settings of cfg.
func WithConfig(cfg Config) Option {
	return func(c *Config) error {
		if cfg.Concurrency < 0 {
			return fmt.Errorf("ents: concurrency must be positive, got %d", cfg.Concurrency)
		}
		if cfg.Concurrency > 0 {
			c.Concurrency = cfg.Concurrency
		}
		if cfg.CacheTTL > 0 {
			c.CacheTTL = cfg.CacheTTL
		}
		if cfg.SlowQueryThreshold > 0 {
			c.SlowQueryThreshold = cfg.SlowQueryThreshold
		}
		if cfg.Logger != nil {
			c.Logger = cfg.Logger
		}
		if cfg.Clock != nil {
			c.Clock = cfg.Clock
		}
		return nil
	}
}

// LoadConfig reads a YAML configuration file:
//
//	concurrency: 32
//	cache_ttl: 5m
//	slow_query_threshold: 200ms
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("ents: reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("ents: parsing config %s: %w", path, err)
	}
	if cfg.Concurrency < 0 {
		return cfg, fmt.Errorf("ents: config %s: concurrency must be positive, got %d", path, cfg.Concurrency)
	}
	return cfg, nil
}

// Client gives access to the tables of a compiled graph stored in a
// document store.
//
//	client, err := ents.NewClient(g, memstore)
//	user, err := client.Table("users").GetOrFail(id).Resolve(ctx)
//	friends, err := user.Many("friends").All(ctx)
type Client struct {
	graph  *graph.Graph
	store  store.Store
	config Config
}

// NewClient returns a client over the given graph and store.
func NewClient(g *graph.Graph, s store.Store, opts ...Option) (*Client, error) {
	if g == nil {
		return nil, errors.New("ents: graph cannot be nil")
	}
	if s == nil {
		return nil, errors.New("ents: store cannot be nil")
	}
	c := Config{Concurrency: DefaultConcurrency, Logger: slog.Default(), Clock: time.Now}
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return nil, err
		}
	}
	return &Client{graph: g, store: s, config: c}, nil
}

// Graph returns the compiled graph of the client.
func (c *Client) Graph() *graph.Graph { return c.graph }

// Store returns the underlying document store.
func (c *Client) Store() store.Store { return c.store }

// Config returns the effective client configuration.
func (c *Client) Config() Config { return c.config }

// Table returns the accessor of the named table. Unknown tables are
// reported by the first operation on the accessor.
func (c *Client) Table(name string) *Table {
	t := &Table{client: c, name: name}
	if gt, ok := c.graph.Table(name); ok {
		t.table = gt
	} else {
		t.err = fmt.Errorf("%w %q", ErrUnknownTable, name)
	}
	return t
}

// get loads one document. Missing documents are nil.
func (c *Client) get(ctx context.Context, id store.ID) (store.Document, error) {
	c.config.Logger.DebugContext(ctx, "ents: get", "id", id)
	return c.store.Get(ctx, id)
}

// getMany loads documents by id, in order, with nil entries for missing
// documents. Stores implementing store.BatchGetter are called once; other
// stores get one call per id, bounded by the client concurrency.
func (c *Client) getMany(ctx context.Context, ids []store.ID) ([]store.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if bg, ok := c.store.(store.BatchGetter); ok {
		c.config.Logger.DebugContext(ctx, "ents: get many", "count", len(ids))
		return bg.GetMany(ctx, ids)
	}
	docs := make([]store.Document, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			doc, err := c.get(ctx, id)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Table gives access to the documents of one table.
type Table struct {
	client *Client
	name   string
	table  *graph.Table
	err    error
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Schema returns the compiled table, or nil for unknown tables.
func (t *Table) Schema() *graph.Table { return t.table }

// Normalize validates raw as an id of the table.
func (t *Table) Normalize(raw string) (store.ID, bool) {
	if t.err != nil {
		return "", false
	}
	return t.client.store.NormalizeID(t.name, raw)
}

// checkID reports an error for ids of another table.
func (t *Table) checkID(id store.ID) error {
	if t.err != nil {
		return t.err
	}
	if id.Table() != t.name {
		return &InvalidIDError{Table: t.name, ID: string(id)}
	}
	return nil
}

// Get returns the document with the given id, resolving to nil when it
// does not exist.
func (t *Table) Get(id store.ID) *Single {
	if err := t.checkID(id); err != nil {
		return &Single{table: t, err: err}
	}
	return &Single{
		table: t,
		label: t.name,
		resolve: func(context.Context) (*Retrieval, error) {
			return NewRetrieval(id, func(ctx context.Context) (store.Document, error) {
				return t.client.get(ctx, id)
			}), nil
		},
	}
}

// GetOrFail is like Get but resolves to a NotFoundError when the document
// does not exist.
func (t *Table) GetOrFail(id store.ID) *Single {
	return t.Get(id).OrFail()
}

// GetBy returns the document whose indexed field equals v, through the
// named single-field index. More than one match is a NotSingularError.
func (t *Table) GetBy(ctx context.Context, index string, v any) (*Entity, error) {
	if t.err != nil {
		return nil, t.err
	}
	fields, ok := t.client.graph.IndexFields(t.name, index)
	if !ok || len(fields) != 1 {
		return nil, NewQueryError(t.name, "get", fmt.Errorf("%w: %s is not a single-field index", store.ErrUnknownIndex, index))
	}
	return t.Query().
		WithIndex(index, func(r *store.IndexRange) { r.Eq(fields[0], v) }).
		Unique().
		Resolve(ctx)
}

// GetMany returns the documents with the given ids, in order. Missing
// documents are nil entries.
func (t *Table) GetMany(ctx context.Context, ids []store.ID) ([]*Entity, error) {
	for _, id := range ids {
		if err := t.checkID(id); err != nil {
			return nil, err
		}
	}
	docs, err := t.client.getMany(ctx, ids)
	if err != nil {
		return nil, NewQueryError(t.name, "get many", err)
	}
	out := make([]*Entity, len(docs))
	for i, doc := range docs {
		if doc != nil {
			out[i] = t.entity(doc)
		}
	}
	return out, nil
}

// GetManyOrFail is like GetMany but fails with a NotFoundError naming the
// first missing id.
func (t *Table) GetManyOrFail(ctx context.Context, ids []store.ID) ([]*Entity, error) {
	out, err := t.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i, e := range out {
		if e == nil {
			return nil, NewNotFoundError(t.name, ids[i])
		}
	}
	return out, nil
}

// Query returns a chain over all documents of the table in creation order.
func (t *Table) Query() *Query {
	if t.err != nil {
		return &Query{table: t, err: t.err}
	}
	return &Query{
		table: t,
		base: func(_ context.Context, index string, rng []func(*store.IndexRange)) (store.Scan, error) {
			s := t.client.store.Query(t.name)
			if index != "" {
				s = s.WithIndex(index, rng...)
			}
			return s, nil
		},
	}
}

// entity wraps a loaded document of the table.
func (t *Table) entity(doc store.Document) *Entity {
	return newEntity(t, doc)
}

// sibling returns the accessor of another table of the same client.
func (t *Table) sibling(name string) *Table {
	return t.client.Table(name)
}
