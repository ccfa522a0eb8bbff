package ents

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/ents/store"
)

// Query is a lazy chain over the documents of one table, or over the
// targets of a multiple edge. Every method returns a new chain; the store
// is read only by the terminal methods All, Docs, Count and Paginate, or
// when a Single or Materialized derived from the chain is resolved.
//
//	msgs, err := client.Table("messages").Query().
//	    WithIndex("channel", func(r *store.IndexRange) { r.Eq("channel", "general") }).
//	    Order(store.Desc).
//	    Filter(store.FieldContains("text", "hello")).
//	    Take(10).
//	    All(ctx)
//
// Index selection and ordering must precede filters. A chain that breaks
// this rule fails with ErrInvalidChain when resolved.
type Query struct {
	table *Table
	// label names the chain in errors: the table, or the traversed edge.
	label string
	// base returns the scan the chain starts from, or nil when the chain is
	// rooted at a missing document. A non-empty index replaces the default
	// index of the scan.
	base     func(ctx context.Context, index string, rng []func(*store.IndexRange)) (store.Scan, error)
	index    string
	rng      []func(*store.IndexRange)
	search   *searchSpec
	ops      []func(store.Scan) store.Scan
	ordered  bool
	filtered bool
	err      error
}

type searchSpec struct {
	index  string
	filter func(*store.SearchFilter)
}

func (q *Query) clone() *Query {
	c := *q
	c.ops = slices.Clone(q.ops)
	c.rng = slices.Clone(q.rng)
	return &c
}

func (q *Query) name() string {
	if q.label != "" {
		return q.label
	}
	return q.table.name
}

// chainErr returns a copy of the chain that fails with an ErrInvalidChain
// error when resolved. The first chain error wins.
func (q *Query) chainErr(op, format string, args ...any) *Query {
	c := q.clone()
	if c.err == nil {
		c.err = NewQueryError(q.name(), op, fmt.Errorf("%w: "+format, append([]any{ErrInvalidChain}, args...)...))
	}
	return c
}

// Filter narrows the chain to the documents matching p.
func (q *Query) Filter(p store.Predicate) *Query {
	c := q.clone()
	c.ops = append(c.ops, func(s store.Scan) store.Scan { return s.Filter(p) })
	c.filtered = true
	return c
}

// WithIndex reads the documents through the named index, restricted to the
// given range. It must precede Filter and Order.
func (q *Query) WithIndex(name string, rng ...func(*store.IndexRange)) *Query {
	switch {
	case q.filtered:
		return q.chainErr("index", "index %s must be selected before filtering", name)
	case q.ordered:
		return q.chainErr("index", "index %s must be selected before ordering", name)
	case q.search != nil:
		return q.chainErr("index", "index %s cannot be combined with a search", name)
	}
	c := q.clone()
	c.index, c.rng = name, rng
	return c
}

// Order sets the direction of the chain. An optional index name selects the
// index to order by, as WithIndex without a range. Order must precede Filter.
func (q *Query) Order(o store.Order, index ...string) *Query {
	switch {
	case q.filtered:
		return q.chainErr("order", "order must precede filters")
	case q.search != nil:
		return q.chainErr("order", "search results are ordered by relevance")
	case len(index) > 1:
		return q.chainErr("order", "order takes at most one index, got %d", len(index))
	}
	c := q
	if len(index) == 1 {
		c = q.WithIndex(index[0])
	}
	c = c.clone()
	c.ops = append(c.ops, func(s store.Scan) store.Scan { return s.Order(o) })
	c.ordered = true
	return c
}

// Search reads the documents through the named search index. Results are
// ordered by relevance. It must precede Filter and cannot be ordered.
func (q *Query) Search(index string, filter func(*store.SearchFilter)) *Query {
	switch {
	case q.filtered:
		return q.chainErr("search", "search %s must precede filters", index)
	case q.ordered || q.index != "":
		return q.chainErr("search", "search %s cannot be combined with an index or order", index)
	}
	c := q.clone()
	c.search = &searchSpec{index: index, filter: filter}
	return c
}

// scan builds the store scan of the chain. It returns nil for chains rooted
// at a missing document.
func (q *Query) scan(ctx context.Context) (store.Scan, error) {
	if q.err != nil {
		return nil, q.err
	}
	s, err := q.base(ctx, q.index, q.rng)
	if err != nil || s == nil {
		return nil, err
	}
	if q.search != nil {
		s = s.WithSearchIndex(q.search.index, q.search.filter)
	}
	for _, op := range q.ops {
		s = op(s)
	}
	return s, nil
}

func (q *Query) wrap(op string, err error) error {
	if err == nil || IsQueryError(err) {
		return err
	}
	return NewQueryError(q.name(), op, err)
}

// Docs resolves the chain to the stored documents, without defaults. A
// chain rooted at a missing document resolves to nil.
func (q *Query) Docs(ctx context.Context) ([]store.Document, error) {
	s, err := q.scan(ctx)
	if err != nil || s == nil {
		return nil, q.wrap("all", err)
	}
	q.table.client.config.Logger.DebugContext(ctx, "ents: collect", "table", q.table.name, "chain", q.name())
	docs, err := s.Collect(ctx)
	if err != nil {
		return nil, q.wrap("all", err)
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return docs, nil
}

// All resolves the chain to entities.
func (q *Query) All(ctx context.Context) ([]*Entity, error) {
	docs, err := q.Docs(ctx)
	if err != nil || docs == nil {
		return nil, err
	}
	return q.table.entities(docs), nil
}

// Count returns the number of documents of the chain.
func (q *Query) Count(ctx context.Context) (int, error) {
	docs, err := q.Docs(ctx)
	return len(docs), err
}

// Exist reports whether the chain has at least one document.
func (q *Query) Exist(ctx context.Context) (bool, error) {
	doc, err := q.First().Doc(ctx)
	return doc != nil, err
}

// Take materializes at most n documents of the chain. Non-positive n
// yields an empty result.
func (q *Query) Take(n int) *Materialized {
	return &Materialized{
		table: q.table,
		label: q.name(),
		load: func(ctx context.Context) ([]store.Document, bool, error) {
			s, err := q.scan(ctx)
			if err != nil || s == nil {
				return nil, false, q.wrap("take", err)
			}
			docs, err := s.Take(ctx, n)
			if err != nil {
				return nil, false, q.wrap("take", err)
			}
			return docs, true, nil
		},
	}
}

// First resolves to the first document of the chain, or nil.
func (q *Query) First() *Single {
	return &Single{
		table: q.table,
		label: q.name(),
		resolve: func(ctx context.Context) (*Retrieval, error) {
			s, err := q.scan(ctx)
			if err != nil || s == nil {
				return nil, q.wrap("first", err)
			}
			doc, err := s.First(ctx)
			if err != nil || doc == nil {
				return nil, q.wrap("first", err)
			}
			return Loaded(doc), nil
		},
	}
}

// FirstOrFail is like First but fails with a NotFoundError on an empty chain.
func (q *Query) FirstOrFail() *Single {
	return q.First().OrFail()
}

// Unique resolves to the only document of the chain, or nil. More than one
// document fails with a NotSingularError.
func (q *Query) Unique() *Single {
	return &Single{
		table: q.table,
		label: q.name(),
		resolve: func(ctx context.Context) (*Retrieval, error) {
			s, err := q.scan(ctx)
			if err != nil || s == nil {
				return nil, q.wrap("unique", err)
			}
			doc, err := s.Unique(ctx)
			switch {
			case errors.Is(err, store.ErrNotUnique):
				return nil, NewNotSingularError(q.name(), 0)
			case err != nil || doc == nil:
				return nil, q.wrap("unique", err)
			}
			return Loaded(doc), nil
		},
	}
}

// UniqueOrFail is like Unique but fails with a NotFoundError on an empty chain.
func (q *Query) UniqueOrFail() *Single {
	return q.Unique().OrFail()
}

// Page is one page of a paginated chain.
type Page struct {
	Entities       []*Entity
	IsDone         bool
	ContinueCursor string
}

// Paginate returns one page of the chain. Pass the ContinueCursor of a page
// to read the next one. A chain rooted at a missing document returns nil.
func (q *Query) Paginate(ctx context.Context, opts store.PaginationOptions) (*Page, error) {
	s, err := q.scan(ctx)
	if err != nil || s == nil {
		return nil, q.wrap("paginate", err)
	}
	res, err := s.Paginate(ctx, opts)
	if err != nil {
		return nil, q.wrap("paginate", err)
	}
	return &Page{
		Entities:       q.table.entities(res.Page),
		IsDone:         res.IsDone,
		ContinueCursor: res.ContinueCursor,
	}, nil
}

func (q *Query) client() *Client { return q.table.client }

// Materialized holds the result of Take: a bounded list of documents read
// eagerly when the chain is resolved. It can still be reduced to a single
// document, but not narrowed further.
type Materialized struct {
	table *Table
	label string
	// load returns the documents, and false for chains rooted at a missing
	// document.
	load func(context.Context) ([]store.Document, bool, error)
}

// Docs resolves the chain to the stored documents, without defaults.
func (m *Materialized) Docs(ctx context.Context) ([]store.Document, error) {
	docs, ok, err := m.load(ctx)
	if err != nil || !ok {
		return nil, err
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return docs, nil
}

// All resolves the chain to entities.
func (m *Materialized) All(ctx context.Context) ([]*Entity, error) {
	docs, err := m.Docs(ctx)
	if err != nil || docs == nil {
		return nil, err
	}
	return m.table.entities(docs), nil
}

// First resolves to the first taken document, or nil.
func (m *Materialized) First() *Single {
	return &Single{
		table: m.table,
		label: m.label,
		resolve: func(ctx context.Context) (*Retrieval, error) {
			docs, _, err := m.load(ctx)
			if err != nil || len(docs) == 0 {
				return nil, err
			}
			return Loaded(docs[0]), nil
		},
	}
}

// FirstOrFail is like First but fails with a NotFoundError on an empty result.
func (m *Materialized) FirstOrFail() *Single {
	return m.First().OrFail()
}

// Unique resolves to the only taken document, or nil. More than one
// document fails with a NotSingularError.
func (m *Materialized) Unique() *Single {
	return &Single{
		table: m.table,
		label: m.label,
		resolve: func(ctx context.Context) (*Retrieval, error) {
			docs, _, err := m.load(ctx)
			switch {
			case err != nil || len(docs) == 0:
				return nil, err
			case len(docs) > 1:
				return nil, NewNotSingularError(m.label, len(docs))
			}
			return Loaded(docs[0]), nil
		},
	}
}

// UniqueOrFail is like Unique but fails with a NotFoundError on an empty result.
func (m *Materialized) UniqueOrFail() *Single {
	return m.Unique().OrFail()
}

func (m *Materialized) client() *Client { return m.table.client }

// Lister is implemented by the chains that resolve to a list of entities:
// *Query, *EdgeQuery and *Materialized.
type Lister interface {
	All(context.Context) ([]*Entity, error)
	client() *Client
}

// Map resolves the chain and applies fn to every entity concurrently,
// bounded by the client concurrency. The results keep the order of the
// chain. A chain rooted at a missing document maps to nil.
//
//	names, err := ents.Map(ctx, user.Many("friends"), func(ctx context.Context, e *ents.Entity) (string, error) {
//	    name, _ := ents.Value[string](e, "name")
//	    return name, nil
//	})
func Map[T any](ctx context.Context, l Lister, fn func(context.Context, *Entity) (T, error)) ([]T, error) {
	all, err := l.All(ctx)
	if err != nil || all == nil {
		return nil, err
	}
	out := make([]T, len(all))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.client().config.Concurrency)
	for i, e := range all {
		g.Go(func() error {
			v, err := fn(ctx, e)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// entities wraps loaded documents of the table.
func (t *Table) entities(docs []store.Document) []*Entity {
	out := make([]*Entity, len(docs))
	for i, doc := range docs {
		out[i] = t.entity(doc)
	}
	return out
}
