package ents

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syssam/ents/graph"
	"github.com/syssam/ents/store"
)

// edge returns the named edge of the table, checking its cardinality.
func (t *Table) edge(name string, unique bool) (*graph.Edge, error) {
	if t.err != nil {
		return nil, t.err
	}
	e, ok := t.table.Edge(name)
	switch {
	case !ok:
		return nil, NewQueryError(t.name, "edge", fmt.Errorf("%w %q", ErrUnknownEdge, name))
	case e.Unique && !unique:
		return nil, NewQueryError(e.Label(), "edge", fmt.Errorf("%w: single edge %s cannot be traversed with Many", ErrInvalidChain, name))
	case !e.Unique && unique:
		return nil, NewQueryError(e.Label(), "edge", fmt.Errorf("%w: multiple edge %s cannot be traversed with One", ErrInvalidChain, name))
	}
	return e, nil
}

// One traverses the named single edge of the entity.
func (e *Entity) One(name string) *Single { return e.single().One(name) }

// OneOrFail traverses the named single edge of the entity and fails with a
// NotFoundError when it points at nothing.
func (e *Entity) OneOrFail(name string) *Single { return e.single().OneOrFail(name) }

// Many traverses the named multiple edge of the entity.
func (e *Entity) Many(name string) *EdgeQuery { return e.single().Many(name) }

// One traverses the named single edge of the resolved document. An empty
// chain stays empty without reading the store.
func (s *Single) One(name string) *Single { return s.one(name, false) }

// OneOrFail is like One but fails with a NotFoundError when the edge, or the
// chain it starts from, resolves to nothing.
func (s *Single) OneOrFail(name string) *Single { return s.one(name, true) }

func (s *Single) one(name string, fail bool) *Single {
	e, err := s.table.edge(name, true)
	if err != nil {
		return &Single{table: s.table, label: s.label, err: err}
	}
	target := s.table.sibling(e.Type.Name)
	out := &Single{table: target, label: e.Label(), fail: fail}
	switch e.Storage {
	case graph.StorageField:
		out.resolve = func(ctx context.Context) (*Retrieval, error) {
			return s.follow(ctx, e, target)
		}
	case graph.StorageRef:
		out.resolve = func(ctx context.Context) (*Retrieval, error) {
			return s.lookup(ctx, e, target)
		}
	default:
		out.err = NewQueryError(e.Label(), "edge", fmt.Errorf("single edge with %s storage", e.Storage))
	}
	return out
}

// follow resolves an owning edge through the foreign key stored on the
// source document. The target is loaded lazily; loading a missing target
// fails with a DanglingReferenceError.
func (s *Single) follow(ctx context.Context, e *graph.Edge, target *Table) (*Retrieval, error) {
	src, err := s.retrieval(ctx)
	if err != nil || src == nil {
		return nil, err
	}
	doc, err := src.Load(ctx)
	if err != nil || doc == nil {
		return nil, err
	}
	raw, ok := doc[e.Field]
	if !ok || raw == nil {
		if e.Optional {
			return nil, nil
		}
		return nil, NewQueryError(e.Label(), "edge", fmt.Errorf("document %s lacks required field %s", doc.ID(), e.Field))
	}
	id, ok := refID(raw)
	if !ok {
		return nil, NewQueryError(e.Label(), "edge", fmt.Errorf("%w: field %s of %s holds %T", ErrInvalidID, e.Field, doc.ID(), raw))
	}
	return NewRetrieval(id, func(ctx context.Context) (store.Document, error) {
		d, err := target.client.get(ctx, id)
		if err != nil {
			return nil, NewQueryError(e.Label(), "edge", err)
		}
		if d == nil {
			return nil, target.client.dangling(ctx, &DanglingReferenceError{
				Edge:  e.Label(),
				Row:   doc.ID(),
				Field: e.Field,
				Table: e.Type.Name,
				ID:    id,
			})
		}
		return d, nil
	}), nil
}

// lookup resolves a referencing edge by a unique index lookup of the
// foreign key the target stores.
func (s *Single) lookup(ctx context.Context, e *graph.Edge, target *Table) (*Retrieval, error) {
	src, err := s.retrieval(ctx)
	if err != nil || src == nil {
		return nil, err
	}
	id := src.ID()
	doc, err := target.client.store.Query(target.name).
		WithIndex(e.Field, func(r *store.IndexRange) { r.Eq(e.Field, id) }).
		Unique(ctx)
	switch {
	case errors.Is(err, store.ErrNotUnique):
		return nil, NewNotSingularError(e.Label(), 0)
	case err != nil:
		return nil, NewQueryError(e.Label(), "edge", err)
	case doc == nil:
		return nil, nil
	}
	return Loaded(doc), nil
}

// EdgeQuery is the chain of a multiple edge. Besides the Query methods it
// checks membership with Has.
type EdgeQuery struct {
	*Query
	edge   *graph.Edge
	source *Single
}

// Many traverses the named multiple edge of the resolved document. A chain
// rooted at an empty single resolves to nil without reading the store.
func (s *Single) Many(name string) *EdgeQuery {
	e, err := s.table.edge(name, false)
	if err != nil {
		return &EdgeQuery{Query: &Query{table: s.table, label: s.label, err: err}, source: s}
	}
	target := s.table.sibling(e.Type.Name)
	q := &Query{table: target, label: e.Label()}
	switch e.Storage {
	case graph.StorageForeign:
		q.base = func(ctx context.Context, index string, rng []func(*store.IndexRange)) (store.Scan, error) {
			src, err := s.retrieval(ctx)
			if err != nil || src == nil {
				return nil, err
			}
			id := src.ID()
			sc := target.client.store.Query(target.name)
			if index == "" {
				sc = sc.WithIndex(e.Field, func(r *store.IndexRange) { r.Eq(e.Field, id) })
			} else {
				sc = sc.WithIndex(index, rng...)
			}
			// Searches bypass the index range, so the key is filtered too.
			return sc.Filter(store.FieldEQ(e.Field, id)), nil
		}
	case graph.StorageJoin:
		q.base = func(ctx context.Context, index string, rng []func(*store.IndexRange)) (store.Scan, error) {
			src, err := s.retrieval(ctx)
			if err != nil || src == nil {
				return nil, err
			}
			sc := store.NewScan(&joinSource{client: target.client, edge: e, source: src.ID()}, target.name)
			if index != "" {
				sc = sc.WithIndex(index, rng...)
			}
			return sc, nil
		}
	default:
		q.err = NewQueryError(e.Label(), "edge", fmt.Errorf("multiple edge with %s storage", e.Storage))
	}
	return &EdgeQuery{Query: q, edge: e, source: s}
}

// Has reports whether the edge connects the source document with id. It
// reads the join rows or the foreign key without loading the edge targets.
func (q *EdgeQuery) Has(ctx context.Context, id store.ID) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	src, err := q.source.retrieval(ctx)
	if err != nil || src == nil {
		return false, err
	}
	if id.Table() != q.edge.Type.Name {
		return false, nil
	}
	c := q.table.client
	switch q.edge.Storage {
	case graph.StorageForeign:
		doc, err := c.get(ctx, id)
		if err != nil || doc == nil {
			return false, q.wrap("has", err)
		}
		ref, _ := refID(doc[q.edge.Field])
		return ref == src.ID(), nil
	case graph.StorageJoin:
		this, other, err := q.edge.JoinFields()
		if err != nil {
			return false, q.wrap("has", err)
		}
		ok, err := c.joined(ctx, q.edge.Rel.Table, this, other, src.ID(), id)
		if err != nil || ok || !q.edge.Bidi {
			return ok, q.wrap("has", err)
		}
		ok, err = c.joined(ctx, q.edge.Rel.Table, other, this, src.ID(), id)
		return ok, q.wrap("has", err)
	}
	return false, nil
}

// joined reports whether a join row stores from in field this and to in
// field other.
func (c *Client) joined(ctx context.Context, table, this, other string, from, to store.ID) (bool, error) {
	doc, err := c.store.Query(table).
		WithIndex(this, func(r *store.IndexRange) { r.Eq(this, from) }).
		Filter(store.FieldEQ(other, to)).
		First(ctx)
	return doc != nil, err
}

// dangling logs a dangling reference and returns it.
func (c *Client) dangling(ctx context.Context, err *DanglingReferenceError) error {
	c.config.Logger.WarnContext(ctx, "ents: dangling reference",
		"edge", err.Edge, "row", err.Row, "field", err.Field, "table", err.Table, "id", err.ID)
	return err
}

// joinSource provides the targets of a join edge to a scan. The targets
// come in the order of their join rows, most recent last.
type joinSource struct {
	client *Client
	edge   *graph.Edge
	source store.ID
}

var (
	_ store.Source    = (*joinSource)(nil)
	_ store.Presorted = (*joinSource)(nil)
)

func (j *joinSource) IndexFields(table, index string) ([]string, bool) {
	return j.client.graph.IndexFields(table, index)
}

func (j *joinSource) SearchField(table, index string) (string, bool) {
	return j.client.graph.SearchField(table, index)
}

func (j *joinSource) Presorted() bool { return true }

// link is a join row read from one direction of the edge.
type link struct {
	row     store.Document
	field   string
	target  store.ID
	created float64
}

// Documents expands the join rows of the source document into their
// targets. Symmetric edges read both directions of the join table. A row
// whose target is missing fails the scan with a DanglingReferenceError.
func (j *joinSource) Documents(ctx context.Context, spec *store.ScanSpec) ([]store.Document, error) {
	this, other, err := j.edge.JoinFields()
	if err != nil {
		return nil, err
	}
	links, err := j.links(ctx, this, other)
	if err != nil {
		return nil, err
	}
	if j.edge.Bidi {
		back, err := j.links(ctx, other, this)
		if err != nil {
			return nil, err
		}
		links = append(links, back...)
		slices.SortStableFunc(links, func(a, b link) int { return store.Compare(a.created, b.created) })
	}
	seen := make(map[store.ID]bool, len(links))
	links = slices.DeleteFunc(links, func(l link) bool {
		dup := seen[l.target]
		seen[l.target] = true
		return dup
	})
	if spec.Order == store.Desc {
		slices.Reverse(links)
	}
	ids := make([]store.ID, len(links))
	for i, l := range links {
		ids[i] = l.target
	}
	docs, err := j.client.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i, d := range docs {
		if d == nil {
			return nil, j.client.dangling(ctx, &DanglingReferenceError{
				Edge:  j.edge.Label(),
				Row:   links[i].row.ID(),
				Field: links[i].field,
				Table: j.edge.Type.Name,
				ID:    ids[i],
			})
		}
	}
	return docs, nil
}

// links reads the join rows storing the source in field from and returns
// the ids they store in field to.
func (j *joinSource) links(ctx context.Context, from, to string) ([]link, error) {
	rows, err := j.client.store.Query(j.edge.Rel.Table).
		WithIndex(from, func(r *store.IndexRange) { r.Eq(from, j.source) }).
		Collect(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]link, 0, len(rows))
	for _, row := range rows {
		id, ok := refID(row[to])
		if !ok {
			return nil, fmt.Errorf("%w: join row %s has no %s", ErrInvalidID, row.ID(), to)
		}
		out = append(out, link{row: row, field: to, target: id, created: row.CreationTime()})
	}
	return out, nil
}
