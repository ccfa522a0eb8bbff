package ents

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syssam/ents/contrib/dataloader"
	"github.com/syssam/ents/graph"
	"github.com/syssam/ents/schema"
	"github.com/syssam/ents/schema/field"
	"github.com/syssam/ents/store"
)

// EdgeChange edits the targets of a multiple edge. It is accepted as the
// value of a multiple edge name in Insert and Patch:
//
//	err := users.Get(id).Patch(ctx, store.Document{
//	    "friends": ents.EdgeChange{Add: []store.ID{bob}, Remove: []store.ID{carol}},
//	})
//
// A plain []store.ID sets the targets of the edge to exactly those ids.
type EdgeChange struct {
	Add    []store.ID
	Remove []store.ID
}

type op uint8

const (
	opInsert op = iota
	opPatch
	opReplace
)

func (o op) String() string {
	switch o {
	case opInsert:
		return "insert"
	case opPatch:
		return "patch"
	}
	return "replace"
}

// mutation is a validated write. Field values are in doc; edge values are
// applied after the document is written.
type mutation struct {
	op    op
	doc   store.Document
	edges []edgeWrite
}

// edgeWrite is a pending write of a multiple edge. With set, the targets
// become exactly add.
type edgeWrite struct {
	edge   *graph.Edge
	add    []store.ID
	remove []store.ID
	set    bool
}

// Insert validates and inserts a document. Besides the table fields it
// accepts single edge names holding the target id, and multiple edge names
// holding a []store.ID or an EdgeChange of targets to connect.
//
//	id, err := client.Table("messages").Insert(ctx, store.Document{
//	    "text": "hello",
//	    "user": userID,
//	    "tags": []store.ID{tagID},
//	})
func (t *Table) Insert(ctx context.Context, doc store.Document) (store.ID, error) {
	if t.err != nil {
		return "", t.err
	}
	m, err := t.prepare(ctx, opInsert, "", doc)
	if err != nil {
		return "", err
	}
	t.client.config.Logger.DebugContext(ctx, "ents: insert", "table", t.name)
	id, err := t.client.store.Insert(ctx, t.name, m.doc)
	if err != nil {
		return "", NewMutationError(t.name, "insert", err)
	}
	if err := t.writeEdges(ctx, id, m); err != nil {
		// Targets were checked by prepare, so only a failing store gets
		// here.
		return "", errors.Join(err, t.discard(ctx, id))
	}
	return id, nil
}

// InsertMany inserts the documents in order. On failure it returns the ids
// inserted so far with the error.
func (t *Table) InsertMany(ctx context.Context, docs []store.Document) ([]store.ID, error) {
	ids := make([]store.ID, 0, len(docs))
	for _, doc := range docs {
		id, err := t.Insert(ctx, doc)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Patch shallow-merges partial into the resolved document. Fields set to
// store.Unset are removed. Edges are written as in Insert.
func (s *Single) Patch(ctx context.Context, partial store.Document) error {
	id, err := s.target(ctx)
	if err != nil {
		return err
	}
	return s.table.patch(ctx, id, partial)
}

// Replace replaces the fields of the resolved document. System fields are
// kept; multiple edges not named in doc keep their targets.
func (s *Single) Replace(ctx context.Context, doc store.Document) error {
	id, err := s.target(ctx)
	if err != nil {
		return err
	}
	return s.table.replace(ctx, id, doc)
}

// Delete deletes the resolved document following the deletion behavior of
// its table.
func (s *Single) Delete(ctx context.Context) error {
	id, err := s.target(ctx)
	if err != nil {
		return err
	}
	return s.table.delete(ctx, id)
}

// target resolves the id of the document to write. Writes always require
// a document.
func (s *Single) target(ctx context.Context) (store.ID, error) {
	id, err := s.OrFail().ID(ctx)
	if err != nil {
		return "", err
	}
	return id, s.table.checkID(id)
}

// Patch shallow-merges partial into the stored document. The entity itself
// is not updated.
func (e *Entity) Patch(ctx context.Context, partial store.Document) error {
	return e.table.patch(ctx, e.ID(), partial)
}

// Replace replaces the fields of the stored document. The entity itself is
// not updated.
func (e *Entity) Replace(ctx context.Context, doc store.Document) error {
	return e.table.replace(ctx, e.ID(), doc)
}

// Delete deletes the entity following the deletion behavior of its table.
func (e *Entity) Delete(ctx context.Context) error {
	return e.table.delete(ctx, e.ID())
}

func (t *Table) patch(ctx context.Context, id store.ID, partial store.Document) error {
	m, err := t.prepare(ctx, opPatch, id, partial)
	if err != nil {
		return err
	}
	if len(m.doc) == 0 {
		// Edge-only patches still require the document.
		if err := t.exists(ctx, id, "patch"); err != nil {
			return err
		}
	} else if err := t.client.store.Patch(ctx, id, m.doc); err != nil {
		return t.mutationErr("patch", id, err)
	}
	return t.writeEdges(ctx, id, m)
}

func (t *Table) replace(ctx context.Context, id store.ID, doc store.Document) error {
	m, err := t.prepare(ctx, opReplace, id, doc)
	if err != nil {
		return err
	}
	if err := t.client.store.Replace(ctx, id, m.doc); err != nil {
		return t.mutationErr("replace", id, err)
	}
	return t.writeEdges(ctx, id, m)
}

func (t *Table) exists(ctx context.Context, id store.ID, op string) error {
	doc, err := t.client.get(ctx, id)
	switch {
	case err != nil:
		return NewMutationError(t.name, op, err)
	case doc == nil:
		return NewMutationError(t.name, op, NewNotFoundError(t.name, id))
	}
	return nil
}

func (t *Table) mutationErr(op string, id store.ID, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		err = NewNotFoundError(t.name, id)
	}
	return NewMutationError(t.name, op, err)
}

// prepare validates a write against the table schema and splits it into
// document fields and edge writes. self is the written document, empty
// for inserts.
func (t *Table) prepare(ctx context.Context, o op, self store.ID, doc store.Document) (*mutation, error) {
	if self != "" {
		if err := t.checkID(self); err != nil {
			return nil, err
		}
	}
	m := &mutation{op: o, doc: make(store.Document, len(doc))}
	for _, k := range sortedKeys(doc) {
		v := doc[k]
		if k == store.IDField || k == store.CreationTimeField {
			m.doc[k] = v
			continue
		}
		if f, ok := t.table.Field(k); ok {
			if err := t.setField(m, f, v); err != nil {
				return nil, err
			}
			continue
		}
		e, ok := t.table.Edge(k)
		if !ok {
			return nil, NewValidationError(k, fmt.Errorf("unknown field of table %s", t.name))
		}
		if err := t.setEdge(m, e, v); err != nil {
			return nil, err
		}
	}
	if o != opPatch {
		for _, f := range t.table.Fields {
			if _, ok := m.doc[f.Name]; !ok && !f.Optional && !f.HasDefault {
				return nil, NewValidationError(f.Name, errors.New("missing required field"))
			}
		}
	}
	if err := t.checkUnique(ctx, self, m.doc); err != nil {
		return nil, err
	}
	if err := t.checkEdges(ctx, self, m); err != nil {
		return nil, err
	}
	return m, nil
}

// checkEdges fails the edge writes of m that cannot complete: targets to
// connect must exist, and a complete list of targets cannot drop the
// current targets of a required foreign key.
func (t *Table) checkEdges(ctx context.Context, self store.ID, m *mutation) error {
	c := t.client
	for _, w := range m.edges {
		e := w.edge
		if err := c.mustExist(ctx, e.Type.Name, w.add); err != nil {
			return NewMutationError(t.name, m.op.String(), fmt.Errorf("edge %s: %w", e.Name, err))
		}
		if e.Storage != graph.StorageForeign || !w.set || self == "" || e.Ref.Optional {
			continue
		}
		docs, err := c.store.Query(e.Type.Name).
			WithIndex(e.Field, func(r *store.IndexRange) { r.Eq(e.Field, self) }).
			Collect(ctx)
		if err != nil {
			return NewMutationError(t.name, m.op.String(), err)
		}
		for _, d := range docs {
			if !slices.Contains(w.add, d.ID()) {
				return detachErr(e)
			}
		}
	}
	return nil
}

// setField validates the value of a declared field.
func (t *Table) setField(m *mutation, f *graph.Field, v any) error {
	if store.IsUnset(v) || v == nil {
		switch {
		case !f.Optional:
			return NewValidationError(f.Name, errors.New("required field cannot be removed"))
		case m.op == opPatch:
			m.doc[f.Name] = store.Unset
		}
		return nil
	}
	v = store.Normalize(v)
	if err := f.Type.Check(v); err != nil {
		return NewValidationError(f.Name, err)
	}
	if f.Type == field.TypeID {
		if id, _ := refID(v); id.Table() != f.Table {
			return NewValidationError(f.Name, &InvalidIDError{Table: f.Table, ID: fmt.Sprint(v)})
		}
	}
	m.doc[f.Name] = v
	return nil
}

// setEdge validates a value written under an edge name.
func (t *Table) setEdge(m *mutation, e *graph.Edge, v any) error {
	switch e.Storage {
	case graph.StorageField:
		f, _ := t.table.Field(e.Field)
		if id, ok := v.(store.ID); ok {
			v = string(id)
		}
		return t.setField(m, f, v)
	case graph.StorageJoin, graph.StorageForeign:
		w := edgeWrite{edge: e}
		switch v := v.(type) {
		case []store.ID:
			w.add, w.set = v, m.op != opInsert
		case EdgeChange:
			if m.op == opReplace {
				return NewValidationError(e.Name, errors.New("replace takes the complete list of targets, not a change"))
			}
			w.add, w.remove = v.Add, v.Remove
		default:
			return NewValidationError(e.Name, fmt.Errorf("expected []store.ID or ents.EdgeChange, got %T", v))
		}
		for _, id := range slices.Concat(w.add, w.remove) {
			if id.Table() != e.Type.Name {
				return NewValidationError(e.Name, &InvalidIDError{Table: e.Type.Name, ID: string(id)})
			}
		}
		if e.Storage == graph.StorageForeign && len(w.remove) > 0 && !e.Ref.Optional {
			return detachErr(e)
		}
		m.edges = append(m.edges, w)
		return nil
	}
	return NewValidationError(e.Name, fmt.Errorf("edge is stored on %s; write %s.%s instead", e.Type.Name, e.Type.Name, e.Field))
}

// checkUnique enforces the unique fields of the table, one-to-one foreign
// keys included.
func (t *Table) checkUnique(ctx context.Context, self store.ID, doc store.Document) error {
	for _, f := range t.table.Fields {
		v, ok := doc[f.Name]
		if !f.Unique || !ok || store.IsUnset(v) {
			continue
		}
		s := t.client.store.Query(t.name)
		if _, indexed := t.table.Index(f.Name); indexed {
			s = s.WithIndex(f.Name, func(r *store.IndexRange) { r.Eq(f.Name, v) })
		}
		docs, err := s.Filter(store.FieldEQ(f.Name, v)).Take(ctx, 2)
		if err != nil {
			return NewMutationError(t.name, "unique", err)
		}
		for _, d := range docs {
			if d.ID() != self {
				return &ConstraintError{Table: t.name, Field: f.Name, Value: v, Holder: d.ID()}
			}
		}
	}
	return nil
}

// writeEdges applies the edge writes of m for the document id.
func (t *Table) writeEdges(ctx context.Context, id store.ID, m *mutation) error {
	for _, w := range m.edges {
		var err error
		switch w.edge.Storage {
		case graph.StorageJoin:
			err = t.writeJoin(ctx, id, w)
		case graph.StorageForeign:
			err = t.writeForeign(ctx, id, w)
		}
		if err != nil {
			return NewMutationError(t.name, m.op.String(), fmt.Errorf("edge %s: %w", w.edge.Name, err))
		}
	}
	return nil
}

// writeJoin inserts and deletes the join rows of a multiple edge.
func (t *Table) writeJoin(ctx context.Context, id store.ID, w edgeWrite) error {
	e := w.edge
	this, other, err := e.JoinFields()
	if err != nil {
		return err
	}
	c := t.client
	current, err := (&joinSource{client: c, edge: e, source: id}).currentLinks(ctx, this, other)
	if err != nil {
		return err
	}
	remove := w.remove
	if w.set {
		for target := range current {
			if !slices.Contains(w.add, target) {
				remove = append(remove, target)
			}
		}
	}
	for _, target := range remove {
		for _, row := range current[target] {
			if err := c.store.Delete(ctx, row); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		delete(current, target)
	}
	for _, target := range w.add {
		if _, ok := current[target]; ok {
			continue
		}
		row, err := c.store.Insert(ctx, e.Rel.Table, store.Document{this: string(id), other: string(target)})
		if err != nil {
			return err
		}
		current[target] = []store.ID{row}
	}
	return nil
}

// currentLinks returns the join rows of the source keyed by target.
func (j *joinSource) currentLinks(ctx context.Context, this, other string) (map[store.ID][]store.ID, error) {
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
	}
	groups := dataloader.GroupByKey(links, func(l link) store.ID { return l.target })
	rows := make(map[store.ID][]store.ID, len(groups))
	for target, ls := range groups {
		for _, l := range ls {
			if !slices.Contains(rows[target], l.row.ID()) {
				rows[target] = append(rows[target], l.row.ID())
			}
		}
	}
	return rows, nil
}

// writeForeign points the foreign keys of the added targets at id and
// unsets them on the removed ones.
func (t *Table) writeForeign(ctx context.Context, id store.ID, w edgeWrite) error {
	e := w.edge
	c := t.client
	remove := w.remove
	if w.set {
		docs, err := c.store.Query(e.Type.Name).
			WithIndex(e.Field, func(r *store.IndexRange) { r.Eq(e.Field, id) }).
			Collect(ctx)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if !slices.Contains(w.add, d.ID()) {
				remove = append(remove, d.ID())
			}
		}
	}
	if len(remove) > 0 && !e.Ref.Optional {
		return detachErr(e)
	}
	for _, target := range remove {
		if err := c.store.Patch(ctx, target, store.Document{e.Field: store.Unset}); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	for _, target := range w.add {
		if err := c.store.Patch(ctx, target, store.Document{e.Field: string(id)}); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return NewNotFoundError(e.Type.Name, target)
			}
			return err
		}
	}
	return nil
}

func detachErr(e *graph.Edge) error {
	return NewValidationError(e.Name, fmt.Errorf("targets cannot be detached: %s is required", e.Ref.Label()))
}

// discard removes a document left by a failed insert together with the
// join rows written for it.
func (t *Table) discard(ctx context.Context, id store.ID) error {
	c := t.client
	rows := make(map[store.ID]bool)
	for _, e := range t.table.Edges {
		if e.Storage != graph.StorageJoin {
			continue
		}
		this, other, err := e.JoinFields()
		if err != nil {
			return err
		}
		fields := []string{this}
		if e.Bidi {
			fields = append(fields, other)
		}
		for _, f := range fields {
			if err := c.joinRows(ctx, e.Rel.Table, f, id, rows); err != nil {
				return err
			}
		}
	}
	for _, row := range append(sortedIDs(rows), id) {
		if err := c.store.Delete(ctx, row); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}

// mustExist fails with a NotFoundError for the first missing document.
func (c *Client) mustExist(ctx context.Context, table string, ids []store.ID) error {
	docs, err := c.getMany(ctx, ids)
	if err != nil {
		return err
	}
	for i, d := range docs {
		if d == nil {
			return NewNotFoundError(table, ids[i])
		}
	}
	return nil
}

// delete deletes a document. Soft deletion stamps the deletion time; hard
// deletion cascades.
func (t *Table) delete(ctx context.Context, id store.ID) error {
	if err := t.checkID(id); err != nil {
		return err
	}
	if t.table.Deletion == schema.SoftDelete {
		now := float64(t.client.config.Clock().UnixMilli())
		if err := t.client.store.Patch(ctx, id, store.Document{schema.DeletionTimeField: now}); err != nil {
			return t.mutationErr("delete", id, err)
		}
		return nil
	}
	if err := t.exists(ctx, id, "delete"); err != nil {
		return err
	}
	if err := t.client.cascade(ctx, t.table, id, make(map[store.ID]bool)); err != nil {
		return t.mutationErr("delete", id, err)
	}
	return nil
}

// cascade hard deletes a document and everything that cannot exist without
// it: join rows connecting it, and documents holding a required foreign key
// to it, recursively. Optional foreign keys to it are unset.
func (c *Client) cascade(ctx context.Context, t *graph.Table, id store.ID, seen map[store.ID]bool) error {
	if seen[id] {
		return nil
	}
	seen[id] = true
	c.config.Logger.DebugContext(ctx, "ents: delete", "table", t.Name, "id", id)
	rows := make(map[store.ID]bool)
	for _, owner := range c.graph.Tables() {
		for _, e := range owner.FKEdges() {
			if e.Type != t {
				continue
			}
			if err := c.detach(ctx, owner, e, id, seen); err != nil {
				return err
			}
		}
		for _, e := range owner.Edges {
			if e.Storage == graph.StorageJoin && (owner == t || (e.Type == t && e.OneSided())) {
				this, other, err := e.JoinFields()
				if err != nil {
					return err
				}
				fields := []string{this}
				switch {
				case owner != t:
					fields = []string{other}
				case e.Bidi:
					fields = append(fields, other)
				}
				for _, f := range fields {
					if err := c.joinRows(ctx, e.Rel.Table, f, id, rows); err != nil {
						return err
					}
				}
			}
		}
	}
	for _, row := range sortedIDs(rows) {
		if err := c.store.Delete(ctx, row); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	if err := c.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// detach handles the documents of owner whose foreign key e points at id.
func (c *Client) detach(ctx context.Context, owner *graph.Table, e *graph.Edge, id store.ID, seen map[store.ID]bool) error {
	docs, err := c.store.Query(owner.Name).
		WithIndex(e.Field, func(r *store.IndexRange) { r.Eq(e.Field, id) }).
		Collect(ctx)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if seen[d.ID()] {
			continue
		}
		if e.Optional {
			if err := c.store.Patch(ctx, d.ID(), store.Document{e.Field: store.Unset}); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			continue
		}
		if err := c.cascade(ctx, owner, d.ID(), seen); err != nil {
			return err
		}
	}
	return nil
}

// joinRows collects the rows of a join table storing id in field.
func (c *Client) joinRows(ctx context.Context, table, field string, id store.ID, rows map[store.ID]bool) error {
	docs, err := c.store.Query(table).
		WithIndex(field, func(r *store.IndexRange) { r.Eq(field, id) }).
		Collect(ctx)
	if err != nil {
		return err
	}
	for _, d := range docs {
		rows[d.ID()] = true
	}
	return nil
}

func sortedKeys(doc store.Document) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func sortedIDs(set map[store.ID]bool) []store.ID {
	ids := make([]store.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
