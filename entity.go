package ents

import (
	"context"
	"maps"

	"github.com/syssam/ents/store"
)

// Entity is a loaded document of a table. Fields declared with a default
// and absent from the stored document hold their default value. The
// document is a private copy; use Patch or Replace to change it.
type Entity struct {
	table *Table
	doc   store.Document
}

func newEntity(t *Table, doc store.Document) *Entity {
	d := doc.Clone()
	if t.table != nil {
		for _, f := range t.table.Defaults() {
			if _, ok := d[f.Name]; !ok {
				d[f.Name] = cloneValue(store.Normalize(f.Default))
			}
		}
	}
	return &Entity{table: t, doc: d}
}

// ID returns the id of the entity.
func (e *Entity) ID() store.ID { return e.doc.ID() }

// Table returns the table name of the entity.
func (e *Entity) Table() string { return e.table.name }

// CreationTime returns the creation time in milliseconds since the Unix epoch.
func (e *Entity) CreationTime() float64 { return e.doc.CreationTime() }

// Get returns the value of a field, or nil when the field is absent.
func (e *Entity) Get(field string) any { return e.doc[field] }

// Doc returns a copy of the document, defaults included.
func (e *Entity) Doc() store.Document {
	d := make(store.Document, len(e.doc))
	for k, v := range e.doc {
		d[k] = cloneValue(v)
	}
	return d
}

// Value returns the field of the entity as a T. It reports false when the
// field is absent or holds another type. Numbers are stored as int64 or
// float64.
//
//	name, ok := ents.Value[string](user, "name")
func Value[T any](e *Entity, field string) (T, bool) {
	v, ok := e.doc[field].(T)
	return v, ok
}

// RefID returns the id stored in a reference field of the entity.
func (e *Entity) RefID(field string) (store.ID, bool) {
	return refID(e.doc[field])
}

// single returns a chain resolving to the entity without a store call.
func (e *Entity) single() *Single {
	r := Loaded(e.doc)
	return &Single{
		table:   e.table,
		label:   e.table.name,
		resolve: func(_ context.Context) (*Retrieval, error) { return r, nil },
	}
}

// refID converts a stored reference to an id.
func refID(v any) (store.ID, bool) {
	switch v := v.(type) {
	case store.ID:
		return v, v != ""
	case string:
		return store.ID(v), v != ""
	}
	return "", false
}

// cloneValue copies the containers of a document value, so defaults and
// entity documents never share mutable state.
func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		m := maps.Clone(v)
		for k, mv := range m {
			m[k] = cloneValue(mv)
		}
		return m
	case []any:
		s := make([]any, len(v))
		for i := range v {
			s[i] = cloneValue(v[i])
		}
		return s
	case []byte:
		return append([]byte(nil), v...)
	}
	return v
}
