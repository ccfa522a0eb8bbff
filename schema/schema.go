package schema

import (
	"fmt"

	"github.com/syssam/ents/schema/edge"
	"github.com/syssam/ents/schema/field"
	"github.com/syssam/ents/schema/index"
)

// The following interfaces are implemented by the builders of the field,
// edge and index packages.
type (
	// Field is the interface implemented by field builders.
	Field interface {
		Descriptor() *field.Descriptor
	}
	// Edge is the interface implemented by edge builders.
	Edge interface {
		Descriptor() *edge.Descriptor
	}
	// Index is the interface implemented by index builders.
	Index interface {
		Descriptor() *index.Descriptor
	}
	// SearchIndex is the interface implemented by search index builders.
	SearchIndex interface {
		Descriptor() *index.SearchDescriptor
	}
	// Interface is implemented by anything that describes a table.
	Interface interface {
		Descriptor() *Descriptor
	}
	// Mixin is a reusable set of fields, edges and indexes shared by
	// several tables. Embed mixin.Schema to implement only some parts.
	Mixin interface {
		Fields() []Field
		Edges() []Edge
		Indexes() []Index
	}
)

// Deletion is the deletion behavior of a table.
type Deletion uint8

// Deletion behaviors.
const (
	// HardDelete removes documents from the store.
	HardDelete Deletion = iota
	// SoftDelete sets the DeletionTimeField of documents.
	SoftDelete
)

// DeletionTimeField is the field set by soft deletion.
const DeletionTimeField = "deletionTime"

// String returns the deletion behavior name.
func (d Deletion) String() string {
	if d == SoftDelete {
		return "soft"
	}
	return "hard"
}

// ParseDeletion returns the deletion behavior registered under name.
func ParseDeletion(name string) (Deletion, error) {
	switch name {
	case "", "hard":
		return HardDelete, nil
	case "soft":
		return SoftDelete, nil
	}
	return HardDelete, fmt.Errorf("schema: unknown deletion behavior %q", name)
}

// Descriptor is the declaration of a single table.
type Descriptor struct {
	Name          string
	Fields        []*field.Descriptor
	Edges         []*edge.Descriptor
	Indexes       []*index.Descriptor
	SearchIndexes []*index.SearchDescriptor
	Deletion      Deletion
	Err           error
}

// Builder accumulates the declaration of a table.
type Builder struct {
	desc *Descriptor
}

// Table starts the declaration of the named table.
func Table(name string) *Builder {
	return &Builder{desc: &Descriptor{Name: name}}
}

// Mixin adds the fields, edges and indexes of the mixins to the table, in
// order. Call it first to declare them before the table's own.
//
//	schema.Table("posts").
//	    Mixin(Authored{}).
//	    Fields(field.String("title"))
func (b *Builder) Mixin(mixins ...Mixin) *Builder {
	for _, m := range mixins {
		b.Fields(m.Fields()...)
		b.Edges(m.Edges()...)
		b.Indexes(m.Indexes()...)
	}
	return b
}

// Fields adds fields to the table.
func (b *Builder) Fields(fields ...Field) *Builder {
	for _, f := range fields {
		b.desc.Fields = append(b.desc.Fields, f.Descriptor())
	}
	return b
}

// Edges adds edge declarations to the table.
func (b *Builder) Edges(edges ...Edge) *Builder {
	for _, e := range edges {
		b.desc.Edges = append(b.desc.Edges, e.Descriptor())
	}
	return b
}

// Indexes adds indexes to the table.
func (b *Builder) Indexes(indexes ...Index) *Builder {
	for _, idx := range indexes {
		b.desc.Indexes = append(b.desc.Indexes, idx.Descriptor())
	}
	return b
}

// SearchIndexes adds full text search indexes to the table.
func (b *Builder) SearchIndexes(indexes ...SearchIndex) *Builder {
	for _, idx := range indexes {
		b.desc.SearchIndexes = append(b.desc.SearchIndexes, idx.Descriptor())
	}
	return b
}

// Deletion sets the deletion behavior of the table.
func (b *Builder) Deletion(d Deletion) *Builder {
	b.desc.Deletion = d
	return b
}

// Descriptor returns the table declaration. Its Err holds the first error
// reported by the table or any of its fields, edges or indexes.
func (b *Builder) Descriptor() *Descriptor {
	d := b.desc
	if d.Err != nil {
		return d
	}
	for _, f := range d.Fields {
		if f.Err != nil {
			d.Err = fmt.Errorf("table %q: %w", d.Name, f.Err)
			return d
		}
	}
	for _, e := range d.Edges {
		if e.Err != nil {
			d.Err = fmt.Errorf("table %q: %w", d.Name, e.Err)
			return d
		}
	}
	for _, s := range d.SearchIndexes {
		if s.Err != nil {
			d.Err = fmt.Errorf("table %q: %w", d.Name, s.Err)
			return d
		}
	}
	return d
}
