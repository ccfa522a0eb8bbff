package edge

import (
	"errors"
	"fmt"

	"github.com/go-openapi/inflect"
)

var rules = inflect.NewDefaultRuleset()

// Cardinality of an edge declaration.
type Cardinality uint8

// Edge cardinalities.
const (
	Single Cardinality = iota + 1
	Multiple
)

// String returns the cardinality name.
func (c Cardinality) String() string {
	switch c {
	case Single:
		return "single"
	case Multiple:
		return "multiple"
	}
	return "unknown"
}

// Shape is the storage shape an edge declaration asks for. The schema
// compiler may refine it; a multiple edge declared as ShapeJoin resolves to
// a foreign-key shape when the other side stores the key.
type Shape uint8

// Shape hints.
const (
	// ShapeField means this table stores the foreign key.
	ShapeField Shape = iota + 1
	// ShapeRef means the other table stores the foreign key.
	ShapeRef
	// ShapeJoin means the relation is kept in a join table.
	ShapeJoin
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeField:
		return "field"
	case ShapeRef:
		return "ref"
	case ShapeJoin:
		return "join"
	}
	return "unknown"
}

// A Descriptor for edge configuration. It is a one-sided intent that is
// paired with its inverse when the schema is compiled.
type Descriptor struct {
	Name        string      // edge name.
	To          string      // target table.
	Cardinality Cardinality // single or multiple.
	Shape       Shape       // storage shape hint.
	Field       string      // foreign-key field on this table (ShapeField).
	RefField    string      // foreign-key field on the target table (ShapeRef).
	Inverse     string      // explicit inverse edge name.
	Optional    bool        // single owning edge whose key may be absent.
	StorageKey  *StorageKey // join table naming.
	Comment     string
	Err         error
}

// SingleBuilder is the builder for edges pointing at zero or one document.
type SingleBuilder struct {
	desc *Descriptor
}

// One returns a single edge. By default this table stores the foreign key in
// a field named "<name>Id" and the target table is the plural of name:
//
//	edge.One("user")                  // userId -> users
//	edge.One("author").To("users")    // authorId -> users
//	edge.One("profile").Ref()         // profiles stores the key
func One(name string) *SingleBuilder {
	return &SingleBuilder{desc: &Descriptor{
		Name:        name,
		To:          rules.Pluralize(name),
		Cardinality: Single,
		Shape:       ShapeField,
		Field:       name + "Id",
	}}
}

// To sets the target table of the edge.
func (b *SingleBuilder) To(table string) *SingleBuilder {
	b.desc.To = table
	return b
}

// Field sets the name of the foreign-key field stored on this table.
func (b *SingleBuilder) Field(name string) *SingleBuilder {
	if b.desc.Shape == ShapeRef {
		b.desc.Err = fmt.Errorf("edge %q: Field cannot be combined with Ref", b.desc.Name)
	}
	b.desc.Field = name
	return b
}

// Optional allows the foreign-key field to be absent.
func (b *SingleBuilder) Optional() *SingleBuilder {
	b.desc.Optional = true
	return b
}

// Ref makes the edge a referencing edge: the target table stores the
// foreign key and the edge is resolved by a reverse lookup.
func (b *SingleBuilder) Ref() *SingleBuilder {
	if b.desc.Field != "" && b.desc.Field != b.desc.Name+"Id" {
		b.desc.Err = fmt.Errorf("edge %q: Ref cannot be combined with Field", b.desc.Name)
	}
	b.desc.Shape = ShapeRef
	b.desc.Field = ""
	return b
}

// RefField makes the edge a referencing edge resolved through the given
// foreign-key field of the target table.
func (b *SingleBuilder) RefField(name string) *SingleBuilder {
	b.Ref()
	b.desc.RefField = name
	return b
}

// Comment sets the comment of the edge.
func (b *SingleBuilder) Comment(c string) *SingleBuilder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the schema.Edge interface by returning its descriptor.
func (b *SingleBuilder) Descriptor() *Descriptor {
	if b.desc.Optional && b.desc.Shape == ShapeRef && b.desc.Err == nil {
		b.desc.Err = fmt.Errorf("edge %q: Optional applies to owning edges only; referencing edges are always optional", b.desc.Name)
	}
	return b.desc
}

// MultipleBuilder is the builder for edges pointing at many documents.
type MultipleBuilder struct {
	desc *Descriptor
}

// Many returns a multiple edge. The target table defaults to the edge name.
// Without further configuration the compiler chooses between a foreign key
// on the target (when the target declares a single owning edge back) and a
// join table:
//
//	edge.Many("messages")                           // users -> messages.userId
//	edge.Many("groups")                             // join table with groups.members
//	edge.Many("friends").To("users")                // symmetric self edge
//	edge.Many("followees").To("users").Inverse("followers")
func Many(name string) *MultipleBuilder {
	return &MultipleBuilder{desc: &Descriptor{
		Name:        name,
		To:          name,
		Cardinality: Multiple,
		Shape:       ShapeJoin,
	}}
}

// To sets the target table of the edge.
func (b *MultipleBuilder) To(table string) *MultipleBuilder {
	b.desc.To = table
	return b
}

// Ref requires the edge to be a one-to-many edge through a foreign key
// stored on the target table.
func (b *MultipleBuilder) Ref() *MultipleBuilder {
	b.desc.Shape = ShapeRef
	return b
}

// RefField is like Ref and names the foreign-key field of the target table.
func (b *MultipleBuilder) RefField(name string) *MultipleBuilder {
	b.desc.Shape = ShapeRef
	b.desc.RefField = name
	return b
}

// Inverse names the edge on the target table that this edge pairs with.
// For self-directed edges the inverse is declared implicitly, so a single
// declaration defines both roles of an asymmetric relation.
func (b *MultipleBuilder) Inverse(name string) *MultipleBuilder {
	b.desc.Inverse = name
	return b
}

// StorageKey configures the join table of the edge.
func (b *MultipleBuilder) StorageKey(opts ...StorageOption) *MultipleBuilder {
	if b.desc.StorageKey == nil {
		b.desc.StorageKey = &StorageKey{}
	}
	for i := range opts {
		opts[i](b.desc.StorageKey)
	}
	return b
}

// Comment sets the comment of the edge.
func (b *MultipleBuilder) Comment(c string) *MultipleBuilder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the schema.Edge interface by returning its descriptor.
func (b *MultipleBuilder) Descriptor() *Descriptor {
	d := b.desc
	switch {
	case d.Err != nil:
	case d.Shape == ShapeRef && d.StorageKey != nil:
		d.Err = fmt.Errorf("edge %q: StorageKey applies to join edges only", d.Name)
	case d.Shape == ShapeRef && d.Inverse != "":
		d.Err = fmt.Errorf("edge %q: use RefField instead of Inverse for foreign-key edges", d.Name)
	case d.Inverse == d.Name && d.Inverse != "":
		d.Err = fmt.Errorf("edge %q: an edge cannot be its own inverse", d.Name)
	case d.StorageKey != nil && len(d.StorageKey.Columns) != 0 && len(d.StorageKey.Columns) != 2:
		d.Err = errors.New("edge: join tables have exactly 2 columns; use edge.Columns(this, other)")
	}
	return d
}

// StorageKey holds the configuration for the join table of an edge.
type StorageKey struct {
	Table   string   // join table name.
	Columns []string // join fields: (this side, other side).
}

// StorageOption allows for setting the storage configuration using functional options.
type StorageOption func(*StorageKey)

// Table sets the join table name.
func Table(name string) StorageOption {
	return func(key *StorageKey) {
		key.Table = name
	}
}

// Columns sets the join table fields. The first holds the id of the document
// that declares the edge, the second holds the id of the target.
func Columns(this, other string) StorageOption {
	return func(key *StorageKey) {
		key.Columns = []string{this, other}
	}
}
