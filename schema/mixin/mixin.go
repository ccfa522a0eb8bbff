package mixin

import "github.com/syssam/ents/schema"

// Schema is the default implementation of schema.Mixin. Embed it in
// mixins that declare only some parts.
//
//	type Authored struct {
//	    mixin.Schema
//	}
//
//	func (Authored) Edges() []schema.Edge {
//	    return []schema.Edge{edge.One("author").To("users")}
//	}
type Schema struct{}

// Fields returns the fields of the mixin.
func (Schema) Fields() []schema.Field { return nil }

// Edges returns the edges of the mixin.
func (Schema) Edges() []schema.Edge { return nil }

// Indexes returns the indexes of the mixin.
func (Schema) Indexes() []schema.Index { return nil }

var _ schema.Mixin = (*Schema)(nil)

// Compose returns a mixin declaring the parts of all mixins, in order.
//
//	var Content = mixin.Compose(Authored{}, Titled{})
func Compose(mixins ...schema.Mixin) schema.Mixin {
	return composed(mixins)
}

type composed []schema.Mixin

func (c composed) Fields() (fields []schema.Field) {
	for _, m := range c {
		fields = append(fields, m.Fields()...)
	}
	return fields
}

func (c composed) Edges() (edges []schema.Edge) {
	for _, m := range c {
		edges = append(edges, m.Edges()...)
	}
	return edges
}

func (c composed) Indexes() (indexes []schema.Index) {
	for _, m := range c {
		indexes = append(indexes, m.Indexes()...)
	}
	return indexes
}

// Fields returns a mixin declaring only the given fields.
//
//	schema.Table("posts").Mixin(mixin.Fields(field.String("slug").Unique()))
func Fields(fields ...schema.Field) schema.Mixin {
	return fieldsOnly(fields)
}

type fieldsOnly []schema.Field

func (f fieldsOnly) Fields() []schema.Field { return f }
func (fieldsOnly) Edges() []schema.Edge     { return nil }
func (fieldsOnly) Indexes() []schema.Index  { return nil }
