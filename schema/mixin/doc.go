// Package mixin provides reusable parts of table declarations.
//
// A mixin declares fields, edges and indexes that several tables share.
// Tables pick them up with schema.Builder.Mixin:
//
//	type Authored struct{ mixin.Schema }
//
//	func (Authored) Edges() []schema.Edge {
//	    return []schema.Edge{edge.One("author").To("users")}
//	}
//
//	func (Authored) Indexes() []schema.Index {
//	    return []schema.Index{index.Edges("author")}
//	}
//
//	schema.Table("posts").Mixin(Authored{}).Fields(field.String("title"))
//	schema.Table("comments").Mixin(Authored{}).Fields(field.String("text"))
//
// Every table gets its own copy of the declared edges, so each resolves
// against its own inverse: users may declare Many("posts") and
// Many("comments") back.
//
// Mixins are applied in the order they are listed. Declaring a name twice,
// by two mixins or by a mixin and the table, is a compile error.
package mixin
