// Package schema provides the building blocks for declaring tables.
//
// A table is declared with its fields, edges and indexes using the builders
// of the subpackages:
//
//   - [field]: document fields and their defaults
//   - [edge]: one-sided relationship declarations
//   - [index]: standard and search indexes
//
// # Quick Start
//
//	users := schema.Table("users").
//	    Fields(
//	        field.String("name"),
//	        field.String("email").Unique(),
//	        field.Int("karma").Optional().Default(0),
//	    ).
//	    Edges(
//	        edge.One("profile").Ref(),
//	        edge.Many("messages"),
//	        edge.Many("friends").To("users"),
//	    )
//
//	messages := schema.Table("messages").
//	    Fields(field.String("text")).
//	    Edges(edge.One("user")).
//	    SearchIndexes(index.Search("search_text", "text"))
//
// The declarations are compiled by the graph package, which pairs edges and
// synthesizes join tables.
//
// # Deletion
//
// Tables delete documents for good by default. A table declared with
// Deletion(schema.SoftDelete) marks documents with a "deletionTime" field
// instead.
package schema
