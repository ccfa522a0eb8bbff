// Package graph compiles table declarations into a resolved relationship graph.
//
// Edges are declared one side at a time by the schema/edge builders. This
// package pairs every declaration with its inverse, decides how the relation
// is stored, and synthesizes the join tables of many-to-many relations.
//
// # Building
//
//	g, err := graph.NewBuilder(graph.WithLogger(logger)).
//	    Add(users, messages, groups).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Compilation runs in two phases. The first collects every table, validates
// names, and adds the foreign-key fields of owning edges. The second resolves
// the edge intents against a resolution table keyed by (table, edge). Tables
// are visited by name and edges in declaration order, so the result depends
// only on the declarations. The declarations themselves are never modified.
//
// # Edge Storage
//
// Every resolved edge has one of four storage shapes:
//
//   - StorageField: a single edge whose key is stored on the owner (M2O, or O2O
//     when paired with a referencing edge).
//   - StorageRef: a single edge found through the key the target stores (O2O).
//   - StorageForeign: a multiple edge found through the key the targets store (O2M).
//   - StorageJoin: a multiple edge kept in a synthesized join table (M2M).
//
// A self-directed multiple edge without an inverse is symmetric: one join row
// {aId, bId} relates both documents in both directions. A cross-table multiple
// edge without an inverse gets a join table usable from the declaring side
// only.
//
// # Errors
//
// Errors are collected across the whole schema and returned together. Each
// is a *SchemaError or an *EdgeError; use errors.Is with ErrAmbiguousInverse,
// ErrTypeMismatch or ErrMissingInverse to tell resolution failures apart.
package graph
