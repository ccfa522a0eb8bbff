// Package ents is an entity and edge layer over a document store.
//
// Tables, fields, indexes and edges are declared with the schema packages
// and compiled into a graph by package graph. The graph resolves every
// edge into a storage shape: a foreign key on the declaring table, a
// reverse lookup of the key the target stores, or rows of a synthesized
// join table. A Client binds a graph to a store.Store and exposes lazy,
// chainable reads and validated writes:
//
//	g, err := graph.Compile(
//	    schema.Table("users").
//	        Fields(field.String("name")).
//	        Edges(edge.Many("messages"), edge.Many("friends").To("users")),
//	    schema.Table("messages").
//	        Fields(field.String("text")).
//	        Edges(edge.One("user")),
//	)
//	client, err := ents.NewClient(g, memstore)
//
//	users := client.Table("users")
//	user, err := users.GetOrFail(id).Resolve(ctx)
//	latest, err := user.Many("messages").Order(store.Desc).Take(5).All(ctx)
//	author, err := latest[0].OneOrFail("user").Resolve(ctx)
//
// Chains read nothing until a terminal method runs: All, Docs, Count and
// Paginate on queries, Resolve, Doc and ID on singles. A chain rooted at a
// missing document resolves to nil without reading the store, or to a
// NotFoundError when it was built with an OrFail method.
package ents
