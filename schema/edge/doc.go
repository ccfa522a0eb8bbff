// Package edge provides fluent builders for declaring relationships between tables.
//
// Every declaration is one-sided. The schema compiler pairs declarations that
// point at each other, infers what was left implicit and picks the storage
// for each pair: a foreign-key field or a join table.
//
// # Single Edges
//
//	// messages stores userId; the target table is "users".
//	edge.One("user")
//
//	// users has at most one profile; profiles stores userId.
//	edge.One("profile").Ref()
//
// # Multiple Edges
//
//	// One-to-many: users -> messages.userId (messages declares edge.One("user")).
//	edge.Many("messages")
//
//	// Many-to-many: a join table is synthesized for users.groups <-> groups.members.
//	edge.Many("groups")
//
// # Self-Directed Edges
//
//	// Symmetric: one join row connects both users.
//	edge.Many("friends").To("users")
//
//	// Asymmetric: declares both "followees" and "followers".
//	edge.Many("followees").To("users").Inverse("followers")
//
// # Join Table Naming
//
//	edge.Many("groups").StorageKey(
//	    edge.Table("memberships"),
//	    edge.Columns("memberId", "groupId"),
//	)
package edge
