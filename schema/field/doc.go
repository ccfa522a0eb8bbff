// Package field provides fluent builders for declaring the fields of a table.
//
// Field names are used verbatim as document keys:
//
//	field.String("name")       // document key: name
//	field.Int("age")           // document key: age
//	field.ID("owner", "users") // document key: owner, holds a users id
//
// # Field Types
//
//	field.String("email")
//	field.Int("count")
//	field.Float("price")
//	field.Bool("active")
//	field.Bytes("avatar")
//	field.JSON("settings")
//	field.Any("payload")
//	field.ID("authorId", "users")
//
// # Field Options
//
//	field.String("email").
//	    Unique().            // unique index named after the field
//	    Optional().          // may be absent on insert
//	    Default("unknown").  // filled in on read when absent
//	    Comment("User email")
//
// Defaults are literal values. They are never written back to the store; an
// entity read from the store carries the default for every absent field.
//
// Indexes on a single field can be declared inline:
//
//	field.String("slug").Index()
package field
