// Package index provides builders for declaring standard and search indexes.
//
//	index.Fields("channel", "author")
//	index.Fields("email").Unique()
//	index.Edges("user").Fields("kind").StorageKey("by_user_kind")
//	index.Search("search_body", "body").Filter("channel")
//
// Edge names in an index resolve to the foreign-key field of that edge when
// the schema is compiled. The default index name joins its parts with "_".
package index

import "errors"

// A Descriptor for index configuration.
type Descriptor struct {
	Unique     bool     // unique index.
	Edges      []string // edge columns; resolved to their fields on compile.
	Fields     []string // field columns.
	StorageKey string   // custom index name.
}

// Builder for indexes on fields and edges.
type Builder struct {
	desc *Descriptor
}

// Fields creates an index on the given fields.
func Fields(fields ...string) *Builder {
	return &Builder{desc: &Descriptor{Fields: fields}}
}

// Edges creates an index on the foreign-key fields of the given edges.
func Edges(edges ...string) *Builder {
	return &Builder{desc: &Descriptor{Edges: edges}}
}

// Fields appends fields to the index.
func (b *Builder) Fields(fields ...string) *Builder {
	b.desc.Fields = append(b.desc.Fields, fields...)
	return b
}

// Edges prepends edges to the index. Edge columns always come first.
func (b *Builder) Edges(edges ...string) *Builder {
	b.desc.Edges = append(b.desc.Edges, edges...)
	return b
}

// Unique sets the index to be a unique index.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// StorageKey sets the index name.
func (b *Builder) StorageKey(key string) *Builder {
	b.desc.StorageKey = key
	return b
}

// Descriptor implements the schema.Index interface by returning its descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}

// A SearchDescriptor for full text search index configuration.
type SearchDescriptor struct {
	Name         string   // index name.
	SearchField  string   // the text field searched.
	FilterFields []string // fields usable as equality filters.
	Err          error
}

// SearchBuilder for full text search indexes.
type SearchBuilder struct {
	desc *SearchDescriptor
}

// Search creates a full text search index over the given field.
func Search(name, searchField string) *SearchBuilder {
	b := &SearchBuilder{desc: &SearchDescriptor{Name: name, SearchField: searchField}}
	if name == "" || searchField == "" {
		b.desc.Err = errors.New("index: search index requires a name and a search field")
	}
	return b
}

// Filter adds equality filter fields to the search index.
func (b *SearchBuilder) Filter(fields ...string) *SearchBuilder {
	b.desc.FilterFields = append(b.desc.FilterFields, fields...)
	return b
}

// Descriptor returns the search index descriptor.
func (b *SearchBuilder) Descriptor() *SearchDescriptor {
	return b.desc
}
