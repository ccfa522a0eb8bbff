// Package load reads table declarations from YAML schema files.
//
// A schema file lists tables with the same vocabulary as the schema builders:
//
//	tables:
//	  - name: messages
//	    fields:
//	      - {name: text, type: string}
//	    edges:
//	      - {name: user, kind: one}
//	    search_indexes:
//	      - {name: search_text, field: text}
//
// Loaded tables implement schema.Interface and can be passed to the graph
// builder directly.
package load

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/syssam/ents/schema"
	"github.com/syssam/ents/schema/edge"
	"github.com/syssam/ents/schema/field"
	"github.com/syssam/ents/schema/index"
)

// Schema represents a loaded schema file.
type Schema struct {
	Tables []*Table `yaml:"tables" json:"tables"`
}

// Table represents a table declaration loaded from a schema file.
type Table struct {
	Name          string         `yaml:"name" json:"name"`
	Deletion      string         `yaml:"deletion,omitempty" json:"deletion,omitempty"`
	Fields        []*Field       `yaml:"fields,omitempty" json:"fields,omitempty"`
	Edges         []*Edge        `yaml:"edges,omitempty" json:"edges,omitempty"`
	Indexes       []*Index       `yaml:"indexes,omitempty" json:"indexes,omitempty"`
	SearchIndexes []*SearchIndex `yaml:"search_indexes,omitempty" json:"search_indexes,omitempty"`
}

// Field represents a field declaration loaded from a schema file.
type Field struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Table    string `yaml:"table,omitempty" json:"table,omitempty"`
	Optional bool   `yaml:"optional,omitempty" json:"optional,omitempty"`
	Unique   bool   `yaml:"unique,omitempty" json:"unique,omitempty"`
	Index    bool   `yaml:"index,omitempty" json:"index,omitempty"`
	Default  any    `yaml:"default,omitempty" json:"default,omitempty"`
	Comment  string `yaml:"comment,omitempty" json:"comment,omitempty"`
}

// Edge represents an edge declaration loaded from a schema file.
type Edge struct {
	Name       string      `yaml:"name" json:"name"`
	Kind       string      `yaml:"kind" json:"kind"`
	To         string      `yaml:"to,omitempty" json:"to,omitempty"`
	Field      string      `yaml:"field,omitempty" json:"field,omitempty"`
	Ref        bool        `yaml:"ref,omitempty" json:"ref,omitempty"`
	RefField   string      `yaml:"ref_field,omitempty" json:"ref_field,omitempty"`
	Inverse    string      `yaml:"inverse,omitempty" json:"inverse,omitempty"`
	Optional   bool        `yaml:"optional,omitempty" json:"optional,omitempty"`
	StorageKey *StorageKey `yaml:"storage_key,omitempty" json:"storage_key,omitempty"`
	Comment    string      `yaml:"comment,omitempty" json:"comment,omitempty"`
}

// StorageKey holds the join table configuration of an edge.
type StorageKey struct {
	Table   string   `yaml:"table,omitempty" json:"table,omitempty"`
	Columns []string `yaml:"columns,omitempty" json:"columns,omitempty"`
}

// Index represents an index declaration loaded from a schema file.
type Index struct {
	Unique     bool     `yaml:"unique,omitempty" json:"unique,omitempty"`
	Edges      []string `yaml:"edges,omitempty" json:"edges,omitempty"`
	Fields     []string `yaml:"fields,omitempty" json:"fields,omitempty"`
	StorageKey string   `yaml:"storage_key,omitempty" json:"storage_key,omitempty"`
}

// SearchIndex represents a search index declaration loaded from a schema file.
type SearchIndex struct {
	Name   string   `yaml:"name" json:"name"`
	Field  string   `yaml:"field" json:"field"`
	Filter []string `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// Edge kinds.
const (
	KindOne  = "one"
	KindMany = "many"
)

// Load reads and decodes the schema file at path.
func Load(path string) (*Schema, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: read schema: %w", err)
	}
	s, err := UnmarshalSchema(buf)
	if err != nil {
		return nil, fmt.Errorf("load: %s: %w", path, err)
	}
	return s, nil
}

// UnmarshalSchema decodes the given buffer to a loaded schema.
func UnmarshalSchema(buf []byte) (*Schema, error) {
	s := &Schema{}
	if err := yaml.Unmarshal(buf, s); err != nil {
		return nil, err
	}
	for _, t := range s.Tables {
		for _, f := range t.Fields {
			if err := f.defaults(); err != nil {
				return nil, fmt.Errorf("table %q: %w", t.Name, err)
			}
		}
	}
	return s, nil
}

// MarshalSchema encodes table declarations into a schema file.
func MarshalSchema(schemas ...schema.Interface) ([]byte, error) {
	s := &Schema{}
	for _, si := range schemas {
		d, err := safeDescriptor(si)
		if err != nil {
			return nil, err
		}
		t, err := NewTable(d)
		if err != nil {
			return nil, err
		}
		s.Tables = append(s.Tables, t)
	}
	return yaml.Marshal(s)
}

// Interfaces returns the loaded tables as schema declarations.
func (s *Schema) Interfaces() []schema.Interface {
	out := make([]schema.Interface, len(s.Tables))
	for i, t := range s.Tables {
		out[i] = t
	}
	return out
}

// NewTable creates a loaded table from a table descriptor.
// It returns an error if the descriptor contains an error.
func NewTable(d *schema.Descriptor) (*Table, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	t := &Table{Name: d.Name}
	if d.Deletion != schema.HardDelete {
		t.Deletion = d.Deletion.String()
	}
	for _, fd := range d.Fields {
		t.Fields = append(t.Fields, NewField(fd))
	}
	for _, ed := range d.Edges {
		t.Edges = append(t.Edges, NewEdge(ed))
	}
	for _, idx := range d.Indexes {
		t.Indexes = append(t.Indexes, &Index{
			Unique:     idx.Unique,
			Edges:      idx.Edges,
			Fields:     idx.Fields,
			StorageKey: idx.StorageKey,
		})
	}
	for _, sd := range d.SearchIndexes {
		t.SearchIndexes = append(t.SearchIndexes, &SearchIndex{Name: sd.Name, Field: sd.SearchField, Filter: sd.FilterFields})
	}
	return t, nil
}

// NewField creates a loaded field from field descriptor.
func NewField(fd *field.Descriptor) *Field {
	f := &Field{
		Name:     fd.Name,
		Type:     fd.Type.String(),
		Table:    fd.Table,
		Optional: fd.Optional,
		Unique:   fd.Unique,
		Index:    fd.Indexed && !fd.Unique,
		Comment:  fd.Comment,
	}
	if fd.HasDefault {
		f.Default = fd.Default
	}
	return f
}

// NewEdge creates a loaded edge from edge descriptor.
func NewEdge(ed *edge.Descriptor) *Edge {
	e := &Edge{
		Name:     ed.Name,
		Kind:     KindMany,
		To:       ed.To,
		Ref:      ed.Shape == edge.ShapeRef && ed.RefField == "",
		RefField: ed.RefField,
		Inverse:  ed.Inverse,
		Optional: ed.Optional,
		Comment:  ed.Comment,
	}
	if ed.Cardinality == edge.Single {
		e.Kind = KindOne
		e.Field = ed.Field
	}
	if k := ed.StorageKey; k != nil {
		e.StorageKey = &StorageKey{Table: k.Table, Columns: k.Columns}
	}
	return e
}

// Descriptor implements the schema.Interface interface.
func (t *Table) Descriptor() *schema.Descriptor {
	b := schema.Table(t.Name)
	for _, f := range t.Fields {
		b.Fields(f)
	}
	for _, e := range t.Edges {
		b.Edges(e)
	}
	for _, idx := range t.Indexes {
		b.Indexes(idx)
	}
	for _, sd := range t.SearchIndexes {
		b.SearchIndexes(sd)
	}
	d, err := schema.ParseDeletion(t.Deletion)
	if err != nil {
		desc := b.Descriptor()
		desc.Err = fmt.Errorf("table %q: %w", t.Name, err)
		return desc
	}
	return b.Deletion(d).Descriptor()
}

var constructors = map[field.Type]func(string) *field.Builder{
	field.TypeString: field.String,
	field.TypeInt:    field.Int,
	field.TypeFloat:  field.Float,
	field.TypeBool:   field.Bool,
	field.TypeBytes:  field.Bytes,
	field.TypeJSON:   field.JSON,
	field.TypeAny:    field.Any,
}

// Descriptor implements the schema.Field interface.
func (f *Field) Descriptor() *field.Descriptor {
	typ, err := field.ParseType(f.Type)
	if err != nil {
		return &field.Descriptor{Name: f.Name, Err: fmt.Errorf("field %q: %w", f.Name, err)}
	}
	var b *field.Builder
	if typ == field.TypeID {
		b = field.ID(f.Name, f.Table)
	} else {
		b = constructors[typ](f.Name)
	}
	if f.Optional {
		b.Optional()
	}
	if f.Unique {
		b.Unique()
	}
	if f.Index {
		b.Index()
	}
	if f.Default != nil {
		b.Default(f.Default)
	}
	if f.Comment != "" {
		b.Comment(f.Comment)
	}
	return b.Descriptor()
}

// Descriptor implements the schema.Edge interface.
func (e *Edge) Descriptor() *edge.Descriptor {
	switch e.Kind {
	case KindOne:
		if e.Inverse != "" || e.StorageKey != nil {
			return &edge.Descriptor{Name: e.Name, Err: fmt.Errorf("edge %q: inverse and storage_key apply to many edges only", e.Name)}
		}
		b := edge.One(e.Name)
		if e.To != "" {
			b.To(e.To)
		}
		if e.Field != "" {
			b.Field(e.Field)
		}
		if e.Optional {
			b.Optional()
		}
		switch {
		case e.RefField != "":
			b.RefField(e.RefField)
		case e.Ref:
			b.Ref()
		}
		return b.Comment(e.Comment).Descriptor()
	case KindMany:
		if e.Field != "" || e.Optional {
			return &edge.Descriptor{Name: e.Name, Err: fmt.Errorf("edge %q: field and optional apply to one edges only", e.Name)}
		}
		b := edge.Many(e.Name)
		if e.To != "" {
			b.To(e.To)
		}
		switch {
		case e.RefField != "":
			b.RefField(e.RefField)
		case e.Ref:
			b.Ref()
		}
		if e.Inverse != "" {
			b.Inverse(e.Inverse)
		}
		if k := e.StorageKey; k != nil {
			var opts []edge.StorageOption
			if k.Table != "" {
				opts = append(opts, edge.Table(k.Table))
			}
			if len(k.Columns) > 0 {
				opts = append(opts, func(sk *edge.StorageKey) { sk.Columns = k.Columns })
			}
			b.StorageKey(opts...)
		}
		return b.Comment(e.Comment).Descriptor()
	}
	return &edge.Descriptor{Name: e.Name, Err: fmt.Errorf("edge %q: unknown kind %q; use %q or %q", e.Name, e.Kind, KindOne, KindMany)}
}

// Descriptor implements the schema.Index interface.
func (i *Index) Descriptor() *index.Descriptor {
	b := index.Edges(i.Edges...).Fields(i.Fields...)
	if i.Unique {
		b.Unique()
	}
	if i.StorageKey != "" {
		b.StorageKey(i.StorageKey)
	}
	return b.Descriptor()
}

// Descriptor implements the schema.SearchIndex interface.
func (s *SearchIndex) Descriptor() *index.SearchDescriptor {
	return index.Search(s.Name, s.Field).Filter(s.Filter...).Descriptor()
}

// defaults normalizes decoded default values to the field type.
func (f *Field) defaults() error {
	if f.Default == nil {
		return nil
	}
	switch f.Type {
	case field.TypeInt.String():
		switch n := f.Default.(type) {
		case int:
			f.Default = int64(n)
		case float64:
			if n != float64(int64(n)) {
				return fmt.Errorf("unexpected default value %v for int field %q", n, f.Name)
			}
			f.Default = int64(n)
		}
	case field.TypeFloat.String():
		if n, ok := f.Default.(int); ok {
			f.Default = float64(n)
		}
	}
	return nil
}

// safeDescriptor wraps the schema.Descriptor method with recover to ensure no panics in marshaling.
func safeDescriptor(s schema.Interface) (d *schema.Descriptor, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("%T.Descriptor panics: %v", s, v)
			d = nil
		}
	}()
	return s.Descriptor(), nil
}
