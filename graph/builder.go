package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/syssam/ents/schema"
	"github.com/syssam/ents/schema/edge"
	"github.com/syssam/ents/schema/field"
)

// Option configures the graph builder.
type Option func(*Config) error

// Config holds the builder configuration.
type Config struct {
	// Logger receives debug records for synthesized tables and edges.
	Logger *slog.Logger
}

// WithLogger sets the logger of the builder.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) error {
		if l == nil {
			return errors.New("graph: logger cannot be nil")
		}
		c.Logger = l
		return nil
	}
}

// Builder collects table declarations and compiles them into a Graph.
//
//	g, err := graph.NewBuilder().
//	    Add(users, messages, groups).
//	    Build()
type Builder struct {
	config  Config
	schemas []*schema.Descriptor
	err     error
}

// NewBuilder returns a new builder configured with the given options.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{config: Config{Logger: slog.Default()}}
	for _, opt := range opts {
		if err := opt(&b.config); err != nil {
			b.err = errors.Join(b.err, err)
		}
	}
	return b
}

// Add adds table declarations to the builder.
func (b *Builder) Add(schemas ...schema.Interface) *Builder {
	for _, s := range schemas {
		b.schemas = append(b.schemas, s.Descriptor())
	}
	return b
}

// AddDescriptors adds already built table descriptors to the builder.
func (b *Builder) AddDescriptors(descs ...*schema.Descriptor) *Builder {
	b.schemas = append(b.schemas, descs...)
	return b
}

// Build compiles the collected declarations. The declarations are not
// modified, so Build may be called any number of times and always yields an
// equivalent graph. All errors found are returned together; no graph is
// returned when any error is found.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	c := newCompiler(b.config.Logger)
	return c.compile(b.schemas)
}

// Compile is a shortcut for NewBuilder().Add(schemas...).Build().
func Compile(schemas ...schema.Interface) (*Graph, error) {
	return NewBuilder().Add(schemas...).Build()
}

var nameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// checkName validates table, field, edge and index names. Names starting
// with "_" are reserved for system fields.
func checkName(name string) error {
	switch {
	case name == "":
		return errors.New("name cannot be empty")
	case strings.HasPrefix(name, "_"):
		return fmt.Errorf("name %q is reserved; names starting with '_' belong to system fields", name)
	case !nameRE.MatchString(name):
		return fmt.Errorf("invalid name %q; names must match %s", name, nameRE)
	}
	return nil
}

// compiler holds the state of a single compilation.
type compiler struct {
	log     *slog.Logger
	graph   *Graph
	decls   []declared
	intents map[string][]*intent
	status  map[edgeKey]status
	errs    []error
}

// declared pairs a table with its declaration.
type declared struct {
	table *Table
	desc  *schema.Descriptor
}

// intent is a one-sided edge declaration waiting for resolution.
type intent struct {
	table       string
	desc        *edge.Descriptor
	synthesized bool
	edge        *Edge
}

func (i *intent) key() edgeKey { return edgeKey{table: i.table, edge: i.desc.Name} }
func (i *intent) selfDirected() bool { return i.table == i.desc.To }
func (i *intent) many() bool { return i.desc.Cardinality == edge.Multiple }
func (i *intent) owning() bool { return i.desc.Cardinality == edge.Single && i.desc.Shape == edge.ShapeField }
func (i *intent) referencing() bool { return i.desc.Cardinality == edge.Single && i.desc.Shape == edge.ShapeRef }
func (i *intent) auto() bool { return i.many() && i.desc.Shape == edge.ShapeJoin }
func (i *intent) explicit() bool { return i.desc.Inverse != "" || i.desc.RefField != "" }
func (i *intent) shape() string { return i.desc.Cardinality.String() + "/" + i.desc.Shape.String() }
func (i *intent) label() string { return i.table + "." + i.desc.Name }

func newCompiler(log *slog.Logger) *compiler {
	return &compiler{
		log:     log,
		graph:   &Graph{byName: make(map[string]*Table)},
		intents: make(map[string][]*intent),
		status:  make(map[edgeKey]status),
	}
}

func (c *compiler) compile(descs []*schema.Descriptor) (*Graph, error) {
	c.collect(descs)
	if len(c.errs) > 0 {
		return nil, errors.Join(c.errs...)
	}
	c.resolve()
	if len(c.errs) > 0 {
		return nil, errors.Join(c.errs...)
	}
	c.attach()
	return c.graph, nil
}

// collect is the first phase. It registers all tables, then their fields,
// owning edge fields, indexes and edge intents. Inverse edges named by a
// self-directed edge and not declared are synthesized here.
func (c *compiler) collect(descs []*schema.Descriptor) {
	for _, d := range descs {
		if d.Err != nil {
			c.errs = append(c.errs, NewSchemaError(d.Name, "", "invalid declaration", d.Err))
			continue
		}
		if err := checkName(d.Name); err != nil {
			c.errs = append(c.errs, NewSchemaError(d.Name, "", "invalid table name", err))
			continue
		}
		if _, ok := c.graph.byName[d.Name]; ok {
			c.errs = append(c.errs, NewSchemaError(d.Name, "", "table declared more than once", nil))
			continue
		}
		t := &Table{
			Name:     d.Name,
			Deletion: d.Deletion,
			fields:   make(map[string]*Field),
			edges:    make(map[string]*Edge),
		}
		c.graph.byName[t.Name] = t
		c.graph.tables = append(c.graph.tables, t)
		c.decls = append(c.decls, declared{table: t, desc: d})
	}
	for _, d := range c.decls {
		c.fields(d.table, d.desc)
		c.edges(d.table, d.desc)
		c.indexes(d.table, d.desc)
		c.searchIndexes(d.table, d.desc)
	}
}

func (c *compiler) fields(t *Table, d *schema.Descriptor) {
	for _, fd := range d.Fields {
		if err := checkName(fd.Name); err != nil {
			c.errs = append(c.errs, NewSchemaError(t.Name, fd.Name, "invalid field name", err))
			continue
		}
		switch _, known := c.graph.byName[fd.Table]; {
		case t.hasField(fd.Name):
			c.errs = append(c.errs, NewSchemaError(t.Name, fd.Name, "field declared more than once", nil))
		case fd.Type == field.TypeInvalid:
			c.errs = append(c.errs, NewSchemaError(t.Name, fd.Name, "missing field type", nil))
		case fd.Type == field.TypeID && !known:
			c.errs = append(c.errs, NewSchemaError(t.Name, fd.Name, fmt.Sprintf("id field references unknown table %q", fd.Table), nil))
		default:
			t.addField(&Field{
				Name:        fd.Name,
				Type:        fd.Type,
				Table:       fd.Table,
				Optional:    fd.Optional,
				Default:     fd.Default,
				HasDefault:  fd.HasDefault,
				Unique:      fd.Unique,
				UserDefined: true,
			})
			if fd.Indexed {
				t.Indexes = append(t.Indexes, &Index{Name: fd.Name, Fields: []string{fd.Name}, Unique: fd.Unique})
			}
		}
	}
	if d.Deletion != schema.SoftDelete {
		return
	}
	switch f, ok := t.Field(schema.DeletionTimeField); {
	case !ok:
		t.addField(&Field{Name: schema.DeletionTimeField, Type: field.TypeFloat, Optional: true})
	case f.Type != field.TypeFloat || !f.Optional:
		c.errs = append(c.errs, NewSchemaError(t.Name, f.Name, "soft deletion requires an optional float field", nil))
	}
}

func (c *compiler) edges(t *Table, d *schema.Descriptor) {
	seen := make(map[string]bool, len(d.Edges))
	for _, ed := range d.Edges {
		if err := checkName(ed.Name); err != nil {
			c.errs = append(c.errs, &EdgeError{From: t.Name, Edge: ed.Name, Message: err.Error()})
			continue
		}
		if seen[ed.Name] {
			c.errs = append(c.errs, &EdgeError{From: t.Name, Edge: ed.Name, Message: "edge declared more than once"})
			continue
		}
		seen[ed.Name] = true
		if _, ok := c.graph.byName[ed.To]; !ok {
			c.errs = append(c.errs, &EdgeError{From: t.Name, To: ed.To, Edge: ed.Name, Message: fmt.Sprintf("unknown target table %q", ed.To)})
			continue
		}
		in := &intent{table: t.Name, desc: ed}
		if in.owning() {
			if err := checkName(ed.Field); err != nil {
				c.errs = append(c.errs, NewSchemaError(t.Name, ed.Field, fmt.Sprintf("invalid field of edge %q", ed.Name), err))
				continue
			}
			if t.hasField(ed.Field) {
				c.errs = append(c.errs, NewSchemaError(t.Name, ed.Field, fmt.Sprintf("field of edge %q collides with a declared field", ed.Name), nil))
				continue
			}
			t.addField(&Field{Name: ed.Field, Type: field.TypeID, Table: ed.To, Optional: ed.Optional, Edge: ed.Name})
			t.Indexes = append(t.Indexes, &Index{Name: ed.Field, Fields: []string{ed.Field}})
		}
		c.intents[t.Name] = append(c.intents[t.Name], in)
	}
	// A self-directed edge naming an undeclared inverse declares both roles.
	for _, in := range slices.Clone(c.intents[t.Name]) {
		inv := in.desc.Inverse
		if !in.selfDirected() || !in.many() || inv == "" || seen[inv] {
			continue
		}
		if err := checkName(inv); err != nil {
			c.errs = append(c.errs, &EdgeError{From: t.Name, To: t.Name, Edge: in.desc.Name, Message: "invalid inverse name: " + err.Error()})
			continue
		}
		seen[inv] = true
		c.intents[t.Name] = append(c.intents[t.Name], &intent{
			table: t.Name,
			desc: &edge.Descriptor{
				Name:        inv,
				To:          t.Name,
				Cardinality: edge.Multiple,
				Shape:       edge.ShapeJoin,
				Inverse:     in.desc.Name,
			},
			synthesized: true,
		})
	}
}

func (c *compiler) indexes(t *Table, d *schema.Descriptor) {
	for _, id := range d.Indexes {
		var (
			fields []string
			parts  []string
			failed bool
		)
		for _, name := range id.Edges {
			in, ok := c.intent(t.Name, name)
			if !ok || !in.owning() {
				c.errs = append(c.errs, NewSchemaError(t.Name, name, "index edges must be single edges that store their key", nil))
				failed = true
				continue
			}
			fields = append(fields, in.desc.Field)
			parts = append(parts, name)
		}
		for _, name := range id.Fields {
			if !t.hasField(name) && name != CreationTimeField {
				c.errs = append(c.errs, NewSchemaError(t.Name, name, "index references unknown field", nil))
				failed = true
				continue
			}
			fields = append(fields, name)
			parts = append(parts, name)
		}
		if failed {
			continue
		}
		if len(fields) == 0 {
			c.errs = append(c.errs, NewSchemaError(t.Name, id.StorageKey, "index without fields", nil))
			continue
		}
		name := id.StorageKey
		if name == "" {
			name = strings.Join(parts, "_")
		}
		if err := c.indexName(t, name); err != nil {
			c.errs = append(c.errs, err)
			continue
		}
		t.Indexes = append(t.Indexes, &Index{Name: name, Fields: fields, Unique: id.Unique})
	}
}

func (c *compiler) searchIndexes(t *Table, d *schema.Descriptor) {
	for _, sd := range d.SearchIndexes {
		if err := c.indexName(t, sd.Name); err != nil {
			c.errs = append(c.errs, err)
			continue
		}
		f, ok := t.Field(sd.SearchField)
		if !ok || f.Type != field.TypeString {
			c.errs = append(c.errs, NewSchemaError(t.Name, sd.Name, fmt.Sprintf("search field %q must be a declared string field", sd.SearchField), nil))
			continue
		}
		var missing []string
		for _, name := range sd.FilterFields {
			if !t.hasField(name) {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			c.errs = append(c.errs, NewSchemaError(t.Name, sd.Name, "unknown filter fields: "+strings.Join(missing, ", "), nil))
			continue
		}
		t.SearchIndexes = append(t.SearchIndexes, &SearchIndex{
			Name:         sd.Name,
			SearchField:  sd.SearchField,
			FilterFields: slices.Clone(sd.FilterFields),
		})
	}
}

func (c *compiler) indexName(t *Table, name string) error {
	if err := checkName(name); err != nil {
		return NewSchemaError(t.Name, name, "invalid index name", err)
	}
	if name == ByID || name == ByCreationTime {
		return NewSchemaError(t.Name, name, "index name is reserved for a built-in index", nil)
	}
	if _, ok := t.Index(name); ok {
		return NewSchemaError(t.Name, name, "index declared more than once", nil)
	}
	if _, ok := t.SearchIndex(name); ok {
		return NewSchemaError(t.Name, name, "index declared more than once", nil)
	}
	return nil
}

func (c *compiler) intent(table, name string) (*intent, bool) {
	for _, in := range c.intents[table] {
		if in.desc.Name == name {
			return in, true
		}
	}
	return nil, false
}

// attach adds the resolved edges to their tables in declaration order and
// sorts the tables by name.
func (c *compiler) attach() {
	for _, d := range c.decls {
		for _, in := range c.intents[d.table.Name] {
			d.table.addEdge(in.edge)
		}
	}
	slices.SortFunc(c.graph.tables, func(a, b *Table) int {
		return strings.Compare(a.Name, b.Name)
	})
}
