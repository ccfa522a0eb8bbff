package graph

import (
	"fmt"
	"slices"

	"github.com/go-openapi/inflect"

	"github.com/syssam/ents/schema"
	"github.com/syssam/ents/schema/field"
)

var rules = inflect.NewDefaultRuleset()

// System fields present on every document.
const (
	IDField           = "_id"
	CreationTimeField = "_creationTime"
)

// Built-in indexes available on every table.
const (
	ByID           = "by_id"
	ByCreationTime = "by_creation_time"
)

// The following types hold the compiled schema. They are created by the
// Builder and must be treated as read-only by callers.
type (
	// Graph holds the compiled tables and their resolved edges.
	Graph struct {
		tables []*Table
		byName map[string]*Table
	}

	// Table represents one table in the graph, its fields, indexes and edges.
	Table struct {
		// Name holds the table name.
		Name string
		// Fields holds the declared fields plus the synthesized foreign-key
		// fields of owning edges, in declaration order.
		Fields []*Field
		fields map[string]*Field
		// Indexes holds the standard indexes of the table.
		Indexes []*Index
		// SearchIndexes holds the full text search indexes of the table.
		SearchIndexes []*SearchIndex
		// Edges holds the resolved edges of the table.
		Edges []*Edge
		edges map[string]*Edge
		// Deletion is the deletion behavior of the table.
		Deletion schema.Deletion
		// Join indicates that the table was synthesized for a many-to-many edge.
		Join bool
	}

	// Field holds the information of a table field.
	Field struct {
		// Name of the field, used as the document key.
		Name string
		// Type of the field value.
		Type field.Type
		// Table referenced by TypeID fields.
		Table string
		// Optional indicates the field may be absent.
		Optional bool
		// Default holds the default value when HasDefault is set.
		Default    any
		HasDefault bool
		// Unique indicates a unique index on this field.
		Unique bool
		// Edge names the owning edge backed by this field, if any.
		Edge string
		// UserDefined indicates that this field was declared explicitly and
		// was not synthesized for an edge.
		UserDefined bool
	}

	// Index represents a standard index. Single-field indexes created for
	// fields and edges are named after the field.
	Index struct {
		Name   string
		Fields []string
		Unique bool
	}

	// SearchIndex represents a full text search index.
	SearchIndex struct {
		Name         string
		SearchField  string
		FilterFields []string
	}

	// Edge of the graph between two tables, fully resolved.
	Edge struct {
		// Name holds the name of the edge.
		Name string
		// Owner holds the table declaring the edge.
		Owner *Table
		// Type holds a reference to the table this edge points to.
		Type *Table
		// Unique indicates that the edge points at zero or one document.
		Unique bool
		// Optional indicates that the foreign key of an owning edge may be absent.
		Optional bool
		// Storage is the resolved storage shape of the edge.
		Storage Storage
		// Field holds the foreign-key field. For StorageField edges it lives
		// on Owner; for StorageRef and StorageForeign edges it lives on Type.
		Field string
		// Inverse holds the name of the paired edge on Type, if any.
		Inverse string
		// Ref points to the paired edge, nil for one-directional edges.
		Ref *Edge
		// Bidi indicates a symmetric self-directed edge where a single join
		// row connects both documents in both directions:
		//
		//	edge.Many("friends").To("users")
		//
		Bidi bool
		// Synthesized indicates the edge was declared implicitly through the
		// Inverse option of its partner.
		Synthesized bool
		// Rel holds the relation info of the edge.
		Rel Relation
		// Comment of the edge.
		Comment string
	}

	// Relation holds the storage information of an edge.
	Relation struct {
		// Type holds the relation type of the edge.
		Type Rel
		// Table holds the table storing the relation. For StorageField edges
		// it is the owner, for StorageRef and StorageForeign edges the target,
		// and for join edges the join table.
		Table string
		// Columns holds the relation field(s). Non-join edges have one
		// element, the foreign key. Join edges have two, oriented for this
		// edge: (this side, other side).
		Columns []string
	}
)

// Storage is the resolved storage shape of an edge.
type Storage uint8

// Storage shapes.
const (
	StorageUnknown Storage = iota
	// StorageField is a single edge whose foreign key lives on the owner.
	StorageField
	// StorageRef is a single edge resolved by a reverse lookup of the
	// target's foreign key.
	StorageRef
	// StorageForeign is a multiple edge resolved by an indexed range over
	// the target's foreign key.
	StorageForeign
	// StorageJoin is a multiple edge kept in a join table.
	StorageJoin
)

// String returns the storage name.
func (s Storage) String() string {
	switch s {
	case StorageField:
		return "field"
	case StorageRef:
		return "ref"
	case StorageForeign:
		return "foreign"
	case StorageJoin:
		return "join"
	}
	return "unknown"
}

// Rel is a relation type of an edge.
type Rel int

// Relation types.
const (
	Unk Rel = iota // Unknown.
	O2O            // One to one / has one.
	O2M            // One to many / has many.
	M2O            // Many to one (inverse perspective for O2M).
	M2M            // Many to many.
)

// String returns the relation name.
func (r Rel) String() string {
	s := "Unknown"
	switch r {
	case O2O:
		s = "O2O"
	case O2M:
		s = "O2M"
	case M2O:
		s = "M2O"
	case M2M:
		s = "M2M"
	}
	return s
}

// =============================================================================
// Graph methods
// =============================================================================

// Tables returns all tables of the graph sorted by name, join tables included.
func (g *Graph) Tables() []*Table {
	return slices.Clone(g.tables)
}

// Table returns the table with the given name.
func (g *Graph) Table(name string) (*Table, bool) {
	t, ok := g.byName[name]
	return t, ok
}

// Edge returns the resolved edge of the given table.
func (g *Graph) Edge(table, name string) (*Edge, bool) {
	t, ok := g.byName[table]
	if !ok {
		return nil, false
	}
	return t.Edge(name)
}

// JoinTables returns the synthesized join tables.
func (g *Graph) JoinTables() []*Table {
	var tables []*Table
	for _, t := range g.tables {
		if t.Join {
			tables = append(tables, t)
		}
	}
	return tables
}

// IndexFields returns the fields of the named index of a table. It covers the
// built-in by_id and by_creation_time indexes. Implements the index lookup
// stores use for ordering scans.
func (g *Graph) IndexFields(table, name string) ([]string, bool) {
	t, ok := g.byName[table]
	if !ok {
		return nil, false
	}
	switch name {
	case ByID:
		return []string{IDField}, true
	case ByCreationTime:
		return []string{CreationTimeField}, true
	}
	idx, ok := t.Index(name)
	if !ok {
		return nil, false
	}
	return slices.Clone(idx.Fields), true
}

// SearchField returns the searched field of the named search index of a table.
func (g *Graph) SearchField(table, name string) (string, bool) {
	t, ok := g.byName[table]
	if !ok {
		return "", false
	}
	idx, ok := t.SearchIndex(name)
	if !ok {
		return "", false
	}
	return idx.SearchField, true
}

// =============================================================================
// Table methods
// =============================================================================

// Field returns the field with the given name.
func (t *Table) Field(name string) (*Field, bool) {
	f, ok := t.fields[name]
	return f, ok
}

// Edge returns the edge with the given name.
func (t *Table) Edge(name string) (*Edge, bool) {
	e, ok := t.edges[name]
	return e, ok
}

// Index returns the index with the given name.
func (t *Table) Index(name string) (*Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return nil, false
}

// SearchIndex returns the search index with the given name.
func (t *Table) SearchIndex(name string) (*SearchIndex, bool) {
	for _, idx := range t.SearchIndexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return nil, false
}

// Defaults returns the fields that declare a default value.
func (t *Table) Defaults() []*Field {
	var fields []*Field
	for _, f := range t.Fields {
		if f.HasDefault {
			fields = append(fields, f)
		}
	}
	return fields
}

// FKEdges returns all edges whose foreign key resides on the table.
func (t *Table) FKEdges() (edges []*Edge) {
	for _, e := range t.Edges {
		if e.OwnFK() {
			edges = append(edges, e)
		}
	}
	return
}

// hasField reports if the table has a field with the given name.
func (t *Table) hasField(name string) bool {
	_, ok := t.fields[name]
	return ok
}

func (t *Table) addField(f *Field) {
	t.Fields = append(t.Fields, f)
	t.fields[f.Name] = f
}

func (t *Table) addEdge(e *Edge) {
	t.Edges = append(t.Edges, e)
	t.edges[e.Name] = e
}

// =============================================================================
// Edge methods
// =============================================================================

// Label returns the label of the edge (table.edge).
func (e Edge) Label() string {
	return fmt.Sprintf("%s.%s", e.Owner.Name, e.Name)
}

// M2M indicates if this edge is M2M edge.
func (e Edge) M2M() bool { return e.Rel.Type == M2M }

// M2O indicates if this edge is M2O edge.
func (e Edge) M2O() bool { return e.Rel.Type == M2O }

// O2M indicates if this edge is O2M edge.
func (e Edge) O2M() bool { return e.Rel.Type == O2M }

// O2O indicates if this edge is O2O edge.
func (e Edge) O2O() bool { return e.Rel.Type == O2O }

// SelfDirected indicates that the edge points at its own table.
func (e Edge) SelfDirected() bool { return e.Owner == e.Type }

// OneSided indicates a join edge declared without any inverse. Only the
// declaring direction can be traversed.
func (e Edge) OneSided() bool { return e.Storage == StorageJoin && e.Ref == nil && !e.Bidi }

// OwnFK indicates if the foreign key of this edge resides in the owner table.
func (e Edge) OwnFK() bool { return e.Storage == StorageField }

// JoinFields returns the join table fields holding this side's id and the
// other side's id. It fails for non-join edges.
func (e Edge) JoinFields() (this, other string, err error) {
	if e.Storage != StorageJoin || len(e.Rel.Columns) != 2 {
		return "", "", fmt.Errorf("edge %q of table %q is not a join edge", e.Name, e.Owner.Name)
	}
	return e.Rel.Columns[0], e.Rel.Columns[1], nil
}
