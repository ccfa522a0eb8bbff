package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/ents/schema/edge"
	"github.com/syssam/ents/schema/field"
)

// status of an edge intent in the resolution table.
type status uint8

const (
	pending status = iota
	resolved
	failed
)

// edgeKey identifies an edge intent in the resolution table.
type edgeKey struct {
	table string
	edge  string
}

// resolve is the second phase. Intents are visited in a fixed order: tables
// by name, edges in declaration order. Intents that name their inverse go
// first, then referencing intents, then the rest, so that explicit pairings
// are settled before inference looks at the remaining candidates. Pairing
// resolves both sides at once and the partner is skipped when visited.
func (c *compiler) resolve() {
	tables := slices.Clone(c.graph.tables)
	slices.SortFunc(tables, func(a, b *Table) int {
		return strings.Compare(a.Name, b.Name)
	})
	passes := []func(*intent) bool{
		(*intent).explicit,
		func(in *intent) bool { return in.desc.Shape == edge.ShapeRef },
		(*intent).many,
	}
	for _, match := range passes {
		for _, t := range tables {
			for _, in := range c.intents[t.Name] {
				if c.status[in.key()] != pending || in.owning() || !match(in) {
					continue
				}
				c.resolveIntent(in)
			}
		}
	}
	for _, t := range tables {
		c.symmetric(t)
	}
	// Owning edges nobody paired with stay one-directional.
	for _, t := range tables {
		for _, in := range c.intents[t.Name] {
			if c.status[in.key()] != pending {
				continue
			}
			if !in.owning() {
				c.fail(in, &EdgeError{From: in.table, To: in.desc.To, Edge: in.desc.Name, Message: "edge could not be resolved"})
				continue
			}
			c.fieldEdge(in)
			c.status[in.key()] = resolved
		}
	}
}

// candidates returns the pending edges of the target table that point back
// at the table of in. Self-directed edges only pair through an explicit
// inverse or a referencing hint.
func (c *compiler) candidates(in *intent) []*intent {
	if in.selfDirected() && !in.explicit() && in.desc.Shape != edge.ShapeRef {
		return nil
	}
	var out []*intent
	for _, other := range c.intents[in.desc.To] {
		switch {
		case other == in, other.desc.To != in.table:
		case c.status[other.key()] != pending:
		case other.desc.Inverse != "" && other.desc.Inverse != in.desc.Name:
		default:
			out = append(out, other)
		}
	}
	return out
}

// compatible reports whether the two intents form a valid pair.
func compatible(in, other *intent) bool {
	switch {
	case in.referencing():
		return other.owning()
	case in.auto():
		return other.owning() || other.auto()
	case in.many():
		return other.owning()
	}
	return false
}

func (c *compiler) resolveIntent(in *intent) {
	raw := c.candidates(in)
	switch {
	case in.desc.Inverse != "":
		raw = slices.DeleteFunc(raw, func(other *intent) bool { return other.desc.Name != in.desc.Inverse })
		if len(raw) == 0 {
			c.fail(in, c.edgeError(in, ErrMissingInverse, fmt.Sprintf("inverse edge %q is not declared on %q or is paired with another edge", in.desc.Inverse, in.desc.To)))
			return
		}
	case in.desc.RefField != "":
		raw = slices.DeleteFunc(raw, func(other *intent) bool { return !other.owning() || other.desc.Field != in.desc.RefField })
		if len(raw) == 0 {
			c.fail(in, c.edgeError(in, ErrMissingInverse, fmt.Sprintf("no single edge of %q stores field %q", in.desc.To, in.desc.RefField)))
			return
		}
	}
	if len(raw) == 1 && !compatible(in, raw[0]) {
		c.fail(in, c.edgeError(in, ErrTypeMismatch, fmt.Sprintf("%s edge cannot pair with %s edge %s", in.shape(), raw[0].shape(), raw[0].label())))
		return
	}
	cands := slices.DeleteFunc(raw, func(other *intent) bool { return !compatible(in, other) })
	switch len(cands) {
	case 0:
		switch {
		case in.auto() && in.selfDirected():
			// Left for the symmetric pass.
		case in.auto():
			c.join(in, nil)
		default:
			c.fail(in, c.edgeError(in, ErrMissingInverse, fmt.Sprintf("%s edge requires a single edge on %q that stores a key back to %q", in.shape(), in.desc.To, in.table)))
		}
	case 1:
		c.pair(in, cands[0])
	default:
		err := c.edgeError(in, ErrAmbiguousInverse, "more than one edge qualifies as inverse; name it with Inverse or RefField")
		for _, other := range cands {
			err.Candidates = append(err.Candidates, other.label())
			c.status[other.key()] = failed
		}
		c.fail(in, err)
	}
}

// symmetric resolves the self-directed multiple edges of t left without an
// inverse. A single such edge is symmetric; more than one is an error since
// their roles cannot be told apart.
func (c *compiler) symmetric(t *Table) {
	var left []*intent
	for _, in := range c.intents[t.Name] {
		if c.status[in.key()] == pending && in.auto() && in.selfDirected() {
			left = append(left, in)
		}
	}
	switch len(left) {
	case 0:
	case 1:
		c.join(left[0], left[0])
	default:
		names := make([]string, len(left))
		for i, in := range left {
			names[i] = in.label()
		}
		for _, in := range left {
			err := c.edgeError(in, ErrMissingInverse, "self-directed edges must name their inverse when a table declares more than one")
			err.Candidates = names
			c.fail(in, err)
		}
	}
}

// pair resolves in and its inverse.
func (c *compiler) pair(in, other *intent) {
	switch {
	case in.referencing():
		fe := c.fieldEdge(other)
		re := c.foreignEdge(in, other, StorageRef)
		fe.Rel.Type = O2O
		f, _ := fe.Owner.Field(fe.Field)
		f.Unique = true
		if idx, ok := fe.Owner.Index(fe.Field); ok {
			idx.Unique = true
		}
		link(fe, re)
	case other.owning():
		link(c.fieldEdge(other), c.foreignEdge(in, other, StorageForeign))
	default:
		c.join(in, other)
		return
	}
	c.status[in.key()] = resolved
	c.status[other.key()] = resolved
}

func link(a, b *Edge) {
	a.Ref, a.Inverse = b, b.Name
	b.Ref, b.Inverse = a, a.Name
}

func (c *compiler) newEdge(in *intent) *Edge {
	e := &Edge{
		Name:        in.desc.Name,
		Owner:       c.graph.byName[in.table],
		Type:        c.graph.byName[in.desc.To],
		Unique:      in.desc.Cardinality == edge.Single,
		Comment:     in.desc.Comment,
		Synthesized: in.synthesized,
	}
	in.edge = e
	return e
}

// fieldEdge builds the edge of an intent storing its key on its own table.
func (c *compiler) fieldEdge(in *intent) *Edge {
	e := c.newEdge(in)
	e.Optional = in.desc.Optional
	e.Storage = StorageField
	e.Field = in.desc.Field
	e.Rel = Relation{Type: M2O, Table: in.table, Columns: []string{in.desc.Field}}
	return e
}

// foreignEdge builds the edge of an intent resolved through the key that
// owner stores on the target table.
func (c *compiler) foreignEdge(in, owner *intent, s Storage) *Edge {
	e := c.newEdge(in)
	e.Storage = s
	e.Optional = s == StorageRef
	e.Field = owner.desc.Field
	rel := O2M
	if s == StorageRef {
		rel = O2O
	}
	e.Rel = Relation{Type: rel, Table: in.desc.To, Columns: []string{owner.desc.Field}}
	return e
}

// join synthesizes the join table of in. other is nil for one-sided edges
// and in itself for symmetric edges.
func (c *compiler) join(in, other *intent) {
	bidi := other == in
	name, this, that, err := c.joinStorage(in, other)
	if err != nil {
		c.fail(in, err)
		if other != nil && !bidi {
			c.status[other.key()] = failed
		}
		return
	}
	owner, target := c.graph.byName[in.table], c.graph.byName[in.desc.To]
	jt := &Table{
		Name:   name,
		Join:   true,
		fields: make(map[string]*Field, 2),
		edges:  make(map[string]*Edge),
	}
	jt.addField(&Field{Name: this, Type: field.TypeID, Table: owner.Name})
	jt.addField(&Field{Name: that, Type: field.TypeID, Table: target.Name})
	jt.Indexes = []*Index{
		{Name: this, Fields: []string{this}},
		{Name: that, Fields: []string{that}},
	}
	c.graph.byName[name] = jt
	c.graph.tables = append(c.graph.tables, jt)

	e := c.newEdge(in)
	e.Storage = StorageJoin
	e.Bidi = bidi
	e.Rel = Relation{Type: M2M, Table: name, Columns: []string{this, that}}
	c.status[in.key()] = resolved
	attrs := []any{"table", name, "edge", in.label()}
	if other != nil && !bidi {
		inv := c.newEdge(other)
		inv.Storage = StorageJoin
		inv.Rel = Relation{Type: M2M, Table: name, Columns: []string{that, this}}
		link(e, inv)
		c.status[other.key()] = resolved
		attrs = append(attrs, "inverse", other.label())
	}
	c.log.Debug("graph: synthesized join table", attrs...)
}

// joinStorage returns the join table name and its fields from the point of
// view of in. Storage keys declared on both sides must agree.
func (c *compiler) joinStorage(in, other *intent) (name, this, that string, err error) {
	bidi := other == in
	var key edge.StorageKey
	if k := in.desc.StorageKey; k != nil {
		key = edge.StorageKey{Table: k.Table, Columns: slices.Clone(k.Columns)}
	}
	if other != nil && !bidi && other.desc.StorageKey != nil {
		k := other.desc.StorageKey
		switch {
		case k.Table != "" && key.Table != "" && k.Table != key.Table:
			return "", "", "", c.edgeError(in, nil, fmt.Sprintf("join table %q conflicts with %q declared by %s", key.Table, k.Table, other.label()))
		case k.Table != "":
			key.Table = k.Table
		}
		if len(k.Columns) == 2 {
			cols := []string{k.Columns[1], k.Columns[0]}
			if len(key.Columns) == 2 && !slices.Equal(key.Columns, cols) {
				return "", "", "", c.edgeError(in, nil, fmt.Sprintf("join fields %v conflict with %v declared by %s", key.Columns, k.Columns, other.label()))
			}
			key.Columns = cols
		}
	}
	switch {
	case key.Table != "":
		name = key.Table
	case other == nil || bidi:
		name = in.table + "_" + in.desc.Name
	default:
		a, b := in.key(), other.key()
		if b.table < a.table || (b.table == a.table && b.edge < a.edge) {
			a, b = b, a
		}
		name = a.edge + "_to_" + b.edge
	}
	switch {
	case len(key.Columns) == 2:
		this, that = key.Columns[0], key.Columns[1]
	case bidi:
		this, that = "aId", "bId"
	case in.selfDirected():
		this, that = rules.Singularize(other.desc.Name)+"Id", rules.Singularize(in.desc.Name)+"Id"
	default:
		this, that = rules.Singularize(in.table)+"Id", rules.Singularize(in.desc.To)+"Id"
	}
	switch {
	case this == that:
		return "", "", "", c.edgeError(in, nil, fmt.Sprintf("join table %q needs two distinct fields, got %q twice", name, this))
	case checkName(name) != nil:
		return "", "", "", NewSchemaError(name, "", "invalid join table name", checkName(name))
	case checkName(this) != nil || checkName(that) != nil:
		return "", "", "", NewSchemaError(name, "", fmt.Sprintf("invalid join fields %q and %q", this, that), nil)
	}
	if _, ok := c.graph.byName[name]; ok {
		return "", "", "", NewSchemaError(name, "", fmt.Sprintf("join table of %s collides with an existing table", in.label()), nil)
	}
	return name, this, that, nil
}

func (c *compiler) edgeError(in *intent, kind error, msg string) *EdgeError {
	return &EdgeError{From: in.table, To: in.desc.To, Edge: in.desc.Name, Kind: kind, Message: msg}
}

func (c *compiler) fail(in *intent, err error) {
	c.status[in.key()] = failed
	c.errs = append(c.errs, err)
}
