package graph

import (
	"fmt"
	"io"
	"strings"

	"github.com/syssam/ents/schema"
	"github.com/syssam/ents/schema/field"
)

// Describe returns a stable textual description of the graph. Two graphs
// compiled from the same declarations have the same description.
func (g *Graph) Describe() string {
	var b strings.Builder
	g.Fprint(&b)
	return b.String()
}

// Fprint writes the description of the graph to w.
func (g *Graph) Fprint(w io.Writer) {
	for _, t := range g.tables {
		kind := "table"
		if t.Join {
			kind = "join"
		}
		fmt.Fprintf(w, "%s %s", kind, t.Name)
		if t.Deletion == schema.SoftDelete {
			fmt.Fprint(w, " (soft delete)")
		}
		fmt.Fprintln(w)
		for _, f := range t.Fields {
			fmt.Fprintf(w, "\tfield %s %s", f.Name, f.Type)
			if f.Type == field.TypeID {
				fmt.Fprintf(w, "(%s)", f.Table)
			}
			if f.Optional {
				fmt.Fprint(w, " optional")
			}
			if f.Unique {
				fmt.Fprint(w, " unique")
			}
			if f.HasDefault {
				fmt.Fprintf(w, " default=%v", f.Default)
			}
			if f.Edge != "" {
				fmt.Fprintf(w, " edge=%s", f.Edge)
			}
			fmt.Fprintln(w)
		}
		for _, idx := range t.Indexes {
			fmt.Fprintf(w, "\tindex %s [%s]", idx.Name, strings.Join(idx.Fields, ", "))
			if idx.Unique {
				fmt.Fprint(w, " unique")
			}
			fmt.Fprintln(w)
		}
		for _, idx := range t.SearchIndexes {
			fmt.Fprintf(w, "\tsearch %s %s [%s]\n", idx.Name, idx.SearchField, strings.Join(idx.FilterFields, ", "))
		}
		for _, e := range t.Edges {
			fmt.Fprintf(w, "\tedge %s -> %s %s %s %s[%s]", e.Name, e.Type.Name, e.Rel.Type, e.Storage, e.Rel.Table, strings.Join(e.Rel.Columns, ", "))
			if e.Inverse != "" {
				fmt.Fprintf(w, " inverse=%s", e.Inverse)
			}
			switch {
			case e.Bidi:
				fmt.Fprint(w, " bidi")
			case e.SelfDirected():
				fmt.Fprint(w, " self")
			}
			if e.OneSided() {
				fmt.Fprint(w, " one-sided")
			}
			fmt.Fprintln(w)
		}
	}
}
