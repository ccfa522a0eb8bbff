package load

import (
	"testing"

	"github.com/syssam/ents/graph"
	"github.com/syssam/ents/schema"
	"github.com/syssam/ents/schema/edge"
	"github.com/syssam/ents/schema/field"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Parallel()
	s, err := Load("testdata/chat.yaml")
	require.NoError(t, err)
	require.Len(t, s.Tables, 3)

	users := s.Tables[0]
	assert.Equal(t, "users", users.Name)
	require.Len(t, users.Fields, 3)
	assert.Equal(t, int64(0), users.Fields[2].Default)
	messages := s.Tables[2]
	assert.Equal(t, 1.0, messages.Fields[2].Default)

	g, err := graph.NewBuilder().Add(s.Interfaces()...).Build()
	require.NoError(t, err)
	e, ok := g.Edge("users", "messages")
	require.True(t, ok)
	assert.Equal(t, graph.StorageForeign, e.Storage)
	e, ok = g.Edge("users", "followers")
	require.True(t, ok)
	assert.True(t, e.Synthesized)
	e, ok = g.Edge("profiles", "user")
	require.True(t, ok)
	assert.Equal(t, graph.StorageRef, e.Storage)
	tb, _ := g.Table("messages")
	assert.Equal(t, schema.SoftDelete, tb.Deletion)
	fields, ok := g.IndexFields("messages", "user_channel")
	require.True(t, ok)
	assert.Equal(t, []string{"userId", "channel"}, fields)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()
	_, err := Load("testdata/missing.yaml")
	require.Error(t, err)

	s, err := Load("testdata/invalid.yaml")
	require.NoError(t, err)
	d := s.Tables[0].Descriptor()
	require.Error(t, d.Err)
	assert.Contains(t, d.Err.Error(), `unknown kind "several"`)

	_, err = UnmarshalSchema([]byte("tables: [{name: t, fields: [{name: n, type: int, default: 1.5}]}]"))
	require.Error(t, err)
}

func TestDescriptorErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		desc func() error
	}{
		{"unknown_type", func() error { return (&Field{Name: "f", Type: "date"}).Descriptor().Err }},
		{"id_without_table", func() error { return (&Field{Name: "f", Type: "id"}).Descriptor().Err }},
		{"bad_default", func() error { return (&Field{Name: "f", Type: "bool", Default: "yes"}).Descriptor().Err }},
		{"one_with_inverse", func() error { return (&Edge{Name: "e", Kind: KindOne, Inverse: "x"}).Descriptor().Err }},
		{"many_with_field", func() error { return (&Edge{Name: "e", Kind: KindMany, Field: "eId"}).Descriptor().Err }},
		{"columns", func() error {
			return (&Edge{Name: "e", Kind: KindMany, StorageKey: &StorageKey{Columns: []string{"a"}}}).Descriptor().Err
		}},
		{"deletion", func() error { return (&Table{Name: "t", Deletion: "later"}).Descriptor().Err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.desc())
		})
	}
}

func TestMarshalSchema(t *testing.T) {
	t.Parallel()
	schemas := []schema.Interface{
		schema.Table("users").
			Fields(field.String("name").Index(), field.Int("karma").Default(3)).
			Edges(
				edge.Many("groups").StorageKey(edge.Table("memberships"), edge.Columns("memberId", "groupId")),
				edge.One("manager").To("users").Optional(),
			),
		schema.Table("groups").
			Edges(edge.Many("members").To("users").Inverse("groups")).
			Deletion(schema.SoftDelete),
	}
	buf, err := MarshalSchema(schemas...)
	require.NoError(t, err)
	s, err := UnmarshalSchema(buf)
	require.NoError(t, err)

	want, err := graph.Compile(schemas...)
	require.NoError(t, err)
	got, err := graph.Compile(s.Interfaces()...)
	require.NoError(t, err)
	assert.Equal(t, want.Describe(), got.Describe())
}

func TestMarshalSchemaPanics(t *testing.T) {
	t.Parallel()
	_, err := MarshalSchema(panicking{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Descriptor panics")
}

type panicking struct{}

func (panicking) Descriptor() *schema.Descriptor { panic("boom") }
