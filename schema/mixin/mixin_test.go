package mixin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ents/graph"
	"github.com/syssam/ents/schema"
	"github.com/syssam/ents/schema/edge"
	"github.com/syssam/ents/schema/field"
	"github.com/syssam/ents/schema/index"
	"github.com/syssam/ents/schema/mixin"
)

// authored links a table to its author.
type authored struct{ mixin.Schema }

func (authored) Fields() []schema.Field {
	return []schema.Field{field.Bool("draft").Default(true)}
}

func (authored) Edges() []schema.Edge {
	return []schema.Edge{edge.One("author").To("users")}
}

func (authored) Indexes() []schema.Index {
	return []schema.Index{index.Edges("author").Fields("draft")}
}

func TestSchema(t *testing.T) {
	t.Parallel()
	m := mixin.Schema{}
	assert.Nil(t, m.Fields())
	assert.Nil(t, m.Edges())
	assert.Nil(t, m.Indexes())
}

func TestBuilderMixin(t *testing.T) {
	t.Parallel()
	desc := schema.Table("posts").
		Mixin(authored{}).
		Fields(field.String("title")).
		Descriptor()
	require.NoError(t, desc.Err)
	require.Len(t, desc.Fields, 2)
	assert.Equal(t, "draft", desc.Fields[0].Name)
	assert.Equal(t, "title", desc.Fields[1].Name)
	require.Len(t, desc.Edges, 1)
	assert.Equal(t, "authorId", desc.Edges[0].Field)
	assert.Len(t, desc.Indexes, 1)
}

func TestCompose(t *testing.T) {
	t.Parallel()
	m := mixin.Compose(authored{}, mixin.Fields(field.String("slug").Unique(), field.Int("views").Default(0)))
	assert.Len(t, m.Fields(), 3)
	assert.Len(t, m.Edges(), 1)
	assert.Len(t, m.Indexes(), 1)
	assert.Empty(t, mixin.Compose().Fields())
}

func TestCompileSharedMixin(t *testing.T) {
	t.Parallel()
	g, err := graph.Compile(
		schema.Table("users").
			Fields(field.String("name")).
			Edges(edge.Many("posts").RefField("authorId"), edge.Many("comments").RefField("authorId")),
		schema.Table("posts").Mixin(authored{}).Fields(field.String("title")),
		schema.Table("comments").Mixin(authored{}).Fields(field.String("text")),
	)
	require.NoError(t, err)
	for _, table := range []string{"posts", "comments"} {
		author, ok := g.Edge(table, "author")
		require.True(t, ok, table)
		assert.Equal(t, graph.StorageField, author.Storage)
		require.NotNil(t, author.Ref, table)
		assert.Equal(t, "users", author.Ref.Owner.Name)
		fields, ok := g.IndexFields(table, "author_draft")
		require.True(t, ok, table)
		assert.Equal(t, []string{"authorId", "draft"}, fields)
	}
	posts, ok := g.Edge("users", "posts")
	require.True(t, ok)
	assert.Equal(t, graph.StorageForeign, posts.Storage)
	assert.Equal(t, "posts", posts.Type.Name)

	_, err = graph.Compile(
		schema.Table("users").Fields(field.String("name")),
		schema.Table("posts").Mixin(authored{}).Fields(field.Bool("draft")),
	)
	require.Error(t, err)
}
