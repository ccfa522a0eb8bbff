package schema_test

import (
	"testing"

	"github.com/syssam/ents/schema"
	"github.com/syssam/ents/schema/edge"
	"github.com/syssam/ents/schema/field"
	"github.com/syssam/ents/schema/index"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTableBuilder tests accumulating a table declaration.
func TestTableBuilder(t *testing.T) {
	t.Parallel()

	desc := schema.Table("users").
		Fields(
			field.String("name"),
			field.String("email").Unique(),
		).
		Edges(
			edge.One("profile").Ref(),
			edge.Many("friends").To("users"),
		).
		Indexes(index.Fields("name", "email")).
		SearchIndexes(index.Search("search_name", "name")).
		Deletion(schema.SoftDelete).
		Descriptor()

	require.NoError(t, desc.Err)
	assert.Equal(t, "users", desc.Name)
	assert.Len(t, desc.Fields, 2)
	assert.Len(t, desc.Edges, 2)
	assert.Len(t, desc.Indexes, 1)
	assert.Len(t, desc.SearchIndexes, 1)
	assert.Equal(t, schema.SoftDelete, desc.Deletion)
}

// TestTableBuilderErrors tests that nested builder errors surface on the table.
func TestTableBuilderErrors(t *testing.T) {
	t.Parallel()

	t.Run("field", func(t *testing.T) {
		desc := schema.Table("users").Fields(field.Bool("active").Default(1)).Descriptor()
		require.Error(t, desc.Err)
		assert.Contains(t, desc.Err.Error(), `table "users"`)
	})

	t.Run("edge", func(t *testing.T) {
		desc := schema.Table("users").Edges(edge.Many("friends").Inverse("friends")).Descriptor()
		assert.Error(t, desc.Err)
	})

	t.Run("search_index", func(t *testing.T) {
		desc := schema.Table("users").SearchIndexes(index.Search("", "name")).Descriptor()
		assert.Error(t, desc.Err)
	})
}

func TestParseDeletion(t *testing.T) {
	t.Parallel()

	d, err := schema.ParseDeletion("soft")
	require.NoError(t, err)
	assert.Equal(t, schema.SoftDelete, d)
	assert.Equal(t, "soft", d.String())

	d, err = schema.ParseDeletion("")
	require.NoError(t, err)
	assert.Equal(t, schema.HardDelete, d)

	_, err = schema.ParseDeletion("scheduled")
	assert.Error(t, err)
}
