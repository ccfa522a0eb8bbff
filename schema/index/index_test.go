package index_test

import (
	"testing"

	"github.com/syssam/ents/schema/index"

	"github.com/stretchr/testify/assert"
)

// TestIndexFields tests creating indexes on fields.
func TestIndexFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		build    func() *index.Descriptor
		validate func(t *testing.T, desc *index.Descriptor)
	}{
		{
			name: "single_field",
			build: func() *index.Descriptor {
				return index.Fields("name").Descriptor()
			},
			validate: func(t *testing.T, desc *index.Descriptor) {
				assert.Equal(t, []string{"name"}, desc.Fields)
				assert.Empty(t, desc.Edges)
				assert.False(t, desc.Unique)
				assert.Empty(t, desc.StorageKey)
			},
		},
		{
			name: "multiple_fields",
			build: func() *index.Descriptor {
				return index.Fields("first", "last").Descriptor()
			},
			validate: func(t *testing.T, desc *index.Descriptor) {
				assert.Equal(t, []string{"first", "last"}, desc.Fields)
			},
		},
		{
			name: "unique_with_storage_key",
			build: func() *index.Descriptor {
				return index.Fields("email").Unique().StorageKey("by_email").Descriptor()
			},
			validate: func(t *testing.T, desc *index.Descriptor) {
				assert.True(t, desc.Unique)
				assert.Equal(t, "by_email", desc.StorageKey)
			},
		},
		{
			name: "edges_and_fields",
			build: func() *index.Descriptor {
				return index.Edges("user").Fields("kind").Descriptor()
			},
			validate: func(t *testing.T, desc *index.Descriptor) {
				assert.Equal(t, []string{"user"}, desc.Edges)
				assert.Equal(t, []string{"kind"}, desc.Fields)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.validate(t, tt.build())
		})
	}
}

func TestSearchIndex(t *testing.T) {
	t.Parallel()

	t.Run("with_filters", func(t *testing.T) {
		desc := index.Search("search_body", "body").Filter("channel", "author").Descriptor()
		assert.Equal(t, "search_body", desc.Name)
		assert.Equal(t, "body", desc.SearchField)
		assert.Equal(t, []string{"channel", "author"}, desc.FilterFields)
		assert.NoError(t, desc.Err)
	})

	t.Run("missing_field", func(t *testing.T) {
		desc := index.Search("search_body", "").Descriptor()
		assert.Error(t, desc.Err)
	})
}
