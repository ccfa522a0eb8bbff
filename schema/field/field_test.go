package field_test

import (
	"testing"

	"github.com/syssam/ents/schema/field"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldBuilders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		build    func() *field.Descriptor
		validate func(t *testing.T, desc *field.Descriptor)
	}{
		{
			name: "string",
			build: func() *field.Descriptor {
				return field.String("name").Descriptor()
			},
			validate: func(t *testing.T, desc *field.Descriptor) {
				assert.Equal(t, "name", desc.Name)
				assert.Equal(t, field.TypeString, desc.Type)
				assert.False(t, desc.Optional)
				assert.False(t, desc.HasDefault)
				assert.NoError(t, desc.Err)
			},
		},
		{
			name: "optional_default",
			build: func() *field.Descriptor {
				return field.Int("age").Optional().Default(18).Descriptor()
			},
			validate: func(t *testing.T, desc *field.Descriptor) {
				assert.True(t, desc.Optional)
				assert.True(t, desc.HasDefault)
				assert.Equal(t, 18, desc.Default)
				assert.NoError(t, desc.Err)
			},
		},
		{
			name: "unique_implies_index",
			build: func() *field.Descriptor {
				return field.String("email").Unique().Descriptor()
			},
			validate: func(t *testing.T, desc *field.Descriptor) {
				assert.True(t, desc.Unique)
				assert.True(t, desc.Indexed)
			},
		},
		{
			name: "id_field",
			build: func() *field.Descriptor {
				return field.ID("ownerId", "users").Comment("owner").Descriptor()
			},
			validate: func(t *testing.T, desc *field.Descriptor) {
				assert.Equal(t, field.TypeID, desc.Type)
				assert.Equal(t, "users", desc.Table)
				assert.Equal(t, "owner", desc.Comment)
			},
		},
		{
			name: "id_field_without_table",
			build: func() *field.Descriptor {
				return field.ID("ownerId", "").Descriptor()
			},
			validate: func(t *testing.T, desc *field.Descriptor) {
				assert.Error(t, desc.Err)
			},
		},
		{
			name: "mismatched_default",
			build: func() *field.Descriptor {
				return field.Bool("active").Default("yes").Descriptor()
			},
			validate: func(t *testing.T, desc *field.Descriptor) {
				require.Error(t, desc.Err)
				assert.Contains(t, desc.Err.Error(), "invalid default")
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

func TestTypeCheck(t *testing.T) {
	t.Parallel()

	assert.NoError(t, field.TypeInt.Check(3))
	assert.NoError(t, field.TypeInt.Check(float64(3)))
	assert.Error(t, field.TypeInt.Check(3.5))
	assert.NoError(t, field.TypeFloat.Check(2))
	assert.NoError(t, field.TypeJSON.Check(map[string]any{"a": 1}))
	assert.Error(t, field.TypeJSON.Check("x"))
	assert.NoError(t, field.TypeAny.Check(struct{}{}))
	assert.Error(t, field.TypeString.Check(nil))
}

func TestParseType(t *testing.T) {
	t.Parallel()

	for _, typ := range []field.Type{field.TypeString, field.TypeInt, field.TypeFloat, field.TypeBool, field.TypeBytes, field.TypeJSON, field.TypeAny, field.TypeID} {
		got, err := field.ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := field.ParseType("invalid")
	assert.Error(t, err)
	_, err = field.ParseType("decimal")
	assert.Error(t, err)
}
