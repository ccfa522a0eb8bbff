package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ents/store"
)

func TestID(t *testing.T) {
	t.Parallel()
	id := store.NewID("users")
	assert.Equal(t, "users", id.Table())
	parsed, ok := store.ParseID(id.String())
	require.True(t, ok)
	assert.Equal(t, id, parsed)

	for _, raw := range []string{"", "users", "|6ba7b810-9dad-11d1-80b4-00c04fd430c8", "users|nope"} {
		_, ok := store.ParseID(raw)
		assert.False(t, ok, raw)
	}
}

func TestDocument(t *testing.T) {
	t.Parallel()
	id := store.NewID("users")
	doc := store.Document{store.IDField: id.String(), store.CreationTimeField: int64(42), "name": "a"}
	assert.Equal(t, id, doc.ID())
	assert.Equal(t, float64(42), doc.CreationTime())

	clone := doc.Clone()
	clone["name"] = "b"
	assert.Equal(t, "a", doc["name"])
	assert.Nil(t, store.Document(nil).Clone())
	assert.Empty(t, store.Document{}.ID())
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   any
		want any
	}{
		{in: 1, want: int64(1)},
		{in: int32(2), want: int64(2)},
		{in: float32(1.5), want: 1.5},
		{in: store.ID("users|x"), want: "users|x"},
		{in: []store.ID{"a|b"}, want: []any{"a|b"}},
		{in: "s", want: "s"},
		{in: nil, want: nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, store.Normalize(tt.in))
	}
	assert.True(t, store.IsUnset(store.Unset))
	assert.False(t, store.IsUnset(nil))
}

func TestCompare(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{name: "null_first", a: nil, b: int64(0), want: -1},
		{name: "mixed_numbers", a: int64(2), b: 1.5, want: 1},
		{name: "equal_numbers", a: int64(2), b: 2.0, want: 0},
		{name: "numbers_before_bools", a: 10.0, b: false, want: -1},
		{name: "bools", a: false, b: true, want: -1},
		{name: "id_and_string", a: store.ID("a|1"), b: "a|1", want: 0},
		{name: "strings", a: "b", b: "a", want: 1},
		{name: "strings_before_bytes", a: "z", b: []byte("a"), want: -1},
		{name: "bytes", a: []byte("a"), b: []byte("b"), want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, store.Compare(tt.a, tt.b))
		})
	}
}

func TestDocumentCodec(t *testing.T) {
	t.Parallel()
	doc := store.Document{
		store.IDField:           "users|6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		store.CreationTimeField: 1700000000000.0,
		"name":                  "a",
		"small":                 int64(3),
		"big":                   int64(1) << 40,
		"neg":                   int64(-300),
		"score":                 0.25,
		"ok":                    false,
		"raw":                   []byte{0, 1},
		"nested":                map[string]any{"list": []any{int64(1), "x", nil}},
	}
	b, err := store.MarshalDocument(doc)
	require.NoError(t, err)
	again, err := store.MarshalDocument(doc.Clone())
	require.NoError(t, err)
	assert.Equal(t, b, again)

	got, err := store.UnmarshalDocument(b)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	_, err = store.UnmarshalDocument([]byte{0xc1})
	require.Error(t, err)
}
