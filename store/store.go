package store

import (
	"context"
	"maps"
	"strings"

	"github.com/google/uuid"
)

// System fields present on every stored document.
const (
	IDField           = "_id"
	CreationTimeField = "_creationTime"
)

// ID identifies a document. It has the form "<table>|<uuid>", so the table
// of any id is known without a lookup.
type ID string

// idSep separates the table from the unique part of an ID.
const idSep = "|"

// NewID returns a new identifier for a document of table.
func NewID(table string) ID {
	return ID(table + idSep + uuid.NewString())
}

// ParseID validates raw as an identifier.
func ParseID(raw string) (ID, bool) {
	table, key, ok := strings.Cut(raw, idSep)
	if !ok || table == "" {
		return "", false
	}
	if _, err := uuid.Parse(key); err != nil {
		return "", false
	}
	return ID(raw), true
}

// Table returns the table the identifier belongs to.
func (id ID) Table() string {
	table, _, _ := strings.Cut(string(id), idSep)
	return table
}

// String implements the fmt.Stringer interface.
func (id ID) String() string { return string(id) }

// Document is a stored record. Field values are plain Go values: strings,
// int64 or float64 numbers, bools, []byte, []any and map[string]any. IDs
// are stored as strings.
type Document map[string]any

// ID returns the identifier of the document.
func (d Document) ID() ID {
	switch v := d[IDField].(type) {
	case ID:
		return v
	case string:
		return ID(v)
	}
	return ""
}

// CreationTime returns the creation time of the document in milliseconds
// since the Unix epoch.
func (d Document) CreationTime() float64 {
	f, _ := toFloat(d[CreationTimeField])
	return f
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}

// unset is the type of the Unset sentinel.
type unset struct{}

// Unset removes a field when used as a value in Patch.
var Unset any = unset{}

// IsUnset reports whether v is the Unset sentinel.
func IsUnset(v any) bool {
	_, ok := v.(unset)
	return ok
}

// Normalize converts v to the representation documents hold. IDs become
// strings and signed integers become int64.
func Normalize(v any) any {
	switch v := v.(type) {
	case ID:
		return string(v)
	case []ID:
		out := make([]any, len(v))
		for i := range v {
			out[i] = string(v[i])
		}
		return out
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case float32:
		return float64(v)
	}
	return v
}

// Store is the document store capability consumed by the entity layer.
// Get returns a nil document without error when no document exists.
type Store interface {
	Get(ctx context.Context, id ID) (Document, error)
	Query(table string) Scan
	Insert(ctx context.Context, table string, doc Document) (ID, error)
	Patch(ctx context.Context, id ID, partial Document) error
	Replace(ctx context.Context, id ID, doc Document) error
	Delete(ctx context.Context, id ID) error
	NormalizeID(table, raw string) (ID, bool)
}

// BatchGetter is implemented by stores that load many documents in one
// call. The result has one entry per id, nil for missing documents.
type BatchGetter interface {
	GetMany(ctx context.Context, ids []ID) ([]Document, error)
}

// Scan is a read over the documents of one table. Scans are immutable;
// every builder method returns a new scan.
type Scan interface {
	WithIndex(name string, rng ...func(*IndexRange)) Scan
	WithSearchIndex(name string, filter func(*SearchFilter)) Scan
	Filter(p Predicate) Scan
	Order(o Order) Scan
	Take(ctx context.Context, n int) ([]Document, error)
	First(ctx context.Context) (Document, error)
	Unique(ctx context.Context) (Document, error)
	Collect(ctx context.Context) ([]Document, error)
	Paginate(ctx context.Context, opts PaginationOptions) (*PageResult, error)
}

// Indexes resolves index names to the fields they cover. It is implemented
// by *graph.Graph.
type Indexes interface {
	IndexFields(table, index string) ([]string, bool)
	SearchField(table, index string) (string, bool)
}
