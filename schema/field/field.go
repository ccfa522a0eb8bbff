package field

import (
	"errors"
	"fmt"
	"math"
)

// Type is the value type of a field.
type Type uint8

// Field types.
const (
	TypeInvalid Type = iota
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeBytes
	TypeJSON
	TypeAny
	TypeID
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeString:  "string",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeBool:    "bool",
	TypeBytes:   "bytes",
	TypeJSON:    "json",
	TypeAny:     "any",
	TypeID:      "id",
}

// String returns the type name.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", t)
}

// ParseType returns the type registered under the given name.
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if n == name && Type(t) != TypeInvalid {
			return Type(t), nil
		}
	}
	return TypeInvalid, fmt.Errorf("field: unknown type %q", name)
}

// Check reports whether v is an acceptable value for the type.
// Numbers decoded from JSON are accepted for TypeInt when integral.
func (t Type) Check(v any) error {
	if v == nil {
		return errors.New("nil value")
	}
	ok := false
	switch t {
	case TypeString, TypeID:
		_, ok = v.(string)
	case TypeInt:
		switch n := v.(type) {
		case int, int8, int16, int32, int64, uint8, uint16, uint32:
			ok = true
		case float64:
			ok = n == math.Trunc(n)
		}
	case TypeFloat:
		switch v.(type) {
		case float32, float64, int, int32, int64:
			ok = true
		}
	case TypeBool:
		_, ok = v.(bool)
	case TypeBytes:
		_, ok = v.([]byte)
	case TypeJSON:
		switch v.(type) {
		case map[string]any, []any:
			ok = true
		}
	case TypeAny:
		ok = true
	}
	if !ok {
		return fmt.Errorf("expected %s value, got %T", t, v)
	}
	return nil
}

// A Descriptor for field configuration.
type Descriptor struct {
	Name       string // field name, used as the document key.
	Type       Type   // value type.
	Table      string // referenced table for TypeID fields.
	Optional   bool   // may be absent.
	Default    any    // default value, valid when HasDefault.
	HasDefault bool   // default was configured.
	Unique     bool   // unique index.
	Indexed    bool   // single-field index named after the field.
	Comment    string // field comment.
	Err        error
}

// Builder is the builder for fields.
type Builder struct {
	desc *Descriptor
}

func newBuilder(name string, t Type) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Type: t}}
}

// String returns a new string field.
func String(name string) *Builder { return newBuilder(name, TypeString) }

// Int returns a new integer field.
func Int(name string) *Builder { return newBuilder(name, TypeInt) }

// Float returns a new floating point field.
func Float(name string) *Builder { return newBuilder(name, TypeFloat) }

// Bool returns a new boolean field.
func Bool(name string) *Builder { return newBuilder(name, TypeBool) }

// Bytes returns a new binary field.
func Bytes(name string) *Builder { return newBuilder(name, TypeBytes) }

// JSON returns a new field holding a JSON object or array.
func JSON(name string) *Builder { return newBuilder(name, TypeJSON) }

// Any returns a new untyped field.
func Any(name string) *Builder { return newBuilder(name, TypeAny) }

// ID returns a new field holding an identifier of a document in table.
func ID(name, table string) *Builder {
	b := newBuilder(name, TypeID)
	b.desc.Table = table
	if table == "" {
		b.desc.Err = fmt.Errorf("field %q: id field requires a table", name)
	}
	return b
}

// Optional indicates that this field may be absent from documents.
func (b *Builder) Optional() *Builder {
	b.desc.Optional = true
	return b
}

// Default sets the value returned for this field when a document lacks it.
func (b *Builder) Default(v any) *Builder {
	if err := b.desc.Type.Check(v); err != nil && b.desc.Err == nil {
		b.desc.Err = fmt.Errorf("field %q: invalid default: %w", b.desc.Name, err)
	}
	b.desc.Default = v
	b.desc.HasDefault = true
	return b
}

// Unique adds a unique index on the field.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	b.desc.Indexed = true
	return b
}

// Index adds a single-field index named after the field.
func (b *Builder) Index() *Builder {
	b.desc.Indexed = true
	return b
}

// Comment sets the comment of the field.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the schema.Field interface by returning its descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
