package store

import (
	"strings"
)

// Predicate reports whether a document matches a condition.
type Predicate func(Document) bool

// FieldEQ returns a predicate that checks if the field equals the given value.
func FieldEQ(name string, v any) Predicate {
	v = Normalize(v)
	return func(d Document) bool {
		return Equal(d[name], v)
	}
}

// FieldNEQ returns a predicate that checks if the field does not equal the given value.
func FieldNEQ(name string, v any) Predicate {
	return Not(FieldEQ(name, v))
}

// FieldIn returns a predicate that checks if the field value is in the given list.
func FieldIn[T any](name string, vs ...T) Predicate {
	return func(d Document) bool {
		for _, v := range vs {
			if Equal(d[name], Normalize(v)) {
				return true
			}
		}
		return false
	}
}

// FieldNotIn returns a predicate that checks if the field value is not in the given list.
func FieldNotIn[T any](name string, vs ...T) Predicate {
	return Not(FieldIn(name, vs...))
}

// FieldGT returns a predicate that checks if the field is greater than the given value.
// Values of another kind never match.
func FieldGT(name string, v any) Predicate {
	return compareField(name, v, func(c int) bool { return c > 0 })
}

// FieldGTE returns a predicate that checks if the field is greater than or equal to the given value.
func FieldGTE(name string, v any) Predicate {
	return compareField(name, v, func(c int) bool { return c >= 0 })
}

// FieldLT returns a predicate that checks if the field is less than the given value.
func FieldLT(name string, v any) Predicate {
	return compareField(name, v, func(c int) bool { return c < 0 })
}

// FieldLTE returns a predicate that checks if the field is less than or equal to the given value.
func FieldLTE(name string, v any) Predicate {
	return compareField(name, v, func(c int) bool { return c <= 0 })
}

func compareField(name string, v any, ok func(int) bool) Predicate {
	v = Normalize(v)
	return func(d Document) bool {
		fv := d[name]
		if kindOf(fv) != kindOf(v) {
			return false
		}
		return ok(Compare(fv, v))
	}
}

// FieldIsNull returns a predicate that checks if the field is absent or nil.
func FieldIsNull(name string) Predicate {
	return func(d Document) bool {
		return d[name] == nil
	}
}

// FieldNotNull returns a predicate that checks if the field is set.
func FieldNotNull(name string) Predicate {
	return Not(FieldIsNull(name))
}

// FieldContains returns a predicate that checks if the string field contains the given substring.
func FieldContains(name, sub string) Predicate {
	return stringField(name, func(s string) bool { return strings.Contains(s, sub) })
}

// FieldContainsFold returns a predicate that checks if the field contains the given substring (case-insensitive).
func FieldContainsFold(name, sub string) Predicate {
	sub = strings.ToLower(sub)
	return stringField(name, func(s string) bool { return strings.Contains(strings.ToLower(s), sub) })
}

// FieldHasPrefix returns a predicate that checks if the field has the given prefix.
func FieldHasPrefix(name, prefix string) Predicate {
	return stringField(name, func(s string) bool { return strings.HasPrefix(s, prefix) })
}

// FieldHasSuffix returns a predicate that checks if the field has the given suffix.
func FieldHasSuffix(name, suffix string) Predicate {
	return stringField(name, func(s string) bool { return strings.HasSuffix(s, suffix) })
}

// FieldEqualFold returns a predicate that checks if the field equals the given value (case-insensitive).
func FieldEqualFold(name, v string) Predicate {
	return stringField(name, func(s string) bool { return strings.EqualFold(s, v) })
}

func stringField(name string, ok func(string) bool) Predicate {
	return func(d Document) bool {
		s, isString := d[name].(string)
		return isString && ok(s)
	}
}

// And groups predicates with the AND operator between them.
func And(preds ...Predicate) Predicate {
	return func(d Document) bool {
		for _, p := range preds {
			if !p(d) {
				return false
			}
		}
		return true
	}
}

// Or groups predicates with the OR operator between them.
func Or(preds ...Predicate) Predicate {
	return func(d Document) bool {
		for _, p := range preds {
			if p(d) {
				return true
			}
		}
		return false
	}
}

// Not inverts the given predicate.
func Not(p Predicate) Predicate {
	return func(d Document) bool {
		return !p(d)
	}
}

// StringField is a string field that provides typed predicate methods.
//
// Usage:
//
//	var Name = store.StringField("name")
//	users.Filter(Name.HasPrefix("a"))
type StringField string

// Name returns the field name.
func (f StringField) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals the given value.
func (f StringField) EQ(v string) Predicate { return FieldEQ(string(f), v) }

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f StringField) NEQ(v string) Predicate { return FieldNEQ(string(f), v) }

// In returns a predicate that checks if the field value is in the given list.
func (f StringField) In(vs ...string) Predicate { return FieldIn(string(f), vs...) }

// Contains returns a predicate that checks if the field contains the given substring.
func (f StringField) Contains(v string) Predicate { return FieldContains(string(f), v) }

// ContainsFold returns a predicate that checks if the field contains the given substring (case-insensitive).
func (f StringField) ContainsFold(v string) Predicate { return FieldContainsFold(string(f), v) }

// HasPrefix returns a predicate that checks if the field has the given prefix.
func (f StringField) HasPrefix(v string) Predicate { return FieldHasPrefix(string(f), v) }

// IsNull returns a predicate that checks if the field is absent.
func (f StringField) IsNull() Predicate { return FieldIsNull(string(f)) }

// NumberField is a numeric field that provides typed predicate methods.
type NumberField string

// Name returns the field name.
func (f NumberField) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals the given value.
func (f NumberField) EQ(v float64) Predicate { return FieldEQ(string(f), v) }

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f NumberField) NEQ(v float64) Predicate { return FieldNEQ(string(f), v) }

// GT returns a predicate that checks if the field is greater than the given value.
func (f NumberField) GT(v float64) Predicate { return FieldGT(string(f), v) }

// GTE returns a predicate that checks if the field is greater than or equal to the given value.
func (f NumberField) GTE(v float64) Predicate { return FieldGTE(string(f), v) }

// LT returns a predicate that checks if the field is less than the given value.
func (f NumberField) LT(v float64) Predicate { return FieldLT(string(f), v) }

// LTE returns a predicate that checks if the field is less than or equal to the given value.
func (f NumberField) LTE(v float64) Predicate { return FieldLTE(string(f), v) }

// IsNull returns a predicate that checks if the field is absent.
func (f NumberField) IsNull() Predicate { return FieldIsNull(string(f)) }

// BoolField is a boolean field that provides typed predicate methods.
type BoolField string

// Name returns the field name.
func (f BoolField) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals the given value.
func (f BoolField) EQ(v bool) Predicate { return FieldEQ(string(f), v) }

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f BoolField) NEQ(v bool) Predicate { return FieldNEQ(string(f), v) }

// ReferenceField is a field holding document ids that provides typed
// predicate methods.
type ReferenceField string

// Name returns the field name.
func (f ReferenceField) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals the given id.
func (f ReferenceField) EQ(id ID) Predicate { return FieldEQ(string(f), id) }

// In returns a predicate that checks if the field is one of the given ids.
func (f ReferenceField) In(ids ...ID) Predicate { return FieldIn(string(f), ids...) }

// IsNull returns a predicate that checks if the field is absent.
func (f ReferenceField) IsNull() Predicate { return FieldIsNull(string(f)) }
