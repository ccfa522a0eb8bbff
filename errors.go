package ents

import (
	"errors"
	"fmt"

	"github.com/syssam/ents/store"
)

var (
	// ErrNotFound is matched by NotFoundError.
	ErrNotFound = errors.New("ents: entity not found")
	// ErrNotSingular is matched by NotSingularError.
	ErrNotSingular = errors.New("ents: entity not singular")
	// ErrDanglingReference is matched by DanglingReferenceError.
	ErrDanglingReference = errors.New("ents: dangling reference")
	// ErrInvalidID is matched by InvalidIDError.
	ErrInvalidID = errors.New("ents: invalid id")
	// ErrUnknownTable is returned for tables missing from the graph.
	ErrUnknownTable = errors.New("ents: unknown table")
	// ErrUnknownEdge is returned when traversing an edge the table does not declare.
	ErrUnknownEdge = errors.New("ents: unknown edge")
	// ErrInvalidChain is returned when chain operations are composed in an
	// order the store cannot execute, like ordering after filtering.
	ErrInvalidChain = errors.New("ents: invalid query chain")
)

// NotFoundError is returned by the OrFail methods when a chain resolves to
// nothing, and by writes addressing a missing document.
type NotFoundError struct {
	Label string   // table or edge label (table.edge)
	ID    store.ID // empty when the chain held no id
}

// NewNotFoundError returns a NotFoundError for the table or edge label.
func NewNotFoundError(label string, id store.ID) *NotFoundError {
	return &NotFoundError{Label: label, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("ents: %s not found (id=%s)", e.Label, e.ID)
	}
	return fmt.Sprintf("ents: %s not found", e.Label)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(err error) bool { return err == ErrNotFound }

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// NotSingularError is returned by Unique when more than one document
// matches.
type NotSingularError struct {
	Label string
	Count int // matched documents; zero when the store stopped at the second
}

// NewNotSingularError returns a NotSingularError for the label.
func NewNotSingularError(label string, count int) *NotSingularError {
	return &NotSingularError{Label: label, Count: count}
}

func (e *NotSingularError) Error() string {
	if e.Count > 0 {
		return fmt.Sprintf("ents: %s not singular (%d matches)", e.Label, e.Count)
	}
	return fmt.Sprintf("ents: %s not singular", e.Label)
}

// Is matches ErrNotSingular.
func (e *NotSingularError) Is(err error) bool { return err == ErrNotSingular }

// IsNotSingular reports whether err is, or wraps, a NotSingularError.
func IsNotSingular(err error) bool { return errors.Is(err, ErrNotSingular) }

// DanglingReferenceError is returned when an edge is traversed through a
// stored reference whose target document is missing. Row is the document
// holding the reference: the source document for owning edges and the join
// row for many-to-many edges.
type DanglingReferenceError struct {
	Edge  string   // edge label (table.edge)
	Row   store.ID // document holding the reference
	Field string   // field holding the reference
	Table string   // table the reference points into
	ID    store.ID // missing target
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("ents: dangling reference on edge %s: %s.%s points to missing %s document %s",
		e.Edge, e.Row, e.Field, e.Table, e.ID)
}

// Is matches ErrDanglingReference.
func (e *DanglingReferenceError) Is(err error) bool { return err == ErrDanglingReference }

// IsDanglingReference reports whether err is, or wraps, a DanglingReferenceError.
func IsDanglingReference(err error) bool { return errors.Is(err, ErrDanglingReference) }

// InvalidIDError is returned when an identifier is used with a table it
// does not belong to.
type InvalidIDError struct {
	Table string
	ID    string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("ents: %q is not an id of table %s", e.ID, e.Table)
}

// Is matches ErrInvalidID.
func (e *InvalidIDError) Is(err error) bool { return err == ErrInvalidID }

// ConstraintError is returned when a write would store a value of a unique
// field, one-to-one foreign keys included, that another document holds.
type ConstraintError struct {
	Table  string
	Field  string
	Value  any
	Holder store.ID // document already holding Value
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("ents: constraint failed: %s.%s: %v is already used by %s", e.Table, e.Field, e.Value, e.Holder)
}

// IsConstraintError reports whether err is, or wraps, a ConstraintError.
func IsConstraintError(err error) bool {
	var e *ConstraintError
	return errors.As(err, &e)
}

// ValidationError is returned for writes that do not match the table
// schema.
type ValidationError struct {
	Name string // field or edge name
	Err  error
}

// NewValidationError returns a ValidationError for the field or edge name.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ents: validator failed for field %q: %s", e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// QueryError wraps a failed read with the label it ran on.
type QueryError struct {
	Entity string // table or edge label
	Op     string // e.g. "get", "unique", "paginate"
	Err    error
}

// NewQueryError returns a QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("ents: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("ents: querying %s: %v", e.Entity, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// IsQueryError reports whether err is, or wraps, a QueryError.
func IsQueryError(err error) bool {
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a failed write with the table it ran on.
type MutationError struct {
	Entity string // table
	Op     string // e.g. "insert", "patch", "delete"
	Err    error
}

// NewMutationError returns a MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("ents: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// IsMutationError reports whether err is, or wraps, a MutationError.
func IsMutationError(err error) bool {
	var e *MutationError
	return errors.As(err, &e)
}
