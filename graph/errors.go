package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for schema compilation failures.
var (
	// ErrInvalidSchema indicates a table, field or index declaration error.
	ErrInvalidSchema = errors.New("ents: invalid schema")
	// ErrInvalidEdge indicates an edge declaration error.
	ErrInvalidEdge = errors.New("ents: invalid edge definition")
	// ErrAmbiguousInverse indicates that more than one edge qualifies as the inverse of an edge.
	ErrAmbiguousInverse = errors.New("ents: ambiguous inverse edge")
	// ErrTypeMismatch indicates that two paired edges disagree on their storage shape.
	ErrTypeMismatch = errors.New("ents: edge type mismatch")
	// ErrMissingInverse indicates that an edge requires an inverse that was not declared.
	ErrMissingInverse = errors.New("ents: missing inverse edge")
)

// SchemaError represents a table, field or index declaration error.
type SchemaError struct {
	Table   string // Table name
	Field   string // Field or index name (if applicable)
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("ents: schema error")
	if e.Table != "" {
		b.WriteString(" on table ")
		b.WriteString(e.Table)
	}
	if e.Field != "" {
		b.WriteString(" field ")
		b.WriteString(e.Field)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches the sentinel error for SchemaError.
func (e *SchemaError) Is(target error) bool {
	return target == ErrInvalidSchema
}

// NewSchemaError creates a new SchemaError.
func NewSchemaError(table, field, message string, cause error) *SchemaError {
	return &SchemaError{
		Table:   table,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// EdgeError represents an edge resolution error.
type EdgeError struct {
	From       string   // Table declaring the edge
	To         string   // Target table
	Edge       string   // Edge name
	Kind       error    // One of ErrAmbiguousInverse, ErrTypeMismatch, ErrMissingInverse or nil
	Candidates []string // Competing inverse edges, for ambiguity errors
	Message    string
}

// Error implements the error interface.
func (e *EdgeError) Error() string {
	var b strings.Builder
	b.WriteString("ents: edge error")
	if e.Edge != "" {
		b.WriteString(" on edge ")
		b.WriteString(e.Edge)
	}
	if e.From != "" && e.To != "" {
		fmt.Fprintf(&b, " (%s -> %s)", e.From, e.To)
	} else if e.From != "" {
		b.WriteString(" from ")
		b.WriteString(e.From)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, " (candidates: %s)", strings.Join(e.Candidates, ", "))
	}
	return b.String()
}

// Unwrap returns the error kind.
func (e *EdgeError) Unwrap() error {
	return e.Kind
}

// Is reports whether the target matches the sentinel error for EdgeError.
func (e *EdgeError) Is(target error) bool {
	return target == ErrInvalidEdge
}

// IsSchemaError reports whether the error is a SchemaError.
func IsSchemaError(err error) bool {
	var schemaErr *SchemaError
	return errors.As(err, &schemaErr)
}

// IsEdgeError reports whether the error is an EdgeError.
func IsEdgeError(err error) bool {
	var edgeErr *EdgeError
	return errors.As(err, &edgeErr)
}
