package store

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by stores.
var (
	// ErrInvalidID is returned for malformed identifiers or identifiers of
	// another table.
	ErrInvalidID = errors.New("store: invalid id")
	// ErrNotFound is returned by mutations of missing documents.
	ErrNotFound = errors.New("store: document not found")
	// ErrSystemField is returned when a write sets or changes a system field.
	ErrSystemField = errors.New("store: system fields cannot be written")
	// ErrUnknownIndex is returned for scans over an undeclared index.
	ErrUnknownIndex = errors.New("store: unknown index")
	// ErrInvalidRange is returned for index ranges that do not follow the
	// index field order.
	ErrInvalidRange = errors.New("store: invalid index range")
	// ErrNotUnique is returned by Scan.Unique when more than one document matches.
	ErrNotUnique = errors.New("store: more than one document matches")
	// ErrInvalidCursor is returned for pagination cursors the store did not issue.
	ErrInvalidCursor = errors.New("store: invalid cursor")
)

// IndexError describes an invalid index access.
type IndexError struct {
	Table string
	Index string
	Err   error
	msg   string
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	s := fmt.Sprintf("%s: %s.%s", e.Err, e.Table, e.Index)
	if e.msg != "" {
		s += ": " + e.msg
	}
	return s
}

// Unwrap returns the sentinel error.
func (e *IndexError) Unwrap() error { return e.Err }

// IDError describes an identifier that cannot be used for an operation.
type IDError struct {
	ID    string
	Table string // expected table, if any
	Err   error
}

// Error implements the error interface.
func (e *IDError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s: %q is not an id of table %q", e.Err, e.ID, e.Table)
	}
	return fmt.Sprintf("%s: %q", e.Err, e.ID)
}

// Unwrap returns the sentinel error.
func (e *IDError) Unwrap() error { return e.Err }
