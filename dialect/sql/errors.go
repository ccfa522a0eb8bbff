package sql

import (
	"errors"
	"strings"
)

// Constraint is the kind of constraint a statement violated.
type Constraint uint8

// Constraint kinds.
const (
	NoConstraint Constraint = iota
	UniqueConstraint
	ForeignKeyConstraint
	CheckConstraint
)

func (c Constraint) String() string {
	switch c {
	case UniqueConstraint:
		return "unique"
	case ForeignKeyConstraint:
		return "foreign key"
	case CheckConstraint:
		return "check"
	}
	return "none"
}

// constraintCodes classifies driver errors per constraint kind: SQLSTATE
// codes of lib/pq, error numbers of go-sql-driver/mysql, and the messages
// of modernc.org/sqlite and drivers without typed errors.
var constraintCodes = []struct {
	kind     Constraint
	state    string
	numbers  []uint16
	messages []string
}{
	{
		kind:     UniqueConstraint,
		state:    "23505",
		numbers:  []uint16{1062},
		messages: []string{"Error 1062", "violates unique constraint", "UNIQUE constraint failed"},
	},
	{
		kind:     ForeignKeyConstraint,
		state:    "23503",
		numbers:  []uint16{1451, 1452},
		messages: []string{"Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"},
	},
	{
		kind:     CheckConstraint,
		state:    "23514",
		numbers:  []uint16{3819},
		messages: []string{"Error 3819", "violates check constraint", "CHECK constraint failed"},
	},
}

// ConstraintError wraps a driver error caused by a constraint violation.
type ConstraintError struct {
	Kind Constraint
	err  error
}

func (e *ConstraintError) Error() string {
	return "dialect/sql: " + e.Kind.String() + " constraint failed: " + e.err.Error()
}

func (e *ConstraintError) Unwrap() error { return e.err }

// ClassifyConstraint returns the constraint err violated, if any.
func ClassifyConstraint(err error) Constraint {
	if err == nil {
		return NoConstraint
	}
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	var (
		state  string
		number uint16
	)
	if e, ok := asError[interface{ SQLState() string }](err); ok {
		state = e.SQLState()
	} else if e, ok := asError[interface{ Code() string }](err); ok {
		state = e.Code()
	}
	if e, ok := asError[interface{ Number() uint16 }](err); ok {
		number = e.Number()
	}
	msg := err.Error()
	for _, c := range constraintCodes {
		if state == c.state {
			return c.kind
		}
		for _, n := range c.numbers {
			if number == n {
				return c.kind
			}
		}
		for _, m := range c.messages {
			if strings.Contains(msg, m) {
				return c.kind
			}
		}
	}
	return NoConstraint
}

// WrapConstraintError wraps err in a ConstraintError when it resulted from
// a constraint violation. Other errors are returned as is.
func WrapConstraintError(err error) error {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return err
	}
	if kind := ClassifyConstraint(err); kind != NoConstraint {
		return &ConstraintError{Kind: kind, err: err}
	}
	return err
}

// IsConstraintError reports whether err resulted from a constraint violation.
func IsConstraintError(err error) bool { return ClassifyConstraint(err) != NoConstraint }

// IsUniqueConstraintError reports whether err resulted from a duplicate key.
func IsUniqueConstraintError(err error) bool { return ClassifyConstraint(err) == UniqueConstraint }

// IsForeignKeyConstraintError reports whether err resulted from a missing
// parent or a referenced child row.
func IsForeignKeyConstraintError(err error) bool {
	return ClassifyConstraint(err) == ForeignKeyConstraint
}

// IsCheckConstraintError reports whether err resulted from a failed check.
func IsCheckConstraintError(err error) bool { return ClassifyConstraint(err) == CheckConstraint }

// asError returns the first error in the chain of err implementing T.
func asError[T any](err error) (T, bool) {
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	var zero T
	return zero, false
}
