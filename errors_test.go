package ents_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ents"
	"github.com/syssam/ents/store"
)

func TestNotFoundError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		label string
		id    store.ID
		want  string
	}{
		{name: "Chain", label: "users.profile", want: "ents: users.profile not found"},
		{name: "ID", label: "users", id: "users|1", want: "ents: users not found (id=users|1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ents.NewNotFoundError(tt.label, tt.id)
			assert.EqualError(t, err, tt.want)
			assert.ErrorIs(t, err, ents.ErrNotFound)
			assert.True(t, ents.IsNotFound(fmt.Errorf("wrapper: %w", err)))
			var nfe *ents.NotFoundError
			require.ErrorAs(t, fmt.Errorf("wrapper: %w", err), &nfe)
			assert.Equal(t, tt.id, nfe.ID)
		})
	}
	assert.True(t, ents.IsNotFound(ents.ErrNotFound))
	assert.False(t, ents.IsNotFound(store.ErrNotFound))
	assert.False(t, ents.IsNotFound(nil))
}

func TestNotSingularError(t *testing.T) {
	t.Parallel()
	assert.EqualError(t, ents.NewNotSingularError("users", 0), "ents: users not singular")
	err := ents.NewNotSingularError("users.friends", 2)
	assert.EqualError(t, err, "ents: users.friends not singular (2 matches)")
	assert.ErrorIs(t, err, ents.ErrNotSingular)
	assert.True(t, ents.IsNotSingular(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, ents.IsNotSingular(nil))
}

func TestDanglingReferenceError(t *testing.T) {
	t.Parallel()
	err := &ents.DanglingReferenceError{
		Edge:  "users.friends",
		Row:   "friends|1",
		Field: "bId",
		Table: "users",
		ID:    "users|2",
	}
	assert.Equal(t, "ents: dangling reference on edge users.friends: friends|1.bId points to missing users document users|2", err.Error())
	assert.True(t, errors.Is(err, ents.ErrDanglingReference))
	assert.True(t, ents.IsDanglingReference(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, ents.IsDanglingReference(ents.ErrNotFound))
}

func TestInvalidIDError(t *testing.T) {
	t.Parallel()
	err := &ents.InvalidIDError{Table: "users", ID: "messages|1"}
	assert.Equal(t, `ents: "messages|1" is not an id of table users`, err.Error())
	assert.True(t, errors.Is(err, ents.ErrInvalidID))
}

func TestConstraintError(t *testing.T) {
	t.Parallel()
	err := &ents.ConstraintError{Table: "users", Field: "profileId", Value: "profiles|1", Holder: "users|2"}
	assert.EqualError(t, err, "ents: constraint failed: users.profileId: profiles|1 is already used by users|2")
	assert.True(t, ents.IsConstraintError(ents.NewMutationError("users", "insert", err)))
	assert.False(t, ents.IsConstraintError(errors.New("duplicate")))
	assert.False(t, ents.IsConstraintError(nil))
}

func TestValidationError(t *testing.T) {
	t.Parallel()
	inner := errors.New("unknown field")
	err := ents.NewValidationError("nickname", inner)
	assert.Equal(t, `ents: validator failed for field "nickname": unknown field`, err.Error())
	assert.True(t, errors.Is(err, inner))
	assert.True(t, ents.IsValidationError(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, ents.IsValidationError(inner))
}

func TestQueryMutationErrors(t *testing.T) {
	t.Parallel()
	qerr := ents.NewQueryError("users", "unique", ents.ErrNotSingular)
	assert.Equal(t, "ents: querying users (unique): ents: entity not singular", qerr.Error())
	assert.True(t, errors.Is(qerr, ents.ErrNotSingular))
	assert.True(t, ents.IsQueryError(qerr))
	assert.Equal(t, "ents: querying users: boom", ents.NewQueryError("users", "", errors.New("boom")).Error())

	merr := ents.NewMutationError("users", "insert", errors.New("boom"))
	assert.Equal(t, "ents: insert users: boom", merr.Error())
	assert.True(t, ents.IsMutationError(fmt.Errorf("wrapper: %w", merr)))
	assert.False(t, ents.IsMutationError(qerr))
}
