package store

import (
	"errors"
	"fmt"
)

// ErrAlreadyMember is returned when adding an account that is already in the
// group's member list.
var ErrAlreadyMember = errors.New("account is already a member of the group")

// NotFoundError reports a lookup of an entity that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// DuplicateKeyError reports a unique-key conflict, e.g. a taken username.
// The store surfaces the conflict instead of silently overwriting, so races
// on uniqueness are resolved by the database's own constraint.
type DuplicateKeyError struct {
	Field string
	Value string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate %s %q", e.Field, e.Value)
}

// InvalidArgumentError reports a request that is malformed before it touches
// any state.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Reason
}

// InvariantViolationError reports stored state that a correctly-operating
// system never produces, e.g. a children pointer to a missing row. It is a
// defect signal and must be surfaced, never masked.
type InvariantViolationError struct {
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return "invariant violation: " + e.Detail
}

// IsNotFound reports whether err is a NotFoundError anywhere in its chain.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}
