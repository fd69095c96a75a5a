package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAggregateNotFound indicates that no events exist for the requested aggregate.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrAlreadyDeleted indicates an operation on a soft-deleted aggregate.
	ErrAlreadyDeleted = errors.New("aggregate has been deleted")
)

// ValidationError is returned when an intent method's preconditions fail.
// It is always raised before any event is constructed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// RehydrationError indicates a malformed event history. It is fatal and
// signals data corruption or a programming error, not a recoverable state.
type RehydrationError struct {
	AggregateID string
	Reason      string
}

func (e *RehydrationError) Error() string {
	return fmt.Sprintf("cannot rehydrate aggregate %s: %s", e.AggregateID, e.Reason)
}
