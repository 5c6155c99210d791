package types

import "fmt"

// ValidationError rejects a submission before any Order is created. Field
// names the offending request field so the boundary layer can surface it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a field-level validation error.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a lookup miss: an unknown pair on a book query or an
// unknown order id on a cancel or status request.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError creates a lookup error for the given resource kind and id.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// InternalFault signals that a matching pass could not complete atomically.
// The book has already been rolled back to its pre-pass state when this is
// returned.
type InternalFault struct {
	Op  string
	Err error
}

func (e *InternalFault) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("internal fault in %s", e.Op)
	}
	return fmt.Sprintf("internal fault in %s: %v", e.Op, e.Err)
}

func (e *InternalFault) Unwrap() error {
	return e.Err
}
