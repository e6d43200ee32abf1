package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound represents a resource not found error in the repository layer.
type ErrNotFound struct {
	Resource string // The type of resource (e.g., "user", "post")
	ID       string // The identifier that was not found
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
}

// IsNotFound checks if an error is a repository not found error.
func IsNotFound(err error) bool {
	var target ErrNotFound
	return errors.As(err, &target)
}

// ErrConflict represents a conflict error in the repository layer: a
// failed uniqueness guard or a stale Version on a conditional write.
type ErrConflict struct {
	Resource string
	ID       string
	Reason   string
}

func (e ErrConflict) Error() string {
	return fmt.Sprintf("conflict with %s '%s': %s", e.Resource, e.ID, e.Reason)
}

// IsConflict checks if an error is a repository conflict error.
func IsConflict(err error) bool {
	var target ErrConflict
	return errors.As(err, &target)
}

// ErrForbidden is returned when the caller does not own the resource it is
// trying to change.
type ErrForbidden struct {
	Resource string
	ID       string
	Reason   string
}

func (e ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden on %s '%s': %s", e.Resource, e.ID, e.Reason)
}

// IsForbidden checks if an error is a repository forbidden error.
func IsForbidden(err error) bool {
	var target ErrForbidden
	return errors.As(err, &target)
}

// NewNotFound creates a new ErrNotFound.
func NewNotFound(resource, id string) ErrNotFound {
	return ErrNotFound{Resource: resource, ID: id}
}

// NewConflict creates a new ErrConflict.
func NewConflict(resource, id, reason string) ErrConflict {
	return ErrConflict{Resource: resource, ID: id, Reason: reason}
}

// NewForbidden creates a new ErrForbidden.
func NewForbidden(resource, id, reason string) ErrForbidden {
	return ErrForbidden{Resource: resource, ID: id, Reason: reason}
}
