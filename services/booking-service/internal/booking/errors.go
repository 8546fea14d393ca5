package booking

import (
	"errors"
	"fmt"
)

// ErrStaleWrite is returned by repositories when a conditional update finds a newer version.
var ErrStaleWrite = errors.New("stale write: record changed since it was read")

// ValidationError covers malformed input, illegal transitions and rejected species.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// ConflictError means the slot or range is taken, or a concurrent writer won.
type ConflictError struct {
	Reason string
	Err    error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("conflict: %s: %v", e.Reason, e.Err)
	}
	return "conflict: " + e.Reason
}

func (e *ConflictError) Unwrap() error { return e.Err }

// NotFoundError also covers actors unrelated to the resource they address.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func notFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// asConflict turns lost optimistic writes into ConflictError and leaves other errors alone.
func asConflict(err error) error {
	if errors.Is(err, ErrStaleWrite) && !IsConflict(err) {
		return &ConflictError{Reason: "concurrent update", Err: err}
	}
	return err
}
