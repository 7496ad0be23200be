package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity does not exist or belongs to another owner.
	ErrNotFound = errors.New("not found")

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("storage failure")
)

// ValidationError describes input that violates a domain rule
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a *ValidationError for the given field
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StorageError wraps a failure of the underlying record store.
// The operation had no effect and may be retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// NewStorageError wraps err unless it is nil, already a storage error or a not-found error
func NewStorageError(op string, err error) error {
	if err == nil || errors.Is(err, ErrStorage) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
