// LOCATION: internal/errors/errors.go
//
// Consolidated error definitions for the entire project.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Not found errors
	ErrNotFound         = errors.New("not found")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrModelNotFound    = errors.New("model not found")
	ErrTypeNotFound     = errors.New("device type not found")
	ErrBufferNotFound   = errors.New("buffer entry not found")
	ErrSliceNotFound    = errors.New("slice not found")
	ErrSetNotFound      = errors.New("set not found")
	ErrTemplateNotFound = errors.New("set template not found")

	// Already exists errors
	ErrAlreadyExists         = errors.New("already exists")
	ErrSliceAlreadyExists    = errors.New("slice already exists")
	ErrSetAlreadyExists      = errors.New("set already exists")
	ErrTemplateAlreadyExists = errors.New("set template already exists")

	// Addressing errors
	ErrSchemeMismatch = errors.New("position shape does not match model indexing mode")
	ErrConflict       = errors.New("duplicate position")
	ErrInvalidRange   = errors.New("invalid range: begin must not compare after end")

	// State errors
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStaleState        = errors.New("stale status: lost concurrent update race")

	// Reference and binding errors
	ErrUnknownReference  = errors.New("unknown device or model reference")
	ErrTypeMismatch      = errors.New("device type does not match template placeholder")
	ErrModelMismatch     = errors.New("model does not match template placeholder")
	ErrDuplicatePosition = errors.New("duplicate template position")

	// Validation errors
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidIndexing = errors.New("invalid indexing mode")
	ErrInvalidPayload  = errors.New("invalid payload")

	// Internal errors
	ErrInternal = errors.New("internal error")
	ErrDatabase = errors.New("database error")
	ErrClosed   = errors.New("store is closed")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDeviceNotFound) ||
		errors.Is(err, ErrModelNotFound) ||
		errors.Is(err, ErrTypeNotFound) ||
		errors.Is(err, ErrBufferNotFound) ||
		errors.Is(err, ErrSliceNotFound) ||
		errors.Is(err, ErrSetNotFound) ||
		errors.Is(err, ErrTemplateNotFound)
}

// IsAlreadyExists returns true if err is an already-exists error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrSliceAlreadyExists) ||
		errors.Is(err, ErrSetAlreadyExists) ||
		errors.Is(err, ErrTemplateAlreadyExists)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidIndexing) ||
		errors.Is(err, ErrInvalidPayload)
}

// IsCallerBug returns true for errors that indicate a caller mistake.
// These are never retried by the core; the caller must correct the
// request before trying again.
func IsCallerBug(err error) bool {
	return errors.Is(err, ErrSchemeMismatch) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrUnknownReference) ||
		errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrModelMismatch) ||
		errors.Is(err, ErrDuplicatePosition)
}

// IsRetriable returns true if the error is potentially retriable.
// ErrStaleState is the only core error a worker should retry on its
// own, after re-reading the current status.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrStaleState)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewAlreadyExists creates an already-exists error with context.
func NewAlreadyExists(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrAlreadyExists)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
