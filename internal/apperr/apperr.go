// Package apperr holds the error taxonomy shared by the scheduling core and
// the HTTP layer.
package apperr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrState       = errors.New("invalid state transition")
	ErrUnsupported = errors.New("unsupported operation")
)

// NotFound returns an error that matches ErrNotFound.
func NotFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

// State returns an error that matches ErrState.
func State(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

// Unsupported returns an error that matches ErrUnsupported.
func Unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

// ValidationError reports a caller-fixable problem with one input field.
type ValidationError struct {
	Field string
	Msg   string
}

func Validation(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// SlotRef identifies a slot in errors without importing the directory package.
type SlotRef struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
	SlotID   string `json:"slot_id"`
}

func (r SlotRef) String() string {
	return r.DoctorID + "/" + r.Date + "/" + r.SlotID
}

// ConflictError is returned when a slot was taken by a concurrent caller.
// The caller should re-run discovery and retry with another slot.
type ConflictError struct {
	Slot   SlotRef
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("slot %s is no longer available", e.Slot)
	}
	return fmt.Sprintf("slot %s is no longer available: %s", e.Slot, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// PartialRescheduleError means the replacement appointment is booked but the
// original one has not been retired yet.
type PartialRescheduleError struct {
	OriginalID uuid.UUID
	NewID      uuid.UUID
	Err        error
}

func (e *PartialRescheduleError) Error() string {
	return fmt.Sprintf("reschedule incomplete: appointment %s booked but %s not yet retired: %v",
		e.NewID, e.OriginalID, e.Err)
}

func (e *PartialRescheduleError) Unwrap() error { return e.Err }

// RollbackError means a reschedule was abandoned because the original
// appointment went terminal, and the replacement could not be cancelled.
// Both appointments are then live or terminal independently and need repair.
type RollbackError struct {
	OriginalID uuid.UUID
	NewID      uuid.UUID
	Err        error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("reschedule of %s abandoned but replacement %s is still live: %v",
		e.OriginalID, e.NewID, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }

// Kind classifies err into one of the taxonomy names used in responses and logs.
func Kind(err error) string {
	var partial *PartialRescheduleError
	var rollback *RollbackError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rollback):
		return "internal"
	case errors.As(err, &partial):
		return "partial_reschedule"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	default:
		return "internal"
	}
}
