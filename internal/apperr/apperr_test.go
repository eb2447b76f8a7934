package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", Validation("date", "required"), "validation"},
		{"wrapped validation", fmt.Errorf("book: %w", Validation("slot_id", "required")), "validation"},
		{"not found", NotFound("doctor"), "not_found"},
		{"conflict", &ConflictError{Slot: SlotRef{DoctorID: "d1", Date: "2025-01-02", SlotID: "s1"}}, "conflict"},
		{"state", State("cannot confirm %s", "completed"), "state"},
		{"unsupported", Unsupported("video"), "unsupported"},
		{"partial", &PartialRescheduleError{OriginalID: uuid.New(), NewID: uuid.New(), Err: errors.New("db down")}, "partial_reschedule"},
		{"rollback", &RollbackError{OriginalID: uuid.New(), NewID: uuid.New(), Err: State("already completed")}, "internal"},
		{"internal", errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestConflictErrorMessageNamesSlot(t *testing.T) {
	err := &ConflictError{Slot: SlotRef{DoctorID: "d1", Date: "2025-01-02", SlotID: "s1"}}
	assert.Contains(t, err.Error(), "d1/2025-01-02/s1")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPartialRescheduleUnwraps(t *testing.T) {
	cause := errors.New("db down")
	err := &PartialRescheduleError{OriginalID: uuid.New(), NewID: uuid.New(), Err: cause}
	assert.ErrorIs(t, err, cause)
}
