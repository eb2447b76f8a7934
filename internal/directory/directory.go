package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/hackgods/doctor-scheduling/internal/apperr"
)

var (
	ErrDoctorNotFound = apperr.NotFound("doctor")
	ErrSlotNotFound   = apperr.NotFound("slot")
	ErrSlotConflict   = fmt.Errorf("%w: slot status changed", apperr.ErrConflict)

	errMissingID = apperr.Validation("id", "is required")
)

// Directory is the canonical store of doctor profiles and slot availability.
//
// SetSlotStatus is the only way slot status changes: it succeeds only when the
// current status equals from, and otherwise returns ErrSlotConflict without
// mutating anything.
type Directory interface {
	GetByID(ctx context.Context, id string) (DoctorProfile, error)
	ListAll(ctx context.Context) ([]DoctorProfile, error)
	GetSlot(ctx context.Context, ref SlotRef) (TimeSlot, error)
	SetSlotStatus(ctx context.Context, ref SlotRef, from, to SlotStatus) error
}

// Catalog is implemented by directories that accept profile updates from the
// catalog loader. Upsert never changes the status of a slot that already exists.
type Catalog interface {
	Upsert(ctx context.Context, p DoctorProfile) error
}

// IsConflict reports whether err came from a lost compare-and-swap.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotConflict)
}
