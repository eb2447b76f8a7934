package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-scheduling/internal/apperr"
	"github.com/hackgods/doctor-scheduling/internal/directory"
	"github.com/hackgods/doctor-scheduling/internal/lock"
	"github.com/hackgods/doctor-scheduling/internal/notify"
	"github.com/hackgods/doctor-scheduling/pkg/logging"
)

// Observer receives booking outcomes and committed transitions.
type Observer interface {
	ObserveBooking(outcome string)
	ObserveTransition(from, to string)
}

type BookingRequest struct {
	DoctorID         string                     `json:"doctor_id"`
	Date             string                     `json:"date"`
	SlotID           string                     `json:"slot_id"`
	ConsultationType directory.ConsultationType `json:"consultation_type"`
	PatientID        string                     `json:"patient_id"`
}

func (r BookingRequest) ref() directory.SlotRef {
	return directory.SlotRef{DoctorID: r.DoctorID, Date: r.Date, SlotID: r.SlotID}
}

func (r BookingRequest) validate() error {
	if err := r.ref().Validate(); err != nil {
		return err
	}
	if r.PatientID == "" {
		return apperr.Validation("patient_id", "is required")
	}
	if r.ConsultationType == "" {
		return apperr.Validation("consultation_type", "is required")
	}
	if !r.ConsultationType.Valid() {
		return apperr.Validation("consultation_type", fmt.Sprintf("unknown type %q", r.ConsultationType))
	}
	return nil
}

// Allocator binds a single slot to a new appointment. The slot is flipped
// Open -> Booked through the directory's compare-and-swap before the record
// is written, and flipped back if the write fails, so neither side exists
// without the other.
type Allocator struct {
	dir        directory.Directory
	store      Store
	locker     lock.Locker
	dispatcher notify.Dispatcher
	observer   Observer
	logger     *logging.Logger
	now        func() time.Time
}

func NewAllocator(dir directory.Directory, store Store, locker lock.Locker, dispatcher notify.Dispatcher) *Allocator {
	if dispatcher == nil {
		dispatcher = notify.Noop{}
	}
	return &Allocator{
		dir:        dir,
		store:      store,
		locker:     locker,
		dispatcher: dispatcher,
		logger:     logging.Default().With("allocator"),
		now:        time.Now,
	}
}

func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	if now != nil {
		a.now = now
	}
	return a
}

func (a *Allocator) WithLogger(logger *logging.Logger) *Allocator {
	if logger != nil {
		a.logger = logger.With("allocator")
	}
	return a
}

func (a *Allocator) WithObserver(o Observer) *Allocator {
	a.observer = o
	return a
}

// Book creates a Scheduled appointment for the requested slot.
func (a *Allocator) Book(ctx context.Context, req BookingRequest) (Appointment, error) {
	appt, err := a.book(ctx, req, nil)
	a.observeBooking(err)
	if err != nil {
		return Appointment{}, err
	}

	a.dispatch(ctx, appt, notify.EventCreated)
	return appt, nil
}

func (a *Allocator) book(ctx context.Context, req BookingRequest, supersedes *uuid.UUID) (Appointment, error) {
	if err := req.validate(); err != nil {
		return Appointment{}, err
	}
	ref := req.ref()

	doctor, err := a.dir.GetByID(ctx, req.DoctorID)
	if err != nil {
		return Appointment{}, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.Offers(req.ConsultationType) {
		return Appointment{}, apperr.Unsupported("doctor %s does not offer %s consultations", doctor.ID, req.ConsultationType)
	}

	slot, err := a.dir.GetSlot(ctx, ref)
	if err != nil {
		return Appointment{}, fmt.Errorf("load slot: %w", err)
	}
	if slot.Status != directory.SlotOpen {
		return Appointment{}, &apperr.ConflictError{Slot: ref.Err(), Reason: "slot is " + string(slot.Status)}
	}

	var created Appointment
	critical := func(ctx context.Context) error {
		if err := a.dir.SetSlotStatus(ctx, ref, directory.SlotOpen, directory.SlotBooked); err != nil {
			if directory.IsConflict(err) {
				return &apperr.ConflictError{Slot: ref.Err(), Reason: "booked by another request"}
			}
			return fmt.Errorf("claim slot: %w", err)
		}

		now := a.now()
		appt := Appointment{
			ID:               uuid.New(),
			DoctorID:         doctor.ID,
			PatientID:        req.PatientID,
			Slot:             ref,
			SlotStart:        slot.Start,
			SlotEnd:          slot.End,
			ConsultationType: req.ConsultationType,
			Status:           StatusScheduled,
			FeeSnapshot:      doctor.ConsultationFee,
			CreatedAt:        now,
			UpdatedAt:        now,
			History:          []StatusChange{{Status: StatusScheduled, At: now, Kind: KindTransition}},
			Supersedes:       supersedes,
		}

		if err := a.store.Create(ctx, appt); err != nil {
			if relErr := a.release(context.WithoutCancel(ctx), ref); relErr != nil {
				a.logger.Error().Err(relErr).Str("slot", ref.String()).Msg("failed to release slot after create error")
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt
		return nil
	}

	if a.locker == nil {
		err = critical(ctx)
	} else {
		err = a.locker.WithLock(ctx, lock.SlotKey(ref.DoctorID, ref.Date, ref.SlotID), critical)
	}
	if errors.Is(err, lock.ErrNotAcquired) {
		return Appointment{}, &apperr.ConflictError{Slot: ref.Err(), Reason: "slot is currently being booked"}
	}
	if err != nil {
		return Appointment{}, err
	}

	a.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("slot", ref.String()).
		Str("patient_id", created.PatientID).
		Msg("slot booked")
	return created, nil
}

// release frees a slot whose owning appointment is being retired.
func (a *Allocator) release(ctx context.Context, ref directory.SlotRef) error {
	return a.dir.SetSlotStatus(ctx, ref, directory.SlotBooked, directory.SlotOpen)
}

func (a *Allocator) observeBooking(err error) {
	if a.observer == nil {
		return
	}
	outcome := "booked"
	if err != nil {
		outcome = apperr.Kind(err)
	}
	a.observer.ObserveBooking(outcome)
}

func (a *Allocator) dispatch(ctx context.Context, appt Appointment, ev notify.EventType) {
	a.dispatcher.Dispatch(ctx, notify.Event{
		AppointmentID: appt.ID,
		Type:          ev,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		At:            a.now(),
	})
}
