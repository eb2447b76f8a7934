package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-scheduling/internal/apperr"
	"github.com/hackgods/doctor-scheduling/internal/directory"
	"github.com/hackgods/doctor-scheduling/internal/lock"
	"github.com/hackgods/doctor-scheduling/internal/notify"
	"github.com/hackgods/doctor-scheduling/pkg/logging"
)

const (
	// maxStaleRetries bounds how often a transition re-reads after losing a
	// conditional write to a concurrent caller.
	maxStaleRetries = 5

	reasonRescheduled     = "rescheduled"
	reasonRescheduleAbort = "reschedule aborted: original appointment is no longer active"
)

// Ledger owns appointment status after creation. Every status write is
// conditional on the status the decision was made against.
type Ledger struct {
	store      Store
	alloc      *Allocator
	dispatcher notify.Dispatcher
	observer   Observer
	logger     *logging.Logger
	now        func() time.Time
	retries    int

	// suspects holds the orphaned slots found by the previous sweep.
	sweepMu  sync.Mutex
	suspects map[directory.SlotRef]bool
}

func NewLedger(store Store, alloc *Allocator, dispatcher notify.Dispatcher) *Ledger {
	if dispatcher == nil {
		dispatcher = notify.Noop{}
	}
	return &Ledger{
		store:      store,
		alloc:      alloc,
		dispatcher: dispatcher,
		logger:     logging.Default().With("ledger"),
		now:        time.Now,
		retries:    3,
	}
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	if now != nil {
		l.now = now
	}
	return l
}

func (l *Ledger) WithLogger(logger *logging.Logger) *Ledger {
	if logger != nil {
		l.logger = logger.With("ledger")
	}
	return l
}

func (l *Ledger) WithObserver(o Observer) *Ledger {
	l.observer = o
	return l
}

// WithRescheduleRetries sets how many extra attempts phase two of a
// reschedule gets before reporting a PartialRescheduleError.
func (l *Ledger) WithRescheduleRetries(n int) *Ledger {
	if n >= 0 {
		l.retries = n
	}
	return l
}

// Book delegates to the allocator.
func (l *Ledger) Book(ctx context.Context, req BookingRequest) (Appointment, error) {
	return l.alloc.Book(ctx, req)
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (Appointment, error) {
	a, err := l.store.Get(ctx, id)
	if err != nil {
		return Appointment{}, fmt.Errorf("load appointment: %w", err)
	}
	return a, nil
}

// Confirm moves a Scheduled appointment to Confirmed.
func (l *Ledger) Confirm(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return l.advance(ctx, id, StatusConfirmed, notify.EventConfirmed)
}

// Complete moves a Confirmed appointment to Completed.
func (l *Ledger) Complete(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return l.advance(ctx, id, StatusCompleted, notify.EventCompleted)
}

func (l *Ledger) advance(ctx context.Context, id uuid.UUID, to Status, ev notify.EventType) (Appointment, error) {
	for attempt := 0; attempt < maxStaleRetries; attempt++ {
		a, err := l.Get(ctx, id)
		if err != nil {
			return Appointment{}, err
		}
		if !CanTransition(a.Status, to) {
			return Appointment{}, l.stateError(a, to)
		}

		updated, err := l.store.UpdateStatus(ctx, id, Transition{
			From:   a.Status,
			Change: StatusChange{Status: to, At: l.now(), Kind: KindTransition},
		})
		if errors.Is(err, errStaleStatus) {
			continue
		}
		if err != nil {
			return Appointment{}, fmt.Errorf("update appointment: %w", err)
		}

		l.committed(ctx, a.Status, updated, ev)
		return updated, nil
	}
	return Appointment{}, fmt.Errorf("appointment %s: %w", id, errStaleStatus)
}

// Cancel cancels a Scheduled or Confirmed appointment and frees its slot.
// Cancelling an already cancelled appointment returns it unchanged.
func (l *Ledger) Cancel(ctx context.Context, id uuid.UUID, reason string) (Appointment, error) {
	return l.cancel(ctx, id, reason, true)
}

func (l *Ledger) cancel(ctx context.Context, id uuid.UUID, reason string, announce bool) (Appointment, error) {
	for attempt := 0; attempt < maxStaleRetries; attempt++ {
		a, err := l.Get(ctx, id)
		if err != nil {
			return Appointment{}, err
		}
		if a.Status == StatusCancelled {
			return a, nil
		}
		if !CanTransition(a.Status, StatusCancelled) {
			return Appointment{}, l.stateError(a, StatusCancelled)
		}
		if reason == "" {
			return Appointment{}, apperr.Validation("reason", "is required")
		}

		updated, err := l.store.UpdateStatus(ctx, id, Transition{
			From:               a.Status,
			Change:             StatusChange{Status: StatusCancelled, At: l.now(), Reason: reason, Kind: KindTransition},
			CancellationReason: reason,
		})
		if errors.Is(err, errStaleStatus) {
			continue
		}
		if err != nil {
			return Appointment{}, fmt.Errorf("cancel appointment: %w", err)
		}

		l.releaseSlot(ctx, updated)
		if announce {
			l.committed(ctx, a.Status, updated, notify.EventCancelled)
		} else if l.observer != nil {
			l.observer.ObserveTransition(string(a.Status), string(updated.Status))
		}
		return updated, nil
	}
	return Appointment{}, fmt.Errorf("appointment %s: %w", id, errStaleStatus)
}

// Reschedule moves a live appointment to another slot of the same doctor.
//
// Phase one books the new slot; if that fails nothing has changed. Phase two
// retires the original (a Cancelled entry of kind rescheduled) and frees its
// slot. If phase two keeps failing the new appointment stays booked and a
// PartialRescheduleError is returned; ReconcileReschedules finishes the job.
func (l *Ledger) Reschedule(ctx context.Context, id uuid.UUID, newDate, newSlotID string) (Appointment, error) {
	if err := directory.ValidateDate("new_date", newDate); err != nil {
		return Appointment{}, err
	}
	if newSlotID == "" {
		return Appointment{}, apperr.Validation("new_slot_id", "is required")
	}

	orig, err := l.Get(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if orig.Status.Terminal() {
		return Appointment{}, l.stateError(orig, "rescheduled")
	}
	if orig.Slot.Date == newDate && orig.Slot.SlotID == newSlotID {
		return Appointment{}, apperr.Validation("new_slot_id", "is the appointment's current slot")
	}

	origID := orig.ID
	fresh, err := l.alloc.book(ctx, BookingRequest{
		DoctorID:         orig.DoctorID,
		Date:             newDate,
		SlotID:           newSlotID,
		ConsultationType: orig.ConsultationType,
		PatientID:        orig.PatientID,
	}, &origID)
	l.alloc.observeBooking(err)
	if err != nil {
		return Appointment{}, err
	}

	_, err = l.retire(ctx, origID, fresh.ID)
	switch {
	case err == nil:
		l.dispatch(ctx, fresh, notify.EventRescheduled)
		return fresh, nil

	case errors.Is(err, apperr.ErrState):
		// The original finished or was cancelled while we booked; undo phase one.
		if _, undoErr := l.cancel(ctx, fresh.ID, reasonRescheduleAbort, false); undoErr != nil {
			l.logger.Error().Err(undoErr).
				Str("appointment_id", origID.String()).
				Str("replacement_id", fresh.ID.String()).
				Msg("failed to roll back replacement appointment, needs manual repair")
			return Appointment{}, &apperr.RollbackError{OriginalID: origID, NewID: fresh.ID, Err: undoErr}
		}
		return Appointment{}, err

	default:
		l.logger.Error().Err(err).
			Str("appointment_id", origID.String()).
			Str("replacement_id", fresh.ID.String()).
			Msg("reschedule phase two failed")
		return fresh, &apperr.PartialRescheduleError{OriginalID: origID, NewID: fresh.ID, Err: err}
	}
}

// retire marks the original appointment superseded by newID and frees its
// slot. Retiring an appointment already superseded by newID is a no-op.
func (l *Ledger) retire(ctx context.Context, origID, newID uuid.UUID) (Appointment, error) {
	var lastErr error
	for attempt := 0; attempt <= l.retries; attempt++ {
		a, err := l.store.Get(ctx, origID)
		if err != nil {
			lastErr = err
			continue
		}
		if a.Status.Terminal() {
			if a.SupersededBy != nil && *a.SupersededBy == newID {
				return a, nil
			}
			return Appointment{}, l.stateError(a, "rescheduled")
		}

		updated, err := l.store.UpdateStatus(ctx, origID, Transition{
			From: a.Status,
			Change: StatusChange{
				Status: StatusCancelled,
				At:     l.now(),
				Reason: "superseded by " + newID.String(),
				Kind:   KindRescheduled,
			},
			CancellationReason: reasonRescheduled,
			SupersededBy:       &newID,
		})
		if err != nil {
			lastErr = err
			continue
		}

		l.releaseSlot(ctx, updated)
		if l.observer != nil {
			l.observer.ObserveTransition(string(a.Status), string(updated.Status))
		}
		return updated, nil
	}
	return Appointment{}, lastErr
}

// ReconcileReschedules finishes reschedules whose phase two never committed.
// It is meant to be called periodically by the reconciler worker.
func (l *Ledger) ReconcileReschedules(ctx context.Context) (int, error) {
	pending, err := l.store.PendingSupersessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("find pending reschedules: %w", err)
	}

	fixed := 0
	for _, fresh := range pending {
		if _, err := l.retire(ctx, *fresh.Supersedes, fresh.ID); err != nil {
			l.logger.Error().Err(err).
				Str("appointment_id", fresh.Supersedes.String()).
				Str("replacement_id", fresh.ID.String()).
				Msg("failed to retire superseded appointment")
			continue
		}
		l.dispatch(ctx, fresh, notify.EventRescheduled)
		fixed++
	}
	return fixed, nil
}

// ReleaseOrphanedSlots reopens Booked slots that no live appointment owns,
// which is what a failed slot release leaves behind. A slot is reopened only
// once two consecutive sweeps found it orphaned, and only under its slot lock,
// so a booking between its slot claim and its insert is left alone.
func (l *Ledger) ReleaseOrphanedSlots(ctx context.Context) (int, error) {
	doctors, err := l.alloc.dir.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list doctors: %w", err)
	}

	orphans := make(map[directory.SlotRef]bool)
	for _, d := range doctors {
		booked := bookedSlots(d)
		if len(booked) == 0 {
			continue
		}
		from, to := booked[0].Date, booked[0].Date
		for _, ref := range booked {
			from, to = min(from, ref.Date), max(to, ref.Date)
		}
		owned, err := l.liveSlots(ctx, d.ID, from, to)
		if err != nil {
			return 0, err
		}
		for _, ref := range booked {
			if !owned[ref] {
				orphans[ref] = true
			}
		}
	}

	l.sweepMu.Lock()
	previous := l.suspects
	l.suspects = orphans
	l.sweepMu.Unlock()

	released := 0
	for ref := range orphans {
		if !previous[ref] {
			continue
		}
		ok, err := l.reopen(ctx, ref)
		if err != nil {
			l.logger.Error().Err(err).Str("slot", ref.String()).Msg("failed to reopen orphaned slot")
			continue
		}
		if !ok {
			continue
		}
		l.logger.Warn().Str("slot", ref.String()).Msg("reopened orphaned slot")
		released++

		l.sweepMu.Lock()
		delete(l.suspects, ref)
		l.sweepMu.Unlock()
	}
	return released, nil
}

// reopen flips an orphaned slot back to Open unless a live owner appeared.
func (l *Ledger) reopen(ctx context.Context, ref directory.SlotRef) (bool, error) {
	reopened := false
	critical := func(ctx context.Context) error {
		owned, err := l.liveSlots(ctx, ref.DoctorID, ref.Date, ref.Date)
		if err != nil {
			return err
		}
		if owned[ref] {
			return nil
		}
		err = l.alloc.release(ctx, ref)
		if directory.IsConflict(err) {
			return nil
		}
		if err != nil {
			return err
		}
		reopened = true
		return nil
	}

	var err error
	if l.alloc.locker == nil {
		err = critical(ctx)
	} else {
		err = l.alloc.locker.WithLock(ctx, lock.SlotKey(ref.DoctorID, ref.Date, ref.SlotID), critical)
	}
	if errors.Is(err, lock.ErrNotAcquired) {
		return false, nil
	}
	return reopened, err
}

func (l *Ledger) liveSlots(ctx context.Context, doctorID, from, to string) (map[directory.SlotRef]bool, error) {
	list, err := l.store.List(ctx, Filter{DoctorID: doctorID, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	owned := make(map[directory.SlotRef]bool, len(list))
	for _, a := range list {
		if a.Live() {
			owned[a.Slot] = true
		}
	}
	return owned, nil
}

func bookedSlots(d directory.DoctorProfile) []directory.SlotRef {
	var out []directory.SlotRef
	for _, w := range d.Availability {
		for _, s := range w.Slots {
			if s.Status == directory.SlotBooked {
				out = append(out, directory.SlotRef{DoctorID: d.ID, Date: w.Date, SlotID: s.ID})
			}
		}
	}
	return out
}

// List returns appointments matching f ordered by slot start.
func (l *Ledger) List(ctx context.Context, f Filter) ([]Appointment, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	if f.From != "" {
		if err := directory.ValidateDate("from", f.From); err != nil {
			return nil, err
		}
	}
	if f.To != "" {
		if err := directory.ValidateDate("to", f.To); err != nil {
			return nil, err
		}
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, apperr.Validation("limit", "limit and offset must not be negative")
	}

	list, err := l.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

func (l *Ledger) ListByPatient(ctx context.Context, patientID string) ([]Appointment, error) {
	return l.List(ctx, Filter{PatientID: patientID})
}

func (l *Ledger) ListByDoctor(ctx context.Context, doctorID string) ([]Appointment, error) {
	return l.List(ctx, Filter{DoctorID: doctorID})
}

func (l *Ledger) ListByStatus(ctx context.Context, status Status) ([]Appointment, error) {
	return l.List(ctx, Filter{Status: status})
}

// ListInRange returns appointments whose slot date lies in [from, to].
func (l *Ledger) ListInRange(ctx context.Context, from, to string) ([]Appointment, error) {
	return l.List(ctx, Filter{From: from, To: to})
}

func (l *Ledger) releaseSlot(ctx context.Context, a Appointment) {
	if err := l.alloc.release(context.WithoutCancel(ctx), a.Slot); err != nil {
		l.logger.Error().Err(err).
			Str("appointment_id", a.ID.String()).
			Str("slot", a.Slot.String()).
			Msg("failed to release slot")
	}
}

func (l *Ledger) stateError(a Appointment, target any) error {
	l.logger.Warn().
		Str("appointment_id", a.ID.String()).
		Str("status", string(a.Status)).
		Str("target", fmt.Sprint(target)).
		Msg("rejected status transition")
	return apperr.State("appointment %s is %s and cannot be %s", a.ID, a.Status, target)
}

func (l *Ledger) committed(ctx context.Context, from Status, a Appointment, ev notify.EventType) {
	if l.observer != nil {
		l.observer.ObserveTransition(string(from), string(a.Status))
	}
	l.dispatch(ctx, a, ev)
}

func (l *Ledger) dispatch(ctx context.Context, a Appointment, ev notify.EventType) {
	l.dispatcher.Dispatch(ctx, notify.Event{
		AppointmentID: a.ID,
		Type:          ev,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		At:            l.now(),
	})
}
