package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-scheduling/internal/directory"
	"github.com/hackgods/doctor-scheduling/internal/lock"
	"github.com/hackgods/doctor-scheduling/internal/notify"
	"github.com/hackgods/doctor-scheduling/pkg/logging"
)

const testDate = "2025-03-10"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev notify.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *recordingDispatcher) types() []notify.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]notify.EventType, len(d.events))
	for i, ev := range d.events {
		out[i] = ev.Type
	}
	return out
}

func slot(id string, hour int) directory.TimeSlot {
	start := time.Date(2025, 3, 10, hour, 0, 0, 0, time.UTC)
	return directory.TimeSlot{ID: id, Start: start, End: start.Add(30 * time.Minute), Status: directory.SlotOpen}
}

func drX() directory.DoctorProfile {
	return directory.DoctorProfile{
		ID:                "dr-x",
		Name:              "Dr. X",
		Specialization:    "Cardiologist",
		ConsultationFee:   75000,
		Rating:            4.6,
		ConsultationTypes: []directory.ConsultationType{directory.ConsultInPerson, directory.ConsultVideo},
		Availability: []directory.AvailabilityWindow{
			{Date: testDate, Slots: []directory.TimeSlot{slot("1000", 10), slot("1100", 11), slot("1200", 12)}},
		},
	}
}

type fixture struct {
	dir        *directory.MemoryDirectory
	store      Store
	alloc      *Allocator
	ledger     *Ledger
	dispatcher *recordingDispatcher
	clock      *fakeClock
}

func newFixture(t *testing.T, store Store) *fixture {
	t.Helper()
	if store == nil {
		store = NewMemoryStore()
	}
	f := &fixture{
		dir:        directory.NewMemoryDirectory(drX()),
		store:      store,
		dispatcher: &recordingDispatcher{},
		clock:      newFakeClock(),
	}
	f.alloc = NewAllocator(f.dir, store, lock.NewLocal(), f.dispatcher).
		WithClock(f.clock.Now).
		WithLogger(logging.Nop())
	f.ledger = NewLedger(store, f.alloc, f.dispatcher).
		WithClock(f.clock.Now).
		WithLogger(logging.Nop())
	return f
}

func (f *fixture) book(t *testing.T, slotID, patient string) Appointment {
	t.Helper()
	a, err := f.alloc.Book(context.Background(), BookingRequest{
		DoctorID:         "dr-x",
		Date:             testDate,
		SlotID:           slotID,
		ConsultationType: directory.ConsultInPerson,
		PatientID:        patient,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) slotStatus(t *testing.T, slotID string) directory.SlotStatus {
	t.Helper()
	s, err := f.dir.GetSlot(context.Background(), directory.SlotRef{DoctorID: "dr-x", Date: testDate, SlotID: slotID})
	require.NoError(t, err)
	return s.Status
}

// liveOwners counts live appointments per slot across the whole store.
func (f *fixture) liveOwners(t *testing.T) map[directory.SlotRef]int {
	t.Helper()
	all, err := f.store.List(context.Background(), Filter{})
	require.NoError(t, err)
	owners := map[directory.SlotRef]int{}
	for _, a := range all {
		if a.Live() {
			owners[a.Slot]++
		}
	}
	return owners
}

// flakyStore fails reschedule retirements while failRetire is positive.
type flakyStore struct {
	Store
	mu         sync.Mutex
	failRetire int
	failCreate bool
}

func (s *flakyStore) Create(ctx context.Context, a Appointment) error {
	s.mu.Lock()
	fail := s.failCreate
	s.mu.Unlock()
	if fail {
		return errors.New("insert failed")
	}
	return s.Store.Create(ctx, a)
}

func (s *flakyStore) UpdateStatus(ctx context.Context, id uuid.UUID, t Transition) (Appointment, error) {
	s.mu.Lock()
	if t.Change.Kind == KindRescheduled && s.failRetire > 0 {
		s.failRetire--
		s.mu.Unlock()
		return Appointment{}, errors.New("database unavailable")
	}
	s.mu.Unlock()
	return s.Store.UpdateStatus(ctx, id, t)
}

func (s *flakyStore) setFailRetire(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRetire = n
}

// flakyDirectory fails Booked -> Open releases while failRelease is positive.
type flakyDirectory struct {
	directory.Directory
	mu          sync.Mutex
	failRelease int
}

func (d *flakyDirectory) SetSlotStatus(ctx context.Context, ref directory.SlotRef, from, to directory.SlotStatus) error {
	d.mu.Lock()
	if from == directory.SlotBooked && to == directory.SlotOpen && d.failRelease > 0 {
		d.failRelease--
		d.mu.Unlock()
		return errors.New("directory unavailable")
	}
	d.mu.Unlock()
	return d.Directory.SetSlotStatus(ctx, ref, from, to)
}

// racingStore runs interfere once, right before the first status update, so
// that update is decided against a status that is already stale.
type racingStore struct {
	Store
	mu        sync.Mutex
	interfere func()
}

func (s *racingStore) UpdateStatus(ctx context.Context, id uuid.UUID, t Transition) (Appointment, error) {
	s.mu.Lock()
	fn := s.interfere
	s.interfere = nil
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	return s.Store.UpdateStatus(ctx, id, t)
}

// hookStore runs afterCreate once a replacement appointment is stored, and
// fails plain cancellations while failCancel is set.
type hookStore struct {
	Store
	mu          sync.Mutex
	afterCreate func(Appointment)
	failCancel  bool
}

func (s *hookStore) Create(ctx context.Context, a Appointment) error {
	if err := s.Store.Create(ctx, a); err != nil {
		return err
	}
	s.mu.Lock()
	hook := s.afterCreate
	s.mu.Unlock()
	if hook != nil && a.Supersedes != nil {
		hook(a)
	}
	return nil
}

func (s *hookStore) UpdateStatus(ctx context.Context, id uuid.UUID, t Transition) (Appointment, error) {
	s.mu.Lock()
	fail := s.failCancel && t.Change.Status == StatusCancelled && t.Change.Kind == KindTransition
	s.mu.Unlock()
	if fail {
		return Appointment{}, errors.New("database unavailable")
	}
	return s.Store.UpdateStatus(ctx, id, t)
}

func (s *hookStore) setFailCancel(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCancel = v
}

// assertConsistent checks that every slot has at most one live owner, that a
// slot is Booked exactly when it has one, and that no patient holds more than
// one live appointment.
func (f *fixture) assertConsistent(t *testing.T) {
	t.Helper()
	owners := f.liveOwners(t)

	all, err := f.store.List(context.Background(), Filter{})
	require.NoError(t, err)
	perPatient := map[string]int{}
	for _, a := range all {
		if a.Live() {
			perPatient[a.PatientID]++
		}
	}
	for patient, n := range perPatient {
		require.LessOrEqualf(t, n, 1, "patient %s holds %d live appointments", patient, n)
	}

	for _, id := range []string{"1000", "1100", "1200"} {
		ref := directory.SlotRef{DoctorID: "dr-x", Date: testDate, SlotID: id}
		require.LessOrEqualf(t, owners[ref], 1, "slot %s has %d live owners", id, owners[ref])
		want := directory.SlotOpen
		if owners[ref] == 1 {
			want = directory.SlotBooked
		}
		require.Equalf(t, want, f.slotStatus(t, id), "slot %s", id)
	}
}
