package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-scheduling/internal/apperr"
	"github.com/hackgods/doctor-scheduling/internal/directory"
	"github.com/hackgods/doctor-scheduling/internal/lock"
	"github.com/hackgods/doctor-scheduling/internal/notify"
	"github.com/hackgods/doctor-scheduling/pkg/logging"
)

func TestBookScenarioA(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.book(t, "1000", "patient-1")
	assert.Equal(t, StatusScheduled, first.Status)
	assert.EqualValues(t, 75000, first.FeeSnapshot)
	require.Len(t, first.History, 1)
	assert.Equal(t, StatusScheduled, first.History[0].Status)
	assert.Equal(t, first.CreatedAt, first.History[0].At)
	assert.Equal(t, directory.SlotBooked, f.slotStatus(t, "1000"))

	_, err := f.alloc.Book(ctx, BookingRequest{
		DoctorID: "dr-x", Date: testDate, SlotID: "1000",
		ConsultationType: directory.ConsultInPerson, PatientID: "patient-2",
	})
	require.ErrorIs(t, err, apperr.ErrConflict)
	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, apperr.SlotRef{DoctorID: "dr-x", Date: testDate, SlotID: "1000"}, conflict.Slot)

	second := f.book(t, "1100", "patient-2")
	assert.Equal(t, StatusScheduled, second.Status)
	assert.Equal(t, directory.SlotBooked, f.slotStatus(t, "1100"))
	assert.Equal(t, directory.SlotOpen, f.slotStatus(t, "1200"))

	assert.Equal(t, []notify.EventType{notify.EventCreated, notify.EventCreated}, f.dispatcher.types())
}

func TestBookErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	valid := BookingRequest{
		DoctorID: "dr-x", Date: testDate, SlotID: "1000",
		ConsultationType: directory.ConsultInPerson, PatientID: "p1",
	}

	tests := []struct {
		name   string
		mutate func(r *BookingRequest)
		want   error
	}{
		{"missing doctor id", func(r *BookingRequest) { r.DoctorID = "" }, apperr.ErrValidation},
		{"malformed date", func(r *BookingRequest) { r.Date = "10-03-2025" }, apperr.ErrValidation},
		{"missing patient", func(r *BookingRequest) { r.PatientID = "" }, apperr.ErrValidation},
		{"unknown consultation type", func(r *BookingRequest) { r.ConsultationType = "fax" }, apperr.ErrValidation},
		{"unknown doctor", func(r *BookingRequest) { r.DoctorID = "dr-y" }, directory.ErrDoctorNotFound},
		{"unknown slot", func(r *BookingRequest) { r.SlotID = "0900" }, directory.ErrSlotNotFound},
		{"unsupported consultation type", func(r *BookingRequest) { r.ConsultationType = directory.ConsultPhone }, apperr.ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := f.alloc.Book(ctx, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, directory.SlotOpen, f.slotStatus(t, "1000"), "failed bookings leave the slot open")
	all, err := f.store.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestBookSnapshotsFee(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.book(t, "1000", "p1")

	raised := drX()
	raised.ConsultationFee = 120000
	require.NoError(t, f.dir.Upsert(ctx, raised))

	got, err := f.ledger.Confirm(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 75000, got.FeeSnapshot)

	b := f.book(t, "1100", "p2")
	assert.EqualValues(t, 120000, b.FeeSnapshot)
}

func TestBookReleasesSlotWhenRecordFails(t *testing.T) {
	store := &flakyStore{Store: NewMemoryStore(), failCreate: true}
	f := newFixture(t, store)

	_, err := f.alloc.Book(context.Background(), BookingRequest{
		DoctorID: "dr-x", Date: testDate, SlotID: "1000",
		ConsultationType: directory.ConsultInPerson, PatientID: "p1",
	})
	require.Error(t, err)
	assert.Equal(t, directory.SlotOpen, f.slotStatus(t, "1000"))
	assert.Empty(t, f.dispatcher.types())
}

func TestBookConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const callers = 50
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.alloc.Book(ctx, BookingRequest{
				DoctorID: "dr-x", Date: testDate, SlotID: "1000",
				ConsultationType: directory.ConsultVideo, PatientID: "p",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, apperr.ErrConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, f.liveOwners(t)[directory.SlotRef{DoctorID: "dr-x", Date: testDate, SlotID: "1000"}])
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return lock.ErrNotAcquired
}

func TestBookLockContentionIsConflict(t *testing.T) {
	dir := directory.NewMemoryDirectory(drX())
	alloc := NewAllocator(dir, NewMemoryStore(), busyLocker{}, nil).WithLogger(logging.Nop())

	_, err := alloc.Book(context.Background(), BookingRequest{
		DoctorID: "dr-x", Date: testDate, SlotID: "1000",
		ConsultationType: directory.ConsultInPerson, PatientID: "p1",
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

type countingObserver struct {
	mu          sync.Mutex
	bookings    map[string]int
	transitions map[string]int
}

func (o *countingObserver) ObserveBooking(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.bookings == nil {
		o.bookings = map[string]int{}
	}
	o.bookings[outcome]++
}

func (o *countingObserver) ObserveTransition(from, to string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.transitions == nil {
		o.transitions = map[string]int{}
	}
	o.transitions[from+">"+to]++
}

func TestBookReportsOutcomes(t *testing.T) {
	f := newFixture(t, nil)
	obs := &countingObserver{}
	f.alloc.WithObserver(obs)

	f.book(t, "1000", "p1")
	_, err := f.alloc.Book(context.Background(), BookingRequest{
		DoctorID: "dr-x", Date: testDate, SlotID: "1000",
		ConsultationType: directory.ConsultInPerson, PatientID: "p2",
	})
	require.Error(t, err)

	assert.Equal(t, map[string]int{"booked": 1, "conflict": 1}, obs.bookings)
}
