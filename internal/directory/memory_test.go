package directory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-scheduling/internal/apperr"
)

func slotAt(id string, hour int) TimeSlot {
	start := time.Date(2025, 3, 10, hour, 0, 0, 0, time.UTC)
	return TimeSlot{ID: id, Start: start, End: start.Add(30 * time.Minute), Status: SlotOpen}
}

func sampleDoctor(id string) DoctorProfile {
	return DoctorProfile{
		ID:                id,
		Name:              "Dr. " + id,
		Specialization:    "Cardiologist",
		Languages:         []string{"english"},
		ConsultationFee:   50000,
		Rating:            4.5,
		ReviewCount:       10,
		ConsultationTypes: []ConsultationType{ConsultInPerson},
		Availability: []AvailabilityWindow{
			{Date: "2025-03-10", Slots: []TimeSlot{slotAt("1100", 11), slotAt("1000", 10)}},
		},
	}
}

func TestMemoryDirectoryGetAndList(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory(sampleDoctor("b"), sampleDoctor("a"))

	p, err := dir.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Dr. a", p.Name)
	require.Len(t, p.Availability, 1)
	assert.Equal(t, "1000", p.Availability[0].Slots[0].ID, "slots are ordered by start")

	_, err = dir.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	all, err := dir.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}

func TestMemoryDirectoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory(sampleDoctor("a"))

	p, err := dir.GetByID(ctx, "a")
	require.NoError(t, err)
	p.Availability[0].Slots[0].Status = SlotBooked
	p.Languages[0] = "klingon"

	again, err := dir.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, SlotOpen, again.Availability[0].Slots[0].Status)
	assert.Equal(t, "english", again.Languages[0])
}

func TestMemoryDirectorySetSlotStatus(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory(sampleDoctor("a"))
	ref := SlotRef{DoctorID: "a", Date: "2025-03-10", SlotID: "1000"}

	require.NoError(t, dir.SetSlotStatus(ctx, ref, SlotOpen, SlotBooked))

	err := dir.SetSlotStatus(ctx, ref, SlotOpen, SlotBooked)
	assert.ErrorIs(t, err, ErrSlotConflict)
	assert.True(t, IsConflict(err))

	slot, err := dir.GetSlot(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, SlotBooked, slot.Status)

	other, err := dir.GetSlot(ctx, SlotRef{DoctorID: "a", Date: "2025-03-10", SlotID: "1100"})
	require.NoError(t, err)
	assert.Equal(t, SlotOpen, other.Status)

	tests := []struct {
		name string
		ref  SlotRef
		want error
	}{
		{"unknown doctor", SlotRef{DoctorID: "x", Date: "2025-03-10", SlotID: "1000"}, ErrDoctorNotFound},
		{"unknown date", SlotRef{DoctorID: "a", Date: "2025-03-11", SlotID: "1000"}, ErrSlotNotFound},
		{"unknown slot", SlotRef{DoctorID: "a", Date: "2025-03-10", SlotID: "0900"}, ErrSlotNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, dir.SetSlotStatus(ctx, tt.ref, SlotOpen, SlotBooked), tt.want)
		})
	}
}

func TestMemoryDirectoryConcurrentCASHasOneWinner(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory(sampleDoctor("a"))
	ref := SlotRef{DoctorID: "a", Date: "2025-03-10", SlotID: "1000"}

	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := dir.SetSlotStatus(ctx, ref, SlotOpen, SlotBooked)
			if err == nil {
				atomic.AddInt32(&wins, 1)
			} else if IsConflict(err) {
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	assert.EqualValues(t, 63, conflicts)
}

func TestMemoryDirectoryUpsertKeepsSlotStatus(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory(sampleDoctor("a"))
	booked := SlotRef{DoctorID: "a", Date: "2025-03-10", SlotID: "1000"}
	require.NoError(t, dir.SetSlotStatus(ctx, booked, SlotOpen, SlotBooked))

	update := sampleDoctor("a")
	update.ConsultationFee = 90000
	// The update drops both existing slots and offers a new one.
	update.Availability = []AvailabilityWindow{
		{Date: "2025-03-10", Slots: []TimeSlot{{ID: "1400", Start: slotAt("", 14).Start, End: slotAt("", 14).End, Status: SlotBooked}}},
	}
	require.NoError(t, dir.Upsert(ctx, update))

	p, err := dir.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 90000, p.ConsultationFee)

	statuses := map[string]SlotStatus{}
	for _, s := range p.Availability[0].Slots {
		statuses[s.ID] = s.Status
	}
	assert.Equal(t, map[string]SlotStatus{"1000": SlotBooked, "1400": SlotOpen}, statuses,
		"booked slot survives, open slot dropped, incoming status ignored")

	assert.ErrorIs(t, dir.Upsert(ctx, DoctorProfile{}), apperr.ErrValidation)
}

func TestMemoryDirectoryIgnoresIncomingSlotStatus(t *testing.T) {
	ctx := context.Background()

	seeded := sampleDoctor("a")
	seeded.Availability[0].Slots[0].Status = SlotBooked
	dir := NewMemoryDirectory(seeded)

	fresh := sampleDoctor("b")
	fresh.Availability[0].Slots[1].Status = SlotHeld
	require.NoError(t, dir.Upsert(ctx, fresh))

	for _, id := range []string{"a", "b"} {
		p, err := dir.GetByID(ctx, id)
		require.NoError(t, err)
		for _, s := range p.Availability[0].Slots {
			assert.Equalf(t, SlotOpen, s.Status, "doctor %s slot %s", id, s.ID)
		}
	}
}
