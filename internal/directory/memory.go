package directory

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// bucket holds one doctor's slots for one date. Its mutex is the in-process
// compare-and-swap anchor for slot status.
type bucket struct {
	mu    sync.Mutex
	date  string
	slots []TimeSlot
}

func (b *bucket) find(slotID string) int {
	for i := range b.slots {
		if b.slots[i].ID == slotID {
			return i
		}
	}
	return -1
}

type doctorEntry struct {
	profile DoctorProfile
	windows []*bucket
	byDate  map[string]*bucket
}

// MemoryDirectory is an in-process Directory. The RWMutex guards the doctor
// map; slot status is guarded per (doctor, date) bucket so bookings on
// different dates never contend.
type MemoryDirectory struct {
	mu      sync.RWMutex
	doctors map[string]*doctorEntry
}

// NewMemoryDirectory creates a directory seeded with profiles.
func NewMemoryDirectory(profiles ...DoctorProfile) *MemoryDirectory {
	d := &MemoryDirectory{doctors: make(map[string]*doctorEntry)}
	for _, p := range profiles {
		d.doctors[p.ID] = newDoctorEntry(p, nil)
	}
	return d
}

func newDoctorEntry(p DoctorProfile, prev *doctorEntry) *doctorEntry {
	p = p.Clone()
	e := &doctorEntry{byDate: make(map[string]*bucket)}

	for _, w := range p.Availability {
		b := &bucket{date: w.Date, slots: slices.Clone(w.Slots)}
		// Status is never taken from the catalog; only bookings move it.
		for i := range b.slots {
			b.slots[i].Status = SlotOpen
		}
		e.byDate[w.Date] = b
		e.windows = append(e.windows, b)
	}

	if prev != nil {
		carryStatus(e, prev)
	}

	sort.SliceStable(e.windows, func(i, j int) bool { return e.windows[i].date < e.windows[j].date })
	for _, b := range e.windows {
		sort.SliceStable(b.slots, func(i, j int) bool { return b.slots[i].Start.Before(b.slots[j].Start) })
	}

	p.Availability = nil
	e.profile = p
	return e
}

// carryStatus copies the status of slots that survive a catalog update and
// keeps non-open slots the update dropped, since they still have an owner.
func carryStatus(e, prev *doctorEntry) {
	for _, old := range prev.windows {
		old.mu.Lock()
		nb, ok := e.byDate[old.date]
		if !ok {
			nb = &bucket{date: old.date}
		}
		for _, s := range old.slots {
			if i := nb.find(s.ID); i >= 0 {
				nb.slots[i].Status = s.Status
				continue
			}
			if s.Status != SlotOpen {
				nb.slots = append(nb.slots, s)
			}
		}
		old.mu.Unlock()
		if !ok && len(nb.slots) > 0 {
			e.byDate[old.date] = nb
			e.windows = append(e.windows, nb)
		}
	}
}

func (e *doctorEntry) snapshot() DoctorProfile {
	p := e.profile.Clone()
	p.Availability = make([]AvailabilityWindow, 0, len(e.windows))
	for _, b := range e.windows {
		b.mu.Lock()
		p.Availability = append(p.Availability, AvailabilityWindow{Date: b.date, Slots: slices.Clone(b.slots)})
		b.mu.Unlock()
	}
	return p
}

func (d *MemoryDirectory) GetByID(_ context.Context, id string) (DoctorProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.doctors[id]
	if !ok {
		return DoctorProfile{}, ErrDoctorNotFound
	}
	return e.snapshot(), nil
}

// ListAll returns copies ordered by doctor id.
func (d *MemoryDirectory) ListAll(_ context.Context) ([]DoctorProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]DoctorProfile, 0, len(d.doctors))
	for _, e := range d.doctors {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *MemoryDirectory) bucketFor(ref SlotRef) (*bucket, error) {
	e, ok := d.doctors[ref.DoctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	b, ok := e.byDate[ref.Date]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return b, nil
}

func (d *MemoryDirectory) GetSlot(_ context.Context, ref SlotRef) (TimeSlot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, err := d.bucketFor(ref)
	if err != nil {
		return TimeSlot{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.find(ref.SlotID)
	if i < 0 {
		return TimeSlot{}, ErrSlotNotFound
	}
	return b.slots[i], nil
}

func (d *MemoryDirectory) SetSlotStatus(_ context.Context, ref SlotRef, from, to SlotStatus) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, err := d.bucketFor(ref)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.find(ref.SlotID)
	if i < 0 {
		return ErrSlotNotFound
	}
	if b.slots[i].Status != from {
		return ErrSlotConflict
	}
	b.slots[i].Status = to
	return nil
}

// Upsert inserts or replaces a profile. New slots start Open and slots the
// directory already holds keep their status.
func (d *MemoryDirectory) Upsert(_ context.Context, p DoctorProfile) error {
	if p.ID == "" {
		return errMissingID
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.doctors[p.ID] = newDoctorEntry(p, d.doctors[p.ID])
	return nil
}
