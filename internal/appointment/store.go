package appointment

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-scheduling/internal/apperr"
)

var (
	ErrAppointmentNotFound = apperr.NotFound("appointment")

	// errStaleStatus means a conditional write lost to a concurrent one.
	errStaleStatus = errors.New("appointment status changed concurrently")
)

// Store persists appointments. Appointments are never deleted.
type Store interface {
	Create(ctx context.Context, a Appointment) error
	Get(ctx context.Context, id uuid.UUID) (Appointment, error)

	// UpdateStatus applies t only if the stored status equals t.From.
	UpdateStatus(ctx context.Context, id uuid.UUID, t Transition) (Appointment, error)

	List(ctx context.Context, f Filter) ([]Appointment, error)

	// PendingSupersessions returns live appointments whose superseded
	// predecessor is still live, i.e. reschedules that stopped after phase one.
	PendingSupersessions(ctx context.Context) ([]Appointment, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Appointment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uuid.UUID]*Appointment)}
}

func (s *MemoryStore) Create(_ context.Context, a Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[a.ID]; exists {
		return errors.New("appointment already exists")
	}
	c := a.Clone()
	s.items[a.ID] = &c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.items[id]
	if !ok {
		return Appointment{}, ErrAppointmentNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, t Transition) (Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.items[id]
	if !ok {
		return Appointment{}, ErrAppointmentNotFound
	}
	if a.Status != t.From {
		return Appointment{}, errStaleStatus
	}
	t.apply(a)
	return a.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Appointment
	for _, a := range s.items {
		if f.Match(*a) {
			out = append(out, a.Clone())
		}
	}
	sortAppointments(out)
	return page(out, f.Limit, f.Offset), nil
}

func (s *MemoryStore) PendingSupersessions(_ context.Context) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Appointment
	for _, a := range s.items {
		if !a.Live() || a.Supersedes == nil {
			continue
		}
		if prev, ok := s.items[*a.Supersedes]; ok && prev.Live() {
			out = append(out, a.Clone())
		}
	}
	sortAppointments(out)
	return out, nil
}
