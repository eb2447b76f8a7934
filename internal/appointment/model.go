package appointment

import (
	"bytes"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-scheduling/internal/directory"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal statuses have no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

type ChangeKind string

const (
	KindTransition  ChangeKind = "transition"
	KindRescheduled ChangeKind = "rescheduled"
)

// StatusChange is one entry of the append-only status history.
type StatusChange struct {
	Status Status     `json:"status"`
	At     time.Time  `json:"at"`
	Reason string     `json:"reason,omitempty"`
	Kind   ChangeKind `json:"kind"`
}

type Appointment struct {
	ID                 uuid.UUID                  `json:"id"`
	DoctorID           string                     `json:"doctor_id"`
	PatientID          string                     `json:"patient_id"`
	Slot               directory.SlotRef          `json:"slot"`
	SlotStart          time.Time                  `json:"slot_start"`
	SlotEnd            time.Time                  `json:"slot_end"`
	ConsultationType   directory.ConsultationType `json:"consultation_type"`
	Status             Status                     `json:"status"`
	FeeSnapshot        int64                      `json:"fee_snapshot"`
	CreatedAt          time.Time                  `json:"created_at"`
	UpdatedAt          time.Time                  `json:"updated_at"`
	History            []StatusChange             `json:"history"`
	CancellationReason string                     `json:"cancellation_reason,omitempty"`
	Supersedes         *uuid.UUID                 `json:"supersedes,omitempty"`
	SupersededBy       *uuid.UUID                 `json:"superseded_by,omitempty"`
}

// Live appointments hold their slot.
func (a Appointment) Live() bool {
	return !a.Status.Terminal()
}

func (a Appointment) Clone() Appointment {
	out := a
	out.History = slices.Clone(a.History)
	if a.Supersedes != nil {
		id := *a.Supersedes
		out.Supersedes = &id
	}
	if a.SupersededBy != nil {
		id := *a.SupersededBy
		out.SupersededBy = &id
	}
	return out
}

// Transition describes a conditional status write: it applies only while the
// stored status still equals From.
type Transition struct {
	From               Status
	Change             StatusChange
	CancellationReason string
	SupersededBy       *uuid.UUID
}

func (t Transition) apply(a *Appointment) {
	a.Status = t.Change.Status
	a.UpdatedAt = t.Change.At
	a.History = append(a.History, t.Change)
	if t.CancellationReason != "" {
		a.CancellationReason = t.CancellationReason
	}
	if t.SupersededBy != nil {
		id := *t.SupersededBy
		a.SupersededBy = &id
	}
}

// Filter selects appointments for list queries. Empty fields match anything;
// From and To are inclusive slot dates.
type Filter struct {
	PatientID string
	DoctorID  string
	Status    Status
	From      string
	To        string
	Limit     int
	Offset    int
}

func (f Filter) Match(a Appointment) bool {
	if f.PatientID != "" && a.PatientID != f.PatientID {
		return false
	}
	if f.DoctorID != "" && a.DoctorID != f.DoctorID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.From != "" && a.Slot.Date < f.From {
		return false
	}
	if f.To != "" && a.Slot.Date > f.To {
		return false
	}
	return true
}

// sortAppointments orders by slot start then id.
func sortAppointments(list []Appointment) {
	slices.SortStableFunc(list, func(a, b Appointment) int {
		if c := a.SlotStart.Compare(b.SlotStart); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
}

func page(list []Appointment, limit, offset int) []Appointment {
	if offset >= len(list) {
		return []Appointment{}
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
