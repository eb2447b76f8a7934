// Package notify delivers appointment lifecycle events. Dispatch is fire and
// forget: callers never wait for delivery and delivery failures never reach
// them.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCreated     EventType = "appointment.created"
	EventConfirmed   EventType = "appointment.confirmed"
	EventCompleted   EventType = "appointment.completed"
	EventCancelled   EventType = "appointment.cancelled"
	EventRescheduled EventType = "appointment.rescheduled"
)

type Event struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Type          EventType `json:"type"`
	PatientID     string    `json:"patient_id"`
	DoctorID      string    `json:"doctor_id"`
	At            time.Time `json:"at"`
}

// Dispatcher accepts events after a state change has been committed.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event)
}

// Sink is a delivery transport used by Async.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Dispatch(context.Context, Event) {}
