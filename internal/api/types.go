package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-scheduling/internal/apperr"
	"github.com/hackgods/doctor-scheduling/internal/appointment"
	"github.com/hackgods/doctor-scheduling/internal/directory"
)

type CreateAppointmentRequest struct {
	DoctorID         string `json:"doctor_id"`
	Date             string `json:"date"`
	SlotID           string `json:"slot_id"`
	ConsultationType string `json:"consultation_type"`
	PatientID        string `json:"patient_id"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type RescheduleAppointmentRequest struct {
	NewDate   string `json:"new_date"`
	NewSlotID string `json:"new_slot_id"`
}

type StatusChangeResponse struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
	Kind   string    `json:"kind"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID              `json:"id"`
	DoctorID           string                 `json:"doctor_id"`
	PatientID          string                 `json:"patient_id"`
	Date               string                 `json:"date"`
	SlotID             string                 `json:"slot_id"`
	SlotStart          time.Time              `json:"slot_start"`
	SlotEnd            time.Time              `json:"slot_end"`
	ConsultationType   string                 `json:"consultation_type"`
	Status             string                 `json:"status"`
	FeeSnapshot        int64                  `json:"fee_snapshot"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
	History            []StatusChangeResponse `json:"history"`
	CancellationReason string                 `json:"cancellation_reason,omitempty"`
	Supersedes         *uuid.UUID             `json:"supersedes,omitempty"`
	SupersededBy       *uuid.UUID             `json:"superseded_by,omitempty"`
}

func newAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	history := make([]StatusChangeResponse, len(a.History))
	for i, h := range a.History {
		history[i] = StatusChangeResponse{
			Status: string(h.Status),
			At:     h.At,
			Reason: h.Reason,
			Kind:   string(h.Kind),
		}
	}
	return AppointmentResponse{
		ID:                 a.ID,
		DoctorID:           a.DoctorID,
		PatientID:          a.PatientID,
		Date:               a.Slot.Date,
		SlotID:             a.Slot.SlotID,
		SlotStart:          a.SlotStart,
		SlotEnd:            a.SlotEnd,
		ConsultationType:   string(a.ConsultationType),
		Status:             string(a.Status),
		FeeSnapshot:        a.FeeSnapshot,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
		History:            history,
		CancellationReason: a.CancellationReason,
		Supersedes:         a.Supersedes,
		SupersededBy:       a.SupersededBy,
	}
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Count        int                   `json:"count"`
}

type DoctorSearchResponse struct {
	Doctors []directory.DoctorProfile `json:"doctors"`
	Count   int                       `json:"count"`
	Sort    string                    `json:"sort"`
}

type ErrorResponse struct {
	Error     string          `json:"error"`
	Details   string          `json:"details,omitempty"`
	Field     string          `json:"field,omitempty"`
	Slot      *apperr.SlotRef `json:"slot,omitempty"`
	Retryable bool            `json:"retryable,omitempty"`
}

// ReschedulePendingResponse is returned with 202 when the new appointment is
// booked but the original has not been retired yet.
type ReschedulePendingResponse struct {
	Status     string    `json:"status"`
	Details    string    `json:"details"`
	OriginalID uuid.UUID `json:"original_id"`
	NewID      uuid.UUID `json:"new_id"`
}
