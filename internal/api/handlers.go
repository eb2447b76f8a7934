package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/doctor-scheduling/internal/appointment"
	"github.com/hackgods/doctor-scheduling/internal/directory"
	"github.com/hackgods/doctor-scheduling/pkg/logging"
)

type AppointmentService interface {
	Book(ctx context.Context, req appointment.BookingRequest) (appointment.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (appointment.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (appointment.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (appointment.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, newDate, newSlotID string) (appointment.Appointment, error)
	List(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error)
}

func createAppointmentHandler(svc AppointmentService, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookingRequest{
			DoctorID:         req.DoctorID,
			Date:             req.Date,
			SlotID:           req.SlotID,
			ConsultationType: directory.ConsultationType(req.ConsultationType),
			PatientID:        req.PatientID,
		})
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, newAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

// transitionHandler serves the body-less status changes (confirm, complete).
func transitionHandler(fn func(context.Context, uuid.UUID) (appointment.Appointment, error), logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := fn(r.Context(), id)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc AppointmentService, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}
		var req CancelAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc AppointmentService, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}
		var req RescheduleAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, req.NewDate, req.NewSlotID)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := r.URL.Query()
		f := appointment.Filter{
			PatientID: v.Get("patientId"),
			DoctorID:  v.Get("doctorId"),
			Status:    appointment.Status(v.Get("status")),
			From:      v.Get("from"),
			To:        v.Get("to"),
		}
		var err error
		if f.Limit, err = intParam(v.Get("limit"), "limit"); err != nil {
			handleError(w, r, logger, err)
			return
		}
		if f.Offset, err = intParam(v.Get("offset"), "offset"); err != nil {
			handleError(w, r, logger, err)
			return
		}

		list, err := svc.List(r.Context(), f)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		resp := AppointmentListResponse{Appointments: make([]AppointmentResponse, len(list)), Count: len(list)}
		for i, a := range list {
			resp.Appointments[i] = newAppointmentResponse(a)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
