package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackgods/doctor-scheduling/internal/apperr"
	"github.com/hackgods/doctor-scheduling/pkg/logging"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// handleError maps the core error taxonomy onto HTTP responses.
func handleError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	switch apperr.Kind(err) {
	case "partial_reschedule":
		var partial *apperr.PartialRescheduleError
		errors.As(err, &partial)
		logger.Warn().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("reschedule left pending")
		writeJSON(w, http.StatusAccepted, ReschedulePendingResponse{
			Status:     "reschedule_pending",
			Details:    "the new appointment is booked; the original will be released shortly",
			OriginalID: partial.OriginalID,
			NewID:      partial.NewID,
		})

	case "validation":
		resp := ErrorResponse{Error: "validation_error", Details: err.Error()}
		var verr *apperr.ValidationError
		if errors.As(err, &verr) {
			resp.Field = verr.Field
		}
		writeJSON(w, http.StatusBadRequest, resp)

	case "not_found":
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case "conflict":
		resp := ErrorResponse{
			Error:     "slot_unavailable",
			Details:   "this slot was just taken, please pick another one",
			Retryable: true,
		}
		var cerr *apperr.ConflictError
		if errors.As(err, &cerr) {
			slot := cerr.Slot
			resp.Slot = &slot
		}
		writeJSON(w, http.StatusConflict, resp)

	case "state":
		writeError(w, http.StatusConflict, "invalid_state", "this appointment can no longer be changed")

	case "unsupported":
		writeError(w, http.StatusUnprocessableEntity, "unsupported", err.Error())

	default:
		logger.Error().Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}
