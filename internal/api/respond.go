package api

import (
	"encoding/json"
	"net/http"

	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

var statusByCode = map[string]int{
	"doctor_not_found":       http.StatusNotFound,
	"patient_not_found":      http.StatusNotFound,
	"service_not_found":      http.StatusNotFound,
	"appointment_not_found":  http.StatusNotFound,
	"slot_taken":             http.StatusConflict,
	"slot_busy":              http.StatusConflict,
	"invalid_transition":     http.StatusConflict,
	"past_time":              http.StatusUnprocessableEntity,
	"outside_business_hours": http.StatusUnprocessableEntity,
	"doctor_inactive":        http.StatusUnprocessableEntity,
	"invalid_status":         http.StatusBadRequest,
	"not_appointment_owner":  http.StatusForbidden,
}

// writeServiceError maps booking errors to responses. Internal failures are
// logged and reported without detail.
func writeServiceError(w http.ResponseWriter, logger *logging.Logger, err error) {
	code := booking.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}
