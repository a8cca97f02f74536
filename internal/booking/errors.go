package booking

import (
	"errors"

	"github.com/hackgods/clinic-booking/internal/catalog"
)

var (
	ErrPastTime             = errors.New("appointment time is in the past")
	ErrOutsideBusinessHours = errors.New("appointment time is outside business hours")
	ErrSlotTaken            = errors.New("doctor already has an appointment at this time")
	ErrSlotBusy             = errors.New("slot is currently being booked, please retry")
	ErrDoctorInactive       = errors.New("doctor is not accepting appointments")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrInvalidStatus        = errors.New("unknown appointment status")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrNotAppointmentOwner  = errors.New("appointment belongs to another patient")

	ErrDoctorNotFound  = catalog.ErrDoctorNotFound
	ErrPatientNotFound = catalog.ErrPatientNotFound
	ErrServiceNotFound = catalog.ErrServiceNotFound
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrPastTime, "past_time"},
	{ErrOutsideBusinessHours, "outside_business_hours"},
	{ErrSlotTaken, "slot_taken"},
	{ErrSlotBusy, "slot_busy"},
	{ErrDoctorInactive, "doctor_inactive"},
	{ErrDoctorNotFound, "doctor_not_found"},
	{ErrPatientNotFound, "patient_not_found"},
	{ErrServiceNotFound, "service_not_found"},
	{ErrAppointmentNotFound, "appointment_not_found"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrInvalidStatus, "invalid_status"},
	{ErrNotAppointmentOwner, "not_appointment_owner"},
}

// ErrorCode returns a stable machine-readable code for a booking error.
// Anything that is not a booking rule violation is "internal_error".
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal_error"
}

// IsValidationError reports whether err is a user-facing rejection rather
// than a system failure.
func IsValidationError(err error) bool {
	return err != nil && ErrorCode(err) != "internal_error"
}
