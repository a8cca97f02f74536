package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/catalog"
)

type CreateAppointmentRequest struct {
	DoctorID  string `json:"doctor_id" validate:"required,uuid"`
	ServiceID string `json:"service_id" validate:"required,uuid"`
	// PatientID is read from staff sessions only.
	PatientID string `json:"patient_id,omitempty" validate:"omitempty,uuid"`
	DateTime  string `json:"date_time" validate:"required"`
	Notes     string `json:"notes,omitempty" validate:"max=2000"`
}

type AppointmentResponse struct {
	ID         uuid.UUID  `json:"id"`
	DoctorID   uuid.UUID  `json:"doctor_id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	ServiceID  uuid.UUID  `json:"service_id"`
	DateTime   time.Time  `json:"date_time"`
	Status     string     `json:"status"`
	Notes      string     `json:"notes,omitempty"`
	RemindedAt *time.Time `json:"reminded_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type DoctorResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Specialization  string    `json:"specialization"`
	Room            string    `json:"room,omitempty"`
	ExperienceYears int       `json:"experience_years"`
	Rating          float64   `json:"rating"`
	Active          bool      `json:"active"`
}

type ServiceResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           string    `json:"price"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string       `json:"error"`
	Details string       `json:"details,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		DoctorID:   a.DoctorID,
		PatientID:  a.PatientID,
		ServiceID:  a.ServiceID,
		DateTime:   a.DateTime,
		Status:     string(a.Status),
		Notes:      a.Notes,
		RemindedAt: a.RemindedAt,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func toAppointmentList(appts []booking.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}

func toDoctorResponse(d *catalog.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:              d.ID,
		Name:            d.Name,
		Specialization:  d.Specialization,
		Room:            d.Room,
		ExperienceYears: d.ExperienceYears,
		Rating:          d.Rating,
		Active:          d.Active,
	}
}

func toServiceResponse(s *catalog.Service) ServiceResponse {
	return ServiceResponse{
		ID:              s.ID,
		Name:            s.Name,
		DurationMinutes: s.DurationMinutes,
		Price:           s.Price(),
	}
}
