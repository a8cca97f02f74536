package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Active statuses hold the doctor's slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an appointment may move from one status to
// another. Completed and cancelled are terminal; nothing moves back to pending.
func CanTransition(from, to Status) bool {
	if !from.Active() {
		return false
	}
	switch to {
	case StatusConfirmed:
		return from == StatusPending
	case StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Appointment struct {
	ID         uuid.UUID
	DoctorID   uuid.UUID
	PatientID  uuid.UUID
	ServiceID  uuid.UUID
	DateTime   time.Time
	Status     Status
	Notes      string
	RemindedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Draft is an appointment that has passed validation but is not stored yet.
type Draft struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	ServiceID uuid.UUID
	DateTime  time.Time
	Notes     string
}

// DateRange is half-open: From inclusive, To exclusive. Nil bounds are open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentReminded  = "APPOINTMENT_REMINDED"
)

func eventForStatus(s Status) string {
	switch s {
	case StatusConfirmed:
		return EventAppointmentConfirmed
	case StatusCompleted:
		return EventAppointmentCompleted
	case StatusCancelled:
		return EventAppointmentCancelled
	}
	return ""
}
