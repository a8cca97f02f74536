package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	ConflictFinder

	// Create stores a pending appointment. The conflict re-check and the
	// insert are one atomic unit; a taken slot yields ErrSlotTaken.
	Create(ctx context.Context, d Draft) (*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateStatus applies a legal transition and returns the updated row and
	// the status it had before. Setting the current status again is a no-op.
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, Status, error)

	ListForPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	ListForDoctor(ctx context.Context, doctorID uuid.UUID, r *DateRange) ([]Appointment, error)

	// Reminder worker
	ListDueReminders(ctx context.Context, from, to time.Time) ([]Appointment, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
