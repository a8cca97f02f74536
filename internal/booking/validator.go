package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/catalog"
)

// Working hours policy, in clinic local time. Both hours are bookable, so
// 20:59 passes and 21:00 does not.
const (
	OpeningHour = 8
	ClosingHour = 20
)

// ConflictFinder answers whether a doctor's instant is held by an active appointment.
type ConflictFinder interface {
	FindConflicting(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID uuid.UUID) (bool, error)
}

type AppointmentRequest struct {
	Doctor    *catalog.Doctor
	ServiceID uuid.UUID
	DateTime  time.Time
	// ExcludeID is the appointment being edited, uuid.Nil for new bookings.
	ExcludeID uuid.UUID
}

// Validator holds no state besides its collaborators; every call is a
// point-in-time check.
type Validator struct {
	conflicts ConflictFinder
	loc       *time.Location
}

func NewValidator(conflicts ConflictFinder, loc *time.Location) *Validator {
	if loc == nil {
		loc = time.UTC
	}
	return &Validator{conflicts: conflicts, loc: loc}
}

// Validate runs the booking rules in order and returns the first violation.
func (v *Validator) Validate(ctx context.Context, req AppointmentRequest, now time.Time) error {
	if !req.DateTime.After(now) {
		return ErrPastTime
	}

	if !v.WithinBusinessHours(req.DateTime) {
		return ErrOutsideBusinessHours
	}

	if req.Doctor == nil {
		return ErrDoctorNotFound
	}
	if !req.Doctor.Active {
		return ErrDoctorInactive
	}

	taken, err := v.conflicts.FindConflicting(ctx, req.Doctor.ID, req.DateTime, req.ExcludeID)
	if err != nil {
		return fmt.Errorf("check slot conflict: %w", err)
	}
	if taken {
		return ErrSlotTaken
	}

	return nil
}

func (v *Validator) WithinBusinessHours(t time.Time) bool {
	hour := t.In(v.loc).Hour()
	return hour >= OpeningHour && hour <= ClosingHour
}
