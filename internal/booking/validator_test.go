package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/hackgods/clinic-booking/internal/catalog"
)

type conflictFunc func(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID uuid.UUID) (bool, error)

func (f conflictFunc) FindConflicting(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID uuid.UUID) (bool, error) {
	return f(ctx, doctorID, at, excludeID)
}

func noConflicts() ConflictFinder {
	return conflictFunc(func(context.Context, uuid.UUID, time.Time, uuid.UUID) (bool, error) { return false, nil })
}

func TestValidate(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	active := &catalog.Doctor{ID: uuid.New(), Name: "Ivan Petrov", Active: true}
	inactive := &catalog.Doctor{ID: uuid.New(), Name: "Retired", Active: false}
	at := func(y int, m time.Month, d, h, min int) time.Time { return time.Date(y, m, d, h, min, 0, 0, time.UTC) }

	tests := []struct {
		name   string
		doctor *catalog.Doctor
		when   time.Time
		want   error
	}{
		{"bookable slot", active, at(2024, 6, 1, 10, 0), nil},
		{"past instant", active, at(2023, 1, 1, 10, 0), ErrPastTime},
		{"exactly now", active, now, ErrPastTime},
		{"before opening", active, at(2024, 6, 1, 7, 0), ErrOutsideBusinessHours},
		{"opening hour", active, at(2024, 6, 2, 8, 0), nil},
		{"hour twenty is bookable", active, at(2024, 6, 1, 20, 0), nil},
		{"last minute of hour twenty", active, at(2024, 6, 1, 20, 59), nil},
		{"hour twenty one", active, at(2024, 6, 1, 21, 0), ErrOutsideBusinessHours},
		{"midnight", active, at(2024, 6, 2, 0, 0), ErrOutsideBusinessHours},
		{"missing doctor", nil, at(2024, 6, 1, 10, 0), ErrDoctorNotFound},
		{"inactive doctor", inactive, at(2024, 6, 1, 10, 0), ErrDoctorInactive},
		{"past wins over hours", active, at(2023, 1, 1, 3, 0), ErrPastTime},
		{"past instant with inactive doctor", inactive, at(2023, 1, 1, 10, 0), ErrPastTime},
		{"closed hour with inactive doctor", inactive, at(2024, 6, 1, 22, 0), ErrOutsideBusinessHours},
	}

	v := NewValidator(noConflicts(), time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(context.Background(), AppointmentRequest{Doctor: tt.doctor, DateTime: tt.when}, now)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateUsesClinicLocalHour(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)
	v := NewValidator(noConflicts(), msk)
	doctor := &catalog.Doctor{ID: uuid.New(), Active: true}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// 05:00 UTC is 08:00 in the clinic
	err := v.Validate(context.Background(), AppointmentRequest{Doctor: doctor, DateTime: time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC)}, now)
	assert.NoError(t, err)

	// 18:00 UTC is 21:00 in the clinic
	err = v.Validate(context.Background(), AppointmentRequest{Doctor: doctor, DateTime: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)}, now)
	assert.ErrorIs(t, err, ErrOutsideBusinessHours)
}

func TestValidateSlotTakenPassesExcludeID(t *testing.T) {
	doctor := &catalog.Doctor{ID: uuid.New(), Active: true}
	editing := uuid.New()
	when := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	var gotExclude uuid.UUID
	v := NewValidator(conflictFunc(func(_ context.Context, doctorID uuid.UUID, at time.Time, excludeID uuid.UUID) (bool, error) {
		assert.Equal(t, doctor.ID, doctorID)
		assert.True(t, at.Equal(when))
		gotExclude = excludeID
		return true, nil
	}), time.UTC)

	err := v.Validate(context.Background(), AppointmentRequest{Doctor: doctor, DateTime: when, ExcludeID: editing}, when.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, editing, gotExclude)
}

func TestValidateConflictLookupFailureIsNotValidationError(t *testing.T) {
	doctor := &catalog.Doctor{ID: uuid.New(), Active: true}
	when := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	down := errors.New("connection refused")

	v := NewValidator(conflictFunc(func(context.Context, uuid.UUID, time.Time, uuid.UUID) (bool, error) {
		return false, down
	}), time.UTC)

	err := v.Validate(context.Background(), AppointmentRequest{Doctor: doctor, DateTime: when}, when.Add(-time.Hour))
	assert.ErrorIs(t, err, down)
	assert.False(t, IsValidationError(err))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusConfirmed))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.True(t, CanTransition(StatusConfirmed, StatusCompleted))
	assert.True(t, CanTransition(StatusConfirmed, StatusCancelled))

	assert.False(t, CanTransition(StatusConfirmed, StatusPending))
	assert.False(t, CanTransition(StatusCancelled, StatusConfirmed))
	assert.False(t, CanTransition(StatusCompleted, StatusCancelled))
	assert.False(t, CanTransition(StatusPending, Status("archived")))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "slot_taken", ErrorCode(ErrSlotTaken))
	assert.Equal(t, "doctor_not_found", ErrorCode(catalog.ErrDoctorNotFound))
	assert.Equal(t, "invalid_transition", ErrorCode(errors.Join(errors.New("ctx"), ErrInvalidTransition)))
	assert.Equal(t, "internal_error", ErrorCode(errors.New("disk full")))
	assert.False(t, IsValidationError(nil))
}
