package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apptCols = []string{"id", "doctor_id", "patient_id", "service_id", "date_time", "status", "notes", "reminded_at", "created_at", "updated_at"}

func apptRow(a Appointment) *pgxmock.Rows {
	return pgxmock.NewRows(apptCols).AddRow(a.ID, a.DoctorID, a.PatientID, a.ServiceID, a.DateTime, a.Status, a.Notes, a.RemindedAt, a.CreatedAt, a.UpdatedAt)
}

func sampleDraft() Draft {
	return Draft{
		DoctorID:  uuid.New(),
		PatientID: uuid.New(),
		ServiceID: uuid.New(),
		DateTime:  time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Notes:     "first visit",
	}
}

func TestPgCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	d := sampleDraft()
	now := time.Now().UTC()
	created := Appointment{ID: uuid.New(), DoctorID: d.DoctorID, PatientID: d.PatientID, ServiceID: d.ServiceID, DateTime: d.DateTime, Status: StatusPending, Notes: d.Notes, CreatedAt: now, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(advisoryKey(d.DoctorID, d.DateTime)).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(d.DoctorID, d.DateTime, uuid.Nil).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), d.DoctorID, d.PatientID, d.ServiceID, d.DateTime, d.Notes).
		WillReturnRows(apptRow(created))
	mock.ExpectCommit()

	appt, err := repo.Create(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, created.ID, appt.ID)
	assert.Equal(t, StatusPending, appt.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateSlotTakenInsideTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	d := sampleDraft()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(advisoryKey(d.DoctorID, d.DateTime)).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(d.DoctorID, d.DateTime, uuid.Nil).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err = repo.Create(context.Background(), d)
	assert.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateUniqueViolationMapsToSlotTaken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	d := sampleDraft()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_uq"})
	mock.ExpectRollback()

	_, err = repo.Create(context.Background(), d)
	assert.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateBeginFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err = repo.Create(context.Background(), sampleDraft())
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
}

func TestPgFindConflicting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	doctorID, exclude := uuid.New(), uuid.New()
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("status IN \\('pending', 'confirmed'\\)").
		WithArgs(doctorID, at, exclude).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	taken, err := repo.FindConflicting(context.Background(), doctorID, at, exclude)
	require.NoError(t, err)
	assert.True(t, taken)
}

func TestPgUpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	now := time.Now().UTC()
	current := Appointment{ID: uuid.New(), DoctorID: uuid.New(), PatientID: uuid.New(), ServiceID: uuid.New(), DateTime: now.Add(time.Hour), Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	confirmed := current
	confirmed.Status = StatusConfirmed

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(current.ID).WillReturnRows(apptRow(current))
	mock.ExpectQuery("UPDATE appointments").WithArgs(current.ID, StatusConfirmed).WillReturnRows(apptRow(confirmed))
	mock.ExpectCommit()

	updated, from, err := repo.UpdateStatus(context.Background(), current.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, from)
	assert.Equal(t, StatusConfirmed, updated.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateStatusSameStatusIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	now := time.Now().UTC()
	current := Appointment{ID: uuid.New(), DoctorID: uuid.New(), PatientID: uuid.New(), ServiceID: uuid.New(), DateTime: now, Status: StatusConfirmed, CreatedAt: now, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(current.ID).WillReturnRows(apptRow(current))
	mock.ExpectCommit()

	updated, from, err := repo.UpdateStatus(context.Background(), current.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, from)
	assert.Equal(t, StatusConfirmed, updated.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateStatusRejectsTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	now := time.Now().UTC()
	current := Appointment{ID: uuid.New(), DoctorID: uuid.New(), PatientID: uuid.New(), ServiceID: uuid.New(), DateTime: now, Status: StatusCancelled, CreatedAt: now, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(current.ID).WillReturnRows(apptRow(current))
	mock.ExpectRollback()

	_, _, err = repo.UpdateStatus(context.Background(), current.ID, StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateStatusNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, _, err = repo.UpdateStatus(context.Background(), id, StatusCancelled)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgListForPatient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	patientID := uuid.New()
	now := time.Now().UTC()
	later := Appointment{ID: uuid.New(), DoctorID: uuid.New(), PatientID: patientID, ServiceID: uuid.New(), DateTime: now.Add(48 * time.Hour), Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	earlier := later
	earlier.ID = uuid.New()
	earlier.DateTime = now.Add(24 * time.Hour)

	rows := pgxmock.NewRows(apptCols).
		AddRow(later.ID, later.DoctorID, later.PatientID, later.ServiceID, later.DateTime, later.Status, later.Notes, later.RemindedAt, later.CreatedAt, later.UpdatedAt).
		AddRow(earlier.ID, earlier.DoctorID, earlier.PatientID, earlier.ServiceID, earlier.DateTime, earlier.Status, earlier.Notes, earlier.RemindedAt, earlier.CreatedAt, earlier.UpdatedAt)
	mock.ExpectQuery("ORDER BY date_time DESC").WithArgs(patientID).WillReturnRows(rows)

	appts, err := repo.ListForPatient(context.Background(), patientID)
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.Equal(t, later.ID, appts[0].ID)
}

func TestPgListForDoctorWithRange(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	doctorID := uuid.New()
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery("WHERE doctor_id").
		WithArgs(doctorID, &from, &to).
		WillReturnRows(pgxmock.NewRows(apptCols))

	appts, err := repo.ListForDoctor(context.Background(), doctorID, &DateRange{From: &from, To: &to})
	require.NoError(t, err)
	assert.Empty(t, appts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListDueRemindersOnlyPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	from := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	due := Appointment{ID: uuid.New(), DoctorID: uuid.New(), PatientID: uuid.New(), ServiceID: uuid.New(), DateTime: from.Add(3 * time.Hour), Status: StatusPending, CreatedAt: from, UpdatedAt: from}

	mock.ExpectQuery(`status = 'pending'\s+AND reminded_at IS NULL`).
		WithArgs(from, to).
		WillReturnRows(apptRow(due))

	appts, err := repo.ListDueReminders(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, due.ID, appts[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgMarkRemindedMissingRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	id := uuid.New()
	at := time.Now().UTC()
	mock.ExpectExec("SET reminded_at").WithArgs(id, at).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.MarkReminded(context.Background(), id, at)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgInsertEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	id := uuid.New()
	mock.ExpectExec("INSERT INTO event_logs").
		WithArgs(EventAppointmentCreated, &id, []byte(`{}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.InsertEvent(context.Background(), EventLog{EventType: EventAppointmentCreated, AppointmentID: &id, Payload: []byte(`{}`)})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
