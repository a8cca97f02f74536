package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxIface is satisfied by *pgxpool.Pool and by pgxmock pools.
type pgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db pgxIface
}

func NewPgRepository(db pgxIface) *PgRepository {
	return &PgRepository{db: db}
}

const appointmentColumns = `id, doctor_id, patient_id, service_id, date_time, status, notes, reminded_at, created_at, updated_at`

const conflictQuery = `
	SELECT EXISTS (
		SELECT 1
		FROM appointments
		WHERE doctor_id = $1
		  AND date_time = $2
		  AND status IN ('pending', 'confirmed')
		  AND id <> $3
	)
`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.ServiceID,
		&a.DateTime,
		&a.Status,
		&a.Notes,
		&a.RemindedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// advisoryKey is hashed by Postgres into the transaction-scoped lock id.
func advisoryKey(doctorID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s|%d", doctorID.String(), at.UTC().Unix())
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Interface methods

func (r *PgRepository) FindConflicting(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID uuid.UUID) (bool, error) {
	var taken bool
	if err := r.db.QueryRow(ctx, conflictQuery, doctorID, at, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("find conflicting appointment: %w", err)
	}
	return taken, nil
}

func (r *PgRepository) Create(ctx context.Context, d Draft) (*Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create appointment: %w", err)
	}
	defer tx.Rollback(ctx)

	// serialises concurrent creators of the same slot until commit
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, advisoryKey(d.DoctorID, d.DateTime)); err != nil {
		return nil, fmt.Errorf("lock slot: %w", err)
	}

	var taken bool
	if err := tx.QueryRow(ctx, conflictQuery, d.DoctorID, d.DateTime, uuid.Nil).Scan(&taken); err != nil {
		return nil, fmt.Errorf("re-check slot conflict: %w", err)
	}
	if taken {
		return nil, ErrSlotTaken
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, service_id, date_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, now(), now())
		RETURNING `+appointmentColumns,
		uuid.New(), d.DoctorID, d.PatientID, d.ServiceID, d.DateTime, d.Notes)

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("commit appointment: %w", err)
	}

	return appt, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, Status, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, "", err
	}

	from := current.Status
	if from == to {
		if err := tx.Commit(ctx); err != nil {
			return nil, "", fmt.Errorf("commit status update: %w", err)
		}
		return current, from, nil
	}
	if !CanTransition(from, to) {
		return nil, from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, to))
	if err != nil {
		return nil, from, fmt.Errorf("update appointment status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, from, fmt.Errorf("commit status update: %w", err)
	}
	return updated, from, nil
}

func (r *PgRepository) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY date_time DESC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListForDoctor(ctx context.Context, doctorID uuid.UUID, dr *DateRange) ([]Appointment, error) {
	var from, to *time.Time
	if dr != nil {
		from, to = dr.From, dr.To
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND ($2::timestamptz IS NULL OR date_time >= $2)
		  AND ($3::timestamptz IS NULL OR date_time < $3)
		ORDER BY date_time
	`, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListDueReminders(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND reminded_at IS NULL
		  AND date_time >= $1
		  AND date_time < $2
		ORDER BY date_time
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET reminded_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
