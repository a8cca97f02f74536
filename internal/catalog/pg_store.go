package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	db queryer
}

func NewPgStore(db queryer) *PgStore {
	return &PgStore{db: db}
}

const (
	doctorColumns  = `id, name, specialization, room, experience_years, rating, is_active, created_at, updated_at`
	serviceColumns = `id, name, duration_minutes, price_cents`
	patientColumns = `id, name, phone, email, telegram_chat_id, created_at, updated_at`
)

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialization,
		&d.Room,
		&d.ExperienceYears,
		&d.Rating,
		&d.Active,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	if err := row.Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.PriceCents); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Phone,
		&p.Email,
		&p.TelegramChatID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PgStore) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (s *PgStore) ListDoctors(ctx context.Context, activeOnly bool) ([]Doctor, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE ($1 = FALSE OR is_active)
		ORDER BY specialization, rating DESC
	`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan doctor: %w", err)
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (s *PgStore) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE id = $1
	`, id)
	return scanService(row)
}

func (s *PgStore) ListServices(ctx context.Context) ([]Service, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var result []Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		result = append(result, *svc)
	}
	return result, rows.Err()
}

func (s *PgStore) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (s *PgStore) GetPatientByChatID(ctx context.Context, chatID string) (*Patient, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE telegram_chat_id = $1
	`, chatID)
	return scanPatient(row)
}
