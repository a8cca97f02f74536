package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrServiceNotFound = errors.New("service not found")
	ErrPatientNotFound = errors.New("patient not found")
)

// Store is the read side of clinic reference data.
type Store interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context, activeOnly bool) ([]Doctor, error)

	GetService(ctx context.Context, id uuid.UUID) (*Service, error)
	ListServices(ctx context.Context) ([]Service, error)

	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPatientByChatID(ctx context.Context, chatID string) (*Patient, error)
}
