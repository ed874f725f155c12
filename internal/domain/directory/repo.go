package directory

import (
	"context"

	"github.com/google/uuid"
)

// Repositories return apperr NotFound errors for missing rows and apperr
// Conflict errors for unique key violations.

type CoveragePlanRepository interface {
	Create(ctx context.Context, p *CoveragePlan) error
	GetByID(ctx context.Context, id uuid.UUID) (*CoveragePlan, error)
	List(ctx context.Context, activeOnly bool) ([]*CoveragePlan, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByUserID(ctx context.Context, userID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
}
