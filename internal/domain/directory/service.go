package directory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	tx       TxRunner
	plans    CoveragePlanRepository
	doctors  DoctorRepository
	patients PatientRepository
}

func NewService(tx TxRunner, plans CoveragePlanRepository, doctors DoctorRepository, patients PatientRepository) *Service {
	return &Service{tx: tx, plans: plans, doctors: doctors, patients: patients}
}

// -- Coverage Plans --

func (s *Service) CreateCoveragePlan(ctx context.Context, p *CoveragePlan) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperr.Validation("name is required")
	}
	return s.plans.Create(ctx, p)
}

func (s *Service) ListCoveragePlans(ctx context.Context, activeOnly bool) ([]*CoveragePlan, error) {
	return s.plans.List(ctx, activeOnly)
}

// -- Doctors --

func (s *Service) validateDoctor(ctx context.Context, d *Doctor) error {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.LicenseNumber = strings.TrimSpace(d.LicenseNumber)
	if d.FirstName == "" || d.LastName == "" {
		return apperr.Validation("first_name and last_name are required")
	}
	if d.Specialty == "" {
		return apperr.Validation("specialty is required")
	}
	if d.LicenseNumber == "" {
		return apperr.Validation("license_number is required")
	}
	seen := make(map[uuid.UUID]bool, len(d.CoveragePlanIDs))
	plans := d.CoveragePlanIDs[:0]
	for _, id := range d.CoveragePlanIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := s.plans.GetByID(ctx, id); err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return apperr.Validation("unknown coverage plan %s", id)
			}
			return err
		}
		plans = append(plans, id)
	}
	d.CoveragePlanIDs = plans
	return nil
}

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.validateDoctor(ctx, d); err != nil {
			return err
		}
		return s.doctors.Create(ctx, d)
	})
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.doctors.GetByID(ctx, d.ID)
		if err != nil {
			return err
		}
		if err := s.validateDoctor(ctx, d); err != nil {
			return err
		}
		d.CreatedAt = existing.CreatedAt
		return s.doctors.Update(ctx, d)
	})
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, f, limit, offset)
}

// DoctorsForPatient lists the active doctors a patient can book with: those
// accepting the patient's coverage plan, or every active doctor when the
// patient has no plan.
func (s *Service) DoctorsForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Doctor, int, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, 0, err
	}
	active := true
	return s.doctors.List(ctx, DoctorFilter{Active: &active, CoveragePlanID: p.CoveragePlanID}, limit, offset)
}

// -- Patients --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.NationalID = strings.TrimSpace(p.NationalID)
	if p.FirstName == "" || p.LastName == "" {
		return apperr.Validation("first_name and last_name are required")
	}
	if p.NationalID == "" {
		return apperr.Validation("national_id is required")
	}
	if p.Category == "" {
		p.Category = "A"
	}
	if !validCategories[p.Category] {
		return apperr.Validation("category must be one of A, B, C")
	}
	if p.UserID != nil && *p.UserID == "" {
		p.UserID = nil
	}
	if err := s.checkPatientPlan(ctx, p.CoveragePlanID); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) checkPatientPlan(ctx context.Context, planID *uuid.UUID) error {
	if planID == nil {
		return nil
	}
	plan, err := s.plans.GetByID(ctx, *planID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return apperr.Validation("unknown coverage plan %s", *planID)
		}
		return err
	}
	if !plan.Active {
		return apperr.Validation("coverage plan %q is not active", plan.Name)
	}
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByUserID(ctx context.Context, userID string) (*Patient, error) {
	return s.patients.GetByUserID(ctx, userID)
}

// ProfileUpdate holds the patient-editable part of a patient record.
type ProfileUpdate struct {
	Phone          string
	Address        *string
	CoveragePlanID *uuid.UUID
	MemberNumber   *string
}

// UpdateProfile applies a patient's own edits to the record linked to
// userID. Names, national id and category stay under staff control.
func (s *Service) UpdateProfile(ctx context.Context, userID string, u ProfileUpdate) (*Patient, error) {
	u.Phone = strings.TrimSpace(u.Phone)
	if u.Phone == "" {
		return nil, apperr.Validation("phone is required")
	}
	if u.MemberNumber != nil && strings.TrimSpace(*u.MemberNumber) == "" {
		u.MemberNumber = nil
	}

	var p *Patient
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.patients.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if err := s.checkPatientPlan(ctx, u.CoveragePlanID); err != nil {
			return err
		}
		p.Phone = u.Phone
		p.Address = u.Address
		p.CoveragePlanID = u.CoveragePlanID
		p.MemberNumber = u.MemberNumber
		return s.patients.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
