package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/directory"
)

type WindowRepository interface {
	// Create fails with a duplicate_window conflict when the doctor already
	// has a window on that weekday starting at the same time.
	Create(ctx context.Context, w *AvailabilityWindow) error
	GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*AvailabilityWindow, error)
	ListByDoctorWeekday(ctx context.Context, doctorID uuid.UUID, wd Weekday) ([]*AvailabilityWindow, error)
}

type AppointmentRepository interface {
	// LockSlot blocks until the caller's transaction holds the lock for the
	// (doctor, date, time) triple.
	LockSlot(ctx context.Context, doctorID uuid.UUID, s Slot) error
	// ActiveAt returns the active appointment holding the slot, or nil.
	ActiveAt(ctx context.Context, doctorID uuid.UUID, s Slot) (*Appointment, error)
	ActiveTimes(ctx context.Context, doctorID uuid.UUID, date Date) ([]TimeOfDay, error)
	// Create fails with a slot_taken conflict when an active appointment
	// already holds the slot.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (time.Time, error)
	List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
	CountByStatus(ctx context.Context, date Date) (map[Status]int, error)
}

// TxRunner runs fn inside one transaction. Repositories called with the
// context passed to fn take part in it.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DoctorReader and PatientReader are satisfied by *directory.Service.
type DoctorReader interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
}

type PatientReader interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*directory.Patient, error)
}
