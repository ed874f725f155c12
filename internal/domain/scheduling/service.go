package scheduling

import (
	"time"

	"github.com/rs/zerolog"
)

const DefaultCancelCutoff = 24 * time.Hour

type Service struct {
	tx       TxRunner
	windows  WindowRepository
	appts    AppointmentRepository
	doctors  DoctorReader
	patients PatientReader

	logger zerolog.Logger
	loc    *time.Location
	cutoff time.Duration
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithLocation sets the zone appointment dates and times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithCancelCutoff sets how far ahead of the appointment a patient must
// cancel.
func WithCancelCutoff(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cutoff = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(tx TxRunner, windows WindowRepository, appts AppointmentRepository,
	doctors DoctorReader, patients PatientReader, opts ...Option) *Service {
	s := &Service{
		tx:       tx,
		windows:  windows,
		appts:    appts,
		doctors:  doctors,
		patients: patients,
		logger:   zerolog.Nop(),
		loc:      time.Local,
		cutoff:   DefaultCancelCutoff,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clinicNow is the current wall-clock slot in the clinic's zone.
func (s *Service) clinicNow() Slot {
	now := s.now().In(s.loc)
	return Slot{Date: DateOf(now), Time: TimeOfDayOf(now)}
}
