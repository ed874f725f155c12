package scheduling

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// daySummaryLimit caps the appointments returned by DaySummary.
const daySummaryLimit = 500

func (s *Service) subjectFor(req Requester, in BookingRequest) (Subject, error) {
	name := strings.TrimSpace(in.WalkInName)
	if in.PatientID != nil && name != "" {
		return nil, apperr.Validation("give either patient_id or walk_in_name, not both")
	}
	if !req.Staff {
		if req.PatientID == nil {
			return nil, apperr.Unauthorized("no patient record is linked to this account")
		}
		if name != "" {
			return nil, apperr.Unauthorized("only staff can book walk-in appointments")
		}
		if in.PatientID != nil && *in.PatientID != *req.PatientID {
			return nil, apperr.Unauthorized("patients can only book appointments for themselves")
		}
		return RegisteredPatient{PatientID: *req.PatientID}, nil
	}
	switch {
	case in.PatientID != nil:
		return RegisteredPatient{PatientID: *in.PatientID}, nil
	case name != "":
		return WalkIn{Name: name, Phone: strings.TrimSpace(in.WalkInPhone)}, nil
	}
	return nil, apperr.Validation("patient_id or walk_in_name is required")
}

// Book creates a pending appointment. The free-slot check and the insert run
// in one transaction holding the slot lock, so of two concurrent requests for
// the same doctor, date and time exactly one succeeds.
func (s *Service) Book(ctx context.Context, req Requester, in BookingRequest) (*Appointment, error) {
	date, err := ParseDate(in.Date)
	if err != nil {
		return nil, err
	}
	t, err := ParseTimeOfDay(in.Time)
	if err != nil {
		return nil, err
	}
	subject, err := s.subjectFor(req, in)
	if err != nil {
		return nil, err
	}
	slot := Slot{Date: date, Time: t}
	if !date.At(t, s.loc).After(s.now()) {
		return nil, apperr.Validation("appointment time %s %s is not in the future", date, t)
	}

	a := &Appointment{
		DoctorID:  in.DoctorID,
		Subject:   subject,
		Date:      date,
		Time:      t,
		Status:    StatusPending,
		Reason:    strings.TrimSpace(in.Reason),
		Notes:     strings.TrimSpace(in.Notes),
		CreatedBy: req.UserID,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := s.doctors.GetDoctor(ctx, in.DoctorID)
		if err != nil {
			return err
		}
		if !doc.Active {
			return apperr.Validation("doctor %s is not accepting appointments", doc.FullName())
		}

		if rp, ok := subject.(RegisteredPatient); ok {
			patient, err := s.patients.GetPatient(ctx, rp.PatientID)
			if err != nil {
				return err
			}
			if !req.Staff && patient.CoveragePlanID != nil && !doc.Accepts(*patient.CoveragePlanID) {
				return apperr.Unauthorized("doctor %s does not accept the patient's coverage plan", doc.FullName())
			}
		}

		if !req.Staff {
			ok, err := s.offers(ctx, in.DoctorID, slot)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.Validation("%s is not an available slot on %s", t, date)
			}
		}

		if err := s.appts.LockSlot(ctx, in.DoctorID, slot); err != nil {
			return err
		}
		taken, err := s.appts.ActiveAt(ctx, in.DoctorID, slot)
		if err != nil {
			return err
		}
		if taken != nil {
			return apperr.Conflict(apperr.CodeSlotTaken, "%s at %s is already booked", date, t)
		}
		return s.appts.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Str("slot", date.String()+" "+t.String()).
		Str("created_by", req.UserID).
		Msg("appointment booked")
	return a, nil
}

// Cancel marks an appointment cancelled. Patients may only cancel their own
// appointments, and only while more than the cutoff remains before it.
func (s *Service) Cancel(ctx context.Context, req Requester, id uuid.UUID) (*Appointment, error) {
	var a *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !req.Staff && !req.Owns(a) {
			return apperr.Unauthorized("only staff or the patient can cancel this appointment")
		}
		if !a.Status.CanTransition(StatusCancelled) {
			return apperr.Conflict(apperr.CodeInvalidTransition, "appointment is already %s", a.Status)
		}
		if !req.Staff && a.StartsAt(s.loc).Sub(s.now()) <= s.cutoff {
			return apperr.BusinessRule(apperr.CodeCutoffViolated,
				"appointments can only be cancelled more than %s in advance", s.cutoff)
		}
		a.UpdatedAt, err = s.appts.UpdateStatus(ctx, a.ID, StatusCancelled)
		if err != nil {
			return err
		}
		a.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", id.String()).Str("by", req.UserID).Msg("appointment cancelled")
	return a, nil
}

// UpdateStatus moves an appointment along its state machine. Staff only.
func (s *Service) UpdateStatus(ctx context.Context, req Requester, id uuid.UUID, to Status) (*Appointment, error) {
	if !req.Staff {
		return nil, apperr.Unauthorized("only staff can change appointment status")
	}
	if !to.Valid() {
		return nil, apperr.Validation("unknown status %q", to)
	}
	var a *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !a.Status.CanTransition(to) {
			return apperr.Conflict(apperr.CodeInvalidTransition, "cannot move appointment from %s to %s", a.Status, to)
		}
		a.UpdatedAt, err = s.appts.UpdateStatus(ctx, a.ID, to)
		if err != nil {
			return err
		}
		a.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) GetAppointment(ctx context.Context, req Requester, id uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.Staff && !req.Owns(a) {
		return nil, apperr.Unauthorized("appointment belongs to another patient")
	}
	return a, nil
}

// ListAppointments lists appointments matching f. Patients only ever see
// their own.
func (s *Service) ListAppointments(ctx context.Context, req Requester, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	if !req.Staff {
		if req.PatientID == nil {
			return nil, 0, apperr.Unauthorized("no patient record is linked to this account")
		}
		f.PatientID = req.PatientID
	}
	items, total, err := s.appts.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return items, total, nil
}

// Upcoming returns the calling patient's next n active appointments.
func (s *Service) Upcoming(ctx context.Context, req Requester, n int) ([]*Appointment, error) {
	if req.PatientID == nil {
		return nil, apperr.Unauthorized("no patient record is linked to this account")
	}
	if n <= 0 {
		return nil, apperr.Validation("limit must be positive")
	}
	now := s.clinicNow()
	items, _, err := s.appts.List(ctx, AppointmentFilter{
		PatientID:  req.PatientID,
		ActiveOnly: true,
		After:      &now,
	}, n, 0)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return items, nil
}

// DaySummary reports the appointments on a date and how many there are in
// each status. Staff only.
func (s *Service) DaySummary(ctx context.Context, req Requester, date string) (*DaySummary, error) {
	if !req.Staff {
		return nil, apperr.Unauthorized("only staff can view the day summary")
	}
	d, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	counts, err := s.appts.CountByStatus(ctx, d)
	if err != nil {
		return nil, err
	}
	items, total, err := s.appts.List(ctx, AppointmentFilter{Date: &d}, daySummaryLimit, 0)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return &DaySummary{Date: d, Total: total, Counts: counts, Appointments: items}, nil
}
