package scheduling

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func (in WindowInput) parse() (*AvailabilityWindow, error) {
	w := &AvailabilityWindow{DoctorID: in.DoctorID, Weekday: Weekday(in.Weekday), SlotMinutes: in.SlotMinutes}
	if !w.Weekday.Valid() {
		return nil, apperr.Validation("weekday must be between 0 (Monday) and 6 (Sunday)")
	}
	var err error
	if w.Start, err = ParseTimeOfDay(in.Start); err != nil {
		return nil, err
	}
	if w.End, err = ParseTimeOfDay(in.End); err != nil {
		return nil, err
	}
	if w.Start >= w.End {
		return nil, apperr.Validation("start_time %s must be before end_time %s", w.Start, w.End)
	}
	if w.SlotMinutes < MinSlotMinutes || w.SlotMinutes > MaxSlotMinutes {
		return nil, apperr.Validation("slot_minutes must be between %d and %d", MinSlotMinutes, MaxSlotMinutes)
	}
	return w, nil
}

// AddWindow registers a weekly availability window for a doctor. Windows may
// overlap as long as they start at different times; overlaps are logged.
func (s *Service) AddWindow(ctx context.Context, in WindowInput) (*AvailabilityWindow, error) {
	w, err := in.parse()
	if err != nil {
		return nil, err
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.doctors.GetDoctor(ctx, w.DoctorID); err != nil {
			return err
		}
		existing, err := s.windows.ListByDoctorWeekday(ctx, w.DoctorID, w.Weekday)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.Start == w.Start {
				return apperr.Conflict(apperr.CodeDuplicateWindow,
					"doctor already has a %s window starting at %s", w.Weekday, w.Start)
			}
			if other.Overlaps(w) {
				s.logger.Warn().
					Str("doctor_id", w.DoctorID.String()).
					Str("weekday", w.Weekday.String()).
					Str("window", w.Start.String()+"-"+w.End.String()).
					Str("overlaps", other.Start.String()+"-"+other.End.String()).
					Msg("availability window overlaps an existing window")
			}
		}
		return s.windows.Create(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// RemoveWindow deletes a window. Appointments already booked in it are kept.
func (s *Service) RemoveWindow(ctx context.Context, id uuid.UUID) error {
	if err := s.windows.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("window_id", id.String()).Msg("availability window removed")
	return nil
}

func (s *Service) ListWindows(ctx context.Context, doctorID uuid.UUID) ([]*AvailabilityWindow, error) {
	if _, err := s.doctors.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	items, err := s.windows.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*AvailabilityWindow{}
	}
	return items, nil
}

// AvailableSlots lists the free slot start times of a doctor on a date: the
// union of the slots of every window on that weekday, minus times already
// held by an active appointment and times that have already passed.
// Patients see no slots for inactive doctors.
func (s *Service) AvailableSlots(ctx context.Context, req Requester, doctorID uuid.UUID, date string) (*Availability, error) {
	d, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	out := &Availability{DoctorID: doctorID, Date: d, Slots: []TimeOfDay{}}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := s.doctors.GetDoctor(ctx, doctorID)
		if err != nil {
			return err
		}
		if !doc.Active && !req.Staff {
			return nil
		}

		now := s.clinicNow()
		if d.Before(now.Date) {
			return nil
		}

		windows, err := s.windows.ListByDoctorWeekday(ctx, doctorID, d.Weekday())
		if err != nil || len(windows) == 0 {
			return err
		}
		candidates, overlapping := unionSlots(windows)
		if len(overlapping) > 0 {
			s.logger.Warn().
				Str("doctor_id", doctorID.String()).
				Str("date", d.String()).
				Int("count", len(overlapping)).
				Msg("overlapping availability windows produce the same slot")
			out.Overlapping = overlapping
		}

		taken, err := s.appts.ActiveTimes(ctx, doctorID, d)
		if err != nil {
			return err
		}
		for _, t := range candidates {
			if slices.Contains(taken, t) {
				continue
			}
			if d == now.Date && t <= now.Time {
				continue
			}
			out.Slots = append(out.Slots, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// offers reports whether any of the doctor's windows on the slot's weekday
// has a slot starting at the slot's time.
func (s *Service) offers(ctx context.Context, doctorID uuid.UUID, slot Slot) (bool, error) {
	windows, err := s.windows.ListByDoctorWeekday(ctx, doctorID, slot.Date.Weekday())
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(windows, func(w *AvailabilityWindow) bool {
		return w.Offers(slot.Time)
	}), nil
}
