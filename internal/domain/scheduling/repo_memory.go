package scheduling

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/pagination"
)

// MemoryStore keeps windows and appointments in process memory. WithinTx
// runs one transaction at a time and restores the prior state if fn fails.
type MemoryStore struct {
	txMu sync.Mutex

	mu      sync.Mutex
	windows map[uuid.UUID]AvailabilityWindow
	appts   map[uuid.UUID]Appointment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[uuid.UUID]AvailabilityWindow),
		appts:   make(map[uuid.UUID]Appointment),
	}
}

func (s *MemoryStore) Windows() WindowRepository { return &memoryWindows{s} }

func (s *MemoryStore) Appointments() AppointmentRepository { return &memoryAppointments{s} }

type memTxKey struct{}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	windows, appts := maps.Clone(s.windows), maps.Clone(s.appts)
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.windows, s.appts = windows, appts
		s.mu.Unlock()
		return err
	}
	return nil
}

// =========== Windows ===========

type memoryWindows struct{ s *MemoryStore }

func (r *memoryWindows) Create(_ context.Context, w *AvailabilityWindow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.windows {
		if existing.DoctorID == w.DoctorID && existing.Weekday == w.Weekday && existing.Start == w.Start {
			return apperr.Conflict(apperr.CodeDuplicateWindow,
				"doctor already has a %s window starting at %s", w.Weekday, w.Start)
		}
	}
	w.ID = uuid.New()
	w.CreatedAt = time.Now()
	r.s.windows[w.ID] = *w
	return nil
}

func (r *memoryWindows) GetByID(_ context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.windows[id]
	if !ok {
		return nil, apperr.NotFound("availability window %s not found", id)
	}
	return &w, nil
}

func (r *memoryWindows) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.windows[id]; !ok {
		return apperr.NotFound("availability window %s not found", id)
	}
	delete(r.s.windows, id)
	return nil
}

func (r *memoryWindows) collect(keep func(AvailabilityWindow) bool) []*AvailabilityWindow {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var items []*AvailabilityWindow
	for _, w := range r.s.windows {
		if keep(w) {
			items = append(items, &w)
		}
	}
	slices.SortFunc(items, func(a, b *AvailabilityWindow) int {
		return cmp.Or(cmp.Compare(a.Weekday, b.Weekday), cmp.Compare(a.Start, b.Start))
	})
	return items
}

func (r *memoryWindows) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*AvailabilityWindow, error) {
	return r.collect(func(w AvailabilityWindow) bool { return w.DoctorID == doctorID }), nil
}

func (r *memoryWindows) ListByDoctorWeekday(_ context.Context, doctorID uuid.UUID, wd Weekday) ([]*AvailabilityWindow, error) {
	return r.collect(func(w AvailabilityWindow) bool {
		return w.DoctorID == doctorID && w.Weekday == wd
	}), nil
}

// =========== Appointments ===========

type memoryAppointments struct{ s *MemoryStore }

// LockSlot is a no-op: WithinTx already serializes writers.
func (r *memoryAppointments) LockSlot(context.Context, uuid.UUID, Slot) error { return nil }

func (r *memoryAppointments) activeAt(doctorID uuid.UUID, s Slot) (Appointment, bool) {
	for _, a := range r.s.appts {
		if a.DoctorID == doctorID && a.Date == s.Date && a.Time == s.Time && a.Status.Active() {
			return a, true
		}
	}
	return Appointment{}, false
}

func (r *memoryAppointments) ActiveAt(_ context.Context, doctorID uuid.UUID, s Slot) (*Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.activeAt(doctorID, s); ok {
		return &a, nil
	}
	return nil, nil
}

func (r *memoryAppointments) ActiveTimes(_ context.Context, doctorID uuid.UUID, date Date) ([]TimeOfDay, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var times []TimeOfDay
	for _, a := range r.s.appts {
		if a.DoctorID == doctorID && a.Date == date && a.Status.Active() {
			times = append(times, a.Time)
		}
	}
	slices.Sort(times)
	return times, nil
}

func (r *memoryAppointments) Create(_ context.Context, a *Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.Status.Active() {
		if _, taken := r.activeAt(a.DoctorID, Slot{Date: a.Date, Time: a.Time}); taken {
			return apperr.Conflict(apperr.CodeSlotTaken, "%s at %s is already booked", a.Date, a.Time)
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.s.appts[a.ID] = *a
	return nil
}

func (r *memoryAppointments) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	return &a, nil
}

func (r *memoryAppointments) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryAppointments) UpdateStatus(_ context.Context, id uuid.UUID, status Status) (time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.appts[id]
	if !ok {
		return time.Time{}, apperr.NotFound("appointment %s not found", id)
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	r.s.appts[id] = a
	return a.UpdatedAt, nil
}

func (f AppointmentFilter) matches(a *Appointment) bool {
	switch {
	case f.DoctorID != nil && a.DoctorID != *f.DoctorID:
		return false
	case f.PatientID != nil && (a.PatientID() == nil || *a.PatientID() != *f.PatientID):
		return false
	case f.Date != nil && a.Date != *f.Date:
		return false
	case f.Status != nil && a.Status != *f.Status:
		return false
	case f.ActiveOnly && !a.Status.Active():
		return false
	case f.After != nil && !f.After.Before(Slot{Date: a.Date, Time: a.Time}):
		return false
	}
	return true
}

func (r *memoryAppointments) List(_ context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var items []*Appointment
	for _, a := range r.s.appts {
		if f.matches(&a) {
			items = append(items, &a)
		}
	}
	slices.SortFunc(items, func(a, b *Appointment) int {
		return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.Time, b.Time), a.CreatedAt.Compare(b.CreatedAt))
	})
	if f.NewestFirst {
		slices.Reverse(items)
	}
	return pagination.Page(items, pagination.Params{Limit: limit, Offset: offset}), len(items), nil
}

func (r *memoryAppointments) CountByStatus(_ context.Context, date Date) (map[Status]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := make(map[Status]int)
	for _, a := range r.s.appts {
		if a.Date == date {
			counts[a.Status]++
		}
	}
	return counts, nil
}
