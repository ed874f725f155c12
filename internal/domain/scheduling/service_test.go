package scheduling

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/clinic/clinic/internal/domain/directory"
	"github.com/clinic/clinic/internal/platform/apperr"
)

// Sunday 2026-03-01 08:00 UTC. The next day is a Monday.
var testNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

const (
	monday    = "2026-03-02"
	tuesday   = "2026-03-03"
	nextMonth = "2026-04-06"
)

type fakeDirectory struct {
	doctors  map[uuid.UUID]*directory.Doctor
	patients map[uuid.UUID]*directory.Patient
}

func (f *fakeDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*directory.Doctor, error) {
	d, ok := f.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	return d, nil
}

func (f *fakeDirectory) GetPatient(_ context.Context, id uuid.UUID) (*directory.Patient, error) {
	p, ok := f.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient %s not found", id)
	}
	return p, nil
}

type fixture struct {
	svc     *Service
	store   *MemoryStore
	dir     *fakeDirectory
	logs    *bytes.Buffer
	now     time.Time
	plan    uuid.UUID
	doctor  *directory.Doctor
	patient *directory.Patient
	staff   Requester
	self    Requester
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: NewMemoryStore(),
		dir: &fakeDirectory{
			doctors:  map[uuid.UUID]*directory.Doctor{},
			patients: map[uuid.UUID]*directory.Patient{},
		},
		logs: &bytes.Buffer{},
		now:  testNow,
		plan: uuid.New(),
	}
	f.doctor = f.addDoctor(true, f.plan)
	f.patient = f.addPatient(&f.plan)
	f.staff = Requester{UserID: "front-desk", Staff: true}
	f.self = Requester{UserID: "maria", PatientID: &f.patient.ID}

	f.svc = NewService(f.store, f.store.Windows(), f.store.Appointments(), f.dir, f.dir,
		WithLogger(zerolog.New(zerolog.SyncWriter(f.logs))),
		WithLocation(time.UTC),
		WithClock(func() time.Time { return f.now }),
	)

	// Mondays 09:00-12:00 in half hours.
	_, err := f.svc.AddWindow(context.Background(), WindowInput{
		DoctorID: f.doctor.ID, Weekday: int(Monday), Start: "09:00", End: "12:00", SlotMinutes: 30,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) addDoctor(active bool, plans ...uuid.UUID) *directory.Doctor {
	d := &directory.Doctor{
		ID: uuid.New(), FirstName: "Ana", LastName: "García", Specialty: "Clínica",
		Active: active, CoveragePlanIDs: plans,
	}
	f.dir.doctors[d.ID] = d
	return d
}

func (f *fixture) addPatient(plan *uuid.UUID) *directory.Patient {
	p := &directory.Patient{ID: uuid.New(), FirstName: "María", LastName: "López", CoveragePlanID: plan}
	f.dir.patients[p.ID] = p
	return p
}

func (f *fixture) book(req Requester, date, at string) (*Appointment, error) {
	return f.svc.Book(context.Background(), req, BookingRequest{DoctorID: f.doctor.ID, Date: date, Time: at})
}

func slotStrings(ts []TimeOfDay) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.String())
	}
	return out
}

// -- Availability Model --

func TestAddWindow_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   WindowInput
	}{
		{"weekday too large", WindowInput{Weekday: 7, Start: "09:00", End: "10:00", SlotMinutes: 30}},
		{"negative weekday", WindowInput{Weekday: -1, Start: "09:00", End: "10:00", SlotMinutes: 30}},
		{"duration too short", WindowInput{Weekday: 1, Start: "09:00", End: "10:00", SlotMinutes: 10}},
		{"duration too long", WindowInput{Weekday: 1, Start: "09:00", End: "13:00", SlotMinutes: 150}},
		{"start after end", WindowInput{Weekday: 1, Start: "11:00", End: "10:00", SlotMinutes: 30}},
		{"start equals end", WindowInput{Weekday: 1, Start: "10:00", End: "10:00", SlotMinutes: 30}},
		{"bad time", WindowInput{Weekday: 1, Start: "nine", End: "10:00", SlotMinutes: 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.DoctorID = f.doctor.ID
			_, err := f.svc.AddWindow(ctx, tt.in)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestAddWindow_Duplicate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddWindow(context.Background(), WindowInput{
		DoctorID: f.doctor.ID, Weekday: int(Monday), Start: "09:00", End: "10:00", SlotMinutes: 15,
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, apperr.CodeDuplicateWindow, apperr.CodeOf(err))
}

func TestAddWindow_UnknownDoctor(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddWindow(context.Background(), WindowInput{
		DoctorID: uuid.New(), Weekday: 0, Start: "09:00", End: "10:00", SlotMinutes: 30,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestAddWindow_OverlapIsLogged(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddWindow(context.Background(), WindowInput{
		DoctorID: f.doctor.ID, Weekday: int(Monday), Start: "11:00", End: "13:00", SlotMinutes: 60,
	})
	require.NoError(t, err)
	assert.Contains(t, f.logs.String(), "overlaps an existing window")
}

func TestListAndRemoveWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddWindow(ctx, WindowInput{
		DoctorID: f.doctor.ID, Weekday: int(Friday), Start: "14:00", End: "16:00", SlotMinutes: 20,
	})
	require.NoError(t, err)

	windows, err := f.svc.ListWindows(ctx, f.doctor.ID)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, Monday, windows[0].Weekday)
	assert.Equal(t, Friday, windows[1].Weekday)

	require.NoError(t, f.svc.RemoveWindow(ctx, windows[0].ID))
	err = f.svc.RemoveWindow(ctx, windows[0].ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	windows, err = f.svc.ListWindows(ctx, f.doctor.ID)
	require.NoError(t, err)
	assert.Len(t, windows, 1)
}

func TestRemoveWindow_KeepsAppointments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.book(f.self, monday, "09:30")
	require.NoError(t, err)

	windows, err := f.svc.ListWindows(ctx, f.doctor.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.RemoveWindow(ctx, windows[0].ID))

	got, err := f.svc.GetAppointment(ctx, f.staff, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

// -- Availability Resolver --

func TestAvailableSlots(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.AvailableSlots(context.Background(), f.self, f.doctor.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}, slotStrings(out.Slots))
	assert.Empty(t, out.Overlapping)
}

func TestAvailableSlots_NoWindowOnWeekday(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.AvailableSlots(context.Background(), f.self, f.doctor.ID, tuesday)
	require.NoError(t, err)
	assert.NotNil(t, out.Slots)
	assert.Empty(t, out.Slots)
}

func TestAvailableSlots_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AvailableSlots(ctx, f.self, uuid.New(), monday)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = f.svc.AvailableSlots(ctx, f.self, f.doctor.ID, "03/02/2026")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.svc.AvailableSlots(ctx, f.self, f.doctor.ID, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestAvailableSlots_ExcludesActiveBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.book(f.self, monday, "10:00")
	require.NoError(t, err)

	other := f.addPatient(&f.plan)
	a, err := f.svc.Book(ctx, f.staff, BookingRequest{DoctorID: f.doctor.ID, Date: monday, Time: "11:00", PatientID: &other.ID})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, f.staff, a.ID, StatusConfirmed)
	require.NoError(t, err)

	out, err := f.svc.AvailableSlots(ctx, f.self, f.doctor.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:30", "11:30"}, slotStrings(out.Slots))
}

func TestAvailableSlots_ReportsOverlappingWindows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddWindow(ctx, WindowInput{
		DoctorID: f.doctor.ID, Weekday: int(Monday), Start: "11:00", End: "13:00", SlotMinutes: 60,
	})
	require.NoError(t, err)
	f.logs.Reset()

	out, err := f.svc.AvailableSlots(ctx, f.self, f.doctor.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00"}, slotStrings(out.Slots))
	assert.Equal(t, []string{"11:00"}, slotStrings(out.Overlapping))
	assert.Contains(t, f.logs.String(), "overlapping availability windows")
}

func TestAvailableSlots_PastAndToday(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.AvailableSlots(ctx, f.self, f.doctor.ID, "2026-02-23")
	require.NoError(t, err)
	assert.Empty(t, out.Slots)

	// Monday 10:10: only the slots after now remain.
	f.now = time.Date(2026, 3, 2, 10, 10, 0, 0, time.UTC)
	out, err = f.svc.AvailableSlots(ctx, f.self, f.doctor.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:30", "11:00", "11:30"}, slotStrings(out.Slots))
}

func TestAvailableSlots_InactiveDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.doctor.Active = false

	out, err := f.svc.AvailableSlots(ctx, f.self, f.doctor.ID, monday)
	require.NoError(t, err)
	assert.Empty(t, out.Slots)

	out, err = f.svc.AvailableSlots(ctx, f.staff, f.doctor.ID, monday)
	require.NoError(t, err)
	assert.Len(t, out.Slots, 6)
}

// -- Booking Service --

func TestBook(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.Book(context.Background(), f.self, BookingRequest{
		DoctorID: f.doctor.ID, Date: monday, Time: "09:30", Reason: "  control  ",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, "maria", a.CreatedBy)
	assert.Equal(t, "control", a.Reason)
	assert.Equal(t, RegisteredPatient{PatientID: f.patient.ID}, a.Subject)
}

func TestBook_DoubleBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.book(f.self, monday, "09:00")
	require.NoError(t, err)

	other := f.addPatient(&f.plan)
	_, err = f.book(Requester{UserID: "pedro", PatientID: &other.ID}, monday, "09:00")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, apperr.CodeSlotTaken, apperr.CodeOf(err))

	items, total, err := f.svc.ListAppointments(ctx, f.staff, AppointmentFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, items, 1)
}

func TestBook_RebookAfterCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.book(f.self, monday, "09:00")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.self, first.ID)
	require.NoError(t, err)

	second, err := f.book(f.self, monday, "09:00")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	out, err := f.svc.AvailableSlots(ctx, f.self, f.doctor.ID, monday)
	require.NoError(t, err)
	assert.NotContains(t, slotStrings(out.Slots), "09:00")
}

func TestBook_Concurrent(t *testing.T) {
	f := newFixture(t)

	const n = 16
	var ok, conflicts atomic.Int32
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := f.svc.Book(context.Background(), f.staff, BookingRequest{
				DoctorID: f.doctor.ID, Date: monday, Time: "10:30", PatientID: &f.patient.ID,
			})
			switch {
			case err == nil:
				ok.Add(1)
			case apperr.CodeOf(err) == apperr.CodeSlotTaken:
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(n-1), conflicts.Load())
}

func TestBook_DifferentSlotsDoNotConflict(t *testing.T) {
	f := newFixture(t)

	var g errgroup.Group
	for _, at := range []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"} {
		g.Go(func() error {
			_, err := f.book(f.self, monday, at)
			return err
		})
	}
	require.NoError(t, g.Wait())

	out, err := f.svc.AvailableSlots(context.Background(), f.self, f.doctor.ID, monday)
	require.NoError(t, err)
	assert.Empty(t, out.Slots)
}

func TestBook_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		date string
		at   string
	}{
		{"bad date", "2026-13-01", "09:00"},
		{"bad time", monday, "9"},
		{"past", "2026-02-23", "09:00"},
		{"not an offered slot", monday, "09:15"},
		{"outside windows", tuesday, "09:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.book(f.self, tt.date, tt.at)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestBook_InactiveDoctor(t *testing.T) {
	f := newFixture(t)
	f.doctor.Active = false

	_, err := f.book(f.self, monday, "09:00")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestBook_UnknownDoctorAndPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, f.self, BookingRequest{DoctorID: uuid.New(), Date: monday, Time: "09:00"})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	ghost := uuid.New()
	_, err = f.svc.Book(ctx, f.staff, BookingRequest{DoctorID: f.doctor.ID, Date: monday, Time: "09:00", PatientID: &ghost})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestBook_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.addPatient(&f.plan)

	_, err := f.svc.Book(ctx, f.self, BookingRequest{DoctorID: f.doctor.ID, Date: monday, Time: "09:00", PatientID: &other.ID})
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization), "booking for someone else")

	_, err = f.svc.Book(ctx, f.self, BookingRequest{DoctorID: f.doctor.ID, Date: monday, Time: "09:00", WalkInName: "Juan"})
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization), "patient walk-in")

	_, err = f.book(Requester{UserID: "nobody"}, monday, "09:00")
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization), "no patient record")

	otherPlan := uuid.New()
	uncovered := f.addPatient(&otherPlan)
	_, err = f.book(Requester{UserID: "uncovered", PatientID: &uncovered.ID}, monday, "09:00")
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization), "plan not accepted")
	assert.Equal(t, apperr.CodeNotAuthorized, apperr.CodeOf(err))

	// staff bypass coverage matching and may book off-grid times
	a, err := f.svc.Book(ctx, f.staff, BookingRequest{DoctorID: f.doctor.ID, Date: monday, Time: "09:15", PatientID: &uncovered.ID})
	require.NoError(t, err)
	assert.Equal(t, "front-desk", a.CreatedBy)
}

func TestBook_WalkIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Book(ctx, f.staff, BookingRequest{
		DoctorID: f.doctor.ID, Date: monday, Time: "11:30", WalkInName: " Juan Pérez ", WalkInPhone: "1155550000",
	})
	require.NoError(t, err)
	assert.Equal(t, WalkIn{Name: "Juan Pérez", Phone: "1155550000"}, a.Subject)
	assert.Nil(t, a.PatientID())

	_, err = f.svc.Book(ctx, f.staff, BookingRequest{DoctorID: f.doctor.ID, Date: monday, Time: "11:00", WalkInName: "  "})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.svc.Book(ctx, f.staff, BookingRequest{
		DoctorID: f.doctor.ID, Date: monday, Time: "11:00", WalkInName: "Juan", PatientID: &f.patient.ID,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestBook_FailedBookingLeavesNoWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.doctor.Active = false

	_, err := f.book(f.self, monday, "09:00")
	require.Error(t, err)

	_, total, err := f.svc.ListAppointments(ctx, f.staff, AppointmentFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

// -- Cancellation --

func TestCancel_Cutoff(t *testing.T) {
	tests := []struct {
		name    string
		ahead   time.Duration
		wantErr bool
	}{
		{"23 hours ahead", 23 * time.Hour, true},
		{"exactly 24 hours ahead", 24 * time.Hour, true},
		{"25 hours ahead", 25 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			at := testNow.Add(tt.ahead)
			a, err := f.svc.Book(ctx, f.staff, BookingRequest{
				DoctorID: f.doctor.ID, Date: at.Format(DateLayout), Time: at.Format("15:04"), PatientID: &f.patient.ID,
			})
			require.NoError(t, err)

			got, err := f.svc.Cancel(ctx, f.self, a.ID)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsKind(err, apperr.KindBusinessRule))
				assert.Equal(t, apperr.CodeCutoffViolated, apperr.CodeOf(err))

				still, err := f.svc.GetAppointment(ctx, f.self, a.ID)
				require.NoError(t, err)
				assert.Equal(t, StatusPending, still.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusCancelled, got.Status)
		})
	}
}

func TestCancel_StaffBypassCutoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	at := testNow.Add(2 * time.Hour)
	a, err := f.svc.Book(ctx, f.staff, BookingRequest{
		DoctorID: f.doctor.ID, Date: at.Format(DateLayout), Time: at.Format("15:04"), PatientID: &f.patient.ID,
	})
	require.NoError(t, err)

	got, err := f.svc.Cancel(ctx, f.staff, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestCancel_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, f.self, uuid.New())
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	a, err := f.book(f.self, nextMonth, "09:00")
	require.NoError(t, err)

	other := f.addPatient(&f.plan)
	_, err = f.svc.Cancel(ctx, Requester{UserID: "pedro", PatientID: &other.ID}, a.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	_, err = f.svc.Cancel(ctx, f.self, a.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, f.self, a.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(err))
}

func TestCancel_NeverDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.book(f.self, nextMonth, "09:00")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.self, a.ID)
	require.NoError(t, err)

	got, err := f.svc.GetAppointment(ctx, f.self, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

// -- Staff workflows --

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.book(f.self, monday, "09:00")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.self, a.ID, StatusConfirmed)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	_, err = f.svc.UpdateStatus(ctx, f.staff, a.ID, StatusCompleted)
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(err))

	_, err = f.svc.UpdateStatus(ctx, f.staff, a.ID, Status("lost"))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	got, err := f.svc.UpdateStatus(ctx, f.staff, a.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	got, err = f.svc.UpdateStatus(ctx, f.staff, a.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestGetAppointment_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.book(f.self, monday, "09:00")
	require.NoError(t, err)

	other := f.addPatient(&f.plan)
	_, err = f.svc.GetAppointment(ctx, Requester{PatientID: &other.ID}, a.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	_, err = f.svc.GetAppointment(ctx, f.staff, uuid.New())
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestListAppointments_PatientScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.book(f.self, monday, "09:00")
	require.NoError(t, err)
	other := f.addPatient(&f.plan)
	_, err = f.book(Requester{UserID: "pedro", PatientID: &other.ID}, monday, "09:30")
	require.NoError(t, err)

	items, total, err := f.svc.ListAppointments(ctx, f.self, AppointmentFilter{PatientID: &other.ID}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.True(t, f.self.Owns(items[0]))

	_, total, err = f.svc.ListAppointments(ctx, f.staff, AppointmentFilter{DoctorID: &f.doctor.ID}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, _, err = f.svc.ListAppointments(ctx, Requester{UserID: "nobody"}, AppointmentFilter{}, 10, 0)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestUpcoming(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	later, err := f.book(f.self, nextMonth, "09:00")
	require.NoError(t, err)
	sooner, err := f.book(f.self, monday, "11:00")
	require.NoError(t, err)
	cancelled, err := f.book(f.self, monday, "09:00")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.self, cancelled.ID)
	require.NoError(t, err)

	items, err := f.svc.Upcoming(ctx, f.self, 5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, sooner.ID, items[0].ID)
	assert.Equal(t, later.ID, items[1].ID)

	// once Monday 11:00 has passed only the later one is upcoming
	f.now = time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	items, err = f.svc.Upcoming(ctx, f.self, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, later.ID, items[0].ID)

	_, err = f.svc.Upcoming(ctx, f.staff, 5)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestDaySummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.book(f.self, monday, "09:00")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, f.staff, a.ID, StatusConfirmed)
	require.NoError(t, err)
	_, err = f.svc.Book(ctx, f.staff, BookingRequest{DoctorID: f.doctor.ID, Date: monday, Time: "10:00", WalkInName: "Juan"})
	require.NoError(t, err)
	_, err = f.book(f.self, nextMonth, "09:00")
	require.NoError(t, err)

	sum, err := f.svc.DaySummary(ctx, f.staff, monday)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Counts[StatusConfirmed])
	assert.Equal(t, 1, sum.Counts[StatusPending])
	require.Len(t, sum.Appointments, 2)
	assert.Equal(t, NewTimeOfDay(9, 0), sum.Appointments[0].Time)

	_, err = f.svc.DaySummary(ctx, f.self, monday)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestMemoryStore_RollbackOnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, store.Appointments().Create(ctx, &Appointment{
			DoctorID: uuid.New(), Subject: WalkIn{Name: "x"}, Status: StatusPending,
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, total, err := store.Appointments().List(ctx, AppointmentFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}
