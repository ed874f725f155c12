package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
)

func TestBooking_ConcurrentSameSlot(t *testing.T) {
	c := newClinic(t)
	svc := c.service(testNow)

	const workers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Book(context.Background(), c.staff, scheduling.BookingRequest{
				DoctorID:  c.doctor.ID,
				PatientID: &c.patient.ID,
				Date:      monday,
				Time:      "09:00",
			})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case apperr.CodeOf(err) == apperr.CodeSlotTaken:
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one booking, got %d", successes)
	}

	_, total, err := svc.ListAppointments(context.Background(), c.staff,
		scheduling.AppointmentFilter{DoctorID: &c.doctor.ID}, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 {
		t.Errorf("expected one stored appointment, got %d", total)
	}
}

func TestAppointmentRepo_ActiveSlotIndex(t *testing.T) {
	c := newClinic(t)
	ctx := context.Background()
	date, _ := scheduling.ParseDate(monday)

	newAppt := func() *scheduling.Appointment {
		return &scheduling.Appointment{
			DoctorID:  c.doctor.ID,
			Subject:   scheduling.WalkIn{Name: "Juan Pérez", Phone: "1144440000"},
			Date:      date,
			Time:      scheduling.NewTimeOfDay(10, 0),
			Status:    scheduling.StatusPending,
			CreatedBy: "front-desk",
		}
	}

	if err := c.appts.Create(ctx, newAppt()); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// no advisory lock here: the partial unique index alone rejects the row
	err := c.appts.Create(ctx, newAppt())
	if !apperr.IsKind(err, apperr.KindConflict) || apperr.CodeOf(err) != apperr.CodeSlotTaken {
		t.Fatalf("expected slot_taken conflict, got %v", err)
	}
}

func TestBooking_RebookAfterCancel(t *testing.T) {
	c := newClinic(t)
	svc := c.service(testNow)
	ctx := context.Background()

	first := c.book(t, svc, c.self, monday, "09:30")
	if _, err := svc.Cancel(ctx, c.self, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	second := c.book(t, svc, c.self, monday, "09:30")
	if second.ID == first.ID {
		t.Fatal("expected a new appointment")
	}

	stored, err := svc.GetAppointment(ctx, c.staff, first.ID)
	if err != nil {
		t.Fatalf("get cancelled: %v", err)
	}
	if stored.Status != scheduling.StatusCancelled {
		t.Errorf("expected cancelled, got %s", stored.Status)
	}

	if _, err := svc.Cancel(ctx, c.self, first.ID); apperr.CodeOf(err) != apperr.CodeInvalidTransition {
		t.Errorf("expected invalid_transition on second cancel, got %v", err)
	}
}

func TestBooking_RoundTrip(t *testing.T) {
	c := newClinic(t)
	svc := c.service(testNow)
	ctx := context.Background()

	booked := c.book(t, svc, c.staff, nextMonth, "11:30")
	got, err := svc.GetAppointment(ctx, c.self, booked.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Date.String() != nextMonth || got.Time.String() != "11:30" {
		t.Errorf("expected %s 11:30, got %s %s", nextMonth, got.Date, got.Time)
	}
	if rp, ok := got.Subject.(scheduling.RegisteredPatient); !ok || rp.PatientID != c.patient.ID {
		t.Errorf("unexpected subject %#v", got.Subject)
	}

	walkIn, err := svc.Book(ctx, c.staff, scheduling.BookingRequest{
		DoctorID:    c.doctor.ID,
		Date:        monday,
		Time:        "11:00",
		WalkInName:  "Juan Pérez",
		WalkInPhone: "1144440000",
	})
	if err != nil {
		t.Fatalf("book walk-in: %v", err)
	}
	got, err = svc.GetAppointment(ctx, c.staff, walkIn.ID)
	if err != nil {
		t.Fatalf("get walk-in: %v", err)
	}
	if w, ok := got.Subject.(scheduling.WalkIn); !ok || w.Name != "Juan Pérez" || w.Phone != "1144440000" {
		t.Errorf("unexpected subject %#v", got.Subject)
	}
}

func TestAvailableSlots_ExcludesActiveBookings(t *testing.T) {
	c := newClinic(t)
	svc := c.service(testNow)
	ctx := context.Background()

	c.book(t, svc, c.self, monday, "09:00")
	cancelled := c.book(t, svc, c.staff, monday, "10:00")
	if _, err := svc.Cancel(ctx, c.staff, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	date, _ := scheduling.ParseDate(monday)
	taken, err := c.appts.ActiveTimes(ctx, c.doctor.ID, date)
	if err != nil {
		t.Fatalf("active times: %v", err)
	}
	if len(taken) != 1 || taken[0] != scheduling.NewTimeOfDay(9, 0) {
		t.Errorf("expected [09:00], got %v", taken)
	}

	avail, err := svc.AvailableSlots(ctx, c.self, c.doctor.ID, monday)
	if err != nil {
		t.Fatalf("available slots: %v", err)
	}
	want := []string{"09:30", "10:00", "10:30", "11:00", "11:30"}
	if len(avail.Slots) != len(want) {
		t.Fatalf("expected %v, got %v", want, avail.Slots)
	}
	for i, s := range avail.Slots {
		if s.String() != want[i] {
			t.Errorf("slot %d: expected %s, got %s", i, want[i], s)
		}
	}
}

func TestUpcoming_KeysetAfterNow(t *testing.T) {
	c := newClinic(t)
	svc := c.service(testNow)
	ctx := context.Background()

	c.book(t, svc, c.self, monday, "09:00")
	c.book(t, svc, c.self, monday, "11:00")
	c.book(t, svc, c.self, nextMonth, "09:00")
	cancelled := c.book(t, svc, c.self, monday, "10:00")
	if _, err := svc.Cancel(ctx, c.self, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Monday 10:00: the 09:00 appointment has started, 11:00 is still ahead.
	later := c.service(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	items, err := later.Upcoming(ctx, c.self, 5)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	var got []string
	for _, a := range items {
		got = append(got, a.Date.String()+" "+a.Time.String())
	}
	want := []string{monday + " 11:00", nextMonth + " 09:00"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected %v, got %v", want, got)
	}

	items, _, err = svc.ListAppointments(ctx, c.self, scheduling.AppointmentFilter{NewestFirst: true}, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 appointments, got %d", len(items))
	}
	if items[0].Date.String() != nextMonth || items[3].Time.String() != "09:00" {
		t.Errorf("expected newest first, got %s %s first", items[0].Date, items[0].Time)
	}
}

func TestWindowRepo_DuplicateStart(t *testing.T) {
	c := newClinic(t)
	ctx := context.Background()

	err := c.windows.Create(ctx, &scheduling.AvailabilityWindow{
		DoctorID:    c.doctor.ID,
		Weekday:     scheduling.Monday,
		Start:       scheduling.NewTimeOfDay(9, 0),
		End:         scheduling.NewTimeOfDay(10, 0),
		SlotMinutes: 15,
	})
	if apperr.CodeOf(err) != apperr.CodeDuplicateWindow {
		t.Fatalf("expected duplicate_window, got %v", err)
	}
}
