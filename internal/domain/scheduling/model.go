package scheduling

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

const (
	DateLayout = "2006-01-02"

	MinSlotMinutes = 15
	MaxSlotMinutes = 120
)

// TimeOfDay is a wall-clock time expressed as minutes after midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// TimeOfDayOf returns the wall-clock time of t, truncated to the minute.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute())
}

// ParseTimeOfDay accepts HH:MM, and HH:MM:SS with zero seconds.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	layout := "15:04"
	if len(s) == len("15:04:05") {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil || t.Second() != 0 {
		return 0, apperr.Validation("invalid time %q, expected HH:MM", s)
	}
	return TimeOfDayOf(t), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) Add(minutes int) TimeOfDay { return t + TimeOfDay(minutes) }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Weekday numbers days Monday=0 through Sunday=6.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

func (w Weekday) Valid() bool { return w >= Monday && w <= Sunday }

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return time.Weekday((int(w) + 1) % 7).String()
}

// Date is a civil date with no time zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, apperr.Validation("date is required")
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, apperr.Validation("invalid date %q, expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string { return d.midnightUTC().Format(DateLayout) }

func (d Date) Weekday() Weekday {
	return Weekday((int(d.midnightUTC().Weekday()) + 6) % 7)
}

// At returns the instant of wall-clock time t on d in loc.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour(), t.Minute(), 0, 0, loc)
}

func (d Date) Compare(o Date) int { return d.midnightUTC().Compare(o.midnightUTC()) }
func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// AvailabilityWindow is a recurring weekly block of bookable time.
type AvailabilityWindow struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	Weekday     Weekday   `json:"weekday"`
	Start       TimeOfDay `json:"start_time"`
	End         TimeOfDay `json:"end_time"`
	SlotMinutes int       `json:"slot_minutes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Offers reports whether t is one of the slot start times of the window.
func (w *AvailabilityWindow) Offers(t TimeOfDay) bool {
	if w.SlotMinutes <= 0 || t < w.Start {
		return false
	}
	return int(t-w.Start)%w.SlotMinutes == 0 && t.Add(w.SlotMinutes) <= w.End
}

func (w *AvailabilityWindow) Overlaps(o *AvailabilityWindow) bool {
	return w.Weekday == o.Weekday && w.Start < o.End && o.Start < w.End
}

// WindowInput is the unvalidated form of a new availability window.
type WindowInput struct {
	DoctorID    uuid.UUID `json:"-"`
	Weekday     int       `json:"weekday" validate:"min=0,max=6"`
	Start       string    `json:"start_time" validate:"required"`
	End         string    `json:"end_time" validate:"required"`
	SlotMinutes int       `json:"slot_minutes" validate:"required"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ActiveStatuses are the statuses that occupy a slot.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func (s Status) Active() bool { return s == StatusPending || s == StatusConfirmed }

func (s Status) Terminal() bool { return s.Valid() && len(transitions[s]) == 0 }

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Subject is who an appointment is for: a RegisteredPatient or a WalkIn.
type Subject interface {
	isSubject()
}

type RegisteredPatient struct {
	PatientID uuid.UUID
}

type WalkIn struct {
	Name  string
	Phone string
}

func (RegisteredPatient) isSubject() {}
func (WalkIn) isSubject()            {}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Subject   Subject
	Date      Date
	Time      TimeOfDay
	Status    Status
	Reason    string
	Notes     string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PatientID returns the registered patient, or nil for walk-ins.
func (a *Appointment) PatientID() *uuid.UUID {
	if p, ok := a.Subject.(RegisteredPatient); ok {
		id := p.PatientID
		return &id
	}
	return nil
}

// StartsAt is the appointment instant in loc.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	return a.Date.At(a.Time, loc)
}

type appointmentJSON struct {
	ID          uuid.UUID  `json:"id"`
	DoctorID    uuid.UUID  `json:"doctor_id"`
	PatientID   *uuid.UUID `json:"patient_id,omitempty"`
	WalkInName  string     `json:"walk_in_name,omitempty"`
	WalkInPhone string     `json:"walk_in_phone,omitempty"`
	Date        Date       `json:"date"`
	Time        TimeOfDay  `json:"time"`
	Status      Status     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (a Appointment) MarshalJSON() ([]byte, error) {
	v := appointmentJSON{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID(),
		Date:      a.Date,
		Time:      a.Time,
		Status:    a.Status,
		Reason:    a.Reason,
		Notes:     a.Notes,
		CreatedBy: a.CreatedBy,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if w, ok := a.Subject.(WalkIn); ok {
		v.WalkInName = w.Name
		v.WalkInPhone = w.Phone
	}
	return json.Marshal(v)
}

func (a *Appointment) UnmarshalJSON(b []byte) error {
	var v appointmentJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*a = Appointment{
		ID:        v.ID,
		DoctorID:  v.DoctorID,
		Date:      v.Date,
		Time:      v.Time,
		Status:    v.Status,
		Reason:    v.Reason,
		Notes:     v.Notes,
		CreatedBy: v.CreatedBy,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
	if v.PatientID != nil {
		a.Subject = RegisteredPatient{PatientID: *v.PatientID}
	} else {
		a.Subject = WalkIn{Name: v.WalkInName, Phone: v.WalkInPhone}
	}
	return nil
}

// Requester is the identity a scheduling call is made on behalf of.
type Requester struct {
	UserID    string
	Staff     bool
	PatientID *uuid.UUID
}

// Owns reports whether a is booked for the requester's own patient record.
func (r Requester) Owns(a *Appointment) bool {
	pid := a.PatientID()
	return r.PatientID != nil && pid != nil && *pid == *r.PatientID
}

type BookingRequest struct {
	DoctorID    uuid.UUID  `json:"doctor_id" validate:"required"`
	Date        string     `json:"date" validate:"required"`
	Time        string     `json:"time" validate:"required"`
	PatientID   *uuid.UUID `json:"patient_id"`
	WalkInName  string     `json:"walk_in_name" validate:"max=150"`
	WalkInPhone string     `json:"walk_in_phone" validate:"max=20"`
	Reason      string     `json:"reason" validate:"max=500"`
	Notes       string     `json:"notes" validate:"max=2000"`
}

type AppointmentFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Date      *Date
	Status    *Status
	// ActiveOnly keeps pending and confirmed appointments.
	ActiveOnly bool
	// After keeps appointments strictly later than (After.Date, After.Time).
	After *Slot
	// NewestFirst reverses the default chronological order.
	NewestFirst bool
}

// Slot is a (date, time) pair on a doctor's calendar.
type Slot struct {
	Date Date
	Time TimeOfDay
}

func (s Slot) Before(o Slot) bool {
	if c := s.Date.Compare(o.Date); c != 0 {
		return c < 0
	}
	return s.Time < o.Time
}

// Availability is the answer to an available-slots query.
type Availability struct {
	DoctorID    uuid.UUID   `json:"doctor_id"`
	Date        Date        `json:"date"`
	Slots       []TimeOfDay `json:"slots"`
	Overlapping []TimeOfDay `json:"overlapping,omitempty"`
}

type DaySummary struct {
	Date         Date           `json:"date"`
	Total        int            `json:"total"`
	Counts       map[Status]int `json:"counts"`
	Appointments []*Appointment `json:"appointments"`
}
