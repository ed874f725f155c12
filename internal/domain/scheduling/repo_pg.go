package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

const microsPerMinute = int64(time.Minute / time.Microsecond)

func pgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * microsPerMinute, Valid: true}
}

func fromPGTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / microsPerMinute)
}

func pgDate(d Date) pgtype.Date {
	return pgtype.Date{Time: d.midnightUTC(), Valid: true}
}

// =========== Availability Window Repository ===========

type windowRepoPG struct{ pool *pgxpool.Pool }

func NewWindowRepoPG(pool *pgxpool.Pool) WindowRepository { return &windowRepoPG{pool: pool} }

const windowCols = `id, doctor_id, weekday, start_time, end_time, slot_minutes, created_at`

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var (
		w          AvailabilityWindow
		start, end pgtype.Time
		weekday    int16
	)
	if err := row.Scan(&w.ID, &w.DoctorID, &weekday, &start, &end, &w.SlotMinutes, &w.CreatedAt); err != nil {
		return nil, err
	}
	w.Weekday = Weekday(weekday)
	w.Start = fromPGTime(start)
	w.End = fromPGTime(end)
	return &w, nil
}

func (r *windowRepoPG) Create(ctx context.Context, w *AvailabilityWindow) error {
	w.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO availability_window (id, doctor_id, weekday, start_time, end_time, slot_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		w.ID, w.DoctorID, int16(w.Weekday), pgTime(w.Start), pgTime(w.End), w.SlotMinutes,
	).Scan(&w.CreatedAt)
	if db.IsUniqueViolation(err, "availability_window_doctor_weekday_start_key") {
		return apperr.Conflict(apperr.CodeDuplicateWindow,
			"doctor already has a %s window starting at %s", w.Weekday, w.Start)
	}
	return err
}

func (r *windowRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	w, err := scanWindow(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+windowCols+` FROM availability_window WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("availability window %s not found", id)
	}
	return w, err
}

func (r *windowRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM availability_window WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("availability window %s not found", id)
	}
	return nil
}

func (r *windowRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*AvailabilityWindow, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

func (r *windowRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*AvailabilityWindow, error) {
	return r.list(ctx, `SELECT `+windowCols+` FROM availability_window
		WHERE doctor_id = $1 ORDER BY weekday, start_time`, doctorID)
}

func (r *windowRepoPG) ListByDoctorWeekday(ctx context.Context, doctorID uuid.UUID, wd Weekday) ([]*AvailabilityWindow, error) {
	return r.list(ctx, `SELECT `+windowCols+` FROM availability_window
		WHERE doctor_id = $1 AND weekday = $2 ORDER BY start_time`, doctorID, int16(wd))
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `id, doctor_id, patient_id, walkin_name, walkin_phone, appointment_date,
	appointment_time, status, reason, notes, created_by, created_at, updated_at`

const activeStatusSQL = `status IN ('pending', 'confirmed')`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a                       Appointment
		patientID               *uuid.UUID
		walkinName, walkinPhone *string
		date                    pgtype.Date
		tod                     pgtype.Time
		status                  string
	)
	err := row.Scan(&a.ID, &a.DoctorID, &patientID, &walkinName, &walkinPhone, &date,
		&tod, &status, &a.Reason, &a.Notes, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Date = DateOf(date.Time)
	a.Time = fromPGTime(tod)
	a.Status = Status(status)
	if patientID != nil {
		a.Subject = RegisteredPatient{PatientID: *patientID}
	} else {
		w := WalkIn{}
		if walkinName != nil {
			w.Name = *walkinName
		}
		if walkinPhone != nil {
			w.Phone = *walkinPhone
		}
		a.Subject = w
	}
	return &a, nil
}

func slotLockKey(doctorID uuid.UUID, s Slot) string {
	return fmt.Sprintf("appointment:%s:%s:%s", doctorID, s.Date, s.Time)
}

func (r *appointmentRepoPG) LockSlot(ctx context.Context, doctorID uuid.UUID, s Slot) error {
	return db.AdvisoryXactLock(ctx, slotLockKey(doctorID, s))
}

func (r *appointmentRepoPG) ActiveAt(ctx context.Context, doctorID uuid.UUID, s Slot) (*Appointment, error) {
	a, err := scanAppointment(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE doctor_id = $1 AND appointment_date = $2 AND appointment_time = $3 AND `+activeStatusSQL,
		doctorID, pgDate(s.Date), pgTime(s.Time)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *appointmentRepoPG) ActiveTimes(ctx context.Context, doctorID uuid.UUID, date Date) ([]TimeOfDay, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT appointment_time FROM appointment
		WHERE doctor_id = $1 AND appointment_date = $2 AND `+activeStatusSQL+`
		ORDER BY appointment_time`, doctorID, pgDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var times []TimeOfDay
	for rows.Next() {
		var t pgtype.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, fromPGTime(t))
	}
	return times, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	var walkinName, walkinPhone *string
	if w, ok := a.Subject.(WalkIn); ok {
		walkinName = &w.Name
		if w.Phone != "" {
			walkinPhone = &w.Phone
		}
	}
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment (id, doctor_id, patient_id, walkin_name, walkin_phone,
			appointment_date, appointment_time, status, reason, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.PatientID(), walkinName, walkinPhone,
		pgDate(a.Date), pgTime(a.Time), string(a.Status), a.Reason, a.Notes, a.CreatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, "appointment_active_slot_idx") {
		return apperr.Conflict(apperr.CodeSlotTaken, "%s at %s is already booked", a.Date, a.Time)
	}
	return err
}

func (r *appointmentRepoPG) get(ctx context.Context, query string, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	return a, err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.get(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id)
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.get(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id)
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (time.Time, error) {
	var updatedAt time.Time
	err := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointment SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`, id, string(status)).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, apperr.NotFound("appointment %s not found", id)
	}
	return updatedAt, err
}

func (r *appointmentRepoPG) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.DoctorID != nil {
		where += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Date != nil {
		where += fmt.Sprintf(` AND appointment_date = $%d`, idx)
		args = append(args, pgDate(*f.Date))
		idx++
	}
	if f.Status != nil {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, string(*f.Status))
		idx++
	}
	if f.ActiveOnly {
		where += ` AND ` + activeStatusSQL
	}
	if f.After != nil {
		where += fmt.Sprintf(` AND (appointment_date, appointment_time) > ($%d::date, $%d::time)`, idx, idx+1)
		args = append(args, pgDate(f.After.Date), pgTime(f.After.Time))
		idx += 2
	}

	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := `appointment_date, appointment_time, created_at`
	if f.NewestFirst {
		order = `appointment_date DESC, appointment_time DESC, created_at DESC`
	}
	query := `SELECT ` + apptCols + ` FROM appointment` + where +
		fmt.Sprintf(` ORDER BY %s LIMIT $%d OFFSET $%d`, order, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) CountByStatus(ctx context.Context, date Date) (map[Status]int, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT status, COUNT(*) FROM appointment
		WHERE appointment_date = $1
		GROUP BY status`, pgDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}
