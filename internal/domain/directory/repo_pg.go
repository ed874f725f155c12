package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

// notFound turns pgx.ErrNoRows into an apperr NotFound for the given entity.
func notFound(err error, entity string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s %v not found", entity, id)
	}
	return err
}

// =========== Coverage Plan Repository ===========

type coveragePlanRepoPG struct{ pool *pgxpool.Pool }

func NewCoveragePlanRepoPG(pool *pgxpool.Pool) CoveragePlanRepository {
	return &coveragePlanRepoPG{pool: pool}
}

const planCols = `id, name, active, created_at`

func scanPlan(row pgx.Row) (*CoveragePlan, error) {
	var p CoveragePlan
	err := row.Scan(&p.ID, &p.Name, &p.Active, &p.CreatedAt)
	return &p, err
}

func (r *coveragePlanRepoPG) Create(ctx context.Context, p *CoveragePlan) error {
	p.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO coverage_plan (id, name, active) VALUES ($1, $2, $3)
		RETURNING created_at`, p.ID, p.Name, p.Active).Scan(&p.CreatedAt)
	if db.IsUniqueViolation(err, "coverage_plan_name_key") {
		return apperr.Conflict(apperr.CodeDuplicate, "coverage plan %q already exists", p.Name)
	}
	return err
}

func (r *coveragePlanRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CoveragePlan, error) {
	p, err := scanPlan(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+planCols+` FROM coverage_plan WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "coverage plan", id)
	}
	return p, nil
}

func (r *coveragePlanRepoPG) List(ctx context.Context, activeOnly bool) ([]*CoveragePlan, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+planCols+` FROM coverage_plan WHERE active OR NOT $1 ORDER BY name`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*CoveragePlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

const doctorCols = `d.id, d.first_name, d.last_name, d.specialty, d.license_number,
	d.email, d.phone, d.active, d.created_at, d.updated_at,
	COALESCE((SELECT array_agg(dc.coverage_plan_id ORDER BY dc.coverage_plan_id)
		FROM doctor_coverage dc WHERE dc.doctor_id = d.id), '{}')`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.Specialty, &d.LicenseNumber,
		&d.Email, &d.Phone, &d.Active, &d.CreatedAt, &d.UpdatedAt, &d.CoveragePlanIDs)
	return &d, err
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	q := conn(ctx, r.pool)
	err := q.QueryRow(ctx, `
		INSERT INTO doctor (id, first_name, last_name, specialty, license_number, email, phone, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		d.ID, d.FirstName, d.LastName, d.Specialty, d.LicenseNumber, d.Email, d.Phone, d.Active,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if db.IsUniqueViolation(err, "doctor_license_number_key") {
		return apperr.Conflict(apperr.CodeDuplicate, "license number %q is already registered", d.LicenseNumber)
	}
	if err != nil {
		return err
	}
	return r.replaceCoverage(ctx, q, d)
}

func (r *doctorRepoPG) replaceCoverage(ctx context.Context, q queryable, d *Doctor) error {
	if _, err := q.Exec(ctx, `DELETE FROM doctor_coverage WHERE doctor_id = $1`, d.ID); err != nil {
		return fmt.Errorf("clear doctor coverage: %w", err)
	}
	if len(d.CoveragePlanIDs) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
		INSERT INTO doctor_coverage (doctor_id, coverage_plan_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`, d.ID, d.CoveragePlanIDs)
	if err != nil {
		return fmt.Errorf("insert doctor coverage: %w", err)
	}
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor d WHERE d.id = $1`, id))
	if err != nil {
		return nil, notFound(err, "doctor", id)
	}
	return d, nil
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	q := conn(ctx, r.pool)
	err := q.QueryRow(ctx, `
		UPDATE doctor SET first_name=$2, last_name=$3, specialty=$4, license_number=$5,
			email=$6, phone=$7, active=$8, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.FirstName, d.LastName, d.Specialty, d.LicenseNumber, d.Email, d.Phone, d.Active,
	).Scan(&d.UpdatedAt)
	if db.IsUniqueViolation(err, "doctor_license_number_key") {
		return apperr.Conflict(apperr.CodeDuplicate, "license number %q is already registered", d.LicenseNumber)
	}
	if err != nil {
		return notFound(err, "doctor", d.ID)
	}
	return r.replaceCoverage(ctx, q, d)
}

func (r *doctorRepoPG) List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Active != nil {
		where += fmt.Sprintf(` AND d.active = $%d`, idx)
		args = append(args, *f.Active)
		idx++
	}
	if f.CoveragePlanID != nil {
		where += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM doctor_coverage dc WHERE dc.doctor_id = d.id AND dc.coverage_plan_id = $%d)`, idx)
		args = append(args, *f.CoveragePlanID)
		idx++
	}
	if f.Specialty != "" {
		where += fmt.Sprintf(` AND d.specialty ILIKE $%d`, idx)
		args = append(args, f.Specialty)
		idx++
	}

	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM doctor d`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + doctorCols + ` FROM doctor d` + where +
		fmt.Sprintf(` ORDER BY d.last_name, d.first_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

const patientCols = `id, user_id, first_name, last_name, national_id, phone, address,
	coverage_plan_id, member_number, category, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.NationalID, &p.Phone, &p.Address,
		&p.CoveragePlanID, &p.MemberNumber, &p.Category, &p.CreatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, user_id, first_name, last_name, national_id, phone, address,
			coverage_plan_id, member_number, category)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		p.ID, p.UserID, p.FirstName, p.LastName, p.NationalID, p.Phone, p.Address,
		p.CoveragePlanID, p.MemberNumber, p.Category,
	).Scan(&p.CreatedAt)
	switch {
	case db.IsUniqueViolation(err, "patient_national_id_key"):
		return apperr.Conflict(apperr.CodeDuplicate, "national id %q is already registered", p.NationalID)
	case db.IsUniqueViolation(err, "patient_user_id_key"):
		return apperr.Conflict(apperr.CodeDuplicate, "user already has a patient record")
	}
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "patient", id)
	}
	return p, nil
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID string) (*Patient, error) {
	p, err := scanPatient(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFound(err, "patient for user", userID)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE patient SET phone = $2, address = $3, coverage_plan_id = $4, member_number = $5
		WHERE id = $1`,
		p.ID, p.Phone, p.Address, p.CoveragePlanID, p.MemberNumber)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient %s not found", p.ID)
	}
	return nil
}
