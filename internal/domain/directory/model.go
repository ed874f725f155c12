package directory

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// CoveragePlan is an insurance or benefit plan a patient may hold and a
// doctor may accept.
type CoveragePlan struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Doctor struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	FirstName       string      `db:"first_name" json:"first_name"`
	LastName        string      `db:"last_name" json:"last_name"`
	Specialty       string      `db:"specialty" json:"specialty"`
	LicenseNumber   string      `db:"license_number" json:"license_number"`
	Email           *string     `db:"email" json:"email,omitempty"`
	Phone           *string     `db:"phone" json:"phone,omitempty"`
	Active          bool        `db:"active" json:"active"`
	CoveragePlanIDs []uuid.UUID `json:"coverage_plan_ids"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

func (d *Doctor) FullName() string {
	return d.FirstName + " " + d.LastName
}

// Accepts reports whether the doctor takes patients of the given plan.
func (d *Doctor) Accepts(planID uuid.UUID) bool {
	return slices.Contains(d.CoveragePlanIDs, planID)
}

var validCategories = map[string]bool{"A": true, "B": true, "C": true}

type Patient struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         *string    `db:"user_id" json:"user_id,omitempty"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	NationalID     string     `db:"national_id" json:"national_id"`
	Phone          string     `db:"phone" json:"phone"`
	Address        *string    `db:"address" json:"address,omitempty"`
	CoveragePlanID *uuid.UUID `db:"coverage_plan_id" json:"coverage_plan_id,omitempty"`
	MemberNumber   *string    `db:"member_number" json:"member_number,omitempty"`
	Category       string     `db:"category" json:"category"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// DoctorFilter narrows ListDoctors. Zero values mean "any".
type DoctorFilter struct {
	Active         *bool
	CoveragePlanID *uuid.UUID
	Specialty      string
}
