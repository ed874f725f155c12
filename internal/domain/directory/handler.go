package directory

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RolePatient))
	readGroup.GET("/doctors", h.ListDoctors)
	readGroup.GET("/doctors/:id", h.GetDoctor)
	readGroup.GET("/coverage-plans", h.ListCoveragePlans)

	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.GET("/patients/me", h.GetProfile)
	patient.PUT("/patients/me", h.UpdateProfile)

	staff := api.Group("", auth.RequireRole(auth.RoleStaff))
	staff.POST("/doctors", h.CreateDoctor)
	staff.PUT("/doctors/:id", h.UpdateDoctor)
	staff.POST("/coverage-plans", h.CreateCoveragePlan)
	staff.POST("/patients", h.CreatePatient)
	staff.GET("/patients/:id", h.GetPatient)
}

type coveragePlanRequest struct {
	Name   string `json:"name" validate:"required,max=100"`
	Active *bool  `json:"active"`
}

type doctorRequest struct {
	FirstName       string      `json:"first_name" validate:"required,max=100"`
	LastName        string      `json:"last_name" validate:"required,max=100"`
	Specialty       string      `json:"specialty" validate:"required,max=100"`
	LicenseNumber   string      `json:"license_number" validate:"required,max=50"`
	Email           *string     `json:"email" validate:"omitempty,email"`
	Phone           *string     `json:"phone" validate:"omitempty,max=20"`
	Active          *bool       `json:"active"`
	CoveragePlanIDs []uuid.UUID `json:"coverage_plan_ids"`
}

func (r doctorRequest) toDoctor() *Doctor {
	d := &Doctor{
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Specialty:       r.Specialty,
		LicenseNumber:   r.LicenseNumber,
		Email:           r.Email,
		Phone:           r.Phone,
		Active:          true,
		CoveragePlanIDs: r.CoveragePlanIDs,
	}
	if r.Active != nil {
		d.Active = *r.Active
	}
	return d
}

type patientRequest struct {
	UserID         *string    `json:"user_id"`
	FirstName      string     `json:"first_name" validate:"required,max=100"`
	LastName       string     `json:"last_name" validate:"required,max=100"`
	NationalID     string     `json:"national_id" validate:"required,max=20"`
	Phone          string     `json:"phone" validate:"required,max=20"`
	Address        *string    `json:"address" validate:"omitempty,max=200"`
	CoveragePlanID *uuid.UUID `json:"coverage_plan_id"`
	MemberNumber   *string    `json:"member_number" validate:"omitempty,max=50"`
	Category       string     `json:"category" validate:"omitempty,oneof=A B C"`
}

type profileRequest struct {
	Phone          string     `json:"phone" validate:"required,max=20"`
	Address        *string    `json:"address" validate:"omitempty,max=200"`
	CoveragePlanID *uuid.UUID `json:"coverage_plan_id"`
	MemberNumber   *string    `json:"member_number" validate:"omitempty,max=50"`
}

func bindAndValidate(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperr.HTTPError(apperr.Validation("invalid request body"))
	}
	if err := c.Validate(v); err != nil {
		return apperr.HTTPError(err)
	}
	return nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.HTTPError(apperr.Validation("invalid id"))
	}
	return id, nil
}

// -- Coverage Plan Handlers --

func (h *Handler) CreateCoveragePlan(c echo.Context) error {
	var req coveragePlanRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p := &CoveragePlan{Name: req.Name, Active: req.Active == nil || *req.Active}
	if err := h.svc.CreateCoveragePlan(c.Request().Context(), p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListCoveragePlans(c echo.Context) error {
	activeOnly := c.QueryParam("all") != "true" || !auth.IsStaff(auth.RolesFromContext(c.Request().Context()))
	items, err := h.svc.ListCoveragePlans(c.Request().Context(), activeOnly)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- Doctor Handlers --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var req doctorRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	d := req.toDoctor()
	if err := h.svc.CreateDoctor(c.Request().Context(), d); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req doctorRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	d := req.toDoctor()
	d.ID = id
	if err := h.svc.UpdateDoctor(c.Request().Context(), d); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

// ListDoctors shows patients the doctors that accept their coverage; staff
// may filter freely.
func (h *Handler) ListDoctors(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)

	if !auth.IsStaff(auth.RolesFromContext(ctx)) {
		pid, err := uuid.Parse(auth.PatientIDFromContext(ctx))
		if err != nil {
			return apperr.HTTPError(apperr.Unauthorized("no patient record is linked to this account"))
		}
		items, total, err := h.svc.DoctorsForPatient(ctx, pid, pg.Limit, pg.Offset)
		if err != nil {
			return apperr.HTTPError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	var f DoctorFilter
	if v := c.QueryParam("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return apperr.HTTPError(apperr.Validation("invalid active"))
		}
		f.Active = &active
	}
	if v := c.QueryParam("coverage_plan_id"); v != "" {
		planID, err := uuid.Parse(v)
		if err != nil {
			return apperr.HTTPError(apperr.Validation("invalid coverage_plan_id"))
		}
		f.CoveragePlanID = &planID
	}
	f.Specialty = c.QueryParam("specialty")

	items, total, err := h.svc.ListDoctors(ctx, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var req patientRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p := &Patient{
		UserID:         req.UserID,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		NationalID:     req.NationalID,
		Phone:          req.Phone,
		Address:        req.Address,
		CoveragePlanID: req.CoveragePlanID,
		MemberNumber:   req.MemberNumber,
		Category:       req.Category,
	}
	if err := h.svc.CreatePatient(c.Request().Context(), p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// -- Profile Handlers --

func (h *Handler) GetProfile(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.svc.GetPatientByUserID(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var req profileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.UpdateProfile(ctx, auth.UserIDFromContext(ctx), ProfileUpdate{
		Phone:          req.Phone,
		Address:        req.Address,
		CoveragePlanID: req.CoveragePlanID,
		MemberNumber:   req.MemberNumber,
	})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}
