package scheduling

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

const defaultUpcoming = 5

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the scheduling endpoints. writeMW wraps the booking
// and cancellation routes (rate limiting).
func (h *Handler) RegisterRoutes(api *echo.Group, writeMW ...echo.MiddlewareFunc) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RolePatient))
	readGroup.GET("/available-slots", h.AvailableSlots)
	readGroup.GET("/doctors/:id/availability", h.ListWindows)
	readGroup.GET("/appointments", h.ListAppointments)
	readGroup.GET("/appointments/upcoming", h.Upcoming)
	readGroup.GET("/appointments/:id", h.GetAppointment)
	readGroup.POST("/appointments", h.Book, writeMW...)
	readGroup.POST("/appointments/:id/cancel", h.Cancel, writeMW...)

	staff := api.Group("", auth.RequireRole(auth.RoleStaff))
	staff.GET("/appointments/summary", h.DaySummary)
	staff.PATCH("/appointments/:id/status", h.UpdateStatus)
	staff.POST("/doctors/:id/availability", h.AddWindow)
	staff.DELETE("/availability/:id", h.RemoveWindow)
}

// RequesterFromContext builds the scheduling requester from the
// authenticated identity on the request.
func RequesterFromContext(c echo.Context) Requester {
	ctx := c.Request().Context()
	r := Requester{
		UserID: auth.UserIDFromContext(ctx),
		Staff:  auth.IsStaff(auth.RolesFromContext(ctx)),
	}
	if pid, err := uuid.Parse(auth.PatientIDFromContext(ctx)); err == nil {
		r.PatientID = &pid
	}
	return r
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

func parseUUID(raw, name string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, apperr.HTTPError(apperr.Validation("%s is required", name))
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.HTTPError(apperr.Validation("invalid %s", name))
	}
	return id, nil
}

// -- Availability Handlers --

func (h *Handler) AvailableSlots(c echo.Context) error {
	doctorID, err := parseUUID(c.QueryParam("doctor_id"), "doctor_id")
	if err != nil {
		return err
	}
	out, err := h.svc.AvailableSlots(c.Request().Context(), RequesterFromContext(c), doctorID, c.QueryParam("date"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ListWindows(c echo.Context) error {
	doctorID, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListWindows(c.Request().Context(), doctorID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AddWindow(c echo.Context) error {
	doctorID, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	var in WindowInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	in.DoctorID = doctorID
	w, err := h.svc.AddWindow(c.Request().Context(), in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, w)
}

func (h *Handler) RemoveWindow(c echo.Context) error {
	id, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	if err := h.svc.RemoveWindow(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Appointment Handlers --

func (h *Handler) Book(c echo.Context) error {
	var req BookingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Book(c.Request().Context(), RequesterFromContext(c), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), RequesterFromContext(c), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type statusRequest struct {
	Status Status `json:"status" validate:"required,oneof=pending confirmed cancelled completed"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), RequesterFromContext(c), id, req.Status)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), RequesterFromContext(c), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f AppointmentFilter
	if v := c.QueryParam("doctor_id"); v != "" {
		id, err := parseUUID(v, "doctor_id")
		if err != nil {
			return err
		}
		f.DoctorID = &id
	}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := parseUUID(v, "patient_id")
		if err != nil {
			return err
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("date"); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			return apperr.HTTPError(err)
		}
		f.Date = &d
	}
	if v := c.QueryParam("status"); v != "" {
		st := Status(v)
		if !st.Valid() {
			return apperr.HTTPError(apperr.Validation("invalid status %q", v))
		}
		f.Status = &st
	}
	f.ActiveOnly = c.QueryParam("active") == "true"
	switch c.QueryParam("order") {
	case "", "desc":
		f.NewestFirst = true
	case "asc":
	default:
		return apperr.HTTPError(apperr.Validation("order must be asc or desc"))
	}

	items, total, err := h.svc.ListAppointments(c.Request().Context(), RequesterFromContext(c), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Upcoming(c echo.Context) error {
	n := defaultUpcoming
	if v := c.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return apperr.HTTPError(apperr.Validation("invalid limit"))
		}
		n = min(parsed, pagination.MaxLimit)
	}
	items, err := h.svc.Upcoming(c.Request().Context(), RequesterFromContext(c), n)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DaySummary(c echo.Context) error {
	out, err := h.svc.DaySummary(c.Request().Context(), RequesterFromContext(c), c.QueryParam("date"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}
