package auth

import (
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
)

const (
	RoleAdmin   = "admin"
	RoleStaff   = "staff"
	RolePatient = "patient"
)

// IsStaff reports whether roles grant front-desk privileges. Admin implies
// staff.
func IsStaff(roles []string) bool {
	return slices.Contains(roles, RoleStaff) || slices.Contains(roles, RoleAdmin)
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == RoleAdmin {
						return next(c)
					}
				}
			}
			return apperr.HTTPError(apperr.Unauthorized("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
