package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Body is the JSON failure envelope returned to clients.
type Body struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// StatusCode maps an error kind to an HTTP status.
func StatusCode(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindAuthorization:
		return http.StatusForbidden
	case KindBusinessRule:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err into an *echo.HTTPError whose message is a Body.
// Unclassified errors are reported as a generic 500 and keep the cause as
// the internal error for logging.
func HTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var ae *Error
	if errors.As(err, &ae) {
		return echo.NewHTTPError(StatusCode(ae.Kind), Body{Error: ae.Message, Code: ae.Code})
	}
	return echo.NewHTTPError(http.StatusInternalServerError, Body{Error: "internal server error"}).SetInternal(err)
}

// ErrorHandler renders every error as a Body, including the plain string
// errors raised by echo itself and by auth middleware.
func ErrorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		he := HTTPError(err)
		body, ok := he.Message.(Body)
		if !ok {
			msg, _ := he.Message.(string)
			if msg == "" {
				msg = http.StatusText(he.Code)
			}
			body = Body{Error: msg}
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(he.Code, body)
		}
		if err != nil {
			e.Logger.Error(err)
		}
	}
}
