package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// RequestTimeout puts a deadline on the request context. The handler runs on
// the request goroutine; database calls observe the deadline and an error
// caused by it is answered with a 504. A non-positive timeout disables the
// middleware.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	if timeout <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Timeout: timeout,
		ErrorHandler: func(err error, c echo.Context) error {
			if errors.Is(err, context.DeadlineExceeded) {
				return echo.NewHTTPError(http.StatusGatewayTimeout,
					apperr.Body{Error: "request processing exceeded the allowed time limit", Code: "timeout"}).
					SetInternal(err)
			}
			return err
		},
	})
}
