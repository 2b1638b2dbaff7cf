package middleware

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/prometheus"
)

// MetricsMiddleware adds prometheus metrics to track HTTP requests
func MetricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		err := next(c)

		// Errors returned up the chain are rendered later by the error
		// handler, so the response status may still be the default 200
		status := c.Response().Status
		if err != nil && !c.Response().Committed {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			} else {
				status = apperr.StatusOf(err)
			}
		}

		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		prometheus.ObserveHTTPRequest(c.Request().Method, path, status, time.Since(start))

		return err
	}
}
