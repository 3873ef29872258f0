package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ocpp-csms/csms/internal/observability/telemetry"
)

// Metrics records a Prometheus counter and histogram for every request,
// partitioned by method, route pattern, and status code.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		route := c.Route().Path
		if route == "" {
			route = c.Path()
		}
		telemetry.RecordHTTPRequest(c.Method(), route, status, time.Since(start).Seconds())

		return err
	}
}
