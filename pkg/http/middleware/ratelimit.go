package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"VolGuard/pkg/ratelimit"
)

// RateLimit rejects requests once the caller's bucket is empty. Callers are
// keyed by real IP and route.
func RateLimit(l *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP() + ":" + c.Path()) {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
