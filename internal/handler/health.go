package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Health reports that the process is up.  It is used by load balancers
// and does not touch dependencies.
func Health(c echo.Context) error {
	return ok(c, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether ping succeeds within two seconds.
func Ready(ping func(ctx context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if ping != nil {
			if err := ping(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, envelope{Error: "network_unavailable", Message: "store unreachable"})
			}
		}
		return ok(c, http.StatusOK, map[string]string{"status": "ready"})
	}
}
