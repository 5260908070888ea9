package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmehdipour/sms-inbox/internal/http/middleware"
	echo "github.com/labstack/echo/v4"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func liveHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "live"})
}

// readyHandler reports unready when the webhook secret is unset or the store
// does not answer within timeout.
func readyHandler(secretConfigured bool, store pinger, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !secretConfigured {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "WEBHOOK_SECRET not set"})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			middleware.SetLogField(c, "error", err.Error())
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "database not ready"})
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
}
