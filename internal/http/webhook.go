package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/jmehdipour/sms-inbox/internal/http/middleware"
	"github.com/jmehdipour/sms-inbox/internal/metrics"
	"github.com/jmehdipour/sms-inbox/internal/service/webhook"
	"github.com/jmehdipour/sms-inbox/internal/validation"
	"github.com/labstack/echo/v4"
)

// webhookHandler reads the raw body (the signature covers the exact bytes) and
// answers 200 for both created and duplicate deliveries.
func webhookHandler(svc *webhook.Service, signatureHeader string) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				return he
			}
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		out, err := svc.Ingest(c.Request().Context(), body, c.Request().Header.Get(signatureHeader))
		middleware.SetLogField(c, "result", out.Result)
		if out.MessageID != "" {
			middleware.SetLogField(c, "message_id", out.MessageID)
		}

		var verr *validation.Error
		switch {
		case errors.Is(err, webhook.ErrInvalidSignature):
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})

		case errors.As(err, &verr):
			middleware.SetLogField(c, "error", verr.Error())
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{
				"error":  "validation error",
				"detail": verr.Error(),
			})

		case err != nil:
			middleware.SetLogField(c, "error", err.Error())
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		middleware.SetLogField(c, "dup", out.Dup)
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

// webhookRejected records a webhook outcome for the rate limiter.
func webhookRejected(counters metrics.Counters, result string) func(echo.Context) {
	return func(c echo.Context) {
		middleware.SetLogField(c, "result", result)
		counters.ObserveWebhook(result)
	}
}

// countTooLarge wraps echo's BodyLimit so oversize bodies, rejected either on
// Content-Length or while reading, are counted as a webhook outcome.
func countTooLarge(counters metrics.Counters) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			var he *echo.HTTPError
			if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
				webhookRejected(counters, webhook.ResultTooLarge)(c)
			}
			return err
		}
	}
}
