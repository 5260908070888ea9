package middleware

import (
	"time"

	"github.com/jmehdipour/sms-inbox/internal/logger"
	"github.com/jmehdipour/sms-inbox/internal/metrics"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap/zapcore"
)

const ctxLogFields = "log_fields"

// SetLogField attaches handler context to the request's log event.
func SetLogField(c echo.Context, key string, value any) {
	fields, _ := c.Get(ctxLogFields).(map[string]any)
	if fields == nil {
		fields = map[string]any{}
		c.Set(ctxLogFields, fields)
	}
	fields[key] = value
}

// RequestLogMiddleware emits exactly one event and one request count per request,
// after the handler (and echo's error handler) produced the final status.
func RequestLogMiddleware(sink logger.Sink, counters metrics.Counters) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			path := c.Path()
			if path == "" {
				path = req.URL.Path
			}

			fields, _ := c.Get(ctxLogFields).(map[string]any)
			sink.Emit(logger.Event{
				Level:     levelFor(res.Status),
				RequestID: res.Header().Get(echo.HeaderXRequestID),
				Method:    req.Method,
				Path:      path,
				Status:    res.Status,
				LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
				Fields:    fields,
			})
			counters.ObserveRequest(req.Method, path, res.Status)
			return nil
		}
	}
}

func levelFor(status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
