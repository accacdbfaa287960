package middleware

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"doclocker/internal/logging"
)

// LoggerLocalKey is the key under which Logger stores the request-scoped logger.
const LoggerLocalKey = "logger"

// Logger logs each HTTP request as one structured entry with request_id,
// method, path, status and latency (milliseconds) fields, plus trace_id when
// a span is active. 5xx responses are
// logged at error level, 4xx at warn.
func Logger(log logrus.FieldLogger) fiber.Handler {
	log = log.WithField("component", "http")

	return func(c *fiber.Ctx) error {
		start := time.Now()
		reqLog := log.WithField("request_id", GetRequestID(c))
		if sc := trace.SpanContextFromContext(c.UserContext()); sc.HasTraceID() {
			reqLog = reqLog.WithField("trace_id", sc.TraceID().String())
		}
		c.Locals(LoggerLocalKey, reqLog)

		err := c.Next()

		status := statusOf(c, err)
		fields := logrus.Fields{
			"request_id": GetRequestID(c),
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"latency":    float64(time.Since(start).Microseconds()) / 1000,
		}
		if actor, ok := ActorFrom(c); ok {
			fields["actor_id"] = actor.ID
		}

		entry := reqLog.WithFields(fields)
		switch {
		case status >= fiber.StatusInternalServerError:
			entry.Error("request completed")
		case status >= fiber.StatusBadRequest:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}

		return err
	}
}

// LoggerFrom returns the request-scoped logger stored by Logger, or a
// discarding logger when Logger is not installed.
func LoggerFrom(c *fiber.Ctx) logrus.FieldLogger {
	if l, ok := c.Locals(LoggerLocalKey).(logrus.FieldLogger); ok {
		return l
	}
	return logging.Discard()
}

// LoggerWithWriter is Logger writing JSON lines to w with timestamps in loc.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	return Logger(logging.NewWithWriter(w, "info", loc))
}

// statusOf returns the status the client will see, accounting for an error
// that the app's error handler has not rendered yet.
func statusOf(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	if fe, ok := err.(*fiber.Error); ok {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
