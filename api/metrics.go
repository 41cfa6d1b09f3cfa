package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	requestLogMessage = "http.request"
	tracerName        = "taskflow/api"
)

type requestMetrics struct {
	logger *log.Logger
	start  time.Time
	route  string
	method string
	span   trace.Span
}

// RequestMetrics opens a span for every request and logs its route, status
// and duration when it completes. Façade spans started by handlers become
// children of the request span.
func RequestMetrics(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			m := &requestMetrics{
				logger: logger,
				start:  time.Now(),
				route:  c.Path(),
				method: req.Method,
			}
			ctx, span := otel.Tracer(tracerName).Start(req.Context(), req.Method+" "+m.route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.route", m.route),
					attribute.String("http.method", m.method),
				))
			m.span = span
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			m.Log(statusOf(c, err), UserID(c), err)
			return err
		}
	}
}

// statusOf reports the status the client will see. Errors returned to echo
// are written after the middleware chain unwinds.
func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func (m *requestMetrics) Log(status int, userID string, err error) {
	if m == nil {
		return
	}
	total := durationToMillis(time.Since(m.start))

	if m.span != nil {
		m.span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Float64("taskflow.http.total_ms", total),
		)
		switch {
		case err != nil:
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		case status >= http.StatusInternalServerError:
			m.span.SetStatus(codes.Error, http.StatusText(status))
		default:
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":    m.route,
		"method":   m.method,
		"status":   status,
		"total_ms": total,
	}
	if userID != "" {
		fields["user"] = userID
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Log(levelForStatus(status, err), requestLogMessage)
}

func levelForStatus(status int, err error) log.Level {
	switch {
	case err != nil && status == 0, status >= http.StatusInternalServerError:
		return log.ErrorLevel
	case status >= http.StatusBadRequest:
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
