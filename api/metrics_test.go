package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRequestMetricsLogsAndTraces(t *testing.T) {
	logger, hook := test.NewNullLogger()
	_, exporter := setupTestTracer(t)

	e := echo.New()
	e.GET("/api/things/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, RequestMetrics(logger))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/things/42", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Message != requestLogMessage {
		t.Fatalf("expected request log entry, got %#v", entry)
	}
	if entry.Level != log.InfoLevel {
		t.Fatalf("unexpected level %v", entry.Level)
	}
	if entry.Data["route"] != "/api/things/:id" || entry.Data["status"] != http.StatusOK || entry.Data["method"] != http.MethodGet {
		t.Fatalf("unexpected fields: %#v", entry.Data)
	}
	if _, ok := entry.Data["total_ms"].(float64); !ok {
		t.Fatalf("expected total_ms, got %#v", entry.Data["total_ms"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "GET /api/things/:id" {
		t.Fatalf("unexpected span name: %s", span.Name)
	}
	attrs := attributesToMap(span.Attributes)
	if attrs["http.route"] != "/api/things/:id" {
		t.Fatalf("span route attribute mismatch: %#v", attrs["http.route"])
	}
	if code, ok := attrs["http.status_code"].(int64); !ok || code != int64(http.StatusOK) {
		t.Fatalf("unexpected http.status_code on span: %#v", attrs["http.status_code"])
	}
	if span.Status.Code != codes.Ok {
		t.Fatalf("expected span status Ok, got %v", span.Status.Code)
	}
}

func TestRequestMetricsWithErrorSetsSpanStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	_, exporter := setupTestTracer(t)

	boom := errors.New("storage failure")
	e := echo.New()
	e.GET("/api/fail", func(echo.Context) error { return boom }, RequestMetrics(logger))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fail", nil))

	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.ErrorLevel || entry.Data["status"] != http.StatusInternalServerError {
		t.Fatalf("expected error log entry with status 500, got %#v", entry)
	}
	if entry.Data["error"] != boom.Error() {
		t.Fatalf("unexpected error field: %#v", entry.Data["error"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error || span.Status.Description != boom.Error() {
		t.Fatalf("unexpected span status %+v", span.Status)
	}
	var sawException bool
	for _, ev := range span.Events {
		if ev.Name == "exception" {
			sawException = true
		}
	}
	if !sawException {
		t.Fatalf("expected exception event, got %#v", span.Events)
	}
}

func TestStatusOfHTTPError(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if got := statusOf(c, echo.NewHTTPError(http.StatusBadRequest, "bad")); got != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", got)
	}
	if got := statusOf(c, nil); got != http.StatusOK {
		t.Fatalf("expected 200, got %d", got)
	}
}

func TestLevelForStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   log.Level
	}{
		{name: "ok", status: http.StatusOK, want: log.InfoLevel},
		{name: "warn", status: http.StatusBadRequest, want: log.WarnLevel},
		{name: "not found", status: http.StatusNotFound, want: log.WarnLevel},
		{name: "error", status: http.StatusBadGateway, want: log.ErrorLevel},
		{name: "errorFromErr", status: 0, err: errors.New("error"), want: log.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := levelForStatus(tt.status, tt.err); got != tt.want {
				t.Fatalf("levelForStatus(%d, %v) = %v, want %v", tt.status, tt.err, got, tt.want)
			}
		})
	}
}

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	})
	return tp, exporter
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}
