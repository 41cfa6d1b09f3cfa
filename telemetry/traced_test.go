package telemetry

import (
	"context"
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"taskflow/domain"
)

type stubCategories struct {
	items []domain.Category
	err   error
}

func (s *stubCategories) GetAll(context.Context) ([]domain.Category, error) { return s.items, s.err }

func (s *stubCategories) GetByID(_ context.Context, id string) (domain.Category, error) {
	if s.err != nil {
		return domain.Category{}, s.err
	}
	for _, c := range s.items {
		if c.ID == id {
			return c, nil
		}
	}
	return domain.Category{}, domain.NotFound("category", "get", id)
}

func (s *stubCategories) Create(_ context.Context, f domain.CategoryFields) (domain.Category, error) {
	return domain.Category{ID: "new", Name: *f.Name}, s.err
}

func (s *stubCategories) Update(context.Context, string, domain.CategoryFields) (domain.Category, error) {
	return domain.Category{}, s.err
}

func (s *stubCategories) Delete(context.Context, string) error { return s.err }

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
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

func TestTracedRecordsSuccessfulCalls(t *testing.T) {
	tp, exporter := setupTestTracer(t)
	stub := &stubCategories{items: []domain.Category{{ID: "work", Name: "Work"}}}
	svc := NewTraced[domain.Category, domain.CategoryFields](stub, domain.CategoryKind, tp)
	ctx := context.Background()

	if _, err := svc.GetAll(ctx); err != nil {
		t.Fatalf("get all: %v", err)
	}
	name := "Home"
	if _, err := svc.Create(ctx, domain.CategoryFields{Name: &name}); err != nil {
		t.Fatalf("create: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name != "categories.GetAll" || spans[1].Name != "categories.Create" {
		t.Fatalf("unexpected span names %q, %q", spans[0].Name, spans[1].Name)
	}
	list := attributesToMap(spans[0].Attributes)
	if list["taskflow.entity"] != "category" || list["taskflow.result_count"] != int64(1) {
		t.Fatalf("unexpected list attributes: %v", list)
	}
	created := attributesToMap(spans[1].Attributes)
	if created["taskflow.entity_id"] != "new" {
		t.Fatalf("expected created id on span, got %v", created)
	}
	for _, s := range spans {
		if s.Status.Code != codes.Ok {
			t.Fatalf("expected Ok status on %s, got %v", s.Name, s.Status.Code)
		}
	}
}

func TestTracedRecordsErrors(t *testing.T) {
	tp, exporter := setupTestTracer(t)
	stub := &stubCategories{}
	svc := NewTraced[domain.Category, domain.CategoryFields](stub, domain.CategoryKind, tp)

	_, err := svc.GetByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound to pass through, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error || span.Status.Description == "" {
		t.Fatalf("expected error status, got %+v", span.Status)
	}
	attrs := attributesToMap(span.Attributes)
	if attrs["taskflow.entity_id"] != "missing" || attrs["taskflow.error_kind"] != "not_found" {
		t.Fatalf("unexpected attributes: %v", attrs)
	}
	var recorded bool
	for _, ev := range span.Events {
		if ev.Name == "exception" {
			recorded = true
		}
	}
	if !recorded {
		t.Fatalf("expected exception event, got %#v", span.Events)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "not found", err: domain.NotFound("task", "get", "1"), want: "not_found"},
		{name: "fetch", err: domain.FetchFailed("task", errors.New("down")), want: "fetch_failed"},
		{name: "operation", err: domain.OperationFailed("task", "update", "1", "", nil), want: "operation_failed"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "other", err: errors.New("x"), want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorKind(tt.err); got != tt.want {
				t.Fatalf("errorKind(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestLogExporterWritesSpans(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(NewLogExporter(logger))))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	svc := NewTraced[domain.Category, domain.CategoryFields](&stubCategories{err: errors.New("down")}, domain.CategoryKind, tp)
	_ = svc.Delete(context.Background(), "c1")

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Level != log.WarnLevel || entry.Data["span"] != "categories.Delete" || entry.Data["taskflow.entity_id"] != "c1" {
		t.Fatalf("unexpected entry: %v %v", entry.Level, entry.Data)
	}
}
