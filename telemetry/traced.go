package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskflow/domain"
)

const instrumentationName = "taskflow/telemetry"

// Traced wraps a façade and records one span per call.
type Traced[E any, F any] struct {
	base   domain.Service[E, F]
	kind   domain.Kind[E, F]
	tracer trace.Tracer
}

// NewTraced uses the global tracer provider when tp is nil.
func NewTraced[E any, F any](base domain.Service[E, F], kind domain.Kind[E, F], tp trace.TracerProvider) *Traced[E, F] {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Traced[E, F]{base: base, kind: kind, tracer: tp.Tracer(instrumentationName)}
}

func (t *Traced[E, F]) GetAll(ctx context.Context) ([]E, error) {
	ctx, span := t.start(ctx, "GetAll", "")
	items, err := t.base.GetAll(ctx)
	if err == nil {
		span.SetAttributes(attribute.Int("taskflow.result_count", len(items)))
	}
	end(span, err)
	return items, err
}

func (t *Traced[E, F]) GetByID(ctx context.Context, id string) (E, error) {
	ctx, span := t.start(ctx, "GetByID", id)
	e, err := t.base.GetByID(ctx, id)
	end(span, err)
	return e, err
}

func (t *Traced[E, F]) Create(ctx context.Context, fields F) (E, error) {
	ctx, span := t.start(ctx, "Create", "")
	e, err := t.base.Create(ctx, fields)
	if err == nil {
		span.SetAttributes(attribute.String("taskflow.entity_id", t.kind.ID(e)))
	}
	end(span, err)
	return e, err
}

func (t *Traced[E, F]) Update(ctx context.Context, id string, fields F) (E, error) {
	ctx, span := t.start(ctx, "Update", id)
	e, err := t.base.Update(ctx, id, fields)
	end(span, err)
	return e, err
}

func (t *Traced[E, F]) Delete(ctx context.Context, id string) error {
	ctx, span := t.start(ctx, "Delete", id)
	err := t.base.Delete(ctx, id)
	end(span, err)
	return err
}

func (t *Traced[E, F]) start(ctx context.Context, op, id string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.entity", t.kind.Name)}
	if id != "" {
		attrs = append(attrs, attribute.String("taskflow.entity_id", id))
	}
	return t.tracer.Start(ctx, t.kind.Plural+"."+op, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.SetAttributes(attribute.String("taskflow.error_kind", errorKind(err)))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, domain.ErrOperationFailed):
		return "operation_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "unknown"
}
