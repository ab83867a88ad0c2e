package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacobcy/VibeCopilot-sub000/internal/storage"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

const storageScopeName = "github.com/jacobcy/VibeCopilot-sub000/storage"

// InstrumentedStore wraps storage.Store with OTel tracing and metrics on the
// mapping methods. Roadmap and state methods pass through unchanged.
// Use WrapStore to create one.
type InstrumentedStore struct {
	storage.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is.
func WrapStore(s storage.Store) storage.Store {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("vibe.storage.operations",
		metric.WithDescription("Total mapping store operations executed"),
	)
	dur, _ := m.Float64Histogram("vibe.storage.operation.duration",
		metric.WithDescription("Mapping store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("vibe.storage.errors",
		metric.WithDescription("Total mapping store operation errors"),
	)
	return &InstrumentedStore{
		Store:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	EndSpan(span, err)
}

func mappingAttrs(localType types.EntityType, backend types.BackendType) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("vibe.entity.type", string(localType)),
		attribute.String("vibe.backend", string(backend)),
	}
}

func (s *InstrumentedStore) CreateOrUpdateMapping(ctx context.Context, m *types.EntityMapping) (*types.EntityMapping, error) {
	attrs := mappingAttrs(m.LocalEntityType, m.BackendType)
	ctx, span, t := s.op(ctx, "CreateOrUpdateMapping", attrs...)
	v, err := s.Store.CreateOrUpdateMapping(ctx, m)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) GetByLocalID(ctx context.Context, localID string, localType types.EntityType, backend types.BackendType) (*types.EntityMapping, error) {
	attrs := mappingAttrs(localType, backend)
	ctx, span, t := s.op(ctx, "GetByLocalID", attrs...)
	v, err := s.Store.GetByLocalID(ctx, localID, localType, backend)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) GetByRemoteID(ctx context.Context, remoteID string, backend types.BackendType) (*types.EntityMapping, error) {
	attrs := []attribute.KeyValue{attribute.String("vibe.backend", string(backend))}
	ctx, span, t := s.op(ctx, "GetByRemoteID", attrs...)
	v, err := s.Store.GetByRemoteID(ctx, remoteID, backend)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) GetByRemoteNumber(ctx context.Context, number string, localType types.EntityType, backend types.BackendType, remoteProjectID string) (*types.EntityMapping, error) {
	attrs := mappingAttrs(localType, backend)
	ctx, span, t := s.op(ctx, "GetByRemoteNumber", attrs...)
	v, err := s.Store.GetByRemoteNumber(ctx, number, localType, backend, remoteProjectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) GetOrCreateMapping(ctx context.Context, m *types.EntityMapping) (*types.EntityMapping, bool, error) {
	attrs := mappingAttrs(m.LocalEntityType, m.BackendType)
	ctx, span, t := s.op(ctx, "GetOrCreateMapping", attrs...)
	v, created, err := s.Store.GetOrCreateMapping(ctx, m)
	span.SetAttributes(attribute.Bool("vibe.mapping.created", created))
	s.done(ctx, span, t, err, attrs...)
	return v, created, err
}

func (s *InstrumentedStore) DeleteMapping(ctx context.Context, id string) error {
	ctx, span, t := s.op(ctx, "DeleteMapping")
	err := s.Store.DeleteMapping(ctx, id)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) ListMappings(ctx context.Context, localProjectID string, backend types.BackendType) ([]*types.EntityMapping, error) {
	attrs := []attribute.KeyValue{attribute.String("vibe.backend", string(backend))}
	ctx, span, t := s.op(ctx, "ListMappings", attrs...)
	v, err := s.Store.ListMappings(ctx, localProjectID, backend)
	span.SetAttributes(attribute.Int("vibe.mapping.count", len(v)))
	s.done(ctx, span, t, err, attrs...)
	return v, err
}
