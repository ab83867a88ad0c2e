package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const syncScopeName = "github.com/jacobcy/VibeCopilot-sub000/sync"

// SyncInstruments records push/pull runs and per-item outcomes in vibe.sync.* metrics.
type SyncInstruments struct {
	tracer trace.Tracer
	runs   metric.Int64Counter
	items  metric.Int64Counter
	errs   metric.Int64Counter
	dur    metric.Float64Histogram
}

// NewSyncInstruments builds instruments from the global meter provider.
// With telemetry disabled they are no-ops.
func NewSyncInstruments() *SyncInstruments {
	m := Meter(syncScopeName)
	runs, _ := m.Int64Counter("vibe.sync.runs",
		metric.WithDescription("Push and pull runs started"),
	)
	items, _ := m.Int64Counter("vibe.sync.items",
		metric.WithDescription("Entities processed by outcome (created, updated, skipped)"),
	)
	errs, _ := m.Int64Counter("vibe.sync.errors",
		metric.WithDescription("Per-item sync failures by error kind"),
	)
	dur, _ := m.Float64Histogram("vibe.sync.run.duration",
		metric.WithDescription("Sync run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &SyncInstruments{
		tracer: Tracer(syncScopeName),
		runs:   runs,
		items:  items,
		errs:   errs,
		dur:    dur,
	}
}

// StartRun opens the span for one push or pull run.
func (s *SyncInstruments) StartRun(ctx context.Context, direction, roadmapID string) (context.Context, trace.Span, time.Time) {
	attrs := []attribute.KeyValue{
		attribute.String("vibe.sync.direction", direction),
		attribute.String("vibe.roadmap.id", roadmapID),
	}
	ctx, span := s.tracer.Start(ctx, "sync."+direction, trace.WithAttributes(attrs...))
	s.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("vibe.sync.direction", direction)))
	return ctx, span, time.Now()
}

// EndRun records duration and closes the run span.
func (s *SyncInstruments) EndRun(ctx context.Context, span trace.Span, start time.Time, direction string, err error) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attribute.String("vibe.sync.direction", direction)))
	EndSpan(span, err)
}

// Item counts one processed entity.
func (s *SyncInstruments) Item(ctx context.Context, direction, entityType, outcome string) {
	s.items.Add(ctx, 1, metric.WithAttributes(
		attribute.String("vibe.sync.direction", direction),
		attribute.String("vibe.entity.type", entityType),
		attribute.String("vibe.sync.outcome", outcome),
	))
}

// Error counts one per-item failure.
func (s *SyncInstruments) Error(ctx context.Context, direction, entityType, kind string) {
	s.errs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("vibe.sync.direction", direction),
		attribute.String("vibe.entity.type", entityType),
		attribute.String("vibe.error.kind", kind),
	))
}

// EndSpan records err on span (if any) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
