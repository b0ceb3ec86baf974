package telemetry

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// LogExporter writes finished spans as debug log entries.
type LogExporter struct {
	log     *zap.Logger
	stopped atomic.Bool
}

var _ sdktrace.SpanExporter = (*LogExporter)(nil)

func NewLogExporter(l *zap.Logger) *LogExporter {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogExporter{log: l}
}

func (e *LogExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.stopped.Load() {
		return nil
	}
	for _, s := range spans {
		fields := []zap.Field{
			zap.String("span", s.Name()),
			zap.String("trace_id", s.SpanContext().TraceID().String()),
			zap.String("span_id", s.SpanContext().SpanID().String()),
			zap.Duration("took", s.EndTime().Sub(s.StartTime())),
		}
		if p := s.Parent(); p.IsValid() {
			fields = append(fields, zap.String("parent_id", p.SpanID().String()))
		}
		for _, kv := range s.Attributes() {
			fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
		}
		if st := s.Status(); st.Code == codes.Error {
			fields = append(fields, zap.String("status", st.Description))
		}
		e.log.Debug("span finished", fields...)
	}
	return nil
}

func (e *LogExporter) Shutdown(context.Context) error {
	e.stopped.Store(true)
	return nil
}

// errorsModeFloor caps the share of healthy traces kept in errors mode.
const errorsModeFloor = 0.01

// ErrorFilter forwards spans that ended with an error status, plus a trace-ID
// sample of the rest at min(ratio, 1%).
type ErrorFilter struct {
	next sdktrace.SpanExporter
	keep sdktrace.Sampler
}

var _ sdktrace.SpanExporter = (*ErrorFilter)(nil)

func NewErrorFilter(next sdktrace.SpanExporter, ratio float64) *ErrorFilter {
	return &ErrorFilter{
		next: next,
		keep: sdktrace.TraceIDRatioBased(min(clampRatio(ratio), errorsModeFloor)),
	}
}

func (f *ErrorFilter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	var kept []sdktrace.ReadOnlySpan
	for _, s := range spans {
		if s.Status().Code == codes.Error || f.sampled(ctx, s.SpanContext().TraceID()) {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return f.next.ExportSpans(ctx, kept)
}

func (f *ErrorFilter) sampled(ctx context.Context, id trace.TraceID) bool {
	res := f.keep.ShouldSample(sdktrace.SamplingParameters{ParentContext: ctx, TraceID: id})
	return res.Decision == sdktrace.RecordAndSample
}

func (f *ErrorFilter) Shutdown(ctx context.Context) error {
	return f.next.Shutdown(ctx)
}
