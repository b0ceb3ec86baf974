package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestClampRatio(t *testing.T) {
	tests := []struct {
		name  string
		input float64
		want  float64
	}{
		{"below zero", -0.25, 0},
		{"within bounds", 0.42, 0.42},
		{"above one", 1.25, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := clampRatio(tc.input); got != tc.want {
				t.Fatalf("clampRatio(%v)=%v want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeTraceMode(t *testing.T) {
	tests := map[string]string{
		"":          TraceModeSampled,
		" OFF ":     TraceModeOff,
		"errors":    TraceModeErrors,
		"Detailed":  TraceModeDetailed,
		"something": TraceModeSampled,
	}
	for in, want := range tests {
		if got := NormalizeTraceMode(in); got != want {
			t.Errorf("NormalizeTraceMode(%q)=%q want %q", in, got, want)
		}
	}
}

func TestSamplerForMode(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		ratio    float64
		wantDrop bool
	}{
		{"off drops", "off", 0.5, true},
		{"sampled zero ratio drops", "sampled", 0, true},
		{"sampled full ratio records", "sampled", 1, false},
		{"detailed records", "detailed", 0, false},
		{"errors records everything for filtering", "errors", 0, false},
		{"unknown defaults to sampled", "unknown", 1, false},
	}
	params := sdktrace.SamplingParameters{}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			drop := samplerForMode(tc.mode, tc.ratio).ShouldSample(params).Decision == sdktrace.Drop
			if drop != tc.wantDrop {
				t.Fatalf("drop=%t want %t", drop, tc.wantDrop)
			}
		})
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"disabled", Config{TraceMode: "detailed"}},
		{"enabled sampled", Config{Enabled: true, TraceMode: "sampled", TraceSampleRatio: 0.25, Logger: zap.NewNop()}},
		{"enabled without logger", Config{Enabled: true, ServiceName: "gc-test", TraceMode: "detailed"}},
		{"enabled errors mode", Config{Enabled: true, TraceMode: "errors", TraceSampleRatio: 1, Logger: zap.NewNop()}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt, err := Setup(tc.cfg)
			if err != nil {
				t.Fatalf("Setup: %v", err)
			}
			if rt.TracerProvider == nil {
				t.Fatal("nil provider")
			}
			if err := rt.Shutdown(context.Background()); err != nil {
				t.Fatalf("Shutdown: %v", err)
			}
		})
	}
}

func TestLogExporter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	exp := NewLogExporter(zap.New(core))

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()), sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, parent := tp.Tracer("test").Start(context.Background(), "poller.pass")
	_, child := tp.Tracer("test").Start(ctx, "poller.fetch")
	child.SetAttributes(attribute.String("gate", "FM South gate"))
	child.SetStatus(codes.Error, "bad status")
	child.End()
	parent.End()

	if err := exp.ExportSpans(context.Background(), rec.Ended()); err != nil {
		t.Fatalf("ExportSpans: %v", err)
	}
	entries := logs.FilterMessage("span finished").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	fetch := entries[0].ContextMap()
	if fetch["span"] != "poller.fetch" || fetch["gate"] != "FM South gate" || fetch["status"] != "bad status" {
		t.Fatalf("fetch entry=%v", fetch)
	}
	if _, ok := fetch["parent_id"]; !ok {
		t.Fatal("child span must carry parent_id")
	}

	if err := exp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := exp.ExportSpans(context.Background(), rec.Ended()); err != nil {
		t.Fatalf("ExportSpans after shutdown: %v", err)
	}
	if logs.FilterMessage("span finished").Len() != 2 {
		t.Fatal("no spans must be logged after shutdown")
	}
}

func TestErrorFilter(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()), sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tr := tp.Tracer("test")
	_, healthy := tr.Start(context.Background(), "poller.record")
	healthy.End()
	_, failed := tr.Start(context.Background(), "poller.fetch")
	failed.SetStatus(codes.Error, "bad status")
	failed.End()

	sink := tracetest.NewInMemoryExporter()
	f := NewErrorFilter(sink, 0)
	if err := f.ExportSpans(context.Background(), rec.Ended()); err != nil {
		t.Fatalf("ExportSpans: %v", err)
	}
	got := sink.GetSpans()
	if len(got) != 1 || got[0].Name != "poller.fetch" {
		t.Fatalf("exported=%v, want only the failed span", got)
	}

	sink.Reset()
	if err := f.ExportSpans(context.Background(), rec.Ended()[:1]); err != nil {
		t.Fatalf("ExportSpans: %v", err)
	}
	if n := len(sink.GetSpans()); n != 0 {
		t.Fatalf("healthy-only batch exported %d spans", n)
	}
	if err := f.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
