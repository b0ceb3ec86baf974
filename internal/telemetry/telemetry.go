// Package telemetry configures OpenTelemetry tracing for the collector.
package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

const (
	TraceModeOff      = "off"
	TraceModeErrors   = "errors"
	TraceModeSampled  = "sampled"
	TraceModeDetailed = "detailed"

	defaultServiceName = "gatecounter"
)

// Config configures tracing setup.
type Config struct {
	Logger           *zap.Logger
	ServiceName      string
	TraceMode        string
	TraceSampleRatio float64
	Enabled          bool
}

// Runtime holds the installed provider and its shutdown hook.
type Runtime struct {
	TracerProvider *sdktrace.TracerProvider
	Shutdown       func(ctx context.Context) error
}

// Setup installs a global tracer provider. Finished spans are written to
// cfg.Logger at debug level. In errors mode only failed spans and a small
// floor of healthy traces reach the log.
func Setup(cfg Config) (Runtime, error) {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	mode := NormalizeTraceMode(cfg.TraceMode)
	sampler := samplerForMode(mode, cfg.TraceSampleRatio)
	if !cfg.Enabled {
		sampler = sdktrace.NeverSample()
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return Runtime{}, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	}
	if cfg.Enabled {
		var exp sdktrace.SpanExporter = NewLogExporter(cfg.Logger)
		if mode == TraceModeErrors {
			exp = NewErrorFilter(exp, cfg.TraceSampleRatio)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return Runtime{
		TracerProvider: provider,
		Shutdown:       provider.Shutdown,
	}, nil
}

func samplerForMode(mode string, ratio float64) sdktrace.Sampler {
	r := clampRatio(ratio)

	switch NormalizeTraceMode(mode) {
	case TraceModeOff:
		return sdktrace.NeverSample()
	case TraceModeDetailed, TraceModeErrors:
		// errors mode records everything; ErrorFilter picks what is exported.
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(r))
	}
}

// NormalizeTraceMode maps unknown or empty modes to "sampled".
func NormalizeTraceMode(mode string) string {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case TraceModeOff, TraceModeErrors, TraceModeDetailed:
		return m
	default:
		return TraceModeSampled
	}
}

func clampRatio(ratio float64) float64 {
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
