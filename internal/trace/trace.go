package trace

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName    = "quant-trader"
	serviceVersion = "0.3.0"
)

var (
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	enabled        bool
)

type config struct {
	enabled     bool
	prettyPrint bool
	sampleRatio float64
}

func configFromEnv() (config, error) {
	cfg := config{
		enabled:     os.Getenv("LOG_TRACING_ENABLED") != "false",
		prettyPrint: os.Getenv("TRACE_PRETTY") == "true",
		sampleRatio: 1.0,
	}
	if v := os.Getenv("TRACE_SAMPLE_RATIO"); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil || ratio < 0 || ratio > 1 {
			return cfg, fmt.Errorf("TRACE_SAMPLE_RATIO must be in [0,1], got %q", v)
		}
		cfg.sampleRatio = ratio
	}
	return cfg, nil
}

// Init wires a stdout span exporter behind a parent-based sampler. Tracing is
// on by default; LOG_TRACING_ENABLED=false turns the whole package into
// no-ops.
func Init() error {
	cfg, err := configFromEnv()
	if err != nil {
		return err
	}
	enabled = cfg.enabled
	if !enabled {
		return nil
	}

	var exporterOpts []stdouttrace.Option
	if cfg.prettyPrint {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return fmt.Errorf("create span exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return fmt.Errorf("build trace resource: %w", err)
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.sampleRatio))),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = tracerProvider.Tracer(serviceName)
	return nil
}

// Shutdown flushes buffered spans.
func Shutdown(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}
	return tracerProvider.Shutdown(ctx)
}

// StartSpan opens a span when tracing is initialized, and is otherwise a
// pass-through on the caller's context.
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !enabled || tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName, opts...)
}

func Enabled() bool {
	return enabled
}

// GetTraceFields extracts the trace and span ids for log correlation.
func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !enabled {
		return "", "", false
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", "", false
	}
	return sc.TraceID().String(), sc.SpanID().String(), true
}
