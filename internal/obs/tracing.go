package obs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig mirrors the teacher's tracing.Config shape: a named
// service, an on/off switch, an exporter selection, and a sampling rate,
// relabeled for a DWN node rather than an HTTP API.
type TracingConfig struct {
	ServiceName  string
	Enabled      bool
	Environment  string
	ExporterType string // "otlp-grpc" or "otlp-http"; when Enabled, any other value is an error
	OTLPEndpoint string
	SamplingRate float64
	InsecureMode bool
}

// TracingProvider wraps an sdktrace.TracerProvider the way the teacher's
// tracing.Provider does, keeping the config alongside for IsEnabled checks.
type TracingProvider struct {
	tp     *sdktrace.TracerProvider
	config TracingConfig
}

// NewTracingProvider builds the OTel pipeline: resource, exporter,
// sampler, batch span processor, then installs it as the global provider
// and a W3C trace-context propagator, exactly as the teacher's
// tracing.NewProvider does.
func NewTracingProvider(cfg TracingConfig) (*TracingProvider, error) {
	if !cfg.Enabled {
		return &TracingProvider{config: cfg}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("obs: building resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.ExporterType {
	case "otlp-grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.InsecureMode {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(context.Background(), opts...)
	case "otlp-http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.InsecureMode {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("obs: unsupported exporter type %q", cfg.ExporterType)
	}
	if err != nil {
		return nil, fmt.Errorf("obs: building exporter: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracingProvider{tp: tp, config: cfg}, nil
}

// Shutdown flushes and stops the underlying provider, a no-op when
// tracing was never enabled.
func (p *TracingProvider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// IsEnabled reports whether this provider is backed by a real exporter.
func (p *TracingProvider) IsEnabled() bool {
	return p.config.Enabled
}

// Tracer returns a named tracer, falling back to the global no-op tracer
// when tracing is disabled so callers never need a nil check.
func (p *TracingProvider) Tracer(name string) trace.Tracer {
	if p.tp == nil {
		return otel.Tracer(name)
	}
	return p.tp.Tracer(name)
}

// StartOperationSpan opens a span around one *dwn.Handlers method
// invocation, the DWN-pipeline counterpart of the teacher's
// tracing.StartSpan/StartDBSpan helpers: it returns a finish function the
// caller defers, passing the stage error (if any) so the span's status
// reflects the outcome.
func StartOperationSpan(ctx context.Context, tracer trace.Tracer, iface, method, tenant string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("dwn.%s.%s", iface, method),
		trace.WithAttributes(
			attribute.String("dwn.interface", iface),
			attribute.String("dwn.method", method),
			attribute.String("dwn.tenant", tenant),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// AddEvent attaches a point-in-time event to the span active on ctx, if
// any, mirroring the teacher's tracing.AddEvent helper.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes attaches attributes to the span active on ctx, if any,
// mirroring the teacher's tracing.SetAttributes helper.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
