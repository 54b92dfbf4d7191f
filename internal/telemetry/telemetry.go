package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "auditspool"

// Process describes the auditspool process exporting telemetry. Several
// writer processes usually run side by side, so each one is told apart by
// command and pid.
type Process struct {
	Version string
	Command string
	// SignalFile is the shared rotation signal, empty for an in-process one.
	SignalFile string
}

// Provider holds the OTel trace and metric providers for graceful shutdown.
type Provider struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init registers OTel trace and metric providers exporting over OTLP gRPC.
// The OTEL_EXPORTER_OTLP_ENDPOINT env var is read by the OTel SDK.
func Init(ctx context.Context, proc Process) (*Provider, error) {
	res, err := newResource(ctx, proc)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	p := &Provider{
		tp: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter),
			sdktrace.WithResource(res),
		),
	}

	metricExporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	p.mp = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(p.tp)
	otel.SetMeterProvider(p.mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return p, nil
}

func newResource(ctx context.Context, proc Process) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithProcessPID(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(proc.Version),
			attribute.String("auditspool.command", proc.Command),
			attribute.Bool("auditspool.signal.shared", proc.SignalFile != ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otel resource: %w", err)
	}
	return res, nil
}

// Shutdown flushes pending spans and metrics. Short-lived commands such as
// rotate rely on it to export anything at all.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down tracer: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down meter: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Tracer returns the auditspool tracer, or a noop tracer when OTel is
// disabled.
func Tracer(enabled bool) trace.Tracer {
	if !enabled {
		return NoopTracer()
	}
	return otel.Tracer(scopeName)
}

func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("noop")
}
