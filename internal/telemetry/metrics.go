package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/guillermoBallester/auditspool/internal/core/port"
)

const scopeName = "github.com/guillermoBallester/auditspool"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	LinesWritten metric.Int64Counter
	WriteErrors  metric.Int64Counter
	Rotations    metric.Int64Counter
	Fallbacks    metric.Int64Counter
	ToolDuration metric.Float64Histogram
}

var _ port.Instrumentation = (*Instruments)(nil)

// NewInstruments creates metric instruments from the global MeterProvider.
func NewInstruments() *Instruments {
	return NewInstrumentsFromMeter(otel.Meter(scopeName))
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return NewInstrumentsFromMeter(noop.NewMeterProvider().Meter(scopeName))
}

// NewInstrumentsFromMeter creates the instruments on meter.
func NewInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	linesWritten, _ := meter.Int64Counter("auditspool.lines.written",
		metric.WithDescription("Audit lines appended to the audit log"),
	)
	writeErrors, _ := meter.Int64Counter("auditspool.write.errors",
		metric.WithDescription("Audit lines lost to open or write failures"),
	)
	rotations, _ := meter.Int64Counter("auditspool.rotations",
		metric.WithDescription("Audit log rotations performed by writers"),
	)
	fallbacks, _ := meter.Int64Counter("auditspool.fallbacks",
		metric.WithDescription("Events routed to the regular log instead of the audit log"),
	)
	toolDuration, _ := meter.Float64Histogram("auditspool.tool.duration",
		metric.WithDescription("Admin tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		LinesWritten: linesWritten,
		WriteErrors:  writeErrors,
		Rotations:    rotations,
		Fallbacks:    fallbacks,
		ToolDuration: toolDuration,
	}
}

func (i *Instruments) IncrementLinesWritten(ctx context.Context) {
	i.LinesWritten.Add(ctx, 1)
}

func (i *Instruments) IncrementWriteErrors(ctx context.Context, stage string) {
	i.WriteErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (i *Instruments) IncrementRotations(ctx context.Context, reason string) {
	i.Rotations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (i *Instruments) IncrementFallbacks(ctx context.Context) {
	i.Fallbacks.Add(ctx, 1)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
