package port

import "context"

// Rotation reasons recorded by instrumentation.
const (
	RotationForced    = "forced"
	RotationScheduled = "scheduled"
	RotationRenamed   = "renamed"
)

// Failure stages recorded by instrumentation.
const (
	StageOpen  = "open"
	StageWrite = "write"
)

// Instrumentation records application-level metrics.
type Instrumentation interface {
	IncrementLinesWritten(ctx context.Context)
	IncrementWriteErrors(ctx context.Context, stage string)
	IncrementRotations(ctx context.Context, reason string)
	IncrementFallbacks(ctx context.Context)
	RecordToolDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) IncrementLinesWritten(context.Context)        {}
func (NoopInstrumentation) IncrementWriteErrors(context.Context, string) {}
func (NoopInstrumentation) IncrementRotations(context.Context, string)   {}
func (NoopInstrumentation) IncrementFallbacks(context.Context)           {}
func (NoopInstrumentation) RecordToolDuration(context.Context, float64)  {}
