// Package metrics defines the observability ports of the orchestration core.
// Concrete implementations live in the infrastructure layer; no-op fallbacks
// keep the engine runnable without any metrics backend.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
)

// MetricRecorder records engine-level counters and durations.
type MetricRecorder interface {
	// RecordRunLaunched is called when a run has been handed to the launcher.
	RecordRunLaunched(ctx context.Context, run *model.Run)
	// RecordRunEnd is called when a run reaches a terminal status.
	RecordRunEnd(ctx context.Context, run *model.Run)
	// RecordStepStart is called when a step begins executing.
	RecordStepStart(ctx context.Context, runID, stepKey string)
	// RecordStepEnd is called when a step finishes, with its outcome and duration.
	RecordStepEnd(ctx context.Context, runID, stepKey string, eventType model.EventType, duration time.Duration)
	// RecordTick is called after a tick reaches its final status.
	RecordTick(ctx context.Context, tick *model.Tick)
	// RecordBackfill is called after a backfill record is finalized.
	RecordBackfill(ctx context.Context, backfill *model.Backfill)
}

// Tracer abstracts distributed tracing spans around runs and steps.
type Tracer interface {
	// StartRunSpan starts a span covering a whole run. The returned func ends it.
	StartRunSpan(ctx context.Context, run *model.Run) (context.Context, func())
	// StartStepSpan starts a span covering one step execution.
	StartStepSpan(ctx context.Context, runID, stepKey string) (context.Context, func())
	// RecordError records an error in the current span.
	RecordError(ctx context.Context, module string, err error)
}
