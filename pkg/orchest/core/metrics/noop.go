package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

// RecordRunLaunched does nothing.
func (r *NoOpMetricRecorder) RecordRunLaunched(ctx context.Context, run *model.Run) {}

// RecordRunEnd does nothing.
func (r *NoOpMetricRecorder) RecordRunEnd(ctx context.Context, run *model.Run) {}

// RecordStepStart does nothing.
func (r *NoOpMetricRecorder) RecordStepStart(ctx context.Context, runID, stepKey string) {}

// RecordStepEnd does nothing.
func (r *NoOpMetricRecorder) RecordStepEnd(ctx context.Context, runID, stepKey string, eventType model.EventType, duration time.Duration) {
}

// RecordTick does nothing.
func (r *NoOpMetricRecorder) RecordTick(ctx context.Context, tick *model.Tick) {}

// RecordBackfill does nothing.
func (r *NoOpMetricRecorder) RecordBackfill(ctx context.Context, backfill *model.Backfill) {}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

// StartRunSpan returns the context unchanged.
func (t *NoOpTracer) StartRunSpan(ctx context.Context, run *model.Run) (context.Context, func()) {
	return ctx, func() {}
}

// StartStepSpan returns the context unchanged.
func (t *NoOpTracer) StartStepSpan(ctx context.Context, runID, stepKey string) (context.Context, func()) {
	return ctx, func() {}
}

// RecordError does nothing.
func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

var _ Tracer = (*NoOpTracer)(nil)
