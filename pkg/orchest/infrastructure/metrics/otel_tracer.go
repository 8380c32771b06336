package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	metrics "github.com/tigerroll/swell/pkg/orchest/core/metrics"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
	logger "github.com/tigerroll/swell/pkg/orchest/support/util/logger"
)

// OTelTracer is an OpenTelemetry implementation of the metrics.Tracer
// interface, spanning runs and their steps.
type OTelTracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// NewOTelTracer creates an OTelTracer backed by an OTLP/gRPC exporter. The
// endpoint comes from the standard OTEL_EXPORTER_OTLP_* environment variables.
func NewOTelTracer(ctx context.Context) (*OTelTracer, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, exception.NewInternalError("metrics", "Failed to create OTLP trace exporter", err)
	}

	res, err := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("swell"),
	))
	if err != nil {
		return nil, exception.NewInternalError("metrics", "Failed to build trace resource", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &OTelTracer{
		tracer:   provider.Tracer("github.com/tigerroll/swell"),
		provider: provider,
	}, nil
}

// StartRunSpan starts a span covering a whole run.
func (t *OTelTracer) StartRunSpan(ctx context.Context, run *model.Run) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "run "+run.JobName,
		trace.WithAttributes(
			attribute.String("swell.run_id", run.ID),
			attribute.String("swell.job_name", run.JobName),
			attribute.String("swell.snapshot_id", run.SnapshotID),
		))
	return ctx, func() { span.End() }
}

// StartStepSpan starts a span covering one step execution.
func (t *OTelTracer) StartStepSpan(ctx context.Context, runID, stepKey string) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "step "+stepKey,
		trace.WithAttributes(
			attribute.String("swell.run_id", runID),
			attribute.String("swell.step_key", stepKey),
		))
	return ctx, func() { span.End() }
}

// RecordError records an error in the current span.
func (t *OTelTracer) RecordError(ctx context.Context, module string, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err, trace.WithAttributes(attribute.String("swell.module", module)))
	span.SetStatus(codes.Error, exception.ExtractErrorMessage(err))
}

// Shutdown flushes pending spans and stops the provider.
func (t *OTelTracer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := t.provider.Shutdown(ctx); err != nil {
		logger.Warnf("Metrics: trace provider shutdown failed: %v", err)
		return err
	}
	return nil
}

var _ metrics.Tracer = (*OTelTracer)(nil)
