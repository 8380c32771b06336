// Package metrics provides the concrete observability backends of the engine:
// a Prometheus metric recorder and an OpenTelemetry tracer.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	metrics "github.com/tigerroll/swell/pkg/orchest/core/metrics"
	logger "github.com/tigerroll/swell/pkg/orchest/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the
// metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Run metrics
	runLaunchedCounter  *prometheus.CounterVec
	runStatusCounter    *prometheus.CounterVec
	runDurationSeconds  *prometheus.HistogramVec

	// Step metrics
	stepStatusCounter   *prometheus.CounterVec
	stepDurationSeconds *prometheus.HistogramVec

	// Instigation metrics
	tickCounter     *prometheus.CounterVec
	backfillCounter *prometheus.CounterVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		runLaunchedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swell_run_launched_total",
			Help: "Total number of runs handed to the launcher.",
		}, []string{"job_name"}),
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swell_run_status_total",
			Help: "Total number of runs reaching a terminal status.",
		}, []string{"job_name", "status"}),
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swell_run_duration_seconds",
			Help:    "Duration of completed runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swell_step_status_total",
			Help: "Total number of step executions by outcome.",
		}, []string{"step_key", "outcome"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swell_step_duration_seconds",
			Help:    "Duration of step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step_key", "outcome"}),
		tickCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swell_instigation_tick_total",
			Help: "Total number of finalized schedule and sensor ticks.",
		}, []string{"instigator_name", "instigator_type", "status"}),
		backfillCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swell_backfill_total",
			Help: "Total number of finalized backfills.",
		}, []string{"partition_set", "status"}),
	}

	registry.MustRegister(r.runLaunchedCounter)
	registry.MustRegister(r.runStatusCounter)
	registry.MustRegister(r.runDurationSeconds)
	registry.MustRegister(r.stepStatusCounter)
	registry.MustRegister(r.stepDurationSeconds)
	registry.MustRegister(r.tickCounter)
	registry.MustRegister(r.backfillCounter)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordRunLaunched records a run handed to the launcher.
func (r *PrometheusRecorder) RecordRunLaunched(ctx context.Context, run *model.Run) {
	r.runLaunchedCounter.WithLabelValues(run.JobName).Inc()
	logger.Debugf("Metrics: run '%s' launched.", run.ID)
}

// RecordRunEnd records a run reaching a terminal status.
func (r *PrometheusRecorder) RecordRunEnd(ctx context.Context, run *model.Run) {
	r.runStatusCounter.WithLabelValues(run.JobName, string(run.Status)).Inc()
	if run.StartTime != nil && run.EndTime != nil {
		duration := run.EndTime.Sub(*run.StartTime).Seconds()
		r.runDurationSeconds.WithLabelValues(run.JobName, string(run.Status)).Observe(duration)
		logger.Debugf("Metrics: run '%s' ended. Duration: %.3fs", run.ID, duration)
	}
}

// RecordStepStart records a step beginning execution.
func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, runID, stepKey string) {
	logger.Debugf("Metrics: step '%s' of run '%s' started.", stepKey, runID)
}

// RecordStepEnd records a finished step with its outcome and duration.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, runID, stepKey string, eventType model.EventType, duration time.Duration) {
	r.stepStatusCounter.WithLabelValues(stepKey, string(eventType)).Inc()
	r.stepDurationSeconds.WithLabelValues(stepKey, string(eventType)).Observe(duration.Seconds())
}

// RecordTick records a finalized schedule or sensor tick.
func (r *PrometheusRecorder) RecordTick(ctx context.Context, tick *model.Tick) {
	r.tickCounter.WithLabelValues(tick.InstigatorName, string(tick.InstigatorType), string(tick.Status)).Inc()
}

// RecordBackfill records a finalized backfill.
func (r *PrometheusRecorder) RecordBackfill(ctx context.Context, backfill *model.Backfill) {
	r.backfillCounter.WithLabelValues(backfill.PartitionSetName, string(backfill.Status)).Inc()
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
