package metrics_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	metrics "github.com/tigerroll/swell/pkg/orchest/infrastructure/metrics"
)

func TestPrometheusRecorderCountsRunLifecycle(t *testing.T) {
	ctx := context.Background()
	r := metrics.NewPrometheusRecorder()

	run := model.NewRun("etl", nil, nil, "default", nil)
	r.RecordRunLaunched(ctx, run)
	r.RecordRunLaunched(ctx, run)

	expected := strings.NewReader(`
# HELP swell_run_launched_total Total number of runs handed to the launcher.
# TYPE swell_run_launched_total counter
swell_run_launched_total{job_name="etl"} 2
`)
	require.NoError(t, testutil.GatherAndCompare(r.GetRegistry(), expected, "swell_run_launched_total"))
}

func TestPrometheusRecorderRecordsRunEndWithDuration(t *testing.T) {
	ctx := context.Background()
	r := metrics.NewPrometheusRecorder()

	run := model.NewRun("etl", nil, nil, "default", nil)
	require.NoError(t, run.MarkAsNotStarted())
	require.NoError(t, run.MarkAsStarted())
	require.NoError(t, run.MarkAsSuccess())
	r.RecordRunEnd(ctx, run)

	expected := strings.NewReader(`
# HELP swell_run_status_total Total number of runs reaching a terminal status.
# TYPE swell_run_status_total counter
swell_run_status_total{job_name="etl",status="SUCCESS"} 1
`)
	require.NoError(t, testutil.GatherAndCompare(r.GetRegistry(), expected, "swell_run_status_total"))

	n, err := testutil.GatherAndCount(r.GetRegistry(), "swell_run_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPrometheusRecorderCountsTicksAndBackfills(t *testing.T) {
	ctx := context.Background()
	r := metrics.NewPrometheusRecorder()

	tick := model.NewTick("hourly", model.InstigatorTypeSchedule, time.Now())
	tick.MarkAsSuccess("run-1")
	r.RecordTick(ctx, tick)

	bf := model.NewBackfill("daily", []string{"2026-03-01"}, nil, false)
	bf.MarkAsCompleted([]string{"run-1"}, 0)
	r.RecordBackfill(ctx, bf)

	expected := strings.NewReader(`
# HELP swell_instigation_tick_total Total number of finalized schedule and sensor ticks.
# TYPE swell_instigation_tick_total counter
swell_instigation_tick_total{instigator_name="hourly",instigator_type="SCHEDULE",status="SUCCESS"} 1
`)
	require.NoError(t, testutil.GatherAndCompare(r.GetRegistry(), expected, "swell_instigation_tick_total"))

	expected = strings.NewReader(`
# HELP swell_backfill_total Total number of finalized backfills.
# TYPE swell_backfill_total counter
swell_backfill_total{partition_set="daily",status="COMPLETED"} 1
`)
	require.NoError(t, testutil.GatherAndCompare(r.GetRegistry(), expected, "swell_backfill_total"))
}

func TestPrometheusRecorderCountsStepOutcomes(t *testing.T) {
	ctx := context.Background()
	r := metrics.NewPrometheusRecorder()

	r.RecordStepEnd(ctx, "run-1", "a", model.EventTypeStepSuccess, 250*time.Millisecond)
	r.RecordStepEnd(ctx, "run-1", "a", model.EventTypeStepSuccess, 100*time.Millisecond)

	expected := strings.NewReader(`
# HELP swell_step_status_total Total number of step executions by outcome.
# TYPE swell_step_status_total counter
swell_step_status_total{outcome="STEP_SUCCESS",step_key="a"} 2
`)
	require.NoError(t, testutil.GatherAndCompare(r.GetRegistry(), expected, "swell_step_status_total"))
}
