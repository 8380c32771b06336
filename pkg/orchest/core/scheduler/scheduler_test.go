package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/swell/pkg/orchest/core/config"
	"github.com/tigerroll/swell/pkg/orchest/core/controller"
	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/core/eventlog"
	"github.com/tigerroll/swell/pkg/orchest/core/executor"
	"github.com/tigerroll/swell/pkg/orchest/core/launcher"
	"github.com/tigerroll/swell/pkg/orchest/core/metrics"
	plan "github.com/tigerroll/swell/pkg/orchest/core/plan"
	"github.com/tigerroll/swell/pkg/orchest/core/scheduler"
	"github.com/tigerroll/swell/pkg/orchest/core/workspace"
	inmemory "github.com/tigerroll/swell/pkg/orchest/infrastructure/repository/inmemory"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

type harness struct {
	sched    *scheduler.Scheduler
	store    *inmemory.InMemoryStore
	launcher *launcher.InProcessLauncher
	cfg      *config.EngineConfig
}

func newHarness(t *testing.T, schedules ...*workspace.ScheduleDefinition) *harness {
	t.Helper()

	job := &plan.JobDefinition{
		Name:  "scheduled_job",
		Steps: []plan.StepDefinition{{Key: "only"}},
	}
	ws, err := workspace.New(func() (*workspace.Definitions, error) {
		return &workspace.Definitions{
			Jobs:      []*plan.JobDefinition{job},
			Schedules: schedules,
		}, nil
	})
	require.NoError(t, err)

	store := inmemory.NewInMemoryStore()
	log := eventlog.NewEventLog(store, store)
	recorder := metrics.NewNoOpMetricRecorder()
	exec := executor.NewExecutor(store, log, recorder, metrics.NewNoOpTracer(), 1)
	l := launcher.NewInProcessLauncher(ws, store, log, exec)

	cfg := config.NewDefaultEngineConfig()
	cfg.MaxCatchupTicks = 10
	cfg.CatchupWindow = 24 * time.Hour

	ctrl := controller.NewRunController(ws, store, log, l, recorder, cfg)
	return &harness{
		sched:    scheduler.NewScheduler(ws, store, ctrl, recorder, cfg),
		store:    store,
		launcher: l,
		cfg:      cfg,
	}
}

func hourlySchedule() *workspace.ScheduleDefinition {
	return &workspace.ScheduleDefinition{
		Name:           "hourly",
		JobName:        "scheduled_job",
		CronExpression: "0 * * * *",
	}
}

// seedRunningState anchors the catch-up cursor at a fixed timestamp.
func (h *harness) seedRunningState(t *testing.T, name, cronExpr string, cursor time.Time) {
	t.Helper()
	state := model.NewScheduleState(name, cronExpr)
	state.Status = model.InstigationStatusRunning
	state.LastTickTimestamp = &cursor
	require.NoError(t, h.store.SaveScheduleState(context.Background(), state))
}

func TestStartScheduleAnchorsCursorAtActivation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, hourlySchedule())

	before := time.Now()
	state, err := h.sched.StartSchedule(ctx, "hourly")
	require.NoError(t, err)

	assert.Equal(t, model.InstigationStatusRunning, state.Status)
	require.NotNil(t, state.LastTickTimestamp)
	assert.False(t, state.LastTickTimestamp.Before(before))

	// Nothing was due before activation, so an immediate pass launches nothing.
	h.sched.RunPass(ctx, time.Now())
	ticks, err := h.store.ListTicks(ctx, "hourly", 0)
	require.NoError(t, err)
	assert.Empty(t, ticks)
}

func TestStartScheduleUnknownNameIsNotFound(t *testing.T) {
	h := newHarness(t, hourlySchedule())

	_, err := h.sched.StartSchedule(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, exception.KindNotFound, exception.KindOf(err))
}

func TestStartScheduleInvalidCron(t *testing.T) {
	h := newHarness(t, &workspace.ScheduleDefinition{
		Name:           "broken",
		JobName:        "scheduled_job",
		CronExpression: "not a cron expression",
	})

	_, err := h.sched.StartSchedule(context.Background(), "broken")
	require.Error(t, err)
	assert.Equal(t, exception.KindConfigInvalid, exception.KindOf(err))
}

func TestRunPassCatchesUpMissedTimestamps(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, hourlySchedule())

	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	h.seedRunningState(t, "hourly", "0 * * * *", now.Add(-3*time.Hour-30*time.Minute))

	h.sched.RunPass(ctx, now)
	h.launcher.Wait()

	// 10:00, 11:00 and 12:00 were missed.
	ticks, err := h.store.ListTicks(ctx, "hourly", 0)
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	for _, tick := range ticks {
		assert.Equal(t, model.TickStatusSuccess, tick.Status)
		assert.Len(t, tick.RunIDs, 1)
	}

	state, err := h.store.FindScheduleState(ctx, "hourly")
	require.NoError(t, err)
	require.NotNil(t, state.LastTickTimestamp)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), state.LastTickTimestamp.UTC())

	runs, err := h.store.ListRuns(ctx, repository.RunsFilter{
		Tags: model.TagMap{model.TagSchedule: {"hourly"}},
	}, "", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRunPassBoundsCatchupTicks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, hourlySchedule())
	h.cfg.MaxCatchupTicks = 2

	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	h.seedRunningState(t, "hourly", "0 * * * *", now.Add(-6*time.Hour))

	h.sched.RunPass(ctx, now)
	h.launcher.Wait()

	ticks, err := h.store.ListTicks(ctx, "hourly", 0)
	require.NoError(t, err)
	assert.Len(t, ticks, 2)

	// The next pass picks up where the bounded pass left off.
	h.sched.RunPass(ctx, now)
	h.launcher.Wait()
	ticks, err = h.store.ListTicks(ctx, "hourly", 0)
	require.NoError(t, err)
	assert.Len(t, ticks, 4)
}

func TestRunPassBoundsCatchupWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, hourlySchedule())
	h.cfg.CatchupWindow = 2 * time.Hour

	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	// Far behind, but the window only reaches back to 10:30.
	h.seedRunningState(t, "hourly", "0 * * * *", now.Add(-48*time.Hour))

	h.sched.RunPass(ctx, now)
	h.launcher.Wait()

	ticks, err := h.store.ListTicks(ctx, "hourly", 0)
	require.NoError(t, err)
	assert.Len(t, ticks, 2)
}

func TestRunPassIsIdempotentPerTimestamp(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, hourlySchedule())

	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	// Cursor at 10:00 leaves 11:00 and 12:00 due.
	cursor := now.Add(-150 * time.Minute)
	h.seedRunningState(t, "hourly", "0 * * * *", cursor)

	h.sched.RunPass(ctx, now)
	h.launcher.Wait()
	ticks, err := h.store.ListTicks(ctx, "hourly", 0)
	require.NoError(t, err)
	require.Len(t, ticks, 2)

	// Rewinding the cursor simulates a crashed pass replaying the same
	// timestamps: tick uniqueness keeps the runs from doubling.
	h.seedRunningState(t, "hourly", "0 * * * *", cursor)
	h.sched.RunPass(ctx, now)
	h.launcher.Wait()

	ticks, err = h.store.ListTicks(ctx, "hourly", 0)
	require.NoError(t, err)
	assert.Len(t, ticks, 2)

	runs, err := h.store.ListRuns(ctx, repository.RunsFilter{}, "", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunPassRecordsSkippedTickWhenFiltered(t *testing.T) {
	ctx := context.Background()
	def := hourlySchedule()
	def.ShouldExecute = func(t time.Time) bool { return false }
	h := newHarness(t, def)

	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	h.seedRunningState(t, "hourly", "0 * * * *", now.Add(-1*time.Hour))

	h.sched.RunPass(ctx, now)
	h.launcher.Wait()

	ticks, err := h.store.ListTicks(ctx, "hourly", 0)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, model.TickStatusSkipped, ticks[0].Status)
	assert.NotEmpty(t, ticks[0].SkipReason)
	assert.Empty(t, ticks[0].RunIDs)

	runs, err := h.store.ListRuns(ctx, repository.RunsFilter{}, "", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunPassAppliesRunConfigAndTags(t *testing.T) {
	ctx := context.Background()
	def := hourlySchedule()
	def.RunConfigFn = func(t time.Time) model.RunConfig {
		return model.RunConfig{"window": t.UTC().Format(time.RFC3339)}
	}
	def.TagsFn = func(t time.Time) model.TagMap {
		return model.TagMap{"flavor": {"hourly"}}
	}
	h := newHarness(t, def)

	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	h.seedRunningState(t, "hourly", "0 * * * *", now.Add(-1*time.Hour))

	h.sched.RunPass(ctx, now)
	h.launcher.Wait()

	runs, err := h.store.ListRuns(ctx, repository.RunsFilter{}, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "2026-03-10T12:00:00Z", runs[0].Config["window"])
	assert.True(t, runs[0].Tags.Has("flavor", "hourly"))
	assert.True(t, runs[0].Tags.Has(model.TagSchedule, "hourly"))
}

func TestRunPassFailedLaunchRecordsFailureTick(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &workspace.ScheduleDefinition{
		Name:           "hourly",
		JobName:        "no_such_job",
		CronExpression: "0 * * * *",
	})

	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	h.seedRunningState(t, "hourly", "0 * * * *", now.Add(-1*time.Hour))

	h.sched.RunPass(ctx, now)

	ticks, err := h.store.ListTicks(ctx, "hourly", 0)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, model.TickStatusFailure, ticks[0].Status)
	require.NotNil(t, ticks[0].Error)
}

func TestRunPassEndsStateOfRemovedSchedule(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t) // workspace has no schedule definitions

	h.seedRunningState(t, "orphan", "0 * * * *", time.Now().Add(-1*time.Hour))
	h.sched.RunPass(ctx, time.Now())

	state, err := h.store.FindScheduleState(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, model.InstigationStatusEnded, state.Status)
}

func TestStopScheduleHaltsTicksAndKeepsHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, hourlySchedule())

	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	h.seedRunningState(t, "hourly", "0 * * * *", now.Add(-1*time.Hour))
	h.sched.RunPass(ctx, now)
	h.launcher.Wait()

	state, err := h.sched.StopSchedule(ctx, "hourly")
	require.NoError(t, err)
	assert.Equal(t, model.InstigationStatusStopped, state.Status)

	// Another hour of backlog, but a stopped schedule ticks no more.
	h.sched.RunPass(ctx, now.Add(1*time.Hour))
	ticks, err := h.store.ListTicks(ctx, "hourly", 0)
	require.NoError(t, err)
	assert.Len(t, ticks, 1)
}
