package backfill_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/swell/pkg/orchest/core/backfill"
	"github.com/tigerroll/swell/pkg/orchest/core/config"
	"github.com/tigerroll/swell/pkg/orchest/core/controller"
	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/core/eventlog"
	"github.com/tigerroll/swell/pkg/orchest/core/executor"
	"github.com/tigerroll/swell/pkg/orchest/core/launcher"
	"github.com/tigerroll/swell/pkg/orchest/core/metrics"
	plan "github.com/tigerroll/swell/pkg/orchest/core/plan"
	"github.com/tigerroll/swell/pkg/orchest/core/workspace"
	inmemory "github.com/tigerroll/swell/pkg/orchest/infrastructure/repository/inmemory"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

type harness struct {
	bf       *backfill.Launcher
	store    *inmemory.InMemoryStore
	launcher *launcher.InProcessLauncher
	ctrl     *controller.RunController
}

// newHarness wires a backfill launcher over a job with steps a -> b and a
// partition set enumerating the given day partitions.
func newHarness(t *testing.T, days ...string) *harness {
	t.Helper()

	job := &plan.JobDefinition{
		Name: "partitioned_job",
		Steps: []plan.StepDefinition{
			{Key: "a", Outputs: []plan.OutputDefinition{{Name: "result"}}},
			{
				Key:    "b",
				Inputs: []plan.InputDefinition{{Name: "in", Upstreams: []plan.UpstreamRef{{StepKey: "a", OutputName: "result"}}}},
			},
		},
	}
	partitions := make([]model.Partition, len(days))
	for i, day := range days {
		partitions[i] = model.Partition{
			Name:   day,
			Config: model.RunConfig{"day": day},
			Tags:   model.TagMap{"flavor": {"daily"}},
		}
	}
	ws, err := workspace.New(func() (*workspace.Definitions, error) {
		return &workspace.Definitions{
			Jobs: []*plan.JobDefinition{job},
			PartitionSets: []*workspace.PartitionSetDefinition{{
				Name:       "daily",
				JobName:    "partitioned_job",
				Partitions: func() []model.Partition { return partitions },
			}},
		}, nil
	})
	require.NoError(t, err)

	store := inmemory.NewInMemoryStore()
	log := eventlog.NewEventLog(store, store)
	recorder := metrics.NewNoOpMetricRecorder()
	exec := executor.NewExecutor(store, log, recorder, metrics.NewNoOpTracer(), 1)
	l := launcher.NewInProcessLauncher(ws, store, log, exec)

	cfg := config.NewDefaultEngineConfig()
	cfg.BackfillConcurrency = 2

	ctrl := controller.NewRunController(ws, store, log, l, recorder, cfg)
	return &harness{
		bf:       backfill.NewLauncher(ws, store, ctrl, recorder, cfg),
		store:    store,
		launcher: l,
		ctrl:     ctrl,
	}
}

func TestLaunchCreatesOneRunPerPartition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2026-03-01", "2026-03-02", "2026-03-03")

	bf, err := h.bf.Launch(ctx, backfill.Request{PartitionSetName: "daily"})
	require.NoError(t, err)
	h.launcher.Wait()

	assert.Equal(t, model.BackfillStatusCompleted, bf.Status)
	assert.Len(t, bf.LaunchedRunIDs, 3)
	assert.Zero(t, bf.FailedPartitions)
	assert.Equal(t, model.StringList{"2026-03-01", "2026-03-02", "2026-03-03"}, bf.PartitionNames)

	for _, day := range []string{"2026-03-01", "2026-03-02", "2026-03-03"} {
		runs, err := h.store.ListRuns(ctx, repository.RunsFilter{
			Tags: model.TagMap{model.TagPartition: {day}},
		}, "", 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, day, runs[0].Config["day"])
		assert.True(t, runs[0].Tags.Has(model.TagBackfillID, bf.ID))
		assert.True(t, runs[0].Tags.Has(model.TagPartitionSet, "daily"))
		// Partition-level tags survive the backfill stamps.
		assert.True(t, runs[0].Tags.Has("flavor", "daily"))
	}
}

func TestLaunchSelectedPartitionsOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2026-03-01", "2026-03-02", "2026-03-03")

	bf, err := h.bf.Launch(ctx, backfill.Request{
		PartitionSetName: "daily",
		PartitionNames:   []string{"2026-03-02"},
	})
	require.NoError(t, err)
	h.launcher.Wait()

	assert.Len(t, bf.LaunchedRunIDs, 1)
	assert.Equal(t, model.StringList{"2026-03-02"}, bf.PartitionNames)
}

func TestLaunchUnknownPartitionCreatesNoRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2026-03-01")

	_, err := h.bf.Launch(ctx, backfill.Request{
		PartitionSetName: "daily",
		PartitionNames:   []string{"2026-03-01", "2099-01-01"},
	})
	require.Error(t, err)
	assert.Equal(t, exception.KindNotFound, exception.KindOf(err))

	runs, err := h.store.ListRuns(ctx, repository.RunsFilter{}, "", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLaunchUnknownPartitionSetIsNotFound(t *testing.T) {
	h := newHarness(t, "2026-03-01")

	_, err := h.bf.Launch(context.Background(), backfill.Request{PartitionSetName: "ghost"})
	require.Error(t, err)
	assert.Equal(t, exception.KindNotFound, exception.KindOf(err))
}

func TestLaunchWithReexecutionSteps(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2026-03-01")

	bf, err := h.bf.Launch(ctx, backfill.Request{
		PartitionSetName: "daily",
		ReexecutionSteps: []string{"a"},
	})
	require.NoError(t, err)
	h.launcher.Wait()

	require.Len(t, bf.LaunchedRunIDs, 1)
	run, err := h.store.FindRunByID(ctx, bf.LaunchedRunIDs[0])
	require.NoError(t, err)
	assert.Equal(t, model.StringList{"a"}, run.StepKeys)
}

func TestLaunchFromFailureSkipsSucceededPartitions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2026-03-01", "2026-03-02")

	// First backfill launches both partitions to SUCCESS.
	first, err := h.bf.Launch(ctx, backfill.Request{PartitionSetName: "daily"})
	require.NoError(t, err)
	h.launcher.Wait()
	require.Len(t, first.LaunchedRunIDs, 2)

	// Fail the most recent run of the second partition after the fact.
	runs, err := h.store.ListRuns(ctx, repository.RunsFilter{
		Tags: model.TagMap{model.TagPartition: {"2026-03-02"}},
	}, "", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	failed := runs[0]
	failed.Status = model.RunStatusFailure
	require.NoError(t, h.store.UpdateRun(ctx, failed))

	second, err := h.bf.Launch(ctx, backfill.Request{
		PartitionSetName: "daily",
		FromFailure:      true,
	})
	require.NoError(t, err)
	h.launcher.Wait()

	assert.Equal(t, model.StringList{"2026-03-02"}, second.PartitionNames)
	assert.Len(t, second.LaunchedRunIDs, 1)
}

func TestLaunchFromFailureKeepsPartitionsWithoutPriorRuns(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2026-03-01", "2026-03-02")

	bf, err := h.bf.Launch(ctx, backfill.Request{
		PartitionSetName: "daily",
		FromFailure:      true,
	})
	require.NoError(t, err)
	h.launcher.Wait()

	assert.Len(t, bf.LaunchedRunIDs, 2)
}

func TestLaunchAggregatesPartialFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2026-03-01", "2026-03-02")

	// An unknown reexecution step makes every partition launch fail before a
	// run is created.

	bf, err := h.bf.Launch(ctx, backfill.Request{
		PartitionSetName: "daily",
		ReexecutionSteps: []string{"no_such_step"},
	})
	require.Error(t, err)
	h.launcher.Wait()

	require.NotNil(t, bf)
	assert.Equal(t, model.BackfillStatusFailed, bf.Status)
	assert.Equal(t, 2, bf.FailedPartitions)
	assert.Empty(t, bf.LaunchedRunIDs)
	// Both partition failures surface in the aggregated error.
	assert.Contains(t, err.Error(), "2026-03-01")
	assert.Contains(t, err.Error(), "2026-03-02")
}

func TestGetBackfillRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2026-03-01")

	bf, err := h.bf.Launch(ctx, backfill.Request{PartitionSetName: "daily"})
	require.NoError(t, err)
	h.launcher.Wait()

	loaded, err := h.bf.Get(ctx, bf.ID)
	require.NoError(t, err)
	assert.Equal(t, bf.ID, loaded.ID)
	assert.Equal(t, model.BackfillStatusCompleted, loaded.Status)

	_, err = h.bf.Get(ctx, "ghost")
	require.Error(t, err)
	assert.Equal(t, exception.KindNotFound, exception.KindOf(err))
}

func TestLaunchManyPartitionsUnderConcurrencyBound(t *testing.T) {
	ctx := context.Background()
	days := make([]string, 10)
	for i := range days {
		days[i] = fmt.Sprintf("2026-04-%02d", i+1)
	}
	h := newHarness(t, days...)

	bf, err := h.bf.Launch(ctx, backfill.Request{PartitionSetName: "daily"})
	require.NoError(t, err)
	h.launcher.Wait()

	assert.Len(t, bf.LaunchedRunIDs, 10)
	assert.Zero(t, bf.FailedPartitions)
}
