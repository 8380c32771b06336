package workspace_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	plan "github.com/tigerroll/swell/pkg/orchest/core/plan"
	"github.com/tigerroll/swell/pkg/orchest/core/workspace"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

func defsWithJob(jobName string) *workspace.Definitions {
	return &workspace.Definitions{
		Jobs: []*plan.JobDefinition{{
			Name:  jobName,
			Steps: []plan.StepDefinition{{Key: "a"}},
		}},
		Schedules: []*workspace.ScheduleDefinition{{
			Name:           "hourly",
			JobName:        jobName,
			CronExpression: "0 * * * *",
		}},
		Sensors: []*workspace.SensorDefinition{{Name: "watcher"}},
		PartitionSets: []*workspace.PartitionSetDefinition{{
			Name:    "daily",
			JobName: jobName,
			Partitions: func() []model.Partition {
				return []model.Partition{
					{Name: "2026-03-01", Config: model.RunConfig{"day": "2026-03-01"}},
					{Name: "2026-03-02", Config: model.RunConfig{"day": "2026-03-02"}},
				}
			},
		}},
	}
}

func TestNewFailsWhenInitialLoadFails(t *testing.T) {
	_, err := workspace.New(func() (*workspace.Definitions, error) {
		return nil, errors.New("source unreachable")
	})
	require.Error(t, err)
	assert.Equal(t, exception.KindInternal, exception.KindOf(err))
}

func TestLookupsByName(t *testing.T) {
	ws, err := workspace.New(func() (*workspace.Definitions, error) {
		return defsWithJob("etl"), nil
	})
	require.NoError(t, err)

	job, err := ws.JobByName("etl")
	require.NoError(t, err)
	assert.Equal(t, "etl", job.Name)

	sched, err := ws.ScheduleByName("hourly")
	require.NoError(t, err)
	assert.Equal(t, "0 * * * *", sched.CronExpression)

	_, err = ws.SensorByName("watcher")
	require.NoError(t, err)

	ps, err := ws.PartitionSetByName("daily")
	require.NoError(t, err)
	assert.Len(t, ps.Partitions(), 2)

	for _, lookup := range []func() error{
		func() error { _, err := ws.JobByName("ghost"); return err },
		func() error { _, err := ws.ScheduleByName("ghost"); return err },
		func() error { _, err := ws.SensorByName("ghost"); return err },
		func() error { _, err := ws.PartitionSetByName("ghost"); return err },
	} {
		err := lookup()
		require.Error(t, err)
		assert.Equal(t, exception.KindNotFound, exception.KindOf(err))
	}
}

func TestPartitionByName(t *testing.T) {
	ws, err := workspace.New(func() (*workspace.Definitions, error) {
		return defsWithJob("etl"), nil
	})
	require.NoError(t, err)

	ps, err := ws.PartitionSetByName("daily")
	require.NoError(t, err)

	p, ok := ps.PartitionByName("2026-03-02")
	require.True(t, ok)
	assert.Equal(t, "2026-03-02", p.Config["day"])

	_, ok = ps.PartitionByName("2099-01-01")
	assert.False(t, ok)
}

func TestReloadSwapsDefinitions(t *testing.T) {
	jobName := "etl"
	ws, err := workspace.New(func() (*workspace.Definitions, error) {
		return defsWithJob(jobName), nil
	})
	require.NoError(t, err)

	jobName = "reporting"
	require.NoError(t, ws.Reload())

	_, err = ws.JobByName("reporting")
	require.NoError(t, err)
	_, err = ws.JobByName("etl")
	require.Error(t, err)
	assert.Equal(t, exception.KindNotFound, exception.KindOf(err))
}

func TestReloadFailureKeepsPreviousSnapshot(t *testing.T) {
	fail := false
	ws, err := workspace.New(func() (*workspace.Definitions, error) {
		if fail {
			return nil, errors.New("source unreachable")
		}
		return defsWithJob("etl"), nil
	})
	require.NoError(t, err)

	fail = true
	err = ws.Reload()
	require.Error(t, err)
	assert.Equal(t, exception.KindInternal, exception.KindOf(err))

	// The previously loaded definitions stay active.
	_, err = ws.JobByName("etl")
	assert.NoError(t, err)
}

func TestNotificationsOnReload(t *testing.T) {
	fail := false
	ws, err := workspace.New(func() (*workspace.Definitions, error) {
		if fail {
			return nil, errors.New("source unreachable")
		}
		return defsWithJob("etl"), nil
	})
	require.NoError(t, err)

	ch := ws.Notifications()

	require.NoError(t, ws.Reload())
	fail = true
	require.Error(t, ws.Reload())

	reloaded := receiveChange(t, ch)
	assert.Equal(t, workspace.LocationStateReloaded, reloaded.Kind)
	assert.Nil(t, reloaded.Error)

	errored := receiveChange(t, ch)
	assert.Equal(t, workspace.LocationStateErrored, errored.Kind)
	require.NotNil(t, errored.Error)
	assert.Contains(t, errored.Error.Message, "reload failed")
}

func receiveChange(t *testing.T, ch <-chan workspace.LocationStateChange) workspace.LocationStateChange {
	t.Helper()
	select {
	case change := <-ch:
		return change
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a location-state change")
		return workspace.LocationStateChange{}
	}
}
