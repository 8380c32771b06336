// Package defs declares the demo repository location: one linear
// extract-transform-load job with a schedule, a sensor and a daily partition
// set.
package defs

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/swell/pkg/orchest/core/config"
	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	plan "github.com/tigerroll/swell/pkg/orchest/core/plan"
	"github.com/tigerroll/swell/pkg/orchest/core/workspace"
	logger "github.com/tigerroll/swell/pkg/orchest/support/util/logger"
)

// JobName is the name of the demo job.
const JobName = "linear_etl"

// newLinearJob builds the three-step linear job: extract -> transform -> load.
func newLinearJob() *plan.JobDefinition {
	return &plan.JobDefinition{
		Name: JobName,
		Mode: "default",
		ConfigSchema: config.Schema{
			"dataset": {Type: config.TypeString, Required: true},
			"limit":   {Type: config.TypeInt},
		},
		Steps: []plan.StepDefinition{
			{
				Key:     "extract",
				Outputs: []plan.OutputDefinition{{Name: "result"}},
				Compute: func(ctx context.Context, cfg model.RunConfig) error {
					logger.Infof("extract: pulling dataset %v", cfg["dataset"])
					return nil
				},
			},
			{
				Key: "transform",
				Inputs: []plan.InputDefinition{
					{Name: "rows", Upstreams: []plan.UpstreamRef{{StepKey: "extract", OutputName: "result"}}},
				},
				Outputs: []plan.OutputDefinition{{Name: "result"}},
				Compute: func(ctx context.Context, cfg model.RunConfig) error {
					logger.Infof("transform: normalizing rows")
					return nil
				},
			},
			{
				Key: "load",
				Inputs: []plan.InputDefinition{
					{Name: "rows", Upstreams: []plan.UpstreamRef{{StepKey: "transform", OutputName: "result"}}},
				},
				Compute: func(ctx context.Context, cfg model.RunConfig) error {
					logger.Infof("load: writing rows")
					return nil
				},
			},
		},
	}
}

// newHourlySchedule launches the job at the top of every hour.
func newHourlySchedule() *workspace.ScheduleDefinition {
	return &workspace.ScheduleDefinition{
		Name:           "linear_etl_hourly",
		JobName:        JobName,
		CronExpression: "0 * * * *",
		RunConfigFn: func(t time.Time) model.RunConfig {
			return model.RunConfig{"dataset": "hourly-" + t.Format("2006-01-02T15")}
		},
	}
}

// newBacklogSensor requests one run whenever its cursor is behind today.
func newBacklogSensor() *workspace.SensorDefinition {
	return &workspace.SensorDefinition{
		Name: "linear_etl_backlog",
		Evaluate: func(ctx context.Context, cursor string) (*workspace.SensorResult, error) {
			today := time.Now().Format("2006-01-02")
			if cursor == today {
				return &workspace.SensorResult{Cursor: cursor, SkipReason: "already caught up"}, nil
			}
			return &workspace.SensorResult{
				Requests: []workspace.RunRequest{{
					JobName: JobName,
					Config:  model.RunConfig{"dataset": "backlog-" + today},
				}},
				Cursor: today,
			}, nil
		},
	}
}

// newDailyPartitions enumerates one partition per day of the past week.
func newDailyPartitions() *workspace.PartitionSetDefinition {
	return &workspace.PartitionSetDefinition{
		Name:    "linear_etl_daily",
		JobName: JobName,
		Partitions: func() []model.Partition {
			base := time.Now().Truncate(24 * time.Hour)
			out := make([]model.Partition, 0, 7)
			for i := 6; i >= 0; i-- {
				day := base.AddDate(0, 0, -i).Format("2006-01-02")
				out = append(out, model.Partition{
					Name:   day,
					Config: model.RunConfig{"dataset": fmt.Sprintf("daily-%s", day)},
				})
			}
			return out
		},
	}
}

// Loader returns the workspace loader of the demo location.
func Loader() workspace.Loader {
	return func() (*workspace.Definitions, error) {
		return &workspace.Definitions{
			Jobs:          []*plan.JobDefinition{newLinearJob()},
			Schedules:     []*workspace.ScheduleDefinition{newHourlySchedule()},
			Sensors:       []*workspace.SensorDefinition{newBacklogSensor()},
			PartitionSets: []*workspace.PartitionSetDefinition{newDailyPartitions()},
		}, nil
	}
}
