// Package workspace holds the loaded job, schedule, sensor and partition-set
// definitions, and supports reloading them from their source without touching
// historical run, event or tick records.
package workspace

import (
	"context"
	"time"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	plan "github.com/tigerroll/swell/pkg/orchest/core/plan"
)

// ScheduleDefinition declares a cron-driven instigator for a job.
type ScheduleDefinition struct {
	Name           string
	JobName        string
	CronExpression string
	// RunConfigFn builds the run configuration for a due timestamp. Nil means
	// an empty configuration.
	RunConfigFn func(t time.Time) model.RunConfig
	// TagsFn builds extra run tags for a due timestamp. Nil means none.
	TagsFn func(t time.Time) model.TagMap
	// ShouldExecute filters due timestamps. Nil means every due timestamp
	// launches; returning false records a SKIPPED tick without a run.
	ShouldExecute func(t time.Time) bool
}

// RunRequest is one run-launch request returned by a sensor evaluation.
type RunRequest struct {
	JobName  string
	Config   model.RunConfig
	Tags     model.TagMap
	StepKeys []string
	Mode     string
}

// SensorResult is the outcome of one sensor evaluation: zero or more run
// requests plus the new cursor, or a skip reason.
type SensorResult struct {
	Requests   []RunRequest
	Cursor     string
	SkipReason string
}

// SensorEvalFunc is the external condition-evaluation callback of a sensor.
// It receives the sensor's last persisted cursor.
type SensorEvalFunc func(ctx context.Context, cursor string) (*SensorResult, error)

// SensorDefinition declares an evaluation-driven instigator.
type SensorDefinition struct {
	Name     string
	Evaluate SensorEvalFunc
}

// PartitionSetDefinition names a job and enumerates its named partitions.
// Each partition deterministically maps to a run configuration and tag set.
type PartitionSetDefinition struct {
	Name    string
	JobName string
	// Partitions enumerates the set. Called lazily; must be deterministic.
	Partitions func() []model.Partition
}

// PartitionByName resolves a single partition of the set.
func (d *PartitionSetDefinition) PartitionByName(name string) (model.Partition, bool) {
	for _, p := range d.Partitions() {
		if p.Name == name {
			return p, true
		}
	}
	return model.Partition{}, false
}

// Definitions is one loaded snapshot of a repository location.
type Definitions struct {
	Jobs          []*plan.JobDefinition
	Schedules     []*ScheduleDefinition
	Sensors       []*SensorDefinition
	PartitionSets []*PartitionSetDefinition
}

// Loader produces a Definitions snapshot from its source. Reload re-invokes
// the loader and swaps the cached snapshot.
type Loader func() (*Definitions, error)
