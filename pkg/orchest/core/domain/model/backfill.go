package model

import (
	"time"
)

// Partition is a named subdivision of a job's input space. Each partition
// deterministically maps to a run configuration and tag set.
type Partition struct {
	Name   string
	Config RunConfig
	Tags   TagMap
}

// Well-known tag keys stamped on backfill-launched runs.
const (
	TagBackfillID   = "swell/backfill"
	TagPartition    = "swell/partition"
	TagPartitionSet = "swell/partition_set"
	TagSchedule     = "swell/schedule_name"
	TagSensor       = "swell/sensor_name"
)

// BackfillStatus represents the state of a backfill record.
type BackfillStatus string

const (
	BackfillStatusRequested BackfillStatus = "REQUESTED"
	BackfillStatusCompleted BackfillStatus = "COMPLETED"
	BackfillStatusFailed    BackfillStatus = "FAILED"
)

// Backfill is a bulk launch of runs across multiple partitions of a partition
// set. Partition launches are best effort: the record enumerates exactly the
// run ids that were successfully launched and counts the partitions that
// failed to launch.
type Backfill struct {
	ID               string
	PartitionSetName string
	PartitionNames   StringList
	// ReexecutionSteps restricts each launched run to a plan subset when set.
	ReexecutionSteps StringList
	FromFailure      bool
	Status           BackfillStatus
	LaunchedRunIDs   StringList
	FailedPartitions int
	CreateTime       time.Time
	LastUpdated      time.Time
}

// NewBackfill creates a REQUESTED backfill record.
func NewBackfill(partitionSetName string, partitionNames []string, reexecutionSteps []string, fromFailure bool) *Backfill {
	now := time.Now()
	return &Backfill{
		ID:               NewID(),
		PartitionSetName: partitionSetName,
		PartitionNames:   append(StringList(nil), partitionNames...),
		ReexecutionSteps: append(StringList(nil), reexecutionSteps...),
		FromFailure:      fromFailure,
		Status:           BackfillStatusRequested,
		LaunchedRunIDs:   make(StringList, 0),
		CreateTime:       now,
		LastUpdated:      now,
	}
}

// MarkAsCompleted finalizes the backfill record with its launch outcome.
func (b *Backfill) MarkAsCompleted(launchedRunIDs []string, failedPartitions int) {
	b.LaunchedRunIDs = append(StringList(nil), launchedRunIDs...)
	b.FailedPartitions = failedPartitions
	if failedPartitions > 0 && len(launchedRunIDs) == 0 {
		b.Status = BackfillStatusFailed
	} else {
		b.Status = BackfillStatusCompleted
	}
	b.LastUpdated = time.Now()
}
