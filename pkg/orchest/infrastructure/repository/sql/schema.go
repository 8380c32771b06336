package sql

import (
	"time"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
)

// RunEntity is a schema model used for persistence.
type RunEntity struct {
	ID          string `gorm:"primaryKey"`
	JobName     string `gorm:"index"`
	StepKeys    model.StringList
	Config      model.RunConfig
	Mode        string
	Tags        model.TagMap
	Status      model.RunStatus `gorm:"index"`
	RootRunID   string
	ParentRunID string
	SnapshotID  string `gorm:"index"`
	CreateTime  time.Time
	StartTime   *time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	// Seq orders runs for newest-first listing without relying on wall-clock
	// uniqueness.
	Seq int64 `gorm:"autoIncrement;uniqueIndex"`
}

func (RunEntity) TableName() string {
	return "swell_run"
}

// EventEntity is a schema model used for persistence. Payloads are stored as
// serialized JSON columns.
type EventEntity struct {
	RunID     string `gorm:"primaryKey;index:idx_run_cursor,unique"`
	Cursor    int64  `gorm:"primaryKey;index:idx_run_cursor,unique"`
	Timestamp time.Time
	Level     model.EventLevel
	Type      model.EventType
	Message   string
	StepKey   string
	// Error, Materialization, TypeCheck and Hook hold the JSON rendering of the
	// corresponding event payload, empty when absent.
	Error           string
	Materialization string
	TypeCheck       string
	Hook            string
}

func (EventEntity) TableName() string {
	return "swell_run_event"
}

// ScheduleStateEntity is a schema model used for persistence.
type ScheduleStateEntity struct {
	ScheduleName      string `gorm:"primaryKey"`
	CronExpression    string
	Status            model.InstigationStatus
	LastTickTimestamp *time.Time
	CreateTime        time.Time
	LastUpdated       time.Time
}

func (ScheduleStateEntity) TableName() string {
	return "swell_schedule_state"
}

// SensorStateEntity is a schema model used for persistence.
type SensorStateEntity struct {
	SensorName  string `gorm:"primaryKey"`
	Status      model.InstigationStatus
	Cursor      string
	CreateTime  time.Time
	LastUpdated time.Time
}

func (SensorStateEntity) TableName() string {
	return "swell_sensor_state"
}

// TickEntity is a schema model used for persistence.
type TickEntity struct {
	ID             string `gorm:"primaryKey"`
	InstigatorName string `gorm:"index:idx_instigator_ts"`
	InstigatorType model.InstigatorType
	// TimestampNanos is the due timestamp in UnixNano, keyed for the
	// per-(schedule, timestamp) uniqueness check.
	TimestampNanos int64 `gorm:"index:idx_instigator_ts"`
	Status         model.TickStatus
	RunIDs         model.StringList
	Error          string
	SkipReason     string
	CreateTime     time.Time
	LastUpdated    time.Time
	Seq            int64 `gorm:"autoIncrement;uniqueIndex"`
}

func (TickEntity) TableName() string {
	return "swell_instigation_tick"
}

// BackfillEntity is a schema model used for persistence.
type BackfillEntity struct {
	ID               string `gorm:"primaryKey"`
	PartitionSetName string `gorm:"index"`
	PartitionNames   model.StringList
	ReexecutionSteps model.StringList
	FromFailure      bool
	Status           model.BackfillStatus
	LaunchedRunIDs   model.StringList
	FailedPartitions int
	CreateTime       time.Time
	LastUpdated      time.Time
	Seq              int64 `gorm:"autoIncrement;uniqueIndex"`
}

func (BackfillEntity) TableName() string {
	return "swell_backfill"
}
