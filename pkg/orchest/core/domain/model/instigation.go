package model

import (
	"time"
)

// InstigatorType distinguishes schedule-driven ticks from sensor-driven ticks.
type InstigatorType string

const (
	InstigatorTypeSchedule InstigatorType = "SCHEDULE"
	InstigatorTypeSensor   InstigatorType = "SENSOR"
)

// InstigationStatus represents the run-status of a schedule or sensor.
type InstigationStatus string

const (
	InstigationStatusRunning InstigationStatus = "RUNNING"
	InstigationStatusStopped InstigationStatus = "STOPPED"
	// InstigationStatusEnded marks definitions removed from the workspace whose
	// historical state is retained.
	InstigationStatusEnded InstigationStatus = "ENDED"
)

// TickStatus represents the lifecycle of a recorded tick:
// STARTED -> SUCCESS | SKIPPED | FAILURE.
type TickStatus string

const (
	TickStatusStarted TickStatus = "STARTED"
	TickStatusSuccess TickStatus = "SUCCESS"
	TickStatusSkipped TickStatus = "SKIPPED"
	TickStatusFailure TickStatus = "FAILURE"
)

// Tick is one recorded evaluation of a schedule or sensor at a point in time.
// For schedules the Timestamp is the exact cron-due timestamp and at most one
// tick exists per (schedule, timestamp). For sensors one tick is recorded per
// evaluation pass and RunIDs carries every run the pass launched.
type Tick struct {
	ID             string
	InstigatorName string
	InstigatorType InstigatorType
	Timestamp      time.Time
	Status         TickStatus
	RunIDs         StringList
	Error          *ErrorInfo
	SkipReason     string
	CreateTime     time.Time
	LastUpdated    time.Time
}

// NewTick creates a STARTED tick, the write-ahead marker recorded before any
// launch is attempted.
func NewTick(instigatorName string, instigatorType InstigatorType, timestamp time.Time) *Tick {
	now := time.Now()
	return &Tick{
		ID:             NewID(),
		InstigatorName: instigatorName,
		InstigatorType: instigatorType,
		Timestamp:      timestamp,
		Status:         TickStatusStarted,
		RunIDs:         make(StringList, 0),
		CreateTime:     now,
		LastUpdated:    now,
	}
}

// MarkAsSuccess records the launched runs on the tick.
func (t *Tick) MarkAsSuccess(runIDs ...string) {
	t.Status = TickStatusSuccess
	t.RunIDs = append(t.RunIDs, runIDs...)
	t.LastUpdated = time.Now()
}

// MarkAsSkipped records that the tick produced no run.
func (t *Tick) MarkAsSkipped(reason string) {
	t.Status = TickStatusSkipped
	t.SkipReason = reason
	t.LastUpdated = time.Now()
}

// MarkAsFailure records the error payload on the tick. Tick failures never
// halt subsequent passes.
func (t *Tick) MarkAsFailure(err error) {
	t.Status = TickStatusFailure
	t.Error = NewErrorInfo(err)
	t.LastUpdated = time.Now()
}

// ScheduleState tracks the instigation state of one schedule definition.
// Stopping a schedule halts future tick computation but never deletes
// historical ticks.
type ScheduleState struct {
	ScheduleName   string
	CronExpression string
	Status         InstigationStatus
	// LastTickTimestamp is the latest cron-due timestamp for which a tick has
	// been recorded. Catch-up resumes from here.
	LastTickTimestamp *time.Time
	CreateTime        time.Time
	LastUpdated       time.Time
}

// NewScheduleState creates a STOPPED schedule state for a definition.
func NewScheduleState(scheduleName, cronExpression string) *ScheduleState {
	now := time.Now()
	return &ScheduleState{
		ScheduleName:   scheduleName,
		CronExpression: cronExpression,
		Status:         InstigationStatusStopped,
		CreateTime:     now,
		LastUpdated:    now,
	}
}

// SensorState tracks the instigation state of one sensor definition. The
// Cursor is opaque to the engine: it is handed to the evaluation callback and
// persisted only after all launches of a pass have been attempted.
type SensorState struct {
	SensorName  string
	Status      InstigationStatus
	Cursor      string
	CreateTime  time.Time
	LastUpdated time.Time
}

// NewSensorState creates a STOPPED sensor state for a definition.
func NewSensorState(sensorName string) *SensorState {
	now := time.Now()
	return &SensorState{
		SensorName:  sensorName,
		Status:      InstigationStatusStopped,
		CreateTime:  now,
		LastUpdated: now,
	}
}
