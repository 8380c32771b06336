package sql

import (
	"encoding/json"
	"time"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
)

// --- Mapper functions ---

func fromDomainRun(run *model.Run) *RunEntity {
	if run == nil {
		return nil
	}
	return &RunEntity{
		ID:          run.ID,
		JobName:     run.JobName,
		StepKeys:    run.StepKeys,
		Config:      run.Config,
		Mode:        run.Mode,
		Tags:        run.Tags,
		Status:      run.Status,
		RootRunID:   run.RootRunID,
		ParentRunID: run.ParentRunID,
		SnapshotID:  run.SnapshotID,
		CreateTime:  run.CreateTime,
		StartTime:   run.StartTime,
		EndTime:     run.EndTime,
		LastUpdated: run.LastUpdated,
	}
}

func toDomainRun(entity *RunEntity) *model.Run {
	if entity == nil {
		return nil
	}
	return &model.Run{
		ID:          entity.ID,
		JobName:     entity.JobName,
		StepKeys:    entity.StepKeys,
		Config:      entity.Config,
		Mode:        entity.Mode,
		Tags:        entity.Tags,
		Status:      entity.Status,
		RootRunID:   entity.RootRunID,
		ParentRunID: entity.ParentRunID,
		SnapshotID:  entity.SnapshotID,
		CreateTime:  entity.CreateTime,
		StartTime:   entity.StartTime,
		EndTime:     entity.EndTime,
		LastUpdated: entity.LastUpdated,
	}
}

// marshalPayload renders an event payload as its JSON column value, empty for
// an absent payload.
func marshalPayload(v interface{}) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func fromDomainEvent(ev model.Event) *EventEntity {
	entity := &EventEntity{
		RunID:     ev.RunID,
		Cursor:    ev.Cursor,
		Timestamp: ev.Timestamp,
		Level:     ev.Level,
		Type:      ev.Type,
		Message:   ev.Message,
		StepKey:   ev.StepKey,
	}
	if ev.Error != nil {
		entity.Error = marshalPayload(ev.Error)
	}
	if ev.Materialization != nil {
		entity.Materialization = marshalPayload(ev.Materialization)
	}
	if ev.TypeCheck != nil {
		entity.TypeCheck = marshalPayload(ev.TypeCheck)
	}
	if ev.Hook != nil {
		entity.Hook = marshalPayload(ev.Hook)
	}
	return entity
}

func toDomainEvent(entity *EventEntity) model.Event {
	ev := model.Event{
		RunID:     entity.RunID,
		Cursor:    entity.Cursor,
		Timestamp: entity.Timestamp,
		Level:     entity.Level,
		Type:      entity.Type,
		Message:   entity.Message,
		StepKey:   entity.StepKey,
	}
	if entity.Error != "" {
		var info model.ErrorInfo
		if json.Unmarshal([]byte(entity.Error), &info) == nil {
			ev.Error = &info
		}
	}
	if entity.Materialization != "" {
		var p model.MaterializationPayload
		if json.Unmarshal([]byte(entity.Materialization), &p) == nil {
			ev.Materialization = &p
		}
	}
	if entity.TypeCheck != "" {
		var p model.TypeCheckPayload
		if json.Unmarshal([]byte(entity.TypeCheck), &p) == nil {
			ev.TypeCheck = &p
		}
	}
	if entity.Hook != "" {
		var p model.HookPayload
		if json.Unmarshal([]byte(entity.Hook), &p) == nil {
			ev.Hook = &p
		}
	}
	return ev
}

func fromDomainScheduleState(state *model.ScheduleState) *ScheduleStateEntity {
	if state == nil {
		return nil
	}
	return &ScheduleStateEntity{
		ScheduleName:      state.ScheduleName,
		CronExpression:    state.CronExpression,
		Status:            state.Status,
		LastTickTimestamp: state.LastTickTimestamp,
		CreateTime:        state.CreateTime,
		LastUpdated:       state.LastUpdated,
	}
}

func toDomainScheduleState(entity *ScheduleStateEntity) *model.ScheduleState {
	if entity == nil {
		return nil
	}
	return &model.ScheduleState{
		ScheduleName:      entity.ScheduleName,
		CronExpression:    entity.CronExpression,
		Status:            entity.Status,
		LastTickTimestamp: entity.LastTickTimestamp,
		CreateTime:        entity.CreateTime,
		LastUpdated:       entity.LastUpdated,
	}
}

func fromDomainSensorState(state *model.SensorState) *SensorStateEntity {
	if state == nil {
		return nil
	}
	return &SensorStateEntity{
		SensorName:  state.SensorName,
		Status:      state.Status,
		Cursor:      state.Cursor,
		CreateTime:  state.CreateTime,
		LastUpdated: state.LastUpdated,
	}
}

func toDomainSensorState(entity *SensorStateEntity) *model.SensorState {
	if entity == nil {
		return nil
	}
	return &model.SensorState{
		SensorName:  entity.SensorName,
		Status:      entity.Status,
		Cursor:      entity.Cursor,
		CreateTime:  entity.CreateTime,
		LastUpdated: entity.LastUpdated,
	}
}

func fromDomainTick(tick *model.Tick) *TickEntity {
	if tick == nil {
		return nil
	}
	entity := &TickEntity{
		ID:             tick.ID,
		InstigatorName: tick.InstigatorName,
		InstigatorType: tick.InstigatorType,
		TimestampNanos: tick.Timestamp.UnixNano(),
		Status:         tick.Status,
		RunIDs:         tick.RunIDs,
		SkipReason:     tick.SkipReason,
		CreateTime:     tick.CreateTime,
		LastUpdated:    tick.LastUpdated,
	}
	if tick.Error != nil {
		entity.Error = marshalPayload(tick.Error)
	}
	return entity
}

func toDomainTick(entity *TickEntity) *model.Tick {
	if entity == nil {
		return nil
	}
	tick := &model.Tick{
		ID:             entity.ID,
		InstigatorName: entity.InstigatorName,
		InstigatorType: entity.InstigatorType,
		Timestamp:      time.Unix(0, entity.TimestampNanos),
		Status:         entity.Status,
		RunIDs:         entity.RunIDs,
		SkipReason:     entity.SkipReason,
		CreateTime:     entity.CreateTime,
		LastUpdated:    entity.LastUpdated,
	}
	if entity.Error != "" {
		var info model.ErrorInfo
		if json.Unmarshal([]byte(entity.Error), &info) == nil {
			tick.Error = &info
		}
	}
	return tick
}

func fromDomainBackfill(backfill *model.Backfill) *BackfillEntity {
	if backfill == nil {
		return nil
	}
	return &BackfillEntity{
		ID:               backfill.ID,
		PartitionSetName: backfill.PartitionSetName,
		PartitionNames:   backfill.PartitionNames,
		ReexecutionSteps: backfill.ReexecutionSteps,
		FromFailure:      backfill.FromFailure,
		Status:           backfill.Status,
		LaunchedRunIDs:   backfill.LaunchedRunIDs,
		FailedPartitions: backfill.FailedPartitions,
		CreateTime:       backfill.CreateTime,
		LastUpdated:      backfill.LastUpdated,
	}
}

func toDomainBackfill(entity *BackfillEntity) *model.Backfill {
	if entity == nil {
		return nil
	}
	return &model.Backfill{
		ID:               entity.ID,
		PartitionSetName: entity.PartitionSetName,
		PartitionNames:   entity.PartitionNames,
		ReexecutionSteps: entity.ReexecutionSteps,
		FromFailure:      entity.FromFailure,
		Status:           entity.Status,
		LaunchedRunIDs:   entity.LaunchedRunIDs,
		FailedPartitions: entity.FailedPartitions,
		CreateTime:       entity.CreateTime,
		LastUpdated:      entity.LastUpdated,
	}
}
