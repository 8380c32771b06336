// Package scheduler turns cron expressions into runs. Each pass computes the
// due timestamps of every RUNNING schedule, records a tick per timestamp
// before launching, and catches up on missed timestamps within a bounded
// window.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tigerroll/swell/pkg/orchest/core/config"
	"github.com/tigerroll/swell/pkg/orchest/core/controller"
	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/core/metrics"
	"github.com/tigerroll/swell/pkg/orchest/core/workspace"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
	logger "github.com/tigerroll/swell/pkg/orchest/support/util/logger"
)

// Scheduler is the cron tick engine. It is safe to run a pass concurrently
// with Start/Stop calls; tick uniqueness in the store keeps duplicate passes
// from double-launching.
type Scheduler struct {
	ws       *workspace.Workspace
	store    repository.InstigationStore
	ctrl     *controller.RunController
	recorder metrics.MetricRecorder
	cfg      *config.EngineConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a Scheduler.
func NewScheduler(ws *workspace.Workspace, store repository.Store, ctrl *controller.RunController, recorder metrics.MetricRecorder, cfg *config.EngineConfig) *Scheduler {
	return &Scheduler{
		ws:       ws,
		store:    store,
		ctrl:     ctrl,
		recorder: recorder,
		cfg:      cfg,
	}
}

// StartSchedule flips a schedule to RUNNING. The first activation anchors the
// catch-up cursor at the current time, so timestamps that were due before the
// schedule ever ran are not launched retroactively.
func (s *Scheduler) StartSchedule(ctx context.Context, name string) (*model.ScheduleState, error) {
	def, err := s.ws.ScheduleByName(name)
	if err != nil {
		return nil, err
	}
	if _, err := cron.ParseStandard(def.CronExpression); err != nil {
		return nil, exception.NewOrchestError("scheduler",
			fmt.Sprintf("Invalid cron expression %q for schedule '%s'", def.CronExpression, name),
			err, exception.KindConfigInvalid)
	}

	state, err := s.store.FindScheduleState(ctx, name)
	if errors.Is(err, repository.ErrScheduleStateNotFound) {
		state = model.NewScheduleState(name, def.CronExpression)
	} else if err != nil {
		return nil, exception.NewInternalError("scheduler",
			fmt.Sprintf("Failed to load state of schedule '%s'", name), err)
	}

	state.Status = model.InstigationStatusRunning
	state.CronExpression = def.CronExpression
	if state.LastTickTimestamp == nil {
		now := time.Now()
		state.LastTickTimestamp = &now
	}
	state.LastUpdated = time.Now()
	if err := s.store.SaveScheduleState(ctx, state); err != nil {
		return nil, exception.NewInternalError("scheduler",
			fmt.Sprintf("Failed to persist state of schedule '%s'", name), err)
	}
	logger.Infof("Scheduler: schedule '%s' started (cron %q).", name, def.CronExpression)
	return state, nil
}

// StopSchedule flips a schedule to STOPPED. Historical ticks are retained.
func (s *Scheduler) StopSchedule(ctx context.Context, name string) (*model.ScheduleState, error) {
	state, err := s.store.FindScheduleState(ctx, name)
	if errors.Is(err, repository.ErrScheduleStateNotFound) {
		return nil, exception.NewNotFoundError("scheduler",
			fmt.Sprintf("Schedule '%s' has no state", name), err)
	} else if err != nil {
		return nil, exception.NewInternalError("scheduler",
			fmt.Sprintf("Failed to load state of schedule '%s'", name), err)
	}

	state.Status = model.InstigationStatusStopped
	state.LastUpdated = time.Now()
	if err := s.store.SaveScheduleState(ctx, state); err != nil {
		return nil, exception.NewInternalError("scheduler",
			fmt.Sprintf("Failed to persist state of schedule '%s'", name), err)
	}
	logger.Infof("Scheduler: schedule '%s' stopped.", name)
	return state, nil
}

// RunPass evaluates every RUNNING schedule once against now. Errors on one
// schedule never halt the others.
func (s *Scheduler) RunPass(ctx context.Context, now time.Time) {
	states, err := s.store.ListScheduleStates(ctx)
	if err != nil {
		logger.Errorf("Scheduler: failed to list schedule states: %v", err)
		return
	}

	for _, state := range states {
		if state.Status != model.InstigationStatusRunning {
			continue
		}
		def, err := s.ws.ScheduleByName(state.ScheduleName)
		if err != nil {
			// The definition disappeared from the workspace; end the state but
			// keep its tick history.
			state.Status = model.InstigationStatusEnded
			state.LastUpdated = time.Now()
			if serr := s.store.SaveScheduleState(ctx, state); serr != nil {
				logger.Errorf("Scheduler: failed to end state of removed schedule '%s': %v", state.ScheduleName, serr)
			}
			logger.Warnf("Scheduler: schedule '%s' no longer defined; state marked ENDED.", state.ScheduleName)
			continue
		}
		s.evaluateSchedule(ctx, def, state, now)
	}
}

// evaluateSchedule computes the due timestamps of one schedule and records a
// tick per timestamp, launching unless the definition filters the timestamp
// out.
func (s *Scheduler) evaluateSchedule(ctx context.Context, def *workspace.ScheduleDefinition, state *model.ScheduleState, now time.Time) {
	sched, err := cron.ParseStandard(def.CronExpression)
	if err != nil {
		logger.Errorf("Scheduler: invalid cron expression %q on schedule '%s': %v", def.CronExpression, def.Name, err)
		return
	}

	for _, due := range s.dueTimestamps(sched, state, now) {
		tick := model.NewTick(def.Name, model.InstigatorTypeSchedule, due)
		if err := s.store.CreateTick(ctx, tick); err != nil {
			if errors.Is(err, repository.ErrTickAlreadyRecorded) {
				// Another pass already handled this timestamp.
				s.advanceCursor(ctx, state, due)
				continue
			}
			logger.Errorf("Scheduler: failed to record tick for schedule '%s' at %s: %v", def.Name, due, err)
			return
		}

		if def.ShouldExecute != nil && !def.ShouldExecute(due) {
			tick.MarkAsSkipped(fmt.Sprintf("Execution filter rejected timestamp %s.", due.Format(time.RFC3339)))
		} else if run, err := s.launchScheduledRun(ctx, def, due); err != nil {
			logger.Warnf("Scheduler: launch failed for schedule '%s' at %s: %v", def.Name, due, err)
			tick.MarkAsFailure(err)
		} else {
			tick.MarkAsSuccess(run.ID)
		}

		if err := s.store.UpdateTick(ctx, tick); err != nil {
			logger.Errorf("Scheduler: failed to finalize tick '%s' of schedule '%s': %v", tick.ID, def.Name, err)
		}
		s.recorder.RecordTick(ctx, tick)
		s.advanceCursor(ctx, state, due)
	}
}

// dueTimestamps lists the cron timestamps due between the catch-up cursor and
// now, in order, bounded by the catch-up window and the per-pass tick limit.
func (s *Scheduler) dueTimestamps(sched cron.Schedule, state *model.ScheduleState, now time.Time) []time.Time {
	cursor := now.Add(-s.cfg.CatchupWindow)
	if state.LastTickTimestamp != nil && state.LastTickTimestamp.After(cursor) {
		cursor = *state.LastTickTimestamp
	}

	var due []time.Time
	for next := sched.Next(cursor); !next.After(now); next = sched.Next(next) {
		due = append(due, next)
		if len(due) >= s.cfg.MaxCatchupTicks {
			break
		}
	}
	return due
}

// launchScheduledRun launches the run of one due timestamp, stamping the
// schedule-name tag.
func (s *Scheduler) launchScheduledRun(ctx context.Context, def *workspace.ScheduleDefinition, due time.Time) (*model.Run, error) {
	var runConfig model.RunConfig
	if def.RunConfigFn != nil {
		runConfig = def.RunConfigFn(due)
	}
	tags := make(model.TagMap)
	if def.TagsFn != nil {
		tags = def.TagsFn(due).Copy()
	}
	tags.Add(model.TagSchedule, def.Name)

	return s.ctrl.Launch(ctx, controller.LaunchRequest{
		JobName: def.JobName,
		Config:  runConfig,
		Tags:    tags,
	})
}

// advanceCursor moves the schedule's catch-up cursor past a handled timestamp.
func (s *Scheduler) advanceCursor(ctx context.Context, state *model.ScheduleState, due time.Time) {
	if state.LastTickTimestamp != nil && !due.After(*state.LastTickTimestamp) {
		return
	}
	ts := due
	state.LastTickTimestamp = &ts
	state.LastUpdated = time.Now()
	if err := s.store.SaveScheduleState(ctx, state); err != nil {
		logger.Errorf("Scheduler: failed to advance cursor of schedule '%s': %v", state.ScheduleName, err)
	}
}

// Start launches the periodic pass loop. Idempotent while running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.SchedulerInterval)
		defer ticker.Stop()
		logger.Infof("Scheduler: pass loop started (interval %s).", s.cfg.SchedulerInterval)
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.RunPass(ctx, now)
			}
		}
	}()
}

// Stop halts the pass loop and waits for the in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Infof("Scheduler: pass loop stopped.")
}
