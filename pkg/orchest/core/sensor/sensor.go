// Package sensor evaluates externally-defined conditions on an interval and
// launches the runs they request. Each evaluation pass records exactly one
// tick, and the sensor's cursor is persisted only after every requested launch
// has been attempted, so launches are at-least-once across crashes.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/swell/pkg/orchest/core/config"
	"github.com/tigerroll/swell/pkg/orchest/core/controller"
	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/core/metrics"
	"github.com/tigerroll/swell/pkg/orchest/core/workspace"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
	logger "github.com/tigerroll/swell/pkg/orchest/support/util/logger"
)

// Engine is the sensor tick engine.
type Engine struct {
	ws       *workspace.Workspace
	store    repository.InstigationStore
	ctrl     *controller.RunController
	recorder metrics.MetricRecorder
	cfg      *config.EngineConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a sensor Engine.
func NewEngine(ws *workspace.Workspace, store repository.Store, ctrl *controller.RunController, recorder metrics.MetricRecorder, cfg *config.EngineConfig) *Engine {
	return &Engine{
		ws:       ws,
		store:    store,
		ctrl:     ctrl,
		recorder: recorder,
		cfg:      cfg,
	}
}

// StartSensor flips a sensor to RUNNING. The persisted cursor, if any, is
// kept: restarting a sensor resumes from where it left off.
func (e *Engine) StartSensor(ctx context.Context, name string) (*model.SensorState, error) {
	if _, err := e.ws.SensorByName(name); err != nil {
		return nil, err
	}

	state, err := e.store.FindSensorState(ctx, name)
	if errors.Is(err, repository.ErrSensorStateNotFound) {
		state = model.NewSensorState(name)
	} else if err != nil {
		return nil, exception.NewInternalError("sensor",
			fmt.Sprintf("Failed to load state of sensor '%s'", name), err)
	}

	state.Status = model.InstigationStatusRunning
	state.LastUpdated = time.Now()
	if err := e.store.SaveSensorState(ctx, state); err != nil {
		return nil, exception.NewInternalError("sensor",
			fmt.Sprintf("Failed to persist state of sensor '%s'", name), err)
	}
	logger.Infof("Sensor: sensor '%s' started.", name)
	return state, nil
}

// StopSensor flips a sensor to STOPPED. Cursor and tick history are retained.
func (e *Engine) StopSensor(ctx context.Context, name string) (*model.SensorState, error) {
	state, err := e.store.FindSensorState(ctx, name)
	if errors.Is(err, repository.ErrSensorStateNotFound) {
		return nil, exception.NewNotFoundError("sensor",
			fmt.Sprintf("Sensor '%s' has no state", name), err)
	} else if err != nil {
		return nil, exception.NewInternalError("sensor",
			fmt.Sprintf("Failed to load state of sensor '%s'", name), err)
	}

	state.Status = model.InstigationStatusStopped
	state.LastUpdated = time.Now()
	if err := e.store.SaveSensorState(ctx, state); err != nil {
		return nil, exception.NewInternalError("sensor",
			fmt.Sprintf("Failed to persist state of sensor '%s'", name), err)
	}
	logger.Infof("Sensor: sensor '%s' stopped.", name)
	return state, nil
}

// RunPass evaluates every RUNNING sensor once. Errors on one sensor never halt
// the others.
func (e *Engine) RunPass(ctx context.Context, now time.Time) {
	states, err := e.store.ListSensorStates(ctx)
	if err != nil {
		logger.Errorf("Sensor: failed to list sensor states: %v", err)
		return
	}

	for _, state := range states {
		if state.Status != model.InstigationStatusRunning {
			continue
		}
		def, err := e.ws.SensorByName(state.SensorName)
		if err != nil {
			state.Status = model.InstigationStatusEnded
			state.LastUpdated = time.Now()
			if serr := e.store.SaveSensorState(ctx, state); serr != nil {
				logger.Errorf("Sensor: failed to end state of removed sensor '%s': %v", state.SensorName, serr)
			}
			logger.Warnf("Sensor: sensor '%s' no longer defined; state marked ENDED.", state.SensorName)
			continue
		}
		e.evaluateSensor(ctx, def, state, now)
	}
}

// evaluateSensor runs one evaluation pass of a sensor: record a STARTED tick,
// call the evaluation callback with the last persisted cursor, launch every
// requested run, then finalize the tick and persist the new cursor.
func (e *Engine) evaluateSensor(ctx context.Context, def *workspace.SensorDefinition, state *model.SensorState, now time.Time) {
	tick := model.NewTick(def.Name, model.InstigatorTypeSensor, now)
	if err := e.store.CreateTick(ctx, tick); err != nil {
		logger.Errorf("Sensor: failed to record tick for sensor '%s': %v", def.Name, err)
		return
	}
	defer func() {
		if err := e.store.UpdateTick(ctx, tick); err != nil {
			logger.Errorf("Sensor: failed to finalize tick '%s' of sensor '%s': %v", tick.ID, def.Name, err)
		}
		e.recorder.RecordTick(ctx, tick)
	}()

	result, err := def.Evaluate(ctx, state.Cursor)
	if err != nil {
		logger.Warnf("Sensor: evaluation of sensor '%s' failed: %v", def.Name, err)
		tick.MarkAsFailure(err)
		return
	}
	if result == nil || len(result.Requests) == 0 {
		reason := "Evaluation requested no runs."
		if result != nil && result.SkipReason != "" {
			reason = result.SkipReason
		}
		tick.MarkAsSkipped(reason)
		if result != nil {
			e.persistCursor(ctx, state, result.Cursor)
		}
		return
	}

	var launchErrs *multierror.Error
	launched := make([]string, 0, len(result.Requests))
	for _, req := range result.Requests {
		run, err := e.launchRequestedRun(ctx, def, req)
		if err != nil {
			launchErrs = multierror.Append(launchErrs, fmt.Errorf("job %q: %w", req.JobName, err))
			continue
		}
		launched = append(launched, run.ID)
	}

	// The cursor only moves once every launch has been attempted: a crash
	// mid-pass re-evaluates from the old cursor rather than dropping requests.
	e.persistCursor(ctx, state, result.Cursor)

	if launchErrs.ErrorOrNil() != nil {
		logger.Warnf("Sensor: %d of %d launches failed for sensor '%s': %v",
			launchErrs.Len(), len(result.Requests), def.Name, launchErrs)
		tick.MarkAsFailure(launchErrs.ErrorOrNil())
		tick.RunIDs = append(tick.RunIDs, launched...)
		return
	}
	tick.MarkAsSuccess(launched...)
}

// launchRequestedRun launches one sensor-requested run, stamping the
// sensor-name tag.
func (e *Engine) launchRequestedRun(ctx context.Context, def *workspace.SensorDefinition, req workspace.RunRequest) (*model.Run, error) {
	tags := req.Tags.Copy()
	tags.Add(model.TagSensor, def.Name)
	return e.ctrl.Launch(ctx, controller.LaunchRequest{
		JobName:  req.JobName,
		StepKeys: req.StepKeys,
		Config:   req.Config,
		Mode:     req.Mode,
		Tags:     tags,
	})
}

// persistCursor saves the sensor's new cursor when the evaluation changed it.
func (e *Engine) persistCursor(ctx context.Context, state *model.SensorState, cursor string) {
	if cursor == state.Cursor {
		return
	}
	state.Cursor = cursor
	state.LastUpdated = time.Now()
	if err := e.store.SaveSensorState(ctx, state); err != nil {
		logger.Errorf("Sensor: failed to persist cursor of sensor '%s': %v", state.SensorName, err)
	}
}

// Start launches the periodic pass loop. Idempotent while running.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.cfg.SensorInterval)
		defer ticker.Stop()
		logger.Infof("Sensor: pass loop started (interval %s).", e.cfg.SensorInterval)
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				e.RunPass(ctx, now)
			}
		}
	}()
}

// Stop halts the pass loop and waits for the in-flight pass to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Infof("Sensor: pass loop stopped.")
}
