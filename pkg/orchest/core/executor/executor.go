// Package executor drives the steps of an execution plan: dependency-respecting
// dispatch with bounded parallelism, per-step lifecycle events, and final run
// status resolution.
package executor

import (
	"context"
	"fmt"
	"time"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/core/eventlog"
	"github.com/tigerroll/swell/pkg/orchest/core/metrics"
	"github.com/tigerroll/swell/pkg/orchest/core/plan"
	logger "github.com/tigerroll/swell/pkg/orchest/support/util/logger"
)

// Executor executes plans in-process. Independent steps run in parallel,
// bounded by the injected concurrency limit.
type Executor struct {
	runs     repository.RunStore
	log      *eventlog.EventLog
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	// concurrency bounds parallel step dispatch within a single run.
	concurrency int
}

// NewExecutor creates an Executor with the given step concurrency bound.
// A bound below 1 is coerced to 1.
func NewExecutor(runs repository.RunStore, log *eventlog.EventLog, recorder metrics.MetricRecorder, tracer metrics.Tracer, concurrency int) *Executor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Executor{
		runs:        runs,
		log:         log,
		recorder:    recorder,
		tracer:      tracer,
		concurrency: concurrency,
	}
}

// stepResult is the completion signal of one dispatched step.
type stepResult struct {
	key string
	err error
}

// Execute runs every selected step of the plan, respecting the dependency
// graph, then resolves the run to SUCCESS or FAILURE. A failed step fails the
// run but neither cancels already-running siblings nor steps that do not
// depend on it; its downstream steps are skipped.
func (e *Executor) Execute(ctx context.Context, run *model.Run, p *model.ExecutionPlan, jobDef *plan.JobDefinition) {
	ctx, endSpan := e.tracer.StartRunSpan(ctx, run)
	defer endSpan()

	deps := p.Deps()
	remaining := make(map[string]int, len(deps))
	downstream := make(map[string][]string, len(deps))
	for key, ups := range deps {
		remaining[key] = len(ups)
		for _, up := range ups {
			downstream[up] = append(downstream[up], key)
		}
	}

	total := len(p.StepKeysToExecute)
	results := make(chan stepResult, total)
	sem := make(chan struct{}, e.concurrency)
	dispatched := make(map[string]bool, total)

	dispatchReady := func() {
		// Declaration order keeps single-concurrency dispatch deterministic.
		for _, key := range p.StepKeysToExecute {
			if dispatched[key] || remaining[key] != 0 {
				continue
			}
			dispatched[key] = true
			go e.runStep(ctx, run, jobDef, key, sem, results)
		}
	}

	dispatchReady()

	failed := false
	completed := 0
	for completed < total {
		res := <-results
		completed++
		delete(remaining, res.key)

		if res.err != nil {
			failed = true
			completed += e.skipDownstream(ctx, run, res.key, downstream, remaining, dispatched)
			continue
		}
		for _, down := range downstream[res.key] {
			if _, pending := remaining[down]; pending {
				remaining[down]--
			}
		}
		dispatchReady()
	}

	if ctx.Err() != nil {
		failed = true
	}
	e.finishRun(ctx, run.ID, failed)
}

// runStep executes a single step under the concurrency semaphore, emitting
// STEP_START and STEP_SUCCESS/STEP_FAILURE around the compute function.
func (e *Executor) runStep(ctx context.Context, run *model.Run, jobDef *plan.JobDefinition, key string, sem chan struct{}, results chan<- stepResult) {
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		results <- stepResult{key: key, err: ctx.Err()}
		return
	}

	stepCtx, endSpan := e.tracer.StartStepSpan(ctx, run.ID, key)
	defer endSpan()

	if _, err := e.log.Append(ctx, run.ID, model.NewStepEvent(run.ID, key, model.EventTypeStepStart,
		fmt.Sprintf("Started execution of step %q.", key))); err != nil {
		logger.Errorf("Executor: failed to append STEP_START for run '%s' step '%s': %v", run.ID, key, err)
	}
	e.recorder.RecordStepStart(ctx, run.ID, key)
	started := time.Now()

	var err error
	if sd, ok := jobDef.StepByKey(key); ok && sd.Compute != nil {
		err = sd.Compute(stepCtx, run.Config)
	} else if ctx.Err() != nil {
		err = ctx.Err()
	}

	eventType := model.EventTypeStepSuccess
	if err != nil {
		eventType = model.EventTypeStepFailure
		e.tracer.RecordError(stepCtx, "executor", err)
		ev := model.NewStepEvent(run.ID, key, eventType, fmt.Sprintf("Execution of step %q failed.", key))
		ev.Error = model.NewErrorInfo(err)
		if _, appendErr := e.log.Append(ctx, run.ID, ev); appendErr != nil {
			logger.Errorf("Executor: failed to append STEP_FAILURE for run '%s' step '%s': %v", run.ID, key, appendErr)
		}
	} else {
		if _, appendErr := e.log.Append(ctx, run.ID, model.NewStepEvent(run.ID, key, eventType,
			fmt.Sprintf("Finished execution of step %q.", key))); appendErr != nil {
			logger.Errorf("Executor: failed to append STEP_SUCCESS for run '%s' step '%s': %v", run.ID, key, appendErr)
		}
	}
	e.recorder.RecordStepEnd(ctx, run.ID, key, eventType, time.Since(started))

	results <- stepResult{key: key, err: err}
}

// skipDownstream marks every not-yet-dispatched transitive dependent of the
// failed step as skipped, emitting STEP_SKIPPED events. Returns how many steps
// were skipped so the dispatch loop can account for them.
func (e *Executor) skipDownstream(ctx context.Context, run *model.Run, failedKey string, downstream map[string][]string, remaining map[string]int, dispatched map[string]bool) int {
	skipped := 0
	frontier := []string{failedKey}
	for len(frontier) > 0 {
		key := frontier[0]
		frontier = frontier[1:]
		for _, down := range downstream[key] {
			if dispatched[down] {
				continue
			}
			if _, pending := remaining[down]; !pending {
				continue
			}
			delete(remaining, down)
			dispatched[down] = true
			skipped++
			if _, err := e.log.Append(ctx, run.ID, model.NewStepEvent(run.ID, down, model.EventTypeStepSkipped,
				fmt.Sprintf("Skipped step %q: upstream step %q failed.", down, failedKey))); err != nil {
				logger.Errorf("Executor: failed to append STEP_SKIPPED for run '%s' step '%s': %v", run.ID, down, err)
			}
			frontier = append(frontier, down)
		}
	}
	return skipped
}

// finishRun resolves the run to its terminal status unless something else
// (a termination request) already did.
func (e *Executor) finishRun(ctx context.Context, runID string, failed bool) {
	// Deliberately not the (possibly canceled) run context: terminal status and
	// events must still be recorded for a terminated run.
	finishCtx := context.WithoutCancel(ctx)

	fresh, err := e.runs.FindRunByID(finishCtx, runID)
	if err != nil {
		logger.Errorf("Executor: failed to reload run '%s' for final status: %v", runID, err)
		return
	}
	if fresh.Status.IsTerminal() {
		return
	}

	if failed {
		if err := fresh.MarkAsFailure(); err != nil {
			logger.Warnf("Executor: could not mark run '%s' FAILURE: %v", runID, err)
			return
		}
	} else {
		if err := fresh.MarkAsSuccess(); err != nil {
			logger.Warnf("Executor: could not mark run '%s' SUCCESS: %v", runID, err)
			return
		}
	}
	if err := e.runs.UpdateRun(finishCtx, fresh); err != nil {
		logger.Errorf("Executor: failed to persist final status of run '%s': %v", runID, err)
		return
	}

	eventType := model.EventTypeRunSuccess
	message := "Run completed successfully."
	if failed {
		eventType = model.EventTypeRunFailure
		message = "Run failed."
	}
	if _, err := e.log.Append(finishCtx, runID, model.NewRunEvent(runID, eventType, message)); err != nil {
		logger.Errorf("Executor: failed to append %s for run '%s': %v", eventType, runID, err)
	}
	e.recorder.RecordRunEnd(finishCtx, fresh)
}
