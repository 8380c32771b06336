// Package controller owns the run state machine. It validates launch requests,
// builds execution plans, drives runs through QUEUED -> NOT_STARTED -> STARTED
// to a terminal status, and mediates termination and reexecution.
package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/tigerroll/swell/pkg/orchest/core/config"
	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/core/eventlog"
	"github.com/tigerroll/swell/pkg/orchest/core/launcher"
	"github.com/tigerroll/swell/pkg/orchest/core/metrics"
	plan "github.com/tigerroll/swell/pkg/orchest/core/plan"
	"github.com/tigerroll/swell/pkg/orchest/core/workspace"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
	logger "github.com/tigerroll/swell/pkg/orchest/support/util/logger"
)

// LaunchRequest asks the controller to create and launch a new run.
type LaunchRequest struct {
	JobName string
	// StepKeys restricts the run to a plan subset. Empty means the full plan.
	StepKeys []string
	Config   model.RunConfig
	Mode     string
	Tags     model.TagMap
}

// TerminationOutcome reports the result of a termination request.
type TerminationOutcome string

const (
	// TerminationOutcomeTerminated means the run was stopped and failed.
	TerminationOutcomeTerminated TerminationOutcome = "TERMINATED"
	// TerminationOutcomeAlreadyTerminal is the no-op condition for runs that
	// had already finished. It is reported to the caller, not an error.
	TerminationOutcomeAlreadyTerminal TerminationOutcome = "ALREADY_TERMINAL"
)

// RunController coordinates the run lifecycle against the injected store,
// event log and run launcher.
type RunController struct {
	ws       *workspace.Workspace
	store    repository.Store
	log      *eventlog.EventLog
	launcher launcher.RunLauncher
	recorder metrics.MetricRecorder
	cfg      *config.EngineConfig
}

// NewRunController creates a RunController.
func NewRunController(ws *workspace.Workspace, store repository.Store, log *eventlog.EventLog, l launcher.RunLauncher, recorder metrics.MetricRecorder, cfg *config.EngineConfig) *RunController {
	return &RunController{
		ws:       ws,
		store:    store,
		log:      log,
		launcher: l,
		recorder: recorder,
		cfg:      cfg,
	}
}

// Launch validates the request, builds the execution plan, persists the run in
// QUEUED and hands it to the run launcher. No run is created when the
// configuration payload does not satisfy the job's schema.
func (c *RunController) Launch(ctx context.Context, req LaunchRequest) (*model.Run, error) {
	jobDef, err := c.ws.JobByName(req.JobName)
	if err != nil {
		return nil, err
	}

	if verr := jobDef.ValidateConfig(req.Config); verr != nil {
		return nil, verr
	}

	p, err := plan.Build(jobDef, req.StepKeys)
	if err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = jobDef.Mode
	}
	run := model.NewRun(req.JobName, p.StepKeysToExecute, req.Config, mode, req.Tags)
	run.SnapshotID = p.SnapshotID

	return c.launchRun(ctx, run, p)
}

// Relaunch creates a new run reexecuting runID, reusing the plan subset named
// by stepKeys when supplied, else the parent's own selection. The new run's
// lineage references the chain: root is inherited, parent is the immediate
// predecessor.
func (c *RunController) Relaunch(ctx context.Context, runID string, stepKeys []string) (*model.Run, error) {
	parent, err := c.findRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	jobDef, err := c.ws.JobByName(parent.JobName)
	if err != nil {
		return nil, err
	}

	selection := stepKeys
	if len(selection) == 0 {
		selection = parent.StepKeys
	}
	p, err := plan.Build(jobDef, selection)
	if err != nil {
		return nil, err
	}

	run := model.NewRun(parent.JobName, p.StepKeysToExecute, parent.Config, parent.Mode, parent.Tags.Copy())
	run.SnapshotID = p.SnapshotID
	run.ParentRunID = parent.ID
	run.RootRunID = parent.RootRunID
	if run.RootRunID == "" {
		run.RootRunID = parent.ID
	}

	return c.launchRun(ctx, run, p)
}

// launchRun is the shared QUEUED -> handoff -> STARTED path of Launch and
// Relaunch.
func (c *RunController) launchRun(ctx context.Context, run *model.Run, p *model.ExecutionPlan) (*model.Run, error) {
	if err := c.store.SaveRun(ctx, run); err != nil {
		return nil, exception.NewInternalError("controller",
			fmt.Sprintf("Failed to persist run '%s'", run.ID), err)
	}
	if _, err := c.log.Append(ctx, run.ID, model.NewRunEvent(run.ID, model.EventTypeRunEnqueued,
		fmt.Sprintf("Run enqueued for job %q.", run.JobName))); err != nil {
		logger.Errorf("RunController: failed to append RUN_ENQUEUED for run '%s': %v", run.ID, err)
	}

	if err := run.MarkAsNotStarted(); err != nil {
		return run, err
	}
	if err := c.store.UpdateRun(ctx, run); err != nil {
		return run, exception.NewInternalError("controller",
			fmt.Sprintf("Failed to persist handoff of run '%s'", run.ID), err)
	}

	if err := c.launcher.Launch(ctx, run, p); err != nil {
		c.failLaunch(ctx, run, err)
		return run, exception.NewInternalError("controller",
			fmt.Sprintf("Run launcher rejected run '%s'", run.ID), err)
	}

	c.recorder.RecordRunLaunched(ctx, run)
	logger.Infof("RunController: launched run '%s' for job '%s' (snapshot %s).", run.ID, run.JobName, run.SnapshotID)

	fresh, err := c.findRun(ctx, run.ID)
	if err != nil {
		return run, nil
	}
	return fresh, nil
}

// failLaunch resolves a run whose launcher handoff failed.
func (c *RunController) failLaunch(ctx context.Context, run *model.Run, cause error) {
	if run.Status.IsTerminal() {
		return
	}
	if err := run.MarkAsFailure(); err != nil {
		logger.Warnf("RunController: could not mark run '%s' FAILURE after launch error: %v", run.ID, err)
		return
	}
	if err := c.store.UpdateRun(ctx, run); err != nil {
		logger.Errorf("RunController: failed to persist launch failure of run '%s': %v", run.ID, err)
	}
	if _, err := c.log.Append(ctx, run.ID, model.NewRunFailureEvent(run.ID, "Run launcher rejected the run.", cause)); err != nil {
		logger.Errorf("RunController: failed to append RUN_FAILURE for run '%s': %v", run.ID, err)
	}
	c.recorder.RecordRunEnd(ctx, run)
}

// Terminate requests cancellation of a run. Termination is advisory: the
// launcher is asked to stop in-flight work with a bounded wait, and on
// acknowledgment the run is failed with a termination event. A run that is
// already terminal yields the no-op outcome, not an error.
func (c *RunController) Terminate(ctx context.Context, runID string) (TerminationOutcome, error) {
	run, err := c.findRun(ctx, runID)
	if err != nil {
		return "", err
	}
	if run.Status.IsTerminal() {
		return TerminationOutcomeAlreadyTerminal, nil
	}

	tctx, cancel := context.WithTimeout(ctx, c.cfg.TerminateTimeout)
	defer cancel()
	if err := c.launcher.Terminate(tctx, runID); err != nil {
		// The launcher may have finished the run between our status check and
		// the terminate call; re-check before reporting a failure to terminate.
		if exception.KindOf(err) == exception.KindNotFound {
			if fresh, ferr := c.findRun(ctx, runID); ferr == nil && fresh.Status.IsTerminal() {
				return TerminationOutcomeAlreadyTerminal, nil
			}
		}
		return "", exception.NewInternalError("controller",
			fmt.Sprintf("Failed to terminate run '%s'", runID), err)
	}

	fresh, err := c.findRun(ctx, runID)
	if err != nil {
		return "", err
	}
	if !fresh.Status.IsTerminal() {
		if err := fresh.MarkAsFailure(); err != nil {
			return "", err
		}
		if err := c.store.UpdateRun(ctx, fresh); err != nil {
			return "", exception.NewInternalError("controller",
				fmt.Sprintf("Failed to persist termination of run '%s'", runID), err)
		}
		c.recorder.RecordRunEnd(ctx, fresh)
	}

	ev := model.NewRunEvent(runID, model.EventTypeRunTerminated, fmt.Sprintf("Run %q was terminated by request.", runID))
	ev.Level = model.EventLevelWarn
	if _, err := c.log.Append(ctx, runID, ev); err != nil {
		logger.Errorf("RunController: failed to append RUN_TERMINATED for run '%s': %v", runID, err)
	}

	return TerminationOutcomeTerminated, nil
}

// MarkManaged attributes a run's lifecycle to a foreign launcher. Managed runs
// are never driven by internal step dispatch and the controller applies no
// further transitions to them.
func (c *RunController) MarkManaged(ctx context.Context, runID string) error {
	run, err := c.findRun(ctx, runID)
	if err != nil {
		return err
	}
	if err := run.MarkAsManaged(); err != nil {
		return err
	}
	if err := c.store.UpdateRun(ctx, run); err != nil {
		return exception.NewInternalError("controller",
			fmt.Sprintf("Failed to persist MANAGED attribution of run '%s'", runID), err)
	}
	return nil
}

// Delete removes a run record and its events. Deletion is an explicit
// external operation, never a lifecycle default.
func (c *RunController) Delete(ctx context.Context, runID string) error {
	if _, err := c.findRun(ctx, runID); err != nil {
		return err
	}
	if err := c.store.DeleteEvents(ctx, runID); err != nil {
		return exception.NewInternalError("controller",
			fmt.Sprintf("Failed to delete events of run '%s'", runID), err)
	}
	if err := c.store.DeleteRun(ctx, runID); err != nil {
		return exception.NewInternalError("controller",
			fmt.Sprintf("Failed to delete run '%s'", runID), err)
	}
	c.log.Drop(runID)
	return nil
}

// findRun loads a run, converting the repository sentinel into a not-found
// condition.
func (c *RunController) findRun(ctx context.Context, runID string) (*model.Run, error) {
	run, err := c.store.FindRunByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			return nil, exception.NewNotFoundError("controller",
				fmt.Sprintf("Run '%s' does not exist", runID), repository.ErrRunNotFound)
		}
		return nil, exception.NewInternalError("controller",
			fmt.Sprintf("Failed to look up run '%s'", runID), err)
	}
	return run, nil
}
