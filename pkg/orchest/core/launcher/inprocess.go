package launcher

import (
	"context"
	"fmt"
	"sync"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/core/eventlog"
	"github.com/tigerroll/swell/pkg/orchest/core/executor"
	"github.com/tigerroll/swell/pkg/orchest/core/workspace"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
	logger "github.com/tigerroll/swell/pkg/orchest/support/util/logger"
)

// managedRun is the in-flight bookkeeping of one launched run.
type managedRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// InProcessLauncher executes runs inside the engine process via the plan
// executor. It marks the run STARTED at acknowledgment time and supports
// advisory termination through per-run context cancellation.
type InProcessLauncher struct {
	ws   *workspace.Workspace
	runs repository.RunStore
	log  *eventlog.EventLog
	exec *executor.Executor

	mu       sync.Mutex
	inFlight map[string]*managedRun
	wg       sync.WaitGroup
}

// NewInProcessLauncher creates an InProcessLauncher.
func NewInProcessLauncher(ws *workspace.Workspace, runs repository.RunStore, log *eventlog.EventLog, exec *executor.Executor) *InProcessLauncher {
	return &InProcessLauncher{
		ws:       ws,
		runs:     runs,
		log:      log,
		exec:     exec,
		inFlight: make(map[string]*managedRun),
	}
}

// Launch acknowledges the run by marking it STARTED, then executes its plan on
// a dedicated goroutine. The run's execution context is detached from the
// caller's so the run outlives the launch request.
func (l *InProcessLauncher) Launch(ctx context.Context, run *model.Run, p *model.ExecutionPlan) error {
	jobDef, err := l.ws.JobByName(run.JobName)
	if err != nil {
		return err
	}

	if err := run.MarkAsStarted(); err != nil {
		return err
	}
	if err := l.runs.UpdateRun(ctx, run); err != nil {
		return exception.NewInternalError("launcher",
			fmt.Sprintf("Failed to persist STARTED status of run '%s'", run.ID), err)
	}
	if _, err := l.log.Append(ctx, run.ID, model.NewRunEvent(run.ID, model.EventTypeRunStarted, "Run started.")); err != nil {
		logger.Errorf("InProcessLauncher: failed to append RUN_STARTED for run '%s': %v", run.ID, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m := &managedRun{cancel: cancel, done: make(chan struct{})}
	l.mu.Lock()
	l.inFlight[run.ID] = m
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer close(m.done)
		defer func() {
			l.mu.Lock()
			delete(l.inFlight, run.ID)
			l.mu.Unlock()
		}()
		l.exec.Execute(runCtx, run, p, jobDef)
	}()

	return nil
}

// Terminate cancels the run's execution context and waits for the executor to
// wind down, bounded by ctx. A run this launcher is not executing yields a
// not-found condition so the controller can distinguish "already finished"
// from a backend failure.
func (l *InProcessLauncher) Terminate(ctx context.Context, runID string) error {
	l.mu.Lock()
	m, ok := l.inFlight[runID]
	l.mu.Unlock()
	if !ok {
		return exception.NewNotFoundError("launcher",
			fmt.Sprintf("Run '%s' is not executing in this launcher", runID), nil)
	}

	m.cancel()
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return exception.NewInternalError("launcher",
			fmt.Sprintf("Timed out waiting for run '%s' to stop", runID), ctx.Err())
	}
}

// Wait blocks until every launched run has finished executing. Used by tests
// and engine shutdown.
func (l *InProcessLauncher) Wait() {
	l.wg.Wait()
}

var _ RunLauncher = (*InProcessLauncher)(nil)
