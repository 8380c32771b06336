// Package launcher defines the RunLauncher port, the abstraction through which
// a run is handed to a compute backend, and provides the in-process launcher.
package launcher

import (
	"context"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
)

// RunLauncher abstracts how a run is handed to a compute backend. The core
// depends on this contract only: a nil error from Launch or Terminate is the
// acknowledgment.
type RunLauncher interface {
	// Launch hands a run and its execution plan to the backend. On
	// acknowledgment the run is STARTED.
	Launch(ctx context.Context, run *model.Run, p *model.ExecutionPlan) error

	// Terminate requests cancellation of an in-flight run. Termination is
	// advisory: acknowledgment means the backend has stopped the work, and
	// callers bound the wait with the context.
	Terminate(ctx context.Context, runID string) error
}
