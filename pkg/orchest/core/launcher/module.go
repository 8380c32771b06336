package launcher

import (
	"go.uber.org/fx"

	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/core/eventlog"
	"github.com/tigerroll/swell/pkg/orchest/core/executor"
	"github.com/tigerroll/swell/pkg/orchest/core/workspace"
)

// Module is an Fx module that provides the in-process launcher as the
// RunLauncher implementation.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		func(ws *workspace.Workspace, store repository.Store, log *eventlog.EventLog, exec *executor.Executor) *InProcessLauncher {
			return NewInProcessLauncher(ws, store, log, exec)
		},
		fx.As(new(RunLauncher)),
	)),
)
