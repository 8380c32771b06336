package executor

import (
	"go.uber.org/fx"

	"github.com/tigerroll/swell/pkg/orchest/core/config"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/core/eventlog"
	"github.com/tigerroll/swell/pkg/orchest/core/metrics"
)

// Module is an Fx module that provides the plan Executor.
var Module = fx.Options(
	fx.Provide(func(store repository.Store, log *eventlog.EventLog, recorder metrics.MetricRecorder, tracer metrics.Tracer, cfg *config.EngineConfig) *Executor {
		return NewExecutor(store, log, recorder, tracer, cfg.StepConcurrency)
	}),
)
