package main

import (
	"context"
	"os"

	"go.uber.org/fx"

	"github.com/tigerroll/swell/example/linear/internal/defs"
	"github.com/tigerroll/swell/pkg/orchest/core/backfill"
	"github.com/tigerroll/swell/pkg/orchest/core/config"
	"github.com/tigerroll/swell/pkg/orchest/core/controller"
	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	"github.com/tigerroll/swell/pkg/orchest/core/eventlog"
	"github.com/tigerroll/swell/pkg/orchest/core/executor"
	"github.com/tigerroll/swell/pkg/orchest/core/launcher"
	coremetrics "github.com/tigerroll/swell/pkg/orchest/core/metrics"
	inframetrics "github.com/tigerroll/swell/pkg/orchest/infrastructure/metrics"
	"github.com/tigerroll/swell/pkg/orchest/core/query"
	"github.com/tigerroll/swell/pkg/orchest/core/scheduler"
	"github.com/tigerroll/swell/pkg/orchest/core/sensor"
	"github.com/tigerroll/swell/pkg/orchest/core/workspace"
	inmemoryRepo "github.com/tigerroll/swell/pkg/orchest/infrastructure/repository/inmemory"
	sqlRepo "github.com/tigerroll/swell/pkg/orchest/infrastructure/repository/sql"
	logger "github.com/tigerroll/swell/pkg/orchest/support/util/logger"
)

// GetApplicationOptions builds the uber-fx options and returns them as a
// slice. The store driver is resolved from the engine configuration before
// the graph is assembled.
func GetApplicationOptions(appCtx context.Context) []fx.Option {
	cfg, err := config.LoadEngineConfig(os.Getenv("SWELL_CONFIG_FILE"))
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	var options []fx.Option
	options = append(options, fx.WithLogger(logger.NewFxLoggerAdapter))
	options = append(options, fx.Supply(cfg))
	// fx.Supply rejects function values, so the loader goes through a provider.
	options = append(options, fx.Provide(func() workspace.Loader { return defs.Loader() }))

	if cfg.Store.Driver == "memory" {
		options = append(options, inmemoryRepo.Module)
	} else {
		options = append(options, sqlRepo.Module)
	}

	if cfg.Metrics.Backend == "prometheus" {
		options = append(options, inframetrics.Module)
	} else {
		options = append(options, coremetrics.Module)
	}

	options = append(options, workspace.Module)
	options = append(options, eventlog.Module)
	options = append(options, executor.Module)
	options = append(options, launcher.Module)
	options = append(options, controller.Module)
	options = append(options, scheduler.Module)
	options = append(options, sensor.Module)
	options = append(options, backfill.Module)
	options = append(options, query.Module)
	options = append(options, fx.Invoke(runDemo))

	return options
}

// runDemo launches one run of the demo job on startup, tails its event log to
// the logger until the run finishes, then shuts the application down.
func runDemo(lc fx.Lifecycle, shutdowner fx.Shutdowner, ctrl *controller.RunController, log *eventlog.EventLog) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer func() {
					if err := shutdowner.Shutdown(); err != nil {
						logger.Errorf("Failed to shut down application: %v", err)
					}
				}()

				runCtx, cancel := context.WithCancel(context.Background())
				defer cancel()

				run, err := ctrl.Launch(runCtx, controller.LaunchRequest{
					JobName: defs.JobName,
					Config:  model.RunConfig{"dataset": "demo"},
				})
				if err != nil {
					logger.Errorf("Failed to launch demo run: %v", err)
					return
				}
				logger.Infof("Demo run '%s' launched.", run.ID)

				events, err := log.Tail(runCtx, run.ID, eventlog.TailFromStart)
				if err != nil {
					logger.Errorf("Failed to tail demo run '%s': %v", run.ID, err)
					return
				}
				for ev := range events {
					logger.Infof("event %d %-15s %s", ev.Cursor, ev.Type, ev.Message)
					switch ev.Type {
					case model.EventTypeRunSuccess, model.EventTypeRunFailure, model.EventTypeRunTerminated:
						return
					}
				}
			}()
			return nil
		},
	})
}
