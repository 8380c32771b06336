package sensor

import (
	"context"

	"go.uber.org/fx"
)

// Module is an Fx module that provides the sensor Engine and ties its pass
// loop to the application lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, e *Engine) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				e.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				e.Stop()
				return nil
			},
		})
	}),
)
