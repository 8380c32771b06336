package metrics

import (
	"context"

	"go.uber.org/fx"

	metrics "github.com/tigerroll/swell/pkg/orchest/core/metrics"
)

// Module is an Fx module that provides the Prometheus recorder and the
// OpenTelemetry tracer as the engine's observability backends. Applications
// include either this module or the core no-op module, never both.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewPrometheusRecorder,
		fx.As(new(metrics.MetricRecorder)),
	)),
	fx.Provide(fx.Annotate(
		func(lc fx.Lifecycle) (*OTelTracer, error) {
			tracer, err := NewOTelTracer(context.Background())
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{
				OnStop: tracer.Shutdown,
			})
			return tracer, nil
		},
		fx.As(new(metrics.Tracer)),
	)),
)
