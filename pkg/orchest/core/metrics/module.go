package metrics

import (
	"go.uber.org/fx"
)

// Module is an Fx module that provides the no-op observability fallbacks.
// Applications include either this module or the infrastructure metrics
// module, never both.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewNoOpMetricRecorder,
		fx.As(new(MetricRecorder)),
	)),
	fx.Provide(fx.Annotate(
		NewNoOpTracer,
		fx.As(new(Tracer)),
	)),
)
