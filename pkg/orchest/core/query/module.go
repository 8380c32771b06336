package query

import (
	"go.uber.org/fx"
)

// Module is an Fx module that provides the query Service.
var Module = fx.Options(
	fx.Provide(NewService),
)
