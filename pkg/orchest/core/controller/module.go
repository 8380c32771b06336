package controller

import (
	"go.uber.org/fx"
)

// Module is an Fx module that provides the RunController.
var Module = fx.Options(
	fx.Provide(NewRunController),
)
