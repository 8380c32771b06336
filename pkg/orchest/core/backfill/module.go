package backfill

import (
	"go.uber.org/fx"
)

// Module is an Fx module that provides the backfill Launcher.
var Module = fx.Options(
	fx.Provide(NewLauncher),
)
