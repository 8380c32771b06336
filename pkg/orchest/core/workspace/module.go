package workspace

import (
	"go.uber.org/fx"
)

// Module is an Fx module that provides the Workspace from an
// application-supplied Loader.
var Module = fx.Options(
	fx.Provide(New),
)
