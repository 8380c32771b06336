package config

import (
	"os"

	"go.uber.org/fx"
)

// Module is an Fx module that provides the EngineConfig, loaded from the file
// named by SWELL_CONFIG_FILE when set.
var Module = fx.Options(
	fx.Provide(func() (*EngineConfig, error) {
		return LoadEngineConfig(os.Getenv("SWELL_CONFIG_FILE"))
	}),
)
