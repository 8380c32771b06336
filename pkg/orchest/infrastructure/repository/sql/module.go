package sql

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/swell/pkg/orchest/core/config"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
)

// Module is an Fx module that provides SQLStore as a repository.Store
// interface, closing the connection on application shutdown.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			func(cfg *config.EngineConfig) (*SQLStore, error) {
				return NewSQLStore(cfg.Store)
			},
			fx.As(new(repository.Store)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, store repository.Store) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return store.Close()
			},
		})
	}),
)
