package eventlog

import (
	"go.uber.org/fx"

	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
)

// Module is an Fx module that provides the EventLog over the injected store.
var Module = fx.Options(
	fx.Provide(func(store repository.Store) *EventLog {
		return NewEventLog(store, store)
	}),
)
