package workspace

import (
	"fmt"
	"sync"
	"time"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	plan "github.com/tigerroll/swell/pkg/orchest/core/plan"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
	logger "github.com/tigerroll/swell/pkg/orchest/support/util/logger"
)

// LocationStateKind classifies a location-state-change notification.
type LocationStateKind string

const (
	LocationStateLoaded   LocationStateKind = "LOADED"
	LocationStateReloaded LocationStateKind = "RELOADED"
	LocationStateErrored  LocationStateKind = "ERRORED"
)

// LocationStateChange is emitted when the definitions of the workspace change
// state: initial load, reload, or a failed reload.
type LocationStateChange struct {
	Kind      LocationStateKind
	Message   string
	Timestamp time.Time
	Error     *model.ErrorInfo
}

// Workspace caches the current Definitions snapshot and serves lookups by
// name. Reload invalidates cached definitions but never touches historical
// run, event or tick records (those live in the injected store).
type Workspace struct {
	loader Loader

	mu   sync.RWMutex
	defs *Definitions

	subMu sync.Mutex
	subs  []chan LocationStateChange
}

// New creates a Workspace and performs the initial definitions load.
func New(loader Loader) (*Workspace, error) {
	defs, err := loader()
	if err != nil {
		return nil, exception.NewInternalError("workspace", "Initial definitions load failed", err)
	}
	w := &Workspace{loader: loader, defs: defs}
	w.notify(LocationStateChange{Kind: LocationStateLoaded, Message: "definitions loaded", Timestamp: time.Now()})
	return w, nil
}

// Reload re-invokes the loader and swaps the cached snapshot. On failure the
// previous snapshot stays active and an ERRORED notification is emitted.
func (w *Workspace) Reload() error {
	defs, err := w.loader()
	if err != nil {
		wrapped := exception.NewInternalError("workspace", "Definitions reload failed", err)
		w.notify(LocationStateChange{
			Kind:      LocationStateErrored,
			Message:   "definitions reload failed",
			Timestamp: time.Now(),
			Error:     model.NewErrorInfo(wrapped),
		})
		return wrapped
	}

	w.mu.Lock()
	w.defs = defs
	w.mu.Unlock()

	logger.Infof("Workspace: definitions reloaded (%d jobs, %d schedules, %d sensors, %d partition sets).",
		len(defs.Jobs), len(defs.Schedules), len(defs.Sensors), len(defs.PartitionSets))
	w.notify(LocationStateChange{Kind: LocationStateReloaded, Message: "definitions reloaded", Timestamp: time.Now()})
	return nil
}

// Notifications subscribes to location-state changes. Slow consumers drop
// notifications rather than blocking the workspace.
func (w *Workspace) Notifications() <-chan LocationStateChange {
	ch := make(chan LocationStateChange, 16)
	w.subMu.Lock()
	w.subs = append(w.subs, ch)
	w.subMu.Unlock()
	return ch
}

func (w *Workspace) notify(change LocationStateChange) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

// JobByName looks up a job definition. Absence is a not-found condition.
func (w *Workspace) JobByName(name string) (*plan.JobDefinition, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, j := range w.defs.Jobs {
		if j.Name == name {
			return j, nil
		}
	}
	return nil, exception.NewNotFoundError("workspace", fmt.Sprintf("Job '%s' is not defined", name), nil)
}

// ScheduleByName looks up a schedule definition.
func (w *Workspace) ScheduleByName(name string) (*ScheduleDefinition, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, s := range w.defs.Schedules {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, exception.NewNotFoundError("workspace", fmt.Sprintf("Schedule '%s' is not defined", name), nil)
}

// SensorByName looks up a sensor definition.
func (w *Workspace) SensorByName(name string) (*SensorDefinition, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, s := range w.defs.Sensors {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, exception.NewNotFoundError("workspace", fmt.Sprintf("Sensor '%s' is not defined", name), nil)
}

// PartitionSetByName looks up a partition set definition.
func (w *Workspace) PartitionSetByName(name string) (*PartitionSetDefinition, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, ps := range w.defs.PartitionSets {
		if ps.Name == name {
			return ps, nil
		}
	}
	return nil, exception.NewNotFoundError("workspace", fmt.Sprintf("Partition set '%s' is not defined", name), nil)
}

// Schedules returns the currently loaded schedule definitions.
func (w *Workspace) Schedules() []*ScheduleDefinition {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*ScheduleDefinition(nil), w.defs.Schedules...)
}

// Sensors returns the currently loaded sensor definitions.
func (w *Workspace) Sensors() []*SensorDefinition {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*SensorDefinition(nil), w.defs.Sensors...)
}

// Jobs returns the currently loaded job definitions.
func (w *Workspace) Jobs() []*plan.JobDefinition {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*plan.JobDefinition(nil), w.defs.Jobs...)
}
