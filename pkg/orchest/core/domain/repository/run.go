package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

// ErrRunNotFound is the error returned when a Run is not found.
var ErrRunNotFound = errors.New("run not found")

func init() {
	// Register the error type in the registry upon engine startup
	exception.RegisterErrorType("ErrRunNotFound", ErrRunNotFound)
}

// RunsFilter restricts a run listing. Zero-valued fields do not filter.
type RunsFilter struct {
	JobName    string
	Statuses   []model.RunStatus
	Tags       model.TagMap
	SnapshotID string
}

// Matches reports whether a run satisfies every populated filter field.
func (f RunsFilter) Matches(run *model.Run) bool {
	if f.JobName != "" && run.JobName != f.JobName {
		return false
	}
	if f.SnapshotID != "" && run.SnapshotID != f.SnapshotID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if run.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for key, values := range f.Tags {
		for _, v := range values {
			if !run.Tags.Has(key, v) {
				return false
			}
		}
	}
	return true
}

// RunStore persists and retrieves Run records.
type RunStore interface {
	// SaveRun persists a new Run. Saving a duplicate ID is a conflict.
	SaveRun(ctx context.Context, run *model.Run) error

	// UpdateRun updates the state of an existing Run.
	UpdateRun(ctx context.Context, run *model.Run) error

	// FindRunByID finds a Run by its ID. Returns ErrRunNotFound if absent.
	FindRunByID(ctx context.Context, runID string) (*model.Run, error)

	// ListRuns returns runs matching the filter, newest first, starting after
	// the given opaque cursor (a run ID; empty starts from the newest), bounded
	// by limit.
	ListRuns(ctx context.Context, filter RunsFilter, cursor string, limit int) ([]*model.Run, error)

	// DeleteRun removes a run record. Deletion is an explicit external
	// operation, not a lifecycle default.
	DeleteRun(ctx context.Context, runID string) error
}
