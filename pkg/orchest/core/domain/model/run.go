// Package model defines the domain aggregates of the Swell orchestration core:
// runs, events, instigation state (schedules and sensors), ticks, partitions
// and backfills, together with their status machines.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "QUEUED"
	RunStatusNotStarted RunStatus = "NOT_STARTED"
	RunStatusStarted    RunStatus = "STARTED"
	RunStatusSuccess    RunStatus = "SUCCESS"
	RunStatusFailure    RunStatus = "FAILURE"
	// RunStatusManaged marks runs whose lifecycle is driven by a foreign
	// launcher. Entered only by external attribution, never by the controller's
	// own transitions.
	RunStatusManaged RunStatus = "MANAGED"
)

// String returns the string representation of the RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// IsTerminal checks if the RunStatus represents a terminal state.
// MANAGED is terminal-adjacent: internal step dispatch never resumes it.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailure, RunStatusManaged:
		return true
	default:
		return false
	}
}

// RunConfig is the configuration payload supplied at launch time.
type RunConfig map[string]interface{}

// Value implements the `driver.Valuer` interface, converting the RunConfig to a JSON string.
func (rc RunConfig) Value() (driver.Value, error) {
	if rc == nil {
		return "{}", nil
	}
	data, err := json.Marshal(rc)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to a RunConfig.
func (rc *RunConfig) Scan(value interface{}) error {
	return scanJSON(value, rc, func() { *rc = make(RunConfig) })
}

// TagMap holds run tags. Multiple values per key are allowed.
type TagMap map[string][]string

// Value implements the `driver.Valuer` interface, converting the TagMap to a JSON string.
func (tm TagMap) Value() (driver.Value, error) {
	if tm == nil {
		return "{}", nil
	}
	data, err := json.Marshal(tm)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to a TagMap.
func (tm *TagMap) Scan(value interface{}) error {
	return scanJSON(value, tm, func() { *tm = make(TagMap) })
}

// Add appends a value under the given tag key.
func (tm TagMap) Add(key, value string) {
	tm[key] = append(tm[key], value)
}

// Has reports whether the tag key carries the given value.
func (tm TagMap) Has(key, value string) bool {
	for _, v := range tm[key] {
		if v == value {
			return true
		}
	}
	return false
}

// Copy creates a shallow copy of the TagMap.
func (tm TagMap) Copy() TagMap {
	out := make(TagMap, len(tm))
	for k, vs := range tm {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// StringList is a JSON-persisted list of strings (step keys, run ids, partition names).
type StringList []string

// Value implements the `driver.Valuer` interface, converting the StringList to a JSON string.
func (sl StringList) Value() (driver.Value, error) {
	if sl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(sl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to a StringList.
func (sl *StringList) Scan(value interface{}) error {
	return scanJSON(value, sl, func() { *sl = make(StringList, 0) })
}

// scanJSON is the shared sql.Scanner body for JSON-persisted columns.
func scanJSON(value interface{}, dst interface{}, reset func()) error {
	if value == nil {
		reset()
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type %T", value)
	}
	if len(b) == 0 {
		reset()
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON column: %w", err)
	}
	return nil
}

// Run is a single execution attempt of a job. Created on launch request and
// mutated only by the run controller as status transitions occur. Retained
// until explicitly deleted.
type Run struct {
	ID       string
	JobName  string
	// StepKeys is the step selection for this run. Empty means the full plan.
	StepKeys StringList
	Config   RunConfig
	Mode     string
	Tags     TagMap
	Status   RunStatus
	// RootRunID and ParentRunID record the reexecution lineage chain.
	// Both are empty for a run that is not a relaunch.
	RootRunID   string
	ParentRunID string
	// SnapshotID identifies the execution plan used for this run.
	SnapshotID  string
	CreateTime  time.Time
	StartTime   *time.Time
	EndTime     *time.Time
	LastUpdated time.Time
}

// NewRun creates a new Run in the QUEUED state.
func NewRun(jobName string, stepKeys []string, config RunConfig, mode string, tags TagMap) *Run {
	now := time.Now()
	if tags == nil {
		tags = make(TagMap)
	}
	if config == nil {
		config = make(RunConfig)
	}
	return &Run{
		ID:          NewID(),
		JobName:     jobName,
		StepKeys:    append(StringList(nil), stepKeys...),
		Config:      config,
		Mode:        mode,
		Tags:        tags,
		Status:      RunStatusQueued,
		CreateTime:  now,
		LastUpdated: now,
	}
}

// isValidRunTransition checks if the state transition for a Run is valid.
// Transitions are monotonic: no state may be revisited once left.
func isValidRunTransition(current, next RunStatus) bool {
	switch current {
	case RunStatusQueued:
		// QUEUED can move to NOT_STARTED on handoff, directly to STARTED when the
		// launcher acknowledges immediately, FAILURE on launch errors, or MANAGED
		// by external attribution.
		return next == RunStatusNotStarted || next == RunStatusStarted || next == RunStatusFailure || next == RunStatusManaged
	case RunStatusNotStarted:
		return next == RunStatusStarted || next == RunStatusFailure || next == RunStatusManaged
	case RunStatusStarted:
		return next == RunStatusSuccess || next == RunStatusFailure
	case RunStatusSuccess, RunStatusFailure, RunStatusManaged:
		return false
	default:
		return false
	}
}

// TransitionTo transitions the run to newStatus, failing with a conflict-kind
// InvalidTransition condition when the transition would regress or skip the
// status machine.
func (r *Run) TransitionTo(newStatus RunStatus) error {
	if !isValidRunTransition(r.Status, newStatus) {
		return exception.NewConflictError("model",
			fmt.Sprintf("Run (ID: %s): invalid state transition: %s -> %s", r.ID, r.Status, newStatus), nil)
	}
	r.Status = newStatus
	r.LastUpdated = time.Now()
	return nil
}

// MarkAsNotStarted records the handoff to the run launcher.
func (r *Run) MarkAsNotStarted() error {
	return r.TransitionTo(RunStatusNotStarted)
}

// MarkAsStarted records launcher acknowledgment and sets the start time.
func (r *Run) MarkAsStarted() error {
	if err := r.TransitionTo(RunStatusStarted); err != nil {
		return err
	}
	now := time.Now()
	r.StartTime = &now
	return nil
}

// MarkAsSuccess moves the run to its SUCCESS terminal state.
func (r *Run) MarkAsSuccess() error {
	if err := r.TransitionTo(RunStatusSuccess); err != nil {
		return err
	}
	now := time.Now()
	r.EndTime = &now
	return nil
}

// MarkAsFailure moves the run to its FAILURE terminal state.
func (r *Run) MarkAsFailure() error {
	if err := r.TransitionTo(RunStatusFailure); err != nil {
		return err
	}
	now := time.Now()
	r.EndTime = &now
	return nil
}

// MarkAsManaged attributes the run to a foreign launcher. Only valid before
// internal step dispatch has begun.
func (r *Run) MarkAsManaged() error {
	return r.TransitionTo(RunStatusManaged)
}

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}
