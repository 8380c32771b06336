package model

import (
	"errors"
	"time"

	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

// EventLevel is the severity level of a logged event.
type EventLevel string

const (
	EventLevelDebug EventLevel = "DEBUG"
	EventLevelInfo  EventLevel = "INFO"
	EventLevelWarn  EventLevel = "WARN"
	EventLevelError EventLevel = "ERROR"
)

// EventType discriminates the payload of an Event.
type EventType string

const (
	// Run lifecycle events.
	EventTypeRunEnqueued   EventType = "RUN_ENQUEUED"
	EventTypeRunStarted    EventType = "RUN_STARTED"
	EventTypeRunSuccess    EventType = "RUN_SUCCESS"
	EventTypeRunFailure    EventType = "RUN_FAILURE"
	EventTypeRunTerminated EventType = "RUN_TERMINATED"

	// Step lifecycle events.
	EventTypeStepStart   EventType = "STEP_START"
	EventTypeStepSuccess EventType = "STEP_SUCCESS"
	EventTypeStepFailure EventType = "STEP_FAILURE"
	EventTypeStepSkipped EventType = "STEP_SKIPPED"

	// Diagnostic and housekeeping events.
	EventTypeMaterialization EventType = "MATERIALIZATION"
	EventTypeTypeCheck       EventType = "TYPE_CHECK"
	EventTypeEngine          EventType = "ENGINE_EVENT"
	EventTypeHookCompleted   EventType = "HOOK_COMPLETED"
	EventTypeHookErrored     EventType = "HOOK_ERRORED"
)

// IsStepEvent reports whether the event type belongs to the step lifecycle.
func (t EventType) IsStepEvent() bool {
	switch t {
	case EventTypeStepStart, EventTypeStepSuccess, EventTypeStepFailure, EventTypeStepSkipped:
		return true
	default:
		return false
	}
}

// ErrorInfo is the serializable rendering of an engine error: a human message,
// an optional class tag, the captured stack trace, and an optional chained cause.
type ErrorInfo struct {
	Message string     `json:"message"`
	Kind    string     `json:"kind,omitempty"`
	Stack   string     `json:"stack,omitempty"`
	Cause   *ErrorInfo `json:"cause,omitempty"`
}

// NewErrorInfo converts an error into its ErrorInfo rendering, preserving the
// cause chain of nested OrchestErrors.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var oe *exception.OrchestError
	if errors.As(err, &oe) {
		info := &ErrorInfo{
			Message: oe.Message,
			Kind:    string(oe.ErrKind),
			Stack:   oe.StackTrace,
			Cause:   NewErrorInfo(oe.OriginalErr),
		}
		// Context wrapped around the OrchestError stays in the message.
		if err != error(oe) {
			info.Message = err.Error()
		}
		return info
	}
	return &ErrorInfo{Message: err.Error()}
}

// MaterializationPayload describes an asset materialization reported by a step.
type MaterializationPayload struct {
	AssetKey    string            `json:"asset_key"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// TypeCheckPayload describes the outcome of a type check on a step output.
type TypeCheckPayload struct {
	Label       string `json:"label"`
	Success     bool   `json:"success"`
	Description string `json:"description,omitempty"`
}

// HookPayload describes the outcome of a hook attached to a step.
type HookPayload struct {
	HookName string `json:"hook_name"`
	Success  bool   `json:"success"`
}

// Event is a single entry in a run's append-only event log. The Cursor is
// run-local, strictly increasing and starts at 0; it is assigned by the event
// log at append time. Events are never mutated or reordered once written.
type Event struct {
	RunID     string
	Cursor    int64
	Timestamp time.Time
	Level     EventLevel
	Type      EventType
	Message   string

	// StepKey is set for step lifecycle, materialization, type-check and hook events.
	StepKey string
	// Error is set for failure events.
	Error *ErrorInfo
	// Materialization is set for MATERIALIZATION events.
	Materialization *MaterializationPayload
	// TypeCheck is set for TYPE_CHECK events.
	TypeCheck *TypeCheckPayload
	// Hook is set for hook outcome events.
	Hook *HookPayload
}

// NewRunEvent creates a run lifecycle event.
func NewRunEvent(runID string, eventType EventType, message string) Event {
	return Event{
		RunID:     runID,
		Timestamp: time.Now(),
		Level:     EventLevelInfo,
		Type:      eventType,
		Message:   message,
	}
}

// NewRunFailureEvent creates a run failure event carrying the error payload.
func NewRunFailureEvent(runID string, message string, err error) Event {
	e := NewRunEvent(runID, EventTypeRunFailure, message)
	e.Level = EventLevelError
	e.Error = NewErrorInfo(err)
	return e
}

// NewStepEvent creates a step lifecycle event.
func NewStepEvent(runID, stepKey string, eventType EventType, message string) Event {
	e := NewRunEvent(runID, eventType, message)
	e.StepKey = stepKey
	if eventType == EventTypeStepFailure {
		e.Level = EventLevelError
	}
	return e
}

// NewEngineEvent creates an engine housekeeping event.
func NewEngineEvent(runID, message string) Event {
	return NewRunEvent(runID, EventTypeEngine, message)
}
