// Package exception provides custom error types and error handling utilities for
// the Swell orchestration core. It standardizes errors raised by the engine and
// classifies them into the fixed taxonomy callers discriminate on: not-found,
// config-invalid, conflict, not-supported and internal.
package exception

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// Kind classifies an OrchestError into one of the fixed error categories.
type Kind string

const (
	// KindNotFound marks errors for entities that do not exist (run, schedule,
	// sensor, partition set, job). Locally recoverable, never fatal to the engine.
	KindNotFound Kind = "NOT_FOUND"
	// KindConfigInvalid marks structured configuration validation failures.
	// Surfaced to the caller, never retried automatically.
	KindConfigInvalid Kind = "CONFIG_INVALID"
	// KindConflict marks duplicate launches, invalid state transitions and
	// selector mismatches. Surfaced, not retried.
	KindConflict Kind = "CONFLICT"
	// KindNotSupported marks operations the configured backend cannot perform.
	KindNotSupported Kind = "NOT_SUPPORTED"
	// KindInternal is the generic wrapper for anything not in the above
	// categories. Logged and surfaced but never crashes the engine process.
	KindInternal Kind = "INTERNAL"
)

// errorRegistry maps error names to concrete error instances.
// Registered errors are singletons compared with errors.Is.
var errorRegistry = make(map[string]error)

// registryMutex protects access to errorRegistry.
var registryMutex sync.RWMutex

// RegisterErrorType registers an error type in the registry.
// Registered error types are referenced by IsErrorOfType and are used for error
// classification.
//
// If prototype is nil or name is empty, this function panics.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}

	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered checks if the specified error type name is registered.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// IsErrorOfType reports whether err matches the registered prototype for name.
func IsErrorOfType(err error, name string) bool {
	registryMutex.RLock()
	prototype, ok := errorRegistry[name]
	registryMutex.RUnlock()
	if !ok {
		return false
	}
	return errors.Is(err, prototype)
}

// OrchestError is the custom error type raised by the orchestration engine.
// It holds the module where the error occurred, a message, the wrapped original
// error, a Kind tag for the error taxonomy, and the stack trace captured at
// construction time.
type OrchestError struct {
	// Module indicates the module where the error occurred (e.g., "controller", "scheduler", "eventlog").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error (the cause chain).
	OriginalErr error
	// ErrKind classifies the error for caller-side discrimination.
	ErrKind Kind
	// StackTrace is the stack trace at the time of the error.
	StackTrace string
}

// NewOrchestError creates a new OrchestError instance.
func NewOrchestError(module, message string, originalErr error, kind Kind) *OrchestError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	stackTrace := string(buf[:n])

	return &OrchestError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		ErrKind:     kind,
		StackTrace:  stackTrace,
	}
}

// NewInternalError creates an OrchestError with KindInternal.
func NewInternalError(module, message string, originalErr error) *OrchestError {
	return NewOrchestError(module, message, originalErr, KindInternal)
}

// NewNotFoundError creates an OrchestError with KindNotFound.
// sentinel, when non-nil, is joined into the cause chain so callers can use
// errors.Is against the repository sentinel errors.
func NewNotFoundError(module, message string, sentinel error) *OrchestError {
	return NewOrchestError(module, message, sentinel, KindNotFound)
}

// NewConflictError creates an OrchestError with KindConflict.
func NewConflictError(module, message string, originalErr error) *OrchestError {
	return NewOrchestError(module, message, originalErr, KindConflict)
}

// NewNotSupportedError creates an OrchestError with KindNotSupported.
func NewNotSupportedError(module, message string) *OrchestError {
	return NewOrchestError(module, message, nil, KindNotSupported)
}

// Error implements the error interface.
// It returns the error's module, message, and the string representation of the original error.
func (e *OrchestError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *OrchestError) Unwrap() error {
	return e.OriginalErr
}

// Kind returns the taxonomy classification of this error.
func (e *OrchestError) Kind() Kind {
	return e.ErrKind
}

// KindOf classifies an arbitrary error. The first error in the chain that
// carries a Kind — an OrchestError or a typed error with its own Kind method —
// determines it; anything else is KindInternal. A nil error has no kind and
// returns the empty string.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classified interface{ Kind() Kind }
	if errors.As(err, &classified) {
		return classified.Kind()
	}
	return KindInternal
}

// IsOrchestError determines if the given error is of type OrchestError.
func IsOrchestError(err error) bool {
	if err == nil {
		return false
	}
	var oe *OrchestError
	return errors.As(err, &oe)
}

// ExtractErrorMessage returns a human readable message for err, preferring the
// OrchestError message over the full chain rendering.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var oe *OrchestError
	if errors.As(err, &oe) {
		return oe.Error()
	}
	return err.Error()
}
