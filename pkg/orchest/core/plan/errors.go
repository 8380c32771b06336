package plan

import (
	"fmt"
	"strings"

	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

// InvalidSubsetError is returned when a step selection references step keys
// that do not exist in the job graph.
type InvalidSubsetError struct {
	JobName     string
	UnknownKeys []string
}

// Error implements the error interface.
func (e *InvalidSubsetError) Error() string {
	return fmt.Sprintf("step selection for job %q references unknown steps: [%s]",
		e.JobName, strings.Join(e.UnknownKeys, ", "))
}

// Kind classifies the error for caller-side discrimination.
func (e *InvalidSubsetError) Kind() exception.Kind {
	return exception.KindNotFound
}

// InvalidStepError is returned when an input references an upstream step that
// does not exist in the job graph.
type InvalidStepError struct {
	JobName string
	StepKey string
	// ReferencedBy is the step whose input named the missing step.
	ReferencedBy string
}

// Error implements the error interface.
func (e *InvalidStepError) Error() string {
	return fmt.Sprintf("job %q: step %q referenced by %q does not exist",
		e.JobName, e.StepKey, e.ReferencedBy)
}

// Kind classifies the error for caller-side discrimination.
func (e *InvalidStepError) Kind() exception.Kind {
	return exception.KindNotFound
}

// InvalidOutputError is returned when an input references an output name the
// upstream step does not declare.
type InvalidOutputError struct {
	JobName    string
	StepKey    string
	OutputName string
}

// Error implements the error interface.
func (e *InvalidOutputError) Error() string {
	return fmt.Sprintf("job %q: step %q does not declare output %q",
		e.JobName, e.StepKey, e.OutputName)
}

// Kind classifies the error for caller-side discrimination.
func (e *InvalidOutputError) Kind() exception.Kind {
	return exception.KindNotFound
}
