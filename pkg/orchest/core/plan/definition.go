// Package plan turns a job definition and an optional step selection into an
// immutable, acyclic execution plan with a deterministic snapshot id.
package plan

import (
	"context"

	"github.com/tigerroll/swell/pkg/orchest/core/config"
	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
)

// ComputeFunc is the body of a compute step. It receives the run configuration
// the run was launched with. A nil ComputeFunc is a no-op step.
type ComputeFunc func(ctx context.Context, runConfig model.RunConfig) error

// UpstreamRef names one dependency of an input: the upstream step and the
// output of that step the input consumes.
type UpstreamRef struct {
	StepKey    string
	OutputName string
}

// InputDefinition declares a named input of a step and its upstream
// dependencies.
type InputDefinition struct {
	Name      string
	Upstreams []UpstreamRef
}

// OutputDefinition declares a named output of a step.
type OutputDefinition struct {
	Name string
}

// StepDefinition declares one step of a job graph. Declaration order within
// the job is significant: the plan keeps it to stabilize snapshot ids.
type StepDefinition struct {
	Key     string
	Kind    model.StepKind
	Inputs  []InputDefinition
	Outputs []OutputDefinition
	Compute ComputeFunc
}

// JobDefinition declares a job: its step graph and the schema its run
// configuration payload must satisfy.
type JobDefinition struct {
	Name         string
	Mode         string
	ConfigSchema config.Schema
	Steps        []StepDefinition
}

// StepByKey returns the step definition with the given key.
func (j *JobDefinition) StepByKey(key string) (StepDefinition, bool) {
	for _, s := range j.Steps {
		if s.Key == key {
			return s, true
		}
	}
	return StepDefinition{}, false
}

// ValidateConfig checks a run configuration payload against the job's schema.
// Jobs without a schema accept any payload.
func (j *JobDefinition) ValidateConfig(cfg model.RunConfig) *config.ConfigValidationError {
	if j.ConfigSchema == nil {
		return nil
	}
	return j.ConfigSchema.Validate(j.Name, cfg)
}
