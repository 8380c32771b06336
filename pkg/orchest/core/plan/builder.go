package plan

import (
	"fmt"
	"sort"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

// Build resolves the declared step graph of a job into an execution plan,
// optionally restricted to the transitive upstream closure of stepSelection.
// The result is deterministic: identical definition and selection always yield
// an identical step ordering, key set and snapshot id.
func Build(jobDef *JobDefinition, stepSelection []string) (*model.ExecutionPlan, error) {
	const op = "plan"

	if jobDef == nil {
		return nil, exception.NewInternalError(op, "job definition is nil", nil)
	}
	if len(jobDef.Steps) == 0 {
		return nil, exception.NewInternalError(op, fmt.Sprintf("job %q declares no steps", jobDef.Name), nil)
	}

	// Resolve steps in declaration order, checking key uniqueness and
	// dependency references.
	defined := make(map[string]StepDefinition, len(jobDef.Steps))
	for _, sd := range jobDef.Steps {
		if _, dup := defined[sd.Key]; dup {
			return nil, exception.NewConflictError(op,
				fmt.Sprintf("job %q declares duplicate step key %q", jobDef.Name, sd.Key), nil)
		}
		defined[sd.Key] = sd
	}

	steps := make([]model.PlanStep, 0, len(jobDef.Steps))
	for _, sd := range jobDef.Steps {
		ps := model.PlanStep{Key: sd.Key, Kind: sd.Kind}
		if ps.Kind == "" {
			ps.Kind = model.StepKindCompute
		}
		for _, in := range sd.Inputs {
			pi := model.PlanInput{Name: in.Name}
			for _, ref := range in.Upstreams {
				upstream, ok := defined[ref.StepKey]
				if !ok {
					return nil, &InvalidStepError{JobName: jobDef.Name, StepKey: ref.StepKey, ReferencedBy: sd.Key}
				}
				if ref.OutputName != "" && !declaresOutput(upstream, ref.OutputName) {
					return nil, &InvalidOutputError{JobName: jobDef.Name, StepKey: ref.StepKey, OutputName: ref.OutputName}
				}
				pi.UpstreamStepKeys = append(pi.UpstreamStepKeys, ref.StepKey)
			}
			ps.Inputs = append(ps.Inputs, pi)
		}
		for _, out := range sd.Outputs {
			ps.Outputs = append(ps.Outputs, model.PlanOutput{Name: out.Name})
		}
		steps = append(steps, ps)
	}

	if err := checkAcyclic(jobDef.Name, steps); err != nil {
		return nil, err
	}

	keysToExecute, err := resolveSelection(jobDef.Name, steps, stepSelection)
	if err != nil {
		return nil, err
	}

	p := &model.ExecutionPlan{
		JobName:           jobDef.Name,
		Steps:             steps,
		StepKeysToExecute: keysToExecute,
	}
	snapshotID, err := p.ComputeSnapshotID()
	if err != nil {
		return nil, exception.NewInternalError(op, "Failed to compute plan snapshot id", err)
	}
	p.SnapshotID = snapshotID
	return p, nil
}

func declaresOutput(sd StepDefinition, name string) bool {
	for _, out := range sd.Outputs {
		if out.Name == name {
			return true
		}
	}
	return false
}

// checkAcyclic runs Kahn's algorithm over the full step graph and fails when
// steps remain with unresolved in-degree.
func checkAcyclic(jobName string, steps []model.PlanStep) error {
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	for _, s := range steps {
		deps := s.DependencyKeys()
		indegree[s.Key] = len(deps)
		for _, up := range deps {
			dependents[up] = append(dependents[up], s.Key)
		}
	}

	var frontier []string
	for _, s := range steps {
		if indegree[s.Key] == 0 {
			frontier = append(frontier, s.Key)
		}
	}

	visited := 0
	for len(frontier) > 0 {
		key := frontier[0]
		frontier = frontier[1:]
		visited++
		for _, down := range dependents[key] {
			indegree[down]--
			if indegree[down] == 0 {
				frontier = append(frontier, down)
			}
		}
	}

	if visited != len(steps) {
		var cyclic []string
		for key, deg := range indegree {
			if deg > 0 {
				cyclic = append(cyclic, key)
			}
		}
		sort.Strings(cyclic)
		return exception.NewInternalError("plan",
			fmt.Sprintf("job %q: step dependency graph contains a cycle involving [%v]", jobName, cyclic), nil)
	}
	return nil
}

// resolveSelection expands a step selection to its transitive upstream
// closure and returns the closure keys in declaration order. An empty
// selection selects every step.
func resolveSelection(jobName string, steps []model.PlanStep, selection []string) ([]string, error) {
	all := make([]string, len(steps))
	byKey := make(map[string]model.PlanStep, len(steps))
	for i, s := range steps {
		all[i] = s.Key
		byKey[s.Key] = s
	}

	if len(selection) == 0 {
		return all, nil
	}

	var unknown []string
	closure := make(map[string]struct{})
	var expand func(key string)
	expand = func(key string) {
		if _, ok := closure[key]; ok {
			return
		}
		closure[key] = struct{}{}
		for _, up := range byKey[key].DependencyKeys() {
			expand(up)
		}
	}
	for _, key := range selection {
		if _, ok := byKey[key]; !ok {
			unknown = append(unknown, key)
			continue
		}
		expand(key)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &InvalidSubsetError{JobName: jobName, UnknownKeys: unknown}
	}

	keys := make([]string, 0, len(closure))
	for _, key := range all {
		if _, ok := closure[key]; ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
