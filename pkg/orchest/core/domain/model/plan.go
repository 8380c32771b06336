package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// StepKind classifies a plan step.
type StepKind string

const (
	StepKindCompute StepKind = "COMPUTE"
	StepKindOther   StepKind = "OTHER"
)

// PlanInput is a named input of a plan step together with the set of upstream
// step keys it depends on.
type PlanInput struct {
	Name             string   `json:"name"`
	UpstreamStepKeys []string `json:"upstream_step_keys,omitempty"`
}

// PlanOutput is a named output of a plan step.
type PlanOutput struct {
	Name string `json:"name"`
}

// PlanStep is a single node of an execution plan. The Key is unique within
// the plan.
type PlanStep struct {
	Key     string       `json:"key"`
	Kind    StepKind     `json:"kind"`
	Inputs  []PlanInput  `json:"inputs,omitempty"`
	Outputs []PlanOutput `json:"outputs,omitempty"`
}

// DependencyKeys returns the union of upstream step keys across all inputs,
// in input declaration order, without duplicates.
func (s PlanStep) DependencyKeys() []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, in := range s.Inputs {
		for _, up := range in.UpstreamStepKeys {
			if _, ok := seen[up]; ok {
				continue
			}
			seen[up] = struct{}{}
			keys = append(keys, up)
		}
	}
	return keys
}

// ExecutionPlan is the immutable, acyclic step-dependency graph built once per
// run at launch time. Steps are held in declaration order, not dependency
// order, to keep snapshot ids stable; execution may use any topological order
// consistent with the dependencies.
type ExecutionPlan struct {
	JobName string     `json:"job_name"`
	Steps   []PlanStep `json:"steps"`
	// StepKeysToExecute is the resolved selection subset; equal to every step
	// key when no selection was requested.
	StepKeysToExecute []string `json:"step_keys_to_execute"`
	SnapshotID        string   `json:"snapshot_id"`
}

// StepByKey returns the plan step with the given key.
func (p *ExecutionPlan) StepByKey(key string) (PlanStep, bool) {
	for _, s := range p.Steps {
		if s.Key == key {
			return s, true
		}
	}
	return PlanStep{}, false
}

// HasStepKey reports whether key names a step of the plan.
func (p *ExecutionPlan) HasStepKey(key string) bool {
	_, ok := p.StepByKey(key)
	return ok
}

// Deps returns the dependency map of the plan restricted to StepKeysToExecute:
// step key to the upstream step keys that are also part of the selection.
func (p *ExecutionPlan) Deps() map[string][]string {
	selected := make(map[string]struct{}, len(p.StepKeysToExecute))
	for _, k := range p.StepKeysToExecute {
		selected[k] = struct{}{}
	}
	deps := make(map[string][]string, len(p.StepKeysToExecute))
	for _, s := range p.Steps {
		if _, ok := selected[s.Key]; !ok {
			continue
		}
		var ups []string
		for _, up := range s.DependencyKeys() {
			if _, ok := selected[up]; ok {
				ups = append(ups, up)
			}
		}
		deps[s.Key] = ups
	}
	return deps
}

// ComputeSnapshotID calculates the sha256 hash of the plan's canonical JSON
// form. Identical job definition and selection always yield an identical
// snapshot id because steps stay in declaration order.
func (p *ExecutionPlan) ComputeSnapshotID() (string, error) {
	shadow := *p
	shadow.SnapshotID = ""
	data, err := json.Marshal(&shadow)
	if err != nil {
		return "", err
	}
	hasher := sha256.New()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
