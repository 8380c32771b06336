package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	plan "github.com/tigerroll/swell/pkg/orchest/core/plan"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

// diamondJob declares a -> {b, c} -> d in declaration order a, b, c, d.
func diamondJob() *plan.JobDefinition {
	return &plan.JobDefinition{
		Name: "diamond",
		Steps: []plan.StepDefinition{
			{Key: "a", Outputs: []plan.OutputDefinition{{Name: "result"}}},
			{
				Key:     "b",
				Inputs:  []plan.InputDefinition{{Name: "in", Upstreams: []plan.UpstreamRef{{StepKey: "a", OutputName: "result"}}}},
				Outputs: []plan.OutputDefinition{{Name: "result"}},
			},
			{
				Key:     "c",
				Inputs:  []plan.InputDefinition{{Name: "in", Upstreams: []plan.UpstreamRef{{StepKey: "a", OutputName: "result"}}}},
				Outputs: []plan.OutputDefinition{{Name: "result"}},
			},
			{
				Key: "d",
				Inputs: []plan.InputDefinition{{
					Name: "in",
					Upstreams: []plan.UpstreamRef{
						{StepKey: "b", OutputName: "result"},
						{StepKey: "c", OutputName: "result"},
					},
				}},
			},
		},
	}
}

func TestBuildFullSelectionKeepsDeclarationOrder(t *testing.T) {
	p, err := plan.Build(diamondJob(), nil)
	require.NoError(t, err)

	assert.Equal(t, "diamond", p.JobName)
	assert.Equal(t, []string{"a", "b", "c", "d"}, p.StepKeysToExecute)
	assert.NotEmpty(t, p.SnapshotID)
}

func TestBuildIsDeterministic(t *testing.T) {
	first, err := plan.Build(diamondJob(), nil)
	require.NoError(t, err)
	second, err := plan.Build(diamondJob(), nil)
	require.NoError(t, err)

	assert.Equal(t, first.SnapshotID, second.SnapshotID)
	assert.Equal(t, first.StepKeysToExecute, second.StepKeysToExecute)
}

func TestBuildSubsetExpandsUpstreamClosure(t *testing.T) {
	p, err := plan.Build(diamondJob(), []string{"b"})
	require.NoError(t, err)

	// b pulls in its upstream a but not the unrelated branch c.
	assert.Equal(t, []string{"a", "b"}, p.StepKeysToExecute)
}

func TestBuildSubsetOfSinkSelectsEverything(t *testing.T) {
	p, err := plan.Build(diamondJob(), []string{"d"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, p.StepKeysToExecute)
}

func TestBuildSubsetSnapshotDiffersFromFullPlan(t *testing.T) {
	full, err := plan.Build(diamondJob(), nil)
	require.NoError(t, err)
	subset, err := plan.Build(diamondJob(), []string{"b"})
	require.NoError(t, err)

	assert.NotEqual(t, full.SnapshotID, subset.SnapshotID)
}

func TestBuildUnknownSelectionKeys(t *testing.T) {
	_, err := plan.Build(diamondJob(), []string{"b", "nope", "also_nope"})
	require.Error(t, err)

	var subsetErr *plan.InvalidSubsetError
	require.ErrorAs(t, err, &subsetErr)
	assert.Equal(t, "diamond", subsetErr.JobName)
	assert.Equal(t, []string{"also_nope", "nope"}, subsetErr.UnknownKeys)
	assert.Equal(t, exception.KindNotFound, exception.KindOf(err))
}

func TestBuildUnknownUpstreamStep(t *testing.T) {
	def := &plan.JobDefinition{
		Name: "broken",
		Steps: []plan.StepDefinition{
			{
				Key:    "only",
				Inputs: []plan.InputDefinition{{Name: "in", Upstreams: []plan.UpstreamRef{{StepKey: "ghost"}}}},
			},
		},
	}
	_, err := plan.Build(def, nil)
	require.Error(t, err)

	var stepErr *plan.InvalidStepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "ghost", stepErr.StepKey)
	assert.Equal(t, "only", stepErr.ReferencedBy)
}

func TestBuildUndeclaredOutputName(t *testing.T) {
	def := &plan.JobDefinition{
		Name: "broken",
		Steps: []plan.StepDefinition{
			{Key: "up", Outputs: []plan.OutputDefinition{{Name: "result"}}},
			{
				Key:    "down",
				Inputs: []plan.InputDefinition{{Name: "in", Upstreams: []plan.UpstreamRef{{StepKey: "up", OutputName: "missing"}}}},
			},
		},
	}
	_, err := plan.Build(def, nil)
	require.Error(t, err)

	var outErr *plan.InvalidOutputError
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, "up", outErr.StepKey)
	assert.Equal(t, "missing", outErr.OutputName)
}

func TestBuildDuplicateStepKey(t *testing.T) {
	def := &plan.JobDefinition{
		Name: "dup",
		Steps: []plan.StepDefinition{
			{Key: "same"},
			{Key: "same"},
		},
	}
	_, err := plan.Build(def, nil)
	require.Error(t, err)
	assert.Equal(t, exception.KindConflict, exception.KindOf(err))
}

func TestBuildCycleDetection(t *testing.T) {
	def := &plan.JobDefinition{
		Name: "cyclic",
		Steps: []plan.StepDefinition{
			{
				Key:     "x",
				Inputs:  []plan.InputDefinition{{Name: "in", Upstreams: []plan.UpstreamRef{{StepKey: "y"}}}},
				Outputs: []plan.OutputDefinition{{Name: "result"}},
			},
			{
				Key:     "y",
				Inputs:  []plan.InputDefinition{{Name: "in", Upstreams: []plan.UpstreamRef{{StepKey: "x"}}}},
				Outputs: []plan.OutputDefinition{{Name: "result"}},
			},
		},
	}
	_, err := plan.Build(def, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuildEmptyJobIsRejected(t *testing.T) {
	_, err := plan.Build(&plan.JobDefinition{Name: "empty"}, nil)
	require.Error(t, err)
}

func TestBuildDefaultsStepKind(t *testing.T) {
	p, err := plan.Build(diamondJob(), nil)
	require.NoError(t, err)
	for _, s := range p.Steps {
		assert.Equal(t, model.StepKindCompute, s.Kind)
	}
}
