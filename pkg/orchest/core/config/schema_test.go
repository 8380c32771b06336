package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/swell/pkg/orchest/core/config"
	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

func testSchema() config.Schema {
	return config.Schema{
		"dataset": {Type: config.TypeString, Required: true},
		"limit":   {Type: config.TypeInt},
		"ratio":   {Type: config.TypeFloat},
		"dry_run": {Type: config.TypeBool},
		"storage": {
			Type: config.TypeSelector,
			Fields: map[string]config.FieldDef{
				"filesystem": {Type: config.TypeMap, Fields: map[string]config.FieldDef{
					"path": {Type: config.TypeString, Required: true},
				}},
				"s3": {Type: config.TypeMap, Fields: map[string]config.FieldDef{
					"bucket": {Type: config.TypeString, Required: true},
				}},
			},
		},
		"columns": {Type: config.TypeList, Of: &config.FieldDef{Type: config.TypeString}},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	err := testSchema().Validate("job", model.RunConfig{
		"dataset": "events",
		"limit":   100,
		"ratio":   0.5,
		"dry_run": true,
		"storage": map[string]interface{}{
			"filesystem": map[string]interface{}{"path": "/tmp/out"},
		},
		"columns": []interface{}{"id", "ts"},
	})
	assert.Nil(t, err)
}

func TestValidateMissingSingleRequiredField(t *testing.T) {
	err := testSchema().Validate("job", model.RunConfig{})
	require.NotNil(t, err)

	assert.True(t, err.HasReason(config.ReasonMissingRequiredField))
	assert.False(t, err.HasReason(config.ReasonMissingRequiredFields))
	assert.Equal(t, exception.KindConfigInvalid, exception.KindOf(err))
}

func TestValidateMissingMultipleRequiredFieldsCollapseToOneError(t *testing.T) {
	schema := config.Schema{
		"alpha": {Type: config.TypeString, Required: true},
		"beta":  {Type: config.TypeString, Required: true},
	}
	err := schema.Validate("job", model.RunConfig{})
	require.NotNil(t, err)

	require.Len(t, err.Errors, 1)
	assert.Equal(t, config.ReasonMissingRequiredFields, err.Errors[0].Reason)
	assert.Contains(t, err.Errors[0].Detail, "alpha")
	assert.Contains(t, err.Errors[0].Detail, "beta")
}

func TestValidateTypeMismatch(t *testing.T) {
	err := testSchema().Validate("job", model.RunConfig{
		"dataset": 42,
		"limit":   "not a number",
	})
	require.NotNil(t, err)

	assert.True(t, err.HasReason(config.ReasonTypeMismatch))
	assert.Len(t, err.Errors, 2)
}

func TestValidateIntAcceptsIntegralJSONNumbers(t *testing.T) {
	err := testSchema().Validate("job", model.RunConfig{
		"dataset": "events",
		"limit":   float64(10),
	})
	assert.Nil(t, err)

	err = testSchema().Validate("job", model.RunConfig{
		"dataset": "events",
		"limit":   10.5,
	})
	require.NotNil(t, err)
	assert.True(t, err.HasReason(config.ReasonTypeMismatch))
}

func TestValidateUndefinedField(t *testing.T) {
	err := testSchema().Validate("job", model.RunConfig{
		"dataset": "events",
		"bogus":   true,
	})
	require.NotNil(t, err)

	assert.True(t, err.HasReason(config.ReasonFieldNotDefined))
	require.Len(t, err.Errors, 1)
	assert.Equal(t, "bogus", err.Errors[0].Path)
}

func TestValidateSelectorRequiresExactlyOneField(t *testing.T) {
	// Zero selector branches set.
	err := testSchema().Validate("job", model.RunConfig{
		"dataset": "events",
		"storage": map[string]interface{}{},
	})
	require.NotNil(t, err)
	assert.True(t, err.HasReason(config.ReasonSelectorFieldError))

	// Two selector branches set.
	err = testSchema().Validate("job", model.RunConfig{
		"dataset": "events",
		"storage": map[string]interface{}{
			"filesystem": map[string]interface{}{"path": "/tmp"},
			"s3":         map[string]interface{}{"bucket": "b"},
		},
	})
	require.NotNil(t, err)
	assert.True(t, err.HasReason(config.ReasonSelectorFieldError))
}

func TestValidateNestedMapPaths(t *testing.T) {
	err := testSchema().Validate("job", model.RunConfig{
		"dataset": "events",
		"storage": map[string]interface{}{
			"filesystem": map[string]interface{}{},
		},
	})
	require.NotNil(t, err)

	require.Len(t, err.Errors, 1)
	assert.Equal(t, config.ReasonMissingRequiredField, err.Errors[0].Reason)
	assert.Equal(t, "storage.filesystem.path", err.Errors[0].Path)
}

func TestValidateListElements(t *testing.T) {
	err := testSchema().Validate("job", model.RunConfig{
		"dataset": "events",
		"columns": []interface{}{"id", 7},
	})
	require.NotNil(t, err)

	require.Len(t, err.Errors, 1)
	assert.Equal(t, config.ReasonTypeMismatch, err.Errors[0].Reason)
	assert.Equal(t, "columns[1]", err.Errors[0].Path)
}

func TestValidateCollectsEveryFailure(t *testing.T) {
	err := testSchema().Validate("job", model.RunConfig{
		"limit":   "no",
		"unknown": 1,
	})
	require.NotNil(t, err)

	assert.True(t, err.HasReason(config.ReasonMissingRequiredField))
	assert.True(t, err.HasReason(config.ReasonTypeMismatch))
	assert.True(t, err.HasReason(config.ReasonFieldNotDefined))
}
