// Package config provides the run-configuration schema model, its structural
// validation, and engine configuration loading.
package config

import (
	"fmt"
	"sort"
	"strings"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

// Reason is the machine-readable cause of a single validation failure.
type Reason string

const (
	ReasonTypeMismatch          Reason = "TYPE_MISMATCH"
	ReasonMissingRequiredField  Reason = "MISSING_REQUIRED_FIELD"
	ReasonMissingRequiredFields Reason = "MISSING_REQUIRED_FIELDS"
	ReasonFieldNotDefined       Reason = "FIELD_NOT_DEFINED"
	ReasonSelectorFieldError    Reason = "SELECTOR_FIELD_ERROR"
)

// FieldType enumerates the scalar and composite types a schema field may take.
type FieldType string

const (
	TypeString FieldType = "String"
	TypeInt    FieldType = "Int"
	TypeFloat  FieldType = "Float"
	TypeBool   FieldType = "Bool"
	TypeAny    FieldType = "Any"
	TypeMap    FieldType = "Map"
	TypeList   FieldType = "List"
	// TypeSelector is a map of which exactly one field must be supplied.
	TypeSelector FieldType = "Selector"
)

// FieldDef describes one field of a configuration schema.
type FieldDef struct {
	Type     FieldType
	Required bool
	// Fields holds the nested schema for Map and Selector fields.
	Fields map[string]FieldDef
	// Of holds the element schema for List fields.
	Of *FieldDef
}

// Schema is the root configuration schema of a job: a map of top-level fields.
type Schema map[string]FieldDef

// ValidationError is a single structural failure, carrying the dot-joined
// field path, the evaluation stack of list/field traversal entries, and the
// reason code.
type ValidationError struct {
	Path   string
	Stack  []string
	Reason Reason
	// Detail carries the human-readable specifics (expected type, missing
	// field names, selector candidates).
	Detail string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s at %q: %s", e.Reason, e.Path, e.Detail)
}

// ConfigValidationError aggregates every structural failure found while
// validating a run configuration against a schema. It classifies as
// KindConfigInvalid and is never retried automatically.
type ConfigValidationError struct {
	JobName string
	Errors  []ValidationError
}

// Error implements the error interface.
func (e *ConfigValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("run config for job %q is invalid: %s", e.JobName, strings.Join(msgs, "; "))
}

// Kind classifies the error for caller-side discrimination.
func (e *ConfigValidationError) Kind() exception.Kind {
	return exception.KindConfigInvalid
}

// HasReason reports whether any collected error carries the given reason.
func (e *ConfigValidationError) HasReason(reason Reason) bool {
	for _, ve := range e.Errors {
		if ve.Reason == reason {
			return true
		}
	}
	return false
}

// Validate checks a run configuration payload against the schema, collecting
// every structural failure instead of stopping at the first. A nil return
// means the payload satisfies the schema.
func (s Schema) Validate(jobName string, cfg model.RunConfig) *ConfigValidationError {
	v := &validator{}
	v.validateMap(map[string]FieldDef(s), map[string]interface{}(cfg), "", nil, false)
	if len(v.errors) == 0 {
		return nil
	}
	return &ConfigValidationError{JobName: jobName, Errors: v.errors}
}

// validator accumulates failures while walking the schema.
type validator struct {
	errors []ValidationError
}

func (v *validator) add(path string, stack []string, reason Reason, detail string) {
	v.errors = append(v.errors, ValidationError{
		Path:   path,
		Stack:  append([]string(nil), stack...),
		Reason: reason,
		Detail: detail,
	})
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

// validateMap walks one map level: undefined fields, missing required fields
// (one plural error when more than one is missing), then field values.
// selector toggles the exactly-one-field rule.
func (v *validator) validateMap(fields map[string]FieldDef, value map[string]interface{}, path string, stack []string, selector bool) {
	if selector {
		var set []string
		for name := range value {
			if _, ok := fields[name]; ok {
				set = append(set, name)
			}
		}
		if len(set) != 1 {
			candidates := make([]string, 0, len(fields))
			for name := range fields {
				candidates = append(candidates, name)
			}
			sort.Strings(candidates)
			v.add(path, stack, ReasonSelectorFieldError,
				fmt.Sprintf("expected exactly one of [%s], got %d", strings.Join(candidates, ", "), len(set)))
			return
		}
	}

	for name := range value {
		if _, ok := fields[name]; !ok {
			v.add(joinPath(path, name), append(stack, "field:"+name), ReasonFieldNotDefined,
				fmt.Sprintf("field %q is not defined in the schema", name))
		}
	}

	if !selector {
		var missing []string
		for name, def := range fields {
			if def.Required {
				if _, ok := value[name]; !ok {
					missing = append(missing, name)
				}
			}
		}
		sort.Strings(missing)
		if len(missing) == 1 {
			v.add(joinPath(path, missing[0]), append(stack, "field:"+missing[0]), ReasonMissingRequiredField,
				fmt.Sprintf("required field %q is missing", missing[0]))
		} else if len(missing) > 1 {
			v.add(path, stack, ReasonMissingRequiredFields,
				fmt.Sprintf("required fields [%s] are missing", strings.Join(missing, ", ")))
		}
	}

	for name, raw := range value {
		def, ok := fields[name]
		if !ok {
			continue
		}
		v.validateValue(def, raw, joinPath(path, name), append(stack, "field:"+name))
	}
}

func (v *validator) validateValue(def FieldDef, raw interface{}, path string, stack []string) {
	switch def.Type {
	case TypeAny:
		return
	case TypeString:
		if _, ok := raw.(string); !ok {
			v.add(path, stack, ReasonTypeMismatch, fmt.Sprintf("expected String, got %T", raw))
		}
	case TypeBool:
		if _, ok := raw.(bool); !ok {
			v.add(path, stack, ReasonTypeMismatch, fmt.Sprintf("expected Bool, got %T", raw))
		}
	case TypeInt:
		switch n := raw.(type) {
		case int, int32, int64:
		case float64:
			// Numbers decoded from JSON arrive as float64; accept integral values.
			if n != float64(int64(n)) {
				v.add(path, stack, ReasonTypeMismatch, fmt.Sprintf("expected Int, got fractional number %v", n))
			}
		default:
			v.add(path, stack, ReasonTypeMismatch, fmt.Sprintf("expected Int, got %T", raw))
		}
	case TypeFloat:
		switch raw.(type) {
		case float32, float64, int, int32, int64:
		default:
			v.add(path, stack, ReasonTypeMismatch, fmt.Sprintf("expected Float, got %T", raw))
		}
	case TypeMap, TypeSelector:
		m, ok := toStringMap(raw)
		if !ok {
			v.add(path, stack, ReasonTypeMismatch, fmt.Sprintf("expected Map, got %T", raw))
			return
		}
		v.validateMap(def.Fields, m, path, stack, def.Type == TypeSelector)
	case TypeList:
		items, ok := raw.([]interface{})
		if !ok {
			v.add(path, stack, ReasonTypeMismatch, fmt.Sprintf("expected List, got %T", raw))
			return
		}
		if def.Of == nil {
			return
		}
		for i, item := range items {
			v.validateValue(*def.Of, item, fmt.Sprintf("%s[%d]", path, i), append(stack, fmt.Sprintf("index:%d", i)))
		}
	default:
		v.add(path, stack, ReasonTypeMismatch, fmt.Sprintf("unknown schema type %q", def.Type))
	}
}

func toStringMap(raw interface{}) (map[string]interface{}, bool) {
	switch m := raw.(type) {
	case map[string]interface{}:
		return m, true
	case model.RunConfig:
		return map[string]interface{}(m), true
	default:
		return nil, false
	}
}
