package config

import (
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/nlstep/nlstep/pkg/schema"
)

// configSchemaJSON is the JSON Schema for config file validation.
// Embedded as a constant to avoid filesystem dependencies.
const configSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://nlstep.dev/schemas/config.json",
  "type": "object",
  "properties": {
    "base_url": { "type": "string" },
    "login_path": { "type": "string", "pattern": "^/" },
    "request_timeout": { "type": "string", "pattern": "^[0-9]+(ns|us|µs|ms|s|m|h)$" },
    "log_level": { "type": "string", "enum": ["debug", "info", "warn", "warning", "error"] },
    "db_path": { "type": "string" },
    "failure_phrases": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "negative_markers": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "classifier": {
      "type": "object",
      "properties": {
        "base_url": { "type": "string" },
        "api_key": { "type": "string" },
        "model": { "type": "string" }
      },
      "additionalProperties": false
    },
    "browser": {
      "type": "object",
      "properties": {
        "command": { "type": "string" },
        "args": { "type": "array", "items": { "type": "string" } }
      },
      "additionalProperties": false
    },
    "schedules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "cron"],
        "properties": {
          "name": { "type": "string", "minLength": 1 },
          "cron": { "type": "string", "minLength": 1 },
          "paths": { "type": "array", "items": { "type": "string" } },
          "tags": { "type": "string" }
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func configSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat()

		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("unmarshal config schema: %w", err)
			return
		}
		if err := c.AddResource("https://nlstep.dev/schemas/config.json", doc); err != nil {
			schemaErr = fmt.Errorf("add config schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile("https://nlstep.dev/schemas/config.json")
	})
	return compiledSchema, schemaErr
}

// validateYAML checks the raw config file content against the config schema
// before any of it is applied.
func validateYAML(data []byte) error {
	s, err := configSchema()
	if err != nil {
		return err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return schema.NewError(schema.ErrCodeValidation, "config is not valid YAML").WithCause(err)
	}
	if doc == nil {
		return nil
	}

	if err := s.Validate(normalizeForSchema(doc)); err != nil {
		return toConfigError(err)
	}
	return nil
}

// normalizeForSchema converts YAML decode output into the value shapes the
// jsonschema library expects: string-keyed maps all the way down.
func normalizeForSchema(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeForSchema(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeForSchema(val)
		}
		return out
	default:
		return v
	}
}

// toConfigError flattens a jsonschema.ValidationError tree into one
// EngineError listing every violation with its location.
func toConfigError(err error) error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "config validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
