// Package validation checks workflow documents structurally, with JSON
// Schema, before the engine's semantic validation sees them. Structural
// errors name the exact location in the document instead of failing deep in
// a run.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/parley-sh/parley/pkg/schema"
)

// workflowSchemaJSON is the JSON Schema for workflow documents.
// Embedded as a constant to avoid filesystem dependencies.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://parley.sh/schemas/workflow.json",
  "type": "object",
  "required": ["initial", "states"],
  "properties": {
    "name": { "type": "string" },
    "initial": { "type": "string", "minLength": 1 },
    "maxSteps": { "type": "integer", "minimum": 1 },
    "states": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": { "$ref": "#/$defs/state" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "state": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["response", "elicitation", "sampling", "tool", "conditional", "parallel", "loop"]
        },
        "template": { "type": "string" },
        "elicitation": { "$ref": "#/$defs/elicitation" },
        "sampling": { "$ref": "#/$defs/sampling" },
        "prompt": { "type": "string" },
        "tool": { "type": "string" },
        "params": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "condition": { "type": "string" },
        "onTrue": { "type": "string" },
        "onFalse": { "type": "string" },
        "branches": {
          "type": "array",
          "minItems": 1,
          "items": { "type": "string", "minLength": 1 }
        },
        "body": { "type": "string" },
        "maxIterations": { "type": "integer", "minimum": 1 },
        "transitions": {
          "type": "object",
          "additionalProperties": { "type": "string", "minLength": 1 }
        }
      },
      "additionalProperties": false
    },
    "elicitation": {
      "type": "object",
      "required": ["type", "prompt"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["text", "number", "confirm", "select"]
        },
        "prompt": { "type": "string" },
        "pattern": { "type": "string" },
        "min": { "type": "number" },
        "max": { "type": "number" },
        "options": {
          "type": "array",
          "items": { "type": "string" }
        },
        "required": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "sampling": {
      "type": "object",
      "required": ["prompt"],
      "properties": {
        "prompt": { "type": "string" },
        "system": { "type": "string" },
        "context": {
          "type": "array",
          "items": { "type": "string" }
        },
        "model": { "type": "string" },
        "temperature": { "type": "number" },
        "max_tokens": { "type": "integer" },
        "top_p": { "type": "number" }
      },
      "additionalProperties": false
    }
  }
}`

// DocumentValidator validates workflow documents against the embedded JSON
// Schema. Safe for concurrent use after construction.
type DocumentValidator struct {
	compiled *jsonschema.Schema
}

// NewDocumentValidator compiles the embedded workflow schema.
func NewDocumentValidator() (*DocumentValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource("https://parley.sh/schemas/workflow.json", doc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}

	compiled, err := c.Compile("https://parley.sh/schemas/workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}
	return &DocumentValidator{compiled: compiled}, nil
}

// ValidateDocument checks a decoded workflow document against the schema.
func (v *DocumentValidator) ValidateDocument(doc any) error {
	if doc == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow document is empty")
	}

	value, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow document").WithCause(err)
	}
	if err := v.compiled.Validate(value); err != nil {
		return toFlowError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding so numbers become
// json.Number, which the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFlowError converts a jsonschema.ValidationError into a FlowError whose
// details carry every leaf violation with its document location.
func toFlowError(err error) *schema.FlowError {
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
	return schema.NewErrorf(schema.ErrCodeValidation, "workflow document has %d schema violations", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
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
