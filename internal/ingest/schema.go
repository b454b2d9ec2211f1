// Package ingest turns JSON payloads into diagram sets for the pipeline.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/diagramguard/pkg/schema"
)

const diagramSetSchemaURL = "https://diagramguard.dev/schemas/diagram-set.json"

// diagramSetSchemaJSON accepts a flat key -> definition object or the same
// object wrapped in a {"diagrams": ...} envelope.
const diagramSetSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://diagramguard.dev/schemas/diagram-set.json",
  "oneOf": [
    { "$ref": "#/$defs/set" },
    {
      "type": "object",
      "required": ["diagrams"],
      "properties": {
        "diagrams": { "$ref": "#/$defs/set" },
        "document_id": { "type": "string" },
        "title": { "type": "string" }
      },
      "additionalProperties": false
    }
  ],
  "$defs": {
    "set": {
      "type": "object",
      "propertyNames": { "minLength": 1 },
      "additionalProperties": { "type": "string" }
    }
  }
}`

var (
	compileOnce sync.Once
	setSchema   *jsonschema.Schema
	compileErr  error
)

func diagramSetSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(diagramSetSchemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal diagram set schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(diagramSetSchemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add diagram set schema resource: %w", err)
			return
		}
		setSchema, compileErr = c.Compile(diagramSetSchemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile diagram set schema: %w", compileErr)
		}
	})
	return setSchema, compileErr
}

// ParseDiagrams decodes a diagram mapping, keeping the payload's key order.
// Blank definitions are dropped and a repeated key keeps its first value.
func ParseDiagrams(data []byte) (*schema.DiagramSet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "empty diagram payload")
	}

	sch, err := diagramSetSchema()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "diagram set schema unavailable").WithCause(err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "payload is not valid JSON").WithCause(err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, toGuardError(err)
	}

	raw := data
	if obj, ok := doc.(map[string]any); ok {
		if _, wrapped := obj["diagrams"].(map[string]any); wrapped {
			var env struct {
				Diagrams json.RawMessage `json:"diagrams"`
			}
			if err := json.Unmarshal(data, &env); err != nil {
				return nil, schema.NewError(schema.ErrCodeInvalidInput, "decode diagram envelope").WithCause(err)
			}
			raw = env.Diagrams
		}
	}

	set := schema.NewDiagramSet()
	if err := set.UnmarshalJSON(raw); err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "decode diagram set").WithCause(err)
	}
	return set, nil
}

// toGuardError flattens a schema validation failure into an INVALID_INPUT
// error listing every leaf violation.
func toGuardError(err error) *schema.GuardError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeInvalidInput, err.Error())
	}

	violations := collectViolations(verr)
	msg := "payload must be an object of diagram definitions"
	if len(violations) == 1 {
		msg = violations[0]
	}
	return schema.NewError(schema.ErrCodeInvalidInput, msg).
		WithCause(err).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
