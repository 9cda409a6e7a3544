// Package schema validates incoming run payloads before they enter the
// history store. Validation is intentionally shallow: it checks the
// envelope the engine depends on and leaves the raw results payload
// loosely typed, since its shape varies by evaluation-runtime version
// and the normalizer tolerates missing fields.
package schema

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

const runRecordSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["project_name", "timestamp", "stats"],
	"properties": {
		"id": {"type": "string"},
		"project_name": {"type": "string", "minLength": 1},
		"timestamp": {"type": "string", "format": "date-time"},
		"stats": {
			"type": "object",
			"properties": {
				"total_tests": {"type": "integer", "minimum": 0},
				"passed_tests": {"type": "integer", "minimum": 0},
				"failed_tests": {"type": "integer", "minimum": 0},
				"average_score": {"type": "number", "minimum": 0, "maximum": 1},
				"total_cost": {"type": "number", "minimum": 0},
				"total_latency_ms": {"type": "number", "minimum": 0},
				"total_tokens": {"type": "integer", "minimum": 0}
			}
		},
		"config": {
			"type": "object",
			"properties": {
				"providers": {"type": "array", "items": {"type": "string"}},
				"prompts": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["id"],
						"properties": {
							"id": {"type": "string"},
							"text": {"type": "string"}
						}
					}
				},
				"assertions": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["id"],
						"properties": {
							"id": {"type": "string"},
							"type": {"type": "string"},
							"threshold": {"type": "number"}
						}
					}
				}
			}
		},
		"raw_results": {"type": "object"}
	}
}`

// Validator checks run payloads against the run record schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the embedded run record schema.
func NewValidator() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(runRecordSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile run record schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateRunPayload validates a JSON run payload. It returns whether
// the payload is valid and the list of validation messages when it is
// not.
func (v *Validator) ValidateRunPayload(payload []byte) (bool, []string, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return false, nil, fmt.Errorf("failed to validate payload: %w", err)
	}
	if result.Valid() {
		return true, nil, nil
	}
	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}
	return false, messages, nil
}
