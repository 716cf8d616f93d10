package api

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const decideSchemaURL = "https://hybridrouter.schemas.local/decide-request.schema.json"

const decideSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["operation_type"],
  "additionalProperties": false,
  "properties": {
    "operation_type": {"type": "string", "minLength": 1, "maxLength": 64},
    "priority": {"type": "string", "maxLength": 16},
    "correlation_id": {"type": "string", "maxLength": 128},
    "provider_hint": {"type": "string", "maxLength": 64},
    "estimated_cost_cents": {"type": "integer", "minimum": 0}
  }
}`

// Only the shape is checked here. Unknown operation types and priorities
// must reach the engine so they are rejected and audited there.
func compileDecideSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(decideSchemaURL, strings.NewReader(decideSchema)); err != nil {
		return nil, fmt.Errorf("decide schema load failed: %w", err)
	}
	s, err := c.Compile(decideSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("decide schema compile failed: %w", err)
	}
	return s, nil
}
