package parts

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DefaultSchema constrains the field types of the recognized part records.
// Unknown fields are allowed.
const DefaultSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"type": "string", "minLength": 1}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"enum": ["text", "reasoning"]}}},
      "then": {"required": ["text"], "properties": {"text": {"type": "string"}}}
    },
    {
      "if": {"properties": {"type": {"pattern": "^tool-.+"}}},
      "then": {
        "required": ["toolCallId"],
        "properties": {
          "toolCallId": {"type": "string"},
          "state": {"enum": ["input-streaming", "input-available", "output-available", "output-error"]}
        }
      }
    },
    {
      "if": {"properties": {"type": {"const": "dynamic-tool"}}},
      "then": {
        "required": ["toolName"],
        "properties": {"toolName": {"type": "string", "minLength": 1}}
      }
    },
    {
      "if": {"properties": {"type": {"const": "data-network"}}},
      "then": {
        "properties": {
          "data": {
            "type": "object",
            "properties": {"steps": {"type": "array", "items": {"type": "object"}}}
          }
        }
      }
    },
    {
      "if": {"properties": {"type": {"const": "source-url"}}},
      "then": {"required": ["url"], "properties": {"url": {"type": "string", "minLength": 1}}}
    }
  ]
}`

// Schema is a compiled JSON Schema applied to part records.
type Schema struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles the JSON Schema document doc.
func CompileSchema(doc []byte) (*Schema, error) {
	var schemaDoc any
	if err := json.Unmarshal(doc, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal part schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("part.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add part schema resource: %w", err)
	}
	schema, err := c.Compile("part.json")
	if err != nil {
		return nil, fmt.Errorf("compile part schema: %w", err)
	}
	return &Schema{schema: schema}, nil
}

// MustCompileDefaultSchema compiles DefaultSchema and panics on failure.
func MustCompileDefaultSchema() *Schema {
	s, err := CompileSchema([]byte(DefaultSchema))
	if err != nil {
		panic(err)
	}
	return s
}

// Validate validates the record raw against the schema.
func (s *Schema) Validate(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode part record: %w", err)
	}
	if err := s.schema.Validate(v); err != nil {
		return fmt.Errorf("part record violates schema: %w", err)
	}
	return nil
}
