package webhook

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// PayloadSchema is the JSON schema every webhook POST body must satisfy
const PayloadSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["object", "entry"],
  "properties": {
    "object": {"type": "string", "minLength": 1},
    "entry": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "time": {"type": "integer"},
          "messaging": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["sender"],
              "properties": {
                "sender": {
                  "type": "object",
                  "required": ["id"],
                  "properties": {"id": {"type": "string", "minLength": 1}}
                },
                "recipient": {
                  "type": "object",
                  "properties": {"id": {"type": "string"}}
                },
                "timestamp": {"type": "integer"},
                "message": {
                  "type": "object",
                  "properties": {
                    "mid": {"type": "string"},
                    "text": {"type": "string"},
                    "is_echo": {"type": "boolean"},
                    "attachments": {
                      "type": "array",
                      "items": {
                        "type": "object",
                        "properties": {"type": {"type": "string"}}
                      }
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

// PayloadValidator checks webhook bodies against PayloadSchema
type PayloadValidator struct {
	schema *gojsonschema.Schema
}

// NewPayloadValidator compiles PayloadSchema
func NewPayloadValidator() (*PayloadValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(PayloadSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile payload schema: %w", err)
	}
	return &PayloadValidator{schema: schema}, nil
}

// Validate returns an error describing every schema violation in data
func (v *PayloadValidator) Validate(data []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}
	return nil
}
