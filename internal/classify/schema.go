package classify

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/margot-dms/margot/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildJudgmentSchema returns the JSON schema the oracle's reply must match.
// The type enum excludes the error type: that one is reserved for fallback
// documents the pipeline itself generates.
func BuildJudgmentSchema() map[string]any {
	types := make([]any, 0, len(models.DocumentTypes()))
	for _, t := range models.DocumentTypes() {
		types = append(types, string(t))
	}
	return map[string]any{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type":    "object",
		"properties": map[string]any{
			"id":        map[string]any{"type": "string"},
			"sender":    map[string]any{"type": "string"},
			"date_sent": map[string]any{"type": "string"},
			"subject":   map[string]any{"type": "string"},
			"type":      map[string]any{"type": "string", "enum": types},
			"content":   map[string]any{"type": "string"},
			"codes": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"payment": map[string]any{
				"type": []any{"object", "null"},
				"properties": map[string]any{
					"iban":     map[string]any{"type": []any{"string", "null"}},
					"amount":   map[string]any{"type": []any{"number", "null"}},
					"due_date": map[string]any{"type": []any{"string", "null"}},
				},
			},
			"is_multipage_explicit":   map[string]any{"type": "boolean"},
			"is_information_complete": map[string]any{"type": "boolean"},
			"continuation_of":         map[string]any{"type": []any{"string", "null"}},
		},
		"required": []any{"id", "sender", "date_sent", "subject", "type", "content", "codes"},
	}
}

// ValidateAgainstSchema validates data against schemaMap.
func ValidateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
