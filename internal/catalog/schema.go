package catalog

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// templateSchema is the JSON Schema every template document must satisfy
// before it is converted.
var templateSchema = map[string]any{
	"type":     "object",
	"required": []any{"id", "module", "type", "difficulty", "title", "requirements", "rubric"},
	"properties": map[string]any{
		"id":          map[string]any{"type": "string", "minLength": 1},
		"module":      map[string]any{"type": "string", "minLength": 1},
		"type":        map[string]any{"type": "string", "enum": itemTypeEnum()},
		"difficulty":  map[string]any{"type": "string", "enum": []any{"intermediate", "advanced", "expert", "master"}},
		"category":    map[string]any{"type": "string"},
		"title":       map[string]any{"type": "string", "minLength": 1},
		"time_budget": map[string]any{"type": "integer", "minimum": 1},
		"requirements": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "weight"},
				"properties": map[string]any{
					"id":     map[string]any{"type": "string", "minLength": 1},
					"weight": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
				},
			},
		},
		"rubric": map[string]any{
			"type":     "object",
			"required": []any{"criteria"},
			"properties": map[string]any{
				"criteria": map[string]any{
					"type":     "array",
					"minItems": 1,
					"items": map[string]any{
						"type":     "object",
						"required": []any{"id", "points", "method"},
						"properties": map[string]any{
							"id":     map[string]any{"type": "string", "minLength": 1},
							"points": map[string]any{"type": "number", "exclusiveMinimum": 0},
							"method": map[string]any{"type": "string"},
						},
					},
				},
			},
		},
		"hints": map[string]any{
			"type":     "array",
			"maxItems": 3,
			"items": map[string]any{
				"type":     "object",
				"required": []any{"level", "deduction"},
				"properties": map[string]any{
					"level":     map[string]any{"type": "integer", "minimum": 1},
					"deduction": map[string]any{"type": "number", "minimum": 0},
				},
			},
		},
		"validation": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"field", "rule"},
				"properties": map[string]any{
					"severity": map[string]any{"type": "string", "enum": []any{"error", "warning"}},
				},
			},
		},
	},
}

func itemTypeEnum() []any {
	return []any{
		"scenario_analysis", "threat_modeling", "quantitative_calculation",
		"decision_matrix", "simulation", "compliance_check", "technical_assessment",
	}
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func compiledTemplateSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		def, err := normalize(templateSchema)
		if err != nil {
			compileErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("schema://template.json", def); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile("schema://template.json")
	})
	return compiled, compileErr
}

// validateDocument checks a decoded YAML document against the template schema.
// The document is normalized through JSON so numbers are float64.
func validateDocument(doc any) error {
	schema, err := compiledTemplateSchema()
	if err != nil {
		return fmt.Errorf("compile template schema: %w", err)
	}
	parsed, err := normalize(doc)
	if err != nil {
		return err
	}
	if err := schema.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// normalize round-trips v through JSON so the validator sees plain JSON values.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	return parsed, nil
}
