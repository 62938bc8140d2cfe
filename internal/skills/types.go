// Package skills implements the skill registry: built-in skills, dynamically
// interpreted skills from the skills.d directory, and per-skill reliability
// telemetry. The registry is the only execution surface the controller sees.
package skills

import (
	"context"
	"fmt"

	"aura/internal/types"
)

// Handler executes a skill with validated parameters.
type Handler func(ctx context.Context, params map[string]interface{}) (string, error)

// Property describes one schema parameter.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Schema is the JSON-schema fragment advertised to the model.
type Schema struct {
	Required   []string            `json:"required,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
}

// Skill is one executable unit.
type Skill struct {
	Name        string
	Description string
	Capability  string // capability gate name; "" means ungated (destructive default)
	Schema      Schema
	Handler     Handler
	Dynamic     bool   // loaded from skills.d
	Source      string // file path for dynamic skills
}

// Validate rejects unusable skills.
func (s *Skill) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("skill name is required")
	}
	if s.Handler == nil {
		return fmt.Errorf("skill %s has no handler", s.Name)
	}
	return nil
}

// ToolDefinition exports the skill in the LLM tool-calling shape.
func (s *Skill) ToolDefinition() types.ToolDefinition {
	props := map[string]interface{}{}
	for name, p := range s.Schema.Properties {
		props[name] = map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(s.Schema.Required) > 0 {
		schema["required"] = s.Schema.Required
	}
	return types.ToolDefinition{
		Name:        s.Name,
		Description: s.Description,
		InputSchema: schema,
	}
}
