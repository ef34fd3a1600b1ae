// Package tools provides the registry of tools the orchestration loop
// presents to the language model. Each tool maps 1:1 to either a scene
// action emission or a call into an external collaborator service.
package tools

import (
	"context"
)

// Category classifies tools by the subsystem they drive.
type Category string

const (
	// CategoryScene covers direct scene mutations (add, remove, modify,
	// duplicate, background).
	CategoryScene Category = "scene"

	// CategoryCapability covers creating and re-attaching capabilities.
	CategoryCapability Category = "capability"

	// CategoryGeneration covers external content generation collaborators.
	CategoryGeneration Category = "generation"

	// CategoryRoom covers room lifecycle (finish/persist).
	CategoryRoom Category = "room"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// Schema defines the JSON schema for tool arguments.
type Schema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution. The returned string is
// fed back to the model as the tool result; an error is converted to a
// failure result, never propagated out of the loop.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is one entry the model can invoke.
type Tool struct {
	// Name is the unique identifier presented to the model.
	Name string

	// Description explains what the tool does, for the model.
	Description string

	// Category classifies the tool.
	Category Category

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema Schema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// InputSchema renders the schema as the JSON-schema map the LLM wire
// formats expect.
func (t *Tool) InputSchema() map[string]any {
	props := make(map[string]any, len(t.Schema.Properties))
	for name, p := range t.Schema.Properties {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
	}
	required := t.Schema.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
