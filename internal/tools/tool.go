package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/swaggest/jsonschema-go"
)

// Observation is the result of a tool execution.
// Content is what the model reads; Data keeps the structured payload for callers.
type Observation struct {
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

// Tool defines the interface for tools that can be called by the agent
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Description returns a description of what the tool does
	Description() string

	// Parameters returns the JSON Schema for the tool's parameters
	Parameters() json.RawMessage

	// Execute runs the tool. A non-nil error means the tool itself failed.
	Execute(ctx context.Context, args json.RawMessage) (Observation, error)
}

// SchemaFor reflects the JSON Schema of an argument struct.
// Fields use `json`, `required:"true"` and `description` tags.
func SchemaFor(args any) (json.RawMessage, error) {
	reflector := jsonschema.Reflector{}
	schema, err := reflector.Reflect(args)
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// MustSchemaFor is SchemaFor for package-level argument types.
func MustSchemaFor(args any) json.RawMessage {
	schema, err := SchemaFor(args)
	if err != nil {
		panic(err)
	}
	return schema
}
