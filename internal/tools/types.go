// Package tools holds the tools this server exposes over MCP and the
// registry the MCP server dispatches tools/call requests through.
package tools

import (
	"context"
	"encoding/json"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Minimum     *int   `json:"minimum,omitempty"`
	MinLength   *int   `json:"minLength,omitempty"`
}

// ToolSchema is the JSON schema advertised as a tool's inputSchema.
type ToolSchema struct {
	Type string `json:"type"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`

	// Required lists parameters that must be provided.
	Required []string `json:"required"`
}

// Output is what a tool hands back to the caller. IsError marks a
// domain-level failure that is still a well-formed tool result.
type Output struct {
	Text    string
	IsError bool
}

// ExecuteFunc is the signature for tool execution. Argument validation is
// the tool's own concern; a returned error means the tool itself broke.
type ExecuteFunc func(ctx context.Context, args json.RawMessage) (Output, error)

// Tool is one callable entry in the registry.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does and when to use it.
	Description string

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema
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

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Output is what the tool returned.
	Output Output

	// Error is set if the tool failed outright.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed and reported no failure.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil && !r.Output.IsError
}
