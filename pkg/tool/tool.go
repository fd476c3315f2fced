// Package tool defines the tools the agent can invoke and the registry that
// advertises them to the model and dispatches its requests.
//
// The registry's dispatch path never propagates an error: unknown tool
// names, bad arguments, and tool failures all come back as error-shaped
// results, so one bad call cannot abort an agent turn.
package tool

import (
	"context"

	"github.com/akozyrev/scholium/pkg/llms"
)

// Tool is one callable capability.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description returns a human-readable description of what the tool
	// does. Used by the model to decide when to call it.
	Description() string

	// Schema returns the JSON schema of the tool's parameters.
	Schema() map[string]any

	// Call executes the tool. Errors returned here are contained by the
	// registry; they never reach the agent loop.
	Call(ctx context.Context, args map[string]any) (Result, error)
}

// Definition builds the llms advertisement for a tool.
func Definition(t Tool) llms.ToolDefinition {
	return llms.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}
