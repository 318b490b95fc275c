// Package dispatch implements ToolDispatcher (component H): tools are
// named functions taking structured arguments and a workspace directory,
// described by a JSON Schema so the dispatcher can validate arguments
// before invocation instead of relying on ad-hoc type assertions. Tools
// are registered the way an MCP server registers them (name, schema,
// handler) but invoked in-process rather than over MCP transport.
package dispatch

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// Action is the policy response for a safety hook.
type Action string

const (
	ActionIgnore   Action = "ignore"
	ActionWarn     Action = "warn"
	ActionBlock    Action = "block"
	ActionSanitize Action = "sanitize"
)

// Handler is a tool body: given structured arguments and the workspace
// directory, it returns a result string or an error. Some handlers are
// effectively synchronous, some do I/O; both satisfy this signature
// since the dispatcher always calls through a context.
type Handler func(ctx context.Context, args map[string]any, workspaceDir string) (string, error)

// Tool is one named, schema-described function the dispatcher can
// invoke by name.
type Tool struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Handler     Handler

	// URLArgFields names arguments (by key) that should be run through
	// the URL validator pre-hook when present.
	URLArgFields []string
	// TextArgFields names arguments (by key) that should be run through
	// the prompt-injection scanner pre-hook when present.
	TextArgFields []string
}
