package domain

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerPlugin is a bundle of MCP capabilities that is published while its backend is
// reachable. The dynamic registry compares RequiredBackend against the last discovery
// result: a plugin needing "runninghub" disappears from the MCP server when the API key
// goes away, while an empty backend keeps the plugin published for the server's lifetime.
type ServerPlugin interface {
	ID() string
	Name() string
	Description() string
	Version() string
	RequiredBackend() string
}

// ResourceProvider publishes read-only JSON views such as comfy://workflows/status.
type ResourceProvider interface {
	ServerPlugin
	GetResources(ctx context.Context) ([]Resource, error)
}

// ToolProvider publishes management tools. Workflow tools are not listed here; the
// workflow manager registers them on the MCP server directly as files are loaded.
type ToolProvider interface {
	ServerPlugin
	GetTools(ctx context.Context) ([]Tool, error)
}

// PromptProvider publishes MCP prompts.
type PromptProvider interface {
	ServerPlugin
	GetPrompts(ctx context.Context) ([]Prompt, error)
}

// Resource is registered under URI and removed again by URI on deactivation.
type Resource struct {
	URI         string
	Name        string
	Description string
	MIMEType    string
	Handler     ResourceHandler
}

// Tool pairs a schema builder with its handler; Name must match the built tool's name
// because deactivation deletes tools by name.
type Tool struct {
	Name        string
	Description string
	Builder     func() mcp.Tool
	Handler     ToolHandler
}

type Prompt struct {
	Name        string
	Description string
	Builder     func() mcp.Prompt
	Handler     PromptHandler
}

type (
	ResourceHandler = server.ResourceHandlerFunc
	ToolHandler     = server.ToolHandlerFunc
	PromptHandler   = server.PromptHandlerFunc
)

// BackendDiscoveryService probes the execution backends. An unreachable ComfyUI server or
// a missing RunningHub key leaves that backend out of the list; it is not an error.
type BackendDiscoveryService interface {
	GetAvailableBackends(ctx context.Context) ([]string, error)
}
