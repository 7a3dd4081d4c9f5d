package domain

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
)

// WorkflowFunc runs a loaded workflow with tool arguments and returns the text sent back to the model.
type WorkflowFunc func(ctx context.Context, args map[string]any) string

// Entry is one loaded workflow. Entries are replaced as a whole, never patched.
type Entry struct {
	Function   WorkflowFunc
	Metadata   *workflow.Metadata
	LoadedAt   time.Time
	SourceFile string
}

// ToolRegistrar is the part of the MCP server the manager needs to publish workflow tools.
type ToolRegistrar interface {
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
	DeleteTools(names ...string)
}
