package workflows

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	mcpserver "github.com/comfy-mcp/comfy-mcp/internal/server"
	serverDomain "github.com/comfy-mcp/comfy-mcp/internal/server-plugin/domain"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/workflows/application"
)

const statusResourceURI = "comfy://workflows/status"

// WorkflowsServerPlugin exposes the tools that manage which workflows are published.
// The workflow tools themselves are registered by the manager.
type WorkflowsServerPlugin struct {
	manager *application.Manager
	logger  *slog.Logger
}

func NewWorkflowsServerPlugin(manager *application.Manager, logger *slog.Logger) *WorkflowsServerPlugin {
	return &WorkflowsServerPlugin{manager: manager, logger: logger}
}

func (p *WorkflowsServerPlugin) ID() string   { return "workflows" }
func (p *WorkflowsServerPlugin) Name() string { return "Workflow Manager" }
func (p *WorkflowsServerPlugin) Description() string {
	return "Load, unload and reload ComfyUI workflows published as MCP tools"
}
func (p *WorkflowsServerPlugin) Version() string         { return "0.1.0" }
func (p *WorkflowsServerPlugin) RequiredBackend() string { return "" }

func (p *WorkflowsServerPlugin) GetResources(ctx context.Context) ([]serverDomain.Resource, error) {
	return []serverDomain.Resource{
		{
			URI:         statusResourceURI,
			Name:        "Workflow Status",
			Description: "Loaded workflows with their parameters, source file, load time and execution counters",
			MIMEType:    "application/json",
			Handler:     p.handleStatusResource,
		},
	}, nil
}

func (p *WorkflowsServerPlugin) handleStatusResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return mcpserver.JSONResource(req.Params.URI, p.manager.Status())
}

func (p *WorkflowsServerPlugin) GetTools(ctx context.Context) ([]serverDomain.Tool, error) {
	return []serverDomain.Tool{
		{
			Name:        "list_workflows",
			Description: "List the workflows currently published as tools",
			Builder: func() mcp.Tool {
				return mcp.NewTool("list_workflows",
					mcp.WithDescription("List the workflows currently published as tools, with load time and execution counters"),
				)
			},
			Handler: p.handleListWorkflows,
		},
		{
			Name:        "load_workflow",
			Description: "Load a ComfyUI workflow file as a new tool",
			Builder: func() mcp.Tool {
				return mcp.NewTool("load_workflow",
					mcp.WithDescription("Load a ComfyUI API-format workflow file (or a RunningHub reference file) and publish it as a tool"),
					mcp.WithString("path",
						mcp.Required(),
						mcp.Description("Path of the workflow JSON file on the server"),
					),
					mcp.WithString("tool_name",
						mcp.Description("Tool name to publish; defaults to the file name without extension"),
					),
				)
			},
			Handler: p.handleLoadWorkflow,
		},
		{
			Name:        "unload_workflow",
			Description: "Remove a workflow tool and delete its file",
			Builder: func() mcp.Tool {
				return mcp.NewTool("unload_workflow",
					mcp.WithDescription("Remove a workflow tool and delete its file from the workflow directory"),
					mcp.WithString("name",
						mcp.Required(),
						mcp.Description("Name of the workflow tool"),
					),
				)
			},
			Handler: p.handleUnloadWorkflow,
		},
		{
			Name:        "reload_workflows",
			Description: "Reload every workflow from the workflow directory",
			Builder: func() mcp.Tool {
				return mcp.NewTool("reload_workflows",
					mcp.WithDescription("Drop all workflow tools and load every workflow file from the workflow directory again"),
				)
			},
			Handler: p.handleReloadWorkflows,
		},
	}, nil
}

func (p *WorkflowsServerPlugin) handleListWorkflows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := p.manager.Status()
	return mcpserver.OK(fmt.Sprintf("%d workflow(s) loaded", report.Count), report), nil
}

func (p *WorkflowsServerPlugin) handleLoadWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcpserver.Error("invalid_argument", err.Error(), "Pass the path of a workflow JSON file", nil), nil
	}
	toolName := req.GetString("tool_name", "")

	res := p.manager.Load(ctx, path, toolName)
	if !res.Success {
		return mcpserver.Error("load_failed", res.Error, "Check that the file is an API-format workflow with titled parameter nodes", res), nil
	}
	return mcpserver.OK(fmt.Sprintf("Workflow '%s' successfully loaded as MCP tool", res.Name), res), nil
}

func (p *WorkflowsServerPlugin) handleUnloadWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcpserver.Error("invalid_argument", err.Error(), "Pass the name of a loaded workflow", nil), nil
	}

	res := p.manager.Unload(ctx, name)
	if !res.Success {
		return mcpserver.Error("unload_failed", res.Error, "Call list_workflows to see loaded workflows", res), nil
	}
	return mcpserver.OK(fmt.Sprintf("Workflow '%s' successfully unloaded", name), res), nil
}

func (p *WorkflowsServerPlugin) handleReloadWorkflows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := p.manager.ReloadAll(ctx)
	msg := fmt.Sprintf("Reload completed: success %d, failed %d", len(res.Success), len(res.Failed))
	if len(res.Failed) > 0 {
		return mcpserver.Partial(msg, res), nil
	}
	return mcpserver.OK(msg, res), nil
}
