package runninghub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	mcpserver "github.com/comfy-mcp/comfy-mcp/internal/server"
	serverDomain "github.com/comfy-mcp/comfy-mcp/internal/server-plugin/domain"
	wfDomain "github.com/comfy-mcp/comfy-mcp/internal/server-plugins/workflows/domain"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
)

// GraphSource is the part of the RunningHub client used to validate a workflow id.
type GraphSource interface {
	Configured() bool
	GetWorkflowJSON(ctx context.Context, workflowID string) (json.RawMessage, error)
}

// WorkflowRegistry loads saved reference files as tools.
type WorkflowRegistry interface {
	Dir() string
	Load(ctx context.Context, file, toolName string) wfDomain.LoadResult
}

// RunningHubServerPlugin publishes cloud-hosted workflows. It is only active when
// RunningHub credentials are configured.
type RunningHubServerPlugin struct {
	source   GraphSource
	registry WorkflowRegistry
	logger   *slog.Logger
}

func NewRunningHubServerPlugin(source GraphSource, registry WorkflowRegistry, logger *slog.Logger) *RunningHubServerPlugin {
	return &RunningHubServerPlugin{source: source, registry: registry, logger: logger.With("component", "runninghub_plugin")}
}

func (p *RunningHubServerPlugin) ID() string   { return "runninghub" }
func (p *RunningHubServerPlugin) Name() string { return "RunningHub Workflows" }
func (p *RunningHubServerPlugin) Description() string {
	return "Publish RunningHub cloud workflows as tools"
}
func (p *RunningHubServerPlugin) Version() string { return "0.1.0" }
func (p *RunningHubServerPlugin) RequiredBackend() string {
	return serverDomain.BackendRunningHub
}

func (p *RunningHubServerPlugin) GetTools(ctx context.Context) ([]serverDomain.Tool, error) {
	return []serverDomain.Tool{
		{
			Name:        "save_runninghub_workflow",
			Description: "Save a RunningHub workflow reference and publish it as a tool",
			Builder: func() mcp.Tool {
				return mcp.NewTool("save_runninghub_workflow",
					mcp.WithDescription("Save a RunningHub workflow by id and publish it as a tool. The graph is fetched from RunningHub to validate it."),
					mcp.WithString("workflow_id",
						mcp.Required(),
						mcp.Description("Numeric RunningHub workflow id"),
					),
					mcp.WithString("tool_name",
						mcp.Required(),
						mcp.Description("Tool name to publish (letters, digits, underscore, dot, hyphen)"),
					),
				)
			},
			Handler: p.handleSaveWorkflow,
		},
	}, nil
}

func (p *RunningHubServerPlugin) handleSaveWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcpserver.Error("invalid_argument", err.Error(), "Pass the numeric workflow id shown in RunningHub", nil), nil
	}
	toolName, err := req.RequireString("tool_name")
	if err != nil {
		return mcpserver.Error("invalid_argument", err.Error(), "Pass the tool name to publish", nil), nil
	}

	res, err := p.SaveWorkflow(ctx, strings.TrimSpace(workflowID), strings.TrimSpace(toolName))
	if err != nil {
		return mcpserver.Error("save_failed", err.Error(), "", nil), nil
	}
	if !res.Success {
		return mcpserver.Error("load_failed", res.Error, "", res), nil
	}
	return mcpserver.OK(fmt.Sprintf("RunningHub workflow %s saved as tool '%s'", workflowID, res.Name), res), nil
}

// SaveWorkflow validates workflowID against RunningHub, writes a reference file into the
// workflow directory and loads it. A reference that fails to load is removed again.
func (p *RunningHubServerPlugin) SaveWorkflow(ctx context.Context, workflowID, toolName string) (wfDomain.LoadResult, error) {
	if err := workflow.ValidateTitle(toolName); err != nil {
		return wfDomain.LoadResult{}, err
	}
	if !p.source.Configured() {
		return wfDomain.LoadResult{}, fmt.Errorf("RunningHub API key is not configured")
	}
	if !isNumeric(workflowID) {
		return wfDomain.LoadResult{}, fmt.Errorf("%w: %q", wfDomain.ErrInvalidWorkflowID, workflowID)
	}
	if _, err := p.source.GetWorkflowJSON(ctx, workflowID); err != nil {
		return wfDomain.LoadResult{}, fmt.Errorf("failed to validate RunningHub workflow %s: %w", workflowID, err)
	}

	path := filepath.Join(p.registry.Dir(), toolName+".json")
	ref := workflow.SourceReference{Source: workflow.SourceRunningHub, WorkflowID: workflowID}
	if err := workflow.WriteSourceReference(path, ref); err != nil {
		return wfDomain.LoadResult{}, fmt.Errorf("failed to write workflow reference: %w", err)
	}
	p.logger.Info("RunningHub workflow reference saved", "workflow_id", workflowID, "path", path)

	res := p.registry.Load(ctx, path, toolName)
	if !res.Success {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("Failed to remove rejected workflow reference", "path", path, "error", err)
		}
	}
	return res, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
