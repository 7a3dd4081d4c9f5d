package application

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	mcpserver "github.com/comfy-mcp/comfy-mcp/internal/server"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/workflows/domain"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
)

// BuildTool describes a workflow as an MCP tool: required params first, then optional ones with their defaults.
func BuildTool(md *workflow.Metadata) mcp.Tool {
	description := md.Description
	if description == "" {
		description = fmt.Sprintf("Run the %s ComfyUI workflow", md.Title)
	}
	opts := []mcp.ToolOption{mcp.WithDescription(description)}

	for _, p := range md.Signature() {
		var propOpts []mcp.PropertyOption
		if p.Description != "" {
			propOpts = append(propOpts, mcp.Description(p.Description))
		}
		if p.Required {
			propOpts = append(propOpts, mcp.Required())
		}

		switch p.Type {
		case workflow.TypeInt, workflow.TypeFloat:
			if f, ok := numericDefault(p.Default); ok {
				propOpts = append(propOpts, mcp.DefaultNumber(f))
			}
			opts = append(opts, mcp.WithNumber(p.Name, propOpts...))
		case workflow.TypeBool:
			if b, ok := p.Default.(bool); ok {
				propOpts = append(propOpts, mcp.DefaultBool(b))
			}
			opts = append(opts, mcp.WithBoolean(p.Name, propOpts...))
		default:
			if p.Default != nil {
				propOpts = append(propOpts, mcp.DefaultString(fmt.Sprint(p.Default)))
			}
			opts = append(opts, mcp.WithString(p.Name, propOpts...))
		}
	}
	return mcp.NewTool(md.Title, opts...)
}

func numericDefault(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// toolHandler adapts the manager's dispatcher to an MCP tool handler. Workflow
// failures are reported as text so the model can read them.
func (m *Manager) toolHandler(name string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := m.Invoke(ctx, name, req.GetArguments())
		if err != nil {
			return mcpserver.Error("workflow_not_loaded", err.Error(), "Call list_workflows to see loaded workflows", nil), nil
		}
		return mcpserver.Text(text), nil
	}
}

func describeParams(md *workflow.Metadata) []domain.ParamDescription {
	sig := md.Signature()
	out := make([]domain.ParamDescription, 0, len(sig))
	for _, p := range sig {
		out = append(out, domain.ParamDescription{
			Name:        p.Name,
			Type:        string(p.Type),
			Required:    p.Required,
			Default:     p.Default,
			Description: p.Description,
		})
	}
	return out
}
