package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	mcpserver "github.com/comfy-mcp/comfy-mcp/internal/server"
	serverDomain "github.com/comfy-mcp/comfy-mcp/internal/server-plugin/domain"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/core/application"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/core/domain"
)

// ActiveRegistry is the read side of the dynamic plugin registry.
type ActiveRegistry interface {
	domain.BackendReporter
	GetActiveServerPlugins() []serverDomain.ServerPlugin
}

// CoreServerPlugin provides server diagnostics and is always active.
type CoreServerPlugin struct {
	coreService *application.CoreService
	registry    ActiveRegistry
	provider    mcpserver.ServerPluginProvider
	logger      *slog.Logger
}

func NewCoreServerPlugin(coreService *application.CoreService, logger *slog.Logger) *CoreServerPlugin {
	return &CoreServerPlugin{coreService: coreService, logger: logger}
}

// SetRegistry allows late injection to avoid Fx cycles
func (p *CoreServerPlugin) SetRegistry(registry ActiveRegistry, provider mcpserver.ServerPluginProvider) {
	p.registry = registry
	p.provider = provider
}

func (p *CoreServerPlugin) ID() string   { return "core" }
func (p *CoreServerPlugin) Name() string { return "Core Functionality" }
func (p *CoreServerPlugin) Description() string {
	return "Backend status, capability index and server logs"
}
func (p *CoreServerPlugin) Version() string         { return "0.1.0" }
func (p *CoreServerPlugin) RequiredBackend() string { return "" }

func (p *CoreServerPlugin) GetResources(ctx context.Context) ([]serverDomain.Resource, error) {
	return []serverDomain.Resource{
		{
			URI:         "comfy://core/backends",
			Name:        "Backends",
			Description: "Execution backends found by the last discovery sync and the plugins they activate",
			MIMEType:    "application/json",
			Handler:     p.handleBackendsResource,
		},
		{
			URI:         "comfy://core/capabilities",
			Name:        "Capabilities Index",
			Description: "Index of the management tools and resources currently published",
			MIMEType:    "application/json",
			Handler:     p.handleCapabilitiesResource,
		},
	}, nil
}

func (p *CoreServerPlugin) handleBackendsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if p.registry == nil {
		return nil, fmt.Errorf("plugin registry not ready")
	}
	report := p.coreService.GetBackends(p.registry, p.registry.GetActiveServerPlugins())
	return mcpserver.JSONResource(req.Params.URI, report)
}

func (p *CoreServerPlugin) handleCapabilitiesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if p.provider == nil {
		return nil, fmt.Errorf("plugin registry not ready")
	}
	return mcpserver.JSONResource(req.Params.URI, p.capabilities(ctx))
}

// capabilities covers plugin tools only; workflow tools are listed by list_workflows.
func (p *CoreServerPlugin) capabilities(ctx context.Context) domain.CapabilityIndex {
	index := domain.CapabilityIndex{Tools: []domain.Capability{}, Resources: []domain.Capability{}}
	for _, tp := range p.provider.GetToolProviders() {
		tools, err := tp.GetTools(ctx)
		if err != nil {
			p.logger.Warn("Failed to list plugin tools", "plugin", tp.ID(), "error", err)
			continue
		}
		for _, t := range tools {
			index.Tools = append(index.Tools, domain.Capability{Name: t.Name, Plugin: tp.ID(), Description: t.Description})
		}
	}
	for _, rp := range p.provider.GetResourceProviders() {
		resources, err := rp.GetResources(ctx)
		if err != nil {
			p.logger.Warn("Failed to list plugin resources", "plugin", rp.ID(), "error", err)
			continue
		}
		for _, r := range resources {
			index.Resources = append(index.Resources, domain.Capability{Name: r.URI, Plugin: rp.ID(), Description: r.Description})
		}
	}
	sort.Slice(index.Tools, func(i, j int) bool { return index.Tools[i].Name < index.Tools[j].Name })
	sort.Slice(index.Resources, func(i, j int) bool { return index.Resources[i].Name < index.Resources[j].Name })
	return index
}

func (p *CoreServerPlugin) GetTools(ctx context.Context) ([]serverDomain.Tool, error) {
	return []serverDomain.Tool{
		{
			Name:        "get_system_status",
			Description: "Get the ComfyUI and RunningHub backend status",
			Builder: func() mcp.Tool {
				return mcp.NewTool("get_system_status",
					mcp.WithDescription("Get the ComfyUI server status (system stats, devices) and whether RunningHub is configured"),
				)
			},
			Handler: p.handleGetSystemStatus,
		},
		{
			Name:        "get_server_logs",
			Description: "Get recent server log lines with credentials redacted",
			Builder: func() mcp.Tool {
				return mcp.NewTool("get_server_logs",
					mcp.WithDescription("Get recent server log lines; API keys, cookies and tokens are redacted"),
					mcp.WithNumber("lines",
						mcp.Description("Number of lines to return"),
						mcp.DefaultNumber(100),
						mcp.Min(1),
						mcp.Max(1000),
					),
				)
			},
			Handler: p.handleGetServerLogs,
		},
	}, nil
}

func (p *CoreServerPlugin) handleGetSystemStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := p.coreService.GetSystemStatus(ctx)
	if !status.ComfyUI.Available {
		return mcpserver.Partial("ComfyUI is not reachable", status), nil
	}
	return mcpserver.OK("ComfyUI is reachable", status), nil
}

func (p *CoreServerPlugin) handleGetServerLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := req.GetInt("lines", 100)
	logs := p.coreService.GetServerLogs(n)
	return mcpserver.OK(fmt.Sprintf("%d log line(s)", logs.Count), logs), nil
}
