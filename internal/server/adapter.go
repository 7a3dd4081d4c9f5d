package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/comfy-mcp/comfy-mcp/internal/server-plugin/domain"
)

// ServerPluginProvider interface defines what we need from the plugin registry
type ServerPluginProvider interface {
	GetResourceProviders() []domain.ResourceProvider
	GetToolProviders() []domain.ToolProvider
	GetPromptProviders() []domain.PromptProvider
}

// DynamicServerPluginProvider provides access to only active plugins
type DynamicServerPluginProvider interface {
	GetActiveServerPlugins() []domain.ServerPlugin
}

// MCPAdapter bridges between our plugin system and the MCP server
type MCPAdapter struct {
	dynamicRegistry DynamicServerPluginProvider
	mcpServer       *server.MCPServer
	logger          *slog.Logger
}

func NewMCPAdapter(dynamicRegistry DynamicServerPluginProvider, mcpServer *server.MCPServer, logger *slog.Logger) *MCPAdapter {
	return &MCPAdapter{
		dynamicRegistry: dynamicRegistry,
		mcpServer:       mcpServer,
		logger:          logger.With("component", "mcp_adapter"),
	}
}

// GetResourceProviders returns resource providers from active plugins only
func (a *MCPAdapter) GetResourceProviders() []domain.ResourceProvider {
	var providers []domain.ResourceProvider
	for _, plugin := range a.dynamicRegistry.GetActiveServerPlugins() {
		if provider, ok := plugin.(domain.ResourceProvider); ok {
			providers = append(providers, provider)
		}
	}
	return providers
}

// GetToolProviders returns tool providers from active plugins only
func (a *MCPAdapter) GetToolProviders() []domain.ToolProvider {
	var providers []domain.ToolProvider
	for _, plugin := range a.dynamicRegistry.GetActiveServerPlugins() {
		if provider, ok := plugin.(domain.ToolProvider); ok {
			providers = append(providers, provider)
		}
	}
	return providers
}

// GetPromptProviders returns prompt providers from active plugins only
func (a *MCPAdapter) GetPromptProviders() []domain.PromptProvider {
	var providers []domain.PromptProvider
	for _, plugin := range a.dynamicRegistry.GetActiveServerPlugins() {
		if provider, ok := plugin.(domain.PromptProvider); ok {
			providers = append(providers, provider)
		}
	}
	return providers
}

// RegisterAllServerPlugins registers every active plugin with the MCP server
func (a *MCPAdapter) RegisterAllServerPlugins(ctx context.Context) error {
	a.logger.Info("Registering all plugins with MCP server")

	active := a.dynamicRegistry.GetActiveServerPlugins()
	for _, plugin := range active {
		if err := a.RegisterServerPlugin(ctx, plugin); err != nil {
			return fmt.Errorf("failed to register plugin %s: %w", plugin.ID(), err)
		}
	}

	a.logger.Info("All plugins registered successfully", "plugin_count", len(active))
	return nil
}

// RegisterServerPlugin registers the resources, tools and prompts of one plugin.
// A provider that fails to list its capabilities is logged and skipped.
func (a *MCPAdapter) RegisterServerPlugin(ctx context.Context, plugin domain.ServerPlugin) error {
	if provider, ok := plugin.(domain.ResourceProvider); ok {
		resources, err := provider.GetResources(ctx)
		if err != nil {
			a.logger.Error("Failed to get resources from provider", "plugin", plugin.ID(), "error", err)
		}
		for _, resource := range resources {
			mcpResource := mcp.NewResource(
				resource.URI,
				resource.Name,
				mcp.WithResourceDescription(resource.Description),
				mcp.WithMIMEType(resource.MIMEType),
			)
			a.mcpServer.AddResource(mcpResource, resource.Handler)
			a.logger.Debug("Resource registered", "plugin", plugin.ID(), "uri", resource.URI)
		}
	}

	if provider, ok := plugin.(domain.ToolProvider); ok {
		tools, err := provider.GetTools(ctx)
		if err != nil {
			a.logger.Error("Failed to get tools from provider", "plugin", plugin.ID(), "error", err)
		}
		for _, tool := range tools {
			a.mcpServer.AddTool(tool.Builder(), tool.Handler)
			a.logger.Debug("Tool registered", "plugin", plugin.ID(), "tool", tool.Name)
		}
	}

	if provider, ok := plugin.(domain.PromptProvider); ok {
		prompts, err := provider.GetPrompts(ctx)
		if err != nil {
			a.logger.Error("Failed to get prompts from provider", "plugin", plugin.ID(), "error", err)
		}
		for _, prompt := range prompts {
			a.mcpServer.AddPrompt(prompt.Builder(), prompt.Handler)
			a.logger.Debug("Prompt registered", "plugin", plugin.ID(), "prompt", prompt.Name)
		}
	}

	a.logger.Debug("ServerPlugin registered with MCP server", "plugin", plugin.ID())
	return nil
}

// UnregisterServerPlugin removes everything a plugin contributed from the MCP server.
func (a *MCPAdapter) UnregisterServerPlugin(ctx context.Context, plugin domain.ServerPlugin) {
	if provider, ok := plugin.(domain.ResourceProvider); ok {
		if resources, err := provider.GetResources(ctx); err == nil {
			for _, resource := range resources {
				a.mcpServer.RemoveResource(resource.URI)
			}
		}
	}

	if provider, ok := plugin.(domain.ToolProvider); ok {
		if tools, err := provider.GetTools(ctx); err == nil && len(tools) > 0 {
			names := make([]string, 0, len(tools))
			for _, tool := range tools {
				names = append(names, tool.Name)
			}
			a.mcpServer.DeleteTools(names...)
		}
	}

	if provider, ok := plugin.(domain.PromptProvider); ok {
		if prompts, err := provider.GetPrompts(ctx); err == nil && len(prompts) > 0 {
			names := make([]string, 0, len(prompts))
			for _, prompt := range prompts {
				names = append(names, prompt.Name)
			}
			a.mcpServer.DeletePrompts(names...)
		}
	}

	a.logger.Debug("ServerPlugin removed from MCP server", "plugin", plugin.ID())
}

// ApplyActivationChange keeps the MCP server in step with the registry after startup.
func (a *MCPAdapter) ApplyActivationChange(ctx context.Context, deactivated, activated []domain.ServerPlugin) {
	for _, plugin := range deactivated {
		a.UnregisterServerPlugin(ctx, plugin)
	}
	for _, plugin := range activated {
		if err := a.RegisterServerPlugin(ctx, plugin); err != nil {
			a.logger.Error("Failed to register activated plugin", "plugin", plugin.ID(), "error", err)
		}
	}
}
