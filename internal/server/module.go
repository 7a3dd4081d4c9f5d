package server

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/fx"

	plugins "github.com/comfy-mcp/comfy-mcp/internal/server-plugin/application"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugin/infrastructure"
)

// Version is reported to MCP clients; the CLI overrides it from build flags.
var Version = "dev"

// NewMCPServerInstance creates a new MCP server instance.
func NewMCPServerInstance(logger *slog.Logger) *server.MCPServer {
	logger.Debug("Creating MCP server instance", "version", Version)
	return server.NewMCPServer(
		"ComfyUI MCP Server",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithPromptCapabilities(true),
	)
}

var Module = fx.Module("server",
	fx.Provide(
		NewMCPServerInstance,
		plugins.NewServerPluginRegistry,
		plugins.NewDynamicServerPluginRegistry,
		func(dynamicRegistry *plugins.DynamicServerPluginRegistry, mcpServer *server.MCPServer, logger *slog.Logger) *MCPAdapter {
			return NewMCPAdapter(dynamicRegistry, mcpServer, logger)
		},
		func(adapter *MCPAdapter) ServerPluginProvider { return adapter },
		infrastructure.NewBackendDiscoveryService,
	),
	fx.Invoke(func(registry *plugins.DynamicServerPluginRegistry, lc fx.Lifecycle) {
		registry.RegisterHooks(lc)
	}),
	fx.Invoke(registerServerHooks),
)
