package core

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	mcpserver "github.com/comfy-mcp/comfy-mcp/internal/server"
	plugins "github.com/comfy-mcp/comfy-mcp/internal/server-plugin/application"
	serverDomain "github.com/comfy-mcp/comfy-mcp/internal/server-plugin/domain"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/core/application"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/core/domain"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/core/infrastructure"
	"github.com/comfy-mcp/comfy-mcp/pkg/logger"
)

// CoreModule provides dependency injection for the core plugin
var CoreModule = fx.Module("core",
	fx.Provide(
		infrastructure.NewComfyUIAdapter,
		infrastructure.NewRunningHubAdapter,
		func(buffer *logger.RingBuffer) domain.LogSource { return buffer },
		application.NewCoreService,
		NewCoreServerPlugin,
		fx.Annotate(
			func(p *CoreServerPlugin) serverDomain.ServerPlugin { return p },
			fx.ResultTags(`group:"server_plugins"`),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, log *slog.Logger, registry *plugins.DynamicServerPluginRegistry, adapter mcpserver.ServerPluginProvider, p *CoreServerPlugin) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				p.SetRegistry(registry, adapter)
				log.Debug("Core plugin initialized")
				return nil
			},
		})
	}),
)
