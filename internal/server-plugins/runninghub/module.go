package runninghub

import (
	"log/slog"

	"go.uber.org/fx"

	rhclient "github.com/comfy-mcp/comfy-mcp/internal/runninghub"
	serverDomain "github.com/comfy-mcp/comfy-mcp/internal/server-plugin/domain"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/workflows/application"
)

var Module = fx.Module("runninghub_plugin",
	fx.Provide(
		fx.Annotate(
			func(client rhclient.Client, manager *application.Manager, logger *slog.Logger) serverDomain.ServerPlugin {
				return NewRunningHubServerPlugin(client, manager, logger)
			},
			fx.ResultTags(`group:"server_plugins"`),
		),
	),
)
