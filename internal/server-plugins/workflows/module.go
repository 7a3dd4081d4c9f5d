package workflows

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/fx"

	"github.com/comfy-mcp/comfy-mcp/internal/executor"
	serverDomain "github.com/comfy-mcp/comfy-mcp/internal/server-plugin/domain"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/workflows/application"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/workflows/infrastructure"
	"github.com/comfy-mcp/comfy-mcp/internal/shared/metrics"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

func NewManagerFromConfig(cfg config.WorkflowsConfig, loader *workflow.Loader, runner executor.Executor, mcpServer *server.MCPServer, collector metrics.Collector, logger *slog.Logger) *application.Manager {
	return application.NewManager(cfg.Dir, loader, runner, mcpServer, collector, logger)
}

// registerManagerHooks loads the workflow directory on start and optionally watches it.
func registerManagerHooks(lc fx.Lifecycle, cfg config.WorkflowsConfig, manager *application.Manager, logger *slog.Logger) {
	var watcher *infrastructure.DirectoryWatcher

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			res := manager.LoadAll(ctx)
			logger.Info("Initial workflow load", "success", len(res.Success), "failed", len(res.Failed))
			for _, f := range res.Failed {
				logger.Warn("Workflow failed to load", "file", f.File, "error", f.Error)
			}

			if !cfg.Watch {
				return nil
			}
			watcher = infrastructure.NewDirectoryWatcher(cfg.Dir, cfg.WatchDebounce, func(ctx context.Context) {
				res := manager.ReloadAll(ctx)
				logger.Info("Workflow directory changed, reloaded", "success", len(res.Success), "failed", len(res.Failed))
			}, logger)
			if err := watcher.Start(); err != nil {
				logger.Error("Workflow watcher disabled", "error", err)
				watcher = nil
			}
			return nil
		},
		OnStop: func(context.Context) error {
			if watcher != nil {
				return watcher.Close()
			}
			return nil
		},
	})
}

var Module = fx.Module("workflows",
	fx.Provide(
		fx.Annotate(
			metrics.NewInMemoryCollector,
			fx.As(new(metrics.Collector)),
		),
		NewManagerFromConfig,
		NewWorkflowsServerPlugin,
		fx.Annotate(
			func(p *WorkflowsServerPlugin) serverDomain.ServerPlugin { return p },
			fx.ResultTags(`group:"server_plugins"`),
		),
	),
	fx.Invoke(registerManagerHooks),
)
