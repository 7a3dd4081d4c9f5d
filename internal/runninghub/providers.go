package runninghub

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

// NewWorkflowCacheFromConfig creates the graph cache and stops its cleanup loop on shutdown.
func NewWorkflowCacheFromConfig(lc fx.Lifecycle, cfg config.RunningHubConfig, logger *slog.Logger) *WorkflowCache {
	cache := NewWorkflowCache(cfg.WorkflowCacheTTL, logger.With("component", "runninghub_cache"))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cache.Stop()
			return nil
		},
	})
	return cache
}

func NewClientFromConfig(cfg config.RunningHubConfig, cache *WorkflowCache, logger *slog.Logger) Client {
	if cfg.Configured() {
		logger.Info("RunningHub backend configured", "base_url", cfg.BaseURL, "retry_count", cfg.RetryCount)
	} else {
		logger.Debug("RunningHub backend not configured")
	}
	return NewClient(cfg, cache, logger)
}

var Module = fx.Module("runninghub",
	fx.Provide(NewWorkflowCacheFromConfig),
	fx.Provide(NewClientFromConfig),
	fx.Provide(func(c Client) workflow.RemoteGraphSource { return c }),
)
