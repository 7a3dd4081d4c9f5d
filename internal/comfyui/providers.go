package comfyui

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

// NewClientFromConfig creates a Client from the ComfyUI section of the server configuration.
func NewClientFromConfig(cfg config.ComfyUIConfig, logger *slog.Logger) Client {
	logger.Info("ComfyUI backend configured",
		"base_url", cfg.BaseURL,
		"executor", cfg.ExecutorType,
		"cookies", cfg.Cookies != "",
		"api_key", cfg.APIKey != "")
	return NewClient(cfg, logger)
}

var Module = fx.Module("comfyui",
	fx.Provide(NewClientFromConfig),
)
