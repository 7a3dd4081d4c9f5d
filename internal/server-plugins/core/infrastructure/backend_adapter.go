package infrastructure

import (
	"context"

	"github.com/comfy-mcp/comfy-mcp/internal/comfyui"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/core/domain"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

type comfyUIAdapter struct {
	client comfyui.Client
	cfg    config.ComfyUIConfig
}

// NewComfyUIAdapter exposes the ComfyUI client as a SystemRepository.
func NewComfyUIAdapter(client comfyui.Client, cfg config.ComfyUIConfig) domain.SystemRepository {
	return &comfyUIAdapter{client: client, cfg: cfg}
}

func (a *comfyUIAdapter) Endpoint() string     { return a.client.BaseURL() }
func (a *comfyUIAdapter) ExecutorType() string { return a.cfg.ExecutorType }

func (a *comfyUIAdapter) GetSystemStats(ctx context.Context) (map[string]any, error) {
	return a.client.SystemStats(ctx)
}

type runningHubAdapter struct {
	cfg config.RunningHubConfig
}

// NewRunningHubAdapter reports RunningHub settings; no call is made to the API.
func NewRunningHubAdapter(cfg config.RunningHubConfig) domain.CloudRepository {
	return &runningHubAdapter{cfg: cfg}
}

func (a *runningHubAdapter) Endpoint() string { return a.cfg.BaseURL }
func (a *runningHubAdapter) Configured() bool { return a.cfg.Configured() }
