package infrastructure

import (
	"context"
	"log/slog"

	"github.com/comfy-mcp/comfy-mcp/internal/comfyui"
	"github.com/comfy-mcp/comfy-mcp/internal/runninghub"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugin/domain"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

// backendDiscoveryService probes the ComfyUI server and checks RunningHub credentials.
type backendDiscoveryService struct {
	comfy  comfyui.Client
	hub    runninghub.Client
	cfg    config.BackendDiscoveryConfig
	logger *slog.Logger
}

// NewBackendDiscoveryService creates a new backend discovery service.
func NewBackendDiscoveryService(comfy comfyui.Client, hub runninghub.Client, cfg config.BackendDiscoveryConfig, logger *slog.Logger) domain.BackendDiscoveryService {
	return &backendDiscoveryService{
		comfy:  comfy,
		hub:    hub,
		cfg:    cfg,
		logger: logger.With("component", "backend_discovery"),
	}
}

// GetAvailableBackends never fails: an unreachable backend is simply left out.
func (s *backendDiscoveryService) GetAvailableBackends(ctx context.Context) ([]string, error) {
	var available []string

	probeCtx := ctx
	if s.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, s.cfg.ProbeTimeout)
		defer cancel()
	}

	if _, err := s.comfy.SystemStats(probeCtx); err != nil {
		s.logger.Debug("ComfyUI backend unreachable", "base_url", s.comfy.BaseURL(), "error", err)
	} else {
		available = append(available, domain.BackendComfyUI)
	}

	if s.hub.Configured() {
		available = append(available, domain.BackendRunningHub)
	}

	s.logger.Debug("Available backends detected", "backends", available)
	return available, nil
}
