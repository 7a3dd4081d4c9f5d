package application

import (
	"context"
	"log/slog"
	"slices"
	"time"

	mcpserver "github.com/comfy-mcp/comfy-mcp/internal/server"
	serverDomain "github.com/comfy-mcp/comfy-mcp/internal/server-plugin/domain"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/core/domain"
)

const (
	defaultLogLines = 100
	maxLogLines     = 1000
)

// CoreService answers the status and diagnostics requests of the core plugin.
type CoreService struct {
	system domain.SystemRepository
	cloud  domain.CloudRepository
	logs   domain.LogSource
	logger *slog.Logger
}

func NewCoreService(
	system domain.SystemRepository,
	cloud domain.CloudRepository,
	logs domain.LogSource,
	logger *slog.Logger,
) *CoreService {
	return &CoreService{
		system: system,
		cloud:  cloud,
		logs:   logs,
		logger: logger,
	}
}

// GetSystemStatus probes ComfyUI; an unreachable server is reported, not returned as an error.
func (s *CoreService) GetSystemStatus(ctx context.Context) *domain.SystemStatus {
	s.logger.Debug("Getting system status")

	status := &domain.SystemStatus{
		ComfyUI:      domain.BackendStatus{Name: serverDomain.BackendComfyUI, Endpoint: s.system.Endpoint()},
		ExecutorType: s.system.ExecutorType(),
		RunningHub: domain.BackendStatus{
			Name:      serverDomain.BackendRunningHub,
			Endpoint:  s.cloud.Endpoint(),
			Available: s.cloud.Configured(),
		},
		CheckedAt: time.Now(),
	}
	if !status.RunningHub.Available {
		status.RunningHub.Detail = "API key not configured"
	}

	stats, err := s.system.GetSystemStats(ctx)
	if err != nil {
		status.ComfyUI.Detail = err.Error()
		return status
	}
	status.ComfyUI.Available = true
	status.SystemStats = stats
	return status
}

// GetServerLogs returns the last n buffered log lines with credentials redacted.
func (s *CoreService) GetServerLogs(n int) *domain.LogsResponse {
	if n <= 0 {
		n = defaultLogLines
	}
	if n > maxLogLines {
		n = maxLogLines
	}
	lines := mcpserver.SanitizeLogLines(s.logs.GetLast(n))
	if lines == nil {
		lines = []string{}
	}
	return &domain.LogsResponse{Lines: lines, Count: len(lines), Capacity: s.logs.Capacity()}
}

// GetBackends reports the last discovery result along with the active plugins.
func (s *CoreService) GetBackends(reporter domain.BackendReporter, active []serverDomain.ServerPlugin) *domain.BackendsReport {
	available, lastSync := reporter.AvailableBackends()
	if available == nil {
		available = []string{}
	}
	plugins := make([]string, 0, len(active))
	for _, p := range active {
		plugins = append(plugins, p.ID())
	}
	slices.Sort(plugins)
	return &domain.BackendsReport{Available: available, LastSync: lastSync, Plugins: plugins}
}
