package fxapp

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/comfy-mcp/comfy-mcp/internal/comfyui"
	"github.com/comfy-mcp/comfy-mcp/internal/executor"
	"github.com/comfy-mcp/comfy-mcp/internal/media"
	"github.com/comfy-mcp/comfy-mcp/internal/runninghub"
	"github.com/comfy-mcp/comfy-mcp/internal/server"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/core"
	rhplugin "github.com/comfy-mcp/comfy-mcp/internal/server-plugins/runninghub"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/workflows"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
	"github.com/comfy-mcp/comfy-mcp/pkg/logger"
)

// Modules is every module of the server, without the configuration.
var Modules = fx.Options(
	config.Module,
	logger.Module,
	server.Module,
	comfyui.Module,
	runninghub.Module,
	media.Module,
	executor.Module,
	core.CoreModule,
	workflows.Module,
	rhplugin.Module,
)

// New builds the application from an already loaded configuration.
func New(cfg *config.ServerConfig, extra ...fx.Option) *fx.App {
	// Default to a verbose logger for debug level
	var fxLogger fx.Option = fx.WithLogger(
		func() fxevent.Logger {
			return &fxevent.ConsoleLogger{W: log.Writer()}
		},
	)

	if cfg.LogLevel != "debug" {
		fxLogger = fx.NopLogger
	}

	opts := []fx.Option{
		fxLogger,
		fx.Supply(cfg),
		Modules,
	}
	return fx.New(append(opts, extra...)...)
}
