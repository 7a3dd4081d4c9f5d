package executor

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/comfy-mcp/comfy-mcp/internal/comfyui"
	"github.com/comfy-mcp/comfy-mcp/internal/media"
	"github.com/comfy-mcp/comfy-mcp/internal/runninghub"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

func NewTransfererFromConfig(cfg config.MediaConfig, downloader media.Downloader, uploader media.Uploader, logger *slog.Logger) *Transferer {
	return NewTransferer(downloader, uploader, cfg.TransferResults, logger)
}

type facadeParams struct {
	fx.In

	ComfyUI    config.ComfyUIConfig
	RunningHub config.RunningHubConfig
	Client     comfyui.Client
	Cloud      runninghub.Client
	Loader     *workflow.Loader
	Params     *ParamApplier
	Transfer   *Transferer
	Downloader media.Downloader
	Logger     *slog.Logger
}

// NewFacadeFromConfig picks the local executor named by comfyui.executor_type.
func NewFacadeFromConfig(p facadeParams) *Facade {
	var local Executor
	if p.ComfyUI.ExecutorType == "websocket" {
		local = NewWebSocketExecutor(p.Client, p.Params, p.Transfer, p.ComfyUI, p.Logger)
	} else {
		local = NewHTTPExecutor(p.Client, p.Params, p.Transfer, p.ComfyUI, p.Logger)
	}
	cloud := NewRunningHubExecutor(p.Cloud, p.Params, p.Downloader, p.RunningHub, p.Logger)
	return NewFacade(p.Loader, local, cloud, p.Logger)
}

var Module = fx.Module("executor",
	fx.Provide(workflow.NewParser),
	fx.Provide(workflow.NewLoader),
	fx.Provide(NewParamApplier),
	fx.Provide(NewTransfererFromConfig),
	fx.Provide(NewFacadeFromConfig),
	fx.Provide(func(f *Facade) Executor { return f }),
)
