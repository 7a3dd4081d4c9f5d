package executor

import (
	"context"
	"log/slog"

	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
)

// Facade routes a job to the local ComfyUI executor or to RunningHub depending on where
// the workflow lives.
type Facade struct {
	loader *workflow.Loader
	local  Executor
	cloud  Executor
	logger *slog.Logger
}

func NewFacade(loader *workflow.Loader, local, cloud Executor, logger *slog.Logger) *Facade {
	return &Facade{
		loader: loader,
		local:  local,
		cloud:  cloud,
		logger: logger.With("component", "executor"),
	}
}

func (f *Facade) Execute(ctx context.Context, job Job) *Result {
	if job.Workflow == nil || job.Workflow.Metadata == nil {
		return errorResult("", "Cannot parse workflow metadata")
	}
	if job.Workflow.Metadata.IsRunningHub {
		if f.cloud == nil {
			return errorResult("", "RunningHub executor is not available")
		}
		return f.cloud.Execute(ctx, job)
	}
	return f.local.Execute(ctx, job)
}

// ExecuteWorkflow loads a workflow file and runs it with params.
func (f *Facade) ExecuteWorkflow(ctx context.Context, path string, params map[string]any) *Result {
	wf, err := f.loader.Load(ctx, path, "")
	if err != nil {
		f.logger.Error("Failed to load workflow", "path", path, "error", err)
		return errorResult("", err.Error())
	}
	return f.Execute(ctx, Job{Workflow: wf, Params: params})
}
