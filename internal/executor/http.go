package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/comfy-mcp/comfy-mcp/internal/comfyui"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

// HTTPExecutor submits a prompt and polls /history until the run finishes.
type HTTPExecutor struct {
	localBackend
}

func NewHTTPExecutor(client comfyui.Client, params *ParamApplier, transfer *Transferer, cfg config.ComfyUIConfig, logger *slog.Logger) *HTTPExecutor {
	return &HTTPExecutor{localBackend{
		client:   client,
		params:   params,
		transfer: transfer,
		cfg:      cfg,
		logger:   logger.With("component", "http_executor"),
	}}
}

func (e *HTTPExecutor) Execute(ctx context.Context, job Job) *Result {
	start := time.Now()
	cookies := e.cookies(ctx)

	graph, err := e.prepare(ctx, job, cookies)
	if err != nil {
		return errorResult("", err.Error())
	}

	promptID, err := e.submit(ctx, graph, uuid.NewString())
	if err != nil {
		e.logger.Error("Submit workflow failed", "error", err)
		return errorResult("", err.Error())
	}

	res := e.wait(ctx, promptID, job.Workflow.Metadata.OutputVars())
	res.Duration = since(start)
	return e.finish(ctx, res, cookies)
}

func (e *HTTPExecutor) wait(ctx context.Context, promptID string, outputVars map[string]string) *Result {
	deadline := time.Now().Add(e.cfg.Timeout)
	for {
		entry, err := e.client.GetHistory(ctx, promptID)
		switch {
		case err != nil:
			e.logger.Debug("History not available yet", "prompt_id", promptID, "error", err)
		case entry == nil:
		case entry.Failed():
			msg := entry.ErrorMessage()
			e.logger.Error("Workflow execution failed", "prompt_id", promptID, "message", msg)
			return errorResult(promptID, msg)
		case entry.Outputs != nil:
			return BuildResult(promptID, entry.Outputs, outputVars, e.client.ViewURL)
		}

		if !time.Now().Before(deadline) {
			res := NewResult(promptID)
			res.Status = StatusTimeout
			res.Msg = fmt.Sprintf("Workflow execution timeout after %s", e.cfg.Timeout)
			return res
		}
		if err := sleepCtx(ctx, e.cfg.PollInterval); err != nil {
			return errorResult(promptID, err.Error())
		}
	}
}
