package executor

import (
	"context"
	"log/slog"

	"github.com/comfy-mcp/comfy-mcp/internal/comfyui"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

// localBackend holds what the HTTP and WebSocket executors share for a ComfyUI server.
type localBackend struct {
	client   comfyui.Client
	params   *ParamApplier
	transfer *Transferer
	cfg      config.ComfyUIConfig
	logger   *slog.Logger
}

func (b *localBackend) cookies(ctx context.Context) map[string]string {
	cookies, err := b.client.Cookies(ctx)
	if err != nil {
		b.logger.Warn("Continuing without ComfyUI cookies", "error", err)
		return nil
	}
	return cookies
}

// prepare applies caller params and fresh seeds to a copy of the workflow graph.
func (b *localBackend) prepare(ctx context.Context, job Job, cookies map[string]string) (workflow.Graph, error) {
	graph, err := b.params.Apply(ctx, job.Workflow.Graph, job.Workflow.Metadata, job.Params, UploadFunc(b.client.UploadImage), cookies)
	if err != nil {
		return nil, err
	}
	if seeds := RandomizeSeeds(graph); len(seeds) > 0 {
		b.logger.Debug("Randomized seeds", "seeds", seeds)
	}
	return graph, nil
}

func (b *localBackend) submit(ctx context.Context, graph workflow.Graph, clientID string) (string, error) {
	req := comfyui.PromptRequest{Prompt: graph, ClientID: clientID}
	if key := b.client.APIKey(); key != "" {
		req.ExtraData = map[string]any{"api_key_comfy_org": key}
	}
	return b.client.QueuePrompt(ctx, req)
}

// finish re-hosts media of a completed result; a transfer failure turns it into an error.
func (b *localBackend) finish(ctx context.Context, res *Result, cookies map[string]string) *Result {
	if !res.Completed() {
		return res
	}
	if err := b.transfer.TransferResultFiles(ctx, res, cookies); err != nil {
		b.logger.Error("Failed to transfer result files", "prompt_id", res.PromptID, "error", err)
		failed := errorResult(res.PromptID, err.Error())
		failed.Duration = res.Duration
		return failed
	}
	return res
}
