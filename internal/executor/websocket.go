package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/comfy-mcp/comfy-mcp/internal/comfyui"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

// WebSocketExecutor follows the run through the ComfyUI event stream instead of polling.
type WebSocketExecutor struct {
	localBackend
}

func NewWebSocketExecutor(client comfyui.Client, params *ParamApplier, transfer *Transferer, cfg config.ComfyUIConfig, logger *slog.Logger) *WebSocketExecutor {
	return &WebSocketExecutor{localBackend{
		client:   client,
		params:   params,
		transfer: transfer,
		cfg:      cfg,
		logger:   logger.With("component", "websocket_executor"),
	}}
}

type frame struct {
	msg *comfyui.WSMessage
	err error
}

func (e *WebSocketExecutor) Execute(ctx context.Context, job Job) *Result {
	start := time.Now()
	cookies := e.cookies(ctx)

	graph, err := e.prepare(ctx, job, cookies)
	if err != nil {
		return errorResult("", err.Error())
	}

	clientID := uuid.NewString()
	conn, err := e.client.DialWebSocket(ctx, clientID)
	if err != nil {
		e.logger.Error("WebSocket connection failed", "error", err)
		return errorResult("", err.Error())
	}
	defer conn.Close()

	promptID, err := e.submit(ctx, graph, clientID)
	if err != nil {
		e.logger.Error("Submit workflow failed", "error", err)
		return errorResult("", err.Error())
	}

	frames := make(chan frame, 16)
	done := make(chan struct{})
	defer close(done)
	go readFrames(conn, frames, done)

	res := e.wait(ctx, promptID, frames, job.Workflow.Metadata.OutputVars())
	res.Duration = since(start)
	return e.finish(ctx, res, cookies)
}

// readFrames decodes frames until the connection fails; binary preview frames are skipped.
func readFrames(conn *websocket.Conn, out chan<- frame, done <-chan struct{}) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case out <- frame{err: err}:
			case <-done:
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		var msg comfyui.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		select {
		case out <- frame{msg: &msg}:
		case <-done:
			return
		}
	}
}

func (e *WebSocketExecutor) wait(ctx context.Context, promptID string, frames <-chan frame, outputVars map[string]string) *Result {
	deadline := time.Now().Add(e.cfg.Timeout)
	readTimeout := e.cfg.WSReadTimeout
	if readTimeout <= 0 {
		readTimeout = 3 * time.Second
	}
	collected := make(map[string]map[string]any)

	for {
		if !time.Now().Before(deadline) {
			res := NewResult(promptID)
			res.Status = StatusTimeout
			res.Msg = fmt.Sprintf("Workflow execution timeout after %s", e.cfg.Timeout)
			return res
		}

		timer := time.NewTimer(min(readTimeout, time.Until(deadline)))
		var f frame
		select {
		case <-ctx.Done():
			timer.Stop()
			return errorResult(promptID, ctx.Err().Error())
		case <-timer.C:
			continue
		case f = <-frames:
			timer.Stop()
		}

		if f.err != nil {
			e.logger.Error("WebSocket connection closed", "prompt_id", promptID, "error", f.err)
			return errorResult(promptID, fmt.Sprintf("WebSocket connection closed: %v", f.err))
		}

		msg := f.msg
		if msg.PromptID() != "" && msg.PromptID() != promptID {
			continue
		}

		switch data := msg.Data.(type) {
		case *comfyui.ExecutingData:
			if data.PromptID != promptID {
				continue
			}
			if data.Node != nil {
				e.logger.Debug("Executing node", "prompt_id", promptID, "node", *data.Node)
				continue
			}
			if len(collected) == 0 {
				return errorResult(promptID, "no outputs collected")
			}
			return BuildResult(promptID, collected, outputVars, e.client.ViewURL)
		case *comfyui.ExecutedData:
			if data.PromptID == promptID && HasCollectableOutput(data.Output) {
				collected[data.Node] = data.Output
			}
		case *comfyui.ExecutionErrorData:
			if data.PromptID != promptID {
				continue
			}
			msg := data.ExceptionMessage
			if msg == "" {
				msg = "Unknown error"
			}
			e.logger.Error("Workflow execution error", "prompt_id", promptID, "node_id", data.NodeID, "message", msg)
			return errorResult(promptID, msg)
		case *comfyui.ExecutionCachedData:
			e.logger.Debug("Nodes served from cache", "prompt_id", promptID, "nodes", data.Nodes)
		case *comfyui.StatusData:
			e.logger.Debug("Queue status", "queue_remaining", data.Status.ExecInfo.QueueRemaining)
		}
	}
}
