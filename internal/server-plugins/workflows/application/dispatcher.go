package application

import (
	"context"
	"fmt"
	"time"

	"github.com/comfy-mcp/comfy-mcp/internal/executor"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/workflows/domain"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
)

// dispatcher binds a parsed workflow to the executor. The returned function never
// panics and always produces text for the model.
func (m *Manager) dispatcher(wf *workflow.Workflow) domain.WorkflowFunc {
	name := wf.Metadata.Title
	return func(ctx context.Context, args map[string]any) (text string) {
		start := time.Now()
		success := false
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("Workflow execution panicked", "name", name, "panic", r)
				text = fmt.Sprintf("Workflow execution exception: %v", r)
				success = false
			}
			m.metrics.RecordToolExecution(ctx, name, time.Since(start), success)
		}()

		params, err := workflow.CoerceArgs(wf.Metadata, args)
		if err != nil {
			m.logger.Error("Workflow arguments rejected", "name", name, "error", err)
			return fmt.Sprintf("Workflow execution exception: %v", err)
		}

		m.logger.Info("Executing workflow", "name", name, "params", len(params))
		result := m.runner.Execute(ctx, executor.Job{Workflow: wf, Params: params})
		if result == nil {
			return "Workflow execution exception: executor returned no result"
		}
		if result.Completed() {
			success = true
			return result.ToLLMResult()
		}

		reason := result.Msg
		if reason == "" {
			reason = string(result.Status)
		}
		m.logger.Warn("Workflow execution failed", "name", name, "status", result.Status, "message", result.Msg)
		return "Workflow execution failed: " + reason
	}
}
