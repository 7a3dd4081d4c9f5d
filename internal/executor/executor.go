package executor

import (
	"context"
	"time"

	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
)

// Job is one request to run a loaded workflow with caller arguments.
type Job struct {
	Workflow *workflow.Workflow
	Params   map[string]any
}

// Executor runs a job on one backend. Failures are reported through Result.Status, never as errors.
type Executor interface {
	Execute(ctx context.Context, job Job) *Result
}

func since(start time.Time) float64 {
	return time.Since(start).Seconds()
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
