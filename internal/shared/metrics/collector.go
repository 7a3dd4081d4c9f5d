package metrics

import (
	"context"
	"sync"
	"time"
)

type Collector interface {
	RecordToolExecution(ctx context.Context, toolName string, duration time.Duration, success bool)
	ToolStats(toolName string) ToolStats
	Reset(toolName string)
}

// ToolStats accumulates executions of one workflow tool.
type ToolStats struct {
	Executions   int64         `json:"executions"`
	Failures     int64         `json:"failures"`
	LastDuration time.Duration `json:"last_duration"`
	LastRun      time.Time     `json:"last_run"`
}

// InMemoryCollector keeps per-tool counters for the lifetime of the process.
type InMemoryCollector struct {
	mu    sync.RWMutex
	tools map[string]ToolStats
}

func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{tools: make(map[string]ToolStats)}
}

func (c *InMemoryCollector) RecordToolExecution(ctx context.Context, toolName string, duration time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.tools[toolName]
	s.Executions++
	if !success {
		s.Failures++
	}
	s.LastDuration = duration
	s.LastRun = time.Now()
	c.tools[toolName] = s
}

func (c *InMemoryCollector) ToolStats(toolName string) ToolStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.tools[toolName]
}

// Reset forgets a tool, typically after it was unloaded.
func (c *InMemoryCollector) Reset(toolName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.tools, toolName)
}

type NoOpCollector struct{}

func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (c *NoOpCollector) RecordToolExecution(ctx context.Context, toolName string, duration time.Duration, success bool) {
}

func (c *NoOpCollector) ToolStats(toolName string) ToolStats { return ToolStats{} }

func (c *NoOpCollector) Reset(toolName string) {}
