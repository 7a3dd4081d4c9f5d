package runninghub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// WorkflowCache keeps fetched workflow graphs for a fixed TTL so reloads do not refetch every reference.
type WorkflowCache struct {
	ttl     time.Duration
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once
}

type cacheEntry struct {
	graph     json.RawMessage
	expiresAt time.Time
}

// NewWorkflowCache returns nil when ttl is not positive; a nil cache never hits.
func NewWorkflowCache(ttl time.Duration, logger *slog.Logger) *WorkflowCache {
	if ttl <= 0 {
		return nil
	}
	c := &WorkflowCache{
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]*cacheEntry),
		done:    make(chan struct{}),
	}
	c.startCleanup()
	logger.Debug("Workflow cache initialized", "ttl", ttl)
	return c
}

func (c *WorkflowCache) Get(workflowID string) (json.RawMessage, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[workflowID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	c.logger.Debug("Workflow cache hit", "workflow_id", workflowID)
	return entry.graph, true
}

func (c *WorkflowCache) Set(workflowID string, graph json.RawMessage) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[workflowID] = &cacheEntry{graph: graph, expiresAt: time.Now().Add(c.ttl)}
}

func (c *WorkflowCache) Invalidate(workflowID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, workflowID)
}

func (c *WorkflowCache) Stop() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.done) })
}

func (c *WorkflowCache) startCleanup() {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	c.cleanup = time.NewTicker(interval)
	go func() {
		defer c.cleanup.Stop()
		for {
			select {
			case <-c.cleanup.C:
				c.cleanupExpired()
			case <-c.done:
				return
			}
		}
	}()
}

func (c *WorkflowCache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	cleaned := 0
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
			cleaned++
		}
	}
	if cleaned > 0 {
		c.logger.Debug("Cleaned expired workflow cache entries", "count", cleaned)
	}
}
