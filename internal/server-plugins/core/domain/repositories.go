package domain

import (
	"context"
	"time"
)

// SystemRepository reads the state of the local ComfyUI server.
type SystemRepository interface {
	Endpoint() string
	ExecutorType() string
	GetSystemStats(ctx context.Context) (map[string]any, error)
}

// CloudRepository reports on the RunningHub account.
type CloudRepository interface {
	Endpoint() string
	Configured() bool
}

// LogSource holds recent log lines.
type LogSource interface {
	GetLast(n int) []string
	Capacity() int
}

// BackendReporter exposes the result of the last backend discovery sync.
type BackendReporter interface {
	AvailableBackends() ([]string, time.Time)
}
