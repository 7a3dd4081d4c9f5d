package domain

import "time"

// BackendStatus describes one execution backend as seen by the server.
type BackendStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Endpoint  string `json:"endpoint,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// SystemStatus is the answer of get_system_status.
type SystemStatus struct {
	ComfyUI      BackendStatus  `json:"comfyui"`
	ExecutorType string         `json:"executor_type"`
	SystemStats  map[string]any `json:"system_stats,omitempty"`
	RunningHub   BackendStatus  `json:"runninghub"`
	CheckedAt    time.Time      `json:"checked_at"`
}

// BackendsReport is the content of the backends resource.
type BackendsReport struct {
	Available []string  `json:"available"`
	LastSync  time.Time `json:"last_sync"`
	Plugins   []string  `json:"active_plugins"`
}

// LogsResponse carries redacted server log lines.
type LogsResponse struct {
	Lines    []string `json:"lines"`
	Count    int      `json:"count"`
	Capacity int      `json:"capacity"`
}

// CapabilityIndex lists what the server currently publishes.
type CapabilityIndex struct {
	Tools     []Capability `json:"tools"`
	Resources []Capability `json:"resources"`
}

type Capability struct {
	Name        string `json:"name"`
	Plugin      string `json:"plugin"`
	Description string `json:"description,omitempty"`
}
