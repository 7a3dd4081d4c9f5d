package domain

import "time"

type LoadResult struct {
	Success    bool               `json:"success"`
	Name       string             `json:"name,omitempty"`
	SourceFile string             `json:"source_file,omitempty"`
	SavedTo    string             `json:"saved_to,omitempty"`
	Params     []ParamDescription `json:"params,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type ParamDescription struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

type UnloadResult struct {
	Success     bool   `json:"success"`
	Name        string `json:"name"`
	FileRemoved bool   `json:"file_removed"`
	Error       string `json:"error,omitempty"`
}

type ReloadResult struct {
	Success []string       `json:"success"`
	Failed  []FailedReload `json:"failed"`
}

type FailedReload struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type WorkflowStatus struct {
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	SourceFile   string    `json:"source_file"`
	LoadedAt     time.Time `json:"loaded_at"`
	IsRunningHub bool      `json:"is_runninghub"`
	WorkflowID   string    `json:"workflow_id,omitempty"`
	ParamCount   int       `json:"param_count"`
	Executions   int64     `json:"executions"`
	Failures     int64     `json:"failures"`
}

type StatusReport struct {
	Directory string           `json:"directory"`
	Count     int              `json:"count"`
	Workflows []WorkflowStatus `json:"workflows"`
}
