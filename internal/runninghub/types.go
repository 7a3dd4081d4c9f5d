package runninghub

import (
	"bytes"
	"encoding/json"
	"strings"
)

// TaskStatus is the state reported by the task status endpoint.
type TaskStatus string

const (
	StatusQueued  TaskStatus = "QUEUED"
	StatusRunning TaskStatus = "RUNNING"
	StatusFailed  TaskStatus = "FAILED"
	StatusSuccess TaskStatus = "SUCCESS"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusFailed, StatusSuccess:
		return true
	}
	return false
}

// Terminal reports whether polling can stop.
func (s TaskStatus) Terminal() bool {
	return s == StatusFailed || s == StatusSuccess
}

// NodeInfo overrides one field of one node when a task is created.
type NodeInfo struct {
	NodeID     string `json:"nodeId"`
	FieldName  string `json:"fieldName"`
	FieldValue any    `json:"fieldValue"`
}

type Task struct {
	TaskID     FlexID `json:"taskId"`
	TaskStatus string `json:"taskStatus,omitempty"`
	ClientID   string `json:"clientId,omitempty"`
}

// TaskOutput is one produced file of a finished task.
type TaskOutput struct {
	FileURL  string `json:"fileUrl"`
	FileType string `json:"fileType"`
	NodeID   FlexID `json:"nodeId,omitempty"`
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// FlexID accepts both JSON strings and numbers; ids come back either way.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	*f = FlexID(strings.Trim(string(b), `"`))
	return nil
}

func (f FlexID) String() string { return string(f) }
