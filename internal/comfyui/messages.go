package comfyui

import (
	"encoding/json"
	"strings"
)

const (
	MessageStatus          = "status"
	MessageExecutionStart  = "execution_start"
	MessageExecuting       = "executing"
	MessageExecuted        = "executed"
	MessageExecutionCached = "execution_cached"
	MessageExecutionError  = "execution_error"
	MessageProgress        = "progress"
)

// WSMessage is one JSON frame of the ComfyUI event stream. Data holds a typed payload for known types and nil otherwise.
type WSMessage struct {
	Type string
	Data any
}

func (m *WSMessage) UnmarshalJSON(b []byte) error {
	var temp struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}

	m.Type = temp.Type
	switch temp.Type {
	case MessageStatus:
		m.Data = &StatusData{}
	case MessageExecutionStart:
		m.Data = &ExecutionStartData{}
	case MessageExecuting:
		m.Data = &ExecutingData{}
	case MessageExecuted:
		m.Data = &ExecutedData{}
	case MessageExecutionCached:
		m.Data = &ExecutionCachedData{}
	case MessageExecutionError:
		m.Data = &ExecutionErrorData{}
	case MessageProgress:
		m.Data = &ProgressData{}
	default:
		m.Data = nil
	}

	if m.Data != nil && len(temp.Data) > 0 {
		if err := json.Unmarshal(temp.Data, m.Data); err != nil {
			return err
		}
	}
	return nil
}

// PromptID returns the run the message belongs to, or "" for global messages.
func (m *WSMessage) PromptID() string {
	switch d := m.Data.(type) {
	case *ExecutionStartData:
		return d.PromptID
	case *ExecutingData:
		return d.PromptID
	case *ExecutedData:
		return d.PromptID
	case *ExecutionCachedData:
		return d.PromptID
	case *ExecutionErrorData:
		return d.PromptID
	case *ProgressData:
		return d.PromptID
	}
	return ""
}

/*
{"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 1}}}}
*/
type StatusData struct {
	Status struct {
		ExecInfo struct {
			QueueRemaining int `json:"queue_remaining"`
		} `json:"exec_info"`
	} `json:"status"`
}

type ExecutionStartData struct {
	PromptID string `json:"prompt_id"`
}

// ExecutingData has a nil Node once the whole prompt has finished.
type ExecutingData struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

/*
{"type": "executed", "data": {"node": "19", "output": {"images": [{"filename": "ComfyUI_00046_.png", "subfolder": "", "type": "output"}]}, "prompt_id": "ed98..."}}
*/
type ExecutedData struct {
	Node     string         `json:"node"`
	Output   map[string]any `json:"output"`
	PromptID string         `json:"prompt_id"`
}

type ExecutionCachedData struct {
	Nodes    []any  `json:"nodes"`
	PromptID string `json:"prompt_id"`
}

type ExecutionErrorData struct {
	PromptID         string   `json:"prompt_id"`
	NodeID           string   `json:"node_id"`
	NodeType         string   `json:"node_type"`
	ExceptionMessage string   `json:"exception_message"`
	ExceptionType    string   `json:"exception_type"`
	Traceback        []string `json:"traceback"`
}

type ProgressData struct {
	Value    int    `json:"value"`
	Max      int    `json:"max"`
	PromptID string `json:"prompt_id"`
	Node     string `json:"node"`
}

// HistoryEntry is the value stored under a prompt id by GET /history/{id}.
type HistoryEntry struct {
	Status  HistoryStatus             `json:"status"`
	Outputs map[string]map[string]any `json:"outputs"`
}

type HistoryStatus struct {
	StatusStr string            `json:"status_str"`
	Completed bool              `json:"completed"`
	Messages  []json.RawMessage `json:"messages"`
}

// Failed reports whether the server marked the run as errored.
func (h *HistoryEntry) Failed() bool {
	return h != nil && h.Status.StatusStr == "error"
}

// ErrorMessage joins the exception messages carried by execution_error status entries.
func (h *HistoryEntry) ErrorMessage() string {
	var msgs []string
	for _, raw := range h.Status.Messages {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) < 2 {
			continue
		}
		var kind string
		if err := json.Unmarshal(pair[0], &kind); err != nil || kind != MessageExecutionError {
			continue
		}
		var data ExecutionErrorData
		if err := json.Unmarshal(pair[1], &data); err != nil || data.ExceptionMessage == "" {
			continue
		}
		msgs = append(msgs, data.ExceptionMessage)
	}
	if len(msgs) == 0 {
		return "Unknown error"
	}
	return strings.Join(msgs, "\n")
}
