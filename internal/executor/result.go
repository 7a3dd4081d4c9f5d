package executor

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Status is the lifecycle state of one workflow run.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusTimeout    Status = "timeout"
)

// Result is the normalized outcome of a run on any backend.
type Result struct {
	Status   Status  `json:"status"`
	PromptID string  `json:"prompt_id,omitempty"`
	Duration float64 `json:"duration,omitempty"`

	Images []string `json:"images"`
	Audios []string `json:"audios"`
	Videos []string `json:"videos"`
	Texts  []string `json:"texts"`

	ImagesByVar map[string][]string `json:"images_by_var"`
	AudiosByVar map[string][]string `json:"audios_by_var"`
	VideosByVar map[string][]string `json:"videos_by_var"`
	TextsByVar  map[string][]string `json:"texts_by_var"`

	Outputs map[string]any `json:"outputs,omitempty"`
	Msg     string         `json:"msg,omitempty"`
}

// NewResult returns an empty result in the processing state.
func NewResult(promptID string) *Result {
	return &Result{
		Status:      StatusProcessing,
		PromptID:    promptID,
		Images:      []string{},
		Audios:      []string{},
		Videos:      []string{},
		Texts:       []string{},
		ImagesByVar: map[string][]string{},
		AudiosByVar: map[string][]string{},
		VideosByVar: map[string][]string{},
		TextsByVar:  map[string][]string{},
	}
}

func errorResult(promptID, msg string) *Result {
	r := NewResult(promptID)
	r.Status = StatusError
	r.Msg = msg
	return r
}

func (r *Result) Completed() bool { return r != nil && r.Status == StatusCompleted }

// ToLLMResult renders the result as a short sentence for the calling model.
func (r *Result) ToLLMResult() string {
	if r.Status != StatusCompleted {
		var b strings.Builder
		b.WriteString("Generation failed, status: ")
		b.WriteString(string(r.Status))
		if r.Msg != "" {
			b.WriteString(", message: ")
			b.WriteString(r.Msg)
		}
		return b.String()
	}

	var b strings.Builder
	b.WriteString("Generated successfully")
	sections := []struct {
		name  string
		list  []string
		byVar map[string][]string
	}{
		{"images", r.Images, r.ImagesByVar},
		{"audios", r.Audios, r.AudiosByVar},
		{"videos", r.Videos, r.VideosByVar},
		{"texts", r.Texts, r.TextsByVar},
	}
	for _, s := range sections {
		if len(s.list) == 0 {
			continue
		}
		b.WriteString(", ")
		b.WriteString(s.name)
		b.WriteString(": ")
		b.WriteString(formatMedia(s.list, s.byVar))
	}
	return b.String()
}

// formatMedia shows the first item per output variable when several variables produced output.
func formatMedia(list []string, byVar map[string][]string) string {
	var v any = list
	if len(byVar) > 1 {
		firsts := make(map[string]any, len(byVar))
		for k, items := range byVar {
			if len(items) > 0 {
				firsts[k] = items[0]
			} else {
				firsts[k] = nil
			}
		}
		v = firsts
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return strings.Join(list, ", ")
	}
	return strings.TrimRight(buf.String(), "\n")
}
