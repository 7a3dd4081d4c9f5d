package runninghub

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured     = errors.New("RunningHub API key is not configured")
	ErrUnknownTaskStatus = errors.New("unknown RunningHub task status")
	ErrEmptyWorkflow     = errors.New("no workflow JSON found in response")
	ErrUploadHandle      = errors.New("neither fileName nor URL found in upload response")
	ErrNoTaskID          = errors.New("task creation response did not contain a taskId")
)

// APIError is a well-formed response whose code is not 0.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unknown error"
	}
	return fmt.Sprintf("RunningHub API error: %s", msg)
}

// HTTPError is a non-200 response from the RunningHub API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}
