package runninghub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

const (
	endpointWorkflowJSON = "/api/openapi/getJsonApiFormat"
	endpointUpload       = "/task/openapi/upload"
	endpointCreateTask   = "/task/openapi/create"
	endpointTaskStatus   = "/task/openapi/status"
	endpointTaskOutputs  = "/task/openapi/outputs"

	requestTimeout = 2 * time.Minute
)

// Client is the RunningHub OpenAPI surface used for cloud execution.
type Client interface {
	Configured() bool
	GetWorkflowJSON(ctx context.Context, workflowID string) (json.RawMessage, error)
	UploadFile(ctx context.Context, r io.Reader, filename string) (string, error)
	CreateTask(ctx context.Context, workflowID string, nodes []NodeInfo) (*Task, error)
	QueryTaskStatus(ctx context.Context, taskID string) (TaskStatus, error)
	QueryTaskResult(ctx context.Context, taskID string) ([]TaskOutput, error)
}

type client struct {
	baseURL    string
	apiKey     string
	retryCount int
	baseDelay  time.Duration
	httpClient *http.Client
	cache      *WorkflowCache
	logger     *slog.Logger
}

// NewClient builds a client; cache may be nil.
func NewClient(cfg config.RunningHubConfig, cache *WorkflowCache, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	delay := cfg.RetryBaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	return &client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		retryCount: max(cfg.RetryCount, 0),
		baseDelay:  delay,
		httpClient: &http.Client{},
		cache:      cache,
		logger:     logger.With("component", "runninghub_client"),
	}
}

func (c *client) Configured() bool {
	return c.apiKey != "" && c.baseURL != ""
}

// requestBody produces a fresh body per attempt since a reader cannot be replayed.
type requestBody func() (io.Reader, string, error)

func jsonBody(payload any) requestBody {
	return func() (io.Reader, string, error) {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// call POSTs to endpoint with retries; the backoff before attempt n+1 is baseDelay * 2^n.
func (c *client) call(ctx context.Context, endpoint string, body requestBody) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var lastErr error
	attempts := c.retryCount + 1
	for attempt := 0; attempt < attempts; attempt++ {
		data, err := c.once(ctx, endpoint, body)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if attempt == attempts-1 || ctx.Err() != nil {
			break
		}
		wait := c.baseDelay * time.Duration(1<<attempt)
		c.logger.Warn("Request failed, retrying",
			"endpoint", endpoint,
			"attempt", attempt+1,
			"attempts", attempts,
			"wait", wait,
			"error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	c.logger.Error("Request failed", "endpoint", endpoint, "attempts", attempts, "error", lastErr)
	return nil, lastErr
}

func (c *client) once(ctx context.Context, endpoint string, body requestBody) (json.RawMessage, error) {
	reader, contentType, err := body()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid RunningHub response: %w", err)
	}
	if env.Code != 0 {
		return nil, &APIError{Code: env.Code, Message: env.Msg}
	}
	return env.Data, nil
}

func (c *client) GetWorkflowJSON(ctx context.Context, workflowID string) (json.RawMessage, error) {
	if cached, ok := c.cache.Get(workflowID); ok {
		return cached, nil
	}

	c.logger.Info("Getting workflow JSON", "workflow_id", workflowID)
	data, err := c.call(ctx, endpointWorkflowJSON, jsonBody(map[string]any{
		"apiKey":     c.apiKey,
		"workflowId": workflowID,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow JSON for %s: %w", workflowID, err)
	}

	var payload struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Prompt == "" {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrEmptyWorkflow)
	}
	graph := json.RawMessage(payload.Prompt)
	if !json.Valid(graph) {
		return nil, fmt.Errorf("workflow %s: prompt is not valid JSON", workflowID)
	}

	c.cache.Set(workflowID, graph)
	return graph, nil
}

func (c *client) UploadFile(ctx context.Context, r io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	body := func() (io.Reader, string, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if err := w.WriteField("apiKey", c.apiKey); err != nil {
			return nil, "", err
		}
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(content); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	}

	c.logger.Info("Uploading file to RunningHub", "filename", filename, "size", len(content))
	data, err := c.call(ctx, endpointUpload, body)
	if err != nil {
		return "", fmt.Errorf("failed to upload file %s: %w", filename, err)
	}

	var out struct {
		FileName string `json:"fileName"`
		URL      string `json:"url"`
	}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &out); err != nil {
			return "", fmt.Errorf("invalid upload response: %w", err)
		}
	}
	switch {
	case out.FileName != "":
		return out.FileName, nil
	case out.URL != "":
		c.logger.Warn("fileName not found in upload response, using URL", "url", out.URL)
		return out.URL, nil
	default:
		return "", ErrUploadHandle
	}
}

func (c *client) CreateTask(ctx context.Context, workflowID string, nodes []NodeInfo) (*Task, error) {
	payload := map[string]any{
		"apiKey":     c.apiKey,
		"workflowId": workflowID,
	}
	if len(nodes) > 0 {
		payload["nodeInfoList"] = nodes
	}

	c.logger.Info("Creating task", "workflow_id", workflowID, "overrides", len(nodes))
	data, err := c.call(ctx, endpointCreateTask, jsonBody(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create task for %s: %w", workflowID, err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("invalid task creation response: %w", err)
	}
	if task.TaskID == "" {
		return nil, ErrNoTaskID
	}
	c.logger.Info("Task created", "task_id", task.TaskID.String())
	return &task, nil
}

func (c *client) QueryTaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	data, err := c.call(ctx, endpointTaskStatus, jsonBody(map[string]any{
		"apiKey": c.apiKey,
		"taskId": taskID,
	}))
	if err != nil {
		return "", fmt.Errorf("failed to query task status for %s: %w", taskID, err)
	}

	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return StatusFailed, nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTaskStatus, string(data))
	}
	status := TaskStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTaskStatus, raw)
	}
	return status, nil
}

func (c *client) QueryTaskResult(ctx context.Context, taskID string) ([]TaskOutput, error) {
	data, err := c.call(ctx, endpointTaskOutputs, jsonBody(map[string]any{
		"apiKey": c.apiKey,
		"taskId": taskID,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to query task result for %s: %w", taskID, err)
	}
	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return []TaskOutput{}, nil
	}
	var outputs []TaskOutput
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, fmt.Errorf("invalid task result response: %w", err)
	}
	return outputs, nil
}
