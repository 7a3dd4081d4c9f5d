package comfyui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/comfy-mcp/comfy-mcp/internal/media"
	"github.com/comfy-mcp/comfy-mcp/internal/shared"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

const requestTimeout = 30 * time.Second

// PromptRequest is the body of POST /prompt.
type PromptRequest struct {
	Prompt    workflow.Graph `json:"prompt"`
	ClientID  string         `json:"client_id"`
	ExtraData map[string]any `json:"extra_data,omitempty"`
}

// Client talks to a single ComfyUI server over its HTTP and WebSocket API.
type Client interface {
	BaseURL() string
	APIKey() string
	QueuePrompt(ctx context.Context, req PromptRequest) (string, error)
	// GetHistory returns nil without error while the server has no entry for promptID.
	GetHistory(ctx context.Context, promptID string) (*HistoryEntry, error)
	UploadImage(ctx context.Context, r io.Reader, filename string) (string, error)
	ViewURL(filename, subfolder, folderType string) string
	DialWebSocket(ctx context.Context, clientID string) (*websocket.Conn, error)
	Cookies(ctx context.Context) (map[string]string, error)
	SystemStats(ctx context.Context) (map[string]any, error)
}

type client struct {
	baseURL    string
	apiKey     string
	rawCookies string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger

	cookiesMu sync.Mutex
	cookies   map[string]string
	resolved  bool
}

func NewClient(cfg config.ComfyUIConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		rawCookies: cfg.Cookies,
		httpClient: &http.Client{},
		dialer:     websocket.DefaultDialer,
		logger:     logger.With("component", "comfyui_client"),
	}
}

func (c *client) BaseURL() string { return c.baseURL }

func (c *client) APIKey() string { return c.apiKey }

// Cookies resolves the configured cookie setting once; failures are retried on the next call.
func (c *client) Cookies(ctx context.Context) (map[string]string, error) {
	c.cookiesMu.Lock()
	defer c.cookiesMu.Unlock()
	if c.resolved {
		return c.cookies, nil
	}
	cookies, err := ParseCookies(ctx, c.httpClient, c.rawCookies)
	if err != nil {
		c.logger.Warn("Failed to parse ComfyUI cookies", "error", err)
		return nil, err
	}
	c.cookies = cookies
	c.resolved = true
	return cookies, nil
}

func (c *client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	cookies, err := c.Cookies(ctx)
	if err != nil {
		cookies = nil
	}
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req, nil
}

func (c *client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &HTTPStatusError{Endpoint: req.URL.Path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *client) QueuePrompt(ctx context.Context, pr PromptRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, err := json.Marshal(pr)
	if err != nil {
		return "", shared.NewSubmissionError("queue_prompt", "failed to encode prompt", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/prompt", bytes.NewReader(payload))
	if err != nil {
		return "", shared.NewSubmissionError("queue_prompt", "", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		PromptID string `json:"prompt_id"`
	}
	if err := c.doJSON(req, &out); err != nil {
		return "", shared.NewSubmissionError("queue_prompt", "Submit workflow failed", err)
	}
	if out.PromptID == "" {
		return "", shared.NewSubmissionError("queue_prompt", "Get prompt_id failed", ErrNoPromptID)
	}
	c.logger.Info("Task submitted", "prompt_id", out.PromptID)
	return out.PromptID, nil
}

func (c *client) GetHistory(ctx context.Context, promptID string) (*HistoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, shared.NewTransportError("get_history", "", err)
	}
	var history map[string]*HistoryEntry
	if err := c.doJSON(req, &history); err != nil {
		return nil, shared.NewTransportError("get_history", "", err)
	}
	return history[promptID], nil
}

func (c *client) UploadImage(ctx context.Context, r io.Reader, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	contentType := media.ContentTypeFor(filename)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", shared.NewMediaError("upload_image", "", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", shared.NewMediaError("upload_image", "", err)
	}
	if err := writer.Close(); err != nil {
		return "", shared.NewMediaError("upload_image", "", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload/image", &body)
	if err != nil {
		return "", shared.NewMediaError("upload_image", "", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out struct {
		Name string `json:"name"`
	}
	if err := c.doJSON(req, &out); err != nil {
		return "", shared.NewMediaError("upload_image", "Upload media failed", err)
	}
	if out.Name == "" {
		return "", shared.NewMediaError("upload_image", "", ErrUploadNameAbsent)
	}
	return out.Name, nil
}

// ViewURL builds base/view?filename=..&subfolder=..&type=..; empty subfolder and type are left out.
func (c *client) ViewURL(filename, subfolder, folderType string) string {
	return BuildViewURL(c.baseURL, filename, subfolder, folderType)
}

func BuildViewURL(base, filename, subfolder, folderType string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(base, "/"))
	sb.WriteString("/view?filename=")
	sb.WriteString(url.QueryEscape(filename))
	if subfolder != "" {
		sb.WriteString("&subfolder=")
		sb.WriteString(url.QueryEscape(subfolder))
	}
	if folderType != "" {
		sb.WriteString("&type=")
		sb.WriteString(url.QueryEscape(folderType))
	}
	return sb.String()
}

// WebSocketURL maps the HTTP base to ws(s)://host/path/ws?clientId=id.
func WebSocketURL(base, clientID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"clientId": {clientID}}.Encode()
	return u.String(), nil
}

func (c *client) DialWebSocket(ctx context.Context, clientID string) (*websocket.Conn, error) {
	wsURL, err := WebSocketURL(c.baseURL, clientID)
	if err != nil {
		return nil, shared.NewTransportError("dial_websocket", "invalid base URL", err)
	}

	header := http.Header{}
	if cookies, err := c.Cookies(ctx); err == nil && len(cookies) > 0 {
		header.Set("Cookie", CookieHeader(cookies))
	}

	c.logger.Debug("Connecting websocket", "url", wsURL)
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, shared.NewTransportError("dial_websocket", "", err)
	}
	return conn, nil
}

func (c *client) SystemStats(ctx context.Context) (map[string]any, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/system_stats", nil)
	if err != nil {
		return nil, err
	}
	var stats map[string]any
	if err := c.doJSON(req, &stats); err != nil {
		return nil, shared.NewTransportError("system_stats", "", err)
	}
	return stats, nil
}
