package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"comfypilot/internal/logging"
)

// ErrUnavailable is returned when the ComfyUI server cannot be reached.
var ErrUnavailable = errors.New("comfyui server unavailable")

// Client talks to the ComfyUI HTTP API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	clientID   string
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid ComfyUI URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid ComfyUI URL %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: timeout},
		clientID:   uuid.NewString(),
	}, nil
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// ClientID identifies this client to the websocket feed.
func (c *Client) ClientID() string { return c.clientID }

// APIError is a non-2xx response from ComfyUI.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("comfyui returned %d: %s", e.StatusCode, e.Body)
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return req.Context().Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	logging.Debug("comfyui request", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), 500)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", req.URL.Path, err)
	}
	return nil
}

// ObjectInfo fetches the raw node definitions.
func (c *Client) ObjectInfo(ctx context.Context) (map[string]RawNodeInfo, error) {
	var info map[string]RawNodeInfo
	if err := c.getJSON(ctx, "/object_info", &info); err != nil {
		return nil, err
	}
	return info, nil
}

// ModelFolders lists the model folder names.
func (c *Client) ModelFolders(ctx context.Context) ([]string, error) {
	var folders []string
	if err := c.getJSON(ctx, "/models", &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// Models lists the files in one model folder.
func (c *Client) Models(ctx context.Context, folder string) ([]string, error) {
	var files []string
	if err := c.getJSON(ctx, "/models/"+url.PathEscape(folder), &files); err != nil {
		return nil, err
	}
	return files, nil
}

// QueueResult is the server's answer to a queued prompt.
type QueueResult struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors,omitempty"`
}

// QueuePrompt submits an API-format prompt for execution.
func (c *Client) QueuePrompt(ctx context.Context, prompt any) (*QueueResult, error) {
	payload := map[string]any{
		"prompt":    prompt,
		"client_id": c.clientID,
	}
	var res QueueResult
	if err := c.postJSON(ctx, "/prompt", payload, &res); err != nil {
		return nil, err
	}
	if res.PromptID == "" {
		return nil, fmt.Errorf("comfyui accepted the prompt but returned no prompt_id")
	}
	return &res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
