// Package taskclient is an HTTP client for the task tracker API.
//
// Each Client carries its own bearer credential, so separate sessions use
// separate clients instead of sharing process-wide state.
package taskclient

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
	"sync"

	"github.com/example/task-tracker/domain/task"
	"github.com/example/task-tracker/modules/activity"
	"github.com/fasthttp/websocket"
)

// Client talks to the REST API.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCredential sets the initial bearer token.
func WithCredential(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// New creates a Client for the API rooted at baseURL, e.g. "http://localhost:3000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCredential sets the bearer token for subsequent calls. An empty token
// sends no Authorization header. Calls already in flight keep the token they
// started with.
func (c *Client) SetCredential(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Credential returns the current bearer token.
func (c *Client) Credential() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Register creates an account and returns its session token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List returns the caller's tasks, newest first.
func (c *Client) List(ctx context.Context) ([]task.Task, error) {
	var tasks []task.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	return tasks, nil
}

// Create stores a new task.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*task.Task, error) {
	var created task.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Get fetches a single task.
func (c *Client) Get(ctx context.Context, id string) (*task.Task, error) {
	var found task.Task
	if err := c.do(ctx, http.MethodGet, taskPath(id), nil, &found); err != nil {
		return nil, err
	}
	return &found, nil
}

// Update sends a partial update. Only the fields set on patch are changed.
func (c *Client) Update(ctx context.Context, id string, patch Patch) (*task.Task, error) {
	var updated task.Task
	if err := c.do(ctx, http.MethodPut, taskPath(id), patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a task and returns the server's confirmation message.
func (c *Client) Delete(ctx context.Context, id string) (string, error) {
	var resp MessageResponse
	if err := c.do(ctx, http.MethodDelete, taskPath(id), nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Activity returns the caller's recent task activity.
func (c *Client) Activity(ctx context.Context) ([]activity.Entry, error) {
	var entries []activity.Entry
	if err := c.do(ctx, http.MethodGet, "/api/activity", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// WatchActivity calls fn for each new activity entry until ctx is done or
// the server closes the stream.
func (c *Client) WatchActivity(ctx context.Context, fn func(activity.Entry)) error {
	u, err := url.Parse(c.baseURL + "/api/activity/ws")
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	if token := c.Credential(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return decodeAPIError(resp)
		}
		return fmt.Errorf("failed to open activity stream: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var frame struct {
			Type  string          `json:"type"`
			Entry *activity.Entry `json:"entry"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("activity stream: %w", err)
		}
		if frame.Type == "activity" && frame.Entry != nil {
			fn(*frame.Entry)
		}
	}
}

func taskPath(id string) string {
	return "/api/tasks/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Credential(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: %d %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not an *APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		apiErr.Code = body.Error
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
