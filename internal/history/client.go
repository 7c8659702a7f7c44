package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"neuraldrive/internal/model"
)

// Client talks to a run-history service.
type Client struct {
	baseURL  string
	apiKey   string
	adminKey string
	http     *http.Client
}

type ClientOption func(*Client)

func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

func WithAdminKey(key string) ClientOption {
	return func(c *Client) { c.adminKey = key }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Code    int
	Message string
	Details []string
}

func (e *StatusError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("run history: %d %s: %s", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("run history: %d %s", e.Code, e.Message)
}

type runEnvelope struct {
	Data model.GenerationReport `json:"data"`
}

type listEnvelope struct {
	Data []model.GenerationReport `json:"data"`
	Meta struct {
		Count int `json:"count"`
		Limit int `json:"limit"`
	} `json:"meta"`
}

type deleteEnvelope struct {
	Deleted int `json:"deleted"`
}

func (c *Client) CreateRun(ctx context.Context, report model.GenerationReport) (model.GenerationReport, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return model.GenerationReport{}, err
	}
	var out runEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/v1/runs", bytes.NewReader(body), &out); err != nil {
		return model.GenerationReport{}, err
	}
	return out.Data, nil
}

func (c *Client) ListRuns(ctx context.Context, limit int) ([]model.GenerationReport, error) {
	path := "/api/v1/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out listEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// DeleteRun removes a run and returns how many entries were deleted. The
// admin key is sent when set; otherwise the api key.
func (c *Client) DeleteRun(ctx context.Context, id string) (int, error) {
	var out deleteEnvelope
	err := c.do(ctx, http.MethodDelete, "/api/v1/runs/"+url.PathEscape(id), nil, &out)
	if err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if method == http.MethodDelete && c.adminKey != "" {
		req.Header.Set("x-admin-key", c.adminKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var problem struct {
			Error   string   `json:"error"`
			Details []string `json:"details"`
		}
		_ = json.Unmarshal(data, &problem)
		if problem.Error == "" {
			problem.Error = http.StatusText(resp.StatusCode)
		}
		return &StatusError{Code: resp.StatusCode, Message: problem.Error, Details: problem.Details}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
