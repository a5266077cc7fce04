// Package client talks to the learnbot HTTP server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
)

// ErrNotFound is returned when the server answered 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client is a learnbot API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client for the server at baseURL. An empty apiKey sends no
// Authorization header.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// do sends body as JSON and decodes a 2xx reply into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var e models.ErrorResponse
		if json.Unmarshal(respBody, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(respBody))
		}
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return resp.StatusCode, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) Respond(ctx context.Context, req *models.RespondRequest) (*models.RespondResponse, error) {
	var out models.RespondResponse
	if _, err := c.do(ctx, http.MethodPost, "/respond", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Learn(ctx context.Context, req *models.LearnRequest) (*models.LearnResponse, error) {
	var out models.LearnResponse
	if _, err := c.do(ctx, http.MethodPost, "/learn", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestParams mirror the query parameters of GET /conversations/{id}/latest.
type LatestParams struct {
	FromBot       bool
	RecentMinutes int
	Statements    bool
}

// Latest returns the latest statement of conversation. It returns
// ErrNotFound when there is none.
func (c *Client) Latest(ctx context.Context, conversation string, p LatestParams) (*models.Statement, error) {
	v := url.Values{}
	v.Set("fromBot", strconv.FormatBool(p.FromBot))
	if p.RecentMinutes > 0 {
		v.Set("recentMinutes", strconv.Itoa(p.RecentMinutes))
	}
	if p.Statements {
		v.Set("statements", "true")
	}
	var out models.Statement
	path := "/conversations/" + url.PathEscape(conversation) + "/latest?" + v.Encode()
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Train(ctx context.Context, req *models.TrainRequest) (*models.TrainResponse, error) {
	var out models.TrainResponse
	if _, err := c.do(ctx, http.MethodPost, "/train", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListParams filter GET /statements. Empty fields are not sent.
type ListParams struct {
	Text         string
	InResponseTo string
	Conversation string
	Persona      string
	Tags         []string
	Contains     string
	Search       string
	Sort         string
	Limit        int
}

func (p ListParams) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("text", p.Text)
	set("inResponseTo", p.InResponseTo)
	set("conversation", p.Conversation)
	set("persona", p.Persona)
	set("tags", strings.Join(p.Tags, ","))
	set("contains", p.Contains)
	set("search", p.Search)
	set("sort", p.Sort)
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	return v
}

func (c *Client) Statements(ctx context.Context, p ListParams) (*models.StatementList, error) {
	var out models.StatementList
	path := "/statements"
	if q := p.values().Encode(); q != "" {
		path += "?" + q
	}
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Random(ctx context.Context) (*models.Statement, error) {
	var out models.Statement
	if _, err := c.do(ctx, http.MethodGet, "/statements/random", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Remove(ctx context.Context, text string) error {
	_, err := c.do(ctx, http.MethodDelete, "/statements?text="+url.QueryEscape(text), nil, nil)
	return err
}

func (c *Client) Drop(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/admin/drop", nil, nil)
	return err
}

func (c *Client) Stats(ctx context.Context) (*models.StatsResponse, error) {
	var out models.StatsResponse
	if _, err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns the server's health report. A degraded server answers 503
// with a report; that report is returned along with the error.
func (c *Client) Health(ctx context.Context) (*models.HealthResponse, error) {
	var out models.HealthResponse
	_, err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable {
		if json.Unmarshal([]byte(apiErr.Message), &out) == nil {
			return &out, err
		}
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
