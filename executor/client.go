package executor

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

	"github.com/getpup/fanout-orchestrator"
	"github.com/getpup/pupsourcing/es"
	"github.com/hashicorp/go-retryablehttp"
)

// ClientConfig configures the HTTP platform client.
type ClientConfig struct {
	// BaseURL is the platform API root, e.g. "https://api.example.com" (required).
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// RetryMax is the number of retries for idempotent requests (default: 4).
	// A negative value disables retries. Launch submissions are never retried.
	RetryMax int

	// RetryWaitMin is the minimum wait between retries (default: 500ms).
	RetryWaitMin time.Duration

	// RetryWaitMax is the maximum wait between retries (default: 10s).
	RetryWaitMax time.Duration

	// Timeout bounds a single HTTP attempt (default: 30s).
	Timeout time.Duration

	// Logger is for observability (optional).
	Logger es.Logger
}

// Client talks to the platform REST API. It implements both Platform and CollectionStore.
type Client struct {
	config  ClientConfig
	baseURL string
	http    *retryablehttp.Client
	submit  *retryablehttp.Client
}

// Compile-time checks that Client implements Platform and CollectionStore.
var (
	_ Platform        = (*Client)(nil)
	_ CollectionStore = (*Client)(nil)
)

// NewClient creates a new Client with the given configuration.
// It applies default values for retry and timeout settings if zero.
func NewClient(cfg ClientConfig) *Client {
	switch {
	case cfg.RetryMax == 0:
		cfg.RetryMax = 4
	case cfg.RetryMax < 0:
		cfg.RetryMax = 0
	}
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = 500 * time.Millisecond
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = 10 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		config:  cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    newHTTPClient(cfg, cfg.RetryMax),
		submit:  newHTTPClient(cfg, 0),
	}
}

func newHTTPClient(cfg ClientConfig, retryMax int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = cfg.RetryWaitMin
	c.RetryWaitMax = cfg.RetryWaitMax
	c.HTTPClient.Timeout = cfg.Timeout
	c.Logger = nil
	return c
}

type targetResource struct {
	ID string `json:"id"`
}

type runResource struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"startedAt"`
	FinishedAt       *time.Time `json:"finishedAt"`
	DefaultDatasetID string     `json:"defaultDatasetId"`
}

type datasetResource struct {
	ID             string `json:"id"`
	ItemCount      int    `json:"itemCount"`
	CleanItemCount *int   `json:"cleanItemCount"`
}

func (d datasetResource) collection() Collection {
	count := d.ItemCount
	if d.CleanItemCount != nil {
		count = *d.CleanItemCount
	}
	return Collection{ID: d.ID, ItemCount: count}
}

// ResolveTarget returns the canonical id of an actor or task.
func (c *Client) ResolveTarget(ctx context.Context, target orchestrator.Target) (string, error) {
	var res targetResource
	if err := c.do(ctx, c.http, http.MethodGet, targetPath(target.Kind, target.ID), nil, nil, ErrTargetNotFound, &res); err != nil {
		return "", fmt.Errorf("failed to resolve %s %q: %w", target.Kind, target.ID, err)
	}
	return res.ID, nil
}

// SubmitLaunch starts a run and returns as soon as the platform acknowledged it.
func (c *Client) SubmitLaunch(ctx context.Context, kind orchestrator.TargetKind, targetID string, payload map[string]any, options orchestrator.LaunchOptions) (Launch, error) {
	query := url.Values{}
	for k, v := range options {
		query.Set(k, fmt.Sprint(v))
	}
	query.Set("waitForFinish", "0")

	var res runResource
	if err := c.do(ctx, c.submit, http.MethodPost, targetPath(kind, targetID)+"/runs", query, payload, ErrTargetNotFound, &res); err != nil {
		return Launch{}, fmt.Errorf("failed to submit launch: %w", err)
	}

	if c.config.Logger != nil {
		c.config.Logger.Debug(ctx, "launch submitted", "targetID", targetID, "handle", res.ID)
	}

	return Launch{Handle: res.ID, StartedAt: res.StartedAt}, nil
}

// GetStatus returns the current status of a run.
func (c *Client) GetStatus(ctx context.Context, handle string) (orchestrator.RunStatus, error) {
	var res runResource
	if err := c.do(ctx, c.http, http.MethodGet, "/v2/actor-runs/"+url.PathEscape(handle), nil, nil, ErrRunNotFound, &res); err != nil {
		return orchestrator.RunStatus{}, fmt.Errorf("failed to get run status: %w", err)
	}

	status := orchestrator.RunStatus{
		Handle:             handle,
		State:              orchestrator.ParseRunState(res.Status),
		OutputCollectionID: res.DefaultDatasetID,
	}
	if status.State.IsTerminal() {
		status.FinishedAt = res.FinishedAt
	}

	return status, nil
}

// Cancel aborts a run.
func (c *Client) Cancel(ctx context.Context, handle string) (orchestrator.RunState, error) {
	var res runResource
	if err := c.do(ctx, c.http, http.MethodPost, "/v2/actor-runs/"+url.PathEscape(handle)+"/abort", nil, nil, ErrRunNotFound, &res); err != nil {
		return "", fmt.Errorf("failed to cancel run: %w", err)
	}
	return orchestrator.ParseRunState(res.Status), nil
}

// GetOrCreate opens a collection by id, or creates a named collection when none exists.
func (c *Client) GetOrCreate(ctx context.Context, id string) (Collection, error) {
	col, err := c.GetInfo(ctx, id)
	if err == nil {
		return col, nil
	}
	if !errors.Is(err, ErrCollectionNotFound) {
		return Collection{}, err
	}

	query := url.Values{}
	query.Set("name", id)

	var res datasetResource
	if err := c.do(ctx, c.http, http.MethodPost, "/v2/datasets", query, nil, ErrCollectionNotFound, &res); err != nil {
		return Collection{}, fmt.Errorf("failed to create collection %q: %w", id, err)
	}

	return res.collection(), nil
}

// GetInfo returns the collection metadata.
func (c *Client) GetInfo(ctx context.Context, id string) (Collection, error) {
	var res datasetResource
	if err := c.do(ctx, c.http, http.MethodGet, "/v2/datasets/"+url.PathEscape(id), nil, nil, ErrCollectionNotFound, &res); err != nil {
		return Collection{}, fmt.Errorf("failed to get collection %q: %w", id, err)
	}
	return res.collection(), nil
}

func (c *Client) do(ctx context.Context, client *retryablehttp.Client, method, path string, query url.Values, body any, notFound error, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	var reqBody any
	if raw != nil {
		reqBody = bytes.NewReader(raw)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if raw != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return notFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrUnexpectedStatus, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}

	return nil
}

func targetPath(kind orchestrator.TargetKind, id string) string {
	// The platform addresses named targets as owner~name in paths.
	escaped := url.PathEscape(strings.ReplaceAll(id, "/", "~"))
	if kind == orchestrator.TargetKindTask {
		return "/v2/actor-tasks/" + escaped
	}
	return "/v2/acts/" + escaped
}
