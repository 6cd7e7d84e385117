// Package matterhorn is the REST client for the lecture-capture platform: usertracking
// actions, episode search and workflow instances.
package matterhorn

import (
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

	"github.com/icholy/digest"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/httpclient"
)

const (
	actionsPath   = "/usertracking/actions.json"
	episodePath   = "/search/episode.json"
	workflowsPath = "/workflow/instances.json"

	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 512
)

var (
	// ErrEpisodeNotFound is returned when the search service has no episode for a media package.
	ErrEpisodeNotFound = errors.New("episode not found")
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("matterhorn API error (status %d) on %s: %s", e.StatusCode, e.Path, e.Body)
}

// Client talks to one Matterhorn host.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (used by tests).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the timeout for API requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a client for host. When user is set, requests authenticate with
// HTTP Digest, which is what the Matterhorn REST endpoints expect.
func NewClient(host, user, password string, opts ...Option) *Client {
	var rt http.RoundTripper = httpclient.NewTransport(httpclient.Config{})
	if user != "" {
		rt = &digest.Transport{
			Username:  user,
			Password:  password,
			Transport: rt,
		}
	}

	client := &Client{
		baseURL:    NormalizeHost(host),
		httpClient: httpclient.New(httpclient.Config{Timeout: DefaultTimeout}, rt),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NormalizeHost adds an http:// scheme when missing and drops a trailing slash.
func NormalizeHost(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return host
}

// BaseURL returns the normalized base URL of the host.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchActions returns one page of actions created between start and end.
// An empty slice means the window is exhausted.
func (c *Client) FetchActions(ctx context.Context, start, end time.Time, limit, offset int) ([]Action, error) {
	params := url.Values{}
	params.Set("start", FormatTimestamp(start))
	params.Set("end", FormatTimestamp(end))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	var resp struct {
		Actions *struct {
			Total  flexInt           `json:"total"`
			Action oneOrMany[Action] `json:"action"`
		} `json:"actions"`
	}
	if err := c.get(ctx, actionsPath, params, &resp); err != nil {
		return nil, fmt.Errorf("fetch actions: %w", err)
	}

	if resp.Actions == nil {
		return nil, nil
	}
	return resp.Actions.Action, nil
}

type searchResponse struct {
	SearchResults *struct {
		Total  flexInt                    `json:"total"`
		Result oneOrMany[json.RawMessage] `json:"result"`
	} `json:"search-results"`
}

// EpisodePayload returns the raw search result for a media package.
// It returns ErrEpisodeNotFound when the search service has no match.
func (c *Client) EpisodePayload(ctx context.Context, mediaPackageID string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("id", mediaPackageID)

	var resp searchResponse
	if err := c.get(ctx, episodePath, params, &resp); err != nil {
		return nil, fmt.Errorf("search episode %s: %w", mediaPackageID, err)
	}

	if resp.SearchResults == nil || len(resp.SearchResults.Result) == 0 {
		return nil, fmt.Errorf("search episode %s: %w", mediaPackageID, ErrEpisodeNotFound)
	}
	return resp.SearchResults.Result[0], nil
}

// EpisodeQuery pages through the episode catalog.
type EpisodeQuery struct {
	Offset      int
	Limit       int
	CreatedFrom *time.Time
}

// SearchEpisodes returns one page of raw episode search results ordered by creation date.
// Results are returned undecoded so that callers can isolate per-episode decode failures.
func (c *Client) SearchEpisodes(ctx context.Context, q EpisodeQuery) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(q.Offset))
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("includeDeleted", "true")
	params.Set("sort", "DATE_CREATED")
	if q.CreatedFrom != nil {
		params.Set("createdFrom", q.CreatedFrom.UTC().Format("2006-01-02T15:04:05Z"))
	}

	var resp searchResponse
	if err := c.get(ctx, episodePath, params, &resp); err != nil {
		return nil, fmt.Errorf("search episodes offset %d: %w", q.Offset, err)
	}

	if resp.SearchResults == nil {
		return nil, nil
	}
	return resp.SearchResults.Result, nil
}

// WorkflowQuery selects workflow instances for a media package.
type WorkflowQuery struct {
	MediaPackageID string
	State          string
	Definition     string
}

// Workflows returns the workflow instances matching q.
func (c *Client) Workflows(ctx context.Context, q WorkflowQuery) ([]Workflow, error) {
	params := url.Values{}
	params.Set("mp", q.MediaPackageID)
	if q.State != "" {
		params.Set("state", q.State)
	}
	if q.Definition != "" {
		params.Set("workflowdefinition", q.Definition)
	}

	var resp struct {
		Workflows *struct {
			TotalCount flexInt             `json:"totalCount"`
			Workflow   oneOrMany[Workflow] `json:"workflow"`
		} `json:"workflows"`
	}
	if err := c.get(ctx, workflowsPath, params, &resp); err != nil {
		return nil, fmt.Errorf("workflows for %s: %w", q.MediaPackageID, err)
	}

	if resp.Workflows == nil {
		return nil, nil
	}
	return resp.Workflows.Workflow, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-Auth", "Digest")
	req.Header.Set("X-Opencast-Matterhorn-Authorization", "true")

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL from config
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{StatusCode: resp.StatusCode, Path: path, Body: truncate(string(body), maxErrorBody)}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// FormatTimestamp renders t as YYYYMMDDHHmmss in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a YYYYMMDDHHmmss value as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
