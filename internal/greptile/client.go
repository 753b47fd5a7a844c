package greptile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dshills/greptile-mcp/pkg/types"
)

const (
	// DefaultBaseURL is the hosted API origin
	DefaultBaseURL = "https://api.greptile.com/v2"

	// Request timeouts
	DefaultTimeout     = 60 * time.Second
	HealthCheckTimeout = 10 * time.Second

	// Retry configuration
	DefaultMaxAttempts       = 3
	DefaultBaseDelay         = 1 * time.Second
	DefaultMaxDelay          = 5 * time.Second
	DefaultBackoffMultiplier = 2.0

	// healthyMarker is the substring a live health endpoint answers with
	healthyMarker = "healthy"
)

// Config holds client construction options. APIKey and GitHubToken are
// required; everything else has a default.
type Config struct {
	APIKey      string
	GitHubToken string

	BaseURL   string        // API origin, defaults to DefaultBaseURL
	Timeout   time.Duration // Per-attempt request timeout, defaults to DefaultTimeout
	UserAgent string
	Retry     RetryConfig

	// MaxConcurrent caps in-flight upstream calls when > 0. Zero keeps the
	// default behavior: no limit, every call independent.
	MaxConcurrent int64

	// OnDrop is invoked with each malformed stream line that gets discarded.
	// Optional; dropping stays silent without it.
	OnDrop func(line string)
}

// Client talks to the code-search API. It is safe for concurrent use; no
// state is shared across calls beyond the read-only configuration.
type Client struct {
	apiKey      string
	githubToken string
	baseURL     string
	userAgent   string
	timeout     time.Duration
	retry       RetryConfig
	httpClient  *http.Client
	sem         *semaphore.Weighted
	onDrop      func(string)
}

// New creates a client. Missing credentials are construction errors, raised
// immediately and never retried.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.GitHubToken == "" {
		return nil, ErrNoGitHubToken
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "greptile-mcp"
	}

	c := &Client{
		apiKey:      cfg.APIKey,
		githubToken: cfg.GitHubToken,
		baseURL:     baseURL,
		userAgent:   userAgent,
		timeout:     timeout,
		retry:       cfg.Retry.withDefaults(),
		// Deadlines come from per-attempt contexts; a client-level timeout
		// would also cut streamed bodies short.
		httpClient: &http.Client{},
		onDrop:     cfg.OnDrop,
	}
	if cfg.MaxConcurrent > 0 {
		c.sem = semaphore.NewWeighted(cfg.MaxConcurrent)
	}
	return c, nil
}

// IndexRequest asks the API to index or reindex one repository.
type IndexRequest struct {
	Repository types.Repository
	Reload     bool // Reprocess a repository that was already indexed
	Notify     bool // Email the requester when indexing completes
}

// QueryRequest carries one conversation over a set of repositories.
type QueryRequest struct {
	Messages     []types.Message
	Repositories []types.Repository
	SessionID    string
	Genius       bool // Slower, more thorough answering mode
}

// Validate checks the conversation and every repository reference.
func (q QueryRequest) Validate() error {
	if len(q.Messages) == 0 {
		return types.ErrNoMessages
	}
	for i, m := range q.Messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	for i, r := range q.Repositories {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("repository %d: %w", i, err)
		}
	}
	return nil
}

// Wire payloads. Field names follow the API exactly.

type indexPayload struct {
	Remote     string `json:"remote"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	Reload     bool   `json:"reload"`
	Notify     bool   `json:"notify"`
}

type queryPayload struct {
	Messages     []types.Message    `json:"messages"`
	Repositories []types.Repository `json:"repositories,omitempty"`
	SessionID    string             `json:"sessionId,omitempty"`
	Stream       bool               `json:"stream"`
	Genius       bool               `json:"genius"`
}

// IndexRepository submits an indexing job and returns the API's
// acknowledgment as-is. Indexing is not idempotent upstream: an attempt that
// times out here after the API accepted it is retried, and each accepted
// retry queues duplicate indexing work.
func (c *Client) IndexRepository(ctx context.Context, req IndexRequest) (map[string]any, error) {
	if err := req.Repository.Validate(); err != nil {
		return nil, err
	}

	payload := indexPayload{
		Remote:     req.Repository.Remote,
		Repository: req.Repository.Repository,
		Branch:     req.Repository.Branch,
		Reload:     req.Reload,
		Notify:     req.Notify,
	}

	var out map[string]any
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/repositories", payload, &out); err != nil {
		return nil, fmt.Errorf("index repository: %w", err)
	}
	return out, nil
}

// Query sends a conversation to the query endpoint and returns the parsed
// answer unchanged.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*types.QueryResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload := queryPayload{
		Messages:     req.Messages,
		Repositories: req.Repositories,
		SessionID:    req.SessionID,
		Stream:       false,
		Genius:       req.Genius,
	}

	var out types.QueryResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/query", payload, &out); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return &out, nil
}

// QueryStream sends the same request with streaming enabled and returns the
// decoded chunk stream. Close the stream when done; an abandoned stream
// holds its connection until the request timeout fires.
func (c *Client) QueryStream(ctx context.Context, req QueryRequest) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}

	payload := queryPayload{
		Messages:     req.Messages,
		Repositories: req.Repositories,
		SessionID:    req.SessionID,
		Stream:       true,
		Genius:       req.Genius,
	}

	conn, err := c.doStream(ctx, http.MethodPost, c.baseURL+"/query", payload)
	if err != nil {
		release()
		return nil, fmt.Errorf("query stream: %w", err)
	}
	return newStream(conn, release, c.onDrop), nil
}

// RepositoryInfo fetches indexing status and metadata for one repository.
// The composite id travels as a single percent-encoded path segment.
func (c *Client) RepositoryInfo(ctx context.Context, repo types.Repository) (map[string]any, error) {
	if err := repo.Validate(); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/repositories/" + url.PathEscape(repo.ID())

	var out map[string]any
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("repository info: %w", err)
	}
	return out, nil
}

// HealthCheck reports whether the API answers as healthy. It runs under its
// own short timeout, skips the retry loop and the in-flight limiter, and
// never returns an error: probe failures of any kind read as false.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(body)), healthyMarker)
}
