// Package subgraph queries The Graph style GraphQL indexers: the prediction
// market subgraph for the settlement account's trade history and the blocks
// subgraph for timestamp to block lookups.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/omentrader/internal/domain"
	"github.com/alanyoungcy/omentrader/internal/retry"
)

// Client is a GraphQL client for one subgraph endpoint.
type Client struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client

	limiter     domain.RateLimiter
	limitKey    string
	limit       int
	limitWindow time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimiter makes every query take a slot from limiter under key.
// Queries over the limit fail with domain.ErrRateLimited without reaching
// the endpoint.
func WithRateLimiter(limiter domain.RateLimiter, key string, limit int, window time.Duration) Option {
	return func(c *Client) {
		c.limiter = limiter
		c.limitKey = key
		c.limit = limit
		c.limitWindow = window
	}
}

// NewClient creates a client for graphqlURL. apiKey is sent as a bearer
// token when non-empty.
func NewClient(graphqlURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// doQuery executes a GraphQL query and returns the raw "data" field.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	if c.limiter != nil {
		ok, err := c.limiter.Allow(ctx, c.limitKey, c.limit, c.limitWindow)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, c.limitKey)
		}
	}

	jsonBody, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}
	return gqlResp.Data, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

// retryBudget turns rate-limited queries into FetchStatusInProgress until
// max consecutive attempts are used up. Every other error is a failure.
type retryBudget struct {
	mu      sync.Mutex
	max     int
	backoff time.Duration
	used    int
}

func (b *retryBudget) onError(ctx context.Context, err error) domain.FetchStatus {
	if !errors.Is(err, domain.ErrRateLimited) {
		b.reset()
		return domain.FetchStatusFail
	}
	b.mu.Lock()
	b.used++
	exhausted := b.used > b.max
	if exhausted {
		b.used = 0
	}
	b.mu.Unlock()
	if exhausted {
		return domain.FetchStatusFail
	}
	if retry.SleepWithContext(ctx, b.backoff) != nil {
		return domain.FetchStatusFail
	}
	return domain.FetchStatusInProgress
}

func (b *retryBudget) reset() {
	b.mu.Lock()
	b.used = 0
	b.mu.Unlock()
}
