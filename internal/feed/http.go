package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcoutinho/bolide/internal/neo"
)

// DefaultFetchTimeout bounds a single fetch when the caller configures none.
const DefaultFetchTimeout = 30 * time.Second

// maxErrorBodyBytes caps how much of an error body is carried in messages.
const maxErrorBodyBytes = 512

// HTTPClient implements Client against the feed service HTTP API
type HTTPClient struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPClient creates a new feed HTTP client
func NewHTTPClient(config Config) *HTTPClient {
	timeout := config.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &HTTPClient{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     config.Logger,
	}
}

// Feed fetches the current set of near-earth objects
func (c *HTTPClient) Feed(ctx context.Context, query FeedQuery) ([]neo.Object, error) {
	url := fmt.Sprintf("%s/api/v1/neos", c.baseURL)

	var resp FeedResponse
	if err := c.do(ctx, http.MethodGet, url, query.Values(), &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch objects: %w", err)
	}

	return ObjectsToDomain(resp.Objects), nil
}

// Object fetches a single object by its feed id
func (c *HTTPClient) Object(ctx context.Context, id string) (*neo.Object, error) {
	url := fmt.Sprintf("%s/api/v1/neos/%s", c.baseURL, id)

	var apiObject FeedObject
	if err := c.do(ctx, http.MethodGet, url, nil, &apiObject); err != nil {
		// A 404 on a single object is a catalog miss, not a transport problem
		if fe, ok := neo.AsFetchError(err); ok && fe.Status == http.StatusNotFound {
			return nil, neo.NewNotFoundError("object", id)
		}
		return nil, fmt.Errorf("failed to fetch object %s: %w", id, err)
	}

	object := ObjectToDomain(&apiObject)
	return &object, nil
}

// HealthCheck verifies the feed service is reachable
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/v1/health", c.baseURL)

	var health HealthResponse
	if err := c.do(ctx, http.MethodGet, url, nil, &health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if health.Status != "OK" {
		return fmt.Errorf("unhealthy status: %s", health.Status)
	}

	return nil
}

// do performs one bounded HTTP request against the feed service.
// One call is exactly one attempt: retry policy belongs to the caller.
// Every failure comes back as a *neo.FetchError carrying a single kind.
func (c *HTTPClient) do(ctx context.Context, method, rawURL string, query url.Values, result interface{}) error {
	if c.baseURL == "" {
		return neo.NewValidationError("feed base address is empty")
	}

	if len(query) > 0 {
		rawURL = rawURL + "?" + query.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return c.fail(neo.NewFetchError(neo.FailureUnknown, rawURL, 0, err), start)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(neo.NewFetchError(neo.ClassifyTransport(err), rawURL, 0, err), start)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		// Body reads can still hit the deadline or a reset connection
		return c.fail(neo.NewFetchError(neo.ClassifyTransport(err), rawURL, 0, err), start)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		if len(msg) > maxErrorBodyBytes {
			msg = msg[:maxErrorBodyBytes]
		}
		var cause error
		if msg != "" {
			cause = errors.New(msg)
		}
		return c.fail(neo.NewFetchError(neo.FailureServer, rawURL, resp.StatusCode, cause), start)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return c.fail(neo.NewFetchError(neo.FailureUnknown, rawURL, 0,
				fmt.Errorf("failed to unmarshal response: %w", err)), start)
		}
	}

	c.logger.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("feed fetch succeeded")

	return nil
}

// fail logs the classified outcome and hands it back unchanged
func (c *HTTPClient) fail(fe *neo.FetchError, start time.Time) error {
	c.logger.Warn().
		Str("url", fe.URL).
		Str("kind", fe.Kind.String()).
		Int("status", fe.Status).
		Dur("elapsed", time.Since(start)).
		Msg("feed fetch failed")

	return fe
}
