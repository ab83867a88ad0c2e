package github

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

	gh "github.com/google/go-github/v68/github"

	"github.com/jacobcy/VibeCopilot-sub000/internal/debug"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
)

// maxRateLimitWait bounds how long a single call will sleep for a rate-limit
// reset before giving up and reporting a transient error.
const maxRateLimitWait = time.Minute

// Client talks to one GitHub host. It is not bound to a repository; every
// operation takes owner and repo explicitly.
type Client struct {
	Token      string
	BaseURL    string
	GraphQLURL string
	HTTPClient *http.Client

	rest *gh.Client
}

// NewClient creates a new GitHub client for api.github.com.
func NewClient(token string) *Client {
	c := &Client{
		Token:      token,
		BaseURL:    DefaultAPIEndpoint,
		GraphQLURL: DefaultGraphQLEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	c.rest = newRESTClient(c.HTTPClient, c.Token, c.BaseURL)
	return c
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	n := &Client{
		Token:      c.Token,
		BaseURL:    c.BaseURL,
		GraphQLURL: c.GraphQLURL,
		HTTPClient: httpClient,
	}
	n.rest = newRESTClient(n.HTTPClient, n.Token, n.BaseURL)
	return n
}

// WithBaseURL returns a new client with a custom REST base URL (for testing
// or GitHub Enterprise). The GraphQL URL is derived from it.
func (c *Client) WithBaseURL(baseURL string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	n := &Client{
		Token:      c.Token,
		BaseURL:    baseURL,
		GraphQLURL: graphQLURLFor(baseURL),
		HTTPClient: c.HTTPClient,
	}
	n.rest = newRESTClient(n.HTTPClient, n.Token, n.BaseURL)
	return n
}

// WithGraphQLURL returns a new client with an explicit GraphQL endpoint.
func (c *Client) WithGraphQLURL(graphQLURL string) *Client {
	n := *c
	n.GraphQLURL = graphQLURL
	return &n
}

func graphQLURLFor(baseURL string) string {
	switch {
	case baseURL == DefaultAPIEndpoint:
		return DefaultGraphQLEndpoint
	case strings.HasSuffix(baseURL, "/api/v3"):
		return strings.TrimSuffix(baseURL, "/v3") + "/graphql"
	default:
		return baseURL + "/graphql"
	}
}

func newRESTClient(httpClient *http.Client, token, baseURL string) *gh.Client {
	rc := gh.NewClient(httpClient)
	if token != "" {
		rc = rc.WithAuthToken(token)
	}
	if baseURL != "" && baseURL != DefaultAPIEndpoint {
		if u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/"); err == nil {
			rc.BaseURL = u
		}
	}
	return rc
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path

	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}

	return u
}

// doRequest performs an HTTP request with authentication and rate-limit
// waits. Non-2xx responses are returned as *APIError.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, http.Header, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		var reqBody io.Reader
		if jsonBody != nil {
			reqBody = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", APIVersion)

		debug.Logf("github: %s %s\n", method, urlStr)
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return nil, nil, fmt.Errorf("request failed: %w", err)
		}

		const maxResponseSize = 50 * 1024 * 1024
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read response: %w", err)
		}

		// GitHub signals rate limiting with 429, or 403 plus X-RateLimit-Remaining: 0
		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0") {
			delay := RetryDelay * time.Duration(1<<attempt)
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := strconv.Atoi(retryAfter); err == nil {
					delay = time.Duration(seconds) * time.Second
				}
			}
			lastErr = newAPIError(resp.StatusCode, respBody)
			if attempt == MaxRetries || delay > maxRateLimitWait {
				break
			}
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, nil, newAPIError(resp.StatusCode, respBody)
		}

		return respBody, resp.Header, nil
	}

	var apiErr *APIError
	if errors.As(lastErr, &apiErr) {
		apiErr.Kind = syncerr.KindTransient
	}
	return nil, nil, lastErr
}

// callREST runs a go-github call, waiting out rate limits a bounded number of
// times, and converts the final error into an *APIError.
func (c *Client) callREST(ctx context.Context, op string, fn func() (*gh.Response, error)) error {
	var err error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		_, err = fn()
		if err == nil {
			return nil
		}
		delay, limited := rateLimitDelay(err, attempt)
		if !limited || attempt == MaxRetries || delay > maxRateLimitWait {
			break
		}
		debug.Logf("github: %s rate limited, waiting %s\n", op, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: %w", op, wrapGoGitHubError(err))
}

func rateLimitDelay(err error, attempt int) (time.Duration, bool) {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		d := time.Until(rateErr.Rate.Reset.Time)
		if d < RetryDelay {
			d = RetryDelay
		}
		return d, true
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		if abuseErr.RetryAfter != nil {
			return *abuseErr.RetryAfter, true
		}
		return RetryDelay * time.Duration(1<<attempt), true
	}
	return 0, false
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// graphql posts a query and decodes its data into out. A response carrying
// an "errors" array is returned as a classified *APIError.
func (c *Client) graphql(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	respBody, _, err := c.doRequest(ctx, http.MethodPost, c.GraphQLURL, graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return err
	}

	var resp graphQLResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("failed to parse graphql response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return newGraphQLError(resp.Errors)
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("failed to decode graphql data: %w", err)
		}
	}
	return nil
}
