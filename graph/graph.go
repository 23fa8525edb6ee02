package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/entratools/aad-token-validator/core"
)

const (
	// DefaultBaseURL is the Microsoft Graph v1.0 root.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0/"

	// DefaultEndpoint is called when no endpoint is given.
	DefaultEndpoint = "me"

	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client calls Microsoft Graph with a caller-supplied bearer token. The
// result says whether Graph accepts the token and never feeds back
// into validation.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	retryMax   int
	client     *http.Client
}

// Response is a successful Graph answer.
type Response struct {
	StatusCode int
	URL        string
	Body       json.RawMessage
}

// StatusError carries a non-2xx Graph answer. It is the Details of a
// core.ValidationError with code graph_call_failed.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

// New returns a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	base := *c.httpClient
	base.Timeout = c.timeout

	retrying := retryablehttp.NewClient()
	retrying.HTTPClient = &base
	retrying.RetryMax = c.retryMax
	retrying.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retrying.Logger = nil
	c.client = retrying.StandardClient()

	return c, nil
}

// URL resolves endpoint against the base URL. Absolute https endpoints are
// used verbatim and a leading slash is ignored.
func (c *Client) URL(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return strings.TrimSuffix(c.baseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// Call performs GET endpoint with token as bearer credential.
func (c *Client) Call(ctx context.Context, token, endpoint string) (*Response, error) {
	target := c.URL(endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, callFailed("could not build graph request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, callFailed("graph request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, callFailed("could not read graph response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, callFailed(
			fmt.Sprintf("graph returned status %d", resp.StatusCode),
			&StatusError{StatusCode: resp.StatusCode, URL: target, Body: string(body)},
		)
	}

	if !json.Valid(body) {
		return nil, callFailed("graph returned a non-JSON body", fmt.Errorf("%s: %q", target, truncate(body, 200)))
	}

	return &Response{StatusCode: resp.StatusCode, URL: target, Body: body}, nil
}

func callFailed(message string, details error) error {
	return core.NewValidationError(core.ErrorCodeGraphCallFailed, message, details)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL replaces the Graph root, for national clouds or tests.
func WithBaseURL(base string) Option {
	return func(c *Client) error {
		u, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base URL %q: scheme and host required", base)
		}
		c.baseURL = base
		return nil
	}
}

// WithHTTPClient sets the client requests are sent with.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		if client == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		c.httpClient = client
		return nil
	}
}

// WithTimeout bounds each request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", timeout)
		}
		c.timeout = timeout
		return nil
	}
}

// WithRetryMax sets how many times a failed call is retried. Default 0.
func WithRetryMax(n int) Option {
	return func(c *Client) error {
		if n < 0 {
			return fmt.Errorf("retry max cannot be negative, got %d", n)
		}
		c.retryMax = n
		return nil
	}
}
