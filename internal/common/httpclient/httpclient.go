// Package httpclient provides a configurable HTTP client for making requests
// to the catalog service's REST API. It supports bearer-token authentication,
// handles common HTTP operations, and provides error handling for server
// responses. The package requires a Configurator implementation for server
// configuration and authentication details.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/logtrace"
)

// Configurator defines the interface for providing server configuration and
// authentication details. Implementations must provide the base URL and token
// management capabilities.
type Configurator interface {
	GetBaseURL() string
	GetToken() string
	GetTokenExpiry() time.Time
}

// ServerError represents an error response body from the catalog service.
type ServerError struct {
	Message string `json:"message"` // Error message from server
	Status  int    `json:"status"`  // Optional status echoed by the server
}

// HTTPError represents an error response from the server with HTTP status
// code and message.
type HTTPError struct {
	StatusCode int    // HTTP status code of the error
	Message    string // Error message or response body
}

// Error implements the error interface for HTTPError.
func (e *HTTPError) Error() string {
	return e.Message
}

// RetryPolicy controls retrying of failed requests. The zero value performs
// no retries, which keeps failure semantics deterministic; callers that want
// resilience opt in explicitly.
type RetryPolicy struct {
	Attempts uint          // total attempts including the first; 0 or 1 means no retry
	Delay    time.Duration // base delay between attempts
	MaxDelay time.Duration // upper bound for backoff delay
}

func (p RetryPolicy) enabled() bool {
	return p.Attempts > 1
}

// ClientOptions contains options for configuring the HTTP client.
type ClientOptions struct {
	DisableCertValidation bool              // If true, skips SSL certificate validation
	Transport             http.RoundTripper // Optional transport override, used by tests
	Retry                 RetryPolicy       // Optional retry policy, default no retry
	Timeout               time.Duration     // Per-request timeout, default 30s
}

// HTTPClient represents a client for making HTTP requests to the catalog
// service. It handles authentication, request building, and response
// processing.
type HTTPClient struct {
	config     Configurator
	httpClient *http.Client
	retry      RetryPolicy
	logger     zerolog.Logger
}

// NewClient creates a new HTTP client using the provided configuration.
// The config parameter must implement the Configurator interface.
func NewClient(config Configurator, opts ...ClientOptions) *HTTPClient {
	clientOpts := ClientOptions{}
	if len(opts) > 0 {
		clientOpts = opts[0]
	}
	return NewClientWithOptions(config, clientOpts)
}

// NewClientWithOptions creates a new HTTP client using the provided
// configuration and options.
func NewClientWithOptions(config Configurator, opts ClientOptions) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	if opts.Transport != nil {
		httpClient.Transport = opts.Transport
	} else if opts.DisableCertValidation {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		}
	}

	return &HTTPClient{
		config:     config,
		httpClient: httpClient,
		retry:      opts.Retry,
		logger:     logtrace.ComponentLogger("transport"),
	}
}

// RequestOptions contains options for making HTTP requests.
// All fields are optional except Method and Path.
type RequestOptions struct {
	Method      string            // HTTP method (GET, POST, PUT, PATCH, DELETE)
	Path        string            // API endpoint path, resolved against the base URL
	AbsoluteURL string            // Full URL overriding base+Path (schema-by-URL fetches)
	QueryParams map[string]string // Optional query parameters
	Body        []byte            // Optional request body
	Accept      string            // Optional Accept header (e.g. text/csv for downloads)
}

// DoRequest makes an HTTP request with the given options.
// Returns the response body, Location header (if present), and any error that
// occurred. A non-2xx status is reported as *HTTPError with the server's
// message when one is present in the body.
func (c *HTTPClient) DoRequest(ctx context.Context, opts RequestOptions) ([]byte, string, error) {
	var body []byte
	var location string

	call := func() error {
		var err error
		body, location, err = c.doOnce(ctx, opts)
		return err
	}

	if !c.retry.enabled() {
		err := call()
		return body, location, err
	}

	delay := c.retry.Delay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	retryOpts := []retry.Option{
		retry.Attempts(c.retry.Attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	}
	if c.retry.MaxDelay > 0 {
		retryOpts = append(retryOpts, retry.MaxDelay(c.retry.MaxDelay))
	}
	err := retry.Do(func() error {
		err := call()
		if err == nil {
			return nil
		}
		if httpErr, ok := err.(*HTTPError); ok && !retryableStatus(httpErr.StatusCode) {
			return retry.Unrecoverable(err)
		}
		return err
	}, retryOpts...)
	return body, location, err
}

// retryableStatus reports whether a response status is worth retrying.
// Client errors other than 408/429 are terminal.
func retryableStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

func (c *HTTPClient) doOnce(ctx context.Context, opts RequestOptions) ([]byte, string, error) {
	req, err := c.buildRequest(ctx, opts)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %v", err)
	}

	c.logger.Debug().
		Str("method", opts.Method).
		Str("path", opts.Path).
		Int("status", resp.StatusCode).
		Msg("request complete")

	if resp.StatusCode >= 400 {
		return nil, "", c.responseError(resp.StatusCode, body)
	}

	return body, resp.Header.Get("Location"), nil
}

// StreamRequest makes an HTTP request with the given options and returns a
// reader for streaming the response along with the response Content-Type.
// The caller is responsible for closing the returned reader.
func (c *HTTPClient) StreamRequest(ctx context.Context, opts RequestOptions) (io.ReadCloser, string, error) {
	req, err := c.buildRequest(ctx, opts)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, "", c.responseError(resp.StatusCode, body)
	}

	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (c *HTTPClient) buildRequest(ctx context.Context, opts RequestOptions) (*http.Request, error) {
	rawURL := c.config.GetBaseURL()
	if opts.AbsoluteURL != "" {
		rawURL = opts.AbsoluteURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL: %v", err)
	}
	if opts.AbsoluteURL == "" {
		u.Path = path.Join(u.Path, opts.Path)
	}

	q := u.Query()
	for k, v := range opts.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, opts.Method, u.String(), bytes.NewBuffer(opts.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.Accept != "" {
		req.Header.Set("Accept", opts.Accept)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	// Use token only while valid. An expired token is omitted so the server
	// treats the request as anonymous rather than rejecting it outright.
	if token := c.config.GetToken(); token != "" {
		expiry := c.config.GetTokenExpiry()
		if expiry.IsZero() || time.Now().Before(expiry) {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return req, nil
}

func (c *HTTPClient) responseError(status int, body []byte) error {
	var serverErr ServerError
	if err := json.Unmarshal(body, &serverErr); err == nil && serverErr.Message != "" {
		return &HTTPError{
			StatusCode: status,
			Message:    serverErr.Message,
		}
	}
	return &HTTPError{
		StatusCode: status,
		Message:    string(body),
	}
}
