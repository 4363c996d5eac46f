package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/matzehuels/wheelhouse/pkg/cache"
	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/httputil"
	"github.com/matzehuels/wheelhouse/pkg/observability"
)

// Client provides shared HTTP functionality for the index client and the
// downloader. It handles caching, retry logic, status mapping and common
// request headers.
type Client struct {
	http    *http.Client
	cache   cache.Cache
	prefix  string
	ttl     time.Duration
	headers map[string]string

	attempts int
	delay    time.Duration
}

// NewClient creates a Client with the given cache and default headers.
// Requests are bounded by [httputil.DefaultTimeout]; use [Client.SetHTTPClient]
// for streaming transfers that must outlive it.
// Cache keys are prefixed with prefix; entries live for ttl. A nil backend
// disables caching. Pass nil for headers if no default headers are needed.
func NewClient(backend cache.Cache, prefix string, ttl time.Duration, headers map[string]string) *Client {
	if backend == nil {
		backend = cache.NewNullCache()
	}
	return &Client{
		http:     NewHTTPClient(httputil.DefaultTimeout),
		cache:    backend,
		prefix:   prefix,
		ttl:      ttl,
		headers:  headers,
		attempts: 3,
		delay:    time.Second,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(h *http.Client) { c.http = h }

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client { return c.http }

// SetRetry overrides the retry policy (default 3 attempts from 1s).
func (c *Client) SetRetry(attempts int, delay time.Duration) {
	c.attempts, c.delay = attempts, delay
}

// Retry runs fn under the client's retry policy.
func (c *Client) Retry(ctx context.Context, fn func() error) error {
	return httputil.Retry(ctx, c.attempts, c.delay, fn)
}

// Cached retrieves a value from cache or executes fetch and caches the result.
// If refresh is true, the cache is bypassed and fetch is always called.
// The fetch function should populate v; on success, v is stored in the cache.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	key = c.prefix + key
	if !refresh {
		if data, ok, _ := c.cache.Get(ctx, key); ok {
			if err := json.Unmarshal(data, v); err == nil {
				observability.Cache().OnCacheHit(ctx, c.prefix)
				return nil
			}
		}
		observability.Cache().OnCacheMiss(ctx, c.prefix)
	}
	if err := c.Retry(ctx, fetch); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		if c.cache.Set(ctx, key, data, c.ttl) == nil {
			observability.Cache().OnCacheSet(ctx, c.prefix, len(data))
		}
	}
	return nil
}

// Response is a fully read response body with its headers and the final
// URL after redirects.
type Response struct {
	Body   []byte
	Header http.Header
	URL    *url.URL
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	return c.GetWithHeaders(ctx, url, nil, v)
}

// GetWithHeaders performs an HTTP GET with additional headers merged with defaults.
// Request-specific headers override client defaults for the same key.
func (c *Client) GetWithHeaders(ctx context.Context, url string, headers map[string]string, v any) error {
	resp, err := c.Fetch(ctx, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return errors.Wrap(errors.ErrCodeProtocol, err, "invalid JSON from %s", url)
	}
	return nil
}

// Fetch performs a single GET and reads the whole body. It does not retry;
// wrap it in [Client.Retry] or [Client.Cached].
func (c *Client) Fetch(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	resp, err := c.Open(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeTransport, fmt.Errorf("%w: %v", ErrNetwork, err), "reading %s", url)}
	}
	return &Response{Body: body, Header: resp.Header, URL: resp.Request.URL}, nil
}

// Open performs a GET and returns the live response for streaming. Non-200
// statuses are mapped to errors and the body is closed. The caller closes
// the body on success.
func (c *Client) Open(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid URL %q", url)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	host, path := req.URL.Host, req.URL.Path
	observability.HTTP().OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, req.Method, host, path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeTransport, fmt.Errorf("%w: %v", ErrNetwork, err), "GET %s", url)}
	}
	observability.HTTP().OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	return resp, nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return errors.Wrap(errors.ErrCodeNotFound, ErrNotFound, "status 404")
	case code >= 500:
		return &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeTransport, ErrNetwork, "status %d", code)}
	default:
		return errors.Wrap(errors.ErrCodeTransport, ErrNetwork, "status %d", code)
	}
}
