package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/matzehuels/fyn/pkg/buildinfo"
	"github.com/matzehuels/fyn/pkg/cache"
	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/httputil"
	"github.com/matzehuels/fyn/pkg/observability"
)

// Client provides shared HTTP functionality for registry clients: response
// caching, retry with backoff, default headers and request hooks.
type Client struct {
	http    *http.Client
	cache   cache.Cache
	prefix  string
	ttl     time.Duration
	headers map[string]string
	hooks   observability.HTTPHooks
}

// NewClient creates a Client. Cache keys are prefixed with prefix and stored
// for ttl. Headers are applied to every request; pass nil for none.
func NewClient(c cache.Cache, prefix string, ttl time.Duration, headers map[string]string) *Client {
	if c == nil {
		c = cache.NewNullCache()
	}
	return &Client{
		http:    NewHTTPClient(),
		cache:   c,
		prefix:  prefix,
		ttl:     ttl,
		headers: headers,
		hooks:   observability.NoopHTTPHooks{},
	}
}

// SetHooks installs HTTP hooks. A nil value restores the no-op hooks.
func (c *Client) SetHooks(h observability.HTTPHooks) {
	if h == nil {
		h = observability.NoopHTTPHooks{}
	}
	c.hooks = h
}

// Cached retrieves v from the cache or runs fetch (with retry) and caches
// the JSON encoding of v. If refresh is true the cache is not read, but the
// fresh result is still stored.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	key = c.prefix + key
	if !refresh {
		if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			if json.Unmarshal(data, v) == nil {
				return nil
			}
		}
	}
	if err := httputil.RetryWithBackoff(ctx, fetch); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		_ = c.cache.Set(ctx, key, data, c.ttl)
	}
	return nil
}

// Has reports whether key is cached, without any network access.
func (c *Client) Has(ctx context.Context, key string) bool {
	_, ok, err := c.cache.Get(ctx, c.prefix+key)
	return err == nil && ok
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	return c.GetWithHeaders(ctx, url, nil, v)
}

// GetWithHeaders performs an HTTP GET with additional headers merged with
// defaults. Request-specific headers override client defaults.
func (c *Client) GetWithHeaders(ctx context.Context, url string, headers map[string]string, v any) error {
	body, err := c.doRequest(ctx, url, headers)
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

// Open performs an HTTP GET request and returns the body for streaming.
// The caller must close it.
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	return c.doRequest(ctx, url, nil)
}

func (c *Client) doRequest(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	host, path := req.URL.Host, req.URL.Path
	c.hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		c.hooks.OnError(ctx, req.Method, host, path, err)
		return nil, &httputil.RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
	c.hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		if resp.StatusCode == http.StatusTooManyRequests {
			err = rateLimited(resp.Header.Get("Retry-After"))
		}
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized:
		return errors.Wrap(errors.ErrCodeUnauthorized, ErrNetwork, "status %d", code)
	case code == http.StatusForbidden:
		return errors.Wrap(errors.ErrCodeForbidden, ErrNetwork, "status %d", code)
	case code == http.StatusTooManyRequests:
		return rateLimited("")
	case code >= 500:
		return &httputil.RetryableError{Err: fmt.Errorf("%w: status %d", ErrNetwork, code)}
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}

func rateLimited(retryAfter string) error {
	secs, _ := strconv.Atoi(retryAfter)
	return &httputil.RetryableError{
		Err:   &errors.RateLimitedError{RetryAfter: secs},
		After: time.Duration(secs) * time.Second,
	}
}
