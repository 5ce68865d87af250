// Package api is the central HTTP client. Auth headers, timeouts,
// retry with backoff, response caching and client-side rate limiting
// are handled here once; callers only ever see decoded payloads or a
// normalized *Error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/event"
	"github.com/trezcool/darasa/core/ratelimit"
)

// TokenSource exposes the current access token, if any.
type TokenSource interface {
	AccessToken() string
}

// RefreshFunc attempts exactly one token refresh and reports whether the
// original request may be retried. Registered by the session manager.
type RefreshFunc func(ctx context.Context) bool

type Options struct {
	Conf       *core.Config
	Bus        *event.Bus
	Logger     core.Logger
	HTTPClient *http.Client // optional; tests install a mock transport
}

// Request describes one call. Auth attaches the bearer token; Cache
// enables the GET response cache; a zero Timeout uses Config.APITimeout.
type Request struct {
	Method  string
	Path    string
	Body    interface{}
	Auth    bool
	Cache   bool
	Timeout time.Duration
}

type Client struct {
	conf   *core.Config
	bus    *event.Bus
	logger core.Logger
	http   *http.Client
	window *ratelimit.Window
	cache  *responseCache

	mu      sync.Mutex
	tokens  TokenSource
	refresh RefreshFunc

	sleep func(context.Context, time.Duration) error // mockable backoff
}

func NewClient(opts *Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		conf:   opts.Conf,
		bus:    opts.Bus,
		logger: opts.Logger,
		http:   httpClient,
		window: ratelimit.NewWindow(opts.Conf.MaxAPICallsPerMinute, time.Minute),
		cache:  newResponseCache(opts.Conf.CacheDuration, opts.Conf.CacheMaxItems),
		sleep:  sleepCtx,
	}
}

// SetTokenSource wires the session manager in after construction; the
// two depend on each other.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

// SetRefreshFunc registers the single-shot 401 recovery path.
func (c *Client) SetRefreshFunc(fn RefreshFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh = fn
}

// ClearCache drops all cached GET responses (called on logout).
func (c *Client) ClearCache() {
	c.cache.clear()
}

// Do performs req and decodes the JSON response into dest (which may be
// nil). Transport-level retries and the refresh-then-retry-once 401
// path are invisible to the caller.
func (c *Client) Do(ctx context.Context, req Request, dest interface{}) error {
	if !c.window.Allow() {
		return ErrRateLimited
	}

	cacheable := req.Cache && req.Method == http.MethodGet
	if cacheable {
		if data, ok := c.cache.get(req.Path); ok {
			return decode(data, dest)
		}
	}

	var rawBody []byte
	if req.Body != nil {
		var err error
		if rawBody, err = json.Marshal(req.Body); err != nil {
			return errors.Wrap(err, "encoding request body")
		}
	}

	var attempts int
	var refreshed bool
	for {
		status, body, err := c.send(ctx, req, rawBody)
		if err != nil {
			// Network taxonomy: offline/timeout, retryable.
			if attempts < c.conf.MaxRetryAttempts {
				if serr := c.backoff(ctx, attempts); serr != nil {
					return serr
				}
				attempts++
				continue
			}
			c.publishError(0, err)
			return errors.Wrap(ErrOffline, err.Error())
		}

		switch {
		case status >= 200 && status < 300:
			if cacheable {
				c.cache.set(req.Path, json.RawMessage(body))
			}
			return decode(body, dest)

		case status == http.StatusUnauthorized && req.Auth:
			if !refreshed {
				refreshed = true
				if fn := c.refreshFunc(); fn != nil && fn(ctx) {
					continue
				}
			}
			// Session-fatal: intercepted centrally, never surfaced raw.
			c.bus.Publish(event.SessionExpired{})
			return ErrUnauthorized

		case status == http.StatusConflict:
			c.bus.Publish(event.SessionConflict{})
			return ErrSessionConflict

		case Retryable(status) && attempts < c.conf.MaxRetryAttempts:
			if serr := c.backoff(ctx, attempts); serr != nil {
				return serr
			}
			attempts++

		default:
			apiErr := newError(status, body)
			c.publishError(status, apiErr)
			return apiErr
		}
	}
}

func (c *Client) send(ctx context.Context, req Request, rawBody []byte) (int, []byte, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.conf.APITimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := req.Path
	if !strings.HasPrefix(url, "http") {
		url = c.conf.APIBaseURL + url
	}

	var body io.Reader
	if rawBody != nil {
		body = bytes.NewReader(rawBody)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "building request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.Auth {
		if ts := c.tokenSource(); ts != nil {
			if token := ts.AccessToken(); token != "" {
				httpReq.Header.Set("Authorization", "Bearer "+token)
			}
		}
	}

	c.window.Record()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "reading response")
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := time.Second << uint(attempt) // 1s, 2s, 4s, ...
	if delay > 10*time.Second {
		delay = 10 * time.Second
	}
	return c.sleep(ctx, delay)
}

func (c *Client) tokenSource() TokenSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

func (c *Client) refreshFunc() RefreshFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh
}

func (c *Client) publishError(status int, err error) {
	if c.logger != nil {
		c.logger.Warn("api: request failed", map[string]interface{}{"status": status, "err": err.Error()})
	}
	c.bus.Publish(event.APIError{Status: status, Err: err})
}

func decode(data []byte, dest interface{}) error {
	if dest == nil || len(data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(data, dest), "decoding response")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Convenience wrappers; Auth defaults on since most of the surface is
// behind the session.

func (c *Client) Get(ctx context.Context, path string, dest interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Auth: true}, dest)
}

// GetCached is Get through the response cache.
func (c *Client) GetCached(ctx context.Context, path string, dest interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Auth: true, Cache: true}, dest)
}

func (c *Client) Post(ctx context.Context, path string, body, dest interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Auth: true}, dest)
}

func (c *Client) Put(ctx context.Context, path string, body, dest interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body, Auth: true}, dest)
}

func (c *Client) Patch(ctx context.Context, path string, body, dest interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body, Auth: true}, dest)
}

func (c *Client) Delete(ctx context.Context, path string, dest interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path, Auth: true}, dest)
}
