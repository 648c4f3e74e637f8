// Package rest is the HTTP plumbing shared by the platform clients: rate
// limiting, bounded retries of idempotent calls, JSON helpers and mapping of
// failed responses onto fault kinds.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"

	"manifestflow/internal/fault"
)

type Config struct {
	BaseURL string
	// Timeout bounds a single attempt (default 30s).
	Timeout time.Duration
	// MaxRetries for idempotent requests and 429 responses (default 3).
	MaxRetries int
	// RateLimit in requests per second (default 10).
	RateLimit float64
	RateBurst int
	UserAgent string
	// Transport allows injecting a custom round tripper in tests.
	Transport http.RoundTripper
}

func DefaultConfig() Config {
	return Config{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RateLimit:  10,
		RateBurst:  5,
		UserAgent:  "manifestflow/1.0",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RateLimit <= 0 {
		c.RateLimit = d.RateLimit
	}
	if c.RateBurst <= 0 {
		c.RateBurst = d.RateBurst
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	return c
}

// Authorizer decorates outgoing request headers with credentials.
type Authorizer interface {
	Authorize(h http.Header)
}

// Client is a rate-limited HTTP client bound to one base URL. It holds no
// credentials; every request carries its own Authorizer.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	// newBackOff is swapped in tests to avoid real sleeps.
	newBackOff func() backoff.BackOff
}

func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
}

func (c *Client) BaseURL() string { return c.cfg.BaseURL }

type Request struct {
	// Op names the operation in errors, e.g. "synapse: get entity".
	Op     string
	Method string
	// Path is joined to the base URL unless it is already absolute.
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
	Auth   Authorizer
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) JSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

// Do executes req. Non-2xx responses come back as *fault.Error classified by
// status. GET, HEAD and PUT are retried on transport errors and 5xx; any
// method is retried on 429.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fault.New(fault.Remote, req.Op, err))
		}
		r, err := c.doOnce(ctx, req)
		if err == nil {
			resp = r
			return nil
		}
		if ctx.Err() != nil || !c.retryable(req.Method, err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.MaxRetries)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if _, ok := err.(*fault.Error); !ok {
			err = fault.New(fault.Remote, req.Op, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) doOnce(ctx context.Context, req *Request) (*Response, error) {
	target := req.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(target, "/")
	}
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fault.New(fault.Parse, req.Op, err)
	}
	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Auth != nil {
		req.Auth.Authorize(httpReq.Header)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fault.New(fault.Remote, req.Op, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fault.New(fault.Remote, req.Op, fmt.Errorf("read body: %w", err))
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fault.FromStatus(req.Op, res.StatusCode, snippet(data))
	}
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: data}, nil
}

func (c *Client) retryable(method string, err error) bool {
	fe, ok := err.(*fault.Error)
	if !ok {
		return false
	}
	if fe.Status == http.StatusTooManyRequests {
		return true
	}
	if fe.Kind != fault.Remote {
		return false
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut:
		return fe.Status == 0 || fe.Status >= 500
	}
	return false
}

func snippet(b []byte) string {
	const max = 512
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, op, path string, query url.Values, auth Authorizer, out any) error {
	resp, err := c.Do(ctx, &Request{Op: op, Method: http.MethodGet, Path: path, Query: query, Auth: auth})
	if err != nil {
		return err
	}
	return decode(op, resp, out)
}

// SendJSON encodes in as the request body and decodes the response into out
// when out is non-nil.
func (c *Client) SendJSON(ctx context.Context, method, op, path string, query url.Values, auth Authorizer, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fault.New(fault.Remote, op, fmt.Errorf("marshal body: %w", err))
		}
	}
	resp, err := c.Do(ctx, &Request{
		Op:     op,
		Method: method,
		Path:   path,
		Query:  query,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   body,
		Auth:   auth,
	})
	if err != nil {
		return err
	}
	return decode(op, resp, out)
}

func decode(op string, resp *Response, out any) error {
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := resp.JSON(out); err != nil {
		return fault.New(fault.Remote, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
