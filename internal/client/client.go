// Package client provides an HTTP client for tests that remembers the last
// exchange and reports every request to a hook.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"ctxdump/internal/collector"
)

// ActionFunc is called after every completed exchange.
type ActionFunc func(req *http.Request, resp *http.Response)

// SessionReader resolves the server-side session for a request.
type SessionReader func(req *http.Request) (collector.Session, error)

// Client wraps an *http.Client with a cookie jar and exchange tracking.
type Client struct {
	http    *http.Client
	base    *url.URL
	action  ActionFunc
	session SessionReader

	mu       sync.Mutex
	lastReq  *http.Request
	lastResp *http.Response
}

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL resolves relative request paths against raw.
func WithBaseURL(raw string) Option {
	return func(c *Client) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse base url: %w", err)
		}
		c.base = u
		return nil
	}
}

// WithHTTPClient uses hc for transport. Its jar is replaced when nil.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.http = hc
		return nil
	}
}

// WithActionHook registers fn to run after every exchange.
func WithActionHook(fn ActionFunc) Option {
	return func(c *Client) error {
		c.action = fn
		return nil
	}
}

// WithSessionReader lets the client expose the server-side session.
func WithSessionReader(fn SessionReader) Option {
	return func(c *Client) error {
		c.session = fn
		return nil
	}
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// Do sends req, records the exchange and runs the action hook. The hook also
// runs for transport errors, with a nil response.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)

	c.mu.Lock()
	c.lastReq = req
	c.lastResp = resp
	c.mu.Unlock()

	if c.action != nil {
		c.action(req, resp)
	}
	return resp, err
}

// Request builds and sends a request for method and target.
func (c *Client) Request(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	u, err := c.resolve(target)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func (c *Client) Get(ctx context.Context, target string) (*http.Response, error) {
	return c.Request(ctx, http.MethodGet, target, nil)
}

func (c *Client) Post(ctx context.Context, target, contentType string, body io.Reader) (*http.Response, error) {
	u, err := c.resolve(target)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// PostForm submits form url-encoded.
func (c *Client) PostForm(ctx context.Context, target string, form url.Values) (*http.Response, error) {
	return c.Post(ctx, target, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (c *Client) resolve(target string) (string, error) {
	if c.base == nil {
		return target, nil
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse target: %w", err)
	}
	return c.base.ResolveReference(ref).String(), nil
}

// LastRequest returns the most recent request, or nil.
func (c *Client) LastRequest() *http.Request {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReq
}

// LastResponse returns the most recent response, or nil.
func (c *Client) LastResponse() *http.Response {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResp
}

// Cookies returns the jar's cookies for the base URL, or for the last
// request's URL when no base is set.
func (c *Client) Cookies() []*http.Cookie {
	if c == nil || c.http == nil || c.http.Jar == nil {
		return nil
	}
	u := c.base
	if u == nil {
		if req := c.LastRequest(); req != nil {
			u = req.URL
		}
	}
	if u == nil {
		return nil
	}
	return c.http.Jar.Cookies(u)
}

// Session reads the server-side session of the last request.
func (c *Client) Session() (collector.Session, error) {
	if c == nil || c.session == nil {
		return collector.Session{}, collector.ErrNoSession
	}
	req := c.LastRequest()
	if req == nil {
		return collector.Session{}, collector.ErrNoSession
	}
	return c.session(req)
}

var (
	_ collector.Client        = (*Client)(nil)
	_ collector.CookieSource  = (*Client)(nil)
	_ collector.SessionSource = (*Client)(nil)
)
