// Package httpapi is a small JSON-over-HTTP client for the social API. It
// classifies failures the way statesync expects: network and decode problems
// become *statesync.TransportError, non-2xx responses become
// *statesync.ApplicationError carrying the server's message.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/statesync"
)

const (
	// SessionCookie carries the auth token set by the server on login/signup.
	SessionCookie = "jwt"
	// RequestIDHeader is attached to every request.
	RequestIDHeader = "X-Request-ID"

	fallbackMessage = "Something went wrong"
	maxErrorBody    = 64 << 10
)

type Config struct {
	BaseURL string        // e.g. "http://localhost:5000"
	Token   string        // optional initial session cookie value
	Timeout time.Duration // per request; 0 => 15s

	// HTTPClient overrides the transport. Its Jar is replaced.
	HTTPClient *http.Client
	Logger     statesync.Logger
}

// Client sends JSON requests relative to BaseURL and keeps the session cookie
// in a cookie jar, like a browser would.
type Client struct {
	base *url.URL
	hc   *http.Client
	jar  http.CookieJar
	log  statesync.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("httpapi: empty base URL")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("httpapi: base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("httpapi: unsupported scheme %q", base.Scheme)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		cp := *cfg.HTTPClient
		hc = &cp
	}
	hc.Jar = jar
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	} else if hc.Timeout == 0 {
		hc.Timeout = 15 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = statesync.NopLogger{}
	}
	c := &Client{base: base, hc: hc, jar: jar, log: log}
	if cfg.Token != "" {
		c.SetToken(cfg.Token)
	}
	return c, nil
}

// Token returns the current session cookie value ("" when logged out).
func (c *Client) Token() string {
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == SessionCookie {
			return ck.Value
		}
	}
	return ""
}

// SetToken replaces the session cookie. An empty token clears it.
func (c *Client) SetToken(token string) {
	ck := &http.Cookie{Name: SessionCookie, Value: token, Path: "/"}
	if token == "" {
		ck.MaxAge = -1
	}
	c.jar.SetCookies(c.base, []*http.Cookie{ck})
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do sends in (if non-nil) as JSON and decodes a 2xx body into out (if
// non-nil).
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	u := c.base.String() + "/" + strings.TrimLeft(path, "/")

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("httpapi: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return &statesync.TransportError{Op: method, URL: u, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Debug("request failed", statesync.Fields{"method": method, "path": path, "requestId": reqID, "err": err})
		return &statesync.TransportError{Op: method, URL: u, Err: err}
	}
	defer resp.Body.Close()
	c.log.Debug("request done", statesync.Fields{
		"method":    method,
		"path":      path,
		"status":    resp.StatusCode,
		"requestId": reqID,
		"took":      time.Since(start),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return applicationError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &statesync.TransportError{Op: "decode", URL: u, Err: err}
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// applicationError reads the server message from {"error": ...} or
// {"message": ...}; anything else gets the generic message.
func applicationError(resp *http.Response) error {
	var eb errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = json.Unmarshal(raw, &eb)
	msg := eb.Error
	if msg == "" {
		msg = eb.Message
	}
	if msg == "" {
		msg = fallbackMessage
	}
	return &statesync.ApplicationError{Status: resp.StatusCode, Message: msg}
}
