// Package client talks to the WorkBoard REST API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAuthScheme = "Token"
	DefaultTimeout    = 10 * time.Second

	maxBodyBytes = 4 << 20
)

type Client struct {
	baseURL *url.URL
	http    *http.Client
	session *Session
	log     *logrus.Logger
	scheme  string
	timeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithSession(s *Session) Option {
	return func(c *Client) {
		if s != nil {
			c.session = s
		}
	}
}

func WithLogger(l *logrus.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithAuthScheme sets the Authorization scheme, "Token" or "Bearer".
func WithAuthScheme(scheme string) Option {
	return func(c *Client) {
		if scheme = strings.TrimSpace(scheme); scheme != "" {
			c.scheme = scheme
		}
	}
}

// WithTimeout bounds every request. Zero disables the per-request limit.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q must be http or https", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	c := &Client{
		baseURL: u,
		http:    &http.Client{},
		session: NewSession(""),
		log:     quiet,
		scheme:  DefaultAuthScheme,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Session() *Session { return c.session }

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// do sends one request and decodes a 2xx body into out. Every failure comes
// back as *Error.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		payload, err := sonic.Marshal(in)
		if err != nil {
			return &Error{Kind: KindValidation, Op: op, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.session.Token(); tok != "" {
		req.Header.Set("Authorization", c.scheme+" "+tok)
	}
	if csrf := c.session.CSRFToken(); csrf != "" && unsafeMethod(method) {
		req.Header.Set("X-CSRFToken", csrf)
	}

	fields := logrus.Fields{"op": op, "route": method + " " + path}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithFields(fields).WithError(err).Warn("api request failed")
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	fields["status"] = resp.StatusCode
	fields["elapsed_ms"] = float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		c.log.WithFields(fields).WithError(err).Warn("api response unreadable")
		return &Error{Kind: KindNetwork, Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := &Error{
			Kind:    kindForStatus(resp.StatusCode),
			Op:      op,
			Status:  resp.StatusCode,
			Message: errorMessage(raw),
		}
		c.log.WithFields(fields).WithField("kind", e.Kind.String()).Warn("api request rejected")
		return e
	}
	c.log.WithFields(fields).Debug("api request")

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindNetwork, Op: op, Status: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	return nil
}

// errorMessage pulls a readable message out of an error body. Backends use
// {"error": ...}, {"detail": ...} or per-field lists.
func errorMessage(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var obj map[string]any
	if err := sonic.Unmarshal(raw, &obj); err != nil {
		return truncate(string(raw), 200)
	}
	for _, key := range []string{"error", "detail", "message"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, obj[k]))
	}
	return truncate(strings.Join(parts, "; "), 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func pathID(prefix string, id fmt.Stringer, suffix string) string {
	return prefix + url.PathEscape(id.String()) + suffix
}

// notFound reports whether err is a 404 from the API.
func notFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
