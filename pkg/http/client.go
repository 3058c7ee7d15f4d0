package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type ClientOption func(*Client)

// Client is a small outbound HTTP client with a bounded response size.
type Client struct {
	timeout   time.Duration
	userAgent string
	maxBody   int64
	client    *http.Client
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.Code)
}

// Retryable reports whether the server may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{timeout: 30 * time.Second, maxBody: 8 << 20}
	for _, opt := range opts {
		opt(c)
	}
	c.client = &http.Client{Timeout: c.timeout}
	return c
}

// Do sends a request. A non-nil body that is not []byte or string is sent as
// JSON. Callers own the response body.
func (c *Client) Do(ctx context.Context, method, url string, body interface{}, headers map[string]string) (*http.Response, error) {
	var r io.Reader
	contentType := ""
	switch v := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(v)
	case string:
		r = bytes.NewBufferString(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		r = bytes.NewReader(b)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	return resp, nil
}

// GetBytes fetches url and returns the body of a 2xx response. Other statuses
// yield a *StatusError.
func (c *Client) GetBytes(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	resp, err := c.Do(ctx, http.MethodGet, url, nil, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(b)) > c.maxBody {
		return nil, fmt.Errorf("read %s: body exceeds %d bytes", url, c.maxBody)
	}
	return b, nil
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithMaxBody caps how many response bytes GetBytes accepts.
func WithMaxBody(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}
