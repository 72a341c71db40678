package netx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	BrowserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

	defaultMaxBody = 8 << 20
)

// ErrBodyTooLarge is returned when a response exceeds Client.MaxBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// Client is a polite HTTP client: every attempt waits on a shared rate
// limiter, bodies are size capped and transient failures are retried.
type Client struct {
	HTTP      *http.Client
	Limiter   *rate.Limiter
	Retry     RetryConfig
	UserAgent string
	MaxBytes  int64
	Timeout   time.Duration
}

// NewClient returns a Client allowing rps requests per second with the
// given per-request timeout.
func NewClient(timeout time.Duration, rps float64) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout},
		Limiter:   lim,
		Retry:     DefaultRetryConfig,
		UserAgent: BrowserUA,
		MaxBytes:  defaultMaxBody,
		Timeout:   timeout,
	}
}

// Get fetches url and returns its body.
func (c *Client) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil, header)
}

// Post sends body to url and returns the response body.
func (c *Client) Post(ctx context.Context, url string, body []byte, header http.Header) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, body, header)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, header http.Header) ([]byte, error) {
	resp, err := RetryHTTP(ctx, c.Retry, func() (*http.Response, error) {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.UserAgent)
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}
		return c.HTTP.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	limit := c.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBody
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > limit {
		return nil, ErrBodyTooLarge
	}
	return b, nil
}

// Truncate shortens s to n runes for log and error messages.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
