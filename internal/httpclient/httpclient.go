// Package httpclient holds the pooled HTTP client shared by the network
// blocks (curl, browser, http search) and the helper they use to issue one
// request and classify its failure.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/retry"
)

// MaxBodyBytes bounds how much of a response body is read.
const MaxBodyBytes = 16 << 20

// New returns a client with a pooled transport. Per-call deadlines come from
// the request context, so timeout is only a backstop.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// ErrInvalidRequest marks a request that could not be built. It is never
// retried.
var ErrInvalidRequest = errors.New("invalid request")

// Request is one outgoing call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// Response is a fully read response.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// StatusError is returned for transient HTTP statuses (429 and 5xx). Other
// non-2xx statuses are returned as a normal Response.
type StatusError struct {
	URL        string
	Status     int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

// Do issues req and reads the body.
func Do(ctx context.Context, c *http.Client, req Request) (*Response, error) {
	logger := ctxlog.FromContext(ctx)

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	logger.Debug("Sending HTTP request.", "method", httpReq.Method, "url", req.URL)
	resp, err := c.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &StatusError{URL: req.URL, Status: resp.StatusCode, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	logger.Debug("Received HTTP response.", "status", resp.StatusCode, "bytes", len(data))
	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// RetryDecision retries transient statuses, timeouts and network failures.
func RetryDecision(err error) retry.Decision {
	if errors.Is(err, context.Canceled) {
		return retry.Decision{}
	}
	var se *StatusError
	if errors.As(err, &se) {
		return retry.Decision{Retry: true, After: se.RetryAfter}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retry.Decision{Retry: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return retry.Decision{Retry: true}
	}
	return retry.Decision{}
}
