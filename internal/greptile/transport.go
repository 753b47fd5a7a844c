package greptile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Fixed header names and values sent on every outbound request
const (
	headerGitHubToken = "X-GitHub-Token"
	contentTypeJSON   = "application/json"
	acceptEventStream = "text/event-stream"
)

// newRequest builds an API request with the auth headers attached.
func (c *Client) newRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set(headerGitHubToken, c.githubToken)
	req.Header.Set("User-Agent", c.userAgent)

	return req, nil
}

// do performs an HTTP exchange with retry and decodes a 2xx response body
// into out (skipped when out is nil). The payload is marshaled once; every
// attempt sends the same bytes. Each attempt runs under its own timeout, so
// an attempt aborted by the timer counts as a transient failure and is
// retried like any other.
func (c *Client) do(ctx context.Context, method, url string, payload any, out any) error {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = b
	}

	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	raw, err := retryWithBackoff(ctx, c.retry, func() ([]byte, error) {
		return c.attempt(ctx, method, url, body)
	})
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// attempt performs one HTTP exchange and returns the fully read response
// body. Non-2xx statuses become an *APIError carrying the body verbatim.
func (c *Client) attempt(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(attemptCtx, method, url, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, raw)
	}
	return raw, nil
}

// streamConn is a successfully opened streaming response together with the
// cancel that bounds its lifetime.
type streamConn struct {
	resp   *http.Response
	cancel context.CancelFunc
}

// doStream performs a request whose 2xx response body is handed back live
// for SSE consumption. Retry covers connection establishment and the HTTP
// status; once the stream is open, interruptions end it without retry. The
// winning attempt's timeout keeps governing the body, so a stream that
// outlives the request timeout is cut off mid-read.
func (c *Client) doStream(ctx context.Context, method, url string, payload any) (streamConn, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return streamConn{}, fmt.Errorf("marshal request: %w", err)
		}
		body = b
	}

	return retryWithBackoff(ctx, c.retry, func() (streamConn, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)

		req, err := c.newRequest(attemptCtx, method, url, body)
		if err != nil {
			cancel()
			return streamConn{}, err
		}
		req.Header.Set("Accept", acceptEventStream)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			cancel()
			return streamConn{}, fmt.Errorf("api call: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			cancel()
			return streamConn{}, newAPIError(resp.StatusCode, raw)
		}
		return streamConn{resp: resp, cancel: cancel}, nil
	})
}

// acquire claims a slot from the in-flight limiter when one is configured.
// The returned release is idempotent and must always be called.
func (c *Client) acquire(ctx context.Context) (func(), error) {
	if c.sem == nil {
		return func() {}, nil
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire request slot: %w", err)
	}
	var once sync.Once
	return func() {
		once.Do(func() { c.sem.Release(1) })
	}, nil
}
