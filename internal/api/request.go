package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"
)

// APIError represents an error response from the lots API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lots api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the status is worth another attempt:
// server errors and rate limiting.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func retryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsRetryable()
}

// newRequest builds a request against the base URL. A non-nil body is sent
// as JSON.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload io.Reader
	if body != nil {
		payload = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	h := req.Header
	h.Set("Accept", "application/json")
	h.Set("X-Request-ID", c.requestID())
	if body != nil {
		h.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		h.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// send performs one round trip and returns the response body. Status codes
// of 400 and above come back as *APIError.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 400 {
		return data, nil
	}

	c.logger.Debug("lots api request failed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", req.Header.Get("X-Request-ID"),
	)
	return nil, &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		Body:       data,
	}
}

// retryDelay is the wait before the given retry attempt (1-based): the base
// backoff doubled per attempt, jittered to between half and one and a half
// of that.
func (c *Client) retryDelay(attempt int) time.Duration {
	d := c.retryBackoff << (attempt - 1)
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}

// sendWithRetry repeats idempotent requests on retryable failures.
func (c *Client) sendWithRetry(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt)
			c.logger.Debug("retrying lots api request", "attempt", attempt, "delay", delay, "path", path)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		data, err := c.send(ctx, method, path, query, nil)
		if err == nil {
			return data, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func decodeInto(data []byte, result any) error {
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// get performs a GET request with retries.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	data, err := c.sendWithRetry(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}
	return decodeInto(data, result)
}

// post performs a single POST request with a JSON payload. Bid submissions
// are not idempotent and are never retried.
func (c *Client) post(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	data, err := c.send(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return decodeInto(data, result)
}
