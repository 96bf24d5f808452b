package voicelink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/halyard-ai/voicelink/pkg/core"
)

// apiErrorResponse is the error body produced by the backend.
type apiErrorResponse struct {
	Detail string `json:"detail"`
}

func (c *Client) apiURL(path string) string {
	return c.baseURL + path
}

func (c *Client) addAuthHeaders(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// doJSON performs a JSON request against the backend, retrying
// transport failures and retryable API errors with exponential
// backoff. A nil body sends an empty request; a nil out discards the
// response body.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	attempt := 0
	backoff := c.retryBackoff

	for {
		req, err := http.NewRequestWithContext(ctx, method, c.apiURL(path), bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.addAuthHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if shouldRetry(ctx, attempt, c.maxRetries) {
				time.Sleep(backoff)
				backoff = nextBackoff(backoff)
				attempt++
				continue
			}
			return &TransportError{Op: method + " " + path, URL: c.apiURL(path), Err: err}
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return &TransportError{Op: method + " " + path, URL: c.apiURL(path), Err: err}
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			apiErr := parseAPIError(resp.StatusCode, respBody)
			if shouldRetryAPIError(ctx, attempt, c.maxRetries, apiErr) {
				time.Sleep(backoff)
				backoff = nextBackoff(backoff)
				attempt++
				continue
			}
			return apiErr
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return core.NewProtocolError(fmt.Sprintf("decode response from %s", path), err)
			}
		}

		return nil
	}
}

// doMultipart uploads a single multipart form file. Uploads are not
// retried: the form body is streamed from the caller's reader.
func (c *Client) doMultipart(ctx context.Context, path, contentType string, form io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(path), form)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	c.addAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "POST " + path, URL: c.apiURL(path), Err: err}
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return &TransportError{Op: "POST " + path, URL: c.apiURL(path), Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return parseAPIError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return core.NewProtocolError(fmt.Sprintf("decode response from %s", path), err)
		}
	}

	return nil
}

// parseAPIError maps a non-2xx backend response to a canonical error.
func parseAPIError(status int, body []byte) error {
	var resp apiErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Detail != "" {
		return core.FromStatusCode(status, resp.Detail)
	}

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = fmt.Sprintf("backend error (%d)", status)
	}
	return core.FromStatusCode(status, message)
}

func shouldRetryAPIError(ctx context.Context, attempt, maxRetries int, err error) bool {
	if !shouldRetry(ctx, attempt, maxRetries) {
		return false
	}
	if apiErr, ok := err.(*core.Error); ok {
		return apiErr.IsRetryable()
	}
	return false
}

func shouldRetry(ctx context.Context, attempt, maxRetries int) bool {
	if ctx.Err() != nil {
		return false
	}
	return attempt < maxRetries
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next == 0 {
		return time.Second
	}
	return next
}
