package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBodyBytes caps how much of a provider error response is read.
// Provider errors are short JSON documents; anything larger is truncated.
const maxErrorBodyBytes = 4 * 1024

// DoJSON is a shared helper for calling a provider's HTTP API with a JSON
// body and decoding a JSON response. It handles the common pattern of:
// 1. Marshaling the request body (nil body sends no payload)
// 2. Setting Content-Type and Accept headers
// 3. Performing the request with the given client
// 4. Treating non-2xx status as an error carrying the response body
//
// Parameters:
//   - ctx: context for the request (should have timeout set by caller)
//   - client: HTTP client to use
//   - method, url: the endpoint to call
//   - headers: extra headers (API keys, bearer tokens)
//   - reqBody: value to marshal as the JSON request body, or nil
//   - respBody: destination for the decoded JSON response, or nil to discard
func DoJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, reqBody, respBody any) error {
	var payload io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// APIError is a non-2xx response from a provider API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// IsAuthFailure reports whether the error is a provider rejection of the
// presented credentials or token, as opposed to a transport or server fault.
func IsAuthFailure(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusBadRequest ||
		apiErr.StatusCode == http.StatusUnauthorized ||
		apiErr.StatusCode == http.StatusForbidden ||
		apiErr.StatusCode == http.StatusUnprocessableEntity
}
