// Package httperr provides structured errors for non-2xx HTTP responses from
// destination and provider APIs, preserving the status code for
// classification.
package httperr

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MinErrorStatusCode is the minimum HTTP status code considered an error.
const MinErrorStatusCode = 400

// maxBodyBytes caps how much of an error body is retained.
const maxBodyBytes = 4096

// Error represents an HTTP API error response.
type Error struct {
	StatusCode int
	Status     string
	Body       string
	Message    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP error (%d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
}

// FromResponse parses an HTTP error response into a structured error.
// Returns nil when the response is not an error.
func FromResponse(resp *http.Response) error {
	if resp.StatusCode < MinErrorStatusCode {
		return nil
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &Error{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    fmt.Sprintf("failed to read error response body: %v", err),
		}
	}

	body := strings.TrimSpace(string(bodyBytes))
	return &Error{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       body,
		Message:    extractMessage(body),
	}
}

// extractMessage pulls a human-readable message out of common JSON error
// envelopes ({"error": ...}, {"message": ...}, {"description": ...}).
func extractMessage(body string) string {
	var envelope struct {
		Error       any    `json:"error"`
		Message     string `json:"message"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return ""
	}

	switch v := envelope.Error.(type) {
	case string:
		if v != "" {
			return v
		}
	case map[string]any:
		if msg, ok := v["error_msg"].(string); ok && msg != "" {
			return msg
		}
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	return envelope.Description
}
