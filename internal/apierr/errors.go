// Package apierr defines the error kinds shared by the remote service
// clients and the mapping from HTTP status codes onto them.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrAuth is returned when a service rejects the API key (HTTP 401).
	ErrAuth = errors.New("invalid API key")

	// ErrQuota is returned when a service reports rate or quota exhaustion (HTTP 429).
	ErrQuota = errors.New("API quota exceeded")

	// ErrPayloadTooLarge is returned when an upload exceeds the service limit (HTTP 413).
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrTimeout is returned when a call exceeds its client-side deadline.
	ErrTimeout = errors.New("request timed out")
)

// APIError is any other non-2xx response. Message holds the service's own
// error message when the body carried one; Body holds the raw response.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s API error (%d): %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s API error (%d): %s", e.Service, e.StatusCode, e.Body)
}

// envelope matches both {"error":{"message":...}} and {"message":...}.
type envelope struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// MessageFromBody extracts a service error message from a JSON body, or ""
// when the body is not a recognised error envelope.
func MessageFromBody(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	if env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return env.Message
}

// FromResponse maps a non-2xx status and body onto an error kind.
// 401, 429 and 413 become the sentinels; everything else is an *APIError.
func FromResponse(service string, status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", service, ErrAuth)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", service, ErrQuota)
	case http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%s: %w", service, ErrPayloadTooLarge)
	}
	return &APIError{
		Service:    service,
		StatusCode: status,
		Message:    MessageFromBody(body),
		Body:       strings.TrimSpace(string(body)),
	}
}
