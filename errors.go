package solark

import (
	"fmt"
	"net/http"
)

// AuthError indicates rejected credentials or an expired/invalid token.
// Recoverable by re-authenticating once; fatal if that also fails.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// ConnectionError covers timeouts, DNS/TCP failures and 5xx responses.
// Transient: the next scheduled cycle may simply retry.
type ConnectionError struct {
	Message string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RateLimitError is raised on HTTP 429. Callers that do not special-case it
// should treat it like a connectivity failure and back off.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// APIError covers malformed responses, unexpected shapes and non-zero
// application-level response codes.
type APIError struct {
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (code=%s)", e.Message, e.Code)
	}
	return e.Message
}

// classifyStatus maps a vendor HTTP status to the error taxonomy. A nil
// return means the status carries no error by itself.
func classifyStatus(status int, context string) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized:
		return &AuthError{Message: fmt.Sprintf("%s: invalid or expired credentials (401)", context)}
	case status == http.StatusForbidden:
		return &AuthError{Message: fmt.Sprintf("%s: access forbidden (403)", context)}
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Message: fmt.Sprintf("%s: rate limit exceeded (429)", context)}
	case status >= 500:
		return &ConnectionError{Message: fmt.Sprintf("%s: server error (%d)", context, status)}
	default:
		return &APIError{Message: fmt.Sprintf("%s: unexpected response status %d", context, status)}
	}
}
