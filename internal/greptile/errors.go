package greptile

import (
	"errors"
	"fmt"
)

// Construction errors
var (
	ErrNoAPIKey      = errors.New("greptile api key not set")
	ErrNoGitHubToken = errors.New("github token not set")
)

// APIError is a failed HTTP exchange with the API. StatusCode and Body are
// preserved verbatim so callers can branch on the status without parsing the
// message text.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api error %d", e.StatusCode)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

func newAPIError(status int, body []byte) *APIError {
	return &APIError{StatusCode: status, Body: string(body)}
}

// retryableError reports whether a failed attempt is worth repeating.
// Transport-level failures (timeouts, resets, refused connections) carry no
// APIError and are treated as transient. HTTP statuses are classified by
// range: rate limits and server errors retry, other client errors are
// terminal.
func retryableError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return true
	}

	switch apiErr.StatusCode {
	case 429:
		// Rate limited - should retry with backoff
		return true
	case 500, 502, 503, 504:
		// Server errors - should retry
		return true
	case 400, 401, 403, 404, 409, 422:
		// Client errors - should not retry
		return false
	default:
		return apiErr.StatusCode >= 500 && apiErr.StatusCode < 600
	}
}
