package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// APIError is the failure shape the generative collaborator reports: an
// optional HTTP-style status code and the raw response body, which may carry
// a retry-after hint for quota failures.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: %s", e.Message)
}

// quota keywords seen in provider error messages
var rateLimitKeywords = []string{"rate limit", "quota", "too many requests", "resource exhausted"}

// IsRateLimited reports whether an error is rate-limit shaped: an explicit
// 429 status, or a quota keyword in the message.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	if apiErr, ok := err.(*APIError); ok {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range rateLimitKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}

	return false
}
