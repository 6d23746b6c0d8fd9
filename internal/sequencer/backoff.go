package sequencer

import (
	stderrors "errors"
	"regexp"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"finance-enricher/internal/common/errors"
)

// retryAfterPattern matches plain-text hints like "retry after 30s",
// "retry in 12.5 seconds" or "Retry-After: 7".
var retryAfterPattern = regexp.MustCompile(`(?i)retry[- ]?(?:after|in)[:\s]*(\d+(?:\.\d+)?)`)

// RetryDelay computes the wait before the next retry attempt. A server-supplied
// retry-after hint wins; otherwise exponential backoff base*2^retryCount,
// capped at max.
func RetryDelay(retryCount int, err error, base, max time.Duration) time.Duration {
	if hint, ok := retryAfterHint(err); ok {
		if hint > max {
			return max
		}
		return hint
	}

	delay := base << uint(retryCount)
	if delay > max || delay <= 0 {
		delay = max
	}
	return delay
}

// retryAfterHint extracts a server-supplied retry delay from a quota error.
// Providers report it either as a structured RetryInfo detail in the JSON
// error body or as a plain numeric substring in the message.
func retryAfterHint(err error) (time.Duration, bool) {
	var apiErr *errors.APIError
	if !stderrors.As(err, &apiErr) {
		return 0, false
	}

	if apiErr.Body != "" {
		// Google-style error detail: {"error":{"details":[{"@type":".../RetryInfo","retryDelay":"30s"}]}}
		detail := gjson.Get(apiErr.Body, `error.details.#(@type%"*RetryInfo*").retryDelay`)
		if !detail.Exists() {
			detail = gjson.Get(apiErr.Body, `details.#(@type%"*RetryInfo*").retryDelay`)
		}
		if detail.Exists() {
			if d, perr := time.ParseDuration(detail.String()); perr == nil && d > 0 {
				return d, true
			}
		}
	}

	for _, text := range []string{apiErr.Message, apiErr.Body} {
		if m := retryAfterPattern.FindStringSubmatch(text); m != nil {
			if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil && secs > 0 {
				return time.Duration(secs * float64(time.Second)), true
			}
		}
	}

	return 0, false
}
