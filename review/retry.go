package review

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/reviewloop/reviewloop/github"
)

// maxAttempts is the total number of tries for a platform call.
const maxAttempts = 3

// retryBaseDelay is the initial backoff delay (doubles each attempt).
// Variable so tests can shorten it.
var retryBaseDelay = 1 * time.Second

// isRateLimited reports whether an error is a rate-limit response worth
// retrying. GitHub signals secondary rate limits with 403 as well as 429.
func isRateLimited(err error) bool {
	switch github.StatusCode(err) {
	case http.StatusTooManyRequests, http.StatusForbidden:
		return true
	}
	return false
}

// withRetry executes fn up to maxAttempts times, backing off exponentially
// between attempts. Only rate-limit failures are retried; anything else
// propagates immediately.
func withRetry[T any](ctx context.Context, logger *slog.Logger, operation string, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}

		if !isRateLimited(lastErr) {
			return result, lastErr
		}

		if attempt < maxAttempts-1 {
			delay := retryBaseDelay * time.Duration(1<<attempt)
			logger.Warn("rate limited, retrying",
				"operation", operation,
				"attempt", attempt+1,
				"max_attempts", maxAttempts,
				"delay", delay,
			)

			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return result, lastErr
}
