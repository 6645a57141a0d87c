package providers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// HTTPError wraps a non-2xx response from a provider's HTTP endpoint.
// RetryAfter is populated from the Retry-After response header, if present,
// so RetryDo can use the server's requested backoff (up to MaxDelay).
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string { return e.Body }

// retryableStatus reports whether status is worth retrying: rate limiting
// and transient server-side failures, never a client error.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500
}

// RetryConfig bounds RetryDo's backoff: at most MaxAttempts tries total,
// waiting BaseDelay*2^n between attempts, or the server's Retry-After when
// it supplied one; either wait is capped at MaxDelay.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig is the standard provider retry tuning: three attempts,
// starting at 500ms and doubling up to 8s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

// RetryDo runs fn, retrying on a retryable *HTTPError up to cfg.MaxAttempts
// times with exponential backoff. A non-retryable error, context
// cancellation, or the final attempt's error is returned as-is.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var result T
	var err error
	delay := cfg.BaseDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}

		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || !retryableStatus(httpErr.Status) {
			return result, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		wait := delay
		if httpErr.RetryAfter > 0 {
			wait = httpErr.RetryAfter
		}
		if wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}

	return result, err
}

// ParseRetryAfter reads a Retry-After header value, which per HTTP spec is
// either a delay in seconds or an HTTP-date. Unparseable or empty values
// yield zero, meaning "fall back to RetryConfig's own backoff".
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
