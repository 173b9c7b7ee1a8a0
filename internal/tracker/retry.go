package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/membankd/internal/config"
	"github.com/fyrsmithlabs/membankd/internal/metrics"
)

// maxRateLimitWait caps how long a single rate-limit reset is honored
// before giving up on the attempt.
const maxRateLimitWait = 5 * time.Minute

// classify maps a go-github error and response to a package sentinel.
// Errors that match no sentinel are returned unchanged.
func classify(err error, resp *github.Response) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case status == http.StatusForbidden && resp != nil && resp.Rate.Remaining == 0:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case status >= 500:
		return fmt.Errorf("%w: %v", ErrTransient, err)
	case status == 0:
		// No HTTP response at all: network or transport failure.
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

// retryable reports whether a classified error is worth another
// attempt, and the metrics reason label for it.
func retryable(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited", true
	case errors.Is(err, ErrTransient):
		return "transient", true
	}
	return "", false
}

// rateLimitBackoff returns how long to wait for the rate limit window
// to reset, or zero when the response carries no usable reset time.
func rateLimitBackoff(resp *github.Response, now time.Time) time.Duration {
	if resp == nil || resp.Rate.Remaining > 0 {
		return 0
	}
	reset := resp.Rate.Reset.Time
	if reset.IsZero() || !reset.After(now) {
		return 0
	}
	wait := reset.Sub(now) + time.Second
	if wait > maxRateLimitWait {
		return maxRateLimitWait
	}
	return wait
}

// withRetry runs op with exponential backoff, honoring rate-limit
// reset times. The returned error is already classified.
func withRetry(ctx context.Context, cfg config.RetryConfig, logger *zap.Logger, name string, op func() (*github.Response, error)) error {
	backoff := cfg.InitialBackoff.Duration()

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		resp, err := op()
		classified := classify(err, resp)
		if classified == nil {
			return nil
		}
		lastErr = classified

		reason, ok := retryable(classified)
		if !ok || attempt == cfg.MaxRetries {
			break
		}
		metrics.TrackerRetries.WithLabelValues(reason).Inc()

		wait := backoff
		if rlWait := rateLimitBackoff(resp, time.Now()); rlWait > wait {
			wait = rlWait
		}
		logger.Warn("tracker call failed, retrying",
			zap.String("op", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(classified))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if max := cfg.MaxBackoff.Duration(); backoff > max {
			backoff = max
		}
	}
	return lastErr
}
