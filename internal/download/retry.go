package download

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("artifact request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// transferError marks a failure while streaming the response body. These are
// retried because the connection may have dropped mid-transfer.
type transferError struct {
	err error
}

func (e *transferError) Error() string {
	return fmt.Sprintf("artifact transfer: %v", e.err)
}

func (e *transferError) Unwrap() error {
	return e.err
}

func (s *Stager) retryAttempts() int {
	if s == nil {
		return 1
	}
	if s.retryMaxAttempts <= 0 {
		return 1
	}
	return s.retryMaxAttempts
}

func (s *Stager) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts {
		return 0, false
	}
	if err == nil {
		return 0, false
	}
	if ctx == nil {
		return 0, false
	}
	if ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return s.capDelay(statusErr.RetryAfter), true
			}
			return s.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var transfer *transferError
	if errors.As(err, &transfer) {
		return s.backoffDelay(attempt), true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return s.backoffDelay(attempt), true
		}
	}

	// Connection setup failures (refused, reset, dns) surface as OpErrors
	// without the timeout flag set.
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return s.backoffDelay(attempt), true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return s.backoffDelay(attempt), true
		}
	}

	return 0, false
}

func (s *Stager) backoffDelay(attempt int) time.Duration {
	base := defaultRetryBaseDelay
	maxDelay := defaultRetryMaxDelay
	if s != nil {
		if s.retryBaseDelay >= 0 {
			base = s.retryBaseDelay
		}
		if s.retryMaxDelay > 0 {
			maxDelay = s.retryMaxDelay
		}
	}
	if base <= 0 {
		return 0
	}

	retryCount := attempt // attempt is 1-based, delay is for the next attempt.
	if retryCount <= 0 {
		retryCount = 1
	}

	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < retryCount; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return s.capDelay(delay)
}

func (s *Stager) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := defaultRetryMaxDelay
	if s != nil && s.retryMaxDelay > 0 {
		maxDelay = s.retryMaxDelay
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (s *Stager) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx == nil {
		return errors.New("download retry: nil context")
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s != nil && s.sleeper != nil {
		s.sleeper(delay)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
