package uploader

import (
	"context"
	"fmt"
	"time"

	"incident-report-bot/metrics"

	"github.com/apex/log"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second
)

// Retrier runs an operation in a bounded loop with exponential backoff.
type Retrier struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	// Sleep waits for d or until ctx is done; sleepContext when nil.
	Sleep func(ctx context.Context, d time.Duration) error
	Log   log.Interface
}

// NewRetrier creates a retrier, using defaults for negative retries or a zero delay.
func NewRetrier(maxRetries int, baseDelay time.Duration, logger log.Interface) *Retrier {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Retrier{MaxRetries: maxRetries, BaseDelay: baseDelay, Sleep: sleepContext, Log: logger}
}

// Delay returns the wait before the given retry (1-based), extended by the host's hint when longer.
func (r *Retrier) Delay(retry int, hint time.Duration) time.Duration {
	d := r.BaseDelay << (retry - 1)
	if hint > d {
		return hint
	}
	return d
}

// Do runs op until it succeeds, fails permanently, or the retries are used up.
func (r *Retrier) Do(ctx context.Context, provider string, op func(ctx context.Context) error) error {
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	attempts := 0
	for retry := 0; retry <= r.MaxRetries; retry++ {
		if retry > 0 {
			delay := r.Delay(retry, retryHint(lastErr))
			r.Log.WithError(lastErr).Warnf("%s upload failed, retry %d/%d in %s", provider, retry, r.MaxRetries, delay)
			if err := sleep(ctx, delay); err != nil {
				return fmt.Errorf("%s upload aborted after %d attempts: %w", provider, attempts, err)
			}
		}

		attempts++
		err := op(ctx)
		if err == nil {
			metrics.UploadAttemptsTotal.WithLabelValues(provider, "success").Inc()
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			metrics.UploadAttemptsTotal.WithLabelValues(provider, "permanent").Inc()
			return err
		}
		metrics.UploadAttemptsTotal.WithLabelValues(provider, "retryable").Inc()

		if ctx.Err() != nil {
			return fmt.Errorf("%s upload aborted after %d attempts: %w", provider, attempts, ctx.Err())
		}
	}

	return &UploadError{Provider: provider, Attempts: attempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
