package failover

import (
	"context"
	"math"
	"math/rand"
	"time"

	apperrors "agri-pipeline/internal/common/errors"
)

// RetryPolicy bounds in-request retries. MaxAttempts counts the first call;
// 1 disables retrying.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// Delay returns the wait before retry number n (1-based): BaseDelay*2^(n-1)
// capped at MaxDelay, plus up to Jitter of that value.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if n > 63 {
		n = 63
	}
	scaled := float64(p.BaseDelay) * math.Pow(2, float64(n-1))
	if p.MaxDelay > 0 && scaled > float64(p.MaxDelay) {
		scaled = float64(p.MaxDelay)
	}
	if scaled >= math.MaxInt64 {
		scaled = math.MaxInt64 / 2
	}
	delay := time.Duration(scaled)
	if p.Jitter > 0 {
		delay += time.Duration(rand.Float64() * p.Jitter * float64(delay))
	}
	return delay
}

// Retry runs fn until it succeeds, fails with a non-retryable error, the
// policy is exhausted or ctx is done. It returns the last error from fn.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for n := 1; ; n++ {
		err = fn(ctx)
		if err == nil || n >= attempts || !apperrors.IsRetryable(err) {
			return err
		}

		timer := time.NewTimer(policy.Delay(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
