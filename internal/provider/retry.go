package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy lists the delay before each retry; attempts = len(Delays)+1.
type RetryPolicy struct {
	Delays []time.Duration
}

// DefaultRetryPolicy is three attempts with 1s then 2s between them.
var DefaultRetryPolicy = RetryPolicy{
	Delays: []time.Duration{1 * time.Second, 2 * time.Second},
}

// Attempts returns the total number of attempts the policy allows.
func (p RetryPolicy) Attempts() int {
	return len(p.Delays) + 1
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the production Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retrier runs provider calls under a RetryPolicy. Every error is retried;
// there is no transient/permanent classification and no circuit breaking.
type Retrier struct {
	policy RetryPolicy
	sleep  Sleeper
	logger logrus.FieldLogger
}

// NewRetrier creates a Retrier. A nil sleep uses ContextSleep.
func NewRetrier(policy RetryPolicy, sleep Sleeper, logger logrus.FieldLogger) *Retrier {
	if sleep == nil {
		sleep = ContextSleep
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Retrier{policy: policy, sleep: sleep, logger: logger}
}

// retryDo runs fn until it succeeds or the policy is exhausted, then wraps the
// last error in *ProviderError.
func retryDo[T any](ctx context.Context, r *Retrier, op, ticker string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := r.policy.Attempts()

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := r.policy.Delays[attempt-2]
			r.logger.WithFields(logrus.Fields{
				"op":      op,
				"ticker":  ticker,
				"attempt": attempt,
				"delay":   delay,
			}).Warnf("Retrying after error: %v", lastErr)
			if err := r.sleep(ctx, delay); err != nil {
				return zero, &ProviderError{Op: op, Ticker: ticker, Attempts: attempt - 1,
					Err: fmt.Errorf("canceled during backoff: %w (last error: %v)", err, lastErr)}
			}
		}

		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, &ProviderError{Op: op, Ticker: ticker, Attempts: attempt, Err: err}
		}
	}

	return zero, &ProviderError{Op: op, Ticker: ticker, Attempts: attempts, Err: lastErr}
}
