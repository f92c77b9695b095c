package usecases

import (
	"context"
	"time"

	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
)

// RetryPolicy bounds ledger call retries. Delay doubles from BaseDelay up to
// MaxDelay; attempts stop early when the error is not worth retrying or the
// context is done.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the default ledger configuration.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 4,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    8 * time.Second,
}

func retryWithBackoff(ctx context.Context, policy RetryPolicy, fn func() error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	delay := policy.BaseDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		// Validation and signer rejections never resolve on retry. Ledger
		// timeouts do not mark the error retryable for callers, but inside
		// this loop they are exactly what the backoff budget is for.
		if apperrors.IsAppError(err) && !apperrors.IsRetryable(err) && !apperrors.IsLedgerTimeoutError(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return err
}
