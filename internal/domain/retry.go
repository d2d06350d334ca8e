package domain

import "time"

// RetryPolicy governs automatic retry of transient call failures. One policy
// value is shared by every call site instead of ad hoc loops per provider.
type RetryPolicy struct {
	// MaxAttempts bounds the total number of attempts, first try included.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
	// Classify decides whether an error is transient. Nil means IsRetryable.
	Classify func(error) bool
}

// DefaultRetryPolicy mirrors the registry-wide defaults: three attempts,
// 1s/2s backoff capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxRetries,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Backoff returns the sleep before the given attempt is retried. Attempts are
// 1-based; delay(n) = min(base * 2^(n-1), max), and the sequence never
// decreases.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// Retryable applies the policy's classifier.
func (p RetryPolicy) Retryable(err error) bool {
	if p.Classify != nil {
		return p.Classify(err)
	}
	return IsRetryable(err)
}

// Attempts returns the bounded attempt budget.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
