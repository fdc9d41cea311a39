package suggest

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"ai-conversation-assist-service/internal/models"
)

// RetryPolicy bounds attempts and sets the linear backoff step per failure kind.
type RetryPolicy struct {
	MaxAttempts   int
	RateLimitStep time.Duration
	TransientStep time.Duration
}

// DefaultRetryPolicy allows three attempts: rate limits wait 2s then 4s,
// transient and network failures wait 1s then 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		RateLimitStep: 2 * time.Second,
		TransientStep: time.Second,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(kind models.ErrorKind, attempt int) time.Duration {
	switch kind {
	case models.ErrorRateLimit:
		return p.RateLimitStep * time.Duration(attempt)
	case models.ErrorTransient, models.ErrorNetwork:
		return p.TransientStep * time.Duration(attempt)
	default:
		return backoff.Stop
	}
}

// tieredBackOff implements backoff.BackOff using the kind of the most
// recent failure, which the operation records in last.
type tieredBackOff struct {
	policy  RetryPolicy
	attempt int
	last    *models.ErrorKind
}

func (b *tieredBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.policy.Delay(*b.last, b.attempt)
}

func (b *tieredBackOff) Reset() {
	b.attempt = 0
}
