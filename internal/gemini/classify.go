package gemini

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Reason buckets for provider failures.
type Reason string

const (
	ReasonAuth            Reason = "auth"
	ReasonBilling         Reason = "billing"
	ReasonRateLimit       Reason = "rate_limit"
	ReasonContextOverflow Reason = "context_overflow"
	ReasonTimeout         Reason = "timeout"
	ReasonOverloaded      Reason = "overloaded"
	ReasonUnknown         Reason = "unknown"
)

// Classification maps a raw provider error to a retry policy.
type Classification struct {
	Reason     Reason
	Retryable  bool
	RetryDelay time.Duration
}

// DefaultMaxAttempts bounds the retry loop.
const DefaultMaxAttempts = 3

const maxBackoff = 60 * time.Second

// Classify inspects an error and decides whether and when to retry.
// Detection is substring-based on the lower-cased message; HTTP status
// codes surface through the HTTPError message text.
func Classify(err error) Classification {
	msg := strings.ToLower(err.Error())

	var httpErr *HTTPError
	status := 0
	if errors.As(err, &httpErr) {
		status = httpErr.Status
	}

	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}

	switch {
	case has("request_too_large", "context length exceeded", "prompt is too long") ||
		(status == 413 && has("too large")):
		return Classification{Reason: ReasonContextOverflow}

	case status == 429 || has("rate limit", "429", "quota exceeded"):
		delay := 30 * time.Second
		if httpErr != nil && httpErr.RetryAfter > 0 {
			delay = httpErr.RetryAfter
		}
		return Classification{Reason: ReasonRateLimit, Retryable: true, RetryDelay: delay}

	case status == 401 || status == 403 || has("401", "403", "unauthorized", "invalid api key"):
		return Classification{Reason: ReasonAuth}

	case has("billing", "payment", "insufficient funds"):
		return Classification{Reason: ReasonBilling}

	case status == 504 || has("timeout", "504", "deadline exceeded"):
		return Classification{Reason: ReasonTimeout, Retryable: true, RetryDelay: 5 * time.Second}

	case status == 503 || has("overloaded", "503", "service unavailable"):
		return Classification{Reason: ReasonOverloaded, Retryable: true, RetryDelay: 10 * time.Second}

	default:
		return Classification{Reason: ReasonUnknown, Retryable: true, RetryDelay: 2 * time.Second}
	}
}

// Backoff computes the sleep before retry attempt n (1-based): the base
// delay doubled per attempt, with up to ±1s of jitter, capped at 60s.
func Backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			d = maxBackoff
			break
		}
	}
	d += time.Duration(rand.Int63n(2001)-1000) * time.Millisecond
	if d < 0 {
		d = 0
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// RetryDo runs fn up to maxAttempts times, sleeping per the classifier's
// policy between attempts. Non-retryable failures and context
// cancellation return immediately.
func RetryDo[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, err
		}
		c := Classify(err)
		if !c.Retryable || attempt == maxAttempts {
			return zero, err
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(Backoff(c.RetryDelay, attempt)):
		}
	}
	return zero, lastErr
}
