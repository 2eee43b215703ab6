package gemini

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrUnexpectedShape reports a provider response whose JSON decoded but
// did not carry the expected candidates structure.
var ErrUnexpectedShape = errors.New("gemini: unexpected response shape")

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration // zero when the header was absent
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("gemini: http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter interprets a Retry-After header value in seconds.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
