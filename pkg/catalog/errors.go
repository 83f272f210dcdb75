package catalog

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies catalog API failures for retry-policy decisions.
type Kind string

const (
	// KindAuth indicates invalid or expired credentials. Retry only makes
	// sense after the cached token has been invalidated and refreshed.
	KindAuth Kind = "auth"
	// KindRateLimit indicates the source throttled the request. RetryAfter
	// carries the backoff the server asked for, when it provided one.
	KindRateLimit Kind = "rate_limit"
	// KindTransientNetwork indicates a connectivity failure or a 5xx from
	// the source. Retryable with backoff.
	KindTransientNetwork Kind = "transient_network"
)

// Error is a classified catalog API failure.
type Error struct {
	Kind       Kind
	Op         string        // e.g. "list plays", "token"
	Status     int           // HTTP status, 0 for pure network failures
	RetryAfter time.Duration // only set for KindRateLimit
	Err        error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("catalog %s: %s (status %d)", e.Op, e.Kind, e.Status)
	}
	return fmt.Sprintf("catalog %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the error kind from err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// RetryAfterOf returns the server-requested backoff for rate-limit errors.
func RetryAfterOf(err error) time.Duration {
	var ce *Error
	if errors.As(err, &ce) && ce.Kind == KindRateLimit {
		return ce.RetryAfter
	}
	return 0
}
