package ingest

import (
	"errors"
	"time"

	"github.com/pulseworks/artistpulse/pkg/catalog"
	"github.com/pulseworks/artistpulse/pkg/lake"
)

// retryPolicy is the decision for one failed attempt: whether to retry
// inside this invocation and how long to wait first.
type retryPolicy struct {
	retryable bool
	delay     time.Duration
}

// policyFor maps an extraction error to its retry policy. The policy table:
//
//	auth               retryable, exponential backoff (the client refreshes
//	                   credentials before the next attempt)
//	rate_limit         retryable, server-requested delay when longer than
//	                   the exponential backoff
//	transient_network  retryable, exponential backoff
//	anything else      not retryable
func policyFor(err error, base time.Duration, attempt int) retryPolicy {
	kind, ok := catalog.KindOf(err)
	if !ok {
		return retryPolicy{}
	}

	delay := base << (attempt - 1)
	switch kind {
	case catalog.KindAuth, catalog.KindTransientNetwork:
		return retryPolicy{retryable: true, delay: delay}
	case catalog.KindRateLimit:
		if ra := catalog.RetryAfterOf(err); ra > delay {
			delay = ra
		}
		return retryPolicy{retryable: true, delay: delay}
	}
	return retryPolicy{}
}

// ErrorKind renders an invocation error as the stable operator-facing kind
// reported in failure responses.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, lake.ErrWatermarkConflict) {
		return "watermark_conflict"
	}
	if kind, ok := catalog.KindOf(err); ok {
		return string(kind)
	}
	var we *lake.WriteError
	if errors.As(err, &we) {
		return "write"
	}
	return "internal"
}
