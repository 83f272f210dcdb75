package ingest

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pulseworks/artistpulse/pkg/catalog"
	"github.com/pulseworks/artistpulse/pkg/lake"
	"github.com/pulseworks/artistpulse/pkg/notify"
)

const (
	defaultEntity          = "artists"
	defaultMaxAttempts     = 3
	defaultRetryBackoff    = 2 * time.Second
	defaultDefaultLookback = 24 * time.Hour
)

type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Source   catalog.Source
	Store    lake.ObjectStore
	Notifier notify.Notifier

	// Entity names the bronze partition this pipeline lands into.
	Entity string

	// Bucket is informational, passed through to downstream notifications.
	Bucket string

	// MaxFetchAttempts bounds extraction retries within one invocation.
	MaxFetchAttempts int
	// RetryBackoff is the base of the exponential fetch backoff. A
	// rate-limited source's requested delay takes precedence when longer.
	RetryBackoff time.Duration

	// WriteMaxRetries / WriteRetryBackoff bound landing write retries.
	WriteMaxRetries   int
	WriteRetryBackoff time.Duration

	// DefaultLookback sizes the first window when no watermark exists yet.
	DefaultLookback time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Source == nil {
		return errors.New("source is required")
	}
	if c.Store == nil {
		return errors.New("object store is required")
	}
	if c.Notifier == nil {
		return errors.New("notifier is required")
	}

	// Optional with defaults
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Entity == "" {
		c.Entity = defaultEntity
	}
	if c.MaxFetchAttempts <= 0 {
		c.MaxFetchAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.DefaultLookback <= 0 {
		c.DefaultLookback = defaultDefaultLookback
	}
	return nil
}
