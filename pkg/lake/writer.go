package lake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/pulseworks/artistpulse/pkg/catalog"
	"github.com/pulseworks/artistpulse/pkg/metrics"
)

// WriteError is a retryable raw-storage write failure.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Batch is one bounded unit of extracted records. Immutable once written;
// its key is deterministic in window + invocation id, so a retry after an
// ambiguous failure overwrites in place instead of duplicating.
type Batch struct {
	Entity       string
	Window       catalog.Window
	InvocationID string
	Records      []json.RawMessage
}

// Key returns the batch's bronze-tier object key:
// bronze/<entity>/<window_start>_<window_end>/<invocation_id>.json
func (b *Batch) Key() string {
	return fmt.Sprintf("bronze/%s/%s/%s.json", b.Entity, b.Window.PathLabel(), b.InvocationID)
}

// batchDoc is the serialized batch envelope. Deliberately free of wall-clock
// fields so re-landing the same batch produces identical bytes.
type batchDoc struct {
	Entity       string            `json:"entity"`
	WindowStart  time.Time         `json:"window_start"`
	WindowEnd    time.Time         `json:"window_end"`
	InvocationID string            `json:"invocation_id"`
	RecordCount  int               `json:"record_count"`
	Records      []json.RawMessage `json:"records"`
}

// WriterConfig configures the raw landing writer.
type WriterConfig struct {
	Logger *slog.Logger
	Store  ObjectStore

	// MaxRetries bounds write retries within one invocation; exhaustion
	// surfaces to the caller as the last WriteError.
	MaxRetries   int
	RetryBackoff time.Duration
}

func (c *WriterConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Store == nil {
		return fmt.Errorf("object store is required")
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	return nil
}

// Writer lands batches in the bronze tier.
type Writer struct {
	cfg WriterConfig
	log *slog.Logger
}

func NewWriter(cfg WriterConfig) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Writer{cfg: cfg, log: cfg.Logger}, nil
}

// Land serializes the batch and writes it to its deterministic key with
// bounded exponential-backoff retries. The write is a single object PUT, so
// downstream listers never observe a partial batch. Returns the key and the
// byte size written.
func (w *Writer) Land(ctx context.Context, b *Batch) (string, int, error) {
	if err := b.Window.Validate(); err != nil {
		return "", 0, err
	}
	if b.InvocationID == "" {
		return "", 0, fmt.Errorf("invocation id is required")
	}

	doc := batchDoc{
		Entity:       b.Entity,
		WindowStart:  b.Window.Start.UTC(),
		WindowEnd:    b.Window.End.UTC(),
		InvocationID: b.InvocationID,
		RecordCount:  len(b.Records),
		Records:      b.Records,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", 0, fmt.Errorf("failed to encode batch: %w", err)
	}

	key := b.Key()
	backoff := retry.WithMaxRetries(uint64(w.cfg.MaxRetries-1), retry.NewExponential(w.cfg.RetryBackoff))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.RetriesTotal.WithLabelValues("write").Inc()
		}
		if err := w.cfg.Store.Put(ctx, key, data, "application/json"); err != nil {
			w.log.Warn("batch write attempt failed", "key", key, "attempt", attempt, "error", err)
			return retry.RetryableError(&WriteError{Key: key, Err: err})
		}
		return nil
	})
	if err != nil {
		return "", 0, err
	}

	w.log.Info("batch landed", "key", key, "records", len(b.Records), "bytes", len(data))
	return key, len(data), nil
}
