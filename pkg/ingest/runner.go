// Package ingest orchestrates one scheduled extraction-and-landing
// invocation: derive the window from the persisted watermark, pull the raw
// records, land them as an immutable batch, advance the watermark, and
// signal the downstream transformation job.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pulseworks/artistpulse/pkg/catalog"
	"github.com/pulseworks/artistpulse/pkg/lake"
	"github.com/pulseworks/artistpulse/pkg/metrics"
	"github.com/pulseworks/artistpulse/pkg/notify"
)

// Phase is where an invocation currently is, or where it terminally ended.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseFetching  Phase = "fetching"
	PhaseLanding   Phase = "landing"
	PhaseNotifying Phase = "notifying"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

// Request is one trigger invocation. Zero Start/End derive the window from
// the watermark; setting either marks the invocation as a manual backfill.
type Request struct {
	Start        time.Time
	End          time.Time
	DryRun       bool
	InvocationID string // optional; generated when empty
}

// Result reports the invocation outcome.
type Result struct {
	Phase         Phase          `json:"phase"`
	Window        catalog.Window `json:"window"`
	InvocationID  string         `json:"invocation_id"`
	DryRun        bool           `json:"dry_run,omitempty"`
	Records       int            `json:"records"`
	FetchAttempts int            `json:"fetch_attempts,omitempty"`
	BatchKey      string         `json:"batch_key,omitempty"`
	BatchBytes    int            `json:"batch_bytes,omitempty"`
	ErrorKind     string         `json:"error_kind,omitempty"`
	NotifyError   string         `json:"notify_error,omitempty"`
}

// Runner executes ingestion invocations.
type Runner struct {
	cfg        Config
	log        *slog.Logger
	watermarks *lake.WatermarkStore
	writer     *lake.Writer
}

func New(cfg Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	writer, err := lake.NewWriter(lake.WriterConfig{
		Logger:       cfg.Logger,
		Store:        cfg.Store,
		MaxRetries:   cfg.WriteMaxRetries,
		RetryBackoff: cfg.WriteRetryBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create landing writer: %w", err)
	}
	return &Runner{
		cfg:        cfg,
		log:        cfg.Logger,
		watermarks: lake.NewWatermarkStore(cfg.Store, cfg.Entity),
		writer:     writer,
	}, nil
}

// Run executes one invocation through the
// Idle → Fetching → Landing → Notifying → Done state machine. Failed is the
// terminal phase for any error; the watermark is only touched after a
// confirmed batch write, so a failed or killed invocation leaves the next
// scheduled tick to retry the same window.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	started := r.cfg.Clock.Now()
	res := &Result{
		Phase:        PhaseIdle,
		InvocationID: req.InvocationID,
		DryRun:       req.DryRun,
	}
	if res.InvocationID == "" {
		res.InvocationID = uuid.NewString()
	}
	defer func() {
		metrics.InvocationDuration.Observe(r.cfg.Clock.Since(started).Seconds())
		metrics.InvocationsTotal.WithLabelValues(outcome(res)).Inc()
	}()

	log := r.log.With("invocation_id", res.InvocationID, "entity", r.cfg.Entity)

	wm, wmETag, err := r.watermarks.Load(ctx)
	if err != nil {
		return r.fail(res, err)
	}

	window, err := deriveWindow(req, wm, r.cfg.Clock.Now(), r.cfg.DefaultLookback)
	if err != nil {
		res.Phase = PhaseFailed
		res.ErrorKind = "invalid_window"
		return res, err
	}
	res.Window = window
	if window.IsEmpty() {
		log.Info("window is empty, nothing to ingest", "window", window.String())
		res.Phase = PhaseDone
		return res, nil
	}
	log.Info("starting ingestion", "window", window.String(), "dry_run", req.DryRun)

	res.Phase = PhaseFetching
	records, attempts, err := r.fetch(ctx, log, window)
	res.FetchAttempts = attempts
	if err != nil {
		return r.fail(res, err)
	}
	res.Records = len(records)
	metrics.RecordsExtractedTotal.Add(float64(len(records)))

	batch := &lake.Batch{
		Entity:       r.cfg.Entity,
		Window:       window,
		InvocationID: res.InvocationID,
		Records:      records,
	}
	res.BatchKey = batch.Key()

	if req.DryRun {
		log.Info("dry run, skipping landing and notify", "records", len(records), "would_write", res.BatchKey)
		res.Phase = PhaseDone
		return res, nil
	}

	res.Phase = PhaseLanding
	manual := !req.Start.IsZero() || !req.End.IsZero()
	advance, err := r.checkStale(wm, window, res.InvocationID, manual)
	if err != nil {
		return r.fail(res, err)
	}

	key, size, err := r.writer.Land(ctx, batch)
	if err != nil {
		return r.fail(res, err)
	}
	res.BatchBytes = size
	metrics.BatchBytesTotal.Add(float64(size))

	if advance {
		next := lake.Watermark{
			WindowEnd:    window.End,
			BatchKey:     key,
			InvocationID: res.InvocationID,
			UpdatedAt:    r.cfg.Clock.Now().UTC(),
		}
		if err := r.watermarks.Advance(ctx, wm, wmETag, next); err != nil {
			return r.fail(res, err)
		}
		log.Info("watermark advanced", "window_end", window.End)
	} else {
		log.Info("watermark unchanged", "window_end", window.End)
	}

	res.Phase = PhaseNotifying
	if err := r.cfg.Notifier.Notify(ctx, notify.BatchRef{
		Entity:       r.cfg.Entity,
		Bucket:       r.cfg.Bucket,
		Key:          key,
		Window:       window,
		InvocationID: res.InvocationID,
		Records:      len(records),
	}); err != nil {
		// The batch is durably landed; downstream reprocessing has its
		// own retry policy. Record and move on.
		log.Warn("downstream notify failed", "error", err)
		res.NotifyError = err.Error()
	}

	res.Phase = PhaseDone
	log.Info("ingestion done", "key", key, "records", len(records))
	return res, nil
}

// checkStale decides whether the watermark should advance, or whether this
// invocation is stale. Re-landing the window the watermark already points at
// with the same invocation id is an idempotent retry, not a conflict.
// Manual backfills of historical windows land without moving the watermark.
func (r *Runner) checkStale(wm *lake.Watermark, w catalog.Window, invocationID string, manual bool) (bool, error) {
	if wm == nil || w.End.After(wm.WindowEnd) {
		return true, nil
	}
	if manual {
		return false, nil
	}
	if wm.WindowEnd.Equal(w.End) && wm.InvocationID == invocationID {
		return false, nil
	}
	return false, lake.ErrWatermarkConflict
}

// fetch runs extraction with the bounded-attempt policy table. Exhaustion
// returns the last error; the external scheduler owns the next retry.
func (r *Runner) fetch(ctx context.Context, log *slog.Logger, w catalog.Window) ([]json.RawMessage, int, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxFetchAttempts; attempt++ {
		records, err := r.cfg.Source.Fetch(ctx, w)
		if err == nil {
			return records, attempt, nil
		}
		lastErr = err

		p := policyFor(err, r.cfg.RetryBackoff, attempt)
		if !p.retryable || attempt == r.cfg.MaxFetchAttempts {
			return nil, attempt, lastErr
		}

		metrics.RetriesTotal.WithLabelValues("fetch").Inc()
		log.Warn("extraction attempt failed, retrying", "attempt", attempt, "delay", p.delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-r.cfg.Clock.After(p.delay):
		}
	}
	return nil, r.cfg.MaxFetchAttempts, lastErr
}

func (r *Runner) fail(res *Result, err error) (*Result, error) {
	res.Phase = PhaseFailed
	res.ErrorKind = ErrorKind(err)
	r.log.Error("ingestion failed", "invocation_id", res.InvocationID, "phase_error_kind", res.ErrorKind, "error", err)
	return res, err
}

func outcome(res *Result) string {
	switch {
	case res.Phase == PhaseFailed && res.ErrorKind == "watermark_conflict":
		return "conflict"
	case res.Phase == PhaseFailed:
		return "failed"
	case res.DryRun:
		return "dry_run"
	default:
		return "done"
	}
}
