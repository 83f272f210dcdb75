package lake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrWatermarkConflict indicates a concurrent invocation already advanced
// the watermark. The invocation is stale and must abort without retrying.
var ErrWatermarkConflict = errors.New("watermark advanced by a concurrent invocation")

// Watermark marks the end of the most recently successfully landed window.
// It only ever advances, and only after a confirmed batch write.
type Watermark struct {
	Version      int       `json:"version"`
	WindowEnd    time.Time `json:"window_end"`
	BatchKey     string    `json:"batch_key"`
	InvocationID string    `json:"invocation_id"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WatermarkStore persists the watermark as a small marker object, updated
// with a compare-and-set on the store's version tag.
type WatermarkStore struct {
	store  ObjectStore
	entity string
}

func NewWatermarkStore(store ObjectStore, entity string) *WatermarkStore {
	return &WatermarkStore{store: store, entity: entity}
}

// Key returns the marker object key for this entity.
func (s *WatermarkStore) Key() string {
	return fmt.Sprintf("bronze/%s/_watermark", s.entity)
}

// Load reads the current watermark. A missing marker returns a nil
// watermark and empty etag, meaning no batch has ever landed.
func (s *WatermarkStore) Load(ctx context.Context) (*Watermark, string, error) {
	obj, err := s.store.Get(ctx, s.Key())
	if errors.Is(err, ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load watermark: %w", err)
	}

	var wm Watermark
	if err := json.Unmarshal(obj.Data, &wm); err != nil {
		return nil, "", fmt.Errorf("failed to decode watermark: %w", err)
	}
	return &wm, obj.ETag, nil
}

// Advance writes a new watermark, conditioned on the marker being unchanged
// since it was loaded (prevETag, empty for first-ever advance). A
// non-monotonic advance or a lost compare-and-set both surface as
// ErrWatermarkConflict.
func (s *WatermarkStore) Advance(ctx context.Context, prev *Watermark, prevETag string, next Watermark) error {
	if prev != nil && !next.WindowEnd.After(prev.WindowEnd) {
		return ErrWatermarkConflict
	}
	if prev != nil {
		next.Version = prev.Version + 1
	} else {
		next.Version = 1
	}

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode watermark: %w", err)
	}

	if err := s.store.PutIf(ctx, s.Key(), data, "application/json", prevETag); err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			return ErrWatermarkConflict
		}
		return &WriteError{Key: s.Key(), Err: err}
	}
	return nil
}
