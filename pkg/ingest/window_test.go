package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseworks/artistpulse/pkg/lake"
)

func TestDeriveWindow(t *testing.T) {
	now := time.Date(2025, 11, 10, 12, 0, 0, 123456789, time.UTC)
	lookback := 24 * time.Hour
	wmEnd := time.Date(2025, 11, 10, 6, 0, 0, 0, time.UTC)

	t.Run("first invocation reaches back the default lookback", func(t *testing.T) {
		w, err := deriveWindow(Request{}, nil, now, lookback)
		require.NoError(t, err)
		assert.True(t, w.Start.Equal(now.Truncate(time.Second).Add(-lookback)))
		assert.True(t, w.End.Equal(now.Truncate(time.Second)))
	})

	t.Run("window starts at the watermark", func(t *testing.T) {
		wm := &lake.Watermark{WindowEnd: wmEnd}
		w, err := deriveWindow(Request{}, wm, now, lookback)
		require.NoError(t, err)
		assert.True(t, w.Start.Equal(wmEnd))
		assert.True(t, w.End.Equal(now.Truncate(time.Second)))
	})

	t.Run("overrides take precedence over the watermark", func(t *testing.T) {
		wm := &lake.Watermark{WindowEnd: wmEnd}
		start := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)

		w, err := deriveWindow(Request{Start: start, End: end}, wm, now, lookback)
		require.NoError(t, err)
		assert.True(t, w.Start.Equal(start))
		assert.True(t, w.End.Equal(end))
	})

	t.Run("start-only override runs up to now", func(t *testing.T) {
		start := time.Date(2025, 11, 9, 0, 0, 0, 0, time.UTC)
		w, err := deriveWindow(Request{Start: start}, nil, now, lookback)
		require.NoError(t, err)
		assert.True(t, w.Start.Equal(start))
		assert.True(t, w.End.Equal(now.Truncate(time.Second)))
	})

	t.Run("watermark at now yields an empty window", func(t *testing.T) {
		wm := &lake.Watermark{WindowEnd: now.Truncate(time.Second)}
		w, err := deriveWindow(Request{}, wm, now, lookback)
		require.NoError(t, err)
		assert.True(t, w.IsEmpty())
	})

	t.Run("inverted override is rejected", func(t *testing.T) {
		start := time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)
		end := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
		_, err := deriveWindow(Request{Start: start, End: end}, nil, now, lookback)
		require.Error(t, err)
	})
}
