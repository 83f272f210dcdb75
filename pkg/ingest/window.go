package ingest

import (
	"fmt"
	"time"

	"github.com/pulseworks/artistpulse/pkg/catalog"
	"github.com/pulseworks/artistpulse/pkg/lake"
)

// deriveWindow computes the extraction window for this invocation. Without
// overrides the window is [watermark end, now); the first-ever invocation
// reaches back lookback from now. Explicit overrides (manual backfill) are
// taken as given, both bounds or a single one.
func deriveWindow(req Request, wm *lake.Watermark, now time.Time, lookback time.Duration) (catalog.Window, error) {
	now = now.UTC().Truncate(time.Second)

	start := req.Start
	if start.IsZero() {
		if wm != nil {
			start = wm.WindowEnd
		} else {
			start = now.Add(-lookback)
		}
	}

	end := req.End
	if end.IsZero() {
		end = now
	}

	w := catalog.Window{Start: start.UTC(), End: end.UTC()}
	if w.Start.Equal(w.End) {
		// Nothing new since the last tick; an empty window is a no-op,
		// not an error.
		return w, nil
	}
	if err := w.Validate(); err != nil {
		return catalog.Window{}, fmt.Errorf("invalid extraction window: %w", err)
	}
	return w, nil
}
