package catalog

import (
	"fmt"
	"time"
)

// pathTimeLayout is the compact UTC form used in object-store keys.
const pathTimeLayout = "20060102T150405Z"

// Window is a half-open extraction time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("window bounds are required")
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("window end (%s) must be after start (%s)", w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

// IsEmpty reports whether the window covers no time at all.
func (w Window) IsEmpty() bool {
	return !w.End.After(w.Start)
}

// PathLabel renders the window as "<start>_<end>" in compact UTC, suitable
// for use as a storage partition segment.
func (w Window) PathLabel() string {
	return w.Start.UTC().Format(pathTimeLayout) + "_" + w.End.UTC().Format(pathTimeLayout)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}
