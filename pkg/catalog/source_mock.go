package catalog

import (
	"context"
	"encoding/json"
)

// MockSource is a Source implementation for testing.
type MockSource struct {
	Records []json.RawMessage
	Errs    []error // consumed one per Fetch call; nil entries mean success
	Calls   int

	// FetchFunc, when set, is invoked on every Fetch after the error queue
	// is consulted. Lets tests mutate external state mid-invocation.
	FetchFunc func(ctx context.Context, w Window) ([]json.RawMessage, error)
}

// NewMockSource creates a MockSource returning the given records.
func NewMockSource(records ...json.RawMessage) *MockSource {
	return &MockSource{Records: records}
}

func (m *MockSource) Fetch(ctx context.Context, w Window) ([]json.RawMessage, error) {
	call := m.Calls
	m.Calls++
	if call < len(m.Errs) && m.Errs[call] != nil {
		return nil, m.Errs[call]
	}
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, w)
	}
	return m.Records, nil
}
