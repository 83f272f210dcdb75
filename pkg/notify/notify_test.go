package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseworks/artistpulse/pkg/catalog"
)

func testRef() BatchRef {
	return BatchRef{
		Entity: "artists",
		Key:    "bronze/artists/20251101T000000Z_20251102T000000Z/inv-1.json",
		Window: catalog.Window{
			Start: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC),
		},
		InvocationID: "inv-1",
		Records:      3,
	}
}

func TestCloudEventsNotifier(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers a landed-batch event", func(t *testing.T) {
		var (
			gotHeaders http.Header
			gotBody    []byte
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeaders = r.Header.Clone()
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		n, err := NewCloudEventsNotifier(srv.URL, "raw-bucket")
		require.NoError(t, err)
		require.NoError(t, n.Notify(ctx, testRef()))

		assert.Equal(t, EventType, gotHeaders.Get("Ce-Type"))
		assert.Equal(t, "inv-1", gotHeaders.Get("Ce-Id"))
		assert.Equal(t, "artistpulse/ingestd", gotHeaders.Get("Ce-Source"))

		var payload BatchRef
		require.NoError(t, json.Unmarshal(gotBody, &payload))
		assert.Equal(t, "artists", payload.Entity)
		assert.Equal(t, "raw-bucket", payload.Bucket) // filled from notifier default
		assert.Equal(t, testRef().Key, payload.Key)
		assert.Equal(t, 3, payload.Records)
	})

	t.Run("rejected delivery surfaces as an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		n, err := NewCloudEventsNotifier(srv.URL, "raw-bucket")
		require.NoError(t, err)
		require.Error(t, n.Notify(ctx, testRef()))
	})

	t.Run("unreachable target surfaces as an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		n, err := NewCloudEventsNotifier(srv.URL, "raw-bucket")
		require.NoError(t, err)
		require.Error(t, n.Notify(ctx, testRef()))
	})

	t.Run("requires a target", func(t *testing.T) {
		_, err := NewCloudEventsNotifier("", "raw-bucket")
		require.Error(t, err)
	})
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(slog.New(slog.DiscardHandler))
	require.NoError(t, n.Notify(context.Background(), testRef()))
}

func TestMockNotifier(t *testing.T) {
	n := &MockNotifier{}
	require.NoError(t, n.Notify(context.Background(), testRef()))
	require.Len(t, n.Refs, 1)
	assert.Equal(t, "inv-1", n.Refs[0].InvocationID)
}
