package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTokens is a TokenSource handing out a fixed sequence of tokens.
type stubTokens struct {
	tokens      []string
	next        int
	invalidated int
}

func (s *stubTokens) Token(ctx context.Context) (string, error) {
	if s.next >= len(s.tokens) {
		return s.tokens[len(s.tokens)-1], nil
	}
	tok := s.tokens[s.next]
	return tok, nil
}

func (s *stubTokens) Invalidate() {
	s.invalidated++
	if s.next < len(s.tokens)-1 {
		s.next++
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *stubTokens) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := &stubTokens{tokens: []string{"tok-1", "tok-2"}}
	client, err := NewClient(ClientConfig{
		Logger:    slog.New(slog.DiscardHandler),
		BaseURL:   srv.URL,
		Tokens:    tokens,
		PageLimit: 2,
	})
	require.NoError(t, err)
	return client, tokens
}

func testWindow() Window {
	return Window{
		Start: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestClientListPlays(t *testing.T) {
	ctx := context.Background()

	t.Run("walks pagination across three pages", func(t *testing.T) {
		pages := map[string]string{
			"":   `{"items":[{"play":1}],"next":"c2"}`,
			"c2": `{"items":[{"play":2}],"next":"c3"}`,
			"c3": `{"items":[{"play":3}],"next":""}`,
		}
		var requests int
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			assert.Equal(t, "/v1/plays", r.URL.Path)
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			assert.Equal(t, "2025-11-01T00:00:00Z", r.URL.Query().Get("start"))
			assert.Equal(t, "2025-11-02T00:00:00Z", r.URL.Query().Get("end"))
			body, ok := pages[r.URL.Query().Get("cursor")]
			require.True(t, ok)
			_, _ = w.Write([]byte(body))
		}))

		var records []json.RawMessage
		cursor := ""
		pagesSeen := 0
		for {
			page, err := client.ListPlays(ctx, testWindow(), cursor)
			require.NoError(t, err)
			pagesSeen++
			records = append(records, page.Items...)
			if page.Next == "" {
				break
			}
			cursor = page.Next
		}

		assert.Equal(t, 3, pagesSeen)
		assert.Equal(t, 3, requests)
		require.Len(t, records, 3)
		assert.JSONEq(t, `{"play":1}`, string(records[0]))
		assert.JSONEq(t, `{"play":3}`, string(records[2]))
	})

	t.Run("throttling surfaces as rate limit with backoff", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		}))

		_, err := client.ListPlays(ctx, testWindow(), "")
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindRateLimit, kind)
		assert.Equal(t, 7*time.Second, RetryAfterOf(err))
	})

	t.Run("rejected token is refreshed and retried once", func(t *testing.T) {
		var requests int
		client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			if r.Header.Get("Authorization") != "Bearer tok-2" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"items":[{"play":1}],"next":""}`))
		}))

		page, err := client.ListPlays(ctx, testWindow(), "")
		require.NoError(t, err)
		assert.Len(t, page.Items, 1)
		assert.Equal(t, 2, requests)
		assert.Equal(t, 1, tokens.invalidated)
	})

	t.Run("persistent auth failure surfaces as auth error", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))

		_, err := client.ListPlays(ctx, testWindow(), "")
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindAuth, kind)
	})

	t.Run("server errors are transient", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

		_, err := client.ListPlays(ctx, testWindow(), "")
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindTransientNetwork, kind)
	})

	t.Run("rejects invalid window", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		_, err := client.ListPlays(ctx, Window{}, "")
		require.Error(t, err)
	})
}

func TestClientArtists(t *testing.T) {
	ctx := context.Background()

	t.Run("chunks requests and drops null entries", func(t *testing.T) {
		var chunkSizes []int
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/artists", r.URL.Path)
			ids := strings.Split(r.URL.Query().Get("ids"), ",")
			chunkSizes = append(chunkSizes, len(ids))

			artists := make([]string, 0, len(ids))
			for i, id := range ids {
				if i == 0 && len(chunkSizes) == 1 {
					artists = append(artists, "null")
					continue
				}
				artists = append(artists, fmt.Sprintf(`{"id":%q}`, id))
			}
			_, _ = fmt.Fprintf(w, `{"artists":[%s]}`, strings.Join(artists, ","))
		}))

		ids := make([]string, 120)
		for i := range ids {
			ids[i] = fmt.Sprintf("artist-%03d", i)
		}

		artists, err := client.Artists(ctx, ids)
		require.NoError(t, err)
		assert.Equal(t, []int{50, 50, 20}, chunkSizes)
		assert.Len(t, artists, 119) // one null dropped
	})
}

func TestClientTopTracks(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches tracks for a market", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/artists/artist-1/top-tracks", r.URL.Path)
			assert.Equal(t, "GB", r.URL.Query().Get("market"))
			_, _ = w.Write([]byte(`{"tracks":[{"id":"t1"},{"id":"t2"}]}`))
		}))

		tracks, err := client.TopTracks(ctx, "artist-1", "GB")
		require.NoError(t, err)
		assert.Len(t, tracks, 2)
	})
}
