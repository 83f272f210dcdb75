package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, requests *int, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*requests++
		assert.Equal(t, http.MethodPost, r.Method)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches and caches token", func(t *testing.T) {
		var requests int
		srv := newTokenServer(t, &requests, http.StatusOK)

		tokens, err := NewClientCredentials(ClientCredentialsConfig{
			TokenURL:     srv.URL,
			ClientID:     "id",
			ClientSecret: "secret",
		})
		require.NoError(t, err)

		tok, err := tokens.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "tok-1", tok)

		_, err = tokens.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, requests)
	})

	t.Run("invalidate forces refetch", func(t *testing.T) {
		var requests int
		srv := newTokenServer(t, &requests, http.StatusOK)

		tokens, err := NewClientCredentials(ClientCredentialsConfig{
			TokenURL:     srv.URL,
			ClientID:     "id",
			ClientSecret: "secret",
		})
		require.NoError(t, err)

		_, err = tokens.Token(ctx)
		require.NoError(t, err)
		tokens.Invalidate()
		_, err = tokens.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, requests)
	})

	t.Run("expired token is refetched", func(t *testing.T) {
		var requests int
		srv := newTokenServer(t, &requests, http.StatusOK)
		clock := clockwork.NewFakeClock()

		tokens, err := NewClientCredentials(ClientCredentialsConfig{
			TokenURL:     srv.URL,
			ClientID:     "id",
			ClientSecret: "secret",
			Clock:        clock,
		})
		require.NoError(t, err)

		_, err = tokens.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, requests)

		clock.Advance(time.Hour)
		_, err = tokens.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, requests)
	})

	t.Run("rejected credentials surface as auth error", func(t *testing.T) {
		var requests int
		srv := newTokenServer(t, &requests, http.StatusUnauthorized)

		tokens, err := NewClientCredentials(ClientCredentialsConfig{
			TokenURL:     srv.URL,
			ClientID:     "id",
			ClientSecret: "secret",
		})
		require.NoError(t, err)

		_, err = tokens.Token(ctx)
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindAuth, kind)
	})

	t.Run("token endpoint outage is transient", func(t *testing.T) {
		var requests int
		srv := newTokenServer(t, &requests, http.StatusBadGateway)

		tokens, err := NewClientCredentials(ClientCredentialsConfig{
			TokenURL:     srv.URL,
			ClientID:     "id",
			ClientSecret: "secret",
		})
		require.NoError(t, err)

		_, err = tokens.Token(ctx)
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindTransientNetwork, kind)
	})

	t.Run("config requires credentials", func(t *testing.T) {
		_, err := NewClientCredentials(ClientCredentialsConfig{TokenURL: "http://localhost"})
		require.Error(t, err)
	})
}
