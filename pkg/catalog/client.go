package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// artistChunkSize is the maximum number of artist ids accepted by the
	// catalog's batch artist endpoint per request.
	artistChunkSize = 50

	defaultPageLimit = 200
)

// ClientConfig configures the catalog REST client.
type ClientConfig struct {
	Logger     *slog.Logger
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client // optional
	PageLimit  int          // optional, plays page size
}

func (c *ClientConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if c.Tokens == nil {
		return fmt.Errorf("token source is required")
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.PageLimit <= 0 {
		c.PageLimit = defaultPageLimit
	}
	return nil
}

// Client is a thin REST client for the music-catalog API. Responses are kept
// as opaque raw JSON; schema is enforced downstream, not at extraction.
type Client struct {
	cfg ClientConfig
	log *slog.Logger
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, log: cfg.Logger}, nil
}

// PlaysPage is one page of listening records. An empty Next cursor signals
// end-of-pages.
type PlaysPage struct {
	Items []json.RawMessage `json:"items"`
	Next  string            `json:"next"`
}

// ListPlays fetches one page of listening records for the given window.
// Pass an empty cursor for the first page.
func (c *Client) ListPlays(ctx context.Context, w Window, cursor string) (*PlaysPage, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	q := url.Values{
		"start": {w.Start.UTC().Format(time.RFC3339)},
		"end":   {w.End.UTC().Format(time.RFC3339)},
		"limit": {strconv.Itoa(c.cfg.PageLimit)},
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	body, err := c.get(ctx, "list plays", "/v1/plays", q)
	if err != nil {
		return nil, err
	}

	var page PlaysPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode plays page: %w", err)
	}
	return &page, nil
}

// Artists fetches artist metadata for the given ids, chunked to the
// endpoint's batch limit. Null entries returned by the API are dropped.
func (c *Client) Artists(ctx context.Context, ids []string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for i := 0; i < len(ids); i += artistChunkSize {
		chunk := ids[i:min(i+artistChunkSize, len(ids))]
		q := url.Values{"ids": {strings.Join(chunk, ",")}}

		body, err := c.get(ctx, "get artists", "/v1/artists", q)
		if err != nil {
			return nil, err
		}

		var payload struct {
			Artists []json.RawMessage `json:"artists"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode artists response: %w", err)
		}
		for _, a := range payload.Artists {
			if len(a) == 0 || string(a) == "null" {
				continue
			}
			out = append(out, a)
		}
	}
	return out, nil
}

// TopTracks fetches an artist's top tracks for a market.
func (c *Client) TopTracks(ctx context.Context, artistID, market string) ([]json.RawMessage, error) {
	q := url.Values{}
	if market != "" {
		q.Set("market", market)
	}

	body, err := c.get(ctx, "get top tracks", "/v1/artists/"+url.PathEscape(artistID)+"/top-tracks", q)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Tracks []json.RawMessage `json:"tracks"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode top tracks response: %w", err)
	}
	return payload.Tracks, nil
}

// get performs an authenticated GET. On a 401 it invalidates the cached
// token and retries once with fresh credentials before surfacing AuthError.
func (c *Client) get(ctx context.Context, op, path string, q url.Values) ([]byte, error) {
	body, err := c.doOnce(ctx, op, path, q)
	if kind, ok := KindOf(err); ok && kind == KindAuth {
		c.log.Debug("catalog token rejected, refreshing", "op", op)
		c.cfg.Tokens.Invalidate()
		return c.doOnce(ctx, op, path, q)
	}
	return body, err
}

func (c *Client) doOnce(ctx context.Context, op, path string, q url.Values) ([]byte, error) {
	token, err := c.cfg.Tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransientNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Kind: KindAuth, Op: op, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Kind: KindRateLimit, Op: op, Status: resp.StatusCode, RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout:
		return nil, &Error{Kind: KindTransientNetwork, Op: op, Status: resp.StatusCode}
	default:
		return nil, fmt.Errorf("catalog %s: unexpected status %d", op, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransientNetwork, Op: op, Err: err}
	}
	return body, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
