package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Source produces the full raw record set for an extraction window. A fresh
// Fetch with the same window reproduces the same logical set, modulo
// late-arriving source data.
type Source interface {
	Fetch(ctx context.Context, w Window) ([]json.RawMessage, error)
}

// HTTPSourceConfig configures the REST-backed source.
type HTTPSourceConfig struct {
	Logger *slog.Logger
	Client *Client
	Roster []RosterArtist

	// MaxConcurrency bounds concurrent per-artist top-track fetches.
	MaxConcurrency int
}

func (c *HTTPSourceConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Client == nil {
		return fmt.Errorf("client is required")
	}
	if len(c.Roster) == 0 {
		c.Roster = DefaultRoster
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 4
	}
	return nil
}

// HTTPSource implements Source against the catalog REST API. A fetch walks
// the paginated plays listing for the window, then enriches the batch with
// roster artist metadata and per-artist top tracks.
type HTTPSource struct {
	cfg HTTPSourceConfig
	log *slog.Logger
}

func NewHTTPSource(cfg HTTPSourceConfig) (*HTTPSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &HTTPSource{cfg: cfg, log: cfg.Logger}, nil
}

func (s *HTTPSource) Fetch(ctx context.Context, w Window) ([]json.RawMessage, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	records, err := s.fetchPlays(ctx, w)
	if err != nil {
		return nil, err
	}
	s.log.Debug("fetched plays", "window", w.String(), "records", len(records))

	artists, err := s.fetchArtists(ctx)
	if err != nil {
		return nil, err
	}
	records = append(records, artists...)

	tracks, err := s.fetchTopTracks(ctx)
	if err != nil {
		return nil, err
	}
	records = append(records, tracks...)

	s.log.Info("extraction complete", "window", w.String(), "plays", len(records)-len(artists)-len(tracks), "artists", len(artists), "tracks", len(tracks))
	return records, nil
}

// fetchPlays walks pagination until the API signals no more pages. Page
// order does not matter to the batch; the union of page items does.
func (s *HTTPSource) fetchPlays(ctx context.Context, w Window) ([]json.RawMessage, error) {
	var records []json.RawMessage
	cursor := ""
	for {
		page, err := s.cfg.Client.ListPlays(ctx, w, cursor)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Items...)
		if page.Next == "" {
			return records, nil
		}
		cursor = page.Next
	}
}

// fetchArtists fetches roster artist metadata and tags each record with the
// roster's market, since the API response does not carry it.
func (s *HTTPSource) fetchArtists(ctx context.Context) ([]json.RawMessage, error) {
	ids := make([]string, 0, len(s.cfg.Roster))
	markets := make(map[string]string, len(s.cfg.Roster))
	for _, a := range s.cfg.Roster {
		ids = append(ids, a.ID)
		markets[a.ID] = a.Market
	}

	raw, err := s.cfg.Client.Artists(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]json.RawMessage, 0, len(raw))
	for _, r := range raw {
		tagged, err := tagMarket(r, markets)
		if err != nil {
			s.log.Warn("skipping malformed artist record", "error", err)
			continue
		}
		out = append(out, tagged)
	}
	return out, nil
}

func tagMarket(record json.RawMessage, markets map[string]string) (json.RawMessage, error) {
	var fields map[string]any
	if err := json.Unmarshal(record, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode artist record: %w", err)
	}
	if id, ok := fields["id"].(string); ok {
		if market, ok := markets[id]; ok && market != "" {
			fields["market"] = market
		}
	}
	return json.Marshal(fields)
}

// fetchTopTracks fetches top tracks per roster artist with bounded
// concurrency. Ordering among artists is irrelevant to the batch.
func (s *HTTPSource) fetchTopTracks(ctx context.Context) ([]json.RawMessage, error) {
	var (
		mu  sync.Mutex
		out []json.RawMessage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)

	for _, artist := range s.cfg.Roster {
		g.Go(func() error {
			tracks, err := s.cfg.Client.TopTracks(gctx, artist.ID, artist.Market)
			if err != nil {
				return fmt.Errorf("failed to fetch top tracks for artist %s: %w", artist.ID, err)
			}
			mu.Lock()
			out = append(out, tracks...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
