package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// RosterArtist is one monitored artist. Market scopes the top-tracks fetch.
type RosterArtist struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Market string `json:"market"`
}

// DefaultRoster is the monitored artist set (global + BR markets).
var DefaultRoster = []RosterArtist{
	{ID: "4iHNK0tOyZPYnBU7nGAgpQ", Name: "Mariah Carey", Market: "GB"},
	{ID: "5lpH0xAS4fVfLkACg9DAuM", Name: "Wham!", Market: "GB"},
	{ID: "4cPHsZM98sKzmV26wlwD2W", Name: "Brenda Lee", Market: "GB"},
	{ID: "1GxkXlMwML1oSg5eLPiAz3", Name: "Michael Bublé", Market: "GB"},
	{ID: "66CXWjxzNUsdJxJ2JdwvnR", Name: "Ariana Grande", Market: "GB"},
	{ID: "0sgV4klGs1Y1dgbBi28JlD", Name: "Simone", Market: "BR"},
	{ID: "7fAKtXSdNInWAIf0jVUz65", Name: "Roberto Carlos", Market: "BR"},
}

// LoadRoster reads a roster from a JSON file of RosterArtist entries.
func LoadRoster(path string) ([]RosterArtist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}
	var roster []RosterArtist
	if err := json.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to decode roster file: %w", err)
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("roster file %s contains no artists", path)
	}
	for i, a := range roster {
		if a.ID == "" {
			return nil, fmt.Errorf("roster entry %d has no id", i)
		}
	}
	return roster, nil
}
