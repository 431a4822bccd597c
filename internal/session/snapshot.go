package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/providers"
)

// Snapshot is the JSON mirror of a session written after each committed
// turn. Snapshots exist for operators: plain files that grep and the
// /history/search endpoint can scan without touching the database.
type Snapshot struct {
	SessionID string               `json:"session_id"`
	TeamID    int64                `json:"team_id"`
	UserID    int64                `json:"user_id"`
	Role      string               `json:"role,omitempty"`
	Provider  string               `json:"provider,omitempty"`
	Model     string               `json:"model,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
	Messages  []providers.Message `json:"messages"`
}

// WriteSnapshot atomically replaces the snapshot file for live's session.
func WriteSnapshot(dir string, live *Live) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	snap := Snapshot{
		SessionID: live.ID,
		TeamID:    live.TeamID,
		UserID:    live.UserID,
		Role:      live.Role,
		Provider:  live.Provider,
		Model:     live.Model,
		UpdatedAt: time.Now(),
		Messages:  live.Messages,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+live.ID+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, live.ID+".json"))
}

// SearchHit is one snapshot message matching a search query.
type SearchHit struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// SearchSnapshots scans a team's snapshot files for messages containing
// query (case-insensitive substring). Results are capped at limit.
func SearchSnapshots(dir string, teamID int64, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)

	var hits []SearchHit
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}
		if snap.TeamID != teamID {
			continue
		}
		for _, m := range snap.Messages {
			if strings.Contains(strings.ToLower(m.Content), needle) {
				hits = append(hits, SearchHit{
					SessionID: snap.SessionID,
					Role:      m.Role,
					Content:   excerpt(m.Content, needle),
				})
				if len(hits) >= limit {
					return hits, nil
				}
			}
		}
	}
	return hits, nil
}

// excerpt trims long matches to a window around the first occurrence. The
// window counts runes so multibyte content never gets split mid-character.
func excerpt(content, needle string) string {
	const window = 160
	runes := []rune(content)
	if len(runes) <= window {
		return content
	}
	idx := strings.Index(strings.ToLower(content), needle)
	if idx < 0 {
		idx = 0
	}
	mid := utf8.RuneCountInString(content[:idx])
	start := mid - window/2
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(runes) {
		end = len(runes)
		start = end - window
	}
	out := string(runes[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}
