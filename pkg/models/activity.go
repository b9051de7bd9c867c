package models

import "time"

// PlaybackActivity is one row of the append-only playback ledger. A row is
// written for every accepted webhook event; only Processed and MALID change
// afterwards (MALID when a mapping is resolved later, Processed once the
// progress has been applied).
type PlaybackActivity struct {
	ID                int64     `json:"id"`
	UserID            string    `json:"user_id"`
	AniDBID           *int      `json:"anidb_id,omitempty"`
	MALID             *int      `json:"mal_id,omitempty"`
	EpisodeNumber     *int      `json:"episode_number,omitempty"`
	WatchedSeconds    *int      `json:"watched_seconds,omitempty"`
	TotalSeconds      *int      `json:"total_seconds,omitempty"`
	CompletionPercent *float64  `json:"completion_percent,omitempty"`
	SourceItemID      string    `json:"source_item_id,omitempty"`
	Processed         bool      `json:"processed"`
	CreatedAt         time.Time `json:"created_at"`
}

type ActivityStats struct {
	Total        int `json:"total"`
	Processed    int `json:"processed"`
	Unprocessed  int `json:"unprocessed"`
	Mapped       int `json:"mapped"`
	Unmapped     int `json:"unmapped"`
	UniqueSeries int `json:"unique_series"`
}
