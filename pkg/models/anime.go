package models

import "time"

// Anime is the locally cached copy of MAL catalog metadata. Fields are
// refreshed whenever newer data arrives from the MAL API; a non-null remote
// value overwrites, a missing one leaves the cached value alone.
type Anime struct {
	MALID        int       `json:"mal_id"`
	Title        string    `json:"title"`
	TitleEnglish string    `json:"title_english,omitempty"`
	Synopsis     string    `json:"synopsis,omitempty"`
	Episodes     *int      `json:"episodes,omitempty"` // nil while episode count is unknown (e.g. unaired)
	AiringStatus string    `json:"airing_status,omitempty"`
	AiredFrom    *string   `json:"aired_from,omitempty"` // YYYY-MM-DD
	AiredTo      *string   `json:"aired_to,omitempty"`
	SeasonYear   *int      `json:"season_year,omitempty"`
	SeasonName   string    `json:"season_name,omitempty"` // spring, summer, fall, winter
	Score        *float64  `json:"score,omitempty"`
	Rank         *int      `json:"rank,omitempty"`
	Popularity   *int      `json:"popularity,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}
