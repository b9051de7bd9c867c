package models

import "time"

const (
	StatusWatching    = "watching"
	StatusCompleted   = "completed"
	StatusOnHold      = "on_hold"
	StatusDropped     = "dropped"
	StatusPlanToWatch = "plan_to_watch"
)

func ValidListStatus(s string) bool {
	switch s {
	case StatusWatching, StatusCompleted, StatusOnHold, StatusDropped, StatusPlanToWatch:
		return true
	}
	return false
}

// ListEntry is a user's per-anime watch state, unique per (user, MAL id).
// It is the entity under contention between local edits, webhook-driven
// progress, and MAL reconciliation; episodes_watched never regresses under
// automated writes.
type ListEntry struct {
	UserID          string    `json:"user_id"`
	MALID           int       `json:"mal_id"`
	Status          string    `json:"status"`
	Score           *int      `json:"score,omitempty"` // 0-10
	EpisodesWatched int       `json:"episodes_watched"`
	StartDate       *string   `json:"start_date,omitempty"` // YYYY-MM-DD
	FinishDate      *string   `json:"finish_date,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}
