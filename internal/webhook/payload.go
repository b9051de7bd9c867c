package webhook

import "fmt"

// Payload is the Jellyfin webhook body. Jellyfin's webhook plugin is
// template-driven so field presence varies by configuration; everything
// beyond the event type is optional and validated per use.
type Payload struct {
	Event    string `json:"event"`
	Username string `json:"username"`
	UserID   string `json:"user_id"`

	ItemID   string `json:"item_id"`
	ItemType string `json:"item_type"`
	ItemName string `json:"item_name"`

	SeriesName    string `json:"series_name"`
	SeasonNumber  *int   `json:"season_number"`
	EpisodeNumber *int   `json:"episode_number"`

	PlaybackPositionTicks *int64 `json:"playback_position_ticks"`
	RunTimeTicks          *int64 `json:"run_time_ticks"`

	ProviderIDs map[string]string `json:"provider_ids"`
	Metadata    map[string]any    `json:"metadata"`
}

var handledEvents = map[string]bool{
	"playback.stop":     true,
	"playback.scrobble": true,
	"item.played":       true,
}

// Validate rejects payloads this service will never act on. Unknown events
// and non-episode items are errors so the caller can report them without
// recording ledger noise.
func (p *Payload) Validate() error {
	if !handledEvents[p.Event] {
		return fmt.Errorf("unhandled event type %q", p.Event)
	}
	if p.ItemType != "Episode" {
		return fmt.Errorf("item type %q is not an episode", p.ItemType)
	}
	if p.Username == "" {
		return fmt.Errorf("payload is missing username")
	}
	return nil
}
