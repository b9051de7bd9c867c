package list

import (
	"context"
	"fmt"
	"log"
	"time"

	"animehub/internal/anime"
	"animehub/internal/auth"
	"animehub/internal/events"
	"animehub/internal/mal"
	"animehub/pkg/models"
)

// completionThreshold is the minimum playback completion percent for a
// stop event to count as "watched".
const completionThreshold = 80.0

// Service owns list mutations: local progress application plus best-effort
// pushes to MAL. The MAL client may be nil, in which case remote pushes
// are skipped entirely.
type Service struct {
	Lists *Repo
	Anime *anime.Repo
	Users *auth.Repo
	MAL   *mal.Client
	Hub   *events.Hub
}

// ApplyResult reports what a progress application did.
type ApplyResult struct {
	Advanced  bool   `json:"advanced"`
	Created   bool   `json:"created"`
	Completed bool   `json:"completed"`
	Reason    string `json:"reason"`
	Episodes  int    `json:"episodes_watched"`
}

// ApplyEpisodeProgress records that the user watched an episode. Progress
// only ever moves forward: an episode at or below the current count is a
// no-op, which makes webhook replays idempotent. A nil completion percent
// is treated as watched (no runtime data to say otherwise).
func (s *Service) ApplyEpisodeProgress(ctx context.Context, userID string, malID, episode int, completionPercent *float64) (*ApplyResult, error) {
	if episode <= 0 {
		return nil, fmt.Errorf("invalid episode number %d", episode)
	}

	entry, err := s.Lists.Get(ctx, userID, malID)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{}
	if entry == nil {
		// Starting a show puts it on the list right away, even when the
		// playback below won't count as watched.
		entry = &models.ListEntry{
			UserID:          userID,
			MALID:           malID,
			Status:          models.StatusWatching,
			EpisodesWatched: 0,
		}
		today := time.Now().UTC().Format("2006-01-02")
		entry.StartDate = &today
		if err := s.Lists.Upsert(ctx, entry); err != nil {
			return nil, err
		}
		result.Created = true
	}

	if completionPercent != nil && *completionPercent < completionThreshold {
		result.Reason = "below_threshold"
		result.Episodes = entry.EpisodesWatched
		return result, nil
	}

	if episode <= entry.EpisodesWatched {
		result.Reason = "caught_up"
		result.Episodes = entry.EpisodesWatched
		return result, nil
	}

	entry.EpisodesWatched = episode
	if entry.Status == models.StatusPlanToWatch || entry.Status == models.StatusOnHold {
		entry.Status = models.StatusWatching
	}

	// Flip to completed when the catalog knows the episode count and we
	// just reached it.
	catalog, err := s.Anime.GetByMALID(ctx, malID)
	if err != nil {
		return nil, err
	}
	if catalog != nil && catalog.Episodes != nil && *catalog.Episodes > 0 && episode >= *catalog.Episodes {
		entry.Status = models.StatusCompleted
		entry.EpisodesWatched = *catalog.Episodes
		if entry.FinishDate == nil {
			today := time.Now().UTC().Format("2006-01-02")
			entry.FinishDate = &today
		}
		result.Completed = true
	}

	if err := s.Lists.Upsert(ctx, entry); err != nil {
		return nil, err
	}

	result.Advanced = true
	result.Reason = "advanced"
	result.Episodes = entry.EpisodesWatched

	s.publish(events.TypeProgressUpdate, userID, malID, entry)
	s.pushRemote(ctx, userID, entry)

	return result, nil
}

// UpdateEntry validates and writes a full entry from an API request, then
// pushes to MAL best-effort.
func (s *Service) UpdateEntry(ctx context.Context, e *models.ListEntry) error {
	if !models.ValidListStatus(e.Status) {
		return fmt.Errorf("invalid list status %q", e.Status)
	}
	if e.Score != nil && (*e.Score < 0 || *e.Score > 10) {
		return fmt.Errorf("score must be between 0 and 10")
	}
	if e.EpisodesWatched < 0 {
		return fmt.Errorf("episodes watched cannot be negative")
	}
	if err := s.Lists.Upsert(ctx, e); err != nil {
		return err
	}
	s.publish(events.TypeListUpdate, e.UserID, e.MALID, e)
	s.pushRemote(ctx, e.UserID, e)
	return nil
}

// DeleteEntry removes the local row and attempts the remote delete. A
// failed remote delete is logged, not returned: the local list is the
// source of truth for deletions.
func (s *Service) DeleteEntry(ctx context.Context, userID string, malID int) (bool, error) {
	deleted, err := s.Lists.Delete(ctx, userID, malID)
	if err != nil || !deleted {
		return deleted, err
	}

	s.publish(events.TypeListUpdate, userID, malID, nil)

	if s.MAL != nil {
		if token, terr := s.token(ctx, userID); terr == nil {
			if derr := s.MAL.DeleteAnimeListItem(ctx, token, malID); derr != nil {
				log.Printf("[list] remote delete of anime %d failed for user %s: %v", malID, userID, derr)
			}
		}
	}
	return true, nil
}

func (s *Service) token(ctx context.Context, userID string) (string, error) {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", fmt.Errorf("user %s not found", userID)
	}
	return s.MAL.EnsureValidToken(ctx, user)
}

// pushRemote mirrors the local entry to MAL. Failures are logged and
// swallowed so a MAL outage never blocks local progress.
func (s *Service) pushRemote(ctx context.Context, userID string, e *models.ListEntry) {
	if s.MAL == nil {
		return
	}
	token, err := s.token(ctx, userID)
	if err != nil {
		log.Printf("[list] skipping remote push for user %s: %v", userID, err)
		return
	}

	upd := mal.ListStatusUpdate{
		Status:             &e.Status,
		NumWatchedEpisodes: &e.EpisodesWatched,
		StartDate:          e.StartDate,
		FinishDate:         e.FinishDate,
	}
	if e.Score != nil {
		upd.Score = e.Score
	}
	if _, err := s.MAL.UpdateAnimeListStatus(ctx, token, e.MALID, upd); err != nil {
		log.Printf("[list] remote push of anime %d failed for user %s: %v", e.MALID, userID, err)
	}
}

// publish broadcasts a progress or list event. A nil entry announces a
// removal: status and episode count stay zero-valued.
func (s *Service) publish(eventType, userID string, malID int, e *models.ListEntry) {
	if s.Hub == nil {
		return
	}
	ev := events.ProgressEvent{
		Type:   eventType,
		UserID: userID,
		MALID:  malID,
	}
	if e != nil {
		ev.Status = e.Status
		ev.EpisodesWatched = e.EpisodesWatched
	}
	s.Hub.Broadcast(ev)
}
