package webhook

import (
	"context"
	"fmt"
	"log"

	"animehub/internal/activity"
	"animehub/internal/auth"
	"animehub/internal/list"
	"animehub/internal/mapping"
	"animehub/pkg/models"
)

// maxReprocessErrors bounds the error detail returned by a reprocess run.
const maxReprocessErrors = 10

// Service turns validated playback events into ledger rows and progress
// updates.
type Service struct {
	Users      *auth.Repo
	Mappings   *mapping.Repo
	Activities *activity.Repo
	Lists      *list.Service
}

// Result reports what happened to one webhook event. Rejections still
// return a Result so the caller can respond 200 with detail; Jellyfin's
// plugin treats non-2xx as a delivery failure and retries.
type Result struct {
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	ActivityID      *int64   `json:"activity_id,omitempty"`
	AniDBID         *int     `json:"anidb_id,omitempty"`
	MALID           *int     `json:"mal_id,omitempty"`
	EpisodesUpdated bool     `json:"episodes_updated"`
	Errors          []string `json:"errors,omitempty"`
}

func failure(msg string, errs ...string) *Result {
	return &Result{Success: false, Message: msg, Errors: errs}
}

// ProcessWebhook runs the full pipeline for one payload: resolve the
// user, extract the external ID, look up the mapping, record the ledger
// row, and apply progress. An unmapped series still gets a placeholder
// mapping and an unprocessed ledger row so it can be replayed once a
// mapping exists.
func (s *Service) ProcessWebhook(ctx context.Context, p *Payload) (*Result, error) {
	if err := p.Validate(); err != nil {
		return failure("webhook rejected", err.Error()), nil
	}

	user, err := s.Users.GetByUsername(ctx, p.Username)
	if err != nil {
		return nil, fmt.Errorf("resolve webhook user: %w", err)
	}
	if user == nil {
		return failure(fmt.Sprintf("no account matches media-server user %q", p.Username)), nil
	}

	anidbID, source, ok := ExtractAniDBID(p)
	if !ok {
		return failure("could not extract an AniDB ID from the payload",
			"no id in provider_ids, metadata, or name pattern"), nil
	}
	log.Printf("[webhook] extracted anidb id %d via %s for user %s", anidbID, source, user.Username)

	progress := ComputeProgress(p)
	act := &models.PlaybackActivity{
		UserID:            user.ID,
		AniDBID:           &anidbID,
		EpisodeNumber:     p.EpisodeNumber,
		WatchedSeconds:    progress.WatchedSeconds,
		TotalSeconds:      progress.TotalSeconds,
		CompletionPercent: progress.CompletionPercent,
		SourceItemID:      p.ItemID,
	}

	malID, err := s.Mappings.Lookup(ctx, anidbID)
	if err != nil {
		return nil, fmt.Errorf("lookup mapping: %w", err)
	}
	if malID == nil {
		title := p.SeriesName
		if title == "" {
			title = p.ItemName
		}
		if cerr := s.Mappings.CreatePlaceholder(ctx, anidbID, title); cerr != nil {
			log.Printf("[webhook] placeholder mapping for anidb %d failed: %v", anidbID, cerr)
		}
		if rerr := s.Activities.Record(ctx, act); rerr != nil {
			return nil, rerr
		}
		res := failure(fmt.Sprintf("no catalog mapping for AniDB ID %d", anidbID),
			"recorded for reprocessing once a mapping exists")
		res.ActivityID = &act.ID
		res.AniDBID = &anidbID
		return res, nil
	}

	act.MALID = malID
	if err := s.Activities.Record(ctx, act); err != nil {
		return nil, err
	}

	if p.EpisodeNumber == nil || *p.EpisodeNumber <= 0 {
		res := failure("payload has no episode number")
		res.ActivityID = &act.ID
		res.AniDBID = &anidbID
		res.MALID = malID
		return res, nil
	}

	applied, err := s.Lists.ApplyEpisodeProgress(ctx, user.ID, *malID, *p.EpisodeNumber, progress.CompletionPercent)
	if err != nil {
		return nil, fmt.Errorf("apply progress: %w", err)
	}

	if err := s.Activities.MarkProcessed(ctx, act.ID); err != nil {
		return nil, err
	}

	return &Result{
		Success:         true,
		Message:         applyMessage(applied, *p.EpisodeNumber),
		ActivityID:      &act.ID,
		AniDBID:         &anidbID,
		MALID:           malID,
		EpisodesUpdated: applied.Advanced,
	}, nil
}

func applyMessage(r *list.ApplyResult, episode int) string {
	switch r.Reason {
	case "below_threshold":
		return "recorded, playback stopped before the completion threshold"
	case "caught_up":
		return fmt.Sprintf("episode %d already counted", episode)
	default:
		if r.Completed {
			return fmt.Sprintf("advanced to episode %d and marked completed", r.Episodes)
		}
		return fmt.Sprintf("advanced to episode %d", r.Episodes)
	}
}

// ReprocessStats summarizes a replay of unprocessed ledger rows.
type ReprocessStats struct {
	Scanned   int      `json:"scanned"`
	Succeeded int      `json:"succeeded"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Reprocess replays up to limit unprocessed activities for a user,
// resolving mappings that have appeared since the original event.
func (s *Service) Reprocess(ctx context.Context, userID string, limit int) (*ReprocessStats, error) {
	acts, err := s.Activities.Unprocessed(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	stats := &ReprocessStats{Scanned: len(acts)}
	addErr := func(format string, args ...any) {
		stats.Failed++
		if len(stats.Errors) < maxReprocessErrors {
			stats.Errors = append(stats.Errors, fmt.Sprintf(format, args...))
		}
	}

	for _, act := range acts {
		malID := act.MALID
		if malID == nil {
			if act.AniDBID == nil {
				stats.Skipped++
				continue
			}
			resolved, err := s.Mappings.Lookup(ctx, *act.AniDBID)
			if err != nil {
				addErr("activity %d: mapping lookup: %v", act.ID, err)
				continue
			}
			if resolved == nil {
				stats.Skipped++
				continue
			}
			malID = resolved
			if err := s.Activities.SetMALID(ctx, act.ID, *malID); err != nil {
				addErr("activity %d: %v", act.ID, err)
				continue
			}
		}

		if act.EpisodeNumber == nil || *act.EpisodeNumber <= 0 {
			stats.Skipped++
			continue
		}

		if _, err := s.Lists.ApplyEpisodeProgress(ctx, act.UserID, *malID, *act.EpisodeNumber, act.CompletionPercent); err != nil {
			addErr("activity %d: apply progress: %v", act.ID, err)
			continue
		}
		if err := s.Activities.MarkProcessed(ctx, act.ID); err != nil {
			addErr("activity %d: %v", act.ID, err)
			continue
		}
		stats.Succeeded++
	}
	return stats, nil
}
