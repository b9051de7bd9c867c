package mapping

import (
	"context"
	"fmt"
	"log"

	"animehub/internal/anime"
)

// Service layers confidence maintenance over the mapping repo.
type Service struct {
	Mappings *Repo
	Anime    *anime.Repo
}

func NewService(mappings *Repo, animeRepo *anime.Repo) *Service {
	return &Service{Mappings: mappings, Anime: animeRepo}
}

type RefreshStats struct {
	Scanned int      `json:"scanned"`
	Updated int      `json:"updated"`
	Errors  []string `json:"errors,omitempty"`
}

// RefreshConfidence recomputes confidence scores for mapped rows against
// the cached catalog titles. Rows without a cached catalog entry are
// skipped; manual rows are rescored (the score is informational) but their
// provenance and ids are never touched here.
func (s *Service) RefreshConfidence(ctx context.Context, limit int) (*RefreshStats, error) {
	mapped, err := s.Mappings.Mapped(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("refresh confidence: %w", err)
	}

	stats := &RefreshStats{Scanned: len(mapped)}
	for _, m := range mapped {
		if m.Title == "" || m.MALID == nil {
			continue
		}
		catalogTitle, err := s.Anime.TitleByMALID(ctx, *m.MALID)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("anidb %d: %v", m.AniDBID, err))
			continue
		}
		if catalogTitle == "" {
			continue
		}

		score := ConfidenceScore(m.Title, catalogTitle, nil)
		if m.Confidence != nil && *m.Confidence == score {
			continue
		}
		if err := s.Mappings.SetConfidence(ctx, m.AniDBID, score); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("anidb %d: %v", m.AniDBID, err))
			continue
		}
		stats.Updated++
	}

	log.Printf("[mapping] confidence refresh: scanned=%d updated=%d errors=%d",
		stats.Scanned, stats.Updated, len(stats.Errors))
	return stats, nil
}
