package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"animehub/internal/anime"
	"animehub/internal/auth"
	"animehub/internal/events"
	"animehub/internal/list"
	"animehub/internal/mal"
	"animehub/pkg/models"
)

const (
	pageSize  = 100
	batchSize = 100

	// skipWindow suppresses back-to-back runs unless force is set.
	skipWindow = time.Hour

	maxFetchRetries = 5
	fetchRetryDelay = 2 * time.Second
)

// Service reconciles the remote MAL list into local state. One run:
// fetch the complete remote list, then merge it batch by batch under
// per-entry transactions.
type Service struct {
	DB    *sql.DB
	Users *auth.Repo
	Anime *anime.Repo
	Lists *list.Repo
	MAL   *mal.Client
	Hub   *events.Hub

	// fetchDelay, when non-zero, replaces fetchRetryDelay between page
	// retries.
	fetchDelay time.Duration
}

// RunStats counts what a reconciliation run did.
type RunStats struct {
	Skipped           bool     `json:"skipped"`
	TotalRemote       int      `json:"total_remote"`
	EntriesCreated    int      `json:"entries_created"`
	EntriesUpdated    int      `json:"entries_updated"`
	CatalogCreated    int      `json:"catalog_created"`
	ConflictsResolved int      `json:"conflicts_resolved"`
	EntryErrors       int      `json:"entry_errors"`
	Errors            []string `json:"errors,omitempty"`
	Duration          string   `json:"duration"`
}

// SyncUser runs one full reconciliation for a user. Unrecoverable errors
// (auth failure, fetch retry exhaustion) return an error; per-entry
// failures are rolled back, counted, and skipped.
func (s *Service) SyncUser(ctx context.Context, userID string, force bool) (*RunStats, error) {
	started := time.Now()
	stats := &RunStats{}

	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	if !force && user.LastMALSync != nil && time.Since(*user.LastMALSync) < skipWindow {
		stats.Skipped = true
		stats.Duration = time.Since(started).String()
		return stats, nil
	}

	// Auth is checked before any list traffic so a dead token fails the
	// run immediately instead of mid-batch.
	token, err := s.MAL.EnsureValidToken(ctx, user)
	if err != nil {
		var authErr *mal.AuthError
		if errors.As(err, &authErr) {
			return nil, fmt.Errorf("sync aborted: %w", err)
		}
		return nil, err
	}

	remote, err := s.fetchCompleteList(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("fetch remote list: %w", err)
	}
	stats.TotalRemote = len(remote)

	for start := 0; start < len(remote); start += batchSize {
		end := start + batchSize
		if end > len(remote) {
			end = len(remote)
		}
		for _, entry := range remote[start:end] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := s.reconcileOne(ctx, userID, entry, stats); err != nil {
				stats.EntryErrors++
				if len(stats.Errors) < 10 {
					stats.Errors = append(stats.Errors, fmt.Sprintf("anime %d: %v", entry.Node.ID, err))
				}
				log.Printf("[sync] entry %d failed for user %s: %v", entry.Node.ID, userID, err)
			}
		}
	}

	if err := s.Users.SetLastMALSync(ctx, userID, time.Now().UTC()); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(started).String()
	log.Printf("[sync] user %s: %d remote entries, %d created, %d updated, %d conflicts, %d errors in %s",
		userID, stats.TotalRemote, stats.EntriesCreated, stats.EntriesUpdated,
		stats.ConflictsResolved, stats.EntryErrors, stats.Duration)
	return stats, nil
}

// fetchCompleteList pages through the remote list until a short page.
// Transient page errors get a bounded retry; exhaustion aborts the run.
func (s *Service) fetchCompleteList(ctx context.Context, token string) ([]mal.AnimeListEntry, error) {
	var all []mal.AnimeListEntry
	offset := 0
	retries := 0

	delay := fetchRetryDelay
	if s.fetchDelay > 0 {
		delay = s.fetchDelay
	}

	for {
		page, err := s.MAL.GetUserAnimeList(ctx, token, "", pageSize, offset)
		if err != nil {
			var authErr *mal.AuthError
			if errors.As(err, &authErr) {
				return nil, err
			}
			retries++
			if retries > maxFetchRetries {
				return nil, fmt.Errorf("page at offset %d: retries exhausted: %w", offset, err)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		all = append(all, page.Data...)
		if len(page.Data) < pageSize || page.Paging.Next == "" {
			return all, nil
		}
		offset += pageSize
	}
}

// reconcileOne merges a single remote entry inside its own transaction so
// a bad entry rolls back alone.
func (s *Service) reconcileOne(ctx context.Context, userID string, entry mal.AnimeListEntry, stats *RunStats) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	created, err := s.Anime.UpsertFromRemote(ctx, tx, entry.Node.ToModel())
	if err != nil {
		return err
	}
	if created {
		stats.CatalogCreated++
	}

	local, err := s.Lists.GetTx(ctx, tx, userID, entry.Node.ID)
	if err != nil {
		return err
	}

	if local == nil {
		merged := remoteToEntry(userID, entry)
		if err := s.Lists.UpsertTx(ctx, tx, merged); err != nil {
			return err
		}
		stats.EntriesCreated++
		return tx.Commit()
	}

	conflicts := mergeEntry(local, entry.ListStatus)
	if conflicts == 0 {
		return tx.Commit()
	}
	if err := s.Lists.UpsertTx(ctx, tx, local); err != nil {
		return err
	}
	stats.EntriesUpdated++
	stats.ConflictsResolved += conflicts
	return tx.Commit()
}

func remoteToEntry(userID string, entry mal.AnimeListEntry) *models.ListEntry {
	rs := entry.ListStatus
	e := &models.ListEntry{
		UserID:          userID,
		MALID:           entry.Node.ID,
		Status:          normalizeStatus(rs.Status),
		EpisodesWatched: rs.NumEpisodesWatched,
		Notes:           rs.Comments,
	}
	if rs.Score > 0 {
		score := rs.Score
		e.Score = &score
	}
	if d, ok := parseDate(rs.StartDate); ok {
		e.StartDate = &d
	}
	if d, ok := parseDate(rs.FinishDate); ok {
		e.FinishDate = &d
	}
	return e
}

// mergeEntry applies the field-level conflict rules, mutating local in
// place, and returns the number of fields changed. Remote is generally
// authoritative; local wins only where it holds uncontested extra
// information (higher episode count, a note, a score the remote lacks).
func mergeEntry(local *models.ListEntry, remote mal.ListStatus) int {
	conflicts := 0

	if st := normalizeStatus(remote.Status); st != "" && st != local.Status {
		local.Status = st
		conflicts++
	}

	if remote.Score > 0 && (local.Score == nil || *local.Score != remote.Score) {
		score := remote.Score
		local.Score = &score
		conflicts++
	}

	if remote.NumEpisodesWatched > local.EpisodesWatched {
		local.EpisodesWatched = remote.NumEpisodesWatched
		conflicts++
	}

	if d, ok := parseDate(remote.StartDate); ok && (local.StartDate == nil || *local.StartDate != d) {
		local.StartDate = &d
		conflicts++
	}
	if d, ok := parseDate(remote.FinishDate); ok && (local.FinishDate == nil || *local.FinishDate != d) {
		local.FinishDate = &d
		conflicts++
	}

	if remote.Comments != "" && local.Notes == "" {
		local.Notes = remote.Comments
		conflicts++
	}

	return conflicts
}

func normalizeStatus(s string) string {
	if models.ValidListStatus(s) {
		return s
	}
	return ""
}

func parseDate(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return "", false
	}
	return s, true
}

// SyncAllUsers runs a reconciliation for every user with linked tokens.
// Per-user failures are logged and do not stop the pass.
func (s *Service) SyncAllUsers(ctx context.Context, force bool) map[string]*RunStats {
	out := make(map[string]*RunStats)

	users, err := s.Users.ListUsersWithMALTokens(ctx)
	if err != nil {
		log.Printf("[sync] listing linked users failed: %v", err)
		return out
	}

	for _, u := range users {
		stats, err := s.SyncUser(ctx, u.ID, force)
		if err != nil {
			log.Printf("[sync] user %s failed: %v", u.ID, err)
			out[u.ID] = &RunStats{Errors: []string{err.Error()}}
			continue
		}
		out[u.ID] = stats
	}
	return out
}
