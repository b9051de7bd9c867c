package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"animehub/pkg/models"
)

type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

const activityColumns = `id, user_id, anidb_id, mal_id, episode_number,
	watched_seconds, total_seconds, completion_percent, source_item_id,
	processed, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*models.PlaybackActivity, error) {
	var a models.PlaybackActivity
	err := row.Scan(&a.ID, &a.UserID, &a.AniDBID, &a.MALID, &a.EpisodeNumber,
		&a.WatchedSeconds, &a.TotalSeconds, &a.CompletionPercent,
		&a.SourceItemID, &a.Processed, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Record appends a playback activity to the ledger and fills in its ID.
func (r *Repo) Record(ctx context.Context, a *models.PlaybackActivity) error {
	a.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO playback_activities (user_id, anidb_id, mal_id, episode_number,
			watched_seconds, total_seconds, completion_percent, source_item_id,
			processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.AniDBID, a.MALID, a.EpisodeNumber,
		a.WatchedSeconds, a.TotalSeconds, a.CompletionPercent, a.SourceItemID,
		a.Processed, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	a.ID = id
	return nil
}

// List returns activities newest first with an optional processed filter.
func (r *Repo) List(ctx context.Context, userID string, processed *bool, limit, offset int) ([]models.PlaybackActivity, int, error) {
	where := `WHERE user_id = ?`
	args := []any{userID}
	if processed != nil {
		where += ` AND processed = ?`
		args = append(args, *processed)
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM playback_activities `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM playback_activities `+where+`
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []models.PlaybackActivity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

// Unprocessed returns the oldest unprocessed activities for a user, the
// order they should be replayed in.
func (r *Repo) Unprocessed(ctx context.Context, userID string, limit int) ([]models.PlaybackActivity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM playback_activities
		 WHERE user_id = ? AND processed = 0
		 ORDER BY created_at ASC, id ASC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed activities: %w", err)
	}
	defer rows.Close()

	var out []models.PlaybackActivity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *Repo) MarkProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE playback_activities SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark activity %d processed: %w", id, err)
	}
	return nil
}

// SetMALID backfills the resolved identifier once a mapping exists.
func (r *Repo) SetMALID(ctx context.Context, id int64, malID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE playback_activities SET mal_id = ? WHERE id = ?`, malID, id)
	if err != nil {
		return fmt.Errorf("set mal id on activity %d: %w", id, err)
	}
	return nil
}

func (r *Repo) Stats(ctx context.Context, userID string) (*models.ActivityStats, error) {
	var s models.ActivityStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN processed = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN processed = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN mal_id IS NOT NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN mal_id IS NULL THEN 1 ELSE 0 END), 0),
		       COUNT(DISTINCT anidb_id)
		FROM playback_activities WHERE user_id = ?`, userID).
		Scan(&s.Total, &s.Processed, &s.Unprocessed, &s.Mapped, &s.Unmapped, &s.UniqueSeries)
	if err != nil {
		return nil, fmt.Errorf("activity stats: %w", err)
	}
	return &s, nil
}
