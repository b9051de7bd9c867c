package list

import (
	"context"
	"database/sql"
	"errors"
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

const entryColumns = `user_id, mal_id, status, score, episodes_watched,
	start_date, finish_date, notes, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.ListEntry, error) {
	var e models.ListEntry
	err := row.Scan(&e.UserID, &e.MALID, &e.Status, &e.Score, &e.EpisodesWatched,
		&e.StartDate, &e.FinishDate, &e.Notes, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Get returns the user's entry for a given anime, or nil when the anime is
// not on their list.
func (r *Repo) Get(ctx context.Context, userID string, malID int) (*models.ListEntry, error) {
	return getEntry(ctx, r.db, userID, malID)
}

// GetTx is Get inside an existing transaction, used by the reconciler's
// per-entry read-modify-write.
func (r *Repo) GetTx(ctx context.Context, tx *sql.Tx, userID string, malID int) (*models.ListEntry, error) {
	return getEntry(ctx, tx, userID, malID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getEntry(ctx context.Context, q querier, userID string, malID int) (*models.ListEntry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM user_anime_list WHERE user_id = ? AND mal_id = ?`,
		userID, malID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get list entry: %w", err)
	}
	return entry, nil
}

// Upsert writes the full entry, inserting or replacing the row for
// (user, anime).
func (r *Repo) Upsert(ctx context.Context, e *models.ListEntry) error {
	return upsertEntry(ctx, r.db, e)
}

func (r *Repo) UpsertTx(ctx context.Context, tx *sql.Tx, e *models.ListEntry) error {
	return upsertEntry(ctx, tx, e)
}

func upsertEntry(ctx context.Context, q querier, e *models.ListEntry) error {
	if !models.ValidListStatus(e.Status) {
		return fmt.Errorf("invalid list status %q", e.Status)
	}
	e.UpdatedAt = time.Now().UTC()
	_, err := q.ExecContext(ctx, `
		INSERT INTO user_anime_list (user_id, mal_id, status, score, episodes_watched,
			start_date, finish_date, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, mal_id) DO UPDATE SET
			status = excluded.status,
			score = excluded.score,
			episodes_watched = excluded.episodes_watched,
			start_date = excluded.start_date,
			finish_date = excluded.finish_date,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		e.UserID, e.MALID, e.Status, e.Score, e.EpisodesWatched,
		e.StartDate, e.FinishDate, e.Notes, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert list entry: %w", err)
	}
	return nil
}

// List returns the user's entries, optionally filtered by status, joined
// with catalog titles when present. Newest-updated first.
func (r *Repo) List(ctx context.Context, userID, status string, limit, offset int) ([]EntryWithAnime, int, error) {
	where := `WHERE l.user_id = ?`
	args := []any{userID}
	if status != "" {
		if !models.ValidListStatus(status) {
			return nil, 0, fmt.Errorf("invalid list status %q", status)
		}
		where += ` AND l.status = ?`
		args = append(args, status)
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_anime_list l `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count list entries: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT l.user_id, l.mal_id, l.status, l.score, l.episodes_watched,
		       l.start_date, l.finish_date, l.notes, l.updated_at,
		       COALESCE(a.title, ''), a.episodes, COALESCE(a.image_url, '')
		FROM user_anime_list l
		LEFT JOIN anime a ON a.mal_id = l.mal_id
		`+where+`
		ORDER BY l.updated_at DESC
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []EntryWithAnime
	for rows.Next() {
		var e EntryWithAnime
		err := rows.Scan(&e.UserID, &e.MALID, &e.Status, &e.Score, &e.EpisodesWatched,
			&e.StartDate, &e.FinishDate, &e.Notes, &e.UpdatedAt,
			&e.Title, &e.TotalEpisodes, &e.ImageURL)
		if err != nil {
			return nil, 0, fmt.Errorf("scan list entry: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// EntryWithAnime is a list row decorated with catalog fields for display.
type EntryWithAnime struct {
	models.ListEntry
	Title         string `json:"title"`
	TotalEpisodes *int   `json:"total_episodes"`
	ImageURL      string `json:"image_url"`
}

func (r *Repo) Delete(ctx context.Context, userID string, malID int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_anime_list WHERE user_id = ? AND mal_id = ?`, userID, malID)
	if err != nil {
		return false, fmt.Errorf("delete list entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete list entry: %w", err)
	}
	return n > 0, nil
}
