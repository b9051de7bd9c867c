package anime

import (
	"context"
	"database/sql"
	"fmt"

	"animehub/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const animeColumns = `mal_id, title, title_english, synopsis, episodes, airing_status,
	aired_from, aired_to, season_year, season_name, score, rank, popularity, image_url, updated_at`

func (r *Repo) GetByMALID(ctx context.Context, malID int) (*models.Anime, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+animeColumns+`
		FROM anime
		WHERE mal_id = ?
	`, malID)

	var (
		a            models.Anime
		titleEnglish sql.NullString
		synopsis     sql.NullString
		episodes     sql.NullInt64
		airingStatus sql.NullString
		airedFrom    sql.NullString
		airedTo      sql.NullString
		seasonYear   sql.NullInt64
		seasonName   sql.NullString
		score        sql.NullFloat64
		rank         sql.NullInt64
		popularity   sql.NullInt64
		imageURL     sql.NullString
	)
	if err := row.Scan(
		&a.MALID, &a.Title, &titleEnglish, &synopsis, &episodes, &airingStatus,
		&airedFrom, &airedTo, &seasonYear, &seasonName, &score, &rank, &popularity,
		&imageURL, &a.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get anime: %w", err)
	}

	a.TitleEnglish = titleEnglish.String
	a.Synopsis = synopsis.String
	if episodes.Valid {
		v := int(episodes.Int64)
		a.Episodes = &v
	}
	a.AiringStatus = airingStatus.String
	if airedFrom.Valid {
		v := airedFrom.String
		a.AiredFrom = &v
	}
	if airedTo.Valid {
		v := airedTo.String
		a.AiredTo = &v
	}
	if seasonYear.Valid {
		v := int(seasonYear.Int64)
		a.SeasonYear = &v
	}
	a.SeasonName = seasonName.String
	if score.Valid {
		v := score.Float64
		a.Score = &v
	}
	if rank.Valid {
		v := int(rank.Int64)
		a.Rank = &v
	}
	if popularity.Valid {
		v := int(popularity.Int64)
		a.Popularity = &v
	}
	a.ImageURL = imageURL.String
	return &a, nil
}

func (r *Repo) TitleByMALID(ctx context.Context, malID int) (string, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT title FROM anime WHERE mal_id = ?`, malID)
	var title string
	if err := row.Scan(&title); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("get anime title: %w", err)
	}
	return title, nil
}

// UpsertFromRemote merges a remote snapshot into the cache inside tx.
// Remote values overwrite only when present: empty strings and nil numbers
// leave the cached column alone. Returns true when the row was created.
func (r *Repo) UpsertFromRemote(ctx context.Context, tx *sql.Tx, remote models.Anime) (bool, error) {
	existing, err := r.getForUpdate(ctx, tx, remote.MALID)
	if err != nil {
		return false, err
	}

	created := existing == nil
	if existing == nil {
		existing = &models.Anime{MALID: remote.MALID}
	}
	mergeAnime(existing, remote)

	if existing.Title == "" {
		return false, fmt.Errorf("upsert anime %d: no title", remote.MALID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO anime (mal_id, title, title_english, synopsis, episodes, airing_status,
			aired_from, aired_to, season_year, season_name, score, rank, popularity, image_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(mal_id) DO UPDATE SET
			title = excluded.title,
			title_english = excluded.title_english,
			synopsis = excluded.synopsis,
			episodes = excluded.episodes,
			airing_status = excluded.airing_status,
			aired_from = excluded.aired_from,
			aired_to = excluded.aired_to,
			season_year = excluded.season_year,
			season_name = excluded.season_name,
			score = excluded.score,
			rank = excluded.rank,
			popularity = excluded.popularity,
			image_url = excluded.image_url,
			updated_at = CURRENT_TIMESTAMP
	`, existing.MALID, existing.Title, existing.TitleEnglish, existing.Synopsis,
		nullableInt(existing.Episodes), existing.AiringStatus,
		nullableStr(existing.AiredFrom), nullableStr(existing.AiredTo),
		nullableInt(existing.SeasonYear), existing.SeasonName,
		nullableFloat(existing.Score), nullableInt(existing.Rank), nullableInt(existing.Popularity),
		existing.ImageURL)
	if err != nil {
		return false, fmt.Errorf("upsert anime %d: %w", remote.MALID, err)
	}
	return created, nil
}

func (r *Repo) getForUpdate(ctx context.Context, tx *sql.Tx, malID int) (*models.Anime, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT mal_id, title, title_english, synopsis, episodes, airing_status,
			aired_from, aired_to, season_year, season_name, score, rank, popularity, image_url
		FROM anime
		WHERE mal_id = ?
	`, malID)

	var (
		a            models.Anime
		titleEnglish sql.NullString
		synopsis     sql.NullString
		episodes     sql.NullInt64
		airingStatus sql.NullString
		airedFrom    sql.NullString
		airedTo      sql.NullString
		seasonYear   sql.NullInt64
		seasonName   sql.NullString
		score        sql.NullFloat64
		rank         sql.NullInt64
		popularity   sql.NullInt64
		imageURL     sql.NullString
	)
	if err := row.Scan(
		&a.MALID, &a.Title, &titleEnglish, &synopsis, &episodes, &airingStatus,
		&airedFrom, &airedTo, &seasonYear, &seasonName, &score, &rank, &popularity, &imageURL,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get anime in tx: %w", err)
	}
	a.TitleEnglish = titleEnglish.String
	a.Synopsis = synopsis.String
	if episodes.Valid {
		v := int(episodes.Int64)
		a.Episodes = &v
	}
	a.AiringStatus = airingStatus.String
	if airedFrom.Valid {
		v := airedFrom.String
		a.AiredFrom = &v
	}
	if airedTo.Valid {
		v := airedTo.String
		a.AiredTo = &v
	}
	if seasonYear.Valid {
		v := int(seasonYear.Int64)
		a.SeasonYear = &v
	}
	a.SeasonName = seasonName.String
	if score.Valid {
		v := score.Float64
		a.Score = &v
	}
	if rank.Valid {
		v := int(rank.Int64)
		a.Rank = &v
	}
	if popularity.Valid {
		v := int(popularity.Int64)
		a.Popularity = &v
	}
	a.ImageURL = imageURL.String
	return &a, nil
}

func mergeAnime(base *models.Anime, incoming models.Anime) {
	if incoming.Title != "" {
		base.Title = incoming.Title
	}
	if incoming.TitleEnglish != "" {
		base.TitleEnglish = incoming.TitleEnglish
	}
	if incoming.Synopsis != "" {
		base.Synopsis = incoming.Synopsis
	}
	if incoming.Episodes != nil {
		base.Episodes = incoming.Episodes
	}
	if incoming.AiringStatus != "" {
		base.AiringStatus = incoming.AiringStatus
	}
	if incoming.AiredFrom != nil {
		base.AiredFrom = incoming.AiredFrom
	}
	if incoming.AiredTo != nil {
		base.AiredTo = incoming.AiredTo
	}
	if incoming.SeasonYear != nil {
		base.SeasonYear = incoming.SeasonYear
	}
	if incoming.SeasonName != "" {
		base.SeasonName = incoming.SeasonName
	}
	if incoming.Score != nil {
		base.Score = incoming.Score
	}
	if incoming.Rank != nil {
		base.Rank = incoming.Rank
	}
	if incoming.Popularity != nil {
		base.Popularity = incoming.Popularity
	}
	if incoming.ImageURL != "" {
		base.ImageURL = incoming.ImageURL
	}
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
