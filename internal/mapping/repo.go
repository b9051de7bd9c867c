package mapping

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"animehub/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const mappingColumns = `id, anidb_id, mal_id, title, confidence, provenance, created_at, updated_at`

func scanMapping(sc interface{ Scan(...any) error }) (*models.AniDBMapping, error) {
	var (
		m          models.AniDBMapping
		malID      sql.NullInt64
		title      sql.NullString
		confidence sql.NullFloat64
	)
	if err := sc.Scan(&m.ID, &m.AniDBID, &malID, &title, &confidence, &m.Provenance, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if malID.Valid {
		v := int(malID.Int64)
		m.MALID = &v
	}
	m.Title = title.String
	if confidence.Valid {
		v := confidence.Float64
		m.Confidence = &v
	}
	return &m, nil
}

func (r *Repo) Get(ctx context.Context, anidbID int) (*models.AniDBMapping, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+mappingColumns+`
		FROM anidb_mappings
		WHERE anidb_id = ?
	`, anidbID)

	m, err := scanMapping(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get mapping: %w", err)
	}
	return m, nil
}

// Lookup resolves an AniDB id to its MAL id. Returns nil when there is no
// mapping or the mapping is an unmapped placeholder.
func (r *Repo) Lookup(ctx context.Context, anidbID int) (*int, error) {
	m, err := r.Get(ctx, anidbID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	return m.MALID, nil
}

// Create inserts a new mapping and fails if one already exists for the
// AniDB id.
func (r *Repo) Create(ctx context.Context, m models.AniDBMapping) (*models.AniDBMapping, error) {
	if !models.ValidProvenance(m.Provenance) {
		return nil, fmt.Errorf("create mapping: invalid provenance %q", m.Provenance)
	}

	var malID any
	if m.MALID != nil {
		malID = *m.MALID
	}
	var confidence any
	if m.Confidence != nil {
		confidence = *m.Confidence
	}

	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO anidb_mappings (anidb_id, mal_id, title, confidence, provenance)
		VALUES (?, ?, ?, ?, ?)
	`, m.AniDBID, malID, m.Title, confidence, m.Provenance)
	if err != nil {
		return nil, fmt.Errorf("insert mapping: %w", err)
	}
	id, _ := res.LastInsertId()
	m.ID = id
	return r.Get(ctx, m.AniDBID)
}

// UpsertAuto creates or refreshes a mapping from an automated source.
// Rows with manual provenance are left untouched: operator decisions win
// over any automated refresh.
func (r *Repo) UpsertAuto(ctx context.Context, anidbID int, malID *int, title, provenance string) error {
	if !models.ValidProvenance(provenance) {
		return fmt.Errorf("upsert mapping: invalid provenance %q", provenance)
	}

	var mal any
	if malID != nil {
		mal = *malID
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO anidb_mappings (anidb_id, mal_id, title, provenance)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(anidb_id) DO UPDATE SET
			mal_id = excluded.mal_id,
			title = excluded.title,
			provenance = excluded.provenance,
			updated_at = CURRENT_TIMESTAMP
		WHERE anidb_mappings.provenance != 'manual'
	`, anidbID, mal, title, provenance)
	if err != nil {
		return fmt.Errorf("upsert mapping: %w", err)
	}
	return nil
}

// CreatePlaceholder records an unmapped AniDB id sighted by a webhook so an
// operator can triage it later. No-op when any mapping already exists.
func (r *Repo) CreatePlaceholder(ctx context.Context, anidbID int, title string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO anidb_mappings (anidb_id, mal_id, title, provenance)
		VALUES (?, NULL, ?, ?)
		ON CONFLICT(anidb_id) DO NOTHING
	`, anidbID, title, models.ProvenanceWebhookDiscovered)
	if err != nil {
		return fmt.Errorf("create placeholder: %w", err)
	}
	return nil
}

// Update applies a partial edit. Nil fields are left alone; passing a title
// or malID updates them, and provenance switches the trust tier (an operator
// edit typically sets it to manual).
func (r *Repo) Update(ctx context.Context, anidbID int, malID *int, title *string, confidence *float64, provenance *string) (*models.AniDBMapping, error) {
	m, err := r.Get(ctx, anidbID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}

	if malID != nil {
		m.MALID = malID
	}
	if title != nil {
		m.Title = *title
	}
	if confidence != nil {
		m.Confidence = confidence
	}
	if provenance != nil {
		if !models.ValidProvenance(*provenance) {
			return nil, fmt.Errorf("update mapping: invalid provenance %q", *provenance)
		}
		m.Provenance = *provenance
	}

	var mal any
	if m.MALID != nil {
		mal = *m.MALID
	}
	var conf any
	if m.Confidence != nil {
		conf = *m.Confidence
	}

	_, err = r.DB.ExecContext(ctx, `
		UPDATE anidb_mappings
		SET mal_id = ?, title = ?, confidence = ?, provenance = ?, updated_at = CURRENT_TIMESTAMP
		WHERE anidb_id = ?
	`, mal, m.Title, conf, m.Provenance, anidbID)
	if err != nil {
		return nil, fmt.Errorf("update mapping: %w", err)
	}
	return r.Get(ctx, anidbID)
}

// SetConfidence stores a recomputed confidence score without touching
// provenance.
func (r *Repo) SetConfidence(ctx context.Context, anidbID int, confidence float64) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE anidb_mappings
		SET confidence = ?, updated_at = CURRENT_TIMESTAMP
		WHERE anidb_id = ?
	`, confidence, anidbID)
	if err != nil {
		return fmt.Errorf("set confidence: %w", err)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, anidbID int) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM anidb_mappings
		WHERE anidb_id = ?
	`, anidbID)
	if err != nil {
		return false, fmt.Errorf("delete mapping: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) List(ctx context.Context, provenance string, limit, offset int) ([]models.AniDBMapping, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	var countErr error
	if provenance == "" {
		countErr = r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM anidb_mappings`).Scan(&total)
	} else {
		countErr = r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM anidb_mappings WHERE provenance = ?`, provenance).Scan(&total)
	}
	if countErr != nil {
		return nil, 0, fmt.Errorf("count mappings: %w", countErr)
	}

	var rows *sql.Rows
	var err error
	if provenance == "" {
		rows, err = r.DB.QueryContext(ctx, `
			SELECT `+mappingColumns+`
			FROM anidb_mappings
			ORDER BY anidb_id
			LIMIT ? OFFSET ?
		`, limit, offset)
	} else {
		rows, err = r.DB.QueryContext(ctx, `
			SELECT `+mappingColumns+`
			FROM anidb_mappings
			WHERE provenance = ?
			ORDER BY anidb_id
			LIMIT ? OFFSET ?
		`, provenance, limit, offset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	out, err := collectMappings(rows, limit)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Unmapped returns placeholder entries awaiting manual resolution.
func (r *Repo) Unmapped(ctx context.Context, limit int) ([]models.AniDBMapping, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+mappingColumns+`
		FROM anidb_mappings
		WHERE mal_id IS NULL
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unmapped: %w", err)
	}
	defer rows.Close()
	return collectMappings(rows, limit)
}

// Search looks up mappings by id or title. A numeric query matches
// anidb_id/mal_id equality first and returns those hits exclusively when
// any exist; otherwise it falls back to a case-insensitive title substring
// match.
func (r *Repo) Search(ctx context.Context, query string, limit int) ([]models.AniDBMapping, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	if id, err := strconv.Atoi(query); err == nil {
		rows, err := r.DB.QueryContext(ctx, `
			SELECT `+mappingColumns+`
			FROM anidb_mappings
			WHERE anidb_id = ? OR mal_id = ?
			LIMIT ?
		`, id, id, limit)
		if err != nil {
			return nil, fmt.Errorf("search mappings by id: %w", err)
		}
		hits, err := func() ([]models.AniDBMapping, error) {
			defer rows.Close()
			return collectMappings(rows, limit)
		}()
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			return hits, nil
		}
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+mappingColumns+`
		FROM anidb_mappings
		WHERE LOWER(title) LIKE ?
		LIMIT ?
	`, "%"+strings.ToLower(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search mappings by title: %w", err)
	}
	defer rows.Close()
	return collectMappings(rows, limit)
}

func (r *Repo) Stats(ctx context.Context) (*models.MappingStats, error) {
	var s models.MappingStats
	err := r.DB.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(mal_id),
			COUNT(*) - COUNT(mal_id),
			SUM(CASE WHEN provenance = 'manual' THEN 1 ELSE 0 END),
			SUM(CASE WHEN provenance = 'auto' THEN 1 ELSE 0 END),
			SUM(CASE WHEN provenance = 'bulk_import' THEN 1 ELSE 0 END),
			SUM(CASE WHEN provenance = 'webhook_discovered' THEN 1 ELSE 0 END)
		FROM anidb_mappings
	`).Scan(&s.Total, &s.MappedCount, &s.UnmappedCount,
		&s.ManualCount, &s.AutoCount, &s.BulkImportCount, &s.WebhookCount)
	if err != nil {
		return nil, fmt.Errorf("mapping stats: %w", err)
	}

	var avg sql.NullFloat64
	if err := r.DB.QueryRowContext(ctx, `
		SELECT AVG(confidence) FROM anidb_mappings WHERE confidence IS NOT NULL
	`).Scan(&avg); err != nil {
		return nil, fmt.Errorf("mapping stats avg: %w", err)
	}
	if avg.Valid {
		v := math.Round(avg.Float64*100) / 100
		s.AverageConfidence = &v
	}
	return &s, nil
}

// Mapped returns rows that have a MAL id, for confidence recompute passes.
func (r *Repo) Mapped(ctx context.Context, limit int) ([]models.AniDBMapping, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+mappingColumns+`
		FROM anidb_mappings
		WHERE mal_id IS NOT NULL
		ORDER BY anidb_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list mapped: %w", err)
	}
	defer rows.Close()
	return collectMappings(rows, limit)
}

func collectMappings(rows *sql.Rows, capHint int) ([]models.AniDBMapping, error) {
	out := make([]models.AniDBMapping, 0, capHint)
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows mappings: %w", err)
	}
	return out, nil
}
