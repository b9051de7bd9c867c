package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"animehub/pkg/database"
)

// Imports AniDB-to-MAL mapping rows from a CSV with columns
// anidb_id, mal_id, title, confidence. Rows a user mapped by hand are
// never overwritten.
func main() {
	var (
		in = flag.String("mappings", "data/anidb_mappings.csv", "input CSV path for anidb mappings")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	n, err := importMappings(ctx, db, *in)
	if err != nil {
		log.Fatalf("import mappings failed: %v", err)
	}

	log.Printf("✅ imported %d mappings from %s", n, *in)
}

func importMappings(ctx context.Context, db *sql.DB, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return 0, err
	}

	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO anidb_mappings (anidb_id, mal_id, title, confidence, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'bulk_import', ?, ?)
		ON CONFLICT(anidb_id) DO UPDATE SET
		  mal_id = excluded.mal_id,
		  title = excluded.title,
		  confidence = excluded.confidence,
		  provenance = excluded.provenance,
		  updated_at = excluded.updated_at
		WHERE anidb_mappings.provenance != 'manual'
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	count := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, err
		}
		if len(row) == 0 {
			continue
		}

		rawID := valueAt(header, row, "anidb_id")
		if rawID == "" {
			continue
		}
		anidbID, err := strconv.Atoi(rawID)
		if err != nil || anidbID <= 0 {
			return count, fmt.Errorf("bad anidb_id %q", rawID)
		}

		malID, err := parseNullInt(valueAt(header, row, "mal_id"))
		if err != nil {
			return count, fmt.Errorf("parse mal_id for anidb %d: %w", anidbID, err)
		}

		confidence, err := parseNullFloat(valueAt(header, row, "confidence"))
		if err != nil {
			return count, fmt.Errorf("parse confidence for anidb %d: %w", anidbID, err)
		}
		if confidence.Valid && (confidence.Float64 < 0 || confidence.Float64 > 1) {
			return count, fmt.Errorf("confidence out of range for anidb %d", anidbID)
		}

		now := time.Now().UTC()
		if _, err := stmt.ExecContext(
			ctx,
			anidbID,
			malID,
			nullString(valueAt(header, row, "title")),
			confidence,
			now,
			now,
		); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseNullInt(raw string) (sql.NullInt64, error) {
	if raw == "" {
		return sql.NullInt64{}, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return sql.NullInt64{}, err
	}
	return sql.NullInt64{Int64: n, Valid: true}, nil
}

func parseNullFloat(raw string) (sql.NullFloat64, error) {
	if raw == "" {
		return sql.NullFloat64{}, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return sql.NullFloat64{}, err
	}
	return sql.NullFloat64{Float64: f, Valid: true}, nil
}

func nullString(raw string) sql.NullString {
	if raw == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: raw, Valid: true}
}
