package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	TokenVersion int

	// MyAnimeList OAuth credentials
	MALAccessToken    string
	MALRefreshToken   string
	MALTokenExpiresAt *time.Time
	LastMALSync       *time.Time

	CreatedAt time.Time
}

// HasMALTokens reports whether the user has linked a MAL account.
func (u *User) HasMALTokens() bool {
	return u.MALAccessToken != "" && u.MALRefreshToken != ""
}

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const userColumns = `id, username, email, password_hash, token_version,
	mal_access_token, mal_refresh_token, mal_token_expires_at, last_mal_sync, created_at`

func scanUser(row *sql.Row) (*User, error) {
	var (
		u         User
		access    sql.NullString
		refresh   sql.NullString
		expiresAt sql.NullTime
		lastSync  sql.NullTime
	)
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.TokenVersion,
		&access, &refresh, &expiresAt, &lastSync, &u.CreatedAt,
	); err != nil {
		return nil, err
	}
	u.MALAccessToken = access.String
	u.MALRefreshToken = refresh.String
	if expiresAt.Valid {
		t := expiresAt.Time
		u.MALTokenExpiresAt = &t
	}
	if lastSync.Valid {
		t := lastSync.Time
		u.LastMALSync = &t
	}
	return &u, nil
}

func (r *Repo) CreateUser(ctx context.Context, u User) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash)
		VALUES (?, ?, ?, ?)
	`, u.ID, u.Username, u.Email, u.PasswordHash)

	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = ?
	`, email)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get by email: %w", err)
	}
	return u, nil
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username = ?
	`, username)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get by username: %w", err)
	}
	return u, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*User, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = ?
	`, id)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get by id: %w", err)
	}
	return u, nil
}

func (r *Repo) GetTokenVersion(ctx context.Context, id string) (int, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT token_version
		FROM users
		WHERE id = ?
	`, id)

	var version int
	if err := row.Scan(&version); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("get token version: %w", err)
	}
	return version, nil
}

func (r *Repo) UpdatePasswordAndBumpTokenVersion(ctx context.Context, id string, passwordHash string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE users
		SET password_hash = ?, token_version = token_version + 1
		WHERE id = ?
	`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update password: user not found")
	}
	return nil
}

func (r *Repo) BumpTokenVersion(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE users
		SET token_version = token_version + 1
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("bump token version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bump token version rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("bump token version: user not found")
	}
	return nil
}

// StoreMALTokens persists a fresh MAL token pair, typically after the OAuth
// code exchange or a transparent refresh mid-request.
func (r *Repo) StoreMALTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE users
		SET mal_access_token = ?, mal_refresh_token = ?, mal_token_expires_at = ?
		WHERE id = ?
	`, accessToken, refreshToken, expiresAt.UTC(), userID)
	if err != nil {
		return fmt.Errorf("store mal tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store mal tokens rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("store mal tokens: user not found")
	}
	return nil
}

func (r *Repo) ClearMALTokens(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE users
		SET mal_access_token = NULL, mal_refresh_token = NULL, mal_token_expires_at = NULL
		WHERE id = ?
	`, userID)
	if err != nil {
		return fmt.Errorf("clear mal tokens: %w", err)
	}
	return nil
}

// SetLastMALSync stamps a completed reconciliation run.
func (r *Repo) SetLastMALSync(ctx context.Context, userID string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE users
		SET last_mal_sync = ?
		WHERE id = ?
	`, at.UTC(), userID)
	if err != nil {
		return fmt.Errorf("set last mal sync: %w", err)
	}
	return nil
}

// ListUsersWithMALTokens returns every user who has linked a MAL account,
// for the all-users sync variant.
func (r *Repo) ListUsersWithMALTokens(ctx context.Context) ([]User, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE mal_access_token IS NOT NULL AND mal_refresh_token IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("list users with mal tokens: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var (
			u         User
			access    sql.NullString
			refresh   sql.NullString
			expiresAt sql.NullTime
			lastSync  sql.NullTime
		)
		if err := rows.Scan(
			&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.TokenVersion,
			&access, &refresh, &expiresAt, &lastSync, &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.MALAccessToken = access.String
		u.MALRefreshToken = refresh.String
		if expiresAt.Valid {
			t := expiresAt.Time
			u.MALTokenExpiresAt = &t
		}
		if lastSync.Valid {
			t := lastSync.Time
			u.LastMALSync = &t
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows users: %w", err)
	}
	return out, nil
}
