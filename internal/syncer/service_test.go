package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"animehub/internal/anime"
	"animehub/internal/auth"
	"animehub/internal/list"
	"animehub/internal/mal"
	"animehub/pkg/database"
	"animehub/pkg/models"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedLinkedUser(t *testing.T, db *sql.DB, lastSync *time.Time) {
	t.Helper()
	expires := time.Now().Add(time.Hour)
	_, err := db.Exec(`INSERT INTO users (id, username, email, password_hash,
		mal_access_token, mal_refresh_token, mal_token_expires_at, last_mal_sync)
		VALUES ('u1', 'kira', 'kira@example.com', 'x', 'access', 'refresh', ?, ?)`,
		expires, lastSync)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

// fakeList serves a paginated MAL anime list from a fixed slice.
func fakeList(t *testing.T, entries []mal.AnimeListEntry) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/@me/animelist" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		end := offset + limit
		if end > len(entries) {
			end = len(entries)
		}
		var data []mal.AnimeListEntry
		if offset < len(entries) {
			data = entries[offset:end]
		}

		page := mal.AnimeListPage{Data: data}
		if end < len(entries) {
			page.Paging.Next = "more"
		}
		if err := json.NewEncoder(w).Encode(page); err != nil {
			t.Errorf("encode page: %v", err)
		}
	}))
}

func newService(db *sql.DB, baseURL string) *Service {
	users := auth.NewRepo(db)
	client := mal.NewClient(mal.Config{
		BaseURL:           baseURL,
		AuthURL:           baseURL,
		RequestsPerSecond: 1000,
		MaxAttempts:       2,
	}, users)
	return &Service{
		DB:    db,
		Users: users,
		Anime: anime.NewRepo(db),
		Lists: list.NewRepo(db),
		MAL:   client,
	}
}

// newRetryService builds a service with client-level retries disabled and
// a short page-retry pause, so retry-bound tests count raw page attempts.
func newRetryService(db *sql.DB, baseURL string) *Service {
	users := auth.NewRepo(db)
	client := mal.NewClient(mal.Config{
		BaseURL:           baseURL,
		AuthURL:           baseURL,
		RequestsPerSecond: 1000,
		MaxAttempts:       1,
	}, users)
	return &Service{
		DB:         db,
		Users:      users,
		Anime:      anime.NewRepo(db),
		Lists:      list.NewRepo(db),
		MAL:        client,
		fetchDelay: time.Millisecond,
	}
}

func remoteEntry(malID int, title, status string, episodes, watched, score int) mal.AnimeListEntry {
	var e mal.AnimeListEntry
	e.Node.ID = malID
	e.Node.Title = title
	e.Node.NumEpisodes = episodes
	e.ListStatus.Status = status
	e.ListStatus.NumEpisodesWatched = watched
	e.ListStatus.Score = score
	return e
}

func TestSyncUserImportsRemoteList(t *testing.T) {
	db := testDB(t)
	seedLinkedUser(t, db, nil)

	// 150 entries forces a second page at the fixed page size of 100.
	var entries []mal.AnimeListEntry
	for i := 1; i <= 150; i++ {
		entries = append(entries, remoteEntry(i, fmt.Sprintf("Show %d", i), "watching", 12, i%12, 0))
	}
	srv := fakeList(t, entries)
	defer srv.Close()

	svc := newService(db, srv.URL)
	stats, err := svc.SyncUser(context.Background(), "u1", false)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if stats.TotalRemote != 150 || stats.EntriesCreated != 150 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.CatalogCreated != 150 {
		t.Fatalf("expected 150 catalog rows, got %d", stats.CatalogCreated)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_anime_list WHERE user_id = 'u1'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 150 {
		t.Fatalf("expected 150 list rows, got %d", count)
	}

	// The run records the sync timestamp.
	user, err := svc.Users.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.LastMALSync == nil {
		t.Fatal("last sync timestamp not recorded")
	}
}

func TestSyncUserConflictResolution(t *testing.T) {
	db := testDB(t)
	seedLinkedUser(t, db, nil)

	lists := list.NewRepo(db)
	ctx := context.Background()

	// Local is ahead on episodes, has a note, and no score.
	err := lists.Upsert(ctx, &models.ListEntry{
		UserID:          "u1",
		MALID:           50,
		Status:          models.StatusWatching,
		EpisodesWatched: 10,
		Notes:           "rewatching the good arc",
	})
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	remote := remoteEntry(50, "Show", "on_hold", 24, 7, 8)
	remote.ListStatus.Comments = "remote note"
	remote.ListStatus.StartDate = "2026-01-15"
	srv := fakeList(t, []mal.AnimeListEntry{remote})
	defer srv.Close()

	svc := newService(db, srv.URL)
	stats, err := svc.SyncUser(ctx, "u1", false)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	entry, err := lists.Get(ctx, "u1", 50)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Status: remote wins.
	if entry.Status != models.StatusOnHold {
		t.Errorf("status: got %q, want on_hold", entry.Status)
	}
	// Episodes: max(10, 7) = 10, never regresses.
	if entry.EpisodesWatched != 10 {
		t.Errorf("episodes: got %d, want 10", entry.EpisodesWatched)
	}
	// Score: remote 8 fills the local nil.
	if entry.Score == nil || *entry.Score != 8 {
		t.Errorf("score: got %v, want 8", entry.Score)
	}
	// Notes: local annotation is never clobbered.
	if entry.Notes != "rewatching the good arc" {
		t.Errorf("notes: got %q", entry.Notes)
	}
	// Dates: parseable remote date adopted.
	if entry.StartDate == nil || *entry.StartDate != "2026-01-15" {
		t.Errorf("start date: got %v", entry.StartDate)
	}

	if stats.ConflictsResolved != 3 {
		t.Errorf("expected 3 conflicts (status, score, start date), got %d", stats.ConflictsResolved)
	}
}

func TestSyncUserZeroRemoteScoreKeepsLocal(t *testing.T) {
	db := testDB(t)
	seedLinkedUser(t, db, nil)

	lists := list.NewRepo(db)
	ctx := context.Background()

	score := 9
	err := lists.Upsert(ctx, &models.ListEntry{
		UserID: "u1",
		MALID:  50,
		Status: models.StatusCompleted,
		Score:  &score,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	srv := fakeList(t, []mal.AnimeListEntry{remoteEntry(50, "Show", "completed", 12, 12, 0)})
	defer srv.Close()

	svc := newService(db, srv.URL)
	if _, err := svc.SyncUser(ctx, "u1", false); err != nil {
		t.Fatalf("sync: %v", err)
	}

	entry, _ := lists.Get(ctx, "u1", 50)
	if entry.Score == nil || *entry.Score != 9 {
		t.Fatalf("zero remote score must not erase local 9, got %v", entry.Score)
	}
}

func TestSyncUserFreshnessSkip(t *testing.T) {
	db := testDB(t)
	recent := time.Now().Add(-10 * time.Minute)
	seedLinkedUser(t, db, &recent)

	srv := fakeList(t, []mal.AnimeListEntry{remoteEntry(1, "Show", "watching", 12, 1, 0)})
	defer srv.Close()

	svc := newService(db, srv.URL)
	ctx := context.Background()

	stats, err := svc.SyncUser(ctx, "u1", false)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !stats.Skipped {
		t.Fatalf("recent run must be skipped, got %+v", stats)
	}

	// Force overrides the window.
	stats, err = svc.SyncUser(ctx, "u1", true)
	if err != nil {
		t.Fatalf("forced sync: %v", err)
	}
	if stats.Skipped || stats.TotalRemote != 1 {
		t.Fatalf("forced run must execute, got %+v", stats)
	}
}

func TestSyncUserFailsFastOnAuth(t *testing.T) {
	db := testDB(t)

	// Token already expired and the refresh endpoint rejects it.
	expired := time.Now().Add(-time.Hour)
	_, err := db.Exec(`INSERT INTO users (id, username, email, password_hash,
		mal_access_token, mal_refresh_token, mal_token_expires_at)
		VALUES ('u1', 'kira', 'kira@example.com', 'x', 'stale', 'stale', ?)`, expired)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	var listCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		listCalls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := newService(db, srv.URL)
	if _, err := svc.SyncUser(context.Background(), "u1", false); err == nil {
		t.Fatal("expected auth failure to abort the run")
	}
	if listCalls != 0 {
		t.Fatalf("no list traffic may happen after an auth failure, got %d calls", listCalls)
	}
}

func TestSyncUserFetchRetriesExhausted(t *testing.T) {
	db := testDB(t)
	seedLinkedUser(t, db, nil)

	var listCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := newRetryService(db, srv.URL)
	_, err := svc.SyncUser(context.Background(), "u1", false)
	if err == nil {
		t.Fatal("a persistently failing page must fail the run")
	}
	if !strings.Contains(err.Error(), "retries exhausted") {
		t.Fatalf("unexpected error: %v", err)
	}
	if listCalls != maxFetchRetries+1 {
		t.Fatalf("expected %d page attempts, got %d", maxFetchRetries+1, listCalls)
	}
}

func TestSyncUserFetchRecoversFromTransientFailure(t *testing.T) {
	db := testDB(t)
	seedLinkedUser(t, db, nil)

	entries := []mal.AnimeListEntry{remoteEntry(1, "Show", "watching", 12, 3, 0)}

	var listCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		if listCalls <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if err := json.NewEncoder(w).Encode(mal.AnimeListPage{Data: entries}); err != nil {
			t.Errorf("encode page: %v", err)
		}
	}))
	defer srv.Close()

	svc := newRetryService(db, srv.URL)
	stats, err := svc.SyncUser(context.Background(), "u1", false)
	if err != nil {
		t.Fatalf("transient page failures must be retried, got %v", err)
	}
	if stats.TotalRemote != 1 || stats.EntriesCreated != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if listCalls != 3 {
		t.Fatalf("expected 3 page attempts, got %d", listCalls)
	}
}

func TestSyncUserBadEntryDoesNotAbortRun(t *testing.T) {
	db := testDB(t)
	seedLinkedUser(t, db, nil)

	// The middle entry carries a status the schema rejects; its transaction
	// rolls back and the rest of the run continues.
	entries := []mal.AnimeListEntry{
		remoteEntry(1, "Good One", "watching", 12, 3, 0),
		remoteEntry(2, "Bad One", "rewatching", 12, 3, 0),
		remoteEntry(3, "Good Two", "completed", 12, 12, 0),
	}
	srv := fakeList(t, entries)
	defer srv.Close()

	svc := newService(db, srv.URL)
	stats, err := svc.SyncUser(context.Background(), "u1", false)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if stats.EntryErrors != 1 {
		t.Fatalf("expected 1 entry error, got %+v", stats)
	}
	if stats.EntriesCreated != 2 {
		t.Fatalf("expected 2 created entries, got %+v", stats)
	}

	lists := list.NewRepo(db)
	if entry, _ := lists.Get(context.Background(), "u1", 2); entry != nil {
		t.Fatalf("bad entry must not be committed, got %+v", entry)
	}
	if entry, _ := lists.Get(context.Background(), "u1", 3); entry == nil {
		t.Fatal("entries after the bad one must still be processed")
	}
}
