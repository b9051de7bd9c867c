package list

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"animehub/internal/anime"
	"animehub/internal/events"
	"animehub/pkg/database"
	"animehub/pkg/models"
)

func testService(t *testing.T) (*Service, *sql.DB) {
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

	_, err = db.Exec(`INSERT INTO users (id, username, email, password_hash)
		VALUES ('u1', 'kira', 'kira@example.com', 'x')`)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	// MAL client nil: remote pushes are skipped in tests.
	svc := &Service{
		Lists: NewRepo(db),
		Anime: anime.NewRepo(db),
	}
	return svc, db
}

func seedAnime(t *testing.T, db *sql.DB, malID int, episodes any) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO anime (mal_id, title, episodes) VALUES (?, 'Test Show', ?)`,
		malID, episodes)
	if err != nil {
		t.Fatalf("seed anime: %v", err)
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestApplyProgressCreatesEntry(t *testing.T) {
	svc, db := testService(t)
	seedAnime(t, db, 100, 12)
	ctx := context.Background()

	res, err := svc.ApplyEpisodeProgress(ctx, "u1", 100, 3, floatPtr(95.0))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Created || !res.Advanced || res.Episodes != 3 {
		t.Fatalf("expected created+advanced to 3, got %+v", res)
	}

	entry, err := svc.Lists.Get(ctx, "u1", 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Status != models.StatusWatching || entry.EpisodesWatched != 3 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.StartDate == nil {
		t.Fatal("new entries get a start date")
	}
}

func TestApplyProgressIdempotentReplay(t *testing.T) {
	svc, db := testService(t)
	seedAnime(t, db, 100, 12)
	ctx := context.Background()

	if _, err := svc.ApplyEpisodeProgress(ctx, "u1", 100, 6, floatPtr(90.0)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Same episode again: a webhook redelivery must not change anything.
	res, err := svc.ApplyEpisodeProgress(ctx, "u1", 100, 6, floatPtr(90.0))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Advanced || res.Reason != "caught_up" {
		t.Fatalf("replay must be a no-op, got %+v", res)
	}

	// Earlier episodes never regress the counter.
	res, err = svc.ApplyEpisodeProgress(ctx, "u1", 100, 2, floatPtr(90.0))
	if err != nil {
		t.Fatalf("rewatch: %v", err)
	}
	if res.Advanced {
		t.Fatalf("rewatching an old episode must not regress, got %+v", res)
	}

	entry, _ := svc.Lists.Get(ctx, "u1", 100)
	if entry.EpisodesWatched != 6 {
		t.Fatalf("expected 6 episodes, got %d", entry.EpisodesWatched)
	}
}

func TestApplyProgressCompletionThreshold(t *testing.T) {
	svc, db := testService(t)
	seedAnime(t, db, 100, 12)
	ctx := context.Background()

	// 79.99% is an abandoned playback, not a watch. Starting the show
	// still puts it on the list at zero episodes.
	res, err := svc.ApplyEpisodeProgress(ctx, "u1", 100, 1, floatPtr(79.99))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Advanced || res.Reason != "below_threshold" {
		t.Fatalf("below threshold must not count, got %+v", res)
	}
	if !res.Created {
		t.Fatalf("starting a show must add it to the list, got %+v", res)
	}
	entry, err := svc.Lists.Get(ctx, "u1", 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry == nil || entry.Status != models.StatusWatching || entry.EpisodesWatched != 0 {
		t.Fatalf("expected a watching entry at 0 episodes, got %+v", entry)
	}
	if entry.StartDate == nil {
		t.Fatal("new entries get a start date")
	}

	// Exactly 80% counts.
	res, err = svc.ApplyEpisodeProgress(ctx, "u1", 100, 1, floatPtr(80.0))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Advanced {
		t.Fatalf("80%% must count as watched, got %+v", res)
	}

	// No completion data is treated as watched.
	res, err = svc.ApplyEpisodeProgress(ctx, "u1", 100, 2, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Advanced {
		t.Fatalf("nil completion must count as watched, got %+v", res)
	}
}

func TestApplyProgressCompletesSeries(t *testing.T) {
	svc, db := testService(t)
	seedAnime(t, db, 100, 12)
	ctx := context.Background()

	res, err := svc.ApplyEpisodeProgress(ctx, "u1", 100, 12, floatPtr(100.0))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Completed {
		t.Fatalf("final episode must complete the series, got %+v", res)
	}

	entry, _ := svc.Lists.Get(ctx, "u1", 100)
	if entry.Status != models.StatusCompleted {
		t.Fatalf("expected completed status, got %q", entry.Status)
	}
	if entry.FinishDate == nil {
		t.Fatal("completion stamps a finish date")
	}
}

func TestApplyProgressUnknownEpisodeCount(t *testing.T) {
	svc, db := testService(t)
	seedAnime(t, db, 100, nil) // still airing, count unknown
	ctx := context.Background()

	res, err := svc.ApplyEpisodeProgress(ctx, "u1", 100, 500, floatPtr(100.0))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Completed {
		t.Fatal("cannot complete a series with unknown episode count")
	}
	entry, _ := svc.Lists.Get(ctx, "u1", 100)
	if entry.Status != models.StatusWatching || entry.EpisodesWatched != 500 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestApplyProgressResumesFromPlanToWatch(t *testing.T) {
	svc, db := testService(t)
	seedAnime(t, db, 100, 12)
	ctx := context.Background()

	err := svc.Lists.Upsert(ctx, &models.ListEntry{
		UserID: "u1",
		MALID:  100,
		Status: models.StatusPlanToWatch,
	})
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	if _, err := svc.ApplyEpisodeProgress(ctx, "u1", 100, 1, floatPtr(100.0)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	entry, _ := svc.Lists.Get(ctx, "u1", 100)
	if entry.Status != models.StatusWatching {
		t.Fatalf("watching an episode moves plan_to_watch to watching, got %q", entry.Status)
	}
}

func TestUpdateEntryValidation(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	bad := &models.ListEntry{UserID: "u1", MALID: 100, Status: "binging"}
	if err := svc.UpdateEntry(ctx, bad); err == nil {
		t.Fatal("expected error for invalid status")
	}

	score := 11
	bad = &models.ListEntry{UserID: "u1", MALID: 100, Status: models.StatusWatching, Score: &score}
	if err := svc.UpdateEntry(ctx, bad); err == nil {
		t.Fatal("expected error for out-of-range score")
	}
}

func TestListChangesReachSubscribers(t *testing.T) {
	svc, _ := testService(t)
	hub := events.NewHub()
	svc.Hub = hub

	added := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Add(ws)
		close(added)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	<-added

	ctx := context.Background()
	err = svc.UpdateEntry(ctx, &models.ListEntry{
		UserID: "u1", MALID: 100, Status: models.StatusWatching, EpisodesWatched: 4,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	deleted, err := svc.DeleteEntry(ctx, "u1", 100)
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}

	// Both mutations announce themselves to subscribers.
	for i := 0; i < 2; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read event %d: %v", i, err)
		}
		var ev events.ProgressEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("decode event %d: %v", i, err)
		}
		if ev.Type != events.TypeListUpdate || ev.MALID != 100 {
			t.Fatalf("event %d: got %+v, want %s for anime 100", i, ev, events.TypeListUpdate)
		}
	}
}

func TestDeleteEntry(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	err := svc.Lists.Upsert(ctx, &models.ListEntry{
		UserID: "u1", MALID: 100, Status: models.StatusWatching,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	deleted, err := svc.DeleteEntry(ctx, "u1", 100)
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}

	deleted, err = svc.DeleteEntry(ctx, "u1", 100)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Fatal("second delete must report not found")
	}
}
