package users

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/snapetech/mediaworkerr/internal/db"
)

func testDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestTouch(t *testing.T) {
	d := testDB(t)
	m := NewManager(d)
	ctx := context.Background()

	m.Touch(ctx, 42)
	m.Touch(ctx, 42) // second touch must not duplicate

	var n int
	d.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	if n != 1 {
		t.Errorf("users rows = %d", n)
	}
	// default preferences materialise alongside
	var format string
	d.QueryRow(`SELECT audio_format FROM user_preferences WHERE chat_id = 42`).Scan(&format)
	if format != "mp3" {
		t.Errorf("default audio_format = %q", format)
	}
}

func TestDedupEnabled(t *testing.T) {
	d := testDB(t)
	m := NewManager(d)
	ctx := context.Background()

	// unknown user defaults to enabled
	if !m.DedupEnabled(ctx, 1) {
		t.Error("unknown user should dedup")
	}

	d.Exec(`INSERT INTO dedup_user_preferences (user_chat_id, dedup_enabled) VALUES (2, 0)`)
	if m.DedupEnabled(ctx, 2) {
		t.Error("opted-out user should not dedup")
	}

	d.Exec(`INSERT INTO dedup_user_preferences (user_chat_id, dedup_enabled) VALUES (3, 1)`)
	if !m.DedupEnabled(ctx, 3) {
		t.Error("opted-in user should dedup")
	}
}

func TestHistoryAndFavorites(t *testing.T) {
	d := testDB(t)
	m := NewManager(d)
	ctx := context.Background()

	m.AddHistory(ctx, 7, "Song", "https://youtu.be/x", "/dl/7/song.mp3", 1234)
	var title string
	var size int64
	d.QueryRow(`SELECT title, file_size_bytes FROM download_history WHERE user_chat_id = 7`).
		Scan(&title, &size)
	if title != "Song" || size != 1234 {
		t.Errorf("history = %q %d", title, size)
	}

	m.AddFavoritePlaylist(ctx, 7, "https://yt/pl", "Road Trip")
	m.AddFavoritePlaylist(ctx, 7, "https://yt/pl", "Road Trip") // dup ignored
	var n int
	d.QueryRow(`SELECT COUNT(*) FROM favorite_playlists WHERE user_chat_id = 7`).Scan(&n)
	if n != 1 {
		t.Errorf("favorites rows = %d", n)
	}
}

func TestRecordUsage(t *testing.T) {
	d := testDB(t)
	m := NewManager(d)

	m.RecordUsage(context.Background(), 7, "youtube_dl", 1500*time.Millisecond, false, "NETWORK_TIMEOUT")
	var ms int
	var success int
	var code string
	d.QueryRow(`SELECT execution_time_ms, success, error_code FROM api_usage_stats`).
		Scan(&ms, &success, &code)
	if ms != 1500 || success != 0 || code != "NETWORK_TIMEOUT" {
		t.Errorf("usage = %d %d %q", ms, success, code)
	}
}

func TestRateLimiter(t *testing.T) {
	d := testDB(t)
	r := NewRateLimiter(d)
	ctx := context.Background()

	// playlist limit is the smallest; exhaust it
	for i := 0; i < LimitPlaylist; i++ {
		if !r.Allow(ctx, 5, "playlist") {
			t.Fatalf("attempt %d should pass", i)
		}
	}
	if r.Allow(ctx, 5, "playlist") {
		t.Error("over-limit attempt should be rejected")
	}
	// another user is unaffected
	if !r.Allow(ctx, 6, "playlist") {
		t.Error("other user should pass")
	}
	// other actions of the same user are unaffected
	if !r.Allow(ctx, 5, "search") {
		t.Error("other action should pass")
	}
	// unknown actions always pass
	if !r.Allow(ctx, 5, "health_check") {
		t.Error("unlimited action should pass")
	}
}

func TestRateLimiter_windowExpiry(t *testing.T) {
	d := testDB(t)
	r := NewRateLimiter(d)
	ctx := context.Background()

	// saturated window that ended an hour ago
	past := time.Now().UTC().Add(-2 * time.Hour)
	d.Exec(`INSERT INTO rate_limits (user_chat_id, action, attempt_count, window_start, window_end)
		VALUES (9, 'download', ?, ?, ?)`,
		LimitDownload,
		past.Format(time.RFC3339), past.Add(time.Hour).Format(time.RFC3339))

	if !r.Allow(ctx, 9, "download") {
		t.Error("expired window should reset")
	}
	var count int
	d.QueryRow(`SELECT attempt_count FROM rate_limits WHERE user_chat_id = 9 AND action = 'download'`).
		Scan(&count)
	if count != 1 {
		t.Errorf("attempt_count after reset = %d", count)
	}
}
