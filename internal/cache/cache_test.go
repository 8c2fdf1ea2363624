package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/snapetech/mediaworkerr/internal/db"
)

func newTestCache(t *testing.T, searchEnabled bool, ttl time.Duration) *Cache {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return New(d, searchEnabled, ttl)
}

func TestSearchCache_roundTrip(t *testing.T) {
	c := newTestCache(t, true, time.Hour)
	ctx := context.Background()

	if _, ok := c.GetSearch(ctx, "lofi"); ok {
		t.Fatal("empty cache should miss")
	}
	want := []SearchResult{
		{VideoID: "dQw4w9WgXcQ", Title: "Song", Artist: "Artist", Duration: 212, URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
	}
	c.SetSearch(ctx, "lofi", want)

	got, ok := c.GetSearch(ctx, "lofi")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("got %+v, want %+v", got, want)
	}
	// key is normalised: case and surrounding space do not matter
	if _, ok := c.GetSearch(ctx, "  LOFI "); !ok {
		t.Error("normalised query should hit")
	}
}

func TestSearchCache_expiry(t *testing.T) {
	c := newTestCache(t, true, -time.Second) // already expired on write
	ctx := context.Background()
	c.SetSearch(ctx, "q", []SearchResult{{VideoID: "x"}})
	if _, ok := c.GetSearch(ctx, "q"); ok {
		t.Error("expired entry should miss")
	}
}

func TestSearchCache_disabledIsInert(t *testing.T) {
	c := newTestCache(t, false, time.Hour)
	ctx := context.Background()
	c.SetSearch(ctx, "q", []SearchResult{{VideoID: "x"}})
	if _, ok := c.GetSearch(ctx, "q"); ok {
		t.Error("disabled cache must not serve hits")
	}
	stats, err := c.CacheStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.SearchEntries != 0 {
		t.Errorf("disabled cache wrote %d entries", stats.SearchEntries)
	}
	if stats.CacheEnabled {
		t.Error("stats should report disabled")
	}
}

func TestVideoMetaCache(t *testing.T) {
	c := newTestCache(t, true, time.Hour)
	ctx := context.Background()

	if _, ok := c.GetVideoMeta(ctx, "dQw4w9WgXcQ"); ok {
		t.Fatal("empty cache should miss")
	}
	want := &VideoMeta{
		VideoID:         "dQw4w9WgXcQ",
		Title:           "Title",
		Uploader:        "Channel",
		DurationSeconds: 212,
		ThumbnailURL:    "https://img.youtube.com/vi/dQw4w9WgXcQ/mqdefault.jpg",
		IsAgeRestricted: true,
	}
	c.SetVideoMeta(ctx, want)
	got, ok := c.GetVideoMeta(ctx, "dQw4w9WgXcQ")
	if !ok {
		t.Fatal("expected hit")
	}
	if *got != *want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestCleanup(t *testing.T) {
	c := newTestCache(t, true, time.Hour)
	ctx := context.Background()
	c.SetSearch(ctx, "fresh", []SearchResult{{VideoID: "a"}})
	c.SetVideoMeta(ctx, &VideoMeta{VideoID: "liveMeta0000"})

	// plant expired rows directly
	past := time.Now().UTC().Add(-2 * time.Hour)
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO search_cache (query_hash, query, results, expires_at) VALUES ('dead', 'old', '[]', ?)`, past); err != nil {
		t.Fatal(err)
	}
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO youtube_metadata_cache (video_id, expires_at) VALUES ('deadMeta0000', ?)`, past); err != nil {
		t.Fatal(err)
	}

	removed, err := c.Cleanup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	stats, err := c.CacheStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.SearchEntries != 1 || stats.MetadataEntries != 1 {
		t.Errorf("stats after cleanup = %+v", stats)
	}
}
