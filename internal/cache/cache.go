// Package cache provides the TTL-bounded search-result and
// video-metadata caches, both backed by the sqlite store.
package cache

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/mediaworkerr/internal/db"
	"github.com/snapetech/mediaworkerr/internal/log"
)

// SearchResult is one entry of a search response.
type SearchResult struct {
	VideoID   string `json:"videoId"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Duration  int    `json:"duration"`
	Thumbnail string `json:"thumbnail"`
	URL       string `json:"url"`
}

// VideoMeta is the cached metadata for one video id.
type VideoMeta struct {
	VideoID         string `json:"video_id"`
	Title           string `json:"title"`
	Uploader        string `json:"uploader"`
	DurationSeconds int    `json:"duration_seconds"`
	ThumbnailURL    string `json:"thumbnail_url"`
	IsAgeRestricted bool   `json:"is_age_restricted"`
	IsPrivate       bool   `json:"is_private"`
}

// Stats is the cache_stats response payload.
type Stats struct {
	MetadataEntries int  `json:"metadata_entries"`
	SearchEntries   int  `json:"search_entries"`
	CacheEnabled    bool `json:"cache_enabled"`
	TTLHours        int  `json:"ttl_hours"`
}

type Cache struct {
	db            *db.DB
	searchEnabled bool
	ttl           time.Duration
	log           zerolog.Logger
}

// New builds the cache layer. searchEnabled=false makes the search cache
// fully inert: no reads and no writes (a disabled cache must not serve
// stale hits). The metadata cache is always on.
func New(d *db.DB, searchEnabled bool, ttl time.Duration) *Cache {
	return &Cache{db: d, searchEnabled: searchEnabled, ttl: ttl, log: log.WithComponent("cache")}
}

func searchKey(query string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])
}

// GetSearch returns the cached results for query, if present and fresh.
func (c *Cache) GetSearch(ctx context.Context, query string) ([]SearchResult, bool) {
	if !c.searchEnabled {
		return nil, false
	}
	key := searchKey(query)
	var blob string
	err := c.db.QueryRowContext(ctx,
		`SELECT results FROM search_cache WHERE query_hash = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("search cache read failed")
		return nil, false
	}
	var results []SearchResult
	if err := json.Unmarshal([]byte(blob), &results); err != nil {
		c.log.Warn().Err(err).Msg("search cache entry corrupt; ignoring")
		return nil, false
	}
	if _, err := c.db.ExecContext(ctx,
		`UPDATE search_cache SET access_count = access_count + 1, last_accessed_at = ? WHERE query_hash = ?`,
		time.Now().UTC(), key,
	); err != nil {
		c.log.Warn().Err(err).Msg("search cache access bump failed")
	}
	return results, true
}

// SetSearch stores results for query. No-op when the search cache is disabled.
func (c *Cache) SetSearch(ctx context.Context, query string, results []SearchResult) {
	if !c.searchEnabled {
		return
	}
	blob, err := json.Marshal(results)
	if err != nil {
		c.log.Warn().Err(err).Msg("search cache marshal failed")
		return
	}
	now := time.Now().UTC()
	if _, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO search_cache (query_hash, query, results, cached_at, expires_at, access_count, last_accessed_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		searchKey(query), query, string(blob), now, now.Add(c.ttl), now,
	); err != nil {
		c.log.Warn().Err(err).Msg("search cache write failed")
	}
}

// GetVideoMeta returns fresh cached metadata for videoID.
func (c *Cache) GetVideoMeta(ctx context.Context, videoID string) (*VideoMeta, bool) {
	var m VideoMeta
	var ageRestricted, priv int
	err := c.db.QueryRowContext(ctx,
		`SELECT video_id, title, uploader, duration_seconds, thumbnail_url, is_age_restricted, is_private
		 FROM youtube_metadata_cache WHERE video_id = ? AND expires_at > ?`,
		videoID, time.Now().UTC(),
	).Scan(&m.VideoID, &m.Title, &m.Uploader, &m.DurationSeconds, &m.ThumbnailURL, &ageRestricted, &priv)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("metadata cache read failed")
		return nil, false
	}
	m.IsAgeRestricted = ageRestricted != 0
	m.IsPrivate = priv != 0
	if _, err := c.db.ExecContext(ctx,
		`UPDATE youtube_metadata_cache SET access_count = access_count + 1, last_accessed_at = ? WHERE video_id = ?`,
		time.Now().UTC(), videoID,
	); err != nil {
		c.log.Warn().Err(err).Msg("metadata cache access bump failed")
	}
	return &m, true
}

// SetVideoMeta stores metadata for m.VideoID with the configured TTL.
func (c *Cache) SetVideoMeta(ctx context.Context, m *VideoMeta) {
	now := time.Now().UTC()
	if _, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO youtube_metadata_cache
		 (video_id, title, uploader, duration_seconds, thumbnail_url, is_age_restricted, is_private, cached_at, expires_at, access_count, last_accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		m.VideoID, m.Title, m.Uploader, m.DurationSeconds, m.ThumbnailURL,
		boolInt(m.IsAgeRestricted), boolInt(m.IsPrivate), now, now.Add(c.ttl), now,
	); err != nil {
		c.log.Warn().Err(err).Msg("metadata cache write failed")
	}
}

// Cleanup removes expired entries from both caches and returns how many
// rows were deleted.
func (c *Cache) Cleanup(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	var total int64
	for _, table := range []string{"search_cache", "youtube_metadata_cache"} {
		res, err := c.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= ?`, table), now)
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	c.log.Info().Int64("removed", total).Msg("cache cleanup done")
	return total, nil
}

// CacheStats counts live entries in both caches.
func (c *Cache) CacheStats(ctx context.Context) (Stats, error) {
	s := Stats{CacheEnabled: c.searchEnabled, TTLHours: int(c.ttl.Hours())}
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM youtube_metadata_cache`).Scan(&s.MetadataEntries); err != nil {
		return s, err
	}
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_cache`).Scan(&s.SearchEntries); err != nil {
		return s, err
	}
	return s, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
