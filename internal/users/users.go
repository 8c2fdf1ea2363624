// Package users tracks the people behind chat ids: registration,
// per-user preferences, download history and the hourly rate limits.
// Everything here fails open; a broken bookkeeping query must never
// block a download.
package users

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/mediaworkerr/internal/db"
	"github.com/snapetech/mediaworkerr/internal/log"
)

type Manager struct {
	db  *db.DB
	log zerolog.Logger
}

func NewManager(d *db.DB) *Manager {
	return &Manager{db: d, log: log.WithComponent("users")}
}

// Touch registers the chat id on first sight and bumps its activity
// timestamp. Best effort.
func (m *Manager) Touch(ctx context.Context, chatID int64) {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO users (chat_id, first_seen, last_activity) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET last_activity = excluded.last_activity`,
		chatID, now, now)
	if err != nil {
		m.log.Warn().Err(err).Int64("chat_id", chatID).Msg("user touch failed")
		return
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_preferences (chat_id, updated_at) VALUES (?, ?)`,
		chatID, now)
	if err != nil {
		m.log.Warn().Err(err).Int64("chat_id", chatID).Msg("default prefs failed")
	}
}

// DedupEnabled reports whether the user participates in storage
// deduplication. Unknown users and query failures default to enabled.
func (m *Manager) DedupEnabled(ctx context.Context, chatID int64) bool {
	var enabled int
	err := m.db.QueryRowContext(ctx,
		`SELECT dedup_enabled FROM dedup_user_preferences WHERE user_chat_id = ?`,
		chatID).Scan(&enabled)
	if err == sql.ErrNoRows {
		return true
	}
	if err != nil {
		m.log.Warn().Err(err).Int64("chat_id", chatID).Msg("dedup pref lookup failed")
		return true
	}
	return enabled != 0
}

// AddHistory records a finished download. Best effort.
func (m *Manager) AddHistory(ctx context.Context, chatID int64, title, url, filePath string, sizeBytes int64) {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO download_history (user_chat_id, title, url, file_path, file_size_bytes)
		VALUES (?, ?, ?, ?, ?)`,
		chatID, title, url, filePath, sizeBytes)
	if err != nil {
		m.log.Warn().Err(err).Int64("chat_id", chatID).Msg("history insert failed")
	}
}

// RecordPlaylist logs a completed playlist download. Best effort.
func (m *Manager) RecordPlaylist(ctx context.Context, chatID int64, url, name string, trackCount int) {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO playlists (user_chat_id, playlist_url, playlist_name, track_count)
		VALUES (?, ?, ?, ?)`,
		chatID, url, name, trackCount)
	if err != nil {
		m.log.Warn().Err(err).Int64("chat_id", chatID).Msg("playlist record failed")
	}
}

// AddFavoritePlaylist remembers a playlist for the user; duplicates are
// ignored.
func (m *Manager) AddFavoritePlaylist(ctx context.Context, chatID int64, url, name string) {
	_, err := m.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO favorite_playlists (user_chat_id, playlist_url, playlist_name)
		VALUES (?, ?, ?)`,
		chatID, url, name)
	if err != nil {
		m.log.Warn().Err(err).Int64("chat_id", chatID).Msg("favorite insert failed")
	}
}

// RecordUsage logs one operation outcome into api_usage_stats. Best
// effort.
func (m *Manager) RecordUsage(ctx context.Context, chatID int64, action string, took time.Duration, success bool, errorCode string) {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO api_usage_stats (user_chat_id, action, execution_time_ms, success, error_code)
		VALUES (?, ?, ?, ?, ?)`,
		chatID, action, took.Milliseconds(), boolInt(success), errorCode)
	if err != nil {
		m.log.Warn().Err(err).Msg("usage stats insert failed")
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
