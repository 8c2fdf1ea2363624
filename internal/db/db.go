// Package db owns the worker's sqlite store: connection lifecycle,
// pragmas and the idempotent schema migrations. Domain packages run
// their own queries through the embedded *sql.DB.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/snapetech/mediaworkerr/internal/log"
)

type DB struct {
	*sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the sqlite file at path and applies
// the pragmas every connection needs. A parent bot process may share the
// file, hence WAL + a generous busy timeout.
func Open(path string) (*DB, error) {
	sdb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc sqlite serialises writes per connection; one connection
	// keeps lock contention out of Go and in the busy handler.
	sdb.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return &DB{DB: sdb, log: log.WithComponent("db")}, nil
}

type migration struct {
	name  string
	stmts []string
}

// Migrations are all CREATE ... IF NOT EXISTS and are applied
// independently: a peer process racing us through table creation, or one
// failing statement, must not block the remaining migrations.
var migrations = []migration{
	{
		name: "0001_core",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS users (
				chat_id INTEGER PRIMARY KEY,
				username TEXT,
				first_seen TIMESTAMP,
				last_activity TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS tasks (
				task_id TEXT PRIMARY KEY,
				chat_id INTEGER,
				action TEXT,
				status TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				completed_at TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				chat_id INTEGER,
				session_data TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				expires_at TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS config (
				key TEXT PRIMARY KEY,
				value TEXT,
				updated_at TIMESTAMP
			)`,
		},
	},
	{
		name: "0002_media_tasks",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS media_tasks (
				task_id TEXT PRIMARY KEY,
				chat_id INTEGER,
				url TEXT,
				action TEXT,
				status TEXT,
				error_code TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				completed_at TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS task_progress_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				task_id TEXT,
				percent REAL,
				status TEXT,
				recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
		},
	},
	{
		name: "0003_user_data",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS playlists (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_chat_id INTEGER,
				playlist_url TEXT,
				playlist_name TEXT,
				track_count INTEGER,
				downloaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS user_preferences (
				chat_id INTEGER PRIMARY KEY,
				audio_format TEXT DEFAULT 'mp3',
				audio_quality TEXT DEFAULT '0',
				language TEXT DEFAULT 'en',
				timezone TEXT,
				create_archives INTEGER DEFAULT 0,
				auto_delete_original_files INTEGER DEFAULT 0,
				archive_max_size_mb INTEGER DEFAULT 100,
				updated_at TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS download_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_chat_id INTEGER,
				title TEXT,
				url TEXT,
				file_path TEXT,
				file_size_bytes INTEGER,
				duration_seconds INTEGER,
				source TEXT DEFAULT 'youtube',
				is_favorite INTEGER DEFAULT 0,
				downloaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS favorite_playlists (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_chat_id INTEGER,
				playlist_url TEXT,
				playlist_name TEXT,
				playlist_id TEXT,
				added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(user_chat_id, playlist_url)
			)`,
		},
	},
	{
		name: "0004_caches",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS youtube_metadata_cache (
				video_id TEXT PRIMARY KEY,
				title TEXT,
				uploader TEXT,
				duration_seconds INTEGER,
				thumbnail_url TEXT,
				is_age_restricted INTEGER DEFAULT 0,
				is_private INTEGER DEFAULT 0,
				cached_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				expires_at TIMESTAMP,
				access_count INTEGER DEFAULT 0,
				last_accessed_at TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS search_cache (
				query_hash TEXT PRIMARY KEY,
				query TEXT,
				results TEXT,
				cached_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				expires_at TIMESTAMP,
				access_count INTEGER DEFAULT 0,
				last_accessed_at TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS cookie_management (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				cookie_hash TEXT,
				uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				last_validated_at TIMESTAMP,
				is_valid INTEGER DEFAULT 1
			)`,
		},
	},
	{
		name: "0005_limits",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS rate_limits (
				user_chat_id INTEGER,
				action TEXT,
				attempt_count INTEGER DEFAULT 0,
				window_start TIMESTAMP,
				window_end TIMESTAMP,
				PRIMARY KEY(user_chat_id, action)
			)`,
			`CREATE TABLE IF NOT EXISTS api_usage_stats (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_chat_id INTEGER,
				action TEXT,
				execution_time_ms INTEGER,
				success INTEGER,
				error_code TEXT,
				recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
		},
	},
	{
		name: "0006_dedup",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS file_storage (
				file_hash_sha1 TEXT PRIMARY KEY,
				physical_path TEXT NOT NULL,
				file_size INTEGER NOT NULL,
				extension TEXT,
				youtube_url TEXT,
				title TEXT,
				downloaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				access_count INTEGER DEFAULT 1,
				last_accessed_at TIMESTAMP,
				is_protected INTEGER DEFAULT 1
			)`,
			`CREATE TABLE IF NOT EXISTS user_symlinks (
				symlink_path TEXT PRIMARY KEY,
				user_chat_id INTEGER,
				file_hash_sha1 TEXT,
				is_protected INTEGER DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS dedup_user_preferences (
				user_chat_id INTEGER PRIMARY KEY,
				dedup_enabled INTEGER DEFAULT 1,
				updated_at TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS dedup_file_metadata (
				file_hash_sha1 TEXT PRIMARY KEY,
				corruption_checks INTEGER DEFAULT 0,
				last_checked_at TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_symlinks_hash ON user_symlinks(file_hash_sha1)`,
			`CREATE INDEX IF NOT EXISTS idx_file_storage_url ON file_storage(youtube_url)`,
		},
	},
	{
		name: "0007_file_cache",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS file_cache (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				file_hash TEXT UNIQUE NOT NULL,
				file_path TEXT,
				channel_msg_id INTEGER,
				file_size INTEGER,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
		},
	},
}

// Migrate applies every migration, logging and continuing past failures.
// Safe to run any number of times.
func (d *DB) Migrate(ctx context.Context) error {
	var failed int
	for _, m := range migrations {
		if err := d.applyMigration(ctx, m); err != nil {
			failed++
			d.log.Error().Err(err).Str("migration", m.name).Msg("migration failed")
		}
	}
	if failed == len(migrations) {
		return fmt.Errorf("all %d migrations failed", failed)
	}
	return nil
}

func (d *DB) applyMigration(ctx context.Context, m migration) error {
	for _, stmt := range m.stmts {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", m.name, err)
		}
	}
	return nil
}
