package users

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/mediaworkerr/internal/db"
	"github.com/snapetech/mediaworkerr/internal/log"
)

// Per-hour defaults per action class. Downloads are heavier than
// searches, playlists heavier still.
const (
	LimitSearch   = 60
	LimitDownload = 20
	LimitPlaylist = 10
)

// RateLimiter enforces per-user hourly windows stored in the database,
// so limits survive worker restarts and are visible to the parent
// process. It fails open: when the bookkeeping breaks, the user gets
// through.
type RateLimiter struct {
	db     *db.DB
	limits map[string]int
	log    zerolog.Logger
}

func NewRateLimiter(d *db.DB) *RateLimiter {
	return &RateLimiter{
		db: d,
		limits: map[string]int{
			"search":   LimitSearch,
			"download": LimitDownload,
			"playlist": LimitPlaylist,
		},
		log: log.WithComponent("ratelimit"),
	}
}

// Allow consumes one attempt of action for the user and reports whether
// it fits the hourly window. Actions without a configured limit always
// pass.
func (r *RateLimiter) Allow(ctx context.Context, chatID int64, action string) bool {
	limit, ok := r.limits[action]
	if !ok {
		return true
	}
	now := time.Now().UTC()

	var count int
	var windowEnd string
	err := r.db.QueryRowContext(ctx, `
		SELECT attempt_count, window_end FROM rate_limits
		WHERE user_chat_id = ? AND action = ?`, chatID, action).Scan(&count, &windowEnd)
	switch {
	case err == sql.ErrNoRows:
		return r.openWindow(ctx, chatID, action, now)
	case err != nil:
		r.log.Warn().Err(err).Int64("chat_id", chatID).Str("action", action).Msg("rate window lookup failed")
		return true
	}

	end, perr := time.Parse(time.RFC3339, windowEnd)
	if perr != nil || now.After(end) {
		return r.openWindow(ctx, chatID, action, now)
	}
	if count >= limit {
		r.log.Info().Int64("chat_id", chatID).Str("action", action).Int("count", count).Msg("rate limited")
		return false
	}
	if _, err := r.db.ExecContext(ctx, `
		UPDATE rate_limits SET attempt_count = attempt_count + 1
		WHERE user_chat_id = ? AND action = ?`, chatID, action); err != nil {
		r.log.Warn().Err(err).Msg("rate window bump failed")
	}
	return true
}

func (r *RateLimiter) openWindow(ctx context.Context, chatID int64, action string, now time.Time) bool {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO rate_limits (user_chat_id, action, attempt_count, window_start, window_end)
		VALUES (?, ?, 1, ?, ?)`,
		chatID, action,
		now.Format(time.RFC3339), now.Add(time.Hour).Format(time.RFC3339))
	if err != nil {
		r.log.Warn().Err(err).Msg("rate window open failed")
	}
	return true
}
