// Package upload pushes finished files to the user's channel through a
// pluggable transport and remembers results by content hash, so the
// same bytes are never uploaded twice.
package upload

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/mediaworkerr/internal/db"
	"github.com/snapetech/mediaworkerr/internal/errcode"
	"github.com/snapetech/mediaworkerr/internal/log"
)

// Uploader is the transport that actually moves bytes. progress is
// called with monotonically increasing byte counts; implementations may
// call it as often as they like, throttling happens in the service.
type Uploader interface {
	Upload(ctx context.Context, filePath string, progress func(sent, total int64)) (messageID int64, err error)
}

// Progress is one throttled upload progress sample.
type Progress struct {
	Percent float64
	SpeedMB float64 // MB/s since the previous sample
}

// Service wraps an Uploader with the content-hash result cache.
type Service struct {
	db       *db.DB
	uploader Uploader // nil when the transport is not configured
	log      zerolog.Logger
}

func New(d *db.DB, u Uploader) *Service {
	return &Service{db: d, uploader: u, log: log.WithComponent("upload")}
}

// Configured reports whether an upload transport is wired in.
func (s *Service) Configured() bool { return s.uploader != nil }

// Run uploads filePath, short-circuiting on a cache hit. onProgress
// receives at most one sample every 3 seconds. Returns the channel
// message id and whether it came from the cache.
func (s *Service) Run(ctx context.Context, filePath string, onProgress func(Progress)) (int64, bool, error) {
	fi, err := os.Stat(filePath)
	if err != nil {
		return 0, false, errcode.New(errcode.FileNotFound,
			fmt.Sprintf("upload source missing: %s", filePath))
	}
	if s.uploader == nil {
		return 0, false, errcode.New(errcode.ConfigError, "upload transport is not configured")
	}

	hash, err := SHA256File(filePath)
	if err != nil {
		return 0, false, fmt.Errorf("hash upload source: %w", err)
	}
	if msgID, ok, err := s.cachedMessageID(ctx, hash); err != nil {
		s.log.Warn().Err(err).Msg("upload cache lookup failed")
	} else if ok {
		s.log.Info().Str("hash", hash).Int64("message_id", msgID).Msg("upload served from cache")
		return msgID, true, nil
	}

	total := fi.Size()
	lastEmit := time.Time{}
	lastSent := int64(0)
	msgID, err := s.uploader.Upload(ctx, filePath, func(sent, _ int64) {
		now := time.Now()
		if onProgress == nil || now.Sub(lastEmit) < 3*time.Second {
			return
		}
		elapsed := now.Sub(lastEmit).Seconds()
		speed := 0.0
		if !lastEmit.IsZero() && elapsed > 0 {
			speed = float64(sent-lastSent) / elapsed / (1 << 20)
		}
		lastEmit, lastSent = now, sent
		pct := 0.0
		if total > 0 {
			pct = float64(sent) / float64(total) * 100
		}
		onProgress(Progress{Percent: pct, SpeedMB: speed})
	})
	if err != nil {
		return 0, false, err
	}

	if err := s.remember(ctx, hash, filePath, msgID, total); err != nil {
		s.log.Warn().Err(err).Str("hash", hash).Msg("upload cache store failed")
	}
	return msgID, false, nil
}

func (s *Service) cachedMessageID(ctx context.Context, hash string) (int64, bool, error) {
	var msgID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_msg_id FROM file_cache WHERE file_hash = ?`, hash).Scan(&msgID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return msgID, true, nil
}

func (s *Service) remember(ctx context.Context, hash, path string, msgID, size int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO file_cache (file_hash, file_path, channel_msg_id, file_size, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		hash, path, msgID, size, time.Now().UTC().Format(time.RFC3339))
	return err
}

// SHA256File returns the hex SHA-256 of the file contents.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
