// Package pool implements the content-addressed storage pool. Files are
// identified by the SHA-1 of their bytes and live under
// <root>/.storage/tracks/<hash>/original_file.<ext> alongside a
// metadata.json sidecar; user-visible paths are symlinks into the pool,
// so identical downloads are stored once no matter how many users or
// playlists reference them.
package pool

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/snapetech/mediaworkerr/internal/db"
	"github.com/snapetech/mediaworkerr/internal/log"
)

const (
	storageDir  = ".storage"
	tracksDir   = "tracks"
	poolStem    = "original_file"
	sidecarName = "metadata.json"
)

// Pool manages the deduplicated storage under root. Safe for concurrent
// use; ingestions of the same content are serialised per hash.
type Pool struct {
	root string
	db   *db.DB
	sf   singleflight.Group
	log  zerolog.Logger
}

func New(root string, d *db.DB) *Pool {
	return &Pool{root: root, db: d, log: log.WithComponent("pool")}
}

// LinkRequest describes one downloaded file to ingest.
type LinkRequest struct {
	SourceFile string // freshly downloaded file, consumed by the call
	TargetPath string // user-visible path to create
	UserChatID int64
	OriginURL  string
	Title      string
	UseSymlink bool // false copies the pool file instead of linking
}

// Result reports where the content ended up.
type Result struct {
	Hash         string
	PoolPath     string
	Deduplicated bool // content was already pooled

	linkedTarget string // target the ingest itself materialised
}

// StoreOrLink ingests a downloaded file. Known content drops the
// duplicate and links the target at the existing pool file; new content
// is moved into the pool first. Either way the target path exists
// afterwards and the database reflects it.
func (p *Pool) StoreOrLink(ctx context.Context, req LinkRequest) (Result, error) {
	hash, size, err := hashFile(req.SourceFile)
	if err != nil {
		return Result{}, fmt.Errorf("hash source: %w", err)
	}

	v, err, _ := p.sf.Do(hash, func() (any, error) {
		return p.ingest(ctx, req, hash, size)
	})
	if err != nil {
		return Result{}, err
	}
	res := v.(Result)

	// the winning ingest materialised only its own target; a concurrent
	// loser goes through the dedup path so its target gets linked and
	// recorded and its duplicate bytes are dropped
	if res.linkedTarget != req.TargetPath {
		return p.dedupHit(ctx, req, hash, res.PoolPath)
	}
	return res, nil
}

func (p *Pool) ingest(ctx context.Context, req LinkRequest, hash string, size int64) (Result, error) {
	var existing string
	err := p.db.QueryRowContext(ctx,
		`SELECT physical_path FROM file_storage WHERE file_hash_sha1 = ?`, hash).Scan(&existing)
	switch {
	case err == nil:
		if _, statErr := os.Stat(existing); statErr == nil {
			return p.dedupHit(ctx, req, hash, existing)
		}
		// stale row: the physical file vanished, re-ingest over it
		p.log.Warn().Str("hash", hash).Str("path", existing).Msg("pool row without file, re-ingesting")
	case err != sql.ErrNoRows:
		return Result{}, fmt.Errorf("pool lookup: %w", err)
	}

	poolPath, err := p.admit(req.SourceFile, hash, size, req.OriginURL, req.Title)
	if err != nil {
		return Result{}, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = p.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO file_storage
			(file_hash_sha1, physical_path, file_size, extension, youtube_url, title,
			 downloaded_at, access_count, last_accessed_at, is_protected)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, 1)`,
		hash, poolPath, size, strings.TrimPrefix(filepath.Ext(poolPath), "."),
		req.OriginURL, req.Title, now, now)
	if err != nil {
		return Result{}, fmt.Errorf("record pool file: %w", err)
	}

	if err := p.Link(req.TargetPath, poolPath, req.UseSymlink); err != nil {
		return Result{}, err
	}
	if err := p.recordSymlink(ctx, req.TargetPath, req.UserChatID, hash); err != nil {
		return Result{}, err
	}
	ingests.WithLabelValues("stored").Inc()
	p.log.Info().Str("hash", hash).Str("pool_path", poolPath).Msg("content admitted to pool")
	return Result{Hash: hash, PoolPath: poolPath, linkedTarget: req.TargetPath}, nil
}

// dedupHit links the target at already-pooled content and drops the
// duplicate download.
func (p *Pool) dedupHit(ctx context.Context, req LinkRequest, hash, poolPath string) (Result, error) {
	if err := p.Link(req.TargetPath, poolPath, req.UseSymlink); err != nil {
		return Result{}, err
	}
	if err := p.recordSymlink(ctx, req.TargetPath, req.UserChatID, hash); err != nil {
		return Result{}, err
	}
	// in-place ingestion passes the same path for source and target; the
	// duplicate was already replaced by the link then
	if req.SourceFile != req.TargetPath {
		_ = os.Remove(req.SourceFile)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := p.db.ExecContext(ctx, `
		UPDATE file_storage SET access_count = access_count + 1, last_accessed_at = ?
		WHERE file_hash_sha1 = ?`, now, hash); err != nil {
		p.log.Warn().Err(err).Str("hash", hash).Msg("access bump failed")
	}
	p.maybeUpgradeURL(ctx, hash, poolPath, req.OriginURL)

	ingests.WithLabelValues("deduplicated").Inc()
	p.log.Info().Str("hash", hash).Str("target", req.TargetPath).Msg("duplicate content linked")
	return Result{Hash: hash, PoolPath: poolPath, Deduplicated: true, linkedTarget: req.TargetPath}, nil
}

// maybeUpgradeURL replaces a stored playlist-style origin URL with a
// specific watch URL when one becomes known. Specific URLs survive
// playlist expiry and make later archive validation possible.
func (p *Pool) maybeUpgradeURL(ctx context.Context, hash, poolPath, originURL string) {
	if !isSpecificVideoURL(originURL) {
		return
	}
	var stored string
	if err := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(youtube_url, '') FROM file_storage WHERE file_hash_sha1 = ?`, hash).Scan(&stored); err != nil {
		return
	}
	if isSpecificVideoURL(stored) {
		return
	}
	if _, err := p.db.ExecContext(ctx,
		`UPDATE file_storage SET youtube_url = ? WHERE file_hash_sha1 = ?`, originURL, hash); err != nil {
		p.log.Warn().Err(err).Str("hash", hash).Msg("url upgrade failed")
		return
	}
	// keep the sidecar in step
	sc, err := readSidecar(filepath.Dir(poolPath))
	if err == nil {
		sc.YoutubeURL = originURL
		_ = writeSidecar(filepath.Dir(poolPath), sc)
	}
	p.log.Debug().Str("hash", hash).Str("url", originURL).Msg("origin url upgraded")
}

func isSpecificVideoURL(u string) bool {
	return strings.Contains(u, "watch?v=") && !strings.Contains(u, "list=")
}

// admit moves the source into its pool slot and writes the sidecar.
func (p *Pool) admit(sourceFile, hash string, size int64, originURL, title string) (string, error) {
	dir := p.trackDir(hash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create pool dir: %w", err)
	}
	poolPath := filepath.Join(dir, poolStem+filepath.Ext(sourceFile))
	if err := moveFile(sourceFile, poolPath); err != nil {
		return "", fmt.Errorf("move into pool: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	sc := Sidecar{
		Size:           size,
		Hash:           hash,
		Extension:      strings.TrimPrefix(filepath.Ext(poolPath), "."),
		YoutubeURL:     originURL,
		Title:          title,
		DownloadedAt:   now,
		AccessCount:    1,
		LastAccessedAt: now,
	}
	if err := writeSidecar(dir, sc); err != nil {
		return "", fmt.Errorf("write sidecar: %w", err)
	}
	return poolPath, nil
}

// Link places target pointing at poolPath: a relative symlink when
// useSymlink is set (filesystems without symlink support fall back to a
// copy), a copy otherwise. An existing target is replaced.
func (p *Pool) Link(target, poolPath string, useSymlink bool) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}
	if _, err := os.Lstat(target); err == nil {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("replace target: %w", err)
		}
	}
	if useSymlink {
		rel, err := filepath.Rel(filepath.Dir(target), poolPath)
		if err != nil {
			rel = poolPath
		}
		if err := os.Symlink(rel, target); err == nil {
			return nil
		}
		p.log.Warn().Str("target", target).Msg("symlink failed, copying instead")
	}
	return copyFile(poolPath, target)
}

func (p *Pool) recordSymlink(ctx context.Context, target string, userChatID int64, hash string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_symlinks
			(symlink_path, user_chat_id, file_hash_sha1, is_protected, created_at)
		VALUES (?, ?, ?, 0, ?)`,
		target, userChatID, hash, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record symlink: %w", err)
	}
	return nil
}

// LinkKnown links target at an already-pooled file and records the
// symlink row. Used when a pre-scan located the content without a fresh
// download.
func (p *Pool) LinkKnown(ctx context.Context, poolPath, target string, userChatID int64) error {
	var hash string
	err := p.db.QueryRowContext(ctx,
		`SELECT file_hash_sha1 FROM file_storage WHERE physical_path = ?`, poolPath).Scan(&hash)
	if err != nil {
		return fmt.Errorf("pool path lookup: %w", err)
	}
	if err := p.Link(target, poolPath, true); err != nil {
		return err
	}
	return p.recordSymlink(ctx, target, userChatID, hash)
}

// PathForVideoID resolves a video id to its pooled file via the stored
// origin URL. Part of the archive reconciliation contract.
func (p *Pool) PathForVideoID(ctx context.Context, videoID string) (string, bool, error) {
	var path string
	err := p.db.QueryRowContext(ctx, `
		SELECT physical_path FROM file_storage
		WHERE youtube_url LIKE ? OR youtube_url LIKE ?
		LIMIT 1`,
		"%v="+videoID+"%", "%youtu.be/"+videoID+"%").Scan(&path)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

// DeleteRowsForVideoID removes the database trace of a video whose pool
// file is gone: its symlink rows first, then the storage row.
func (p *Pool) DeleteRowsForVideoID(ctx context.Context, videoID string) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT file_hash_sha1 FROM file_storage
		WHERE youtube_url LIKE ? OR youtube_url LIKE ?`,
		"%v="+videoID+"%", "%youtu.be/"+videoID+"%")
	if err != nil {
		return err
	}
	defer rows.Close()
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return err
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, h := range hashes {
		if _, err := p.db.ExecContext(ctx,
			`DELETE FROM user_symlinks WHERE file_hash_sha1 = ?`, h); err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx,
			`DELETE FROM file_storage WHERE file_hash_sha1 = ?`, h); err != nil {
			return err
		}
	}
	return nil
}

// Root returns the storage root the pool was created with.
func (p *Pool) Root() string { return p.root }

// StorageRoot returns the pool-internal directory tree that scans must
// skip.
func (p *Pool) StorageRoot() string { return filepath.Join(p.root, storageDir) }

func (p *Pool) trackDir(hash string) string {
	return filepath.Join(p.root, storageDir, tracksDir, hash)
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha1.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// moveFile renames, falling back to copy+remove across filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
