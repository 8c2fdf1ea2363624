// Package repair runs the periodic self-healing pass over the storage
// pool: broken user symlinks are re-pointed at their pooled files,
// unsalvageable links and orphaned database rows are cleaned up, and
// pool files are checked against their sidecars for corruption. The
// pass never deletes pooled content itself.
package repair

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/mediaworkerr/internal/db"
	"github.com/snapetech/mediaworkerr/internal/log"
	"github.com/snapetech/mediaworkerr/internal/pool"
)

// Service is the repair loop. Create with New, start with Run.
type Service struct {
	pool     *pool.Pool
	db       *db.DB
	interval time.Duration
	log      zerolog.Logger
}

func New(p *pool.Pool, d *db.DB, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{pool: p, db: d, interval: interval, log: log.WithComponent("repair")}
}

// Report summarises one repair cycle.
type Report struct {
	Healthy    int
	Repaired   int
	Removed    int
	Corrupted  int
	OrphanRows int
}

// Run executes repair cycles until ctx is cancelled. A failing cycle is
// logged and the loop keeps going; the worker must outlive any single
// bad pass.
func (s *Service) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("repair service started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("repair service stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Service) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("repair cycle panicked")
		}
	}()
	rep, err := s.Cycle(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("repair cycle failed")
		return
	}
	s.log.Info().
		Int("healthy", rep.Healthy).
		Int("repaired", rep.Repaired).
		Int("removed", rep.Removed).
		Int("corrupted", rep.Corrupted).
		Int("orphan_rows", rep.OrphanRows).
		Msg("repair cycle done")
}

// Cycle runs one full pass: symlink scan, orphan row cleanup, then the
// corruption check.
func (s *Service) Cycle(ctx context.Context) (Report, error) {
	var rep Report
	if err := s.scanSymlinks(ctx, &rep); err != nil {
		return rep, err
	}
	if err := s.cleanOrphanRows(ctx, &rep); err != nil {
		return rep, err
	}
	if err := s.checkCorruption(ctx, &rep); err != nil {
		return rep, err
	}
	symlinksRepaired.Add(float64(rep.Repaired))
	symlinksRemoved.Add(float64(rep.Removed))
	corruptionHits.Add(float64(rep.Corrupted))
	return rep, nil
}

// scanSymlinks walks the user-visible tree, skipping the pool itself.
func (s *Service) scanSymlinks(ctx context.Context, rep *Report) error {
	storage := s.pool.StorageRoot()
	return filepath.WalkDir(s.pool.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // a vanished directory is not a scan failure
		}
		if d.IsDir() {
			if path == storage || strings.HasPrefix(path, storage+string(os.PathSeparator)) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		if _, err := os.Stat(path); err == nil {
			rep.Healthy++
			return nil
		}
		s.fixBrokenLink(ctx, path, rep)
		return nil
	})
}

// fixBrokenLink re-points a dangling symlink at its pooled file when the
// database still knows the content, otherwise removes the link and its
// row.
func (s *Service) fixBrokenLink(ctx context.Context, path string, rep *Report) {
	var physical string
	err := s.db.QueryRowContext(ctx, `
		SELECT fs.physical_path
		FROM user_symlinks us JOIN file_storage fs ON fs.file_hash_sha1 = us.file_hash_sha1
		WHERE us.symlink_path = ?`, path).Scan(&physical)
	if err == nil {
		if _, statErr := os.Stat(physical); statErr == nil {
			if linkErr := s.pool.Link(path, physical, true); linkErr == nil {
				rep.Repaired++
				s.log.Info().Str("path", path).Msg("symlink repaired")
				return
			}
		}
	} else if err != sql.ErrNoRows {
		s.log.Warn().Err(err).Str("path", path).Msg("symlink lookup failed")
		return
	}

	if rmErr := os.Remove(path); rmErr != nil {
		s.log.Warn().Err(rmErr).Str("path", path).Msg("broken symlink removal failed")
		return
	}
	if _, delErr := s.db.ExecContext(ctx,
		`DELETE FROM user_symlinks WHERE symlink_path = ?`, path); delErr != nil {
		s.log.Warn().Err(delErr).Str("path", path).Msg("symlink row cleanup failed")
	}
	rep.Removed++
	s.log.Info().Str("path", path).Msg("unsalvageable symlink removed")
}

// cleanOrphanRows deletes user_symlinks rows whose path is gone from
// disk.
func (s *Service) cleanOrphanRows(ctx context.Context, rep *Report) error {
	rows, err := s.db.QueryContext(ctx, `SELECT symlink_path FROM user_symlinks`)
	if err != nil {
		return err
	}
	defer rows.Close()
	var orphans []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return err
		}
		if _, err := os.Lstat(p); os.IsNotExist(err) {
			orphans = append(orphans, p)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, p := range orphans {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM user_symlinks WHERE symlink_path = ?`, p); err != nil {
			return err
		}
		rep.OrphanRows++
	}
	return nil
}

// checkCorruption compares each pool file's size against its sidecar.
// A mismatch only bumps the corruption counter; deletion is a human
// decision.
func (s *Service) checkCorruption(ctx context.Context, rep *Report) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_hash_sha1, physical_path FROM file_storage`)
	if err != nil {
		return err
	}
	defer rows.Close()
	type entry struct{ hash, path string }
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.hash, &e.path); err != nil {
			return err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, e := range entries {
		fi, statErr := os.Stat(e.path)
		sc, scErr := pool.ReadSidecar(e.path)
		healthy := statErr == nil && scErr == nil && fi.Size() == sc.Size
		if healthy {
			continue
		}
		rep.Corrupted++
		s.log.Warn().Str("hash", e.hash).Str("path", e.path).Msg("pool entry failed size check")
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO dedup_file_metadata (file_hash_sha1, corruption_checks, last_checked_at)
			VALUES (?, 1, ?)
			ON CONFLICT(file_hash_sha1) DO UPDATE SET
				corruption_checks = corruption_checks + 1, last_checked_at = excluded.last_checked_at`,
			e.hash, now); err != nil {
			s.log.Warn().Err(err).Str("hash", e.hash).Msg("corruption counter update failed")
		}
	}
	return nil
}
