package playlist

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/google/renameio/v2"
)

// Archive is a yt-dlp download archive: one "youtube <id>" line per
// video already downloaded. The extractor skips archived ids, so the
// archive doubles as the playlist's dedup state between runs.
type Archive struct {
	Path string
}

// Read returns the video ids in the archive, in file order. A missing
// archive reads as empty.
func (a Archive) Read() ([]string, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		// "youtube dQw4w9WgXcQ"
		if fields := strings.Fields(line); len(fields) == 2 && fields[0] == "youtube" {
			ids = append(ids, fields[1])
		}
	}
	return ids, sc.Err()
}

// Write replaces the archive contents atomically.
func (a Archive) Write(ids []string) error {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString("youtube ")
		b.WriteString(id)
		b.WriteByte('\n')
	}
	return renameio.WriteFile(a.Path, []byte(b.String()), 0o644)
}

// PoolIndex is the slice of the storage pool the archive reconciliation
// needs: resolve a video id to its pooled file, and clean up the rows
// of an entry whose file is gone.
type PoolIndex interface {
	// PathForVideoID returns the physical pool path recorded for the
	// video, and whether any pool row matched.
	PathForVideoID(ctx context.Context, videoID string) (string, bool, error)
	// DeleteRowsForVideoID removes the storage and symlink rows of a
	// video whose physical file has disappeared.
	DeleteRowsForVideoID(ctx context.Context, videoID string) error
}

// Validate drops archive lines whose pool entry lost its physical file,
// deleting the orphaned database rows as it goes. Lines with no pool
// match at all are kept: the file may live outside the pool, and a
// dropped line only costs a re-download, while a wrongly kept one costs
// a silent skip. Returns the surviving ids.
func (a Archive) Validate(ctx context.Context, idx PoolIndex) ([]string, error) {
	ids, err := a.Read()
	if err != nil {
		return nil, err
	}
	kept := make([]string, 0, len(ids))
	changed := false
	for _, id := range ids {
		path, found, err := idx.PathForVideoID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			kept = append(kept, id)
			continue
		}
		if _, err := os.Stat(path); err == nil {
			kept = append(kept, id)
			continue
		}
		// pool row without a file: stale archive line
		changed = true
		if err := idx.DeleteRowsForVideoID(ctx, id); err != nil {
			return nil, err
		}
	}
	if changed {
		if err := a.Write(kept); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

// CachedHits pre-scans the wanted entry ids against the validated
// archive. Ids that are archived and whose pool file exists come back
// as hits (id to pool path); archived ids whose file cannot be located
// are removed from the archive so the next run re-downloads them.
func (a Archive) CachedHits(ctx context.Context, idx PoolIndex, entryIDs []string) (map[string]string, error) {
	archived, err := a.Read()
	if err != nil {
		return nil, err
	}
	inArchive := make(map[string]bool, len(archived))
	for _, id := range archived {
		inArchive[id] = true
	}

	hits := make(map[string]string)
	drop := make(map[string]bool)
	for _, id := range entryIDs {
		if !inArchive[id] {
			continue
		}
		path, found, err := idx.PathForVideoID(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			if _, err := os.Stat(path); err == nil {
				hits[id] = path
				continue
			}
		}
		drop[id] = true
	}

	if len(drop) > 0 {
		kept := archived[:0:0]
		for _, id := range archived {
			if !drop[id] {
				kept = append(kept, id)
			}
		}
		if err := a.Write(kept); err != nil {
			return nil, err
		}
	}
	return hits, nil
}
