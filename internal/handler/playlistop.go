package handler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/snapetech/mediaworkerr/internal/errcode"
	"github.com/snapetech/mediaworkerr/internal/ipc"
	"github.com/snapetech/mediaworkerr/internal/playlist"
	"github.com/snapetech/mediaworkerr/internal/pool"
	"github.com/snapetech/mediaworkerr/internal/util"
	"github.com/snapetech/mediaworkerr/internal/ytdlp"
)

const archiveFileName = ".archive.txt"

type playlistFile struct {
	Path   string  `json:"path"`
	Name   string  `json:"name"`
	SizeMB float64 `json:"size_mb"`
	Cached bool    `json:"cached"`
}

// Playlist serves the playlist action: normalise, probe, reconcile the
// download archive against the pool, short-circuit on a full cache hit,
// otherwise batch-download and ingest every new track.
func (d *Deps) Playlist(ctx context.Context, req *ipc.Request, w *ipc.Writer) error {
	start := time.Now()
	url := playlist.NormalizeURL(req.URL)
	isMix := playlist.IsRadioMix(url)
	if err := util.ValidateYouTubeURL(url); err != nil {
		return errcode.Wrap(errcode.InvalidURL, "unsupported url", err)
	}
	if !d.Limits.Allow(ctx, req.UserChatID, "playlist") {
		return errcode.New(errcode.RateLimited, "hourly playlist limit reached")
	}
	d.Users.Touch(ctx, req.UserChatID)

	meta, err := playlist.Probe(ctx, d.Runner, d.common(), url)
	if err != nil {
		return err
	}
	name := meta.Title
	if name == "" {
		name = "playlist"
	}
	if limit := d.Cfg.PlaylistNameMaxLength; limit > 0 && len(name) > limit {
		name = name[:limit]
	}

	folder := playlistFolder(req.ParamString("output_dir", d.Cfg.DownloadDir), name)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("create playlist folder: %w", err)
	}

	playlistEnd := req.ParamInt("playlist_end", 0)
	wanted := meta.Entries
	if playlistEnd > 0 && len(wanted) > playlistEnd {
		wanted = wanted[:playlistEnd]
	}
	total := len(wanted)
	if total == 0 {
		total = meta.Count
	}

	arch := playlist.Archive{Path: archivePath(req, folder)}
	if _, err := arch.Validate(ctx, d.Pool); err != nil {
		return fmt.Errorf("validate archive: %w", err)
	}
	entryIDs := make([]string, len(wanted))
	titles := make(map[string]string, len(wanted))
	for i, e := range wanted {
		entryIDs[i] = e.ID
		titles[e.ID] = e.Title
	}
	hits, err := arch.CachedHits(ctx, d.Pool, entryIDs)
	if err != nil {
		return fmt.Errorf("archive pre-scan: %w", err)
	}

	files := d.linkCachedHits(ctx, req.UserChatID, folder, hits, titles)

	// every wanted entry already pooled: answer without launching the
	// extractor at all
	if len(wanted) > 0 && len(hits) == len(wanted) {
		d.finishPlaylist(ctx, req, w, url, name, folder, files, 0, len(hits))
		d.Users.RecordUsage(ctx, req.UserChatID, req.Action, time.Since(start), true, "")
		return nil
	}

	template := filepath.Join(folder, "%(playlist_index)03d - %(title)s.%(ext)s")
	if isMix {
		// mixes are endless; there is no stable index to prefix
		template = filepath.Join(folder, "%(title)s.%(ext)s")
	}
	pol := ytdlp.PlaylistPolicy{
		Common:         d.common(),
		URL:            url,
		ExtractAudio:   req.ParamBool("extract_audio", true),
		AudioFormat:    req.ParamString("audio_format", "mp3"),
		Format:         req.ParamString("format", ""),
		OutputTemplate: template,
		ArchiveFile:    arch.Path,
		PlaylistEnd:    playlistEnd,
	}

	idMap := map[string]string{} // filepath -> video id
	completed := len(hits)
	runErr := d.Runner.Run(ctx, pol.Args(), func(line string) {
		id, path, ok := parseIDMapLine(line)
		if !ok {
			return
		}
		idMap[path] = id
		completed++
		pct := 0.0
		if total > 0 {
			pct = float64(completed) / float64(total) * 100
		}
		w.Progress(req.TaskID, pct, "", 0,
			fmt.Sprintf("downloaded %d/%d", completed, total))
	}, nil)
	// --ignore-errors means single bad entries surface as a nonzero exit
	// even when most of the batch landed; only give up when nothing did
	if runErr != nil && len(idMap) == 0 {
		d.Users.RecordUsage(ctx, req.UserChatID, req.Action, time.Since(start), false,
			string(errcode.CodeOf(runErr)))
		return runErr
	}

	downloaded := 0
	for path, id := range idMap {
		fi, err := os.Stat(path)
		if err != nil {
			d.log.Warn().Str("path", path).Msg("printed track file missing")
			continue
		}
		d.ingestTrack(ctx, req.UserChatID, path, id)
		files = append(files, playlistFile{
			Path:   path,
			Name:   filepath.Base(path),
			SizeMB: float64(fi.Size()) / (1 << 20),
			Cached: false,
		})
		downloaded++
	}

	d.finishPlaylist(ctx, req, w, url, name, folder, files, downloaded, len(hits))
	d.Users.RecordUsage(ctx, req.UserChatID, req.Action, time.Since(start), true, "")
	return nil
}

// archivePath honours a caller-supplied archive_file, defaulting to the
// hidden archive inside the playlist folder.
func archivePath(req *ipc.Request, folder string) string {
	return req.ParamString("archive_file", filepath.Join(folder, archiveFileName))
}

// playlistFolder derives the on-disk folder for a playlist: the
// sanitised playlist name under base, which is either the configured
// download root or a caller-supplied output_dir.
func playlistFolder(base, name string) string {
	return filepath.Join(base, util.SanitizeFolderName(name))
}

// linkCachedHits materialises pre-scan hits inside the playlist folder.
func (d *Deps) linkCachedHits(ctx context.Context, chatID int64, folder string, hits map[string]string, titles map[string]string) []playlistFile {
	var files []playlistFile
	for id, poolPath := range hits {
		title := titles[id]
		if title == "" {
			title = id
		}
		target := filepath.Join(folder,
			util.SanitizeFilename(title)+filepath.Ext(poolPath))
		if _, err := os.Stat(target); err != nil {
			if err := d.Pool.LinkKnown(ctx, poolPath, target, chatID); err != nil {
				d.log.Warn().Err(err).Str("id", id).Msg("cached hit link failed")
				continue
			}
		}
		size := int64(0)
		if fi, err := os.Stat(poolPath); err == nil {
			size = fi.Size()
		}
		files = append(files, playlistFile{
			Path:   target,
			Name:   filepath.Base(target),
			SizeMB: float64(size) / (1 << 20),
			Cached: true,
		})
	}
	return files
}

func (d *Deps) ingestTrack(ctx context.Context, chatID int64, path, videoID string) {
	if !d.Users.DedupEnabled(ctx, chatID) {
		return
	}
	// pool rows carry the specific video URL, never the playlist URL, so
	// later archive validation can resolve entries individually
	_, err := d.Pool.StoreOrLink(ctx, pool.LinkRequest{
		SourceFile: path,
		TargetPath: path,
		UserChatID: chatID,
		OriginURL:  "https://www.youtube.com/watch?v=" + videoID,
		Title:      filepath.Base(path),
		UseSymlink: true,
	})
	if err != nil {
		d.log.Warn().Err(err).Str("path", path).Msg("track ingestion failed")
	}
}

func (d *Deps) finishPlaylist(ctx context.Context, req *ipc.Request, w *ipc.Writer, url, name, folder string, files []playlistFile, downloaded, cached int) {
	d.Users.RecordPlaylist(ctx, req.UserChatID, url, name, len(files))
	w.Send(req.TaskID, ipc.EventDone, map[string]any{
		"playlist_name":           name,
		"total_tracks_downloaded": downloaded,
		"already_cached":          cached,
		"files":                   files,
		"folder_path":             folder,
	})
}

// parseIDMapLine splits a "YTDLP_ID\t<id>\t<filepath>" stdout line.
func parseIDMapLine(line string) (id, path string, ok bool) {
	if !strings.HasPrefix(line, ytdlp.IDMapPrefix+"\t") {
		return "", "", false
	}
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// PlaylistPreview serves playlist_preview: a cheap flat look at the
// first few entries.
func (d *Deps) PlaylistPreview(ctx context.Context, req *ipc.Request, w *ipc.Writer) error {
	url := playlist.NormalizeURL(req.URL)
	if err := util.ValidateYouTubeURL(url); err != nil {
		return errcode.Wrap(errcode.InvalidURL, "unsupported url", err)
	}
	if d.Gate != nil {
		if err := d.Gate.Wait(ctx); err != nil {
			return err
		}
	}
	preview, err := playlist.FetchPreview(ctx, d.Runner, d.common(), url,
		req.ParamInt("preview_count", 5))
	if err != nil {
		return err
	}
	w.Send(req.TaskID, ipc.EventDone, preview)
	return nil
}
