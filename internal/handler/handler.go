// Package handler implements the worker's request actions on top of the
// extractor runner, the caches and the storage pool. Each action maps to
// one exported method registered on the IPC mux.
package handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/snapetech/mediaworkerr/internal/cache"
	"github.com/snapetech/mediaworkerr/internal/config"
	"github.com/snapetech/mediaworkerr/internal/cookies"
	"github.com/snapetech/mediaworkerr/internal/errcode"
	"github.com/snapetech/mediaworkerr/internal/ipc"
	"github.com/snapetech/mediaworkerr/internal/log"
	"github.com/snapetech/mediaworkerr/internal/pool"
	"github.com/snapetech/mediaworkerr/internal/upload"
	"github.com/snapetech/mediaworkerr/internal/users"
	"github.com/snapetech/mediaworkerr/internal/ytdlp"
)

// Deps bundles everything the handlers need. Built once at startup.
type Deps struct {
	Cfg     *config.Config
	Runner  *ytdlp.Runner
	Cookies *cookies.Store
	Cache   *cache.Cache
	Pool    *pool.Pool
	Users   *users.Manager
	Limits  *users.RateLimiter
	Upload  *upload.Service // nil disables mtproto_upload
	Gate    *rate.Limiter   // global probe gate
	Version string

	mux *ipc.Mux
	log zerolog.Logger
}

// Register wires every action onto mux. mtproto_upload only appears
// when uploads are enabled; a missing transport then surfaces as
// CONFIG_ERROR per request rather than an unknown action.
func (d *Deps) Register(mux *ipc.Mux) {
	d.mux = mux
	d.log = log.WithComponent("handler")

	mux.Handle("youtube_dl", d.YoutubeDL)
	mux.Handle("youtube_search", d.Search)
	mux.Handle("get_video_info", d.VideoInfo)
	mux.Handle("get_formats", d.Formats)
	mux.Handle("playlist", d.Playlist)
	mux.Handle("playlist_preview", d.PlaylistPreview)
	mux.Handle("cache_cleanup", d.CacheCleanup)
	mux.Handle("cache_stats", d.CacheStats)
	mux.Handle("health_check", d.HealthCheck)
	if d.Upload != nil {
		mux.Handle("mtproto_upload", d.MProtoUpload)
	}
}

// common assembles the per-invocation extractor knobs; the cookie store
// refreshes its working copy on every call.
func (d *Deps) common() ytdlp.Common {
	return ytdlp.Common{CookieArgs: d.Cookies.Args(), NodeBin: d.Cfg.NodeBin}
}

// probeJSON runs a metadata probe and decodes its single-JSON output
// into target. Respects the global probe gate.
func (d *Deps) probeJSON(ctx context.Context, pol ytdlp.ProbePolicy, target any) error {
	if d.Gate != nil {
		if err := d.Gate.Wait(ctx); err != nil {
			return err
		}
	}
	var out strings.Builder
	if err := d.Runner.Run(ctx, pol.Args(), func(line string) {
		out.WriteString(line)
		out.WriteByte('\n')
	}, nil); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.String())), target); err != nil {
		return errcode.Wrap(errcode.UnknownError, "parse extractor metadata", err)
	}
	return nil
}
