package handler

import (
	"context"
	"sort"

	"github.com/snapetech/mediaworkerr/internal/ipc"
)

// CacheCleanup serves cache_cleanup: purge expired cache rows.
func (d *Deps) CacheCleanup(ctx context.Context, req *ipc.Request, w *ipc.Writer) error {
	removed, err := d.Cache.Cleanup(ctx)
	if err != nil {
		return err
	}
	w.Send(req.TaskID, ipc.EventCacheCleanup, map[string]any{
		"removed_entries": removed,
	})
	return nil
}

// CacheStats serves cache_stats.
func (d *Deps) CacheStats(ctx context.Context, req *ipc.Request, w *ipc.Writer) error {
	stats, err := d.Cache.CacheStats(ctx)
	if err != nil {
		return err
	}
	w.Send(req.TaskID, ipc.EventCacheStats, stats)
	return nil
}

// HealthCheck serves health_check: identity, config snapshot and the
// registered actions.
func (d *Deps) HealthCheck(_ context.Context, req *ipc.Request, w *ipc.Writer) error {
	handlers := d.mux.Actions()
	sort.Strings(handlers)
	w.Send(req.TaskID, ipc.EventHealthOK, map[string]any{
		"worker":   "media-worker",
		"version":  d.Version,
		"config":   d.Cfg.Snapshot(),
		"handlers": handlers,
	})
	return nil
}
