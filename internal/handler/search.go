package handler

import (
	"context"
	"fmt"

	"github.com/snapetech/mediaworkerr/internal/cache"
	"github.com/snapetech/mediaworkerr/internal/errcode"
	"github.com/snapetech/mediaworkerr/internal/ipc"
	"github.com/snapetech/mediaworkerr/internal/util"
	"github.com/snapetech/mediaworkerr/internal/ytdlp"
)

// flatEntry is one entry of a flat-playlist probe (search results are a
// flat playlist too).
type flatEntry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Uploader string  `json:"uploader"`
	Channel  string  `json:"channel"`
	Duration float64 `json:"duration"`
	Thumbnails []struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

func (e flatEntry) toResult() cache.SearchResult {
	artist := e.Uploader
	if artist == "" {
		artist = e.Channel
	}
	thumb := thumbnailFallback(e.ID)
	if len(e.Thumbnails) > 0 && e.Thumbnails[len(e.Thumbnails)-1].URL != "" {
		thumb = e.Thumbnails[len(e.Thumbnails)-1].URL
	}
	return cache.SearchResult{
		VideoID:   e.ID,
		Title:     e.Title,
		Artist:    artist,
		Duration:  int(e.Duration),
		Thumbnail: thumb,
		URL:       "https://www.youtube.com/watch?v=" + e.ID,
	}
}

func thumbnailFallback(videoID string) string {
	return "https://img.youtube.com/vi/" + videoID + "/mqdefault.jpg"
}

// Search serves youtube_search: cached when possible, otherwise one
// flat ytsearchN probe.
func (d *Deps) Search(ctx context.Context, req *ipc.Request, w *ipc.Writer) error {
	query := req.ParamString("query", req.URL)
	if err := util.ValidateSearchQuery(query); err != nil {
		return errcode.Wrap(errcode.InvalidURL, "invalid search query", err)
	}
	if !d.Limits.Allow(ctx, req.UserChatID, "search") {
		return errcode.New(errcode.RateLimited, "hourly search limit reached")
	}
	d.Users.Touch(ctx, req.UserChatID)

	limit := req.ParamInt("limit", 5)
	if limit < 1 || limit > 20 {
		limit = 5
	}

	if results, ok := d.Cache.GetSearch(ctx, query); ok {
		w.Send(req.TaskID, ipc.EventSearch, map[string]any{
			"results":    results,
			"from_cache": true,
		})
		return nil
	}

	var doc struct {
		Entries []flatEntry `json:"entries"`
	}
	pol := ytdlp.ProbePolicy{
		Common:       d.common(),
		Target:       fmt.Sprintf("ytsearch%d:%s", limit, query),
		FlatPlaylist: true,
	}
	if err := d.probeJSON(ctx, pol, &doc); err != nil {
		return err
	}

	results := make([]cache.SearchResult, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		if e.ID == "" {
			continue
		}
		results = append(results, e.toResult())
	}
	d.Cache.SetSearch(ctx, query, results)

	w.Send(req.TaskID, ipc.EventSearch, map[string]any{
		"results":    results,
		"from_cache": false,
	})
	return nil
}

// VideoInfo serves get_video_info through the metadata cache.
func (d *Deps) VideoInfo(ctx context.Context, req *ipc.Request, w *ipc.Writer) error {
	videoID, ok := util.VideoIDFromURL(req.URL)
	if !ok {
		return errcode.New(errcode.InvalidURL, "cannot extract a video id from the url")
	}
	d.Users.Touch(ctx, req.UserChatID)

	if meta, ok := d.Cache.GetVideoMeta(ctx, videoID); ok {
		w.Send(req.TaskID, ipc.EventVideoInfo, infoPayload(meta, true))
		return nil
	}

	var doc struct {
		ID           string  `json:"id"`
		Title        string  `json:"title"`
		Uploader     string  `json:"uploader"`
		Duration     float64 `json:"duration"`
		Thumbnail    string  `json:"thumbnail"`
		AgeLimit     int     `json:"age_limit"`
		Availability string  `json:"availability"`
	}
	pol := ytdlp.ProbePolicy{Common: d.common(), Target: req.URL}
	if err := d.probeJSON(ctx, pol, &doc); err != nil {
		return err
	}

	thumb := doc.Thumbnail
	if thumb == "" {
		thumb = thumbnailFallback(videoID)
	}
	meta := &cache.VideoMeta{
		VideoID:         videoID,
		Title:           doc.Title,
		Uploader:        doc.Uploader,
		DurationSeconds: int(doc.Duration),
		ThumbnailURL:    thumb,
		IsAgeRestricted: doc.AgeLimit > 0,
		IsPrivate:       doc.Availability == "private",
	}
	d.Cache.SetVideoMeta(ctx, meta)

	w.Send(req.TaskID, ipc.EventVideoInfo, infoPayload(meta, false))
	return nil
}

func infoPayload(m *cache.VideoMeta, fromCache bool) map[string]any {
	return map[string]any{
		"video_id":          m.VideoID,
		"title":             m.Title,
		"uploader":          m.Uploader,
		"duration_seconds":  m.DurationSeconds,
		"thumbnail_url":     m.ThumbnailURL,
		"is_age_restricted": m.IsAgeRestricted,
		"is_private":        m.IsPrivate,
		"from_cache":        fromCache,
	}
}
