package playlist

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/snapetech/mediaworkerr/internal/errcode"
	"github.com/snapetech/mediaworkerr/internal/ytdlp"
)

// Meta is the flat playlist metadata used to plan a download run.
type Meta struct {
	Title   string
	Count   int
	Entries []Entry
}

// Entry is one flat playlist entry.
type Entry struct {
	ID    string
	Title string
}

// Probe fetches playlist metadata with a single flat extractor run:
// entry ids and titles without resolving individual videos.
func Probe(ctx context.Context, r *ytdlp.Runner, c ytdlp.Common, url string) (*Meta, error) {
	pol := ytdlp.ProbePolicy{Common: c, Target: url, YesPlaylist: true, FlatPlaylist: true}
	var out strings.Builder
	err := r.Run(ctx, pol.Args(), func(line string) {
		out.WriteString(line)
		out.WriteByte('\n')
	}, nil)
	if err != nil {
		return nil, err
	}
	return parseProbe(out.String())
}

func parseProbe(raw string) (*Meta, error) {
	var doc struct {
		Title         string `json:"title"`
		PlaylistCount int    `json:"playlist_count"`
		Entries       []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"entries"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &doc); err != nil {
		return nil, errcode.Wrap(errcode.UnknownError, "parse playlist metadata", err)
	}
	m := &Meta{Title: doc.Title, Count: doc.PlaylistCount}
	for _, e := range doc.Entries {
		if e.ID == "" {
			continue
		}
		m.Entries = append(m.Entries, Entry{ID: e.ID, Title: e.Title})
	}
	if m.Count == 0 {
		m.Count = len(m.Entries)
	}
	return m, nil
}
