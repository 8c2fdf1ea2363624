package playlist

import (
	"context"
	"strconv"
	"strings"

	"github.com/snapetech/mediaworkerr/internal/ytdlp"
)

// Preview is a cheap first-page look at a playlist: name, total track
// count and the first few titles.
type Preview struct {
	Name   string   `json:"playlist_name"`
	Total  int      `json:"total_tracks"`
	Tracks []string `json:"tracks"`
}

// FetchPreview runs a flat print-only extractor pass limited to count
// entries and parses its output. The first printed line carries
// "title|count"; each following line is "index\ttitle".
func FetchPreview(ctx context.Context, r *ytdlp.Runner, c ytdlp.Common, url string, count int) (*Preview, error) {
	pol := ytdlp.PreviewPolicy{Common: c, URL: url, PreviewCount: count}
	var lines []string
	err := r.Run(ctx, pol.Args(), func(line string) {
		lines = append(lines, line)
	}, nil)
	if err != nil {
		return nil, err
	}
	return parsePreview(lines), nil
}

func parsePreview(lines []string) *Preview {
	p := &Preview{Name: "Unknown Playlist"}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if idx := strings.IndexByte(line, '\t'); idx >= 0 {
			title := strings.TrimSpace(line[idx+1:])
			if title != "" && title != "NA" {
				p.Tracks = append(p.Tracks, title)
			}
			continue
		}
		// header line, printed once per entry; first wins
		if p.Total == 0 && p.Name == "Unknown Playlist" {
			name, count, ok := strings.Cut(line, "|")
			if !ok {
				continue
			}
			if name = strings.TrimSpace(name); name != "" && name != "NA" {
				p.Name = name
			}
			if n, err := strconv.Atoi(strings.TrimSpace(count)); err == nil {
				p.Total = n
			}
		}
	}
	if p.Total == 0 {
		p.Total = len(p.Tracks)
	}
	return p
}
