package ytdlp

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format chains used when the request does not pin a format.
const (
	AudioFormatChain = "bestaudio[ext=m4a]/bestaudio[ext=webm]/bestaudio/best"
	VideoFormatChain = "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/bestvideo[height<=1080]+bestaudio/best[height<=1080]/best"
)

// progressTemplate forces the stable "[download] N% at SPEED ETA E"
// shape the progress parser expects, independent of yt-dlp version.
const progressTemplate = "[download] %(progress._percent_str)s at %(progress._speed_str)s ETA %(progress._eta_str)s"

// IDMapPrefix tags the stdout lines that map downloaded file paths back
// to video ids during playlist batches.
const IDMapPrefix = "YTDLP_ID"

// Common carries the knobs shared by every invocation.
type Common struct {
	CookieArgs []string // ["--cookies", path] or nil
	NodeBin    string   // node binary for JS challenges; "" = none
}

// args appends the shared tail: cert/cache hygiene, player-client
// selection (authenticated web client when cookies exist, mixed
// mobile+web otherwise) and the optional JS runtime.
func (c Common) args(out []string) []string {
	out = append(out, "--no-cache-dir", "--no-check-certificate")
	player := "android,web"
	if len(c.CookieArgs) > 0 {
		player = "web"
	}
	out = append(out, c.CookieArgs...)
	out = append(out, "--extractor-args", "youtube:player_client="+player)
	if c.NodeBin != "" {
		out = append(out, "--js-runtimes", "node:"+c.NodeBin)
		out = append(out, "--remote-components", "ejs:github")
	}
	return out
}

// DownloadPolicy describes one single-video download.
type DownloadPolicy struct {
	Common
	URL              string
	ExtractAudio     bool
	AudioFormat      string // e.g. "mp3"
	AudioQuality     string // yt-dlp scale, "0" = best
	Format           string // explicit format id/chain for video mode
	BestAudioLimitMB int
	OutputDir        string
}

func (p DownloadPolicy) Args() []string {
	var out []string
	if p.ExtractAudio {
		limit := p.BestAudioLimitMB
		if limit <= 0 {
			limit = 15
		}
		format := p.AudioFormat
		if format == "" {
			format = "mp3"
		}
		quality := p.AudioQuality
		if quality == "" {
			quality = "0"
		}
		out = append(out,
			"-f", fmt.Sprintf("bestaudio[filesize<%dM]/bestaudio", limit),
			"-x", "--audio-format", format, "--audio-quality", quality,
		)
	} else {
		format := p.Format
		if format == "" {
			format = "best[ext=mp4]/best"
		}
		out = append(out, "-f", format)
		// merged video+audio selections need an explicit container
		if strings.Contains(format, "+") {
			out = append(out, "--merge-output-format", "mp4")
		}
	}
	out = append(out, "-o", filepath.Join(p.OutputDir, "%(title)s.%(ext)s"))
	out = append(out, "--newline", "--progress-template", progressTemplate)
	out = p.Common.args(out)
	return append(out, p.URL)
}

// ProbePolicy describes a one-shot metadata extraction (search, video
// info, format listing, playlist probe). No files are written.
type ProbePolicy struct {
	Common
	Target       string // URL or "ytsearchN:query"
	YesPlaylist  bool
	FlatPlaylist bool
}

func (p ProbePolicy) Args() []string {
	out := []string{"--dump-single-json", "--skip-download"}
	if p.YesPlaylist {
		out = append(out, "--yes-playlist")
	}
	if p.FlatPlaylist {
		out = append(out, "--flat-playlist")
	}
	out = p.Common.args(out)
	return append(out, p.Target)
}

// PreviewPolicy lists the first N entries of a playlist without
// downloading: one "title|count" header line, then "index\ttitle" lines.
type PreviewPolicy struct {
	Common
	URL          string
	PreviewCount int
}

func (p PreviewPolicy) Args() []string {
	n := p.PreviewCount
	if n <= 0 {
		n = 5
	}
	out := []string{
		"--flat-playlist",
		"--print", "%(playlist_title)s|%(playlist_count)s",
		"--print", "%(playlist_index)s\t%(title)s",
		"--playlist-end", fmt.Sprint(n),
	}
	out = p.Common.args(out)
	return append(out, p.URL)
}

// PlaylistPolicy describes a batch playlist download.
type PlaylistPolicy struct {
	Common
	URL            string
	ExtractAudio   bool
	AudioFormat    string
	Format         string // video-mode chain override
	OutputTemplate string // full -o value, directory included
	ArchiveFile    string
	PlaylistEnd    int
}

func (p PlaylistPolicy) Args() []string {
	out := []string{"--yes-playlist", "--ignore-errors", "--socket-timeout", "10"}
	if p.PlaylistEnd > 0 {
		out = append(out, "--playlist-end", fmt.Sprint(p.PlaylistEnd))
	}
	if p.ExtractAudio {
		format := p.AudioFormat
		if format == "" {
			format = "mp3"
		}
		out = append(out, "-f", AudioFormatChain, "-x", "--audio-format", format, "--audio-quality", "0")
	} else {
		chain := p.Format
		if chain == "" {
			chain = VideoFormatChain
		}
		out = append(out, "-f", chain)
	}
	if p.ArchiveFile != "" {
		out = append(out, "--download-archive", p.ArchiveFile)
	}
	out = append(out, "-o", p.OutputTemplate)
	// after_move fires once the final file is in place, so the printed
	// path is the one the storage pool will ingest. --print alone would
	// imply --simulate; --no-simulate keeps the download running.
	out = append(out, "--print", "after_move:"+IDMapPrefix+"\t%(id)s\t%(filepath)s", "--no-simulate")
	out = append(out, "--newline")
	out = p.Common.args(out)
	return append(out, p.URL)
}
