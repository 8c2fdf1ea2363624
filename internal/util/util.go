// Package util holds path hygiene, URL validation and formatting helpers
// shared by the handlers.
package util

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	forbiddenChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	multiSpace     = regexp.MustCompile(`\s+`)
	videoIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
)

// allowed YouTube-family hosts for download/probe requests
var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// SanitizeFilename makes name safe for use as a single path component.
// Empty results become "untitled". Max 200 runes.
func SanitizeFilename(name string) string {
	return sanitizeComponent(name, 200, "untitled")
}

// SanitizeFolderName is SanitizeFilename with playlist-folder limits.
func SanitizeFolderName(name string) string {
	return sanitizeComponent(name, 100, "playlist")
}

func sanitizeComponent(name string, maxLen int, fallback string) string {
	s := strings.ReplaceAll(name, "..", "")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "\\", "")
	s = forbiddenChars.ReplaceAllString(s, "")
	s = multiSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxLen {
		s = strings.TrimSpace(string(r[:maxLen]))
	}
	if s == "" {
		return fallback
	}
	return s
}

// ValidateYouTubeURL rejects anything that is not an http(s) URL on a
// YouTube-family host.
func ValidateYouTubeURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if !youtubeHosts[strings.ToLower(u.Hostname())] {
		return fmt.Errorf("host %q not allowed", u.Hostname())
	}
	return nil
}

// ValidateSearchQuery rejects empty, oversized, or shell-metacharacter
// queries. Queries are passed as a single argv element, never through a
// shell, but metacharacters are still refused as junk input.
func ValidateSearchQuery(q string) error {
	q = strings.TrimSpace(q)
	if q == "" {
		return fmt.Errorf("empty query")
	}
	if len(q) > 100 {
		return fmt.Errorf("query too long (%d > 100)", len(q))
	}
	if strings.ContainsAny(q, ";|&$`\n\r") || strings.Contains(q, "$(") {
		return fmt.Errorf("query contains forbidden characters")
	}
	return nil
}

// SafeOutputPath joins name under base and verifies the result stays
// inside base.
func SafeOutputPath(base, name string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	p := filepath.Join(absBase, name)
	if p != absBase && !strings.HasPrefix(p, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %q", name, base)
	}
	return p, nil
}

// VideoIDFromURL extracts the 11-character video id from watch?v= and
// youtu.be/ style URLs.
func VideoIDFromURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	if id := u.Query().Get("v"); videoIDPattern.MatchString(id) {
		return id, true
	}
	if strings.EqualFold(u.Hostname(), "youtu.be") {
		id := strings.TrimPrefix(u.Path, "/")
		if i := strings.IndexByte(id, '/'); i >= 0 {
			id = id[:i]
		}
		if videoIDPattern.MatchString(id) {
			return id, true
		}
	}
	return "", false
}

// FormatSize renders a byte count for humans ("4.2 MB").
func FormatSize(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(n))
}

// FormatDuration renders seconds as M:SS or H:MM:SS.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// mediaExts are the extensions the newest-file fallback will accept.
var mediaExts = map[string]bool{
	".mp3": true, ".m4a": true, ".mp4": true, ".webm": true, ".opus": true,
	".ogg": true, ".wav": true, ".flac": true, ".mkv": true,
}

// IsMediaFile reports whether path has a known media extension.
func IsMediaFile(path string) bool {
	return mediaExts[strings.ToLower(filepath.Ext(path))]
}

// NewestMediaFile returns the most recently modified media file in dir
// modified at or after since. Used when the extractor never announced a
// destination.
func NewestMediaFile(dir string, since time.Time) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var (
		newest     string
		newestTime time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !IsMediaFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(since) {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(dir, e.Name())
			newestTime = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no media file in %s newer than %s", dir, since.Format(time.RFC3339))
	}
	return newest, nil
}
