package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Normal Title", "Normal Title"},
		{"a/b\\c", "abc"},
		{"..secret", "secret"},
		{`bad<>:"|?*chars`, "badchars"},
		{"  lots   of    space  ", "lots of space"},
		{"", "untitled"},
		{"///", "untitled"},
	}
	for _, tc := range cases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeFilename_truncates(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := SanitizeFilename(long)
	if len([]rune(got)) != 200 {
		t.Errorf("len = %d, want 200", len([]rune(got)))
	}
}

func TestSanitizeFolderName(t *testing.T) {
	if got := SanitizeFolderName(""); got != "playlist" {
		t.Errorf("empty folder = %q", got)
	}
	long := strings.Repeat("y", 150)
	if got := SanitizeFolderName(long); len([]rune(got)) != 100 {
		t.Errorf("folder len = %d, want 100", len([]rune(got)))
	}
}

func TestValidateYouTubeURL(t *testing.T) {
	valid := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"http://m.youtube.com/watch?v=abc",
		"https://music.youtube.com/watch?v=abc",
	}
	for _, u := range valid {
		if err := ValidateYouTubeURL(u); err != nil {
			t.Errorf("ValidateYouTubeURL(%q): %v", u, err)
		}
	}
	invalid := []string{
		"https://evil.com/watch?v=abc",
		"https://youtube.com.evil.com/x",
		"ftp://youtube.com/x",
		"not a url at all ://",
		"file:///etc/passwd",
	}
	for _, u := range invalid {
		if err := ValidateYouTubeURL(u); err == nil {
			t.Errorf("ValidateYouTubeURL(%q) should fail", u)
		}
	}
}

func TestValidateSearchQuery(t *testing.T) {
	if err := ValidateSearchQuery("lofi hip hop"); err != nil {
		t.Errorf("plain query: %v", err)
	}
	bad := []string{"", "   ", strings.Repeat("q", 101), "a;b", "a|b", "a&b", "a`b", "a$(b)", "a\nb"}
	for _, q := range bad {
		if err := ValidateSearchQuery(q); err == nil {
			t.Errorf("ValidateSearchQuery(%q) should fail", q)
		}
	}
}

func TestSafeOutputPath(t *testing.T) {
	base := t.TempDir()
	p, err := SafeOutputPath(base, "song.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(p) != base {
		t.Errorf("path %q not directly under %q", p, base)
	}
	if _, err := SafeOutputPath(base, "../../etc/passwd"); err == nil {
		t.Error("traversal should be rejected")
	}
}

func TestVideoIDFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ?t=30", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLx", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/playlist?list=PLx", "", false},
		{"https://youtu.be/", "", false},
		{"https://www.youtube.com/watch?v=tooshort", "", false},
	}
	for _, tc := range cases {
		got, ok := VideoIDFromURL(tc.url)
		if got != tc.want || ok != tc.ok {
			t.Errorf("VideoIDFromURL(%q) = %q,%v want %q,%v", tc.url, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   int
		want string
	}{
		{0, "0:00"},
		{59, "0:59"},
		{61, "1:01"},
		{3599, "59:59"},
		{3600, "1:00:00"},
		{3723, "1:02:03"},
		{-5, "0:00"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewestMediaFile(t *testing.T) {
	dir := t.TempDir()
	since := time.Now().Add(-time.Minute)
	old := filepath.Join(dir, "old.mp3")
	if err := os.WriteFile(old, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(old, since.Add(-time.Hour), since.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	ignored := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(ignored, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "fresh.m4a")
	if err := os.WriteFile(want, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := NewestMediaFile(dir, since)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("NewestMediaFile = %q, want %q", got, want)
	}
}

func TestNewestMediaFile_none(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewestMediaFile(dir, time.Now().Add(-time.Minute)); err == nil {
		t.Error("empty dir should error")
	}
}
