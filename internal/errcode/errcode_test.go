package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		stderr string
		want   Code
	}{
		{"ERROR: [youtube] abc: Sign in to confirm you're not a bot", RequireAuth},
		{"ERROR: Private video. Sign in if you've been granted access", VideoPrivate},
		{"ERROR: Video unavailable", VideoRemoved},
		{"ERROR: This video has been removed by the uploader", VideoRemoved},
		{"ERROR: requested format is not available", NoSuitableFormat},
		{"ERROR: The uploader has not made this video available in your country", RegionBlocked},
		{"ERROR: HTTP Error 429: Too Many Requests", RateLimited},
		{"ERROR: HTTP Error 503: Service Unavailable", ServiceUnavailable},
		{"ERROR: Connection timed out", NetworkTimeout},
		{"something nobody has seen before", UnknownError},
		{"", UnknownError},
	}
	for _, tc := range cases {
		if got := Classify(tc.stderr); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.stderr, got, tc.want)
		}
	}
}

func TestLookup_retriability(t *testing.T) {
	for code, wantRetriable := range map[Code]bool{
		NetworkTimeout: true,
		RateLimited:    true,
		RequireAuth:    true,
		CookieExpired:  true,
		VideoPrivate:   false,
		InvalidURL:     false,
		UnknownError:   false,
	} {
		if got := code.Lookup().Retriable; got != wantRetriable {
			t.Errorf("%s retriable = %v, want %v", code, got, wantRetriable)
		}
	}
}

func TestLookup_categories(t *testing.T) {
	// the category strings go over the wire; the parent matches on them
	for code, want := range map[Code]Category{
		NetworkTimeout: "TRANSIENT",
		RequireAuth:    "AUTH_RELATED",
		CookieExpired:  "AUTH_RELATED",
		LoginRequired:  "AUTH_RELATED",
		VideoPrivate:   "PERMANENT",
	} {
		if got := code.Lookup().Category; got != want {
			t.Errorf("%s category = %s, want %s", code, got, want)
		}
	}
}

func TestLookup_unknownCodeFallsBack(t *testing.T) {
	info := Code("NOT_A_REAL_CODE").Lookup()
	if info != (UnknownError).Lookup() {
		t.Errorf("unknown code should map to UNKNOWN_ERROR info; got %+v", info)
	}
}

func TestCodeOf(t *testing.T) {
	err := New(VideoPrivate, "blocked")
	if got := CodeOf(err); got != VideoPrivate {
		t.Errorf("CodeOf = %s", got)
	}
	wrapped := fmt.Errorf("handler: %w", Wrap(NetworkTimeout, "killed after 300s", errors.New("context deadline exceeded")))
	if got := CodeOf(wrapped); got != NetworkTimeout {
		t.Errorf("CodeOf wrapped = %s", got)
	}
	if got := CodeOf(errors.New("plain")); got != UnknownError {
		t.Errorf("CodeOf plain = %s", got)
	}
}

func TestErrorString(t *testing.T) {
	e := Wrap(VideoRemoved, "probe failed", errors.New("exit status 1"))
	got := e.Error()
	want := "VIDEO_REMOVED: probe failed: exit status 1"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(e, e.Err) {
		t.Error("Unwrap should expose the cause")
	}
}
