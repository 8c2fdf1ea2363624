// Package playlist holds the playlist-specific plumbing: Radio Mix URL
// normalisation, the flat metadata probe, and the download-archive
// reconciliation that keeps the skip list consistent with the storage
// pool.
package playlist

import (
	"regexp"
	"strings"
)

var (
	listRe  = regexp.MustCompile(`list=(RD[a-zA-Z0-9_-]+)`)
	seedRe  = regexp.MustCompile(`[?&]v=([a-zA-Z0-9_-]{11})`)
	idShape = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
)

// special Radio Mix list prefixes whose suffix is not a plain video id
var specialMixPrefixes = []string{"RDMM", "RDAM", "RDCLAK"}

// NormalizeURL rewrites YouTube Radio Mix URLs (list=RD...) to the
// canonical downloadable form watch?v=<seed>&list=RD<seed>&start_radio=1.
// Radio Mix lists expire when fetched as plain playlist URLs; they need
// the seed video plus start_radio=1.
//
// The seed is taken from a v= query parameter when present, else from
// the RD suffix when it is exactly an 11-character id. URLs without a
// recoverable seed, and non-Mix URLs, are returned unchanged.
// Idempotent: normalising twice gives the same URL.
func NormalizeURL(url string) string {
	m := listRe.FindStringSubmatch(url)
	if m == nil {
		return url
	}
	listID := m[1]

	seed := ""
	if sm := seedRe.FindStringSubmatch(url); sm != nil {
		seed = sm[1]
	} else if !hasSpecialMixPrefix(listID) {
		if suffix := listID[len("RD"):]; idShape.MatchString(suffix) {
			seed = suffix
		}
	}
	if seed == "" {
		return url
	}

	// already canonical
	if strings.Contains(url, "start_radio=1") && strings.Contains(url, "v="+seed) {
		return url
	}
	return "https://www.youtube.com/watch?v=" + seed + "&list=" + listID + "&start_radio=1"
}

// IsRadioMix reports whether url refers to a Radio Mix list.
func IsRadioMix(url string) bool {
	return listRe.MatchString(url)
}

func hasSpecialMixPrefix(listID string) bool {
	for _, p := range specialMixPrefixes {
		if strings.HasPrefix(listID, p) {
			return true
		}
	}
	return false
}
