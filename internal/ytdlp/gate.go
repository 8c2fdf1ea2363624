package ytdlp

import (
	"time"

	"golang.org/x/time/rate"
)

// NewProbeGate returns the global limiter for metadata-probe launches
// (search, video info, format listing, playlist preview). Per-user
// limits live in the database and fail open; this gate is the hard
// backstop that keeps a burst of probes from stampeding the extractor
// host. Burst of 5 absorbs normal interactive use.
func NewProbeGate(perHour int) *rate.Limiter {
	if perHour <= 0 {
		perHour = 60
	}
	return rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), 5)
}
