package ytdlp

import (
	"fmt"
	"os/exec"
)

// candidate binary names, in preference order
var candidates = []string{"yt-dlp", "yt_dlp", "youtube-dl"}

// Find locates the extractor binary. An explicit path/name wins;
// otherwise the PATH is searched for the known names.
func Find(explicit string) (string, error) {
	if explicit != "" {
		path, err := exec.LookPath(explicit)
		if err != nil {
			return "", fmt.Errorf("extractor %q not found: %w", explicit, err)
		}
		return path, nil
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no extractor binary on PATH (tried %v)", candidates)
}
