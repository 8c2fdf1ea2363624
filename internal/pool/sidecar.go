package pool

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Sidecar is the metadata.json written next to every pooled file. It
// lets the repair service verify pool entries without the database and
// survives database loss.
type Sidecar struct {
	Size           int64  `json:"size"`
	Hash           string `json:"hash"`
	Extension      string `json:"extension"`
	YoutubeURL     string `json:"youtube_url"`
	Title          string `json:"title"`
	DownloadedAt   string `json:"downloaded_at"`
	AccessCount    int64  `json:"access_count"`
	LastAccessedAt string `json:"last_accessed_at"`
}

func writeSidecar(dir string, sc Sidecar) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(dir, sidecarName), data, 0o644)
}

func readSidecar(dir string) (Sidecar, error) {
	var sc Sidecar
	data, err := os.ReadFile(filepath.Join(dir, sidecarName))
	if err != nil {
		return sc, err
	}
	err = json.Unmarshal(data, &sc)
	return sc, err
}

// ReadSidecar loads the sidecar of the pool directory holding poolFile.
func ReadSidecar(poolFile string) (Sidecar, error) {
	return readSidecar(filepath.Dir(poolFile))
}
