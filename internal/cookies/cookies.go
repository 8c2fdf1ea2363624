// Package cookies exposes the authentication cookie file to child
// processes.
//
// The worker never hands the master file to the extractor: yt-dlp
// rewrites its cookie file in place with rotated session cookies, which
// would corrupt the user-provided master. Instead a working copy is kept
// in the temp directory and refreshed whenever the master's content
// changes.
package cookies

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/snapetech/mediaworkerr/internal/log"
)

const workingCopyName = "yt_cookies_reusable.txt"

type Store struct {
	masterPath string
	inline     string // raw cookie content fallback (YTDLP_COOKIES)
	tempDir    string

	mu        sync.Mutex
	copyPath  string
	masterSum [sha256.Size]byte
	log       zerolog.Logger
}

func New(masterPath, inline, tempDir string) *Store {
	return &Store{
		masterPath: masterPath,
		inline:     inline,
		tempDir:    tempDir,
		log:        log.WithComponent("cookies"),
	}
}

// File returns the working-copy path, or "" when no cookies are
// available (the extractor then runs unauthenticated). Safe for
// concurrent use.
func (s *Store) File() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.masterContent()
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	if s.copyPath != "" && sum == s.masterSum {
		if _, err := os.Stat(s.copyPath); err == nil {
			return s.copyPath
		}
	}

	path := filepath.Join(s.tempDir, workingCopyName)
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("cookie working copy write failed")
		return ""
	}
	s.copyPath = path
	s.masterSum = sum
	s.log.Info().Str("path", path).Msg("cookie working copy refreshed")
	return path
}

// Args returns the extractor arguments for cookie handling: either
// ["--cookies", <path>] or nil.
func (s *Store) Args() []string {
	if path := s.File(); path != "" {
		return []string{"--cookies", path}
	}
	return nil
}

// VerifyOnStartup logs whether cookies are usable; the worker runs
// unauthenticated without them.
func (s *Store) VerifyOnStartup() {
	if path := s.File(); path != "" {
		s.log.Info().Str("path", path).Msg("cookies loaded")
		return
	}
	s.log.Warn().Str("master", s.masterPath).Msg("no cookies available; running unauthenticated")
}

func (s *Store) masterContent() []byte {
	if data, err := os.ReadFile(s.masterPath); err == nil && len(data) > 0 {
		return data
	}
	if s.inline != "" {
		return []byte(s.inline)
	}
	return nil
}
