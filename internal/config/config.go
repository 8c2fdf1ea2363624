package config

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Config holds worker settings. Load from env; call LoadEnvFile(".env") first to use a .env file.
type Config struct {
	// Cookies
	CookieFile   string // Netscape-format master cookie file
	CookieInline string // YTDLP_COOKIES: raw cookie content fallback when no file exists

	// Download constraints
	BestAudioLimitMB int
	NodeBin          string // node binary for extractor JS challenges; auto-detected on PATH when NODE_BIN is unset
	MaxRetries       int
	RetryDelay       time.Duration

	// Timeouts
	YTTimeout  time.Duration // child inactivity limit (no output line for this long = stuck)
	IPCTimeout time.Duration // overall wall clock per child process

	// Output directories
	DownloadDir string
	TempDir     string

	// Search and caching
	EnableSearchCache bool
	CacheExpiry       time.Duration

	// Logging
	LogLevel string

	// Archive settings
	ArchiveMaxSizeMB int

	// Playlist settings
	PlaylistNameMaxLength int

	// Rate limiting
	RateLimitSearchesPerHour int

	// Database
	DatabasePath string

	// Extractor binary override; "" = auto-detect on PATH
	YtdlpBin string

	// Maintenance
	RepairInterval time.Duration

	// Prometheus /metrics listen address; "" = disabled
	MetricsAddr string

	// Registers the mtproto_upload action when true
	MProto bool
}

// Load reads config from environment and prepares the output directories.
func Load() (*Config, error) {
	c := &Config{
		CookieFile:               getEnv("YOUTUBE_COOKIE_FILE", "./cookies.txt"),
		CookieInline:             os.Getenv("YTDLP_COOKIES"),
		BestAudioLimitMB:         getEnvInt("BEST_AUDIO_LIMIT_MB", 15),
		NodeBin:                  getEnv("NODE_BIN", findNodeBinary()),
		MaxRetries:               getEnvInt("MAX_RETRIES", 3),
		RetryDelay:               getEnvSeconds("RETRY_DELAY_SECONDS", 5*time.Second),
		YTTimeout:                getEnvSeconds("YT_TIMEOUT", 300*time.Second),
		IPCTimeout:               getEnvSeconds("IPC_TIMEOUT", 600*time.Second),
		DownloadDir:              getEnv("DOWNLOAD_DIR", "./downloads"),
		TempDir:                  getEnv("TEMP_DIR", "./temp"),
		EnableSearchCache:        getEnvBool("ENABLE_SEARCH_CACHE", true),
		CacheExpiry:              time.Duration(getEnvInt("CACHE_EXPIRY_HOURS", 24)) * time.Hour,
		LogLevel:                 strings.ToLower(getEnv("LOG_LEVEL", "info")),
		ArchiveMaxSizeMB:         getEnvInt("ARCHIVE_MAX_SIZE_MB", 100),
		PlaylistNameMaxLength:    getEnvInt("PLAYLIST_NAME_MAX_LENGTH", 100),
		RateLimitSearchesPerHour: getEnvInt("RATE_LIMIT_SEARCHES_PER_HOUR", 60),
		DatabasePath:             databasePath(getEnv("DATABASE_URL", "sqlite:///./worker.db")),
		YtdlpBin:                 os.Getenv("YTDLP_BIN"),
		RepairInterval:           getEnvDuration("REPAIR_INTERVAL", time.Hour),
		MetricsAddr:              os.Getenv("METRICS_ADDR"),
		MProto:                   getEnvBool("MPROTO", false),
	}
	if c.YTTimeout <= 0 {
		c.YTTimeout = 300 * time.Second
	}
	if c.IPCTimeout <= 0 {
		c.IPCTimeout = 600 * time.Second
	}
	if c.RepairInterval <= 0 {
		c.RepairInterval = time.Hour
	}
	for _, dir := range []string{c.DownloadDir, c.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return c, nil
}

// Snapshot returns the loggable subset of the config (no secrets) for the health handler.
func (c *Config) Snapshot() map[string]any {
	return map[string]any{
		"cookies_file":        c.CookieFile,
		"best_audio_limit_mb": c.BestAudioLimitMB,
		"max_retries":         c.MaxRetries,
		"yt_timeout":          int(c.YTTimeout.Seconds()),
		"download_dir":        c.DownloadDir,
		"enable_search_cache": c.EnableSearchCache,
		"archive_max_size_mb": c.ArchiveMaxSizeMB,
	}
}

// findNodeBinary locates a node runtime on PATH for extractor JS
// challenges. Missing node is fine; the extractor just skips those
// challenge solvers.
func findNodeBinary() string {
	for _, name := range []string{"node", "nodejs"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// databasePath strips the sqlite URL scheme, leaving a plain file path.
// "sqlite:///./worker.db" and "./worker.db" are both accepted.
func databasePath(dbURL string) string {
	s := strings.TrimSpace(dbURL)
	for _, prefix := range []string{"sqlite:///", "sqlite://", "sqlite:"} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimPrefix(s, prefix)
		}
	}
	return s
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

// getEnvSeconds reads an integer number of seconds (the convention for worker timeouts).
func getEnvSeconds(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
