package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// setDirs points the output directories at a temp dir so Load does not
// create ./downloads in the source tree.
func setDirs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	os.Setenv("DOWNLOAD_DIR", filepath.Join(dir, "downloads"))
	os.Setenv("TEMP_DIR", filepath.Join(dir, "temp"))
	return dir
}

func TestLoad_defaults(t *testing.T) {
	os.Clearenv()
	setDirs(t)
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.BestAudioLimitMB != 15 {
		t.Errorf("BestAudioLimitMB default: got %d", c.BestAudioLimitMB)
	}
	if c.MaxRetries != 3 {
		t.Errorf("MaxRetries default: got %d", c.MaxRetries)
	}
	if c.YTTimeout != 300*time.Second {
		t.Errorf("YTTimeout default: got %v", c.YTTimeout)
	}
	if c.IPCTimeout != 600*time.Second {
		t.Errorf("IPCTimeout default: got %v", c.IPCTimeout)
	}
	if !c.EnableSearchCache {
		t.Error("EnableSearchCache should default true")
	}
	if c.CacheExpiry != 24*time.Hour {
		t.Errorf("CacheExpiry default: got %v", c.CacheExpiry)
	}
	if c.DatabasePath != "./worker.db" {
		t.Errorf("DatabasePath default: got %q", c.DatabasePath)
	}
	if c.RepairInterval != time.Hour {
		t.Errorf("RepairInterval default: got %v", c.RepairInterval)
	}
	if c.MProto {
		t.Error("MProto should default false")
	}
}

func TestLoad_createsDirs(t *testing.T) {
	os.Clearenv()
	setDirs(t)
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{c.DownloadDir, c.TempDir} {
		st, err := os.Stat(dir)
		if err != nil || !st.IsDir() {
			t.Errorf("Load should create %s: %v", dir, err)
		}
	}
}

func TestLoad_timeoutsAreSeconds(t *testing.T) {
	os.Clearenv()
	setDirs(t)
	os.Setenv("YT_TIMEOUT", "120")
	os.Setenv("IPC_TIMEOUT", "900")
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.YTTimeout != 120*time.Second {
		t.Errorf("YTTimeout: got %v", c.YTTimeout)
	}
	if c.IPCTimeout != 900*time.Second {
		t.Errorf("IPCTimeout: got %v", c.IPCTimeout)
	}
}

func TestLoad_invalidTimeoutFallsBack(t *testing.T) {
	os.Clearenv()
	setDirs(t)
	os.Setenv("YT_TIMEOUT", "not-a-number")
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.YTTimeout != 300*time.Second {
		t.Errorf("YTTimeout fallback: got %v", c.YTTimeout)
	}
}

func TestLoad_searchCacheToggle(t *testing.T) {
	for _, tc := range []struct {
		env  string
		want bool
	}{
		{"true", true}, {"1", true}, {"yes", true},
		{"false", false}, {"0", false}, {"no", false},
	} {
		os.Clearenv()
		setDirs(t)
		os.Setenv("ENABLE_SEARCH_CACHE", tc.env)
		c, err := Load()
		if err != nil {
			t.Fatal(err)
		}
		if c.EnableSearchCache != tc.want {
			t.Errorf("ENABLE_SEARCH_CACHE=%q: got %v, want %v", tc.env, c.EnableSearchCache, tc.want)
		}
	}
}

func TestLoad_nodeAutoDetect(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX PATH semantics")
	}
	os.Clearenv()
	setDirs(t)
	binDir := t.TempDir()
	nodePath := filepath.Join(binDir, "node")
	if err := os.WriteFile(nodePath, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	os.Setenv("PATH", binDir)

	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.NodeBin != nodePath {
		t.Errorf("NodeBin = %q, want auto-detected %q", c.NodeBin, nodePath)
	}

	// explicit NODE_BIN wins over detection
	os.Setenv("NODE_BIN", "/opt/node/bin/node")
	c, err = Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.NodeBin != "/opt/node/bin/node" {
		t.Errorf("NodeBin override = %q", c.NodeBin)
	}
}

func TestDatabasePath(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"sqlite:///./worker.db", "./worker.db"},
		{"sqlite:////var/lib/worker.db", "/var/lib/worker.db"},
		{"sqlite://worker.db", "worker.db"},
		{"/plain/path.db", "/plain/path.db"},
		{"  sqlite:///x.db ", "x.db"},
	} {
		if got := databasePath(tc.in); got != tc.want {
			t.Errorf("databasePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSnapshot(t *testing.T) {
	os.Clearenv()
	setDirs(t)
	os.Setenv("BEST_AUDIO_LIMIT_MB", "25")
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	snap := c.Snapshot()
	if snap["best_audio_limit_mb"] != 25 {
		t.Errorf("snapshot best_audio_limit_mb: got %v", snap["best_audio_limit_mb"])
	}
	if snap["yt_timeout"] != 300 {
		t.Errorf("snapshot yt_timeout: got %v", snap["yt_timeout"])
	}
	if _, ok := snap["cookies_file"]; !ok {
		t.Error("snapshot missing cookies_file")
	}
}
