// Command media-worker: line-delimited JSON worker for media
// acquisition. A parent process drives it over stdin/stdout; stderr
// carries the structured log. The process exits when stdin closes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snapetech/mediaworkerr/internal/cache"
	"github.com/snapetech/mediaworkerr/internal/config"
	"github.com/snapetech/mediaworkerr/internal/cookies"
	"github.com/snapetech/mediaworkerr/internal/db"
	"github.com/snapetech/mediaworkerr/internal/handler"
	"github.com/snapetech/mediaworkerr/internal/ipc"
	"github.com/snapetech/mediaworkerr/internal/log"
	"github.com/snapetech/mediaworkerr/internal/pool"
	"github.com/snapetech/mediaworkerr/internal/repair"
	"github.com/snapetech/mediaworkerr/internal/upload"
	"github.com/snapetech/mediaworkerr/internal/users"
	"github.com/snapetech/mediaworkerr/internal/ytdlp"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "media-worker:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = config.LoadEnvFile(".env") // optional; absent file is fine
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.Configure(log.Config{Level: cfg.LogLevel})
	logger := log.WithComponent("main")
	logger.Info().Str("version", version).Msg("media-worker starting")

	bin, err := ytdlp.Find(cfg.YtdlpBin)
	if err != nil {
		return fmt.Errorf("locate extractor: %w", err)
	}
	logger.Info().Str("bin", bin).Msg("extractor resolved")

	d, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer d.Close()
	if err := d.Migrate(context.Background()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	cookieStore := cookies.New(cfg.CookieFile, cfg.CookieInline, cfg.TempDir)
	cookieStore.VerifyOnStartup()

	storagePool := pool.New(cfg.DownloadDir, d)

	deps := &handler.Deps{
		Cfg:     cfg,
		Runner:  ytdlp.NewRunner(bin, cfg.YTTimeout, cfg.IPCTimeout),
		Cookies: cookieStore,
		Cache:   cache.New(d, cfg.EnableSearchCache, cfg.CacheExpiry),
		Pool:    storagePool,
		Users:   users.NewManager(d),
		Limits:  users.NewRateLimiter(d),
		Gate:    ytdlp.NewProbeGate(cfg.RateLimitSearchesPerHour),
		Version: version,
	}
	if cfg.MProto {
		// the MTProto transport lives in the parent today; the action is
		// still registered so enabling the flag without one answers
		// CONFIG_ERROR instead of an unknown action
		deps.Upload = upload.New(d, nil)
		logger.Warn().Msg("MPROTO set but no upload transport is linked in")
	}

	mux := ipc.NewMux()
	deps.Register(mux)

	// SIGINT/SIGTERM cancel in-flight children; the loop itself ends on
	// stdin EOF
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go repair.New(storagePool, d, cfg.RepairInterval).Run(ctx)

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr)
	}

	writer := ipc.NewWriter(os.Stdout)
	logger.Info().Msg("serving requests on stdin")
	if err := mux.Serve(ctx, os.Stdin, writer); err != nil {
		return fmt.Errorf("ipc loop: %w", err)
	}
	logger.Info().Msg("stdin closed, shutting down")
	return nil
}

func serveMetrics(ctx context.Context, addr string) {
	logger := log.WithComponent("metrics")
	srv := &http.Server{Addr: addr, Handler: promhttp.Handler()}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
	logger.Info().Str("addr", addr).Msg("metrics listener up")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics listener failed")
	}
}
