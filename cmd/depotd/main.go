// depotd is the telemetry depot daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtxerr/depot/internal/archive"
	"github.com/xtxerr/depot/internal/catalog"
	"github.com/xtxerr/depot/internal/ingest"
	"github.com/xtxerr/depot/internal/lifecycle"
	"github.com/xtxerr/depot/internal/loader"
	"github.com/xtxerr/depot/internal/logging"
	"github.com/xtxerr/depot/internal/store"
	"github.com/xtxerr/depot/internal/worker"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	dbPath := flag.String("db", "", "metastore database path (overrides config)")
	mode := flag.String("mode", "", "pipeline mode: gateway or server (overrides config)")
	archiveDir := flag.String("archive-dir", "", "archive directory (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Parse()

	// Load config
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg = loader.DefaultConfig()
		} else {
			slog.Error("load config failed", "error", err)
			os.Exit(1)
		}
	}

	// CLI overrides
	if *dbPath != "" {
		cfg.Metastore.Path = *dbPath
	}
	if *mode != "" {
		cfg.Pipeline.Mode = *mode
	}
	if *archiveDir != "" {
		cfg.Archive.Dir = *archiveDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := loader.Validate(cfg); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logging.Init(parseLevel(cfg.Logging.Level), cfg.Logging.Format == "json")
	log := logging.Component("depotd")
	log.Info("starting", "version", Version, "mode", cfg.Pipeline.Mode)

	// =========================================================================
	// Metastore
	// =========================================================================

	st, err := store.New(loader.ToStoreConfig(&cfg.Metastore))
	if err != nil {
		log.Error("open metastore failed", "path", cfg.Metastore.Path, "error", err)
		os.Exit(1)
	}
	if err := st.Migrate(); err != nil {
		log.Error("migrate metastore failed", "error", err)
		os.Exit(1)
	}
	log.Info("metastore ready", "path", cfg.Metastore.Path)

	// =========================================================================
	// Catalog
	// =========================================================================

	ctx := context.Background()
	if err := loader.ApplyCatalog(ctx, cfg.Catalog, st); err != nil {
		log.Error("apply catalog failed", "error", err)
		os.Exit(1)
	}
	cat := catalog.NewCached(st.Catalog())

	// =========================================================================
	// Services
	// =========================================================================

	archiver := archive.NewArchiver(cfg.Archive.Dir, archiveOptions(cfg))

	ing := ingest.New(ingest.Config{
		BatchSize:     cfg.Ingest.BatchSize,
		FlushInterval: cfg.Ingest.FlushInterval.Duration(),
	}, st, cat)
	if err := ing.Start(); err != nil {
		log.Error("start ingest failed", "error", err)
		os.Exit(1)
	}

	pipelineMode, err := worker.ParseMode(cfg.Pipeline.Mode)
	if err != nil {
		log.Error("invalid pipeline mode", "error", err)
		os.Exit(1)
	}

	mgr := worker.NewManager(worker.Config{
		Mode:          pipelineMode,
		PollInterval:  cfg.Pipeline.PollInterval.Duration(),
		BatchSize:     cfg.Pipeline.BatchSize,
		Concurrency:   cfg.Pipeline.Concurrency,
		StuckAttempts: cfg.Pipeline.StuckAttempts,
	}, st)
	worker.RegisterDefaults(mgr, st, cat, archiver)
	mgr.OnStuck(func(entries []*store.BufferEntry) {
		for _, e := range entries {
			attrs := []any{"id", e.ID, "attempts", e.Attempts}
			if e.RetryStatus != nil {
				attrs = append(attrs, "failed_stage", e.RetryStatus.String())
			}
			log.Warn("entry stuck", attrs...)
		}
	})
	if err := mgr.Start(); err != nil {
		log.Error("start pipeline failed", "error", err)
		os.Exit(1)
	}

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	done := make(chan struct{})
	go func() {
		// Stop ingest first so no new entries enter the pipeline,
		// then drain the stage workers, then close the store.
		if err := ing.Stop(); err != nil {
			log.Warn("ingest stop", "error", err)
		}
		mgr.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(cfg.Shutdown.DrainTimeout.Duration()):
		log.Warn("drain timeout exceeded, closing anyway")
	}

	logPipelineStats(log, mgr)

	if err := st.Close(); err != nil {
		log.Warn("close metastore", "error", err)
	}
	log.Info("stopped")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func archiveOptions(cfg *loader.Config) archive.Options {
	opts := archive.DefaultOptions()
	opts.Compression = archive.ParseCompressionType(cfg.Archive.Compression)
	if cfg.Archive.CompressionLevel > 0 {
		opts.CompressionLevel = cfg.Archive.CompressionLevel
	}
	return opts
}

func logPipelineStats(log *slog.Logger, mgr *worker.Manager) {
	stats := mgr.Stats()
	for _, stage := range lifecycle.Stages() {
		completed := stats.Completed(stage)
		failed := stats.Failed(stage)
		if completed == 0 && failed == 0 {
			continue
		}
		attrs := []any{"stage", stage.String(), "completed", completed, "failed", failed}
		if p99, ok := stats.LatencyQuantile(stage, 0.99); ok {
			attrs = append(attrs, "p99_ms", p99)
		}
		log.Info("stage totals", attrs...)
	}
}
