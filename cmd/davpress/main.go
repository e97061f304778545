// Command davpress is the CLI entrypoint for the DavPress footage
// compressor. It parses flags, validates configuration and paths, and runs
// one of four modes: system diagnostics (--check), ledger review
// (--show-history), archive analysis (--analyze), or the compress pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/backmassage/davpress/internal/check"
	"github.com/backmassage/davpress/internal/config"
	"github.com/backmassage/davpress/internal/display"
	"github.com/backmassage/davpress/internal/history"
	"github.com/backmassage/davpress/internal/logging"
	"github.com/backmassage/davpress/internal/monitor"
	"github.com/backmassage/davpress/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Phase 1: Bootstrap. The logger doesn't exist yet, so errors go
	// directly to stderr via fmt. Once NewLogger succeeds, all output goes
	// through the logger for consistent formatting and log-file capture.
	cfg := config.DefaultConfig()
	if err := config.ParseFlags(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "davpress: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "davpress: %v\n", err)
		return 1
	}

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "davpress: %v\n", err)
		return 1
	}
	defer log.Close()

	// Phase 2: Pre-pipeline exit modes.
	display.PrintBanner()

	if cfg.CheckOnly {
		if !check.RunCheck(log) {
			return 1
		}
		return 0
	}
	if cfg.ShowHistory > 0 {
		return showHistory(&cfg, log)
	}

	// Phase 3: Signal handling. Cancel the context on SIGINT/SIGTERM so the
	// run stops between files (or kills the in-flight encode) without
	// leaving partial output on the destination tree.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("Received interrupt, shutting down...")
		cancel()
	}()

	if cfg.Analyze {
		if _, err := exec.LookPath("ffprobe"); err != nil {
			log.Error("%v", check.ErrFfprobeNotFound)
			return 1
		}
		sourceAbs, err := absPath(cfg.SourceDir)
		if err != nil {
			log.Error("Source not found: %s", cfg.SourceDir)
			return 1
		}
		cfg.SourceDir = sourceAbs
		pipeline.Analyze(ctx, &cfg, log)
		return 0
	}

	// Phase 4: Path validation. The source must exist; destination and
	// scratch are created if needed and must not sit inside the source tree
	// (the scanner would rediscover our own outputs).
	sourceAbs, err := absPath(cfg.SourceDir)
	if err != nil {
		log.Error("Source not found: %s", cfg.SourceDir)
		return 1
	}
	if err := os.MkdirAll(cfg.DestDir, 0o755); err != nil {
		log.Error("Cannot create destination directory: %s", cfg.DestDir)
		return 1
	}
	destAbs, err := absPath(cfg.DestDir)
	if err != nil {
		log.Error("Cannot resolve destination path: %s", cfg.DestDir)
		return 1
	}
	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		log.Error("Cannot create scratch directory: %s", cfg.ScratchDir)
		return 1
	}
	scratchAbs, err := absPath(cfg.ScratchDir)
	if err != nil {
		log.Error("Cannot resolve scratch path: %s", cfg.ScratchDir)
		return 1
	}
	if err := cfg.ValidatePaths(sourceAbs, destAbs, scratchAbs); err != nil {
		log.Error("%v", err)
		log.Error("Choose paths outside: %s", cfg.SourceDir)
		return 1
	}
	cfg.SourceDir, cfg.DestDir, cfg.ScratchDir = sourceAbs, destAbs, scratchAbs

	log.Info("=== DavPress v%s ===", config.Version())
	if cfg.DryRun {
		log.Warn("DRY RUN - nothing will be written")
	}
	log.Info("")

	// Fail fast if ffmpeg, ffprobe, or libx265 are unavailable.
	if err := check.CheckDeps(); err != nil {
		log.Error("%v", err)
		return 1
	}

	// Phase 5: Optional services, then the pipeline itself.
	var hist *history.Recorder
	if cfg.HistoryDB != "" {
		h, err := history.Open(cfg.HistoryDB)
		if err != nil {
			log.Warn("History ledger unavailable (%v); continuing without it", err)
		} else {
			hist = h
			defer hist.Close()
		}
	}

	if cfg.SysmonSec > 0 {
		mon := &monitor.Monitor{
			Interval: time.Duration(cfg.SysmonSec) * time.Second,
			Paths:    []string{cfg.ScratchDir, cfg.DestDir},
			Log:      log,
		}
		go mon.Run(ctx)
	}

	stats := pipeline.NewRunner(&cfg, log, hist).Run(ctx)

	if stats.Failed > 0 {
		return 1
	}
	return 0
}

// showHistory prints the most recent ledger rows, newest first.
func showHistory(cfg *config.Config, log *logging.Logger) int {
	rec, err := history.Open(cfg.HistoryDB)
	if err != nil {
		log.Error("Cannot open history ledger: %v", err)
		return 1
	}
	defer rec.Close()

	rows, err := rec.Recent(cfg.ShowHistory)
	if err != nil {
		log.Error("Cannot read history: %v", err)
		return 1
	}
	if len(rows) == 0 {
		log.Info("Ledger is empty")
		return 0
	}

	log.Info("Last %d encode(s):", len(rows))
	for _, row := range rows {
		when := row.CreatedAt.Format("2006-01-02 15:04")
		name := filepath.Base(row.SourcePath)
		switch row.Status {
		case history.StatusDone:
			log.Success("%s  %-9s %s  %s -> %s in %s",
				when, row.Status, name,
				display.FormatBytes(row.InputBytes),
				display.FormatBytes(row.OutputBytes),
				display.FormatClock(row.ElapsedSec))
		case history.StatusCancelled:
			log.Info("%s  %-9s %s", when, row.Status, name)
		default:
			log.Warn("%s  %-9s %s  %s", when, row.Status, name, row.Detail)
		}
	}
	return 0
}

// absPath returns the absolute, symlink-resolved path for safe comparison
// of source, destination, and scratch hierarchies.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
