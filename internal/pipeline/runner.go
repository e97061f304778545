package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/backmassage/davpress/internal/config"
	"github.com/backmassage/davpress/internal/display"
	"github.com/backmassage/davpress/internal/ffmpeg"
	"github.com/backmassage/davpress/internal/history"
	"github.com/backmassage/davpress/internal/logging"
	"github.com/backmassage/davpress/internal/naming"
	"github.com/backmassage/davpress/internal/planner"
	"github.com/backmassage/davpress/internal/probe"
)

// idleScanDelay is how long the runner sleeps between scans when the queue
// is empty.
const idleScanDelay = 30 * time.Second

// minSourceBytes and below means the recorder wrote a header and nothing
// else; such files cannot decode and are retired immediately.
const minSourceBytes = 1000

// encodeFunc runs one supervised encode; ffmpeg.Executor.Run in production.
type encodeFunc func(ctx context.Context, job ffmpeg.Job) (ffmpeg.Result, error)

// probeFunc analyzes one source file; probe.Probe in production.
type probeFunc func(ctx context.Context, path string) (*probe.MediaCharacteristics, error)

// Runner drives the compress loop: scan, order, encode, relocate, retire.
// One Runner processes one source tree sequentially; fairness across camera
// folders comes from round-robin ordering, not concurrency.
type Runner struct {
	Cfg  *config.Config
	Log  *logging.Logger
	Hist *history.Recorder // optional; nil disables the ledger

	state *ScanState
	scan  *Scanner

	// Test seams; NewRunner wires the real implementations.
	encode encodeFunc
	probe  probeFunc
	now    func() time.Time
	idle   func(ctx context.Context) bool
}

// NewRunner builds a production Runner from cfg.
func NewRunner(cfg *config.Config, log *logging.Logger, hist *history.Recorder) *Runner {
	exec := ffmpeg.NewExecutor(log, cfg.Verbose, float64(cfg.CPULimitPercent))
	r := &Runner{
		Cfg:    cfg,
		Log:    log,
		Hist:   hist,
		state:  NewScanState(),
		encode: exec.Run,
		probe:  probe.Probe,
		now:    time.Now,
	}
	r.scan = &Scanner{
		SourceRoot: cfg.SourceDir,
		DestRoot:   cfg.DestDir,
		Ext:        cfg.SourceExt,
		Batch:      cfg.BatchSize,
		Log:        log,
		Verbose:    cfg.Verbose,
	}
	r.idle = r.sleepIdle
	return r
}

// Run executes scan/process rounds until the context is cancelled, or until
// the queue drains when Continuous is off. Returns aggregate stats.
func (r *Runner) Run(ctx context.Context) RunStats {
	var stats RunStats

	r.logStartup()
	if err := os.MkdirAll(r.Cfg.DestDir, 0o755); err != nil {
		r.Log.Error("Cannot create destination directory: %v", err)
		return stats
	}
	if err := os.MkdirAll(r.Cfg.ScratchDir, 0o755); err != nil {
		r.Log.Error("Cannot create scratch directory: %v", err)
		return stats
	}

	for ctx.Err() == nil {
		queue := r.scan.Scan(r.needFullScan(r.state.Cycles), r.state)
		stats.Scans++

		if len(queue) == 0 {
			if !r.Cfg.Continuous {
				r.Log.Info("No files waiting; single pass done")
				break
			}
			r.Log.Info("No files waiting. Next scan in %.0fs", idleScanDelay.Seconds())
			if !r.idle(ctx) {
				break
			}
			continue
		}

		roundSize := r.roundSize(queue)
		r.Log.Info("Queue: %d files; rescanning after %d", len(queue), roundSize)

		processed := 0
		for i, src := range queue {
			if ctx.Err() != nil {
				r.Log.Warn("Interrupted")
				break
			}
			processed++
			r.processFile(ctx, src, i+1, len(queue), &stats)
			if r.Cfg.Continuous && processed >= roundSize {
				r.Log.Info("Round complete (%d files); rescanning for new arrivals", processed)
				break
			}
		}

		if !r.Cfg.Continuous {
			break
		}
	}

	r.logSummary(&stats)
	return stats
}

// needFullScan forces the expensive full walk on the first pass, every
// FullRescanCycles passes, and whenever the last full walk is older than
// FullRescanSec. Incremental scans only see the current date folders, so
// without periodic full walks a backlog in older folders would go stale.
func (r *Runner) needFullScan(cycles int) bool {
	if r.state.LastFullScan.IsZero() {
		return true
	}
	if r.Cfg.FullRescanCycles > 0 && cycles%r.Cfg.FullRescanCycles == 0 {
		return true
	}
	return r.now().Sub(r.state.LastFullScan) > time.Duration(r.Cfg.FullRescanSec)*time.Second
}

// roundSize is how many files to process before rescanning: one batch per
// folder currently in the queue, so each camera gets a turn every round.
func (r *Runner) roundSize(queue []string) int {
	folders := FolderCount(queue, r.Cfg.SourceDir)
	if folders == 0 {
		folders = 5
	}
	return r.Cfg.BatchSize * folders
}

// processFile handles one recording end to end: map output, probe,
// classify, encode to scratch, relocate, retire. Every terminal outcome
// updates stats, and when a ledger is attached, writes a history row.
func (r *Runner) processFile(ctx context.Context, src string, index, total int, stats *RunStats) {
	defer fmt.Println()

	rel := r.relPath(src)
	r.Log.Info("--- Processing (%d/%d): %s ---", index, total, rel)
	r.state.LastFolder = naming.FolderID(rel)

	// --- Resolve paths ---
	outPath, err := naming.MapOutputPath(src, r.Cfg.SourceDir, r.Cfg.DestDir)
	if err != nil {
		r.Log.Error("Cannot map output path: %v", err)
		r.state.MarkProcessed(src)
		stats.Failed++
		return
	}

	// Another pass may have produced the output since the scan.
	if _, err := os.Stat(outPath); err == nil {
		r.Log.Info("Skipping %s: output already exists", rel)
		r.state.MarkProcessed(src)
		stats.Skipped++
		return
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		r.Log.Error("Source unreadable: %v", err)
		r.state.MarkProcessed(src)
		stats.Failed++
		return
	}
	inBytes := srcInfo.Size()

	if inBytes < minSourceBytes {
		r.Log.Warn("Source too small to be a recording (%d bytes); retiring %s", inBytes, rel)
		r.state.MarkProcessed(src)
		stats.Corrupt++
		r.record(history.Job{
			SourcePath: src,
			OutputPath: outPath,
			Folder:     r.state.LastFolder,
			Status:     history.StatusCorrupt,
			Detail:     "source under minimum size",
			InputBytes: inBytes,
		})
		return
	}

	// --- Probe and classify ---
	scratch := naming.LocalScratchPath(r.Cfg.ScratchDir, src)
	job, tierID := r.planJob(ctx, src, scratch)

	if r.Cfg.DryRun {
		r.Log.Success("[DRY] Would encode to %s", filepath.Base(outPath))
		r.state.MarkProcessed(src)
		stats.Done++
		return
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		r.Log.Error("Cannot create output directory: %v", err)
		stats.Failed++
		return
	}

	// --- Encode to scratch ---
	res, encErr := r.encode(ctx, job)

	row := history.Job{
		SourcePath:  src,
		OutputPath:  outPath,
		Folder:      r.state.LastFolder,
		Tier:        tierID,
		InputBytes:  inBytes,
		DurationSec: job.DurationSec,
		ElapsedSec:  res.Elapsed.Seconds(),
		Suspensions: res.Suspensions,
	}

	if encErr != nil {
		os.Remove(scratch)

		if errors.Is(encErr, ffmpeg.ErrCancelled) {
			r.Log.Warn("Encode cancelled: %s", rel)
			row.Status = history.StatusCancelled
			row.Detail = encErr.Error()
			r.record(row)
			return
		}

		r.Log.Error("Compression failed: %v", encErr)
		switch {
		case ffmpeg.IsCorruptSource(encErr):
			r.Log.Warn("Source looks corrupt or truncated; retiring %s", filepath.Base(src))
			r.state.MarkProcessed(src)
			stats.Corrupt++
			row.Status = history.StatusCorrupt
		case errors.Is(encErr, ffmpeg.ErrStalled):
			stats.Failed++
			row.Status = history.StatusStalled
		default:
			r.logEncoderTail(encErr)
			stats.Failed++
			row.Status = history.StatusFailed
		}
		row.Detail = encErr.Error()
		if r.Cfg.AutoDelete {
			r.Log.Warn("Original preserved: %s", rel)
		}
		r.record(row)
		return
	}

	// --- Relocate to the destination tree ---
	outInfo, err := os.Stat(scratch)
	if err != nil {
		r.Log.Error("Encode finished but scratch output is missing: %v", err)
		stats.Failed++
		row.Status = history.StatusFailed
		row.Detail = "scratch output missing"
		r.record(row)
		return
	}
	outBytes := outInfo.Size()
	row.OutputBytes = outBytes

	if err := relocate(scratch, outPath); err != nil {
		r.Log.Error("Copy to destination failed: %v", err)
		r.Log.Warn("Encoded file left in scratch: %s", scratch)
		if r.Cfg.AutoDelete {
			r.Log.Warn("Original preserved: %s", rel)
		}
		stats.Failed++
		row.Status = history.StatusFailed
		row.Detail = "relocation failed: " + err.Error()
		r.record(row)
		return
	}
	if err := os.Remove(scratch); err != nil {
		r.Log.Warn("Could not remove scratch file %s: %v", scratch, err)
	}

	r.state.MarkProcessed(src)
	stats.Done++
	stats.TotalInputBytes += inBytes
	stats.TotalOutputBytes += outBytes

	saved := 100.0
	if inBytes > 0 {
		saved = float64(inBytes-outBytes) / float64(inBytes) * 100
	}
	r.Log.Info("Saved to %s", outPath)
	r.Log.Success("Compressed %s -> %s (%.1f%% saved) in %s",
		display.FormatBytes(inBytes), display.FormatBytes(outBytes), saved,
		display.FormatClock(res.Elapsed.Seconds()))

	// --- Retire the original ---
	if r.Cfg.AutoDelete {
		if r.deleteOriginal(src) {
			stats.Deleted++
			r.Log.Success("Space freed on source share: %s", display.FormatBytes(inBytes))
		} else {
			r.Log.Warn("Could not delete original; see messages above")
		}
	}

	row.Status = history.StatusDone
	r.record(row)
}

// planJob probes src and builds the encode command. A failed probe is not
// fatal: the fixed fallback settings handle files whose headers confuse
// ffprobe but still decode.
func (r *Runner) planJob(ctx context.Context, src, scratch string) (ffmpeg.Job, string) {
	info, err := r.probe(ctx, src)
	if err != nil {
		r.Log.Warn("Video analysis failed (%v); using fallback settings", err)
		return ffmpeg.Job{Args: ffmpeg.BuildFallback(src, scratch)}, "fallback"
	}

	r.Log.Info("Resolution: %s | %.2f fps | %s", info.Resolution(), info.FrameRate, info.Codec)
	r.Log.Info("Bitrate: %s | Duration: %s | Size: %.1f MB",
		display.FormatBitrateLabel(int64(info.BitrateKbps)),
		display.FormatClock(info.DurationSeconds),
		info.FileSizeMB)

	tier := planner.Classify(info, r.Cfg.TargetReduction, r.Cfg.SpeedPriority)
	tier = planner.ScaleForResolution(tier, info)
	r.Log.Info("Using %s settings: CRF %d, %s preset, VBV %dk",
		tier.ID, tier.CRF, tier.Preset, tier.VBVMaxRateKbps)

	if est := planner.EstimateOutput(tier, info); est.Known {
		r.Log.Info("Expected output: ~%.1f MB (%.0f%% reduction)", est.SizeMB, est.Reduction*100)
	}

	return ffmpeg.Job{
		Args:        ffmpeg.Build(src, scratch, tier),
		DurationSec: info.DurationSeconds,
	}, string(tier.ID)
}

// deleteOriginal removes a source recording after its output has been
// verified. Every check short-circuits to leaving the file alone: wrong
// extension, already gone, removal failed, or still present afterwards.
func (r *Runner) deleteOriginal(path string) bool {
	if !strings.EqualFold(filepath.Ext(path), r.Cfg.SourceExt) {
		r.Log.Error("Refusing to delete %s: not a %s file", path, r.Cfg.SourceExt)
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		r.Log.Warn("Original already gone: %s", path)
		return false
	}
	if err := os.Remove(path); err != nil {
		r.Log.Error("Cannot delete %s: %v", path, err)
		return false
	}
	if _, err := os.Stat(path); err == nil {
		r.Log.Error("Delete reported success but %s is still there", path)
		return false
	}
	r.Log.Success("Deleted original %s (%s)", filepath.Base(path), display.FormatBytes(info.Size()))
	return true
}

// record writes a ledger row when a recorder is attached. Ledger problems
// never interrupt processing.
func (r *Runner) record(row history.Job) {
	if r.Hist == nil {
		return
	}
	if err := r.Hist.Record(&row); err != nil {
		r.Log.Warn("History write failed: %v", err)
	}
}

// logEncoderTail prints the last lines of encoder stderr after a failure.
func (r *Runner) logEncoderTail(err error) {
	var ee *ffmpeg.EncodeError
	if !errors.As(err, &ee) || ee.Stderr == "" {
		return
	}
	r.Log.Error("Last encoder output:")
	lines := strings.Split(strings.TrimSpace(ee.Stderr), "\n")
	start := 0
	if len(lines) > 20 {
		start = len(lines) - 20
	}
	for _, l := range lines[start:] {
		r.Log.Error("  %s", l)
	}
}

// sleepIdle waits out the idle delay; false means the context was cancelled.
func (r *Runner) sleepIdle(ctx context.Context) bool {
	t := time.NewTimer(idleScanDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (r *Runner) relPath(path string) string {
	rel, err := filepath.Rel(r.Cfg.SourceDir, path)
	if err != nil {
		return path
	}
	return rel
}

// --- Logging helpers ---

// logStartup prints the run configuration the way operators expect to see
// it at the top of the service log.
func (r *Runner) logStartup() {
	r.Log.Info("Source: %s", r.Cfg.SourceDir)
	r.Log.Info("Destination: %s", r.Cfg.DestDir)
	r.Log.Info("Scratch: %s", r.Cfg.ScratchDir)
	r.Log.Info("Target reduction: %.0f%% | CPU ceiling: %d%% | batch: %d",
		r.Cfg.TargetReduction*100, r.Cfg.CPULimitPercent, r.Cfg.BatchSize)
	if r.Cfg.Continuous {
		r.Log.Info("Mode: continuous (scan, process, repeat)")
	} else {
		r.Log.Info("Mode: single pass")
	}
	if r.Cfg.AutoDelete {
		r.Log.Warn("Auto-delete ON: originals are removed after verified copies")
	} else {
		r.Log.Info("Auto-delete off: originals are kept")
	}
	if r.Cfg.DryRun {
		r.Log.Info("Dry run: no encodes, no file changes")
	}
	if r.Cfg.SpeedPriority {
		r.Log.Info("Speed priority: big or hot files go to the ultrafast tier")
	}
	fmt.Println()
}

func (r *Runner) logSummary(stats *RunStats) {
	fmt.Println()
	r.Log.Info("--- Processing Complete ---")
	r.Log.Info("Scans: %d | done: %d, skipped: %d, corrupt: %d, failed: %d",
		stats.Scans, stats.Done, stats.Skipped, stats.Corrupt, stats.Failed)

	if r.Cfg.DryRun {
		r.Log.Info("Space saved: n/a (dry run)")
		return
	}
	if stats.Done == 0 {
		return
	}

	saved := stats.SpaceSaved()
	if saved >= 0 {
		r.Log.Success("Space saved: %s (input %s -> output %s)",
			display.FormatBytes(saved),
			display.FormatBytes(stats.TotalInputBytes),
			display.FormatBytes(stats.TotalOutputBytes))
	} else {
		r.Log.Warn("Space saved: -%s (outputs grew)", display.FormatBytes(-saved))
	}
	if r.Cfg.AutoDelete && stats.Deleted > 0 {
		r.Log.Info("Originals deleted: %d", stats.Deleted)
	}
}

// --- File plumbing ---

// relocate copies a finished encode to its destination and verifies the
// size. A failed verification leaves both files in place for inspection.
func relocate(scratch, dest string) error {
	want, err := os.Stat(scratch)
	if err != nil {
		return err
	}
	if err := copyFile(scratch, dest); err != nil {
		return err
	}
	got, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("verify copy: %w", err)
	}
	if got.Size() != want.Size() {
		return fmt.Errorf("verify copy: size %d, want %d", got.Size(), want.Size())
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
