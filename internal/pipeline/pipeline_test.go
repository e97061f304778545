package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/backmassage/davpress/internal/config"
	"github.com/backmassage/davpress/internal/ffmpeg"
	"github.com/backmassage/davpress/internal/history"
	"github.com/backmassage/davpress/internal/logging"
	"github.com/backmassage/davpress/internal/probe"
)

// --- Scanner tests ---

func TestFullScan_FindsRecordings(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	touch(t, src, "cam1/2026-08-25/a.dav")
	touch(t, src, "cam1/2026-08-25/b.dav")
	touch(t, src, "cam2/2026-08-25/c.dav")
	touch(t, src, "cam1/notes.txt")
	touch(t, src, "cam1/2026-08-25/clip.mp4")

	sc := newTestScanner(t, src, dest)
	queue := sc.Scan(true, NewScanState())

	want := []string{"a.dav", "b.dav", "c.dav"}
	if got := basenames(queue); !sliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFullScan_CaseInsensitiveExtension(t *testing.T) {
	src := t.TempDir()
	touch(t, src, "cam1/A.DAV")
	touch(t, src, "cam1/b.Dav")

	sc := newTestScanner(t, src, t.TempDir())
	queue := sc.Scan(true, NewScanState())
	if len(queue) != 2 {
		t.Errorf("got %d files, want 2 (case-insensitive ext matching)", len(queue))
	}
}

func TestFullScan_SkipsProcessedAndExisting(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	done := touch(t, src, "cam1/2026-08-25/done.dav")
	touch(t, src, "cam1/2026-08-25/compressed.dav")
	fresh := touch(t, src, "cam1/2026-08-25/fresh.dav")

	// Output for compressed.dav already sits on the destination tree.
	touch(t, dest, "cam1/2026-08-25/compressed_compressed.mp4")

	st := NewScanState()
	st.MarkProcessed(done)

	sc := newTestScanner(t, src, dest)
	queue := sc.Scan(true, st)

	if len(queue) != 1 || queue[0] != fresh {
		t.Errorf("got %v, want only %q", queue, fresh)
	}
}

func TestFullScan_ReplacesStalePending(t *testing.T) {
	src := t.TempDir()
	touch(t, src, "cam1/live.dav")

	st := NewScanState()
	st.Pending[filepath.Join(src, "cam1", "deleted.dav")] = struct{}{}

	sc := newTestScanner(t, src, t.TempDir())
	queue := sc.Scan(true, st)

	if len(queue) != 1 || filepath.Base(queue[0]) != "live.dav" {
		t.Errorf("stale pending entry survived a full scan: %v", queue)
	}
}

func TestFullScan_Idempotent(t *testing.T) {
	src := t.TempDir()
	touch(t, src, "cam1/2026-08-25/a.dav")
	touch(t, src, "cam2/2026-08-25/b.dav")
	touch(t, src, "cam2/2026-08-25/c.dav")

	st := NewScanState()
	sc := newTestScanner(t, src, t.TempDir())

	first := sc.Scan(true, st)
	second := sc.Scan(true, st)

	if !sliceEqual(first, second) {
		t.Errorf("repeat full scan changed the queue:\n first: %v\nsecond: %v", first, second)
	}
}

func TestScan_TracksCyclesAndFolderTimes(t *testing.T) {
	src := t.TempDir()
	touch(t, src, "cam1/2026-08-25/a.dav")
	touch(t, src, "cam2/2026-08-25/b.dav")

	st := NewScanState()
	sc := newTestScanner(t, src, t.TempDir())

	sc.Scan(true, st)
	sc.Scan(false, st)

	if st.Cycles != 2 {
		t.Errorf("cycles: got %d, want 2", st.Cycles)
	}
	for _, folder := range []string{"cam1", "cam2"} {
		if st.FolderLastScan[folder].IsZero() {
			t.Errorf("folder %s never stamped with a scan time", folder)
		}
	}
}

func TestIncrementalScan_SeesOnlyRecentDateFolders(t *testing.T) {
	src := t.TempDir()
	today := time.Now().Format("2006-01-02")
	fresh := touch(t, src, "cam1/"+today+"/new.dav")
	touch(t, src, "cam1/2020-01-01/ancient.dav")

	sc := newTestScanner(t, src, t.TempDir())
	queue := sc.Scan(false, NewScanState())

	if len(queue) != 1 || queue[0] != fresh {
		t.Errorf("got %v, want only %q", queue, fresh)
	}
}

func TestIncrementalScan_KeepsExistingBacklog(t *testing.T) {
	src := t.TempDir()
	today := time.Now().Format("2006-01-02")
	old := touch(t, src, "cam1/2020-01-01/backlog.dav")
	fresh := touch(t, src, "cam1/"+today+"/new.dav")

	st := NewScanState()
	st.Pending[old] = struct{}{}

	sc := newTestScanner(t, src, t.TempDir())
	queue := sc.Scan(false, st)

	want := []string{old, fresh} // sorted: 2020 date before today
	if !sliceEqual(queue, want) {
		t.Errorf("got %v, want %v", queue, want)
	}
}

func TestScan_EmptyTree(t *testing.T) {
	sc := newTestScanner(t, t.TempDir(), t.TempDir())
	if queue := sc.Scan(true, NewScanState()); len(queue) != 0 {
		t.Errorf("got %d files, want 0", len(queue))
	}
}

func TestMarkProcessed(t *testing.T) {
	st := NewScanState()
	st.Pending["/x/a.dav"] = struct{}{}
	st.Pending["/x/b.dav"] = struct{}{}

	st.MarkProcessed("/x/a.dav")

	if got := st.PendingSorted(); len(got) != 1 || got[0] != "/x/b.dav" {
		t.Errorf("pending after mark: %v", got)
	}
	if _, ok := st.Processed["/x/a.dav"]; !ok {
		t.Error("processed set missing the marked path")
	}
}

// --- Round-robin tests ---

func TestOrganizeRoundRobin_InterleavesFolders(t *testing.T) {
	root := "/rec"
	files := []string{
		"/rec/cam1/a1.dav", "/rec/cam1/a2.dav", "/rec/cam1/a3.dav", "/rec/cam1/a4.dav",
		"/rec/cam2/b1.dav",
		"/rec/cam3/c1.dav", "/rec/cam3/c2.dav",
	}

	got := basenames(OrganizeRoundRobin(files, root, 2, ""))
	want := []string{"a1.dav", "a2.dav", "b1.dav", "c1.dav", "c2.dav", "a3.dav", "a4.dav"}
	if !sliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOrganizeRoundRobin_DrainsEqualFoldersInOneRotation(t *testing.T) {
	root := "/rec"
	files := []string{
		"/rec/cam1/a1.dav", "/rec/cam1/a2.dav", "/rec/cam1/a3.dav",
		"/rec/cam2/b1.dav", "/rec/cam2/b2.dav", "/rec/cam2/b3.dav",
		"/rec/cam3/c1.dav", "/rec/cam3/c2.dav", "/rec/cam3/c3.dav",
	}

	got := basenames(OrganizeRoundRobin(files, root, 3, ""))
	want := []string{
		"a1.dav", "a2.dav", "a3.dav",
		"b1.dav", "b2.dav", "b3.dav",
		"c1.dav", "c2.dav", "c3.dav",
	}
	if !sliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// At any point in the output, no folder with work still queued may trail
// another by more than one batch.
func TestOrganizeRoundRobin_FairnessBound(t *testing.T) {
	root := "/rec"
	batch := 2
	counts := map[string]int{"cam1": 5, "cam2": 2, "cam3": 9}

	var files []string
	total := 0
	for _, folder := range []string{"cam1", "cam2", "cam3"} {
		for i := 0; i < counts[folder]; i++ {
			files = append(files, fmt.Sprintf("/rec/%s/f%02d.dav", folder, i))
		}
		total += counts[folder]
	}

	order := OrganizeRoundRobin(files, root, batch, "")
	if len(order) != total {
		t.Fatalf("organized %d files, want %d", len(order), total)
	}

	dispatched := map[string]int{}
	remaining := map[string]int{}
	for folder, n := range counts {
		dispatched[folder] = 0
		remaining[folder] = n
	}
	for i, path := range order {
		folder := filepath.Base(filepath.Dir(path))
		dispatched[folder]++
		remaining[folder]--
		for a, ca := range dispatched {
			for b, cb := range dispatched {
				if remaining[a] == 0 || remaining[b] == 0 {
					continue
				}
				if diff := ca - cb; diff > batch {
					t.Fatalf("after %d files %s is %d ahead of %s (bound %d)",
						i+1, a, diff, b, batch)
				}
			}
		}
	}
}

func TestOrganizeRoundRobin_ContinuesAfterFolder(t *testing.T) {
	root := "/rec"
	files := []string{
		"/rec/cam1/a.dav",
		"/rec/cam2/b.dav",
		"/rec/cam3/c.dav",
	}

	got := basenames(OrganizeRoundRobin(files, root, 1, "cam1"))
	want := []string{"b.dav", "c.dav", "a.dav"}
	if !sliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOrganizeRoundRobin_WrapsAfterLastFolder(t *testing.T) {
	root := "/rec"
	files := []string{
		"/rec/cam1/a.dav",
		"/rec/cam2/b.dav",
		"/rec/cam3/c.dav",
	}

	got := basenames(OrganizeRoundRobin(files, root, 1, "cam3"))
	want := []string{"a.dav", "b.dav", "c.dav"}
	if !sliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOrganizeRoundRobin_UnknownContinueFolder(t *testing.T) {
	root := "/rec"
	files := []string{
		"/rec/cam1/a.dav",
		"/rec/cam2/b.dav",
	}

	got := basenames(OrganizeRoundRobin(files, root, 1, "gone"))
	want := []string{"a.dav", "b.dav"}
	if !sliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOrganizeRoundRobin_RootFilesShareOneFolder(t *testing.T) {
	root := "/rec"
	files := []string{"/rec/x.dav", "/rec/y.dav", "/rec/z.dav"}

	got := basenames(OrganizeRoundRobin(files, root, 1, ""))
	want := []string{"x.dav", "y.dav", "z.dav"}
	if !sliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOrganizeRoundRobin_Empty(t *testing.T) {
	if got := OrganizeRoundRobin(nil, "/rec", 3, ""); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestFolderCount(t *testing.T) {
	files := []string{
		"/rec/cam1/a.dav",
		"/rec/cam1/b.dav",
		"/rec/cam2/c.dav",
		"/rec/loose.dav",
	}
	if got := FolderCount(files, "/rec"); got != 3 {
		t.Errorf("got %d folders, want 3 (cam1, cam2, root)", got)
	}
}

// --- RunStats tests ---

func TestRunStats_SpaceSaved(t *testing.T) {
	s := RunStats{TotalInputBytes: 1000, TotalOutputBytes: 600}
	if got := s.SpaceSaved(); got != 400 {
		t.Errorf("SpaceSaved: got %d, want 400", got)
	}

	s2 := RunStats{TotalInputBytes: 100, TotalOutputBytes: 150}
	if got := s2.SpaceSaved(); got != -50 {
		t.Errorf("SpaceSaved (negative): got %d, want -50", got)
	}
}

// --- Runner tests ---

func TestRun_EncodesAndRelocates(t *testing.T) {
	cfg := testConfig(t)
	src := writeRecording(t, cfg.SourceDir, "cam1/2026-08-25/a.dav")

	r, rec := newTestRunner(t, cfg)
	stats := r.Run(context.Background())

	if stats.Done != 1 || stats.Failed != 0 {
		t.Fatalf("stats: %+v", stats)
	}
	if len(rec.jobs) != 1 {
		t.Fatalf("encode called %d times, want 1", len(rec.jobs))
	}
	if got := rec.jobs[0].DurationSec; got != 60 {
		t.Errorf("job duration: got %v, want 60", got)
	}

	out := filepath.Join(cfg.DestDir, "cam1", "2026-08-25", "a_compressed.mp4")
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if string(data) != "encoded" {
		t.Errorf("output content %q, want %q", data, "encoded")
	}

	if _, err := os.Stat(src); err != nil {
		t.Error("original removed without auto-delete")
	}
	leftovers, _ := os.ReadDir(cfg.ScratchDir)
	if len(leftovers) != 0 {
		t.Errorf("scratch not cleaned: %d entries", len(leftovers))
	}
}

func TestRun_AutoDeleteRemovesOriginal(t *testing.T) {
	cfg := testConfig(t)
	cfg.AutoDelete = true
	src := writeRecording(t, cfg.SourceDir, "cam1/a.dav")

	r, _ := newTestRunner(t, cfg)
	stats := r.Run(context.Background())

	if stats.Done != 1 || stats.Deleted != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("original still present after auto-delete")
	}
}

func TestRun_CorruptSourceRetired(t *testing.T) {
	cfg := testConfig(t)
	cfg.AutoDelete = true
	src := writeRecording(t, cfg.SourceDir, "cam1/bad.dav")

	r, rec := newTestRunner(t, cfg)
	rec.fn = func(job ffmpeg.Job) (ffmpeg.Result, error) {
		return ffmpeg.Result{}, &ffmpeg.EncodeError{
			ExitCode: 1,
			Stderr:   "Could not find codec parameters for stream 0",
		}
	}
	stats := r.Run(context.Background())

	if stats.Corrupt != 1 || stats.Done != 0 || stats.Deleted != 0 {
		t.Fatalf("stats: %+v", stats)
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("corrupt original must never be deleted")
	}
	if _, ok := r.state.Processed[src]; !ok {
		t.Error("corrupt source not retired from the queue")
	}
}

func TestRun_FailedEncodeStaysInQueue(t *testing.T) {
	cfg := testConfig(t)
	src := writeRecording(t, cfg.SourceDir, "cam1/flaky.dav")

	r, rec := newTestRunner(t, cfg)
	rec.fn = func(job ffmpeg.Job) (ffmpeg.Result, error) {
		return ffmpeg.Result{}, &ffmpeg.EncodeError{ExitCode: 1, Stderr: "Error while decoding stream"}
	}
	stats := r.Run(context.Background())

	if stats.Failed != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	if _, ok := r.state.Processed[src]; ok {
		t.Error("transient failure must not retire the source")
	}
}

func TestRun_StalledEncodeCountsAsFailed(t *testing.T) {
	cfg := testConfig(t)
	writeRecording(t, cfg.SourceDir, "cam1/frozen.dav")

	r, rec := newTestRunner(t, cfg)
	rec.fn = func(job ffmpeg.Job) (ffmpeg.Result, error) {
		return ffmpeg.Result{}, ffmpeg.ErrStalled
	}
	stats := r.Run(context.Background())

	if stats.Failed != 1 || stats.Done != 0 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestRun_DryRunTouchesNothing(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = true
	writeRecording(t, cfg.SourceDir, "cam1/a.dav")

	r, rec := newTestRunner(t, cfg)
	stats := r.Run(context.Background())

	if stats.Done != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	if len(rec.jobs) != 0 {
		t.Errorf("encode called %d times in dry run", len(rec.jobs))
	}
	entries, _ := os.ReadDir(cfg.DestDir)
	if len(entries) != 0 {
		t.Errorf("dry run created %d destination entries", len(entries))
	}
}

func TestRun_TinySourceRetired(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(cfg.SourceDir, "cam1", "stub.dav")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("hdr"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, rec := newTestRunner(t, cfg)
	stats := r.Run(context.Background())

	if stats.Corrupt != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	if len(rec.jobs) != 0 {
		t.Error("encode must not run for a header-only file")
	}
}

func TestRun_CancelStopsProcessing(t *testing.T) {
	cfg := testConfig(t)
	writeRecording(t, cfg.SourceDir, "cam1/a.dav")
	writeRecording(t, cfg.SourceDir, "cam1/b.dav")
	writeRecording(t, cfg.SourceDir, "cam1/c.dav")

	ctx, cancel := context.WithCancel(context.Background())
	r, rec := newTestRunner(t, cfg)
	rec.fn = func(job ffmpeg.Job) (ffmpeg.Result, error) {
		cancel()
		return ffmpeg.Result{}, ffmpeg.ErrCancelled
	}
	stats := r.Run(ctx)

	if len(rec.jobs) != 1 {
		t.Errorf("encode called %d times after cancel, want 1", len(rec.jobs))
	}
	if stats.Done != 0 || stats.Failed != 0 || stats.Corrupt != 0 {
		t.Errorf("cancel must not count as an outcome: %+v", stats)
	}
}

func TestRun_RoundRobinAcrossCameras(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 1
	writeRecording(t, cfg.SourceDir, "cam1/a1.dav")
	writeRecording(t, cfg.SourceDir, "cam1/a2.dav")
	writeRecording(t, cfg.SourceDir, "cam2/b1.dav")
	writeRecording(t, cfg.SourceDir, "cam2/b2.dav")

	r, rec := newTestRunner(t, cfg)
	if stats := r.Run(context.Background()); stats.Done != 4 {
		t.Fatalf("stats: %+v", stats)
	}

	var order []string
	for _, job := range rec.jobs {
		order = append(order, filepath.Base(inputOf(job.Args)))
	}
	want := []string{"a1.dav", "b1.dav", "a2.dav", "b2.dav"}
	if !sliceEqual(order, want) {
		t.Errorf("encode order %v, want %v", order, want)
	}
}

func TestRun_ContinuousRescansBetweenRounds(t *testing.T) {
	cfg := testConfig(t)
	cfg.Continuous = true
	cfg.BatchSize = 1
	writeRecording(t, cfg.SourceDir, "cam1/a1.dav")
	writeRecording(t, cfg.SourceDir, "cam1/a2.dav")
	writeRecording(t, cfg.SourceDir, "cam2/b1.dav")
	writeRecording(t, cfg.SourceDir, "cam2/b2.dav")

	// The idle seam returns false, so the run ends at the first empty scan.
	r, _ := newTestRunner(t, cfg)
	stats := r.Run(context.Background())

	if stats.Done != 4 {
		t.Fatalf("stats: %+v", stats)
	}
	// Round size is 2 (batch 1 x 2 cameras): 2 rounds plus the empty scan.
	if stats.Scans != 3 {
		t.Errorf("scans: got %d, want 3", stats.Scans)
	}
}

func TestProcessFile_SkipsWhenOutputAppeared(t *testing.T) {
	cfg := testConfig(t)
	src := writeRecording(t, cfg.SourceDir, "cam1/a.dav")
	touch(t, cfg.DestDir, "cam1/a_compressed.mp4")

	r, rec := newTestRunner(t, cfg)
	var stats RunStats
	r.processFile(context.Background(), src, 1, 1, &stats)

	if stats.Skipped != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	if len(rec.jobs) != 0 {
		t.Error("encode ran despite existing output")
	}
	if _, ok := r.state.Processed[src]; !ok {
		t.Error("skipped source not retired")
	}
}

func TestProcessFile_RejectsPathOutsideSource(t *testing.T) {
	cfg := testConfig(t)
	outside := writeRecording(t, t.TempDir(), "alien.dav")

	r, rec := newTestRunner(t, cfg)
	var stats RunStats
	r.processFile(context.Background(), outside, 1, 1, &stats)

	if stats.Failed != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	if len(rec.jobs) != 0 {
		t.Error("encode ran for a file outside the source tree")
	}
}

func TestRun_WritesHistoryRows(t *testing.T) {
	cfg := testConfig(t)
	writeRecording(t, cfg.SourceDir, "cam1/good.dav")
	writeRecording(t, cfg.SourceDir, "cam1/bad.dav")

	hist, err := history.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer hist.Close()

	r, rec := newTestRunner(t, cfg)
	r.Hist = hist
	rec.fn = func(job ffmpeg.Job) (ffmpeg.Result, error) {
		if strings.Contains(inputOf(job.Args), "bad") {
			return ffmpeg.Result{}, &ffmpeg.EncodeError{
				ExitCode: 1,
				Stderr:   "Could not find codec parameters",
			}
		}
		out := job.Args[len(job.Args)-1]
		if err := os.WriteFile(out, []byte("encoded"), 0o644); err != nil {
			return ffmpeg.Result{}, err
		}
		return ffmpeg.Result{Elapsed: 2 * time.Second}, nil
	}
	r.Run(context.Background())

	rows, err := hist.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d ledger rows, want 2", len(rows))
	}
	statuses := map[string]bool{}
	for _, row := range rows {
		statuses[row.Status] = true
		if row.JobID == "" {
			t.Error("ledger row missing job id")
		}
	}
	if !statuses[history.StatusDone] || !statuses[history.StatusCorrupt] {
		t.Errorf("statuses: %v", statuses)
	}
}

func TestNeedFullScan(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	cfg := config.DefaultConfig()
	cfg.FullRescanCycles = 50
	cfg.FullRescanSec = 600

	r := &Runner{Cfg: &cfg, state: NewScanState(), now: func() time.Time { return base }}

	if !r.needFullScan(0) {
		t.Error("first scan must be full")
	}

	r.state.LastFullScan = base.Add(-time.Minute)
	if r.needFullScan(7) {
		t.Error("recent full scan + off-cycle count must stay incremental")
	}
	if !r.needFullScan(50) {
		t.Error("cycle multiple must force a full scan")
	}

	r.state.LastFullScan = base.Add(-11 * time.Minute)
	if !r.needFullScan(7) {
		t.Error("stale full scan must force a full scan")
	}
}

// --- File plumbing tests ---

func TestRelocate_CopiesAndVerifies(t *testing.T) {
	dir := t.TempDir()
	scratch := filepath.Join(dir, "in.mp4")
	dest := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(scratch, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := relocate(scratch, dest); err != nil {
		t.Fatalf("relocate: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "payload" {
		t.Errorf("dest content %q, err %v", data, err)
	}
	// relocate leaves scratch removal to the caller.
	if _, err := os.Stat(scratch); err != nil {
		t.Error("scratch removed by relocate")
	}
}

func TestRelocate_MissingScratch(t *testing.T) {
	dir := t.TempDir()
	if err := relocate(filepath.Join(dir, "absent.mp4"), filepath.Join(dir, "out.mp4")); err == nil {
		t.Error("expected error for missing scratch file")
	}
}

func TestDeleteOriginal_RefusesWrongExtension(t *testing.T) {
	cfg := testConfig(t)
	r, _ := newTestRunner(t, cfg)

	path := filepath.Join(cfg.SourceDir, "keep.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if r.deleteOriginal(path) {
		t.Error("deleted a file without the recording extension")
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("file should have been left alone")
	}
}

func TestDeleteOriginal_RemovesRecording(t *testing.T) {
	cfg := testConfig(t)
	r, _ := newTestRunner(t, cfg)

	path := writeRecording(t, cfg.SourceDir, "cam1/gone.dav")
	if !r.deleteOriginal(path) {
		t.Fatal("delete refused")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("recording still present")
	}
}

// --- Helpers ---

// touch creates an empty file (plus parents) under dir and returns its path.
func touch(t *testing.T, dir, rel string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		t.Fatalf("touch %s: %v", path, err)
	}
	return path
}

// writeRecording creates a file big enough to pass the minimum-size check.
func writeRecording(t *testing.T, dir, rel string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte("d"), 1500), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func basenames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func sliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// inputOf extracts the encoder input path from a built command line.
func inputOf(args []string) string {
	for i, a := range args {
		if a == "-i" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ColorMode = config.ColorNever
	log, err := logging.NewLogger(&cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func newTestScanner(t *testing.T, src, dest string) *Scanner {
	t.Helper()
	return &Scanner{SourceRoot: src, DestRoot: dest, Ext: ".dav", Batch: 3, Log: newTestLogger(t)}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SourceDir = t.TempDir()
	cfg.DestDir = t.TempDir()
	cfg.ScratchDir = t.TempDir()
	cfg.Continuous = false
	cfg.ColorMode = config.ColorNever
	return &cfg
}

// newTestRunner wires a Runner with a stub prober and a recording encoder.
// The default encoder behavior writes a tiny output file and succeeds.
func newTestRunner(t *testing.T, cfg *config.Config) (*Runner, *encodeRecorder) {
	t.Helper()
	r := NewRunner(cfg, newTestLogger(t), nil)
	rec := &encodeRecorder{}
	r.encode = rec.encode
	r.probe = stubProbe
	r.idle = func(ctx context.Context) bool { return false }
	return r, rec
}

type encodeRecorder struct {
	jobs []ffmpeg.Job
	fn   func(job ffmpeg.Job) (ffmpeg.Result, error)
}

func (e *encodeRecorder) encode(_ context.Context, job ffmpeg.Job) (ffmpeg.Result, error) {
	e.jobs = append(e.jobs, job)
	if e.fn != nil {
		return e.fn(job)
	}
	out := job.Args[len(job.Args)-1]
	if err := os.WriteFile(out, []byte("encoded"), 0o644); err != nil {
		return ffmpeg.Result{}, err
	}
	return ffmpeg.Result{OutputBytes: 7, Elapsed: time.Second}, nil
}

func stubProbe(_ context.Context, path string) (*probe.MediaCharacteristics, error) {
	return &probe.MediaCharacteristics{
		Width:           1920,
		Height:          1080,
		DurationSeconds: 60,
		FrameRate:       25,
		BitrateKbps:     4000,
		FileSizeMB:      30,
		PixelCount:      1920 * 1080,
		BitratePerPixel: 4000.0 / (1920 * 1080),
		Codec:           "h264",
	}, nil
}
