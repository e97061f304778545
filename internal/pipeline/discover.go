package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/backmassage/davpress/internal/logging"
	"github.com/backmassage/davpress/internal/naming"
)

// ScanState carries the work queue and dedup set between scan passes.
// Pending is the queue itself: full scans rebuild it wholesale, incremental
// scans only add to it, and processed paths never re-enter it.
type ScanState struct {
	Pending      map[string]struct{}
	Processed    map[string]struct{}
	LastFullScan time.Time
	LastFolder   string // folder of the most recently dequeued file
	Cycles       int    // scan passes completed, full and incremental alike

	// FolderLastScan records when each first-level folder was last listed.
	// Diagnostic state: surfaced in verbose logs so an operator can spot a
	// camera folder the incremental scans have stopped reaching.
	FolderLastScan map[string]time.Time
}

// NewScanState returns an empty state; the first scan against it is always
// a full one.
func NewScanState() *ScanState {
	return &ScanState{
		Pending:        make(map[string]struct{}),
		Processed:      make(map[string]struct{}),
		FolderLastScan: make(map[string]time.Time),
	}
}

// MarkProcessed retires a source path from this and all future queues.
func (s *ScanState) MarkProcessed(path string) {
	s.Processed[path] = struct{}{}
	delete(s.Pending, path)
}

// PendingSorted returns the queued paths in lexicographic order. Recorder
// files embed their timestamp in the name, so this is oldest-first within a
// folder.
func (s *ScanState) PendingSorted() []string {
	out := make([]string, 0, len(s.Pending))
	for p := range s.Pending {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Scanner finds unprocessed recordings under the source root and keeps a
// ScanState current. Full scans walk the whole tree; incremental scans only
// list the date folders a recorder writes into today and yesterday.
type Scanner struct {
	SourceRoot string
	DestRoot   string
	Ext        string // lowercase with leading dot, e.g. ".dav"
	Batch      int    // files per folder per round-robin turn
	Log        *logging.Logger
	Verbose    bool

	// Test seam; the zero value means time.Now.
	Now func() time.Time
}

// Scan refreshes st and returns the queue in round-robin order. When full
// is false only the recent date folders are listed; a root that cannot be
// read downgrades that to a full walk so a flaky NAS mount never wedges the
// queue empty.
func (sc *Scanner) Scan(full bool, st *ScanState) []string {
	if full {
		sc.fullScan(st)
	} else {
		sc.incrementalScan(st)
	}
	st.Cycles++

	pending := st.PendingSorted()
	if len(pending) == 0 {
		return pending
	}
	queue := OrganizeRoundRobin(pending, sc.SourceRoot, sc.Batch, st.LastFolder)
	sc.Log.Info("Organized %d files in round-robin order (%d per folder per turn)", len(queue), sc.Batch)
	return queue
}

// fullScan walks the entire source tree and rebuilds the pending queue from
// scratch. Unreadable entries are skipped rather than aborting the walk.
func (sc *Scanner) fullScan(st *ScanState) {
	sc.Log.Info("Performing FULL directory scan...")
	start := sc.now()

	found := make(map[string]struct{})
	tally := make(map[string]int)

	// The callback swallows per-entry errors, so the walk itself cannot fail.
	_ = filepath.WalkDir(sc.SourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			sc.Log.Debug(sc.Verbose, "scan: skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), sc.Ext) {
			return nil
		}
		tally[folderIDFor(path, sc.SourceRoot)]++
		if _, done := st.Processed[path]; done {
			return nil
		}
		if sc.outputExists(path) {
			return nil
		}
		found[path] = struct{}{}
		return nil
	})

	st.Pending = found
	st.LastFullScan = sc.now()
	for folder := range tally {
		st.FolderLastScan[folder] = st.LastFullScan
	}

	sc.Log.Success("Full scan complete: %d unprocessed files (%.1fs)",
		len(found), sc.now().Sub(start).Seconds())
	sc.logDistribution(tally)
}

// incrementalScan lists today's and yesterday's date folders under each
// first-level folder and adds anything new to the pending queue. Recorders
// create one directory per day (2006-01-02), so everything new lives there.
func (sc *Scanner) incrementalScan(st *ScanState) {
	sc.Log.Info("Performing INCREMENTAL scan for new files...")
	start := sc.now()

	entries, err := os.ReadDir(sc.SourceRoot)
	if err != nil {
		sc.Log.Warn("Cannot list source root (%v), falling back to full scan", err)
		sc.fullScan(st)
		return
	}

	now := sc.now()
	dates := []string{
		now.Format("2006-01-02"),
		now.AddDate(0, 0, -1).Format("2006-01-02"),
	}

	found := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		listed := false
		for _, date := range dates {
			dateDir := filepath.Join(sc.SourceRoot, e.Name(), date)
			files, derr := os.ReadDir(dateDir)
			if derr != nil {
				if !os.IsNotExist(derr) {
					sc.Log.Warn("Error scanning %s: %v", dateDir, derr)
				}
				continue
			}
			listed = true
			for _, f := range files {
				if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), sc.Ext) {
					continue
				}
				path := filepath.Join(dateDir, f.Name())
				if _, done := st.Processed[path]; done {
					continue
				}
				if _, queued := st.Pending[path]; queued {
					continue
				}
				if sc.outputExists(path) {
					continue
				}
				st.Pending[path] = struct{}{}
				found++
			}
		}
		if listed {
			st.FolderLastScan[e.Name()] = now
		} else if last, ok := st.FolderLastScan[e.Name()]; ok {
			sc.Log.Debug(sc.Verbose, "scan: %s has no recent date folders, last listed %s",
				e.Name(), last.Format("2006-01-02 15:04"))
		}
	}

	if found > 0 {
		sc.Log.Success("Incremental scan: %d new files (%.1fs)", found, sc.now().Sub(start).Seconds())
	} else {
		sc.Log.Info("Incremental scan: no new files (%.1fs)", sc.now().Sub(start).Seconds())
	}
}

// outputExists reports whether the compressed counterpart of path is already
// on the destination tree.
func (sc *Scanner) outputExists(path string) bool {
	out, err := naming.MapOutputPath(path, sc.SourceRoot, sc.DestRoot)
	if err != nil {
		return false
	}
	_, err = os.Stat(out)
	return err == nil
}

// logDistribution prints the per-folder file counts found by a full scan.
// The tally covers every matching file, processed or not, so the operator
// sees the whole archive shape.
func (sc *Scanner) logDistribution(tally map[string]int) {
	if len(tally) == 0 {
		return
	}
	folders := make([]string, 0, len(tally))
	for f := range tally {
		folders = append(folders, f)
	}
	sort.Strings(folders)
	sc.Log.Info("Files per folder:")
	for _, f := range folders {
		sc.Log.Info("  %s: %d files", f, tally[f])
	}
}

func (sc *Scanner) now() time.Time {
	if sc.Now != nil {
		return sc.Now()
	}
	return time.Now()
}
