package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/backmassage/davpress/internal/config"
	"github.com/backmassage/davpress/internal/display"
	"github.com/backmassage/davpress/internal/logging"
	"github.com/backmassage/davpress/internal/naming"
	"github.com/backmassage/davpress/internal/planner"
	"github.com/backmassage/davpress/internal/probe"
	"github.com/backmassage/davpress/internal/term"
)

// reportRow holds the probed per-file data for the analysis table.
type reportRow struct {
	Name       string
	Resolution string
	Kbps       int64
	BPP        float64 // bitrate per pixel; the outlier metric
	SizeMB     float64
	Tier       string
	EstSavePct float64 // projected reduction percent; <0 means unknown
	Done       bool    // compressed output already exists
}

// Analyze probes every recording under the source root and prints a table of
// classification results with statistical outlier highlighting. Cameras with
// unusual encoder settings stand out by bitrate-per-pixel, which is
// comparable across resolutions. Nothing is written; the mode exists so an
// operator can preview a run and spot misconfigured recorders first.
func Analyze(ctx context.Context, cfg *config.Config, log *logging.Logger) {
	files, err := listRecordings(cfg.SourceDir, cfg.SourceExt)
	if err != nil {
		log.Error("Cannot scan %s: %v", cfg.SourceDir, err)
		return
	}
	if len(files) == 0 {
		log.Warn("No %s files found in %s", cfg.SourceExt, cfg.SourceDir)
		return
	}

	total := len(files)
	log.Info("Analyzing %d recordings in %s ...", total, cfg.SourceDir)
	fmt.Println()

	isTTY := term.IsTerminal(os.Stdout)
	var rows []reportRow
	var skipped int
	var bppVals []float64

	for i, path := range files {
		if ctx.Err() != nil {
			if isTTY {
				clearProgress()
			}
			log.Warn("Interrupted")
			return
		}

		printProgress(isTTY, i+1, total, skipped, filepath.Base(path))

		info, err := probe.Probe(ctx, path)
		if err != nil {
			skipped++
			if isTTY {
				clearProgress()
			}
			log.Warn("Skip (probe failed): %s", filepath.Base(path))
			continue
		}

		rel, rerr := filepath.Rel(cfg.SourceDir, path)
		if rerr != nil {
			rel = filepath.Base(path)
		}

		tier := planner.Classify(info, cfg.TargetReduction, cfg.SpeedPriority)
		tier = planner.ScaleForResolution(tier, info)

		row := reportRow{
			Name:       rel,
			Resolution: info.Resolution(),
			Kbps:       int64(info.BitrateKbps),
			BPP:        info.BitratePerPixel,
			SizeMB:     info.FileSizeMB,
			Tier:       string(tier.ID),
			EstSavePct: -1,
			Done:       outputDone(path, cfg),
		}
		if est := planner.EstimateOutput(tier, info); est.Known {
			row.EstSavePct = est.Reduction * 100
		}

		rows = append(rows, row)
		if row.BPP > 0 {
			bppVals = append(bppVals, row.BPP)
		}
	}

	if isTTY {
		clearProgress()
	}

	if len(rows) == 0 {
		log.Warn("No files could be probed")
		return
	}

	bounds := computeStats(bppVals)
	printReportTable(rows, bounds)
	printReportSummary(log, rows, bounds, skipped)
}

// listRecordings walks root and returns every file with the recording
// extension, sorted. Unreadable entries are skipped.
func listRecordings(root, ext string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}
	var files []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ext) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, nil
}

// outputDone reports whether the compressed counterpart already exists.
// Without a destination dir the question cannot be answered; report false.
func outputDone(path string, cfg *config.Config) bool {
	if cfg.DestDir == "" {
		return false
	}
	out, err := naming.MapOutputPath(path, cfg.SourceDir, cfg.DestDir)
	if err != nil {
		return false
	}
	_, err = os.Stat(out)
	return err == nil
}

// iqrBounds holds the IQR-based thresholds for outlier classification.
type iqrBounds struct {
	q1, q3    float64
	outlierLo float64 // Q1 - 1.5*IQR
	outlierHi float64 // Q3 + 1.5*IQR
	extremeLo float64 // Q1 - 3.0*IQR
	extremeHi float64 // Q3 + 3.0*IQR
	valid     bool
}

func computeStats(vals []float64) iqrBounds {
	if len(vals) < 4 {
		return iqrBounds{}
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 25)
	q3 := percentile(sorted, 75)
	iqr := q3 - q1

	return iqrBounds{
		q1:        q1,
		q3:        q3,
		outlierLo: q1 - 1.5*iqr,
		outlierHi: q3 + 1.5*iqr,
		extremeLo: q1 - 3.0*iqr,
		extremeHi: q3 + 3.0*iqr,
		valid:     iqr > 0,
	}
}

// classify returns "" (normal), "outlier", or "extreme" for a value.
func (b *iqrBounds) classify(v float64) string {
	if !b.valid || v <= 0 {
		return ""
	}
	if v < b.extremeLo || v > b.extremeHi {
		return "extreme"
	}
	if v < b.outlierLo || v > b.outlierHi {
		return "outlier"
	}
	return ""
}

func printReportTable(rows []reportRow, bounds iqrBounds) {
	nameW := len("File")
	resW := len("Resolution")
	rateW := len("Bitrate")
	sizeW := len("Size")
	tierW := len("Tier")
	saveW := len("Est.Save")

	for _, r := range rows {
		if len(r.Name) > nameW {
			nameW = len(r.Name)
		}
		if len(r.Resolution) > resW {
			resW = len(r.Resolution)
		}
		if n := len(display.FormatBitrateLabel(r.Kbps)); n > rateW {
			rateW = n
		}
		if n := len(fmtSizeMB(r.SizeMB)); n > sizeW {
			sizeW = n
		}
		if len(r.Tier) > tierW {
			tierW = len(r.Tier)
		}
	}
	if nameW > 50 {
		nameW = 50
	}

	header := fmt.Sprintf("  %-*s  %-*s  %-*s  %-*s  %-*s  %-*s",
		nameW, "File",
		resW, "Resolution",
		rateW, "Bitrate",
		sizeW, "Size",
		tierW, "Tier",
		saveW, "Est.Save",
	)
	fmt.Println(header)
	fmt.Println("  " + strings.Repeat("─", len(header)-2))

	for _, r := range rows {
		name := r.Name
		if len(name) > nameW {
			name = name[:nameW-1] + "…"
		}

		class := bounds.classify(r.BPP)
		// Pad the plain text first, then wrap in ANSI color. %-*s counts
		// escape bytes as visible width otherwise.
		rateCell := colorPad(display.FormatBitrateLabel(r.Kbps), rateW, class)

		save := "n/a"
		if r.EstSavePct >= 0 {
			save = fmt.Sprintf("%.0f%%", r.EstSavePct)
		}

		suffix := formatFlag(class)
		if r.Done {
			suffix += " " + term.Gray + "done" + term.NC
		}

		fmt.Printf("  %-*s  %-*s  %s  %-*s  %-*s  %-*s %s\n",
			nameW, name,
			resW, r.Resolution,
			rateCell,
			sizeW, fmtSizeMB(r.SizeMB),
			tierW, r.Tier,
			saveW, save,
			suffix,
		)
	}
	fmt.Println()
}

func printReportSummary(log *logging.Logger, rows []reportRow, bounds iqrBounds, skipped int) {
	var outliers, extremes int
	tiers := make(map[string]int)
	var totalMB, projectedMB float64

	for _, r := range rows {
		switch bounds.classify(r.BPP) {
		case "extreme":
			extremes++
		case "outlier":
			outliers++
		}
		tiers[r.Tier]++
		totalMB += r.SizeMB
		if r.EstSavePct >= 0 {
			projectedMB += r.SizeMB * (1 - r.EstSavePct/100)
		} else {
			projectedMB += r.SizeMB
		}
	}

	log.Info("Analyzed %d recordings (%d skipped)", len(rows), skipped)
	for _, id := range sortedTierIDs(tiers) {
		log.Info("  %s: %d files", id, tiers[id])
	}
	if totalMB > 0 {
		log.Info("  Archive: %.1f GB now, ~%.1f GB after compression (%.0f%% saved)",
			totalMB/1024, projectedMB/1024, (totalMB-projectedMB)/totalMB*100)
	}
	if bounds.valid {
		log.Info("  Bitrate-per-pixel IQR: %.4f - %.4f (outlier < %.4f or > %.4f)",
			bounds.q1, bounds.q3, bounds.outlierLo, bounds.outlierHi)
	}
	if outliers > 0 {
		log.Warn("  %d camera file(s) flagged [*]: check recorder encode settings", outliers)
	}
	if extremes > 0 {
		log.Error("  %d extreme outlier(s) flagged [!]", extremes)
	}
	if outliers == 0 && extremes == 0 {
		log.Success("  No outliers detected")
	}
}

func sortedTierIDs(tiers map[string]int) []string {
	ids := make([]string, 0, len(tiers))
	for id := range tiers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func fmtSizeMB(mb float64) string {
	if mb <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f MB", mb)
}

func formatFlag(flag string) string {
	switch flag {
	case "extreme":
		return term.Red + "[!]" + term.NC
	case "outlier":
		return term.Yellow + "[*]" + term.NC
	default:
		return ""
	}
}

// colorPad pads a plain string to width, then wraps it in ANSI color so
// %-*s-style alignment holds regardless of escape sequences.
func colorPad(s string, width int, class string) string {
	padded := fmt.Sprintf("%-*s", width, s)
	switch class {
	case "extreme":
		return term.Red + padded + term.NC
	case "outlier":
		return term.Yellow + padded + term.NC
	default:
		return padded
	}
}

// printProgress shows a live probe counter. On a TTY it writes an inline
// \r-overwritten line; otherwise it is a no-op (the skip warnings already
// provide enough breadcrumbs in piped output).
func printProgress(isTTY bool, current, total, skipped int, name string) {
	if !isTTY {
		return
	}
	pct := current * 100 / total
	status := fmt.Sprintf("  Probing [%d/%d] %d%% ", current, total, pct)
	if skipped > 0 {
		status += fmt.Sprintf("(%d skipped) ", skipped)
	}

	maxName := 40
	if len(name) > maxName {
		name = name[:maxName-1] + "…"
	}
	status += name

	// Pad to 80 chars to overwrite previous longer lines, then \r.
	if len(status) < 80 {
		status += strings.Repeat(" ", 80-len(status))
	}
	fmt.Fprintf(os.Stdout, "\r%s", status)
}

// clearProgress erases the inline progress line on a TTY.
func clearProgress() {
	fmt.Fprintf(os.Stdout, "\r%s\r", strings.Repeat(" ", 80))
}

// percentile computes the p-th percentile using linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi || hi >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
