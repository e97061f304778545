// Package config holds runtime configuration: defaults, CLI flag parsing, and
// validation. Defaults match the settings the recorder fleet runs with in
// production; anything an operator may need to tune is a flag.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Config holds all runtime settings. It is populated by [DefaultConfig] and
// then mutated by [ParseFlags] before being passed (by pointer) to packages
// that need it. Fields are grouped by concern with inline documentation of
// defaults.
type Config struct {
	// Paths. Source and destination come from positional args.
	SourceDir  string
	DestDir    string
	ScratchDir string // Local staging dir for in-flight encodes.

	// Classification.
	TargetReduction float64 // Desired size reduction 0..1 (default: 0.7).
	SpeedPriority   bool    // Favor encode speed over compression.
	SourceExt       string  // Recording extension, lowercase with dot (default: ".dav").

	// Encode supervision.
	CPULimitPercent int // System-wide CPU ceiling for the throttle (default: 85).

	// Scheduling.
	BatchSize        int  // Files per camera folder per round (default: 3).
	FullRescanSec    int  // Force a full scan after this many seconds (default: 600).
	FullRescanCycles int  // Force a full scan every N scan cycles (default: 50).
	Continuous       bool // Default: true. Cleared by --once.

	// Behavior flags.
	DryRun     bool
	AutoDelete bool // Delete sources after verified relocation. Default: false.
	Analyze    bool // Probe the archive and print a classification report, then exit.

	// History ledger (optional).
	HistoryDB   string // SQLite path; empty disables the ledger.
	ShowHistory int    // Print the N most recent ledger rows and exit.

	// System monitor.
	SysmonSec int // Resource log cadence in seconds; 0 disables (default: 300).

	// Display and logging.
	Verbose   bool
	ColorMode ColorMode // Default: "auto".
	LogFile   string    // Optional log file path.
	CheckOnly bool      // Run --check diagnostics and exit.
}

// DefaultConfig returns a Config with production defaults. Used as the base
// before [ParseFlags] applies CLI overrides.
func DefaultConfig() Config {
	return Config{
		ScratchDir:       filepath.Join(os.TempDir(), "davpress"),
		TargetReduction:  0.7,
		SpeedPriority:    false,
		SourceExt:        ".dav",
		CPULimitPercent:  85,
		BatchSize:        3,
		FullRescanSec:    600,
		FullRescanCycles: 50,
		Continuous:       true,
		DryRun:           false,
		AutoDelete:       false,
		SysmonSec:        300,
		Verbose:          false,
		ColorMode:        ColorAuto,
		CheckOnly:        false,
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// NormalizeExt canonicalizes a file extension to lowercase with a leading
// dot. Accepted forms: "dav", ".dav", ".DAV".
func NormalizeExt(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, ".")
	if s == "" || strings.ContainsAny(s, `/\.`) {
		return "", fmt.Errorf("invalid extension %q (use a bare suffix, e.g. .dav)", raw)
	}
	return "." + s, nil
}

// Validate checks numeric ranges and enum fields, then the positional
// paths the selected mode needs: --check and --show-history take none,
// --analyze takes only the source, the pipeline takes source and dest.
func (c *Config) Validate() error {
	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}
	if c.CPULimitPercent < 10 || c.CPULimitPercent > 100 {
		return fmt.Errorf("cpu limit must be within 10-100, got %d", c.CPULimitPercent)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}
	if c.TargetReduction < 0 || c.TargetReduction > 1 {
		return fmt.Errorf("target reduction must be within 0..1, got %v", c.TargetReduction)
	}
	if c.FullRescanSec < 1 {
		return fmt.Errorf("rescan interval must be positive, got %d", c.FullRescanSec)
	}
	if c.FullRescanCycles < 1 {
		return fmt.Errorf("rescan cycle count must be positive, got %d", c.FullRescanCycles)
	}
	if c.SysmonSec < 0 {
		return fmt.Errorf("sysmon interval must not be negative, got %d", c.SysmonSec)
	}
	if c.ShowHistory < 0 {
		return fmt.Errorf("show-history count must not be negative, got %d", c.ShowHistory)
	}
	if c.ShowHistory > 0 && c.HistoryDB == "" {
		return errors.New("--show-history requires --history-db")
	}
	ext, err := NormalizeExt(c.SourceExt)
	if err != nil {
		return err
	}
	c.SourceExt = ext

	if c.CheckOnly || c.ShowHistory > 0 {
		return nil
	}
	if c.Analyze {
		if c.SourceDir == "" {
			return errors.New("--analyze needs a source_dir")
		}
		return nil
	}
	if c.SourceDir == "" || c.DestDir == "" {
		return errors.New("need exactly source_dir and dest_dir")
	}
	return nil
}

// ValidatePaths ensures neither the destination nor the scratch directory
// sits inside (or equals) the source tree. Either arrangement would let the
// scanner rediscover the pipeline's own output files. All arguments must be
// absolute, symlink-resolved paths.
func (c *Config) ValidatePaths(sourceAbs, destAbs, scratchAbs string) error {
	if isWithin(destAbs, sourceAbs) {
		return errors.New("destination directory must not be inside source directory")
	}
	if isWithin(scratchAbs, sourceAbs) {
		return errors.New("scratch directory must not be inside source directory")
	}
	return nil
}

// isWithin reports whether path equals root or is nested under it.
func isWithin(path, root string) bool {
	sep := string(filepath.Separator)
	return path == root || strings.HasPrefix(path+sep, root+sep)
}
