package config

// This file implements CLI flag parsing and help text.
// Flags are grouped into encoding, scheduling, safety, history, display, and utility.
// Post-Parse flags (e.g. --once) are applied after Parse so Config defaults hold unless set.

import (
	"flag"
	"fmt"
	"os"
)

// version is shown in --version and help; override at build time with
// -ldflags "-X .../internal/config.version=...".
var version = "1.0.0"

// Version returns the build version string (for banners and diagnostics).
func Version() string { return version }

// ParseFlags parses os.Args into cfg. On --help or --version it prints and exits.
// On error it returns non-nil (e.g. unknown flag, missing positional args).
func ParseFlags(cfg *Config) error {
	fs := flag.NewFlagSet("davpress", flag.ContinueOnError)
	fs.Usage = func() { printUsage(fs) }

	// Inverting/override flags: we capture bools then apply to cfg after
	// Parse, so that defaults from DefaultConfig() hold unless the user
	// passes the flag.
	var post postParseFlags

	defineEncodingFlags(fs, cfg)
	defineSchedulingFlags(fs, cfg, &post)
	defineSafetyFlags(fs, cfg)
	defineHistoryFlags(fs, cfg)
	defineDisplayFlags(fs, cfg, &post)
	defineUtilityFlags(fs, &post)

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	applyPostParseFlags(cfg, &post)

	if post.showHelp {
		printUsage(fs)
		os.Exit(0)
	}
	if post.showVersion {
		fmt.Fprintln(os.Stdout, "davpress v"+version)
		os.Exit(0)
	}

	return parsePositionalArgs(fs, cfg)
}

// postParseFlags holds boolean flags that are applied after Parse.
// These either invert a default (once -> Continuous=false) or trigger exit
// (showHelp, showVersion).
type postParseFlags struct {
	once        bool
	forceColor  bool
	noColor     bool
	showVersion bool
	showHelp    bool
}

// defineEncodingFlags registers --target-reduction, --speed-priority, --cpu-limit, --ext.
func defineEncodingFlags(fs *flag.FlagSet, cfg *Config) {
	fs.Float64Var(&cfg.TargetReduction, "target-reduction", cfg.TargetReduction, "Desired size reduction, 0..1")
	fs.BoolVar(&cfg.SpeedPriority, "speed-priority", false, "Favor encode speed over compression")
	fs.IntVar(&cfg.CPULimitPercent, "cpu-limit", cfg.CPULimitPercent, "System-wide CPU ceiling percent, 10-100")
	fs.Var(&extValue{&cfg.SourceExt}, "ext", "Recording extension (e.g. .dav)")
}

// defineSchedulingFlags registers --batch, --rescan-interval, --rescan-every, --once.
func defineSchedulingFlags(fs *flag.FlagSet, cfg *Config, p *postParseFlags) {
	fs.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "Files per camera folder per round")
	fs.IntVar(&cfg.FullRescanSec, "rescan-interval", cfg.FullRescanSec, "Force a full rescan after this many seconds")
	fs.IntVar(&cfg.FullRescanCycles, "rescan-every", cfg.FullRescanCycles, "Force a full rescan every N scan cycles")
	fs.BoolVar(&p.once, "once", false, "Single pass: stop when the queue drains")
}

// defineSafetyFlags registers dry-run, analyze, auto-delete, scratch.
func defineSafetyFlags(fs *flag.FlagSet, cfg *Config) {
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Preview only; classify but do not encode")
	fs.BoolVar(&cfg.DryRun, "d", false, "Same as --dry-run")
	fs.BoolVar(&cfg.Analyze, "analyze", false, "Probe the archive and print a classification report")
	fs.BoolVar(&cfg.Analyze, "a", false, "Same as --analyze")
	fs.BoolVar(&cfg.AutoDelete, "auto-delete", false, "Delete sources after verified relocation")
	fs.StringVar(&cfg.ScratchDir, "scratch", cfg.ScratchDir, "Local staging directory for in-flight encodes")
}

// defineHistoryFlags registers --history-db, --show-history, --sysmon.
func defineHistoryFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.HistoryDB, "history-db", "", "Record encode outcomes to this SQLite ledger")
	fs.IntVar(&cfg.ShowHistory, "show-history", 0, "Print the N most recent ledger rows and exit")
	fs.IntVar(&cfg.SysmonSec, "sysmon", cfg.SysmonSec, "Resource usage log cadence in seconds, 0 = off")
}

// defineDisplayFlags registers --color, --no-color, verbose, --check, --log.
func defineDisplayFlags(fs *flag.FlagSet, cfg *Config, p *postParseFlags) {
	fs.BoolVar(&p.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&p.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&cfg.Verbose, "v", false, "Same as --verbose")
	fs.BoolVar(&cfg.CheckOnly, "check", false, "Run system diagnostics and exit")
	fs.BoolVar(&cfg.CheckOnly, "c", false, "Same as --check")
	fs.StringVar(&cfg.LogFile, "log", "", "Append logs to file")
	fs.StringVar(&cfg.LogFile, "l", "", "Same as --log")
}

// defineUtilityFlags registers --version and --help (exit after printing).
func defineUtilityFlags(fs *flag.FlagSet, p *postParseFlags) {
	fs.BoolVar(&p.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&p.showVersion, "V", false, "Same as --version")
	fs.BoolVar(&p.showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&p.showHelp, "h", false, "Same as --help")
}

// applyPostParseFlags copies inverting flag values into cfg (e.g. once -> Continuous=false).
func applyPostParseFlags(cfg *Config, p *postParseFlags) {
	if p.once {
		cfg.Continuous = false
	}
	if p.noColor {
		cfg.ColorMode = ColorNever
	} else if p.forceColor {
		cfg.ColorMode = ColorAlways
	}
}

// parsePositionalArgs sets SourceDir and DestDir from the two positional args
// when not in a pre-pipeline exit mode (--check, --show-history). Analyze
// mode needs only the source; a destination, when given, lets the report
// mark files whose output already exists.
func parsePositionalArgs(fs *flag.FlagSet, cfg *Config) error {
	args := fs.Args()
	if cfg.CheckOnly || cfg.ShowHistory > 0 {
		return nil
	}
	if cfg.Analyze {
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("--analyze needs source_dir (dest_dir optional)")
		}
		cfg.SourceDir = NormalizeDirArg(args[0])
		if len(args) == 2 {
			cfg.DestDir = NormalizeDirArg(args[1])
		}
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("need exactly source_dir and dest_dir")
	}
	cfg.SourceDir = NormalizeDirArg(args[0])
	cfg.DestDir = NormalizeDirArg(args[1])
	return nil
}

// printUsage writes the help text to stderr. Column-aligned for readability.
func printUsage(fs *flag.FlagSet) {
	const col1 = 30 // width of "  -x, --long-name <arg>  "
	lines := []struct {
		flags string
		desc  string
	}{
		{"", "DavPress v" + version + " - size-controlled DVR/NVR footage compressor"},
		{"", ""},
		{"  davpress [OPTIONS] <source_dir> <dest_dir>", ""},
		{"", ""},
		{"Encoding", ""},
		{"  --target-reduction <0..1>", "Desired size reduction (default: 0.7)"},
		{"  --speed-priority", "Favor encode speed over compression"},
		{"  --cpu-limit <10-100>", "System-wide CPU ceiling percent (default: 85)"},
		{"  --ext <suffix>", "Recording extension (default: .dav)"},
		{"", ""},
		{"Scheduling", ""},
		{"  --batch <n>", "Files per camera folder per round (default: 3)"},
		{"  --rescan-interval <sec>", "Full rescan at least this often (default: 600)"},
		{"  --rescan-every <cycles>", "Full rescan every N scan cycles (default: 50)"},
		{"  --once", "Single pass: stop when the queue drains"},
		{"", ""},
		{"Safety", ""},
		{"  -d, --dry-run", "Preview only; classify but do not encode"},
		{"  -a, --analyze", "Probe the archive, print a classification report"},
		{"  --auto-delete", "Delete sources after verified relocation"},
		{"  --scratch <dir>", "Local staging directory (default: system temp)"},
		{"", ""},
		{"History & monitoring", ""},
		{"  --history-db <path>", "Record encode outcomes to a SQLite ledger"},
		{"  --show-history <n>", "Print the N most recent ledger rows and exit"},
		{"  --sysmon <sec>", "Resource usage log cadence, 0 = off (default: 300)"},
		{"", ""},
		{"Display", ""},
		{"  --color", "Force colored logs"},
		{"  --no-color", "Disable colored logs"},
		{"  -v, --verbose", "Verbose output"},
		{"", ""},
		{"Utility", ""},
		{"  -l, --log <path>", "Append logs to file"},
		{"  -c, --check", "System diagnostics (ffmpeg, x265, AAC, DHAV)"},
		{"  -V, --version", "Print version and exit"},
		{"  -h, --help", "Show this help and exit"},
	}

	for _, l := range lines {
		if l.flags == "" && l.desc == "" {
			fmt.Fprintln(os.Stderr)
			continue
		}
		if l.desc == "" {
			fmt.Fprintln(os.Stderr, l.flags)
			continue
		}
		if l.flags == "" {
			fmt.Fprintln(os.Stderr, l.desc)
			continue
		}
		padding := col1 - len(l.flags)
		if padding < 1 {
			padding = 1
		}
		fmt.Fprintf(os.Stderr, "%s%*s%s\n", l.flags, padding, "", l.desc)
	}
}

// flag.Value adapter so the extension flag is normalized at parse time
// (accepts "dav", ".dav", ".DAV").

type extValue struct{ p *string }

func (e *extValue) String() string { return *e.p }
func (e *extValue) Set(s string) error {
	ext, err := NormalizeExt(s)
	if err != nil {
		return err
	}
	*e.p = ext
	return nil
}
