package ffmpeg

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/backmassage/davpress/internal/planner"
)

// Build constructs the complete ffmpeg argument slice for one encode from a
// resolved tier. The vector always requests machine-readable progress on
// stdout (-progress pipe:1) so the supervisor can track the encode; human
// stats stay disabled.
func Build(inputPath, outputPath string, tier planner.Tier) []string {
	args := make([]string, 0, 48)

	// --- Preamble ---
	args = append(args, "ffmpeg", "-y")

	// --- Demuxer hint ---
	// Raw DVR dumps carry no header ffmpeg trusts on its own; the DHAV
	// demuxer has to be forced by extension.
	if strings.EqualFold(filepath.Ext(inputPath), ".dav") {
		args = append(args, "-f", "dhav")
	}

	// --- Input ---
	args = append(args, "-i", inputPath)

	// --- Filters ---
	// Light denoising pays for itself at ultrafast, where the encoder has
	// no psy tools of its own. Slower presets run unfiltered.
	if tier.Preset == "ultrafast" {
		args = append(args, "-vf", "hqdn3d")
	}

	// --- Video codec ---
	args = append(args,
		"-c:v", "libx265",
		"-crf", strconv.Itoa(tier.CRF),
		"-preset", tier.Preset,
		"-maxrate", kbps(tier.VBVMaxRateKbps),
		"-bufsize", kbps(tier.VBVBufSizeKbps),
	)

	// --- Encoder tuning ---
	if tier.Preset == "ultrafast" {
		args = append(args, "-tune", "zerolatency")
	}
	args = append(args, "-x265-params", x265Params(tier))

	// --- Audio ---
	// Surveillance audio is mono or dual-mono; forcing stereo keeps players
	// happy without wasting bitrate.
	args = append(args, "-c:a", "aac", "-b:a", kbps(tier.AudioBitrateKbps), "-ac", "2")

	// --- Progress and output ---
	args = append(args,
		"-threads", "0",
		"-progress", "pipe:1",
		"-nostats",
		"-hide_banner",
		"-loglevel", "warning",
		outputPath,
	)

	return args
}

// BuildFallback constructs the fixed conservative command used when probing
// failed. DHAV streams from flaky recorders often defeat analysis yet still
// decode fine, so a safe middle tier beats skipping the file.
func BuildFallback(inputPath, outputPath string) []string {
	args := make([]string, 0, 32)

	// --- Preamble ---
	args = append(args, "ffmpeg", "-y")
	if strings.EqualFold(filepath.Ext(inputPath), ".dav") {
		args = append(args, "-f", "dhav")
	}

	// --- Fixed settings ---
	args = append(args,
		"-i", inputPath,
		"-c:v", "libx265",
		"-crf", "33",
		"-preset", "fast",
		"-maxrate", "1500k",
		"-bufsize", "3000k",
		"-x265-params", "rd=2:subme=2:me=hex:ref=2:rc-lookahead=10:aq-mode=1:weightp=1:cutree=1",
		"-c:a", "aac", "-b:a", "96k", "-ac", "2",
		"-threads", "0",
		"-progress", "pipe:1", "-nostats", "-hide_banner", "-loglevel", "warning",
		outputPath,
	)

	return args
}

// x265Params renders the parameter string for the tier's preset. The
// ultrafast set strips every tool with a per-frame cost and mirrors the VBV
// caps inside the encoder; the standard set keeps the compression tools that
// matter for size (SAO, cutree, psy-rd) while staying cheap on motion search.
func x265Params(tier planner.Tier) string {
	if tier.Preset == "ultrafast" {
		return strings.Join([]string{
			"no-sao=1",
			"subme=1",
			"me=dia",
			"rd=1",
			"vbv-maxrate=" + strconv.Itoa(tier.VBVMaxRateKbps),
			"vbv-bufsize=" + strconv.Itoa(tier.VBVBufSizeKbps),
			"no-weightb=1",
			"no-weightp=1",
			"rc-lookahead=5",
			"bframes=2",
			"b-adapt=0",
			"scenecut=0",
		}, ":")
	}
	return strings.Join([]string{
		"no-sao=0",
		"rd=2",
		"subme=2",
		"me=hex",
		"ref=2",
		"rc-lookahead=10",
		"aq-mode=1",
		"aq-strength=0.8",
		"weightp=1",
		"cutree=1",
		"bframes=3",
		"b-adapt=1",
		"scenecut=40",
		"psy-rd=1.0",
		"deblock=1,1",
	}, ":")
}

// kbps renders an integer kilobit rate the way ffmpeg flags expect it.
func kbps(n int) string {
	return strconv.Itoa(n) + "k"
}
