// Package check provides system diagnostics (--check mode) and pre-pipeline
// dependency validation for ffmpeg, ffprobe, libx265, AAC, and the DHAV
// demuxer.
package check

import (
	"errors"
	"os/exec"
	"strings"
)

// Sentinel errors returned by CheckDeps when a required tool or encoder is
// missing.
var (
	ErrFfmpegNotFound  = errors.New("ffmpeg not found on PATH")
	ErrFfprobeNotFound = errors.New("ffprobe not found on PATH")
	ErrX265Failed      = errors.New("libx265 test encode failed")
)

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// RunCheck runs the interactive --check flow: ffmpeg/ffprobe presence and
// versions, available HEVC encoders, a libx265 test encode, an AAC test
// encode, and DHAV demuxer support. Every check runs even after a failure;
// the return value reports whether all of them passed.
func RunCheck(log Logger) bool {
	log.Info("=== System Check ===")

	ok := checkTool("ffmpeg", log)
	ok = checkTool("ffprobe", log) && ok
	checkHEVCEncoders(log)
	ok = checkCPUx265(log) && ok
	ok = checkAAC(log) && ok
	ok = checkDHAV(log) && ok
	return ok
}

// checkTool verifies the named binary is on PATH and logs its version line.
func checkTool(name string, log Logger) bool {
	if _, err := exec.LookPath(name); err != nil {
		log.Error("%s not found", name)
		return false
	}
	cmd := exec.Command(name, "-version")
	out, err := cmd.Output()
	if err != nil {
		log.Warn("%s found but -version failed: %v", name, err)
		return false
	}
	firstLine := strings.TrimSpace(string(out))
	if idx := strings.Index(firstLine, "\n"); idx > 0 {
		firstLine = firstLine[:idx]
	}
	log.Success("%s: %s", name, firstLine)
	return true
}

// checkHEVCEncoders lists all HEVC-related encoders reported by ffmpeg.
func checkHEVCEncoders(log Logger) {
	log.Info("HEVC encoders:")
	cmd := exec.Command("ffmpeg", "-hide_banner", "-encoders")
	out, err := cmd.Output()
	if err != nil {
		log.Warn("Could not list encoders: %v", err)
		return
	}
	for _, line := range strings.Split(string(out), "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "hevc") || strings.Contains(lower, "265") {
			log.Info("  %s", strings.TrimSpace(line))
		}
	}
}

// checkCPUx265 runs a minimal libx265 encode to verify CPU encoding works.
func checkCPUx265(log Logger) bool {
	log.Info("Testing CPU x265...")
	if runSilent("ffmpeg", cpuTestArgs()...) {
		log.Success("CPU x265 works")
		return true
	}
	log.Error("CPU x265 test encode failed")
	return false
}

// checkAAC runs a minimal AAC encode to verify the audio encoder works.
func checkAAC(log Logger) bool {
	log.Info("Testing AAC encoder...")
	if runSilent("ffmpeg",
		"-hide_banner", "-nostdin",
		"-f", "lavfi", "-i", "sine=frequency=1000:duration=0.1",
		"-c:a", "aac", "-f", "null", "-",
	) {
		log.Success("AAC encoder works")
		return true
	}
	log.Error("AAC encoder test failed")
	return false
}

// checkDHAV verifies this ffmpeg build carries the DHAV demuxer, which .dav
// camera dumps need forced by extension.
func checkDHAV(log Logger) bool {
	cmd := exec.Command("ffmpeg", "-hide_banner", "-demuxers")
	out, err := cmd.Output()
	if err != nil {
		log.Warn("Could not list demuxers: %v", err)
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && strings.EqualFold(fields[1], "dhav") {
			log.Success("DHAV demuxer available")
			return true
		}
	}
	log.Error("DHAV demuxer missing from this ffmpeg build")
	return false
}

// CheckDeps is the pre-pipeline validation: ffmpeg and ffprobe must be on
// PATH and a quick libx265 test encode must succeed. Returns a sentinel
// error on the first failure.
func CheckDeps() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return ErrFfmpegNotFound
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return ErrFfprobeNotFound
	}
	if !runSilent("ffmpeg", cpuTestArgs()...) {
		return ErrX265Failed
	}
	return nil
}

// --- internal helpers ---

// cpuTestArgs returns the ffmpeg arguments for a minimal libx265 test encode.
// Shared by checkCPUx265 and CheckDeps to avoid duplicating the argument list.
func cpuTestArgs() []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=black:s=256x256:d=0.1",
		"-c:v", "libx265",
		"-f", "null", "-",
	}
}

// runSilent runs a command and returns true if it exits with status 0.
// Both stdout and stderr are discarded.
func runSilent(name string, args ...string) bool {
	cmd := exec.Command(name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}
