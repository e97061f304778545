package ffmpeg

import (
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for the two supervised abort paths. Both mean the process
// was killed by the supervisor, not that ffmpeg failed on its own.
var (
	// ErrStalled reports an encoder that stopped emitting progress for the
	// whole stall window and was killed.
	ErrStalled = errors.New("encoder stalled: no progress updates")

	// ErrCancelled reports an encode killed because the surrounding context
	// ended (shutdown signal or stop request).
	ErrCancelled = errors.New("encode cancelled")
)

// EncodeError wraps a non-zero ffmpeg exit together with the captured
// stderr, which downstream classification inspects.
type EncodeError struct {
	ExitCode int
	Stderr   string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("ffmpeg exited with code %d", e.ExitCode)
}

// Pre-compiled patterns for input ffmpeg cannot parse at all. Matching is
// case-insensitive: the exact casing differs across ffmpeg builds.
var (
	reNoCodecParams = regexp.MustCompile(`(?i)could not find codec parameters`)
	reDHAVLowScore  = regexp.MustCompile(`(?i)format dhav detected only with low score`)
)

// IsCorruptSource reports whether err carries stderr indicating a source
// file ffmpeg cannot read, as opposed to a transient failure. Corrupt
// sources are retired from the queue and never retried.
func IsCorruptSource(err error) bool {
	var ee *EncodeError
	if !errors.As(err, &ee) {
		return false
	}
	return reNoCodecParams.MatchString(ee.Stderr) || reDHAVLowScore.MatchString(ee.Stderr)
}
