package ffmpeg

import (
	"strconv"
	"time"
)

// Helpers for the -progress pipe:1 stream: newline-separated key=value
// pairs, one block per second or so. Values are parsed leniently because the
// stream mixes numbers with placeholders like "N/A".

// percentFromOutTime converts ffmpeg's out_time_ms value to integer percent
// of the source duration, capped at 100. Despite the name, out_time_ms is in
// microseconds. Returns false when the value does not parse or the duration
// is unknown, in which case the caller cannot do percent math at all.
func percentFromOutTime(value string, durationSec float64) (int, bool) {
	if durationSec <= 0 {
		return 0, false
	}
	us, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	pct := int(float64(us) / (durationSec * 1e6) * 100)
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// sizeFromTotal parses a total_size value into bytes. ffmpeg reports "N/A"
// until the muxer has written anything; only pure digit strings count.
func sizeFromTotal(value string) (int64, bool) {
	if value == "" || value == "N/A" {
		return 0, false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// etaSeconds extrapolates remaining wall time from elapsed time at the given
// integer percent. Below 3% the estimate is too noisy to show anyone.
func etaSeconds(elapsed time.Duration, percent int) (float64, bool) {
	if percent <= 2 {
		return 0, false
	}
	total := elapsed.Seconds() * 100 / float64(percent)
	return total - elapsed.Seconds(), true
}
