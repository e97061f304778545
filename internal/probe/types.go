package probe

import "fmt"

// MediaCharacteristics holds everything the classifier needs to know about a
// source recording: resolution, duration, bitrate, and size-derived ratios.
// Produced once per file by [Probe]. A nil value is meaningful downstream:
// "analysis unavailable, use fallback settings".
type MediaCharacteristics struct {
	Width           int
	Height          int
	DurationSeconds float64
	FrameRate       float64
	BitrateKbps     float64 // Container-level bitrate in kilobits per second.
	FileSizeMB      float64
	PixelCount      int     // Width x Height.
	BitratePerPixel float64 // BitrateKbps / PixelCount; 0 when dimensions are unknown.
	Codec           string  // Video codec name as reported by ffprobe.
}

// Resolution returns "WxH", or "unknown" when dimensions are missing.
func (m *MediaCharacteristics) Resolution() string {
	if m == nil || m.Width <= 0 || m.Height <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}
