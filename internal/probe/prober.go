package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoVideoStream is returned when ffprobe parses the file but finds no
// video stream in it. Truncated DHAV segments commonly probe this way.
var ErrNoVideoStream = errors.New("no video stream found")

// Probe runs a single ffprobe JSON call against path and returns the parsed
// characteristics. Any failure (ffprobe exit, bad JSON, no video stream)
// surfaces as an error; callers treat every cause the same way and fall back
// to conservative fixed encode settings.
func Probe(ctx context.Context, path string) (*MediaCharacteristics, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}

	return ParseJSON(out)
}

// ParseJSON converts raw ffprobe JSON output into MediaCharacteristics.
// Exported for testing without a real ffprobe binary.
func ParseJSON(data []byte) (*MediaCharacteristics, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	return buildCharacteristics(&raw)
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

// --- Conversion from wire types to domain types ---

func buildCharacteristics(raw *ffprobeOutput) (*MediaCharacteristics, error) {
	var video *ffprobeStream
	for i := range raw.Streams {
		if raw.Streams[i].CodecType == "video" {
			video = &raw.Streams[i]
			break
		}
	}
	if video == nil {
		return nil, ErrNoVideoStream
	}

	mc := &MediaCharacteristics{
		Width:           video.Width,
		Height:          video.Height,
		Codec:           video.CodecName,
		DurationSeconds: parseFloat(raw.Format.Duration),
		FrameRate:       parseFrameRate(video.RFrameRate),
		BitrateKbps:     parseFloat(raw.Format.BitRate) / 1000,
		FileSizeMB:      float64(parseInt64(raw.Format.Size)) / (1024 * 1024),
	}
	mc.PixelCount = mc.Width * mc.Height
	if mc.PixelCount > 0 {
		mc.BitratePerPixel = mc.BitrateKbps / float64(mc.PixelCount)
	}
	return mc, nil
}

// parseFrameRate parses ffprobe's rational r_frame_rate ("30000/1001").
// A zero denominator or an unparsable value falls back to 25 fps, the PAL
// rate the recorder fleet runs at.
func parseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	num, den, found := strings.Cut(s, "/")
	if !found {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return 25
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 25
	}
	return n / d
}

// --- Numeric parsing helpers (ffprobe returns numbers as strings) ---

func parseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
