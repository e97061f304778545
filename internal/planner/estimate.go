package planner

import "github.com/backmassage/davpress/internal/probe"

// Estimate is the pre-encode compression preview logged for the operator.
type Estimate struct {
	BitrateKbps float64 // Projected output bitrate.
	SizeMB      float64 // Projected output size.
	Reduction   float64 // Projected size reduction, 0..1.
	Known       bool    // False when the source metadata is too thin to project.
}

// EstimateOutput projects the output size for encoding info with tier t.
// CRF governs how much of the source bitrate an x265 encode retains; the
// tier's VBV ceiling caps the result. The projection is only as good as the
// container metadata, so it is logged as guidance and never used for
// decisions.
func EstimateOutput(t Tier, info *probe.MediaCharacteristics) Estimate {
	if info == nil || info.BitrateKbps <= 0 {
		return Estimate{}
	}

	est := info.BitrateKbps * crfEfficiency(t.CRF)
	if ceiling := float64(t.VBVMaxRateKbps); est > ceiling {
		est = ceiling
	}

	sizeMB := est * info.DurationSeconds / (8 * 1024)
	var reduction float64
	if info.FileSizeMB > 0 {
		reduction = (info.FileSizeMB - sizeMB) / info.FileSizeMB
		if reduction < 0 {
			reduction = 0
		}
	}
	return Estimate{BitrateKbps: est, SizeMB: sizeMB, Reduction: reduction, Known: true}
}

// crfEfficiency approximates the fraction of the source bitrate that
// survives an x265 encode at the given CRF.
func crfEfficiency(crf int) float64 {
	switch {
	case crf <= 30:
		return 0.8
	case crf <= 35:
		return 0.6
	case crf <= 40:
		return 0.4
	default:
		return 0.3
	}
}
