package planner

import "github.com/backmassage/davpress/internal/probe"

// ScaleForResolution adjusts a tier's VBV caps for the source resolution.
// The catalog is tuned for 1080p; 4K sources get twice the rate budget and
// sub-HD sources a fraction of it. CRF and preset are untouched: resolution
// scaling is the rate controller's job, not the quantizer's.
//
// Unknown dimensions land in the lowest band, which is the safe direction
// for surveillance footage. A nil info skips scaling entirely.
func ScaleForResolution(t Tier, info *probe.MediaCharacteristics) Tier {
	if info == nil {
		return t
	}
	m := resolutionMultiplier(info.PixelCount)
	t.VBVMaxRateKbps = int(float64(t.VBVMaxRateKbps) * m)
	t.VBVBufSizeKbps = int(float64(t.VBVBufSizeKbps) * m)
	return t
}

// resolutionMultiplier maps pixel count to a VBV budget multiplier.
func resolutionMultiplier(pixels int) float64 {
	switch {
	case pixels >= 3840*2160:
		return 2.0
	case pixels >= 1920*1080:
		return 1.0
	case pixels >= 1280*720:
		return 0.7
	default:
		return 0.4
	}
}
