package planner

import "github.com/backmassage/davpress/internal/probe"

// Classifier band and override constants. Bands are container bitrate in
// kbps; the size cutoff is in MB.
const (
	bandHighKbps = 5000
	bandMidKbps  = 2500
	bandLowKbps  = 1500

	speedPrioritySizeMB = 300

	// CRF overrides for sources that already sit near the target size.
	leanSourceCRF   = 27
	nearTargetCRF   = 22
	nearTargetVBVKb = 2500
)

// Classify selects the encode tier for one recording. Rules are ordered and
// the first match wins: the bitrate band is chosen first, then the reduction
// target splits the band. speedPriority short-circuits the upper bands to
// the ultrafast tier, and any file over 300 MB goes there too when speed
// matters.
//
// A nil info means analysis failed; the choice then rests on the flags
// alone.
func Classify(info *probe.MediaCharacteristics, targetReduction float64, speedPriority bool) Tier {
	if info == nil {
		if speedPriority {
			return tierCatalog[TierUltrafast]
		}
		return tierCatalog[TierBalanced]
	}

	if speedPriority && info.FileSizeMB > speedPrioritySizeMB {
		return tierCatalog[TierUltrafast]
	}

	switch {
	case info.BitrateKbps > bandHighKbps:
		switch {
		case speedPriority:
			return tierCatalog[TierUltrafast]
		case targetReduction > 0.8:
			return tierCatalog[TierMaximum]
		case targetReduction > 0.6:
			return tierCatalog[TierAggressive]
		default:
			return tierCatalog[TierBalanced]
		}

	case info.BitrateKbps > bandMidKbps:
		switch {
		case speedPriority:
			return tierCatalog[TierUltrafast]
		case targetReduction > 0.7:
			return tierCatalog[TierAggressive]
		case targetReduction > 0.5:
			return tierCatalog[TierBalanced]
		default:
			return tierCatalog[TierConservative]
		}

	case info.BitrateKbps > bandLowKbps:
		switch {
		case targetReduction > 0.6:
			return tierCatalog[TierBalanced]
		case targetReduction > 0.4:
			return tierCatalog[TierConservative]
		default:
			// Already-lean source: conservative settings with a gentler CRF.
			t := tierCatalog[TierConservative]
			t.CRF = leanSourceCRF
			return t
		}

	default:
		if targetReduction > 0.5 {
			return tierCatalog[TierConservative]
		}
		// Source is near the target already; keep quality high and let the
		// VBV ceiling breathe so the encode mostly normalizes the container.
		t := tierCatalog[TierConservative]
		t.CRF = nearTargetCRF
		t.VBVMaxRateKbps = nearTargetVBVKb
		t.VBVBufSizeKbps = nearTargetVBVKb * 2
		return t
	}
}
