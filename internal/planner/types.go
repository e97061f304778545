package planner

// TierID identifies an encode-settings tier. IDs are stable: they appear in
// log lines and history rows, so renaming one is a breaking change.
type TierID string

const (
	TierConservative   TierID = "conservative"
	TierConservative42 TierID = "conservative-42"
	TierBalanced       TierID = "balanced"
	TierAggressive     TierID = "aggressive"
	TierMaximum        TierID = "maximum"
	TierUltrafast      TierID = "ultrafast"
)

// Tier holds the encode settings the classifier selects for one recording.
// Lookups return value copies, so callers (the resolution scaler, the
// already-lean overrides) can adjust fields without touching the catalog.
type Tier struct {
	ID               TierID
	CRF              int
	VBVMaxRateKbps   int
	VBVBufSizeKbps   int // Kept at twice the maxrate across the catalog.
	Preset           string
	AudioBitrateKbps int
	Description      string
}

// tierCatalog is the fixed settings table. Several tiers share CRF values;
// identity lives in the ID, never in the numbers.
var tierCatalog = map[TierID]Tier{
	TierConservative: {
		ID: TierConservative, CRF: 35, VBVMaxRateKbps: 1200, VBVBufSizeKbps: 2400,
		Preset: "faster", AudioBitrateKbps: 64,
		Description: "Smaller file, fast processing",
	},
	TierConservative42: {
		ID: TierConservative42, CRF: 42, VBVMaxRateKbps: 700, VBVBufSizeKbps: 1400,
		Preset: "ultrafast", AudioBitrateKbps: 32,
		Description: "Tiny output, visible artifacts, very fast",
	},
	TierBalanced: {
		ID: TierBalanced, CRF: 38, VBVMaxRateKbps: 1000, VBVBufSizeKbps: 2000,
		Preset: "veryfast", AudioBitrateKbps: 48,
		Description: "Minimum file size, fastest processing",
	},
	TierAggressive: {
		ID: TierAggressive, CRF: 35, VBVMaxRateKbps: 1200, VBVBufSizeKbps: 2400,
		Preset: "faster", AudioBitrateKbps: 64,
		Description: "Smaller file, fast processing",
	},
	TierMaximum: {
		ID: TierMaximum, CRF: 38, VBVMaxRateKbps: 1000, VBVBufSizeKbps: 2000,
		Preset: "veryfast", AudioBitrateKbps: 48,
		Description: "Minimum file size, fastest processing",
	},
	TierUltrafast: {
		ID: TierUltrafast, CRF: 33, VBVMaxRateKbps: 2000, VBVBufSizeKbps: 4000,
		Preset: "ultrafast", AudioBitrateKbps: 48,
		Description: "Maximum speed, acceptable quality",
	},
}

// TierByID returns a value copy of the catalog entry for id.
func TierByID(id TierID) (Tier, bool) {
	t, ok := tierCatalog[id]
	return t, ok
}
