package engine

import "trailhead/internal/config"

// Journey themes, from quietest to loudest.
const (
	ThemeReflection    = "Reflection"
	ThemeRenewal       = "Renewal"
	ThemeResilience    = "Resilience"
	ThemeTranscendence = "Transcendence"
)

// resonance folds the headline metrics into one silent score and maps
// it to a theme. XP and magnitude are normalized before weighting.
func resonance(xp int, shadow, capacity, magnitude float64, t config.HarmonicTuning) (float64, string) {
	xpNorm := clamp01(float64(xp) / t.XPNorm)
	magNorm := clamp01(magnitude / 10)
	total := t.XPWeight + t.ShadowWeight + t.CapacityWeight + t.MagnitudeWeight
	score := (t.XPWeight*xpNorm + t.ShadowWeight*shadow + t.CapacityWeight*capacity + t.MagnitudeWeight*magNorm) / total

	switch {
	case score < t.ThemeBounds[0]:
		return score, ThemeReflection
	case score < t.ThemeBounds[1]:
		return score, ThemeRenewal
	case score < t.ThemeBounds[2]:
		return score, ThemeResilience
	default:
		return score, ThemeTranscendence
	}
}
