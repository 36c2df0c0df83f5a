package dynamics

import "trailhead/internal/config"

// Resistance recomputes the resistance dial from the current metrics.
// Shadow and magnitude raise it, capacity and momentum lower it; the
// result is clamped to [0,1].
func Resistance(shadow, capacity, momentum, magnitude float64, t config.ResistanceTuning) float64 {
	r := t.Base +
		t.ShadowWeight*shadow -
		t.CapacityWeight*capacity -
		t.MomentumWeight*momentum +
		t.MagnitudeWeight*(magnitude-t.MagnitudePivot)
	return clamp01(r)
}
