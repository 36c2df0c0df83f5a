package scorers

import "trailhead/internal/config"

// Narrative modes steer the register of generated replies.
const (
	ModeGentleSafety  = "gentle_safety"
	ModeDirectSupport = "direct_support"
	ModeOpenPoetic    = "open_poetic"
)

// NarrativeMode picks the reply register from current metrics. Safety
// wins over everything: a depleted or shadow-heavy user always gets the
// gentle mode.
func NarrativeMode(capacity, shadow, magnitude float64, t config.NarrativeTuning) string {
	if capacity < t.LowCapacity || shadow > t.HighShadow {
		return ModeGentleSafety
	}
	if magnitude >= 7 {
		return ModeDirectSupport
	}
	return ModeOpenPoetic
}
