// Package dynamics holds the deterministic rules that move journey
// metrics between turns: withering pressure, the resistance dial, soft
// deadline placement and XP mastery stages. Everything here is pure;
// time and randomness come in as arguments or injected fields.
package dynamics

import "trailhead/internal/config"

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Wither advances the withering level by one tick. Idle and overdue
// hours push the level up at path-specific rates, then the whole level
// decays so old pressure fades instead of accumulating forever.
func Wither(level, idleHours, maxOverdueHours float64, path string, t config.WitheringTuning) float64 {
	raw := clamp01(level + t.IdleCoeff[path]*idleHours + t.OverdueCoeff[path]*maxOverdueHours)
	return clamp01(raw * t.DecayFactor)
}

// Relieve applies the completion relief to the withering level.
func Relieve(level float64, t config.WitheringTuning) float64 {
	return clamp01(level - t.CompletionRelief)
}
