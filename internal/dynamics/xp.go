package dynamics

import (
	"trailhead/internal/config"
	"trailhead/internal/domain"
)

// Award returns the XP granted for completing a task of the given tier.
// Bloom and Blossom completions earn a bonus when the shadow score is
// above the threshold, on the theory that showing up under pressure
// counts for more.
func Award(tier string, shadow float64, t config.XPTuning) int {
	xp := t.TierBase[tier]
	if tier != domain.TierBud && shadow > t.ShadowThreshold {
		xp += t.ShadowBonus
	}
	return xp
}

// StageFor returns the mastery stage the given XP total falls in. The
// final stage is unbounded, so every total lands somewhere.
func StageFor(xp int, t config.XPTuning) config.StageTuning {
	for _, s := range t.Stages {
		if xp >= s.MinXP && (s.MaxXP == 0 || xp < s.MaxXP) {
			return s
		}
	}
	return t.Stages[len(t.Stages)-1]
}

// ProximityChallenge reports the current stage's challenge when the XP
// total sits within the proximity threshold of the stage's upper bound.
func ProximityChallenge(xp int, t config.XPTuning) (string, bool) {
	s := StageFor(xp, t)
	if s.MaxXP == 0 {
		return "", false
	}
	if s.MaxXP-xp <= t.ProximityThreshold {
		return s.Challenge, true
	}
	return "", false
}
