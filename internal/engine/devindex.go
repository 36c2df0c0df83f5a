package engine

import (
	"encoding/json"
	"strings"

	"trailhead/internal/config"
	"trailhead/internal/domain"
)

// DevKeys are the tracked growth dimensions. Every value lives in
// [0,1] and starts at 0.5.
var DevKeys = []string{
	"happiness",
	"career",
	"health",
	"financial",
	"relationship",
	"executive_functioning",
	"social_life",
	"charisma",
	"entrepreneurship",
	"family_planning",
	"generational_wealth",
	"adhd_risk",
	"odd_risk",
	"homeownership",
	"dream_location",
}

// DevIndex tracks long-horizon growth across the named dimensions.
type DevIndex struct {
	tuning config.DevIndexTuning
	values map[string]float64
}

func NewDevIndex(t config.DevIndexTuning) *DevIndex {
	d := &DevIndex{tuning: t, values: map[string]float64{}}
	for _, k := range DevKeys {
		d.values[k] = 0.5
	}
	return d
}

func (d *DevIndex) Key() string { return "development_index" }

func (d *DevIndex) ExportState() (json.RawMessage, error) {
	return json.Marshal(d.values)
}

func (d *DevIndex) ImportState(raw json.RawMessage) error {
	var stored map[string]float64
	if err := json.Unmarshal(raw, &stored); err != nil {
		return err
	}
	for _, k := range DevKeys {
		if v, ok := stored[k]; ok {
			d.values[k] = clamp01(v)
		}
	}
	return nil
}

// Values returns a copy of the current index.
func (d *DevIndex) Values() map[string]float64 {
	out := make(map[string]float64, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// ApplyTaskEffect boosts the dimensions a completed task touches. The
// boost scales with tier and current momentum.
func (d *DevIndex) ApplyTaskEffect(task domain.Task, momentum float64) []string {
	boost := d.tuning.BaseBoost * d.tuning.TierMult[task.Tier] * momentum
	if boost <= 0 {
		return nil
	}
	text := strings.ToLower(task.Title + " " + task.Description)
	var touched []string
	for _, key := range DevKeys {
		if !dimensionMatches(text, key) {
			continue
		}
		d.values[key] = clamp01(d.values[key] + boost)
		touched = append(touched, key)
	}
	return touched
}

// BaselineNudge lifts the social wellbeing dimensions slightly; called
// when a reflection carries a positive hint.
func (d *DevIndex) BaselineNudge() {
	for _, key := range []string{"happiness", "social_life", "charisma"} {
		d.values[key] = clamp01(d.values[key] + d.tuning.BaselineNudge)
	}
}

func dimensionMatches(text, key string) bool {
	for _, part := range strings.Split(key, "_") {
		if len(part) < 4 {
			continue
		}
		if strings.Contains(text, part) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
