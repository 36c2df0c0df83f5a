package engine

import (
	"encoding/json"
)

// Momentum is an exponentially weighted average of recent completion
// weight. It decays toward the newest sample at rate alpha.
type Momentum struct {
	alpha float64
	state momentumState
}

type momentumState struct {
	Value       float64 `json:"value"`
	Completions int     `json:"completions"`
}

func NewMomentum(alpha float64) *Momentum {
	return &Momentum{alpha: alpha}
}

func (m *Momentum) Key() string { return "momentum" }

func (m *Momentum) ExportState() (json.RawMessage, error) {
	return json.Marshal(m.state)
}

func (m *Momentum) ImportState(raw json.RawMessage) error {
	return json.Unmarshal(raw, &m.state)
}

// Update folds in one completion, sampled as magnitude normalized to
// [0,1].
func (m *Momentum) Update(magnitude float64) float64 {
	sample := clamp01(magnitude / 10)
	m.state.Value = m.alpha*sample + (1-m.alpha)*m.state.Value
	m.state.Completions++
	return m.state.Value
}

func (m *Momentum) Value() float64 { return m.state.Value }
