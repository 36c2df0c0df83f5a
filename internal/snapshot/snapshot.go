// Package snapshot defines the persisted journey state. One snapshot
// is the complete save-game for a user: metrics, activation flags, the
// goal tree, backlog, conversation history and opaque per-component
// state. It round-trips through JSON without loss; fields absent from
// stored payloads decode to their documented defaults.
package snapshot

import (
	"encoding/json"
	"time"

	"trailhead/internal/domain"
	"trailhead/internal/hta"
)

type Snapshot struct {
	XP                  int                        `json:"xp"`
	ShadowScore         float64                    `json:"shadow_score"`
	Capacity            float64                    `json:"capacity"`
	Magnitude           float64                    `json:"magnitude"`
	CurrentTier         string                     `json:"current_tier,omitempty"`
	Resistance          float64                    `json:"resistance"`
	RelationshipIndex   float64                    `json:"relationship_index"`
	WitheringLevel      float64                    `json:"withering_level"`
	Activation          Activation                 `json:"activated_state"`
	CurrentPath         string                     `json:"current_path"`
	EstimatedCompletion string                     `json:"estimated_completion_date,omitempty" format:"date-time"`
	Tree                *hta.Tree                  `json:"hta_tree,omitempty"`
	Backlog             []domain.Task              `json:"task_backlog,omitempty"`
	History             []Exchange                 `json:"conversation_history,omitempty"`
	ComponentState      map[string]json.RawMessage `json:"component_state,omitempty"`
	Timestamp           string                     `json:"timestamp,omitempty" format:"date-time"`
}

// Activation tracks onboarding progress. GoalSet flips when a goal is
// planted; Activated flips when context arrives and the tree skeleton
// exists. Reflection and completion are rejected until Activated.
type Activation struct {
	Activated bool `json:"activated"`
	GoalSet   bool `json:"goal_set"`
}

// Exchange is one user/engine round in the conversation history.
type Exchange struct {
	UserMessage string `json:"user_message"`
	Reply       string `json:"reply"`
	At          string `json:"at,omitempty" format:"date-time"`
}

// New returns a snapshot with the documented defaults for a fresh user.
func New() Snapshot {
	return Snapshot{
		ShadowScore:       0.5,
		Capacity:          0.5,
		Magnitude:         5.0,
		CurrentTier:       domain.TierBud,
		RelationshipIndex: 0.5,
		CurrentPath:       domain.PathStructured,
		ComponentState:    map[string]json.RawMessage{},
	}
}

// Decode parses a stored payload over the defaults, so fields older
// payloads never wrote come back at their default values.
func Decode(data []byte) (Snapshot, error) {
	s := New()
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, err
	}
	if s.ComponentState == nil {
		s.ComponentState = map[string]json.RawMessage{}
	}
	if s.CurrentTier == "" {
		s.CurrentTier = domain.TierBud
	}
	return s, nil
}

// Encode serializes the snapshot for storage.
func (s Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// AppendExchange pushes one round onto the history, evicting the oldest
// entries beyond the cap.
func (s *Snapshot) AppendExchange(e Exchange, cap int) {
	s.History = append(s.History, e)
	if cap > 0 && len(s.History) > cap {
		s.History = s.History[len(s.History)-cap:]
	}
}

// PromptWindow returns the most recent n exchanges for prompt building.
func (s Snapshot) PromptWindow(n int) []Exchange {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// IdleHours returns hours elapsed since the snapshot was last written,
// zero for a fresh or unparseable timestamp.
func (s Snapshot) IdleHours(now time.Time) float64 {
	if s.Timestamp == "" {
		return 0
	}
	ts, err := time.Parse(time.RFC3339, s.Timestamp)
	if err != nil {
		return 0
	}
	h := now.Sub(ts).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// Horizon parses the estimated completion date, zero when unset.
func (s Snapshot) Horizon() time.Time {
	if s.EstimatedCompletion == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, s.EstimatedCompletion)
	if err != nil {
		return time.Time{}
	}
	return ts
}
