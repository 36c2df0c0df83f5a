package domain

// Tiers mark how deep a node sits in the goal tree: the root is a
// Blossom, its direct children are Blooms, everything below is a Bud.
const (
	TierBud     = "Bud"
	TierBloom   = "Bloom"
	TierBlossom = "Blossom"
)

// Journey paths control how strictly the engine schedules and decays.
const (
	PathStructured = "structured"
	PathBlended    = "blended"
	PathOpen       = "open"
)

// Node statuses. Pending and active are the only statuses eligible for
// selection; completed and pruned resolve a node for propagation;
// skipped and failed do neither, the node stays open in the tree.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusPruned    = "pruned"
)

// Task is a selectable unit of work surfaced to the user. It is a flat
// projection of a goal-tree node plus derived scheduling fields.
type Task struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Status       string   `json:"status" enum:"pending,active,completed,skipped,failed,pruned"`
	Priority     float64  `json:"priority"`
	Magnitude    float64  `json:"magnitude"`
	Tier         string   `json:"tier" enum:"Bud,Bloom,Blossom"`
	Depth        int      `json:"depth"`
	Energy       string   `json:"estimated_energy,omitempty" enum:"low,medium,high"`
	Time         string   `json:"estimated_time,omitempty" enum:"low,medium,high"`
	DependsOn    []string `json:"depends_on,omitempty"`
	SoftDeadline string   `json:"soft_deadline,omitempty" format:"date-time"`
	Fallback     bool     `json:"fallback,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty" format:"date-time"`
}

// Seed wraps a planted goal and its decomposition tree reference.
type Seed struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Domain      string `json:"domain,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status" enum:"active,dormant,completed"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Turn is the record of one orchestrator pass: what the user said, what
// came back, and the metric deltas the pass produced.
type Turn struct {
	ReflectionID string  `json:"reflection_id"`
	Narrative    string  `json:"narrative"`
	Task         *Task   `json:"task,omitempty"`
	Theme        string  `json:"theme"`
	Mode         string  `json:"mode"`
	Sentiment    float64 `json:"sentiment"`
	Capacity     float64 `json:"capacity"`
	Shadow       float64 `json:"shadow"`
	Magnitude    float64 `json:"magnitude"`
	Resistance   float64 `json:"resistance"`
	Withering    float64 `json:"withering"`
	XP           int     `json:"xp"`
	Stage        string  `json:"stage"`
	Challenge    string  `json:"challenge,omitempty"`
}

// CompletionResult reports a task completion attempt. An unknown task id
// is reported here rather than as an error; the snapshot is untouched.
type CompletionResult struct {
	TaskID     string  `json:"task_id"`
	Found      bool    `json:"found"`
	Detail     string  `json:"detail,omitempty"`
	XPAwarded  int     `json:"xp_awarded"`
	XP         int     `json:"xp"`
	Stage      string  `json:"stage"`
	Challenge  string  `json:"challenge,omitempty"`
	Magnitude  float64 `json:"magnitude"`
	Withering  float64 `json:"withering"`
	Resistance float64 `json:"resistance"`
	Rebalanced bool    `json:"rebalanced"`
}

// Event is a row of the append-only audit log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

// MagnitudeDescription maps a magnitude value to its narrative label.
func MagnitudeDescription(m float64) string {
	switch {
	case m >= 9:
		return "Seismic"
	case m >= 7:
		return "Profound"
	case m >= 5:
		return "Rising"
	case m >= 3:
		return "Subtle"
	default:
		return "Dormant"
	}
}
