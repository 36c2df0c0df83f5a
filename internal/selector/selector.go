// Package selector ranks open goal-tree nodes and picks the next task
// to surface. Scoring is deterministic: identical inputs produce the
// same ordering, with the tree's pre-order flatten as the tie-break.
package selector

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"trailhead/internal/config"
	"trailhead/internal/domain"
	"trailhead/internal/hta"
	"trailhead/internal/scorers"
)

// FallbackTitle names the template task served when nothing in the
// tree is actionable.
const FallbackTitle = "Deep Reflection Session"

var fallbackID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("trailhead/fallback-reflection")).String()

type Selector struct {
	Tuning config.Tuning
}

// Inputs carries everything one selection pass reads. CurrentTier is
// the snapshot's growth tier; every produced task inherits it.
type Inputs struct {
	Tree                *hta.Tree
	Capacity            float64
	CurrentTier         string
	DevIndex            map[string]float64
	History             []string
	ReflectionIntensity float64
}

// Scored pairs a candidate task with its final score.
type Scored struct {
	Task  domain.Task
	Score float64
}

// Next returns the highest-scoring admissible task, or the fallback
// reflection task when the tree offers nothing actionable.
func (s Selector) Next(in Inputs) domain.Task {
	ranked := s.Rank(in)
	if len(ranked) == 0 {
		return s.Fallback(in.CurrentTier)
	}
	return ranked[0].Task
}

// Rank returns every admissible candidate ordered by descending score.
// The sort is stable over the flatten order, so ties resolve to the
// earlier node in the tree.
func (s Selector) Rank(in Inputs) []Scored {
	if in.Tree == nil || in.Tree.Root == nil {
		return nil
	}
	idx := in.Tree.Index()
	tier := tierOr(in.CurrentTier)
	var out []Scored
	for _, n := range in.Tree.Flatten() {
		if n.Status != domain.StatusPending && n.Status != domain.StatusActive {
			continue
		}
		if !in.Tree.DependenciesMet(n, idx) {
			continue
		}
		if !s.admissible(n, in.Capacity) {
			continue
		}
		depth := in.Tree.Depth(n.ID)
		task := s.taskFor(n, depth, tier)
		out = append(out, Scored{Task: task, Score: s.score(task, n, in)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Fallback returns the reflection template task at the given tier.
func (s Selector) Fallback(tier string) domain.Task {
	return domain.Task{
		ID:          fallbackID,
		Title:       FallbackTitle,
		Description: "Nothing on the tree is ready. Sit with where the journey is and write what surfaces.",
		Status:      domain.StatusPending,
		Priority:    1,
		Magnitude:   s.Tuning.Selector.DefaultMagnitude,
		Tier:        tierOr(tier),
		Energy:      "low",
		Time:        "low",
		Fallback:    true,
	}
}

// admissible checks the resource gate: the heavier of the task's energy
// and time demands must fit within current capacity.
func (s Selector) admissible(n *hta.Node, capacity float64) bool {
	demand := s.level(n.Energy)
	if t := s.level(n.Time); t > demand {
		demand = t
	}
	return demand <= capacity
}

func (s Selector) level(name string) float64 {
	if name == "" {
		name = "medium"
	}
	if v, ok := s.Tuning.Selector.ResourceLevels[name]; ok {
		return v
	}
	return s.Tuning.Selector.ResourceLevels["medium"]
}

func (s Selector) taskFor(n *hta.Node, depth int, tier string) domain.Task {
	return domain.Task{
		ID:           n.ID,
		Title:        n.Title,
		Description:  n.Description,
		Status:       n.Status,
		Priority:     n.Priority,
		Magnitude:    s.Magnitude(tier, depth),
		Tier:         tier,
		Depth:        depth,
		Energy:       n.Energy,
		Time:         n.Time,
		DependsOn:    n.DependsOn,
		SoftDeadline: n.SoftDeadline,
	}
}

func (s Selector) score(task domain.Task, n *hta.Node, in Inputs) float64 {
	t := s.Tuning.Selector
	// capacity scales base priority up when rested, down when depleted
	score := n.Priority * (1 + (in.Capacity - 0.5))

	// underdeveloped dimensions the task touches pull it forward
	text := strings.ToLower(n.Title + " " + n.Description)
	for key, value := range in.DevIndex {
		if touchesDimension(text, key) {
			score += t.DevWeight * (1 - value)
		}
	}
	score += t.PatternWeight * scorers.PatternScore(in.History, n.Title)
	score += t.ReflectionWeight * in.ReflectionIntensity
	return score
}

// Magnitude derives a task's emotional weight from its tier and depth,
// clamped to [1,10].
func (s Selector) Magnitude(tier string, depth int) float64 {
	t := s.Tuning.Selector
	d := depth
	if d > t.MaxDepth {
		d = t.MaxDepth
	}
	m := t.TierBaseMagnitude[tier] + t.DepthWeight*float64(d)/float64(t.MaxDepth)
	if m < 1 {
		m = 1
	}
	if m > 10 {
		m = 10
	}
	return m
}

func tierOr(tier string) string {
	if tier == "" {
		return domain.TierBud
	}
	return tier
}

func touchesDimension(text, key string) bool {
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
