package selector_test

import (
	"testing"

	"trailhead/internal/config"
	"trailhead/internal/domain"
	"trailhead/internal/hta"
	"trailhead/internal/selector"
)

func newSelector() selector.Selector {
	return selector.Selector{Tuning: config.Default().Tuning}
}

func tree() *hta.Tree {
	return hta.New(&hta.Node{
		ID: "root", Title: "Write a novel", Status: domain.StatusPending, Priority: 1, Energy: "high", Time: "high",
		Children: []*hta.Node{
			{ID: "outline", Title: "Outline part one", Status: domain.StatusPending, Priority: 0.9, Energy: "low", Time: "low"},
			{ID: "draft", Title: "Draft chapter one", Status: domain.StatusPending, Priority: 0.9, Energy: "low", Time: "low", DependsOn: []string{"outline"}},
			{ID: "heavy", Title: "Rewrite everything", Status: domain.StatusPending, Priority: 0.95, Energy: "high", Time: "high"},
		},
	})
}

func TestNextRespectsGatesAndCapacity(t *testing.T) {
	s := newSelector()
	got := s.Next(selector.Inputs{Tree: tree(), Capacity: 0.5, CurrentTier: domain.TierBloom})
	// draft is gated on outline, heavy and root exceed capacity
	if got.ID != "outline" {
		t.Fatalf("next: got %s want outline", got.ID)
	}
	if got.Tier != domain.TierBloom || got.Depth != 1 {
		t.Fatalf("task inherits the current tier, got %s depth %d", got.Tier, got.Depth)
	}
}

func TestTierComesFromCurrentTierNotDepth(t *testing.T) {
	s := newSelector()
	ranked := s.Rank(selector.Inputs{Tree: tree(), Capacity: 0.9, CurrentTier: domain.TierBlossom})
	if len(ranked) == 0 {
		t.Fatalf("expected candidates")
	}
	for _, c := range ranked {
		if c.Task.Tier != domain.TierBlossom {
			t.Fatalf("node %s at depth %d got tier %s, want the current tier", c.Task.ID, c.Task.Depth, c.Task.Tier)
		}
	}
	// absent tier defaults to Bud
	got := s.Next(selector.Inputs{Tree: tree(), Capacity: 0.5})
	if got.Tier != domain.TierBud {
		t.Fatalf("missing current tier must default to Bud, got %s", got.Tier)
	}
}

func TestNextUnblocksAfterResolution(t *testing.T) {
	s := newSelector()
	tr := tree()
	tr.Find("outline").Status = domain.StatusCompleted
	got := s.Next(selector.Inputs{Tree: tr, Capacity: 0.5})
	if got.ID != "draft" {
		t.Fatalf("next after outline done: got %s want draft", got.ID)
	}
}

func TestHighCapacityAdmitsHeavyTasks(t *testing.T) {
	s := newSelector()
	ranked := s.Rank(selector.Inputs{Tree: tree(), Capacity: 0.9})
	ids := map[string]bool{}
	for _, c := range ranked {
		ids[c.Task.ID] = true
	}
	if !ids["heavy"] || !ids["root"] {
		t.Fatalf("high capacity should admit heavy nodes, got %v", ids)
	}
}

func TestFallbackOnEmptyTree(t *testing.T) {
	s := newSelector()
	got := s.Next(selector.Inputs{Tree: nil, Capacity: 0.5, CurrentTier: domain.TierBloom})
	if !got.Fallback || got.Title != selector.FallbackTitle {
		t.Fatalf("empty tree must yield the fallback task, got %+v", got)
	}
	if got.Tier != domain.TierBloom {
		t.Fatalf("fallback inherits the current tier, got %s", got.Tier)
	}
	// same when every node is resolved
	tr := tree()
	for _, n := range tr.Flatten() {
		n.Status = domain.StatusCompleted
	}
	got = s.Next(selector.Inputs{Tree: tr, Capacity: 0.5})
	if !got.Fallback {
		t.Fatalf("fully resolved tree must yield the fallback task")
	}
	if got.ID == "" {
		t.Fatalf("fallback task needs a stable id")
	}
}

func TestStableTieBreak(t *testing.T) {
	s := newSelector()
	tr := hta.New(&hta.Node{
		ID: "root", Title: "goal", Status: domain.StatusCompleted, Priority: 0,
		Children: []*hta.Node{
			{ID: "first", Title: "same weight a", Status: domain.StatusPending, Priority: 0.5, Energy: "low", Time: "low"},
			{ID: "second", Title: "same weight b", Status: domain.StatusPending, Priority: 0.5, Energy: "low", Time: "low"},
		},
	})
	for i := 0; i < 5; i++ {
		got := s.Next(selector.Inputs{Tree: tr, Capacity: 0.5})
		if got.ID != "first" {
			t.Fatalf("ties must resolve to flatten order, got %s", got.ID)
		}
	}
}

func TestDevIndexPullsUnderdevelopedDimensions(t *testing.T) {
	s := newSelector()
	tr := hta.New(&hta.Node{
		ID: "root", Title: "goal", Status: domain.StatusCompleted, Priority: 0,
		Children: []*hta.Node{
			{ID: "money", Title: "Build a financial buffer", Status: domain.StatusPending, Priority: 0.5, Energy: "low", Time: "low"},
			{ID: "plain", Title: "Tidy the desk", Status: domain.StatusPending, Priority: 0.5, Energy: "low", Time: "low"},
		},
	})
	dev := map[string]float64{"financial": 0.1}
	got := s.Next(selector.Inputs{Tree: tr, Capacity: 0.5, DevIndex: dev})
	if got.ID != "money" {
		t.Fatalf("underdeveloped dimension should pull its task forward, got %s", got.ID)
	}
}

func TestMagnitudeClamp(t *testing.T) {
	s := newSelector()
	if m := s.Magnitude(domain.TierBlossom, 5); m > 10 {
		t.Fatalf("magnitude must clamp at 10, got %f", m)
	}
	if m := s.Magnitude(domain.TierBud, 3); m < 1 || m > 10 {
		t.Fatalf("magnitude out of range: %f", m)
	}
	// depth beyond the max contributes no extra weight
	if s.Magnitude(domain.TierBud, 9) != s.Magnitude(domain.TierBud, 5) {
		t.Fatalf("depth contribution must cap at max depth")
	}
}
