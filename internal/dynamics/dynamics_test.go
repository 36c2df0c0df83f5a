package dynamics_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"trailhead/internal/config"
	"trailhead/internal/domain"
	"trailhead/internal/dynamics"
	"trailhead/internal/hta"
)

func tuning() config.Tuning {
	return config.Default().Tuning
}

func TestWitherBounds(t *testing.T) {
	tn := tuning().Withering
	if got := dynamics.Wither(0, 0, 0, domain.PathStructured, tn); got != 0 {
		t.Fatalf("no pressure should stay at zero, got %f", got)
	}
	// enormous idle time still clamps to [0,1]
	if got := dynamics.Wither(0.9, 10000, 10000, domain.PathStructured, tn); got > 1 {
		t.Fatalf("withering must clamp to 1, got %f", got)
	}
	// decay pulls a saturated level just below 1
	if got := dynamics.Wither(1, 0, 0, domain.PathStructured, tn); math.Abs(got-0.98) > 1e-9 {
		t.Fatalf("decay on saturated level: got %f want 0.98", got)
	}
}

func TestWitherPathRates(t *testing.T) {
	tn := tuning().Withering
	structured := dynamics.Wither(0.2, 10, 0, domain.PathStructured, tn)
	blended := dynamics.Wither(0.2, 10, 0, domain.PathBlended, tn)
	open := dynamics.Wither(0.2, 10, 0, domain.PathOpen, tn)
	if !(structured > blended) {
		t.Fatalf("structured should wither faster than blended: %f vs %f", structured, blended)
	}
	// the open path never accrues idle pressure, only decay applies
	if math.Abs(open-0.2*0.98) > 1e-9 {
		t.Fatalf("open path: got %f want %f", open, 0.2*0.98)
	}
}

func TestRelieve(t *testing.T) {
	tn := tuning().Withering
	if got := dynamics.Relieve(0.5, tn); math.Abs(got-0.35) > 1e-9 {
		t.Fatalf("relief: got %f want 0.35", got)
	}
	if got := dynamics.Relieve(0.1, tn); got != 0 {
		t.Fatalf("relief clamps at zero, got %f", got)
	}
}

func TestResistance(t *testing.T) {
	tn := tuning().Resistance
	// high shadow, low capacity, no momentum, heavy task
	got := dynamics.Resistance(0.8, 0.2, 0, 9, tn)
	if math.Abs(got-0.94) > 1e-9 {
		t.Fatalf("resistance: got %f want 0.94", got)
	}
	// a rested, high-momentum user on a light task bottoms out
	if got := dynamics.Resistance(0, 1, 1, 1, tn); got != 0 {
		t.Fatalf("resistance must clamp to 0, got %f", got)
	}
}

func TestXPAward(t *testing.T) {
	tn := tuning().XP
	if got := dynamics.Award(domain.TierBud, 0.9, tn); got != 10 {
		t.Fatalf("bud award: got %d want 10", got)
	}
	if got := dynamics.Award(domain.TierBloom, 0.9, tn); got != 25 {
		t.Fatalf("bloom under high shadow: got %d want 25", got)
	}
	if got := dynamics.Award(domain.TierBlossom, 0.5, tn); got != 30 {
		t.Fatalf("blossom under low shadow: got %d want 30", got)
	}
}

func TestStageFor(t *testing.T) {
	tn := tuning().XP
	cases := []struct {
		xp   int
		want string
	}{
		{0, "Awakening"},
		{149, "Awakening"},
		{150, "Committing"},
		{450, "Harmonizing"},
		{600, "Becoming"},
		{99999, "Becoming"},
	}
	for _, c := range cases {
		if got := dynamics.StageFor(c.xp, tn); got.Name != c.want {
			t.Fatalf("stage for %d: got %s want %s", c.xp, got.Name, c.want)
		}
	}
}

func TestProximityChallenge(t *testing.T) {
	tn := tuning().XP
	if _, ok := dynamics.ProximityChallenge(100, tn); ok {
		t.Fatalf("100 xp is not near a boundary")
	}
	challenge, ok := dynamics.ProximityChallenge(142, tn)
	if !ok || challenge != "Naming Desire" {
		t.Fatalf("142 xp should surface the Awakening challenge, got %q %v", challenge, ok)
	}
	// the final stage has no boundary to approach
	if _, ok := dynamics.ProximityChallenge(5000, tn); ok {
		t.Fatalf("unbounded stage has no proximity challenge")
	}
}

func deadlineTree() *hta.Tree {
	return hta.New(&hta.Node{
		ID: "root", Status: domain.StatusPending,
		Children: []*hta.Node{
			{ID: "t1", Status: domain.StatusPending},
			{ID: "t2", Status: domain.StatusPending},
			{ID: "t3", Status: domain.StatusActive},
			{ID: "done", Status: domain.StatusCompleted},
		},
	})
}

func TestScheduleEvenSpread(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := dynamics.Scheduler{Tuning: tuning().Deadlines, Now: func() time.Time { return now }}
	tree := deadlineTree()
	n, err := s.Schedule(tree, domain.PathStructured, now.Add(9*24*time.Hour), false)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 nodes scheduled, got %d", n)
	}
	var prev time.Time
	for _, id := range []string{"t1", "t2", "t3"} {
		node := tree.Find(id)
		due, err := time.Parse(time.RFC3339, node.SoftDeadline)
		if err != nil {
			t.Fatalf("parse deadline for %s: %v", id, err)
		}
		if !due.After(prev) {
			t.Fatalf("deadlines must be strictly increasing in flatten order")
		}
		prev = due
	}
	// last slot lands exactly on the horizon
	if !prev.Equal(now.Add(9 * 24 * time.Hour)) {
		t.Fatalf("final deadline should hit the horizon, got %v", prev)
	}
	if tree.Find("done").SoftDeadline != "" {
		t.Fatalf("resolved nodes must not be scheduled")
	}
}

func TestScheduleSkipsExistingUnlessOverride(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := dynamics.Scheduler{Tuning: tuning().Deadlines, Now: func() time.Time { return now }}
	tree := deadlineTree()
	existing := now.Add(time.Hour).Format(time.RFC3339)
	tree.Find("t1").SoftDeadline = existing

	if _, err := s.Schedule(tree, domain.PathStructured, now.Add(48*time.Hour), false); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if tree.Find("t1").SoftDeadline != existing {
		t.Fatalf("existing deadline must survive without override")
	}
	if _, err := s.Schedule(tree, domain.PathStructured, now.Add(48*time.Hour), true); err != nil {
		t.Fatalf("schedule override: %v", err)
	}
	if tree.Find("t1").SoftDeadline == existing {
		t.Fatalf("override must reassign the deadline")
	}
}

func TestScheduleBlendedJitterStaysInSpan(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	horizon := now.Add(6 * 24 * time.Hour)
	s := dynamics.Scheduler{
		Tuning: tuning().Deadlines,
		Now:    func() time.Time { return now },
		Rand:   rand.New(rand.NewSource(42)),
	}
	tree := deadlineTree()
	if _, err := s.Schedule(tree, domain.PathBlended, horizon, false); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	for _, id := range []string{"t1", "t2", "t3"} {
		due, err := time.Parse(time.RFC3339, tree.Find(id).SoftDeadline)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if due.Before(now) || due.After(horizon) {
			t.Fatalf("jittered deadline %v escaped [now, horizon]", due)
		}
	}
}

func TestScheduleOpenStripsDeadlines(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := dynamics.Scheduler{Tuning: tuning().Deadlines, Now: func() time.Time { return now }}
	tree := deadlineTree()
	tree.Find("t1").SoftDeadline = now.Format(time.RFC3339)
	tree.Find("t2").SoftDeadline = now.Format(time.RFC3339)
	n, err := s.Schedule(tree, domain.PathOpen, time.Time{}, false)
	if err != nil {
		t.Fatalf("open schedule: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 stripped, got %d", n)
	}
	for _, node := range tree.Flatten() {
		if node.SoftDeadline != "" {
			t.Fatalf("open path must carry no deadlines")
		}
	}
}

func TestScheduleNoHorizon(t *testing.T) {
	s := dynamics.Scheduler{Tuning: tuning().Deadlines, Now: time.Now}
	_, err := s.Schedule(deadlineTree(), domain.PathStructured, time.Time{}, false)
	if !errors.Is(err, dynamics.ErrNoHorizon) {
		t.Fatalf("expected ErrNoHorizon, got %v", err)
	}
}

func TestSchedulePastHorizonFallsBack(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := dynamics.Scheduler{Tuning: tuning().Deadlines, Now: func() time.Time { return now }}
	tree := deadlineTree()
	if _, err := s.Schedule(tree, domain.PathStructured, now.Add(-time.Hour), false); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	last, _ := time.Parse(time.RFC3339, tree.Find("t3").SoftDeadline)
	if !last.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("past horizon should fall back to a 7 day window, got %v", last)
	}
}

func TestMaxOverdueHours(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tree := deadlineTree()
	tree.Find("t1").SoftDeadline = now.Add(-36 * time.Hour).Format(time.RFC3339)
	tree.Find("t2").SoftDeadline = now.Add(-2 * time.Hour).Format(time.RFC3339)
	tree.Find("done").SoftDeadline = now.Add(-1000 * time.Hour).Format(time.RFC3339)
	if got := dynamics.MaxOverdueHours(tree, now); math.Abs(got-36) > 1e-9 {
		t.Fatalf("max overdue: got %f want 36", got)
	}
	// deadlines in the future contribute nothing
	fresh := deadlineTree()
	fresh.Find("t1").SoftDeadline = now.Add(12 * time.Hour).Format(time.RFC3339)
	if got := dynamics.MaxOverdueHours(fresh, now); got != 0 {
		t.Fatalf("future deadlines should not count, got %f", got)
	}
}
