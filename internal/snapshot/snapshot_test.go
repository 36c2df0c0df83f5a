package snapshot_test

import (
	"encoding/json"
	"testing"
	"time"

	"trailhead/internal/domain"
	"trailhead/internal/hta"
	"trailhead/internal/snapshot"
)

func TestDefaults(t *testing.T) {
	s := snapshot.New()
	if s.ShadowScore != 0.5 || s.Capacity != 0.5 || s.RelationshipIndex != 0.5 {
		t.Fatalf("wellbeing defaults wrong: %+v", s)
	}
	if s.Magnitude != 5.0 {
		t.Fatalf("magnitude default: got %f", s.Magnitude)
	}
	if s.CurrentPath != domain.PathStructured {
		t.Fatalf("path default: got %s", s.CurrentPath)
	}
	if s.CurrentTier != domain.TierBud {
		t.Fatalf("tier default: got %s", s.CurrentTier)
	}
	if s.Activation.Activated || s.Activation.GoalSet {
		t.Fatalf("fresh snapshot must not be activated")
	}
}

func TestRoundTrip(t *testing.T) {
	s := snapshot.New()
	s.XP = 175
	s.ShadowScore = 0.62
	s.WitheringLevel = 0.13
	s.Activation = snapshot.Activation{Activated: true, GoalSet: true}
	s.EstimatedCompletion = "2026-06-01T00:00:00Z"
	s.Tree = hta.New(&hta.Node{ID: "root", Title: "goal", Status: domain.StatusPending,
		Children: []*hta.Node{{ID: "c1", Title: "step", Status: domain.StatusActive, DependsOn: []string{"root"}}}})
	s.ComponentState["momentum"] = json.RawMessage(`{"value":0.4}`)
	s.AppendExchange(snapshot.Exchange{UserMessage: "hello", Reply: "welcome"}, 20)

	data, err := s.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := snapshot.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.XP != 175 || got.ShadowScore != 0.62 || got.WitheringLevel != 0.13 {
		t.Fatalf("metrics lost in round trip: %+v", got)
	}
	if !got.Activation.Activated || !got.Activation.GoalSet {
		t.Fatalf("activation lost")
	}
	if got.Tree == nil || got.Tree.Find("c1") == nil {
		t.Fatalf("tree lost")
	}
	if string(got.ComponentState["momentum"]) != `{"value":0.4}` {
		t.Fatalf("component state lost: %s", got.ComponentState["momentum"])
	}
	if len(got.History) != 1 || got.History[0].Reply != "welcome" {
		t.Fatalf("history lost")
	}
}

func TestDecodeMissingFieldsGetDefaults(t *testing.T) {
	got, err := snapshot.Decode([]byte(`{"xp": 40}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.XP != 40 {
		t.Fatalf("xp: got %d", got.XP)
	}
	if got.ShadowScore != 0.5 || got.Capacity != 0.5 || got.Magnitude != 5.0 {
		t.Fatalf("missing fields must decode to defaults: %+v", got)
	}
	if got.CurrentPath != domain.PathStructured {
		t.Fatalf("path default missing: %s", got.CurrentPath)
	}
	if got.CurrentTier != domain.TierBud {
		t.Fatalf("tier default missing: %s", got.CurrentTier)
	}
	if got.ComponentState == nil {
		t.Fatalf("component state map must never be nil")
	}
}

func TestDecodeEmpty(t *testing.T) {
	got, err := snapshot.Decode(nil)
	if err != nil {
		t.Fatalf("decode nil: %v", err)
	}
	if got.Capacity != 0.5 {
		t.Fatalf("empty payload should yield defaults")
	}
}

func TestHistoryCap(t *testing.T) {
	s := snapshot.New()
	for i := 0; i < 30; i++ {
		s.AppendExchange(snapshot.Exchange{UserMessage: "m", Reply: "r"}, 20)
	}
	if len(s.History) != 20 {
		t.Fatalf("history cap: got %d want 20", len(s.History))
	}
	win := s.PromptWindow(6)
	if len(win) != 6 {
		t.Fatalf("prompt window: got %d want 6", len(win))
	}
}

func TestIdleHours(t *testing.T) {
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	s := snapshot.New()
	if s.IdleHours(now) != 0 {
		t.Fatalf("fresh snapshot has no idle time")
	}
	s.Timestamp = now.Add(-30 * time.Hour).Format(time.RFC3339)
	if got := s.IdleHours(now); got != 30 {
		t.Fatalf("idle hours: got %f want 30", got)
	}
}
