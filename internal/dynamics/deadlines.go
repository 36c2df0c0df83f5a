package dynamics

import (
	"errors"
	"math/rand"
	"time"

	"trailhead/internal/config"
	"trailhead/internal/domain"
	"trailhead/internal/hta"
)

// ErrNoHorizon is returned when a scheduling path needs a completion
// horizon and the snapshot has none.
var ErrNoHorizon = errors.New("no estimated completion date set")

// Scheduler spreads soft deadlines over the span between now and the
// journey's completion horizon.
type Scheduler struct {
	Tuning config.DeadlineTuning
	Now    func() time.Time
	Rand   *rand.Rand
}

// Schedule assigns soft deadlines to every open node below the root.
// Structured paths get an even spread; blended paths add bounded jitter
// to each slot; the open path strips deadlines instead. Nodes that
// already carry a deadline are skipped unless override is set. Returns
// the number of nodes touched.
func (s Scheduler) Schedule(tree *hta.Tree, path string, horizon time.Time, override bool) (int, error) {
	if tree == nil || tree.Root == nil {
		return 0, nil
	}
	if path == domain.PathOpen {
		touched := 0
		for _, n := range tree.Flatten() {
			if n.SoftDeadline != "" {
				n.SoftDeadline = ""
				touched++
			}
		}
		return touched, nil
	}
	if horizon.IsZero() {
		return 0, ErrNoHorizon
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	now := s.Now().UTC()
	if !horizon.After(now) {
		horizon = now.Add(time.Duration(s.Tuning.FallbackHorizonDays) * 24 * time.Hour)
	}

	var targets []*hta.Node
	for _, n := range tree.Flatten() {
		if n == tree.Root {
			continue
		}
		if n.Status != domain.StatusPending && n.Status != domain.StatusActive {
			continue
		}
		if n.SoftDeadline != "" && !override {
			continue
		}
		targets = append(targets, n)
	}
	if len(targets) == 0 {
		return 0, nil
	}

	span := horizon.Sub(now)
	step := span / time.Duration(len(targets))
	if s.Rand == nil {
		s.Rand = rand.New(rand.NewSource(now.UnixNano()))
	}
	for i, n := range targets {
		offset := step * time.Duration(i+1)
		if path == domain.PathBlended {
			jitter := time.Duration((s.Rand.Float64()*2 - 1) * s.Tuning.JitterFraction * float64(step))
			offset += jitter
			if offset < 0 {
				offset = 0
			}
			if offset > span {
				offset = span
			}
		}
		n.SoftDeadline = now.Add(offset).Format(time.RFC3339)
	}
	return len(targets), nil
}

// MaxOverdueHours returns the largest number of hours any open node is
// past its soft deadline, zero when nothing is overdue.
func MaxOverdueHours(tree *hta.Tree, now time.Time) float64 {
	if tree == nil || tree.Root == nil {
		return 0
	}
	var max float64
	for _, n := range tree.Flatten() {
		if n.SoftDeadline == "" {
			continue
		}
		if n.Status != domain.StatusPending && n.Status != domain.StatusActive {
			continue
		}
		due, err := time.Parse(time.RFC3339, n.SoftDeadline)
		if err != nil {
			continue
		}
		if h := now.Sub(due).Hours(); h > max {
			max = h
		}
	}
	return max
}
