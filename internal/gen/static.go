package gen

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"trailhead/internal/domain"
	"trailhead/internal/hta"
)

// Static is the offline generator: deterministic, dependency-free, used
// when no API key is configured and throughout the tests. Same inputs
// always produce the same tree.
type Static struct{}

func (Static) RefineGoal(_ context.Context, raw string) (string, error) {
	goal := strings.TrimSpace(raw)
	if goal == "" {
		return "", ErrEmptyReply
	}
	return goal, nil
}

func (Static) Skeleton(_ context.Context, goal, contextNote, rootID string) (*hta.Tree, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, ErrEmptyReply
	}
	steps := []struct {
		title  string
		energy string
	}{
		{"Clarify what done looks like", "low"},
		{"Take the smallest first step", "low"},
		{"Build a repeatable routine", "medium"},
	}
	root := &hta.Node{
		ID:       rootID,
		Title:    goal,
		Status:   domain.StatusPending,
		Priority: 1,
	}
	var prev string
	for i, s := range steps {
		id := childID(rootID, i)
		node := &hta.Node{
			ID:       id,
			Title:    s.title,
			Status:   domain.StatusPending,
			Priority: 0.9 - 0.1*float64(i),
			Energy:   s.energy,
			Time:     s.energy,
		}
		if prev != "" {
			node.DependsOn = []string{prev}
		}
		root.Children = append(root.Children, node)
		prev = id
	}
	_ = contextNote
	return hta.New(root), nil
}

func (Static) Rebalance(_ context.Context, sub *hta.Node, _ []string) (*hta.Node, error) {
	// no creative input offline; hand the subtree back untouched
	tree := hta.New(sub)
	clone, err := tree.Clone()
	if err != nil {
		return nil, err
	}
	return clone.Root, nil
}

func (Static) RefineTurn(_ context.Context, prompt string, candidate domain.Task) (domain.Task, string, error) {
	if strings.TrimSpace(prompt) == "" {
		return candidate, "", ErrEmptyReply
	}
	return candidate, "Noted. The trail holds; keep walking at your own pace.", nil
}

func childID(rootID string, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("trailhead/%s/%d", rootID, i))).String()
}
