// Package gen is the boundary to the external generation service. The
// engine depends only on the Generator interface; the genai-backed
// implementation and the offline one are interchangeable.
package gen

import (
	"context"
	"errors"

	"trailhead/internal/domain"
	"trailhead/internal/hta"
)

// ErrEmptyReply is returned when the service answers with no usable
// content.
var ErrEmptyReply = errors.New("generation service returned empty reply")

// Generator produces the creative half of a turn. Implementations must
// be safe for concurrent use.
type Generator interface {
	// RefineGoal turns a raw intention into a planted goal statement.
	RefineGoal(ctx context.Context, raw string) (string, error)

	// Skeleton decomposes a goal into a first-level tree. The returned
	// root must carry rootID; callers re-validate regardless.
	Skeleton(ctx context.Context, goal, contextNote, rootID string) (*hta.Tree, error)

	// Rebalance proposes a replacement for a subtree after recent
	// completions. The proposal keeps the subtree root's id.
	Rebalance(ctx context.Context, sub *hta.Node, recentCompletions []string) (*hta.Node, error)

	// RefineTurn renders the user-facing reply for a prepared prompt
	// and may polish the candidate task's free-form fields. Callers
	// keep the unrefined candidate on error.
	RefineTurn(ctx context.Context, prompt string, candidate domain.Task) (domain.Task, string, error)
}
