package gen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"trailhead/internal/domain"
	"trailhead/internal/hta"
)

// GenAI implements Generator on Google's Gemini API.
type GenAI struct {
	client *genai.Client
	model  string
}

// NewGenAI builds a Gemini-backed generator.
func NewGenAI(ctx context.Context, apiKey, model string) (*GenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("generation api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAI{client: client, model: model}, nil
}

func (g *GenAI) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func (g *GenAI) RefineGoal(ctx context.Context, raw string) (string, error) {
	prompt := fmt.Sprintf(`Rewrite the following personal intention as one clear,
concrete goal statement. Answer with the statement only, no preamble.

Intention: %s`, raw)
	return g.generate(ctx, prompt)
}

func (g *GenAI) Skeleton(ctx context.Context, goal, contextNote, rootID string) (*hta.Tree, error) {
	prompt := fmt.Sprintf(`Decompose the goal below into 3 to 5 first steps.
Answer with JSON only, shaped as:
{"id":"%s","title":"...","status":"pending","priority":1,
 "children":[{"id":"...","title":"...","status":"pending","priority":0.8,
  "estimated_energy":"low|medium|high","estimated_time":"low|medium|high",
  "depends_on":[]}]}
Every id must be unique. depends_on may only reference sibling ids.

Goal: %s
Context: %s`, rootID, goal, contextNote)
	text, err := g.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var root hta.Node
	if err := json.Unmarshal(extractJSON(text), &root); err != nil {
		return nil, fmt.Errorf("decode skeleton: %w", err)
	}
	// the service occasionally renames the root; pin it back
	root.ID = rootID
	tree := hta.New(&root)
	if err := tree.Validate(); err != nil {
		return nil, fmt.Errorf("skeleton invalid: %w", err)
	}
	return tree, nil
}

func (g *GenAI) Rebalance(ctx context.Context, sub *hta.Node, recentCompletions []string) (*hta.Node, error) {
	current, err := json.Marshal(sub)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(`The user just completed: %s.
Rework the remaining subtree below so the open steps reflect where the
user actually is. Keep the root id %q unchanged, keep completed and
pruned nodes, and keep all ids unique. Answer with JSON only, same
shape as the input.

%s`, strings.Join(recentCompletions, "; "), sub.ID, string(current))
	text, err := g.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var node hta.Node
	if err := json.Unmarshal(extractJSON(text), &node); err != nil {
		return nil, fmt.Errorf("decode rebalance: %w", err)
	}
	return &node, nil
}

func (g *GenAI) RefineTurn(ctx context.Context, prompt string, candidate domain.Task) (domain.Task, string, error) {
	full := fmt.Sprintf(`%s
If you can phrase the suggested next step better, refine its title and
description; otherwise repeat them. Answer with JSON only, shaped as:
{"task":{"title":"...","description":"..."},"narrative":"..."}`, prompt)
	text, err := g.generate(ctx, full)
	if err != nil {
		return candidate, "", err
	}
	var out struct {
		Task struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"task"`
		Narrative string `json:"narrative"`
	}
	if err := json.Unmarshal(extractJSON(text), &out); err != nil {
		// plain prose still serves as the narrative
		return candidate, text, nil
	}
	if strings.TrimSpace(out.Narrative) == "" {
		return candidate, "", ErrEmptyReply
	}
	refined := candidate
	if title := strings.TrimSpace(out.Task.Title); title != "" {
		refined.Title = title
	}
	if desc := strings.TrimSpace(out.Task.Description); desc != "" {
		refined.Description = desc
	}
	return refined, strings.TrimSpace(out.Narrative), nil
}

// extractJSON strips markdown code fences the model sometimes wraps
// around JSON payloads.
func extractJSON(text string) []byte {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return []byte(strings.TrimSpace(s))
}
