package server

import (
	"encoding/json"

	"trailhead/internal/domain"
	"trailhead/internal/hta"
)

// Request payloads

type SetGoalRequest struct {
	Goal string `json:"goal"`
}

type AddContextRequest struct {
	Context string `json:"context,omitempty"`
}

type CommandRequest struct {
	Text string `json:"text"`
}

type CompleteTaskRequest struct {
	TaskID string `json:"task_id"`
}

type SetHorizonRequest struct {
	Date     string `json:"date"`
	Override bool   `json:"override,omitempty"`
}

type SetPathRequest struct {
	Path string `json:"path" enum:"structured,blended,open"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type SeedResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Domain    string `json:"domain,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type TreeNodeResponse struct {
	ID           string             `json:"id"`
	Title        string             `json:"title"`
	Description  string             `json:"description,omitempty"`
	Status       string             `json:"status" enum:"pending,active,completed,skipped,failed,pruned"`
	Priority     float64            `json:"priority"`
	Energy       string             `json:"estimated_energy,omitempty"`
	Time         string             `json:"estimated_time,omitempty"`
	DependsOn    []string           `json:"depends_on,omitempty"`
	SoftDeadline string             `json:"soft_deadline,omitempty"`
	Children     []TreeNodeResponse `json:"children"`
}

type TreeResponse struct {
	Root  TreeNodeResponse `json:"root"`
	Nodes int              `json:"nodes"`
}

type TurnResponse struct {
	ReflectionID string        `json:"reflection_id"`
	Narrative    string        `json:"narrative"`
	Task         *TaskResponse `json:"task,omitempty"`
	Theme        string        `json:"theme"`
	Mode         string        `json:"mode"`
	Sentiment    float64       `json:"sentiment"`
	Capacity     float64       `json:"capacity"`
	Shadow       float64       `json:"shadow"`
	Magnitude    float64       `json:"magnitude"`
	Resistance   float64       `json:"resistance"`
	Withering    float64       `json:"withering"`
	XP           int           `json:"xp"`
	Stage        string        `json:"stage"`
	Challenge    string        `json:"challenge,omitempty"`
}

type TaskResponse struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Status       string   `json:"status" enum:"pending,active,completed,skipped,failed,pruned"`
	Priority     float64  `json:"priority"`
	Magnitude    float64  `json:"magnitude"`
	Tier         string   `json:"tier" enum:"Bud,Bloom,Blossom"`
	Depth        int      `json:"depth"`
	Energy       string   `json:"estimated_energy,omitempty"`
	Time         string   `json:"estimated_time,omitempty"`
	DependsOn    []string `json:"depends_on,omitempty"`
	SoftDeadline string   `json:"soft_deadline,omitempty"`
	Fallback     bool     `json:"fallback,omitempty"`
}

type TaskListResponse struct {
	Items []TaskResponse `json:"items"`
}

type CompletionResponse struct {
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

type HorizonResponse struct {
	Horizon   string `json:"horizon" format:"date-time"`
	Scheduled int    `json:"scheduled"`
}

type PathResponse struct {
	Path string `json:"path"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	UserID     string         `json:"user_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type EventListResponse struct {
	Items []EventResponse `json:"items"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Conversion helpers

func seedResponse(s domain.Seed) SeedResponse {
	return SeedResponse{
		ID:        s.ID,
		Name:      s.Name,
		Domain:    s.Domain,
		Status:    s.Status,
		CreatedAt: s.CreatedAt,
	}
}

func treeResponse(t *hta.Tree) TreeResponse {
	return TreeResponse{
		Root:  treeNodeResponse(t.Root),
		Nodes: len(t.Flatten()),
	}
}

func treeNodeResponse(n *hta.Node) TreeNodeResponse {
	children := []TreeNodeResponse{}
	for _, c := range n.Children {
		children = append(children, treeNodeResponse(c))
	}
	return TreeNodeResponse{
		ID:           n.ID,
		Title:        n.Title,
		Description:  n.Description,
		Status:       n.Status,
		Priority:     n.Priority,
		Energy:       n.Energy,
		Time:         n.Time,
		DependsOn:    n.DependsOn,
		SoftDeadline: n.SoftDeadline,
		Children:     children,
	}
}

func turnResponse(t domain.Turn) TurnResponse {
	resp := TurnResponse{
		ReflectionID: t.ReflectionID,
		Narrative:    t.Narrative,
		Theme:        t.Theme,
		Mode:         t.Mode,
		Sentiment:    t.Sentiment,
		Capacity:     t.Capacity,
		Shadow:       t.Shadow,
		Magnitude:    t.Magnitude,
		Resistance:   t.Resistance,
		Withering:    t.Withering,
		XP:           t.XP,
		Stage:        t.Stage,
		Challenge:    t.Challenge,
	}
	if t.Task != nil {
		task := taskResponse(*t.Task)
		resp.Task = &task
	}
	return resp
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Status:       t.Status,
		Priority:     t.Priority,
		Magnitude:    t.Magnitude,
		Tier:         t.Tier,
		Depth:        t.Depth,
		Energy:       t.Energy,
		Time:         t.Time,
		DependsOn:    t.DependsOn,
		SoftDeadline: t.SoftDeadline,
		Fallback:     t.Fallback,
	}
}

func completionResponse(r domain.CompletionResult) CompletionResponse {
	return CompletionResponse(r)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		UserID:     e.UserID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func nonNilTasks(in []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(in))
	for _, t := range in {
		out = append(out, taskResponse(t))
	}
	return out
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}
