package trailheadsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Trailhead HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Status       string  `json:"status"`
	Tier         string  `json:"tier"`
	Magnitude    float64 `json:"magnitude"`
	SoftDeadline string  `json:"soft_deadline,omitempty"`
}

// Seed represents a planted goal.
type Seed struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Domain    string `json:"domain,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Turn is one reflection round trip.
type Turn struct {
	ReflectionID string  `json:"reflection_id"`
	Narrative    string  `json:"narrative"`
	Task         *Task   `json:"task,omitempty"`
	Theme        string  `json:"theme"`
	Mode         string  `json:"mode"`
	Capacity     float64 `json:"capacity"`
	Shadow       float64 `json:"shadow"`
	XP           int     `json:"xp"`
	Stage        string  `json:"stage"`
	Challenge    string  `json:"challenge,omitempty"`
}

// Completion reports a task completion attempt.
type Completion struct {
	TaskID     string `json:"task_id"`
	Found      bool   `json:"found"`
	Detail     string `json:"detail,omitempty"`
	XPAwarded  int    `json:"xp_awarded"`
	XP         int    `json:"xp"`
	Stage      string `json:"stage"`
	Rebalanced bool   `json:"rebalanced"`
}

// Status is the journey status report (partial).
type Status struct {
	UserID         string  `json:"user_id"`
	GoalSet        bool    `json:"goal_set"`
	Activated      bool    `json:"activated"`
	Path           string  `json:"path"`
	XP             int     `json:"xp"`
	Stage          string  `json:"stage"`
	Theme          string  `json:"theme"`
	Capacity       float64 `json:"capacity"`
	Shadow         float64 `json:"shadow"`
	Withering      float64 `json:"withering"`
	OpenTasks      int     `json:"open_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	NextTask       *Task   `json:"next_task,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	UserID     string         `json:"user_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SetGoal plants the journey goal.
func (c *Client) SetGoal(ctx context.Context, goal string) (Seed, error) {
	var resp Seed
	err := c.do(ctx, http.MethodPost, "v0/onboarding/set_goal", map[string]any{"goal": goal}, &resp)
	return resp, err
}

// AddContext supplies onboarding context and activates the journey.
func (c *Client) AddContext(ctx context.Context, note string) error {
	return c.do(ctx, http.MethodPost, "v0/onboarding/add_context", map[string]any{"context": note}, nil)
}

// Reflect sends a reflection and returns the turn result.
func (c *Client) Reflect(ctx context.Context, text string) (Turn, error) {
	var resp Turn
	err := c.do(ctx, http.MethodPost, "v0/command", map[string]any{"text": text}, &resp)
	return resp, err
}

// CompleteTask marks a task done.
func (c *Client) CompleteTask(ctx context.Context, taskID string) (Completion, error) {
	var resp Completion
	err := c.do(ctx, http.MethodPost, "v0/complete_task", map[string]any{"task_id": taskID}, &resp)
	return resp, err
}

// Status returns the journey status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var resp Status
	err := c.do(ctx, http.MethodGet, "v0/status", nil, &resp)
	return resp, err
}

// Tasks lists the ranked backlog.
func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v0/tasks", nil, &resp)
	return resp.Items, err
}

// SetPath switches the journey path (structured, blended, open).
func (c *Client) SetPath(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodPost, "v0/path", map[string]any{"path": path}, nil)
}

// SetHorizon sets the estimated completion date and spreads soft deadlines.
func (c *Client) SetHorizon(ctx context.Context, date string, override bool) error {
	return c.do(ctx, http.MethodPost, "v0/horizon", map[string]any{"date": date, "override": override}, nil)
}

// Events returns recent events, optionally filtered by type.
func (c *Client) Events(ctx context.Context, eventType string, limit int) ([]Event, error) {
	endpoint := "v0/events"
	params := url.Values{}
	if eventType != "" {
		params.Set("type", eventType)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
