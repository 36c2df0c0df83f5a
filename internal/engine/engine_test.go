package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"trailhead/internal/config"
	"trailhead/internal/db"
	"trailhead/internal/domain"
	"trailhead/internal/engine"
	"trailhead/internal/gen"
	"trailhead/internal/hta"
	"trailhead/internal/migrate"
	"trailhead/internal/repo"
)

// refiningGen polishes the candidate's wording on every turn.
type refiningGen struct{ gen.Static }

func (refiningGen) RefineTurn(_ context.Context, _ string, candidate domain.Task) (domain.Task, string, error) {
	candidate.Title = "Polished: " + candidate.Title
	return candidate, "A polished reply.", nil
}

// failingRefineGen simulates an unreachable generation service.
type failingRefineGen struct{ gen.Static }

func (failingRefineGen) RefineTurn(context.Context, string, domain.Task) (domain.Task, string, error) {
	return domain.Task{}, "", errors.New("service unreachable")
}

// growingGen appends one open step to the reworked subtree.
type growingGen struct{ gen.Static }

func (growingGen) Rebalance(_ context.Context, sub *hta.Node, _ []string) (*hta.Node, error) {
	clone, err := hta.New(sub).Clone()
	if err != nil {
		return nil, err
	}
	clone.Root.Children = append(clone.Root.Children, &hta.Node{
		ID: "grown", Title: "Review what changed", Status: domain.StatusPending,
		Priority: 0.5, Energy: "low", Time: "low",
	})
	return clone.Root, nil
}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	eng := engine.New(conn, cfg, gen.Static{})
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

// onboard walks a fresh env through goal + context and returns the
// first actionable task id.
func onboard(t *testing.T, env testEnv) string {
	t.Helper()
	if _, err := env.Engine.SetGoal(env.Ctx, "learn to make furniture"); err != nil {
		t.Fatalf("set goal: %v", err)
	}
	tree, err := env.Engine.AddContext(env.Ctx, "weekends only, small apartment")
	if err != nil {
		t.Fatalf("add context: %v", err)
	}
	if len(tree.Root.Children) == 0 {
		t.Fatalf("skeleton should have children")
	}
	return tree.Root.Children[0].ID
}

func TestOnboardingGates(t *testing.T) {
	env := newTestEnv(t)
	// reflection and completion are rejected before activation
	if _, err := env.Engine.Reflect(env.Ctx, "hello"); !errors.Is(err, engine.ErrNotActivated) {
		t.Fatalf("reflect before activation: got %v", err)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, "x"); !errors.Is(err, engine.ErrNotActivated) {
		t.Fatalf("complete before activation: got %v", err)
	}
	if _, err := env.Engine.AddContext(env.Ctx, "context"); !errors.Is(err, engine.ErrGoalNotSet) {
		t.Fatalf("context before goal: got %v", err)
	}

	seed, err := env.Engine.SetGoal(env.Ctx, "learn to make furniture")
	if err != nil {
		t.Fatalf("set goal: %v", err)
	}
	if seed.Name == "" || seed.Status != "active" {
		t.Fatalf("seed not planted: %+v", seed)
	}
	if _, err := env.Engine.SetGoal(env.Ctx, "something else"); !errors.Is(err, engine.ErrGoalAlreadySet) {
		t.Fatalf("second goal: got %v", err)
	}
	// still not activated until context lands
	if _, err := env.Engine.Reflect(env.Ctx, "hello"); !errors.Is(err, engine.ErrNotActivated) {
		t.Fatalf("reflect after goal only: got %v", err)
	}

	if _, err := env.Engine.AddContext(env.Ctx, "weekends only"); err != nil {
		t.Fatalf("add context: %v", err)
	}
	status, err := env.Engine.Status(env.Ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.GoalSet || !status.Activated {
		t.Fatalf("expected activated journey, got %+v", status)
	}
}

func TestContextPreservesRootID(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SetGoal(env.Ctx, "run a marathon"); err != nil {
		t.Fatalf("set goal: %v", err)
	}
	before, err := env.Engine.Tree(env.Ctx)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	after, err := env.Engine.AddContext(env.Ctx, "three runs a week")
	if err != nil {
		t.Fatalf("add context: %v", err)
	}
	if after.Root.ID != before.Root.ID {
		t.Fatalf("root id must survive regeneration: %s vs %s", after.Root.ID, before.Root.ID)
	}
}

func TestReflectTurn(t *testing.T) {
	env := newTestEnv(t)
	onboard(t, env)
	turn, err := env.Engine.Reflect(env.Ctx, "feeling grateful and excited about the progress")
	if err != nil {
		t.Fatalf("reflect: %v", err)
	}
	if turn.Narrative == "" {
		t.Fatalf("turn must carry a narrative")
	}
	if turn.Task == nil || turn.Task.Fallback {
		t.Fatalf("active tree should serve a real task, got %+v", turn.Task)
	}
	// positive text nudges capacity up and shadow down
	if turn.Capacity <= 0.5 {
		t.Fatalf("capacity should rise on positive reflection, got %f", turn.Capacity)
	}
	if turn.Shadow >= 0.5 {
		t.Fatalf("shadow should drop on positive reflection, got %f", turn.Shadow)
	}
	if turn.Stage != "Awakening" {
		t.Fatalf("fresh journey is Awakening, got %s", turn.Stage)
	}
	if turn.Theme == "" || turn.Mode == "" {
		t.Fatalf("turn must carry theme and mode")
	}
}

func TestReflectServesDependencyFreeTaskFirst(t *testing.T) {
	env := newTestEnv(t)
	first := onboard(t, env)
	turn, err := env.Engine.Reflect(env.Ctx, "ready to start")
	if err != nil {
		t.Fatalf("reflect: %v", err)
	}
	if turn.Task.ID != first {
		t.Fatalf("expected the ungated first step, got %s", turn.Task.Title)
	}
}

func TestCompleteTask(t *testing.T) {
	env := newTestEnv(t)
	first := onboard(t, env)
	res, err := env.Engine.CompleteTask(env.Ctx, first)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !res.Found {
		t.Fatalf("expected task found")
	}
	// fresh journeys sit at the Bud tier: base award 10, no bonus
	if res.XPAwarded != 10 || res.XP != 10 {
		t.Fatalf("xp: got %d awarded, %d total", res.XPAwarded, res.XP)
	}
	if res.Stage != "Awakening" {
		t.Fatalf("stage: got %s", res.Stage)
	}
	// completing again is a no-op
	again, err := env.Engine.CompleteTask(env.Ctx, first)
	if err != nil {
		t.Fatalf("complete again: %v", err)
	}
	if again.XPAwarded != 0 || again.XP != 10 {
		t.Fatalf("re-completion must not award xp: %+v", again)
	}
}

func TestReflectSchedulesDeadlines(t *testing.T) {
	env := newTestEnv(t)
	onboard(t, env)
	// no horizon set: the fallback horizon still yields deadlines
	turn, err := env.Engine.Reflect(env.Ctx, "ready to begin")
	if err != nil {
		t.Fatalf("reflect: %v", err)
	}
	if turn.Task.SoftDeadline == "" {
		t.Fatalf("served task should carry a soft deadline")
	}
	tree, err := env.Engine.Tree(env.Ctx)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	for _, child := range tree.Root.Children {
		if child.SoftDeadline == "" {
			t.Fatalf("open step %s left unscheduled", child.Title)
		}
	}
}

func TestOpenPathReflectLeavesDeadlinesOff(t *testing.T) {
	env := newTestEnv(t)
	onboard(t, env)
	if err := env.Engine.SetPath(env.Ctx, "open"); err != nil {
		t.Fatalf("set path: %v", err)
	}
	turn, err := env.Engine.Reflect(env.Ctx, "taking it easy")
	if err != nil {
		t.Fatalf("reflect: %v", err)
	}
	if turn.Task.SoftDeadline != "" {
		t.Fatalf("open path must not schedule deadlines")
	}
	tree, err := env.Engine.Tree(env.Ctx)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	for _, n := range tree.Flatten() {
		if n.SoftDeadline != "" {
			t.Fatalf("open path must carry no deadlines, %s has one", n.Title)
		}
	}
}

func TestRebalancedNodeGetsDeadlineOnNextTurn(t *testing.T) {
	env := newTestEnv(t)
	first := onboard(t, env)
	env.Engine.Gen = growingGen{}
	if _, err := env.Engine.SetHorizon(env.Ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), false); err != nil {
		t.Fatalf("set horizon: %v", err)
	}
	res, err := env.Engine.CompleteTask(env.Ctx, first)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !res.Rebalanced {
		t.Fatalf("expected a rebalanced tree")
	}
	if _, err := env.Engine.Reflect(env.Ctx, "keeping on"); err != nil {
		t.Fatalf("reflect: %v", err)
	}
	tree, err := env.Engine.Tree(env.Ctx)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	node := tree.Find("grown")
	if node == nil {
		t.Fatalf("rebalanced step missing from the tree")
	}
	if node.SoftDeadline == "" {
		t.Fatalf("a rebalance-introduced step must be scheduled on the next turn")
	}
}

func TestReflectRefinesTaskThroughGenerator(t *testing.T) {
	env := newTestEnv(t)
	onboard(t, env)
	env.Engine.Gen = refiningGen{}
	turn, err := env.Engine.Reflect(env.Ctx, "how should I start")
	if err != nil {
		t.Fatalf("reflect: %v", err)
	}
	if !strings.HasPrefix(turn.Task.Title, "Polished: ") {
		t.Fatalf("refined title expected, got %q", turn.Task.Title)
	}
	if turn.Narrative != "A polished reply." {
		t.Fatalf("refined narrative expected, got %q", turn.Narrative)
	}
}

func TestReflectKeepsCandidateWhenRefinementFails(t *testing.T) {
	env := newTestEnv(t)
	first := onboard(t, env)
	env.Engine.Gen = failingRefineGen{}
	turn, err := env.Engine.Reflect(env.Ctx, "still here")
	if err != nil {
		t.Fatalf("a refinement failure must not lose the turn: %v", err)
	}
	if turn.Task == nil || turn.Task.ID != first {
		t.Fatalf("unrefined candidate must survive, got %+v", turn.Task)
	}
	if turn.Narrative == "" {
		t.Fatalf("fallback narrative required")
	}
}

func TestCompleteUnknownTaskLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)
	onboard(t, env)
	res, err := env.Engine.CompleteTask(env.Ctx, "no-such-task")
	if err != nil {
		t.Fatalf("unknown completion must not error: %v", err)
	}
	if res.Found {
		t.Fatalf("unknown task reported found")
	}
	status, err := env.Engine.Status(env.Ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.XP != 0 {
		t.Fatalf("snapshot mutated by unknown completion: xp %d", status.XP)
	}
}

func TestCompletionCascadesToRoot(t *testing.T) {
	env := newTestEnv(t)
	onboard(t, env)
	tree, err := env.Engine.Tree(env.Ctx)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	for _, child := range tree.Root.Children {
		if _, err := env.Engine.CompleteTask(env.Ctx, child.ID); err != nil {
			t.Fatalf("complete %s: %v", child.ID, err)
		}
	}
	status, err := env.Engine.Status(env.Ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.OpenTasks != 0 {
		t.Fatalf("all tasks done, still %d open", status.OpenTasks)
	}
	// the seed closes with its tree
	if len(status.Seeds) == 0 || status.Seeds[0].Status != "completed" {
		t.Fatalf("seed should complete with the root, got %+v", status.Seeds)
	}
}

func TestCompletionRelievesWithering(t *testing.T) {
	env := newTestEnv(t)
	first := onboard(t, env)
	// a long idle gap builds withering pressure on the next turn
	later := env.Engine
	later.Now = func() time.Time { return time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC) }
	turn, err := later.Reflect(env.Ctx, "back after a while")
	if err != nil {
		t.Fatalf("reflect: %v", err)
	}
	if turn.Withering <= 0 {
		t.Fatalf("idle gap should raise withering, got %f", turn.Withering)
	}
	res, err := later.CompleteTask(env.Ctx, first)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Withering >= turn.Withering {
		t.Fatalf("completion should relieve withering: %f -> %f", turn.Withering, res.Withering)
	}
}

func TestStatePersistsAcrossEngines(t *testing.T) {
	env := newTestEnv(t)
	first := onboard(t, env)
	if _, err := env.Engine.CompleteTask(env.Ctx, first); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// a second engine over the same database sees the same journey
	reopened := engine.New(env.Engine.DB, env.Engine.Config, gen.Static{})
	reopened.Now = env.Engine.Now
	status, err := reopened.Status(env.Ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.XP != 10 || !status.Activated {
		t.Fatalf("state lost across engines: %+v", status)
	}
}

func TestSetHorizonSchedulesDeadlines(t *testing.T) {
	env := newTestEnv(t)
	onboard(t, env)
	horizon := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	n, err := env.Engine.SetHorizon(env.Ctx, horizon, false)
	if err != nil {
		t.Fatalf("set horizon: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected deadlines assigned")
	}
	tree, err := env.Engine.Tree(env.Ctx)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	for _, child := range tree.Root.Children {
		if child.SoftDeadline == "" {
			t.Fatalf("child %s missing deadline", child.Title)
		}
	}
}

func TestOpenPathStripsDeadlines(t *testing.T) {
	env := newTestEnv(t)
	onboard(t, env)
	if _, err := env.Engine.SetHorizon(env.Ctx, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), false); err != nil {
		t.Fatalf("set horizon: %v", err)
	}
	if err := env.Engine.SetPath(env.Ctx, "open"); err != nil {
		t.Fatalf("set path: %v", err)
	}
	tree, err := env.Engine.Tree(env.Ctx)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	for _, n := range tree.Flatten() {
		if n.SoftDeadline != "" {
			t.Fatalf("open path must carry no deadlines")
		}
	}
	if err := env.Engine.SetPath(env.Ctx, "sideways"); err == nil {
		t.Fatalf("unknown path must be rejected")
	}
}

func TestTurnWritesEvents(t *testing.T) {
	env := newTestEnv(t)
	onboard(t, env)
	if _, err := env.Engine.Reflect(env.Ctx, "making space for this"); err != nil {
		t.Fatalf("reflect: %v", err)
	}
	r := repo.Repo{DB: env.Engine.DB}
	evts, err := r.LatestEvents(env.Ctx, 10, repo.EventFilters{UserID: "local-user"})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	types := map[string]bool{}
	for _, e := range evts {
		types[e.Type] = true
	}
	for _, want := range []string{"goal.set", "context.added", "reflection.processed", "task.served"} {
		if !types[want] {
			t.Fatalf("missing event %s in %v", want, types)
		}
	}
}

func TestTasksBacklog(t *testing.T) {
	env := newTestEnv(t)
	first := onboard(t, env)
	tasks, err := env.Engine.Tasks(env.Ctx)
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if len(tasks) == 0 || tasks[0].ID != first {
		t.Fatalf("backlog should lead with the ungated step, got %+v", tasks)
	}
}

func TestCreateAPIKey(t *testing.T) {
	env := newTestEnv(t)
	plain, key, err := env.Engine.CreateAPIKey(env.Ctx, "cli")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	if plain == "" || key.KeyHash == repo.HashAPIKey("") {
		t.Fatalf("bad key material")
	}
	r := repo.Repo{DB: env.Engine.DB}
	got, err := r.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.UserID != "local-user" {
		t.Fatalf("key user: %s", got.UserID)
	}
}
