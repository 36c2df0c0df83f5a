// Package engine is the turn orchestrator. Every public operation
// follows the same shape: load the latest snapshot, hydrate the
// sub-engines from component state, run the deterministic workflow,
// then persist snapshot and audit events in one transaction.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"trailhead/internal/config"
	"trailhead/internal/domain"
	"trailhead/internal/dynamics"
	"trailhead/internal/events"
	"trailhead/internal/gen"
	"trailhead/internal/hta"
	"trailhead/internal/repo"
	"trailhead/internal/scorers"
	"trailhead/internal/selector"
	"trailhead/internal/snapshot"
)

var (
	ErrNotActivated   = errors.New("journey not activated; set a goal and add context first")
	ErrGoalNotSet     = errors.New("no goal set yet")
	ErrGoalAlreadySet = errors.New("a goal is already planted")
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Gen    gen.Generator
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, g gen.Generator) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Gen:    g,
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) userID() string { return e.Config.User.ID }

func (e Engine) tuning() config.Tuning { return e.Config.Tuning }

// state is one hydrated snapshot plus its sub-engines.
type state struct {
	row   repo.SnapshotRow
	snap  snapshot.Snapshot
	dev   *DevIndex
	mom   *Momentum
	seeds *SeedManager
}

func (st *state) components() []Component {
	return []Component{st.dev, st.mom, st.seeds}
}

func (e Engine) load(ctx context.Context) (*state, error) {
	t := e.tuning()
	st := &state{
		dev:   NewDevIndex(t.DevIndex),
		mom:   NewMomentum(t.Magnitude.MomentumAlpha),
		seeds: NewSeedManager(),
	}
	row, err := e.Repo.LatestSnapshot(ctx, e.userID())
	if errors.Is(err, repo.ErrNotFound) {
		st.snap = snapshot.New()
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	snap, err := snapshot.Decode(row.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	st.row = row
	st.snap = snap
	importComponents(snap, st.components())
	return st, nil
}

// save writes component state back into the snapshot and upserts the
// row inside the caller's transaction.
func (e Engine) save(ctx context.Context, tx *sql.Tx, st *state) error {
	if err := exportComponents(&st.snap, st.components()); err != nil {
		return fmt.Errorf("export component state: %w", err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	st.snap.Timestamp = now
	payload, err := st.snap.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if st.row.ID == "" {
		st.row = repo.SnapshotRow{
			ID:        uuid.New().String(),
			UserID:    e.userID(),
			Payload:   payload,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return e.Repo.InsertSnapshot(ctx, tx, st.row)
	}
	st.row.Payload = payload
	st.row.UpdatedAt = now
	return e.Repo.UpdateSnapshot(ctx, tx, st.row)
}

func (e Engine) scheduler() dynamics.Scheduler {
	return dynamics.Scheduler{Tuning: e.tuning().Deadlines, Now: e.Now}
}

// SetGoal plants the journey's goal: the raw intention is refined by
// the generation service and becomes a one-node tree plus a seed.
func (e Engine) SetGoal(ctx context.Context, raw string) (domain.Seed, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.Seed{}, errors.New("goal text is required")
	}
	st, err := e.load(ctx)
	if err != nil {
		return domain.Seed{}, err
	}
	if st.snap.Activation.GoalSet {
		return domain.Seed{}, ErrGoalAlreadySet
	}
	refined, err := e.Gen.RefineGoal(ctx, raw)
	if err != nil {
		return domain.Seed{}, fmt.Errorf("refine goal: %w", err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	seed := domain.Seed{
		ID:          uuid.New().String(),
		Name:        refined,
		Description: strings.TrimSpace(raw),
		Status:      "active",
		CreatedAt:   now,
	}
	rootID := uuid.NewSHA1(uuid.NameSpaceURL, []byte("trailhead/root/"+seed.ID)).String()
	st.snap.Tree = hta.New(&hta.Node{
		ID:       rootID,
		Title:    refined,
		Status:   domain.StatusPending,
		Priority: 1,
	})
	st.snap.Activation.GoalSet = true
	st.seeds.Plant(seed)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Seed{}, err
	}
	defer tx.Rollback()
	if err := e.save(ctx, tx, st); err != nil {
		return domain.Seed{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeGoalSet, e.userID(), "seed", seed.ID,
		events.EventPayload{"goal": refined}); err != nil {
		return domain.Seed{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Seed{}, err
	}
	return seed, nil
}

// AddContext completes onboarding: the generation service expands the
// planted goal into a first-level skeleton and the journey activates.
// The root id survives regeneration.
func (e Engine) AddContext(ctx context.Context, note string) (*hta.Tree, error) {
	st, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	if !st.snap.Activation.GoalSet || st.snap.Tree == nil || st.snap.Tree.Root == nil {
		return nil, ErrGoalNotSet
	}
	rootID := st.snap.Tree.Root.ID
	goal := st.snap.Tree.Root.Title
	if seed, ok := st.seeds.Primary(); ok {
		goal = seed.Name
	}
	tree, err := e.Gen.Skeleton(ctx, goal, note, rootID)
	if err != nil {
		return nil, fmt.Errorf("generate skeleton: %w", err)
	}
	if tree.Root.ID != rootID {
		tree.Root.ID = rootID
	}
	if err := tree.Validate(); err != nil {
		return nil, fmt.Errorf("skeleton invalid: %w", err)
	}
	st.snap.Tree = tree
	st.snap.Activation.Activated = true
	if _, err := e.scheduler().Schedule(tree, st.snap.CurrentPath, st.snap.Horizon(), false); err != nil {
		if !errors.Is(err, dynamics.ErrNoHorizon) {
			return nil, err
		}
		// no horizon yet; deadlines arrive once one is set
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.save(ctx, tx, st); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeContextAdded, e.userID(), "tree", rootID,
		events.EventPayload{"nodes": len(tree.Flatten())}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return tree, nil
}

// SetHorizon records the estimated completion date and spreads soft
// deadlines across the open tree. Override reassigns existing ones.
func (e Engine) SetHorizon(ctx context.Context, when time.Time, override bool) (int, error) {
	st, err := e.load(ctx)
	if err != nil {
		return 0, err
	}
	if !st.snap.Activation.GoalSet {
		return 0, ErrGoalNotSet
	}
	st.snap.EstimatedCompletion = when.UTC().Format(time.RFC3339)
	var touched int
	if st.snap.Tree != nil {
		touched, err = e.scheduler().Schedule(st.snap.Tree, st.snap.CurrentPath, when, override)
		if err != nil {
			return 0, err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if err := e.save(ctx, tx, st); err != nil {
		return 0, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeHorizonSet, e.userID(), "journey", "",
		events.EventPayload{"horizon": st.snap.EstimatedCompletion, "scheduled": touched}); err != nil {
		return 0, err
	}
	return touched, tx.Commit()
}

// SetPath switches the journey path and reschedules accordingly: the
// open path strips deadlines, the others redistribute when a horizon
// exists.
func (e Engine) SetPath(ctx context.Context, path string) error {
	switch path {
	case domain.PathStructured, domain.PathBlended, domain.PathOpen:
	default:
		return fmt.Errorf("unknown path %q", path)
	}
	st, err := e.load(ctx)
	if err != nil {
		return err
	}
	st.snap.CurrentPath = path
	if st.snap.Tree != nil {
		if _, err := e.scheduler().Schedule(st.snap.Tree, path, st.snap.Horizon(), true); err != nil {
			if !errors.Is(err, dynamics.ErrNoHorizon) {
				return err
			}
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.save(ctx, tx, st); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypePathSet, e.userID(), "journey", "",
		events.EventPayload{"path": path}); err != nil {
		return err
	}
	return tx.Commit()
}

// Reflect runs one reflection turn: score the text, nudge the metrics,
// advance withering, pick the next task and narrate the reply. A
// narration failure degrades to a canned reply; it never loses the
// turn.
func (e Engine) Reflect(ctx context.Context, text string) (domain.Turn, error) {
	st, err := e.load(ctx)
	if err != nil {
		return domain.Turn{}, err
	}
	if !st.snap.Activation.Activated {
		return domain.Turn{}, ErrNotActivated
	}
	t := e.tuning()
	now := e.now().UTC()
	snap := &st.snap

	idle := snap.IdleHours(now)
	overdue := dynamics.MaxOverdueHours(snap.Tree, now)
	snap.WitheringLevel = dynamics.Wither(snap.WitheringLevel, idle, overdue, snap.CurrentPath, t.Withering)

	senti := scorers.Sentiment(text)
	snap.Capacity = clamp01(snap.Capacity + t.Reflection.Nudge*senti.Score)
	snap.ShadowScore = clamp01(snap.ShadowScore - t.Reflection.Nudge*senti.Score)
	if scorers.PositiveHint(text) {
		st.dev.BaselineNudge()
	}

	if snap.Tree != nil {
		snap.Tree.PropagateStatus()
	}

	sel := selector.Selector{Tuning: t}
	in := selector.Inputs{
		Tree:                snap.Tree,
		Capacity:            snap.Capacity,
		CurrentTier:         snap.CurrentTier,
		DevIndex:            st.dev.Values(),
		History:             userMessages(snap.History),
		ReflectionIntensity: senti.Intensity,
	}
	task := sel.Next(in)

	snap.Resistance = dynamics.Resistance(snap.ShadowScore, snap.Capacity, st.mom.Value(), task.Magnitude, t.Resistance)
	_, theme := resonance(snap.XP, snap.ShadowScore, snap.Capacity, snap.Magnitude, t.Harmonic)
	mode := scorers.NarrativeMode(snap.Capacity, snap.ShadowScore, task.Magnitude, t.Narrative)
	stage := dynamics.StageFor(snap.XP, t.XP)
	challenge, _ := dynamics.ProximityChallenge(snap.XP, t.XP)

	refined, narrative, err := e.Gen.RefineTurn(ctx, e.buildPrompt(snap, text, task, theme, mode), task)
	if err != nil {
		log.Printf("reflect: turn refinement failed, serving unrefined task: %v", err)
		narrative = fallbackNarrative(mode, task)
	} else {
		task = mergeRefined(task, refined)
		if narrative == "" {
			narrative = fallbackNarrative(mode, task)
		}
	}

	snap.AppendExchange(snapshot.Exchange{
		UserMessage: text,
		Reply:       narrative,
		At:          now.Format(time.RFC3339),
	}, t.History.Cap)

	if snap.CurrentPath != domain.PathOpen && snap.Tree != nil {
		horizon := snap.Horizon()
		if horizon.IsZero() {
			horizon = now.Add(time.Duration(t.Deadlines.FallbackHorizonDays) * 24 * time.Hour)
		}
		if _, err := e.scheduler().Schedule(snap.Tree, snap.CurrentPath, horizon, false); err != nil {
			log.Printf("reflect: deadline scheduling failed: %v", err)
		}
		if n := snap.Tree.Find(task.ID); n != nil {
			task.SoftDeadline = n.SoftDeadline
		}
	}

	snap.Backlog = rankedTasks(sel, in)

	reflectionID := uuid.New().String()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Turn{}, err
	}
	defer tx.Rollback()
	if err := e.save(ctx, tx, st); err != nil {
		return domain.Turn{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeReflection, e.userID(), "reflection", reflectionID,
		events.EventPayload{
			"sentiment": senti.Score,
			"intensity": senti.Intensity,
			"theme":     theme,
			"mode":      mode,
			"withering": snap.WitheringLevel,
		}); err != nil {
		return domain.Turn{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeTaskServed, e.userID(), "task", task.ID,
		events.EventPayload{"title": task.Title, "fallback": task.Fallback, "magnitude": task.Magnitude}); err != nil {
		return domain.Turn{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Turn{}, err
	}

	servedTask := task
	return domain.Turn{
		ReflectionID: reflectionID,
		Narrative:    narrative,
		Task:         &servedTask,
		Theme:        theme,
		Mode:         mode,
		Sentiment:    senti.Score,
		Capacity:     snap.Capacity,
		Shadow:       snap.ShadowScore,
		Magnitude:    snap.Magnitude,
		Resistance:   snap.Resistance,
		Withering:    snap.WitheringLevel,
		XP:           snap.XP,
		Stage:        stage.Name,
		Challenge:    challenge,
	}, nil
}

// CompleteTask resolves one tree node and runs the completion
// workflow: XP, growth boosts, momentum, magnitude smoothing, relief
// and a best-effort rebalance. An unknown id is a structured result,
// not an error, and leaves the snapshot untouched.
func (e Engine) CompleteTask(ctx context.Context, taskID string) (domain.CompletionResult, error) {
	st, err := e.load(ctx)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	if !st.snap.Activation.Activated {
		return domain.CompletionResult{}, ErrNotActivated
	}
	snap := &st.snap
	t := e.tuning()

	var node *hta.Node
	if snap.Tree != nil {
		node = snap.Tree.Find(taskID)
	}
	if node == nil {
		return domain.CompletionResult{
			TaskID: taskID,
			Found:  false,
			Detail: "task not found in the current tree",
		}, nil
	}
	if node.Status == domain.StatusCompleted || node.Status == domain.StatusPruned {
		return domain.CompletionResult{
			TaskID: taskID,
			Found:  true,
			Detail: "task already resolved",
			XP:     snap.XP,
			Stage:  dynamics.StageFor(snap.XP, t.XP).Name,
		}, nil
	}

	depth := snap.Tree.Depth(taskID)
	tier := snap.CurrentTier
	if tier == "" {
		tier = domain.TierBud
	}
	sel := selector.Selector{Tuning: t}
	taskMag := sel.Magnitude(tier, depth)
	title := node.Title

	node.Status = domain.StatusCompleted
	snap.Tree.PropagateStatus()

	award := dynamics.Award(tier, snap.ShadowScore, t.XP)
	prevStage := dynamics.StageFor(snap.XP, t.XP)
	snap.XP += award
	stage := dynamics.StageFor(snap.XP, t.XP)
	challenge, _ := dynamics.ProximityChallenge(snap.XP, t.XP)

	momentum := st.mom.Update(taskMag)
	touched := st.dev.ApplyTaskEffect(domain.Task{
		Title:       title,
		Description: node.Description,
		Tier:        tier,
	}, momentum)

	mag := (1-t.Magnitude.SmoothingAlpha)*snap.Magnitude + t.Magnitude.SmoothingAlpha*taskMag
	if taskMag >= t.Magnitude.HighThreshold {
		mag += t.Magnitude.HighBoost
	}
	snap.Magnitude = clampRange(mag, 0, 10)

	snap.WitheringLevel = dynamics.Relieve(snap.WitheringLevel, t.Withering)
	snap.Resistance = dynamics.Resistance(snap.ShadowScore, snap.Capacity, momentum, snap.Magnitude, t.Resistance)

	if resolvedStatus(snap.Tree.Root.Status) {
		if seed, ok := st.seeds.Primary(); ok {
			st.seeds.Complete(seed.ID)
		}
	}

	rebalanced := e.tryRebalance(ctx, snap, taskID, title)
	snap.Backlog = rankedTasks(sel, selector.Inputs{
		Tree:        snap.Tree,
		Capacity:    snap.Capacity,
		CurrentTier: snap.CurrentTier,
		DevIndex:    st.dev.Values(),
		History:     userMessages(snap.History),
	})

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	defer tx.Rollback()
	if err := e.save(ctx, tx, st); err != nil {
		return domain.CompletionResult{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeTaskCompleted, e.userID(), "task", taskID,
		events.EventPayload{
			"title":      title,
			"tier":       tier,
			"xp_awarded": award,
			"magnitude":  taskMag,
			"dimensions": touched,
		}); err != nil {
		return domain.CompletionResult{}, err
	}
	if stage.Name != prevStage.Name {
		if err := e.Events.Append(ctx, tx, events.TypeStageReached, e.userID(), "stage", stage.Name,
			events.EventPayload{"xp": snap.XP, "challenge": stage.Challenge}); err != nil {
			return domain.CompletionResult{}, err
		}
	}
	if rebalanced {
		if err := e.Events.Append(ctx, tx, events.TypeTreeRebalance, e.userID(), "tree", snap.Tree.Root.ID,
			events.EventPayload{"after": taskID}); err != nil {
			return domain.CompletionResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.CompletionResult{}, err
	}

	return domain.CompletionResult{
		TaskID:     taskID,
		Found:      true,
		XPAwarded:  award,
		XP:         snap.XP,
		Stage:      stage.Name,
		Challenge:  challenge,
		Magnitude:  snap.Magnitude,
		Withering:  snap.WitheringLevel,
		Resistance: snap.Resistance,
		Rebalanced: rebalanced,
	}, nil
}

// tryRebalance asks the generation service to rework the completed
// node's parent subtree. Any failure, malformed proposal included,
// keeps the old tree; completion never blocks on this.
func (e Engine) tryRebalance(ctx context.Context, snap *snapshot.Snapshot, completedID, completedTitle string) bool {
	if e.Gen == nil || snap.Tree == nil {
		return false
	}
	parent := findParent(snap.Tree.Root, completedID)
	if parent == nil || !hasOpenChild(parent) {
		return false
	}
	proposal, err := e.Gen.Rebalance(ctx, parent, []string{completedTitle})
	if err != nil {
		log.Printf("rebalance: generation failed, keeping tree: %v", err)
		return false
	}
	if proposal == nil || proposal.ID != parent.ID {
		log.Printf("rebalance: proposal changed subtree root, rejected")
		return false
	}
	candidate, err := snap.Tree.Clone()
	if err != nil {
		return false
	}
	*candidate.Find(parent.ID) = *proposal
	if err := candidate.Validate(); err != nil {
		log.Printf("rebalance: proposal invalid, keeping tree: %v", err)
		return false
	}
	snap.Tree = candidate
	return true
}

// Status reports the current journey state without mutating anything.
func (e Engine) Status(ctx context.Context) (StatusReport, error) {
	st, err := e.load(ctx)
	if err != nil {
		return StatusReport{}, err
	}
	t := e.tuning()
	snap := st.snap
	stage := dynamics.StageFor(snap.XP, t.XP)
	challenge, _ := dynamics.ProximityChallenge(snap.XP, t.XP)
	score, theme := resonance(snap.XP, snap.ShadowScore, snap.Capacity, snap.Magnitude, t.Harmonic)

	report := StatusReport{
		UserID:              e.userID(),
		GoalSet:             snap.Activation.GoalSet,
		Activated:           snap.Activation.Activated,
		Path:                snap.CurrentPath,
		XP:                  snap.XP,
		Stage:               stage.Name,
		Challenge:           challenge,
		Shadow:              snap.ShadowScore,
		Capacity:            snap.Capacity,
		Magnitude:           snap.Magnitude,
		MagnitudeLabel:      domain.MagnitudeDescription(snap.Magnitude),
		Resistance:          snap.Resistance,
		Withering:           snap.WitheringLevel,
		Relationship:        snap.RelationshipIndex,
		Resonance:           score,
		Theme:               theme,
		EstimatedCompletion: snap.EstimatedCompletion,
		Seeds:               st.seeds.All(),
	}
	if snap.Tree != nil {
		for _, n := range snap.Tree.Flatten() {
			if resolvedStatus(n.Status) {
				report.CompletedTasks++
			} else {
				report.OpenTasks++
			}
		}
		sel := selector.Selector{Tuning: t}
		next := sel.Next(selector.Inputs{
			Tree:        snap.Tree,
			Capacity:    snap.Capacity,
			CurrentTier: snap.CurrentTier,
			DevIndex:    st.dev.Values(),
			History:     userMessages(snap.History),
		})
		report.NextTask = &next
	}
	return report, nil
}

// StatusReport is the read-only journey summary.
type StatusReport struct {
	UserID              string        `json:"user_id"`
	GoalSet             bool          `json:"goal_set"`
	Activated           bool          `json:"activated"`
	Path                string        `json:"path"`
	XP                  int           `json:"xp"`
	Stage               string        `json:"stage"`
	Challenge           string        `json:"challenge,omitempty"`
	Shadow              float64       `json:"shadow"`
	Capacity            float64       `json:"capacity"`
	Magnitude           float64       `json:"magnitude"`
	MagnitudeLabel      string        `json:"magnitude_label"`
	Resistance          float64       `json:"resistance"`
	Withering           float64       `json:"withering"`
	Relationship        float64       `json:"relationship"`
	Resonance           float64       `json:"resonance"`
	Theme               string        `json:"theme"`
	OpenTasks           int           `json:"open_tasks"`
	CompletedTasks      int           `json:"completed_tasks"`
	EstimatedCompletion string        `json:"estimated_completion_date,omitempty"`
	Seeds               []domain.Seed `json:"seeds,omitempty"`
	NextTask            *domain.Task  `json:"next_task,omitempty"`
}

// Tasks returns the current ranked backlog.
func (e Engine) Tasks(ctx context.Context) ([]domain.Task, error) {
	st, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	sel := selector.Selector{Tuning: e.tuning()}
	return rankedTasks(sel, selector.Inputs{
		Tree:        st.snap.Tree,
		Capacity:    st.snap.Capacity,
		CurrentTier: st.snap.CurrentTier,
		DevIndex:    st.dev.Values(),
		History:     userMessages(st.snap.History),
	}), nil
}

// Tree returns the current goal tree, nil before onboarding.
func (e Engine) Tree(ctx context.Context) (*hta.Tree, error) {
	st, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	return st.snap.Tree, nil
}

// CreateAPIKey mints an API key for the configured user and returns
// the plaintext exactly once.
func (e Engine) CreateAPIKey(ctx context.Context, name string) (string, repo.APIKey, error) {
	plain := "th_" + uuid.New().String()
	key := repo.APIKey{
		ID:        uuid.New().String(),
		UserID:    e.userID(),
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", repo.APIKey{}, err
	}
	return plain, key, nil
}

func (e Engine) buildPrompt(snap *snapshot.Snapshot, text string, task domain.Task, theme, mode string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the reflective voice of a long-running personal journey.\n")
	fmt.Fprintf(&b, "Register: %s. Current theme: %s.\n", mode, theme)
	fmt.Fprintf(&b, "Metrics: capacity %.2f, shadow %.2f, magnitude %.1f (%s).\n",
		snap.Capacity, snap.ShadowScore, snap.Magnitude, domain.MagnitudeDescription(snap.Magnitude))
	window := snap.PromptWindow(e.tuning().History.PromptWindow)
	if len(window) > 0 {
		b.WriteString("Recent exchanges:\n")
		for _, x := range window {
			fmt.Fprintf(&b, "- user: %s\n  reply: %s\n", x.UserMessage, x.Reply)
		}
	}
	fmt.Fprintf(&b, "The user just wrote: %s\n", text)
	fmt.Fprintf(&b, "Suggested next step: %s.\n", task.Title)
	b.WriteString("Answer in at most three sentences, then name the next step.\n")
	return b.String()
}

// mergeRefined folds a refinement into the candidate. Only the
// free-form fields move; identity, tier and scheduling stay local.
func mergeRefined(candidate, refined domain.Task) domain.Task {
	if title := strings.TrimSpace(refined.Title); title != "" {
		candidate.Title = title
	}
	if desc := strings.TrimSpace(refined.Description); desc != "" {
		candidate.Description = desc
	}
	return candidate
}

func fallbackNarrative(mode string, task domain.Task) string {
	switch mode {
	case scorers.ModeGentleSafety:
		return fmt.Sprintf("Thank you for showing up; that is enough for today. When you feel ready, a small next step is waiting: %s.", task.Title)
	case scorers.ModeDirectSupport:
		return fmt.Sprintf("Heard. The next concrete step is: %s. Start small and report back.", task.Title)
	default:
		return fmt.Sprintf("Your words are part of the trail now. When the moment opens, consider: %s.", task.Title)
	}
}

func rankedTasks(sel selector.Selector, in selector.Inputs) []domain.Task {
	ranked := sel.Rank(in)
	out := make([]domain.Task, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.Task)
	}
	return out
}

func userMessages(history []snapshot.Exchange) []string {
	var out []string
	for _, x := range history {
		out = append(out, x.UserMessage)
	}
	return out
}

func findParent(root *hta.Node, id string) *hta.Node {
	if root == nil {
		return nil
	}
	for _, c := range root.Children {
		if c.ID == id {
			return root
		}
		if p := findParent(c, id); p != nil {
			return p
		}
	}
	return nil
}

func hasOpenChild(n *hta.Node) bool {
	for _, c := range n.Children {
		if !resolvedStatus(c.Status) {
			return true
		}
	}
	return false
}

func resolvedStatus(status string) bool {
	return status == domain.StatusCompleted || status == domain.StatusPruned
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
