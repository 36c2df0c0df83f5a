package hta_test

import (
	"testing"

	"trailhead/internal/domain"
	"trailhead/internal/hta"
)

func sampleTree() *hta.Tree {
	return hta.New(&hta.Node{
		ID: "root", Title: "Learn woodworking", Status: domain.StatusPending, Priority: 1,
		Children: []*hta.Node{
			{ID: "a", Title: "Set up shop", Status: domain.StatusPending, Priority: 0.8,
				Children: []*hta.Node{
					{ID: "a1", Title: "Buy bench", Status: domain.StatusPending, Priority: 0.5},
					{ID: "a2", Title: "Sharpen chisels", Status: domain.StatusPending, Priority: 0.4, DependsOn: []string{"a1"}},
				}},
			{ID: "b", Title: "First project", Status: domain.StatusPending, Priority: 0.9, DependsOn: []string{"a"}},
		},
	})
}

func TestFlattenPreOrder(t *testing.T) {
	tree := sampleTree()
	var ids []string
	for _, n := range tree.Flatten() {
		ids = append(ids, n.ID)
	}
	want := []string{"root", "a", "a1", "a2", "b"}
	if len(ids) != len(want) {
		t.Fatalf("flatten: got %v want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("flatten: got %v want %v", ids, want)
		}
	}
}

func TestDependenciesMet(t *testing.T) {
	tree := sampleTree()
	idx := tree.Index()
	if tree.DependenciesMet(idx["a2"], idx) {
		t.Fatalf("a2 should be gated on a1")
	}
	idx["a1"].Status = domain.StatusCompleted
	if !tree.DependenciesMet(idx["a2"], idx) {
		t.Fatalf("a2 should be unblocked once a1 is done")
	}
	// a pruned dependency also satisfies the gate
	idx["a1"].Status = domain.StatusPruned
	if !tree.DependenciesMet(idx["a2"], idx) {
		t.Fatalf("pruned dependency should satisfy the gate")
	}
	// unknown dependency id never satisfies
	idx["b"].DependsOn = []string{"ghost"}
	if tree.DependenciesMet(idx["b"], idx) {
		t.Fatalf("unknown dependency must count as unmet")
	}
}

func TestPropagateStatus(t *testing.T) {
	tree := sampleTree()
	idx := tree.Index()
	idx["a1"].Status = domain.StatusCompleted
	idx["a2"].Status = domain.StatusPruned
	idx["b"].Status = domain.StatusCompleted

	if !tree.PropagateStatus() {
		t.Fatalf("expected propagation to change the tree")
	}
	if idx["a"].Status != domain.StatusCompleted {
		t.Fatalf("a should complete once all children resolve, got %s", idx["a"].Status)
	}
	if tree.Root.Status != domain.StatusCompleted {
		t.Fatalf("root should complete, got %s", tree.Root.Status)
	}
	// second pass is a no-op
	if tree.PropagateStatus() {
		t.Fatalf("propagation must be idempotent")
	}
}

func TestPropagateLeavesUnresolvedParents(t *testing.T) {
	tree := sampleTree()
	idx := tree.Index()
	idx["a1"].Status = domain.StatusCompleted
	tree.PropagateStatus()
	if idx["a"].Status != domain.StatusPending {
		t.Fatalf("a must stay pending while a2 is open, got %s", idx["a"].Status)
	}
}

func TestAddAndRemove(t *testing.T) {
	tree := sampleTree()
	if !tree.AddChild("a", &hta.Node{ID: "a3", Title: "Order lumber", Status: domain.StatusPending}) {
		t.Fatalf("add under existing parent should succeed")
	}
	if tree.AddChild("a", &hta.Node{ID: "a3", Title: "dup", Status: domain.StatusPending}) {
		t.Fatalf("duplicate id must be rejected")
	}
	if tree.AddChild("ghost", &hta.Node{ID: "x", Status: domain.StatusPending}) {
		t.Fatalf("missing parent must be rejected")
	}
	if !tree.Remove("a3") {
		t.Fatalf("remove existing node should succeed")
	}
	if tree.Remove("a3") {
		t.Fatalf("remove twice should report false")
	}
	if tree.Remove("root") {
		t.Fatalf("root must not be removable")
	}
}

func TestRemoveDetachesSubtree(t *testing.T) {
	tree := sampleTree()
	if !tree.Remove("a") {
		t.Fatalf("remove a")
	}
	if tree.Find("a1") != nil || tree.Find("a2") != nil {
		t.Fatalf("children of a removed node must go with it")
	}
}

func TestValidate(t *testing.T) {
	tree := sampleTree()
	if err := tree.Validate(); err != nil {
		t.Fatalf("sample tree should validate: %v", err)
	}
	dup := sampleTree()
	dup.Root.Children[0].Children[0].ID = "root"
	if err := dup.Validate(); err == nil {
		t.Fatalf("duplicate id must fail validation")
	}
	dangling := sampleTree()
	dangling.Root.Children[1].DependsOn = []string{"nowhere"}
	if err := dangling.Validate(); err == nil {
		t.Fatalf("dangling dependency must fail validation")
	}
}

func TestSkippedAndFailedStatuses(t *testing.T) {
	tree := sampleTree()
	idx := tree.Index()
	idx["a1"].Status = domain.StatusSkipped
	idx["a2"].Status = domain.StatusFailed
	if err := tree.Validate(); err != nil {
		t.Fatalf("skipped and failed are known statuses: %v", err)
	}
	// neither resolves its parent
	tree.PropagateStatus()
	if idx["a"].Status != domain.StatusPending {
		t.Fatalf("a must stay open over skipped/failed children, got %s", idx["a"].Status)
	}
	// neither satisfies a dependency gate
	if tree.DependenciesMet(idx["a2"], idx) {
		t.Fatalf("a skipped dependency must count as unmet")
	}
}
