package hta

import (
	"encoding/json"
	"fmt"

	"trailhead/internal/domain"
)

// Node is one step in the hierarchical goal decomposition. Children are
// owned by their parent; a node appears exactly once in a valid tree.
type Node struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Status       string   `json:"status"`
	Priority     float64  `json:"priority"`
	Energy       string   `json:"estimated_energy,omitempty"`
	Time         string   `json:"estimated_time,omitempty"`
	DependsOn    []string `json:"depends_on,omitempty"`
	SoftDeadline string   `json:"soft_deadline,omitempty"`
	Children     []*Node  `json:"children,omitempty"`
}

// Tree wraps the root of a goal decomposition.
type Tree struct {
	Root *Node `json:"root"`
}

// New returns a tree with the given root.
func New(root *Node) *Tree {
	return &Tree{Root: root}
}

// Find returns the node with the given id, or nil.
func (t *Tree) Find(id string) *Node {
	if t == nil || t.Root == nil {
		return nil
	}
	var walk func(n *Node) *Node
	walk = func(n *Node) *Node {
		if n.ID == id {
			return n
		}
		for _, c := range n.Children {
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(t.Root)
}

// Flatten returns all nodes in pre-order. The order is the canonical
// tie-break everywhere candidates are ranked.
func (t *Tree) Flatten() []*Node {
	if t == nil || t.Root == nil {
		return nil
	}
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		out = append(out, n)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)
	return out
}

// Index returns an id lookup over the whole tree.
func (t *Tree) Index() map[string]*Node {
	idx := map[string]*Node{}
	for _, n := range t.Flatten() {
		idx[n.ID] = n
	}
	return idx
}

// Depth returns the depth of the node with the given id, root at 0.
// Returns -1 when the id is not in the tree.
func (t *Tree) Depth(id string) int {
	if t == nil || t.Root == nil {
		return -1
	}
	var walk func(n *Node, d int) int
	walk = func(n *Node, d int) int {
		if n.ID == id {
			return d
		}
		for _, c := range n.Children {
			if found := walk(c, d+1); found >= 0 {
				return found
			}
		}
		return -1
	}
	return walk(t.Root, 0)
}

func resolved(status string) bool {
	return status == domain.StatusCompleted || status == domain.StatusPruned
}

// DependenciesMet reports whether every dependency of the node is
// resolved. A dependency id that does not exist in the tree counts as
// unmet, never as satisfied.
func (t *Tree) DependenciesMet(n *Node, idx map[string]*Node) bool {
	for _, dep := range n.DependsOn {
		d, ok := idx[dep]
		if !ok || !resolved(d.Status) {
			return false
		}
	}
	return true
}

// PropagateStatus resolves parents bottom-up: a non-terminal node whose
// children are all resolved becomes completed. Leaves keep their own
// status. Running it twice changes nothing. Returns true if any node
// changed.
func (t *Tree) PropagateStatus() bool {
	if t == nil || t.Root == nil {
		return false
	}
	changed := false
	var walk func(n *Node) bool
	walk = func(n *Node) bool {
		if len(n.Children) == 0 {
			return resolved(n.Status)
		}
		all := true
		for _, c := range n.Children {
			if !walk(c) {
				all = false
			}
		}
		if all && !resolved(n.Status) {
			n.Status = domain.StatusCompleted
			changed = true
		}
		return resolved(n.Status)
	}
	walk(t.Root)
	return changed
}

// AddChild appends a child under the parent with the given id. Returns
// false when the parent is absent or the child id already exists.
func (t *Tree) AddChild(parentID string, child *Node) bool {
	if child == nil || child.ID == "" {
		return false
	}
	if t.Find(child.ID) != nil {
		return false
	}
	parent := t.Find(parentID)
	if parent == nil {
		return false
	}
	parent.Children = append(parent.Children, child)
	return true
}

// Remove detaches the node with the given id, subtree included. The
// root cannot be removed. Returns false when nothing was removed.
func (t *Tree) Remove(id string) bool {
	if t == nil || t.Root == nil || t.Root.ID == id {
		return false
	}
	var walk func(n *Node) bool
	walk = func(n *Node) bool {
		for i, c := range n.Children {
			if c.ID == id {
				n.Children = append(n.Children[:i], n.Children[i+1:]...)
				return true
			}
			if walk(c) {
				return true
			}
		}
		return false
	}
	return walk(t.Root)
}

// Validate checks structural integrity: a root exists, ids are unique
// and non-empty, every dependency id resolves inside the tree, and
// statuses are known.
func (t *Tree) Validate() error {
	if t == nil || t.Root == nil {
		return fmt.Errorf("tree has no root")
	}
	seen := map[string]bool{}
	for _, n := range t.Flatten() {
		if n.ID == "" {
			return fmt.Errorf("node %q has empty id", n.Title)
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %s", n.ID)
		}
		seen[n.ID] = true
		switch n.Status {
		case domain.StatusPending, domain.StatusActive, domain.StatusCompleted,
			domain.StatusSkipped, domain.StatusFailed, domain.StatusPruned:
		default:
			return fmt.Errorf("node %s has unknown status %q", n.ID, n.Status)
		}
	}
	for _, n := range t.Flatten() {
		for _, dep := range n.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("node %s depends on unknown node %s", n.ID, dep)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() (*Tree, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	var out Tree
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
