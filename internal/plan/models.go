// Package plan models hierarchical task plans and their persistence.
package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Summary is lightweight plan metadata used for list operations.
type Summary struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	TaskCount   int    `json:"task_count"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// Node is a single task within a plan tree.
type Node struct {
	ID              int64  `json:"id"`
	PlanID          int64  `json:"plan_id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	Instruction     string `json:"instruction,omitempty"`
	ParentID        *int64 `json:"parent_id,omitempty"`
	Position        int    `json:"position"`
	ExecutionResult string `json:"execution_result,omitempty"`
}

// DisplayName returns a short label for prompt rendering.
func (n *Node) DisplayName() string {
	if name := strings.TrimSpace(n.Name); name != "" {
		return name
	}
	return fmt.Sprintf("Task %d", n.ID)
}

// Tree is the in-memory representation of a plan and its tasks.
type Tree struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Nodes       map[int64]*Node `json:"nodes"`

	// adjacency maps a parent id (0 for roots) to ordered child ids.
	adjacency map[int64][]int64
}

// NewTree constructs an empty tree for a plan.
func NewTree(id int64, title, description string) *Tree {
	return &Tree{
		ID:          id,
		Title:       title,
		Description: description,
		Nodes:       map[int64]*Node{},
		adjacency:   map[int64][]int64{},
	}
}

func parentKey(parentID *int64) int64 {
	if parentID == nil {
		return 0
	}
	return *parentID
}

// NodeCount returns the number of tasks in the tree.
func (t *Tree) NodeCount() int { return len(t.Nodes) }

// IsEmpty reports whether the plan has no tasks.
func (t *Tree) IsEmpty() bool { return t.NodeCount() == 0 }

// HasNode reports whether a task id exists in the tree.
func (t *Tree) HasNode(id int64) bool {
	_, ok := t.Nodes[id]
	return ok
}

// RootIDs returns the ordered ids of root tasks.
func (t *Tree) RootIDs() []int64 {
	return append([]int64(nil), t.adjacency[0]...)
}

// ChildrenIDs returns the ordered child ids for the given parent (nil for roots).
func (t *Tree) ChildrenIDs(parentID *int64) []int64 {
	return append([]int64(nil), t.adjacency[parentKey(parentID)]...)
}

// AddNode inserts a node and keeps the adjacency map ordered.
func (t *Tree) AddNode(node *Node) {
	t.Nodes[node.ID] = node
	t.RebuildAdjacency()
}

// RebuildAdjacency rebuilds the child ordering from node parent/position data.
func (t *Tree) RebuildAdjacency() {
	ordered := make([]*Node, 0, len(t.Nodes))
	for _, node := range t.Nodes {
		ordered = append(ordered, node)
	}
	sort.Slice(ordered, func(i, j int) bool {
		pi, pj := parentKey(ordered[i].ParentID), parentKey(ordered[j].ParentID)
		if pi != pj {
			return pi < pj
		}
		if ordered[i].Position != ordered[j].Position {
			return ordered[i].Position < ordered[j].Position
		}
		return ordered[i].ID < ordered[j].ID
	})
	adjacency := map[int64][]int64{}
	for _, node := range ordered {
		key := parentKey(node.ParentID)
		adjacency[key] = append(adjacency[key], node.ID)
	}
	t.adjacency = adjacency
}

const instructionSnippetLen = 90

func instructionSnippet(instruction string) string {
	s := strings.TrimSpace(instruction)
	if len(s) > instructionSnippetLen {
		return s[:instructionSnippetLen] + "..."
	}
	return s
}

// Outline renders the plan as a compact outline for prompts.
func (t *Tree) Outline(maxDepth, maxNodes int) string {
	if t.IsEmpty() {
		return "(plan has no tasks yet)"
	}

	lines := []string{fmt.Sprintf("Plan #%d: %s", t.ID, t.Title)}
	if t.Description != "" {
		lines = append(lines, "Description: "+t.Description)
	}

	count := 0
	var render func(id int64, depth int)
	render = func(id int64, depth int) {
		if depth > maxDepth || count >= maxNodes {
			return
		}
		node := t.Nodes[id]
		line := fmt.Sprintf("%s- [%d] %s", strings.Repeat("  ", depth), node.ID, node.DisplayName())
		if snippet := instructionSnippet(node.Instruction); snippet != "" {
			line += " :: " + snippet
		}
		lines = append(lines, line)
		count++
		for _, childID := range t.ChildrenIDs(&node.ID) {
			render(childID, depth+1)
		}
	}

	for _, rootID := range t.RootIDs() {
		render(rootID, 0)
		if count >= maxNodes {
			break
		}
	}
	if count >= maxNodes {
		lines = append(lines, fmt.Sprintf("... truncated after %d nodes ...", count))
	}
	return strings.Join(lines, "\n")
}

// SubgraphOutline renders the subtree rooted at nodeID up to maxDepth.
func (t *Tree) SubgraphOutline(nodeID int64, maxDepth int) string {
	if !t.HasNode(nodeID) {
		return fmt.Sprintf("(node %d not found in plan %d)", nodeID, t.ID)
	}

	lines := []string{fmt.Sprintf("Subgraph rooted at node %d (depth <= %d)", nodeID, maxDepth)}
	var render func(id int64, depth int)
	render = func(id int64, depth int) {
		node := t.Nodes[id]
		line := fmt.Sprintf("%s- [%d] %s", strings.Repeat("  ", depth), node.ID, node.DisplayName())
		if snippet := instructionSnippet(node.Instruction); snippet != "" {
			line += " :: " + snippet
		}
		lines = append(lines, line)
		if depth >= maxDepth {
			return
		}
		for _, childID := range t.ChildrenIDs(&node.ID) {
			render(childID, depth+1)
		}
	}
	render(nodeID, 0)
	return strings.Join(lines, "\n")
}

// FindChild returns the child of parentID whose name matches after trimming
// and case folding, or nil when no such sibling exists.
func (t *Tree) FindChild(parentID *int64, name string) *Node {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return nil
	}
	for _, childID := range t.ChildrenIDs(parentID) {
		node := t.Nodes[childID]
		if strings.ToLower(strings.TrimSpace(node.Name)) == want {
			return node
		}
	}
	return nil
}
