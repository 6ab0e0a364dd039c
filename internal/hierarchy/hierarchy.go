// Package hierarchy builds the state tree of a hierarchical HMM: named coarse
// categories at the internal nodes and numbered behavioural states at the
// leaves. A Tree owns its nodes outright and keeps flat name/state indexes
// next to them, so lookups never need parent pointers.
package hierarchy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kingrea/hhmmkit/internal/modelerr"
)

// Spec is the nested description a Tree is built from. Leaves may carry an
// explicit State; when no leaf does, states are numbered depth-first.
type Spec struct {
	Name     string `json:"name" yaml:"name" validate:"required"`
	State    int    `json:"state,omitempty" yaml:"state,omitempty" validate:"gte=0"`
	Children []Spec `json:"children,omitempty" yaml:"children,omitempty" validate:"dive"`
}

// Clone returns a deep copy of the spec.
func (s Spec) Clone() Spec {
	clone := Spec{Name: s.Name, State: s.State}
	if len(s.Children) > 0 {
		clone.Children = make([]Spec, len(s.Children))
		for i, child := range s.Children {
			clone.Children[i] = child.Clone()
		}
	}
	return clone
}

// Node is one category (internal node) or one behavioural state (leaf).
// State is zero for internal nodes.
type Node struct {
	Name     string
	State    int
	Children []*Node
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Tree is an immutable state hierarchy. Nodes returned by its accessors are
// shared with the tree and must not be modified.
type Tree struct {
	root    *Node
	byName  map[string]*Node
	parent  map[string]string
	leaves  []*Node // leaves[s-1] carries state s
	order   []string
	maxDeep int
}

// Build validates spec and assembles a Tree.
func Build(spec Spec) (*Tree, error) {
	root := spec.Clone()
	if strings.TrimSpace(root.Name) == "" {
		return nil, modelerr.New(modelerr.CodeInvalidDefinition, "hierarchy: root name is required")
	}
	if len(root.Children) == 0 {
		return nil, modelerr.Newf(modelerr.CodeInvalidDefinition, "hierarchy %s: at least one state is required under the root", root.Name).
			WithSuggestion("add children to the root node; each leaf becomes one behavioural state")
	}

	t := &Tree{
		byName: map[string]*Node{},
		parent: map[string]string{},
	}
	var leaves []*Node
	explicit := 0
	var walk func(s Spec, parent string, depth int) (*Node, error)
	walk = func(s Spec, parent string, depth int) (*Node, error) {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, modelerr.Newf(modelerr.CodeInvalidDefinition, "hierarchy: node under %s has an empty name", parent).
				With("parent", parent)
		}
		if _, exists := t.byName[name]; exists {
			return nil, modelerr.Newf(modelerr.CodeDuplicateIdentifier, "hierarchy: node name %s is used more than once", name).
				With("name", name).
				With("first_parent", t.parent[name]).
				With("second_parent", parent)
		}
		if s.State < 0 {
			return nil, modelerr.Newf(modelerr.CodeInvalidDefinition, "hierarchy: node %s has negative state %d", name, s.State).
				With("name", name)
		}
		node := &Node{Name: name}
		t.byName[name] = node
		t.order = append(t.order, name)
		if parent != "" {
			t.parent[name] = parent
		}
		if len(s.Children) == 0 {
			node.State = s.State
			if s.State != 0 {
				explicit++
			}
			leaves = append(leaves, node)
			if depth > t.maxDeep {
				t.maxDeep = depth
			}
			return node, nil
		}
		if s.State != 0 {
			return nil, modelerr.Newf(modelerr.CodeInvalidDefinition, "hierarchy: category %s has children and must not carry a state", name).
				With("name", name).
				With("state", strconv.Itoa(s.State))
		}
		node.Children = make([]*Node, 0, len(s.Children))
		for _, child := range s.Children {
			built, err := walk(child, name, depth+1)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, built)
		}
		return node, nil
	}
	rootNode, err := walk(root, "", 0)
	if err != nil {
		return nil, err
	}
	t.root = rootNode

	if err := t.numberLeaves(leaves, explicit); err != nil {
		return nil, err
	}
	return t, nil
}

// numberLeaves assigns depth-first state numbers, or checks explicit ones.
func (t *Tree) numberLeaves(leaves []*Node, explicit int) error {
	t.leaves = make([]*Node, len(leaves))
	switch explicit {
	case 0:
		for i, leaf := range leaves {
			leaf.State = i + 1
			t.leaves[i] = leaf
		}
		return nil
	case len(leaves):
	default:
		return modelerr.Newf(modelerr.CodeInvalidDefinition,
			"hierarchy %s: %d of %d leaves carry explicit states; number all leaves or none",
			t.root.Name, explicit, len(leaves))
	}
	for _, leaf := range leaves {
		idx := leaf.State - 1
		if idx >= len(leaves) {
			return modelerr.Newf(modelerr.CodeInvalidDefinition,
				"hierarchy %s: state %d on %s is outside 1..%d", t.root.Name, leaf.State, leaf.Name, len(leaves)).
				With("name", leaf.Name)
		}
		if prev := t.leaves[idx]; prev != nil {
			return modelerr.Newf(modelerr.CodeDuplicateIdentifier,
				"hierarchy %s: state %d is assigned to both %s and %s", t.root.Name, leaf.State, prev.Name, leaf.Name).
				With("state", strconv.Itoa(leaf.State))
		}
		t.leaves[idx] = leaf
	}
	return nil
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.root
}

// Name returns the root label.
func (t *Tree) Name() string {
	return t.root.Name
}

// Lookup finds a node by name.
func (t *Tree) Lookup(name string) (*Node, bool) {
	node, ok := t.byName[strings.TrimSpace(name)]
	return node, ok
}

// Leaf returns the leaf carrying state.
func (t *Tree) Leaf(state int) (*Node, bool) {
	if state < 1 || state > len(t.leaves) {
		return nil, false
	}
	return t.leaves[state-1], true
}

// Leaves returns the leaves ordered by state.
func (t *Tree) Leaves() []*Node {
	out := make([]*Node, len(t.leaves))
	copy(out, t.leaves)
	return out
}

// LeafCount is the number of behavioural states.
func (t *Tree) LeafCount() int {
	return len(t.leaves)
}

// StateNames returns leaf names indexed by state-1.
func (t *Tree) StateNames() []string {
	names := make([]string, len(t.leaves))
	for i, leaf := range t.leaves {
		names[i] = leaf.Name
	}
	return names
}

// Names returns every node name in depth-first order.
func (t *Tree) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// NonLeafNames returns the internal node names (root included) in depth-first order.
func (t *Tree) NonLeafNames() []string {
	var out []string
	for _, name := range t.order {
		if !t.byName[name].IsLeaf() {
			out = append(out, name)
		}
	}
	return out
}

// IsLevel reports whether name is an internal node and can host observation streams.
func (t *Tree) IsLevel(name string) bool {
	node, ok := t.Lookup(name)
	return ok && !node.IsLeaf()
}

// Parent returns the name of the node's parent. The root has none.
func (t *Tree) Parent(name string) (string, bool) {
	p, ok := t.parent[strings.TrimSpace(name)]
	return p, ok
}

// Path returns the names from the root down to name.
func (t *Tree) Path(name string) []string {
	name = strings.TrimSpace(name)
	if _, ok := t.byName[name]; !ok {
		return nil
	}
	var path []string
	for cur := name; ; {
		path = append(path, cur)
		p, ok := t.parent[cur]
		if !ok {
			break
		}
		cur = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// LeavesUnder returns the states of every leaf at or below name, ascending.
func (t *Tree) LeavesUnder(name string) []int {
	node, ok := t.Lookup(name)
	if !ok {
		return nil
	}
	var states []int
	collectStates(node, &states)
	sort.Ints(states)
	return states
}

func collectStates(n *Node, out *[]int) {
	if n.IsLeaf() {
		*out = append(*out, n.State)
		return
	}
	for _, child := range n.Children {
		collectStates(child, out)
	}
}

// SiblingIndex returns the 0-based position of the state's leaf among its parent's children.
func (t *Tree) SiblingIndex(state int) (int, bool) {
	leaf, ok := t.Leaf(state)
	if !ok {
		return 0, false
	}
	parent := t.byName[t.parent[leaf.Name]]
	for i, child := range parent.Children {
		if child == leaf {
			return i, true
		}
	}
	return 0, false
}

// Depth is the longest root-to-leaf edge count.
func (t *Tree) Depth() int {
	return t.maxDeep
}

// Walk visits every node depth-first, left to right. Returning false from fn
// skips the node's children.
func (t *Tree) Walk(fn func(n *Node, depth int) bool) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		if !fn(n, depth) {
			return
		}
		for _, child := range n.Children {
			visit(child, depth+1)
		}
	}
	visit(t.root, 0)
}

// Clone returns an independent copy of the tree.
func (t *Tree) Clone() *Tree {
	clone, err := Build(t.Spec())
	if err != nil {
		// a tree that built once always rebuilds from its own spec
		panic(fmt.Sprintf("hierarchy: clone %s: %v", t.root.Name, err))
	}
	return clone
}

// Spec returns the tree as a nested description with every state explicit.
func (t *Tree) Spec() Spec {
	var toSpec func(n *Node) Spec
	toSpec = func(n *Node) Spec {
		s := Spec{Name: n.Name, State: n.State}
		for _, child := range n.Children {
			s.Children = append(s.Children, toSpec(child))
		}
		return s
	}
	return toSpec(t.root)
}
