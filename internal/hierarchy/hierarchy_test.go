package hierarchy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/hhmmkit/internal/modelerr"
)

func leaves(names ...string) []Spec {
	out := make([]Spec, len(names))
	for i, n := range names {
		out[i] = Spec{Name: n}
	}
	return out
}

func twoCategorySpec() Spec {
	return Spec{
		Name: "X",
		Children: []Spec{
			{Name: "A", Children: leaves("a1", "a2", "a3")},
			{Name: "B", Children: leaves("b1", "b2", "b3")},
		},
	}
}

func TestBuildNumbersLeavesDepthFirst(t *testing.T) {
	tree, err := Build(twoCategorySpec())
	require.NoError(t, err)

	require.Equal(t, 6, tree.LeafCount())
	assert.Equal(t, []string{"a1", "a2", "a3", "b1", "b2", "b3"}, tree.StateNames())
	seen := map[int]bool{}
	for _, leaf := range tree.Leaves() {
		assert.False(t, seen[leaf.State], "state %d repeated", leaf.State)
		seen[leaf.State] = true
	}
	for s := 1; s <= 6; s++ {
		assert.True(t, seen[s], "state %d missing", s)
	}
	assert.Equal(t, []string{"X", "A", "B"}, tree.NonLeafNames())
	assert.Equal(t, 2, tree.Depth())
}

func TestBuildRejectsDuplicateLeafNameAcrossCategories(t *testing.T) {
	spec := Spec{
		Name: "X",
		Children: []Spec{
			{Name: "A", Children: leaves("rest", "forage", "travel")},
			{Name: "B", Children: leaves("rest", "dive", "surface")},
		},
	}
	tree, err := Build(spec)
	assert.Nil(t, tree)
	require.Error(t, err)
	assert.True(t, errors.Is(err, modelerr.ErrDuplicateIdentifier))
}

func TestBuildRejectsCategoryNamedLikeLeaf(t *testing.T) {
	spec := Spec{
		Name: "X",
		Children: []Spec{
			{Name: "A", Children: leaves("B", "a2")},
			{Name: "B", Children: leaves("b1")},
		},
	}
	_, err := Build(spec)
	assert.True(t, errors.Is(err, modelerr.ErrDuplicateIdentifier))
}

func TestBuildExplicitStates(t *testing.T) {
	spec := Spec{
		Name: "X",
		Children: []Spec{
			{Name: "A", Children: []Spec{{Name: "a1", State: 2}, {Name: "a2", State: 1}}},
			{Name: "B", Children: []Spec{{Name: "b1", State: 3}}},
		},
	}
	tree, err := Build(spec)
	require.NoError(t, err)
	leaf, ok := tree.Leaf(1)
	require.True(t, ok)
	assert.Equal(t, "a2", leaf.Name)
	assert.Equal(t, []string{"a2", "a1", "b1"}, tree.StateNames())
}

func TestBuildExplicitStateErrors(t *testing.T) {
	cases := []struct {
		name string
		spec Spec
		want error
	}{
		{
			name: "duplicate state",
			spec: Spec{Name: "X", Children: []Spec{{Name: "a", State: 1}, {Name: "b", State: 1}}},
			want: modelerr.ErrDuplicateIdentifier,
		},
		{
			name: "gap in states",
			spec: Spec{Name: "X", Children: []Spec{{Name: "a", State: 1}, {Name: "b", State: 3}}},
			want: modelerr.ErrInvalidDefinition,
		},
		{
			name: "mixed numbering",
			spec: Spec{Name: "X", Children: []Spec{{Name: "a", State: 1}, {Name: "b"}}},
			want: modelerr.ErrInvalidDefinition,
		},
		{
			name: "state on category",
			spec: Spec{Name: "X", Children: []Spec{{Name: "A", State: 1, Children: leaves("a")}}},
			want: modelerr.ErrInvalidDefinition,
		},
		{
			name: "negative state",
			spec: Spec{Name: "X", Children: []Spec{{Name: "a", State: -1}}},
			want: modelerr.ErrInvalidDefinition,
		},
		{
			name: "empty root",
			spec: Spec{Name: "  "},
			want: modelerr.ErrInvalidDefinition,
		},
		{
			name: "no states",
			spec: Spec{Name: "X"},
			want: modelerr.ErrInvalidDefinition,
		},
		{
			name: "empty child name",
			spec: Spec{Name: "X", Children: []Spec{{Name: ""}}},
			want: modelerr.ErrInvalidDefinition,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestTreeLookupsAndPaths(t *testing.T) {
	spec := Spec{
		Name: "porpoise",
		Children: []Spec{
			{Name: "coarse1", Children: []Spec{
				{Name: "resting", Children: leaves("r1", "r2")},
				{Name: "f1"},
			}},
			{Name: "coarse2", Children: leaves("f2", "f3")},
		},
	}
	tree, err := Build(spec)
	require.NoError(t, err)

	assert.Equal(t, []string{"porpoise", "coarse1", "resting", "r1"}, tree.Path("r1"))
	assert.Nil(t, tree.Path("missing"))
	assert.Equal(t, []int{1, 2, 3}, tree.LeavesUnder("coarse1"))
	assert.Equal(t, []int{4, 5}, tree.LeavesUnder("coarse2"))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, tree.LeavesUnder("porpoise"))
	assert.True(t, tree.IsLevel("resting"))
	assert.False(t, tree.IsLevel("r1"))
	assert.False(t, tree.IsLevel("nope"))
	assert.Equal(t, 3, tree.Depth())

	parent, ok := tree.Parent("f3")
	require.True(t, ok)
	assert.Equal(t, "coarse2", parent)
	_, ok = tree.Parent("porpoise")
	assert.False(t, ok)

	idx, ok := tree.SiblingIndex(5)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestWalkCanPrune(t *testing.T) {
	tree, err := Build(twoCategorySpec())
	require.NoError(t, err)
	var visited []string
	tree.Walk(func(n *Node, depth int) bool {
		visited = append(visited, n.Name)
		return n.Name != "A"
	})
	assert.Equal(t, []string{"X", "A", "B", "b1", "b2", "b3"}, visited)
}

func TestCloneIsIndependent(t *testing.T) {
	tree, err := Build(twoCategorySpec())
	require.NoError(t, err)
	clone := tree.Clone()
	clone.Root().Children[0].Name = "changed"
	assert.Equal(t, "A", tree.Root().Children[0].Name)
	assert.Equal(t, tree.StateNames(), clone.StateNames())

	leavesCopy := tree.Leaves()
	leavesCopy[0] = nil
	first, _ := tree.Leaf(1)
	assert.NotNil(t, first)
}

func TestSpecRoundTripKeepsStates(t *testing.T) {
	tree, err := Build(twoCategorySpec())
	require.NoError(t, err)
	again, err := Build(tree.Spec())
	require.NoError(t, err)
	assert.Equal(t, tree.StateNames(), again.StateNames())
}
