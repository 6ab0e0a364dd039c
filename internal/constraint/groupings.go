package constraint

import (
	"github.com/kingrea/hhmmkit/internal/distribution"
	"github.com/kingrea/hhmmkit/internal/hierarchy"
)

// Identity gives every state its own class.
func Identity(numStates int) [][]int {
	out := make([][]int, numStates)
	for i := range out {
		out[i] = []int{i + 1}
	}
	return out
}

// Shared puts every state in one class.
func Shared(numStates int) [][]int {
	if numStates < 1 {
		return nil
	}
	class := make([]int, numStates)
	for i := range class {
		class[i] = i + 1
	}
	return [][]int{class}
}

// BySiblingPosition groups states by their position among their siblings, so
// the k-th fine state under every coarse state shares a class. Positions no
// leaf occupies (a category sitting at that position) are dropped.
func BySiblingPosition(tree *hierarchy.Tree) [][]int {
	var out [][]int
	for state := 1; state <= tree.LeafCount(); state++ {
		idx, ok := tree.SiblingIndex(state)
		if !ok {
			continue
		}
		for len(out) <= idx {
			out = append(out, nil)
		}
		out[idx] = append(out[idx], state)
	}
	classes := out[:0]
	for _, class := range out {
		if len(class) > 0 {
			classes = append(classes, class)
		}
	}
	return classes
}

// Uniform applies the same classes to every parameter.
func Uniform(params []distribution.Param, classes [][]int) Groupings {
	out := make(Groupings, len(params))
	for _, param := range params {
		out[param] = cloneClasses(classes)
	}
	return out
}
