// Package constraint builds the 0/1 design matrices that tie raw per-state
// emission parameters to a reduced set of free parameters.
//
// Rows are state-major and parameter-minor: the row for state s and the p-th
// parameter is (s-1)*P + p. Columns are parameter-major and class-minor: every
// class of params[0], then every class of params[1], and so on.
package constraint

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kingrea/hhmmkit/internal/distribution"
	"github.com/kingrea/hhmmkit/internal/modelerr"
)

// Groupings lists, per parameter, the equality classes of 1-based states.
type Groupings map[distribution.Param][][]int

// Clone returns a deep copy.
func (g Groupings) Clone() Groupings {
	if g == nil {
		return nil
	}
	out := make(Groupings, len(g))
	for param, classes := range g {
		out[param] = cloneClasses(classes)
	}
	return out
}

func cloneClasses(classes [][]int) [][]int {
	out := make([][]int, len(classes))
	for i, class := range classes {
		out[i] = append([]int(nil), class...)
	}
	return out
}

// Matrix is an immutable constraint matrix for one data stream.
type Matrix struct {
	numStates int
	params    []distribution.Param
	classes   [][][]int
	colStart  []int
	colParam  []int
	colClass  []int
	dense     *mat.Dense
}

// Build assembles the matrix. Every parameter must have a grouping that
// partitions {1..numStates}; anything else is a GroupingMismatch.
func Build(numStates int, params []distribution.Param, groups Groupings) (*Matrix, error) {
	if numStates < 1 {
		return nil, modelerr.Newf(modelerr.CodeGroupingMismatch, "constraint: state count must be positive, got %d", numStates)
	}
	if len(params) == 0 {
		return nil, modelerr.New(modelerr.CodeInvalidDefinition, "constraint: at least one parameter is required")
	}
	seen := make(map[distribution.Param]bool, len(params))
	for _, param := range params {
		if seen[param] {
			return nil, modelerr.Newf(modelerr.CodeDuplicateIdentifier, "constraint: parameter %s listed twice", param).
				With("param", param.String())
		}
		seen[param] = true
	}
	for param := range groups {
		if !seen[param] {
			return nil, modelerr.Newf(modelerr.CodeGroupingMismatch, "constraint: grouping given for %s, which is not a parameter of this stream", param).
				With("param", param.String())
		}
	}

	m := &Matrix{
		numStates: numStates,
		params:    append([]distribution.Param(nil), params...),
		classes:   make([][][]int, len(params)),
		colStart:  make([]int, len(params)),
	}
	cols := 0
	for p, param := range params {
		classes, ok := groups[param]
		if !ok {
			return nil, modelerr.Newf(modelerr.CodeGroupingMismatch, "constraint: no grouping for %s", param).
				With("param", param.String())
		}
		if err := checkPartition(numStates, param, classes); err != nil {
			return nil, err
		}
		m.classes[p] = cloneClasses(classes)
		m.colStart[p] = cols
		for c := range classes {
			m.colParam = append(m.colParam, p)
			m.colClass = append(m.colClass, c)
		}
		cols += len(classes)
	}

	m.dense = mat.NewDense(numStates*len(params), cols, nil)
	for p, classes := range m.classes {
		for c, class := range classes {
			for _, state := range class {
				m.dense.Set(m.row(state, p), m.colStart[p]+c, 1)
			}
		}
	}
	return m, nil
}

func checkPartition(numStates int, param distribution.Param, classes [][]int) error {
	mismatch := func(format string, args ...any) error {
		return modelerr.Newf(modelerr.CodeGroupingMismatch, "constraint: %s: "+format, append([]any{param}, args...)...).
			With("param", param.String())
	}
	if len(classes) == 0 {
		return mismatch("no equality classes")
	}
	owner := make([]int, numStates+1)
	for c, class := range classes {
		if len(class) == 0 {
			return mismatch("class %d is empty", c+1)
		}
		for _, state := range class {
			if state < 1 || state > numStates {
				return mismatch("state %d is outside 1..%d", state, numStates)
			}
			if owner[state] != 0 {
				return mismatch("state %d appears in class %d and class %d", state, owner[state], c+1)
			}
			owner[state] = c + 1
		}
	}
	var missing []string
	for state := 1; state <= numStates; state++ {
		if owner[state] == 0 {
			missing = append(missing, strconv.Itoa(state))
		}
	}
	if len(missing) > 0 {
		return mismatch("states %s are not in any class", strings.Join(missing, ", "))
	}
	return nil
}

func (m *Matrix) row(state, p int) int {
	return (state-1)*len(m.params) + p
}

// Rows is numStates * len(params).
func (m *Matrix) Rows() int {
	r, _ := m.dense.Dims()
	return r
}

// Cols is the total number of equality classes across parameters.
func (m *Matrix) Cols() int {
	_, c := m.dense.Dims()
	return c
}

// NumStates returns the state count the matrix was built for.
func (m *Matrix) NumStates() int {
	return m.numStates
}

// Params returns the parameter order.
func (m *Matrix) Params() []distribution.Param {
	return append([]distribution.Param(nil), m.params...)
}

// Classes returns the equality classes of a parameter.
func (m *Matrix) Classes(param distribution.Param) ([][]int, bool) {
	p := m.paramIndex(param)
	if p < 0 {
		return nil, false
	}
	return cloneClasses(m.classes[p]), true
}

// At returns entry (r, c).
func (m *Matrix) At(r, c int) float64 {
	return m.dense.At(r, c)
}

// RowLabel names a row "<param>_<state>", e.g. "mean_3".
func (m *Matrix) RowLabel(r int) string {
	p := r % len(m.params)
	state := r/len(m.params) + 1
	return m.params[p].String() + "_" + strconv.Itoa(state)
}

// ColLabel names a column "<param>:<states>", e.g. "mean:1.4".
func (m *Matrix) ColLabel(c int) string {
	p, class := m.colParam[c], m.colClass[c]
	members := m.classes[p][class]
	parts := make([]string, len(members))
	for i, state := range members {
		parts[i] = strconv.Itoa(state)
	}
	return m.params[p].String() + ":" + strings.Join(parts, ".")
}

// RowLabels returns every row label in order.
func (m *Matrix) RowLabels() []string {
	out := make([]string, m.Rows())
	for r := range out {
		out[r] = m.RowLabel(r)
	}
	return out
}

// ColLabels returns every column label in order.
func (m *Matrix) ColLabels() []string {
	out := make([]string, m.Cols())
	for c := range out {
		out[c] = m.ColLabel(c)
	}
	return out
}

// Block returns the numStates x classes sub-matrix for one parameter.
func (m *Matrix) Block(param distribution.Param) (*mat.Dense, error) {
	p := m.paramIndex(param)
	if p < 0 {
		return nil, fmt.Errorf("constraint: %s is not a parameter of this matrix", param)
	}
	classes := len(m.classes[p])
	block := mat.NewDense(m.numStates, classes, nil)
	for state := 1; state <= m.numStates; state++ {
		for c := 0; c < classes; c++ {
			block.Set(state-1, c, m.dense.At(m.row(state, p), m.colStart[p]+c))
		}
	}
	return block, nil
}

// Expand maps free parameters to raw per-state parameters: raw = M * free.
func (m *Matrix) Expand(free []float64) ([]float64, error) {
	if len(free) != m.Cols() {
		return nil, fmt.Errorf("constraint: expand: %d free values for %d columns", len(free), m.Cols())
	}
	var raw mat.VecDense
	raw.MulVec(m.dense, mat.NewVecDense(len(free), append([]float64(nil), free...)))
	return mat.Col(nil, 0, &raw), nil
}

// Dense returns a copy of the underlying matrix.
func (m *Matrix) Dense() *mat.Dense {
	return mat.DenseCopyOf(m.dense)
}

// Check verifies that every row sums to one and that the rows of each column
// belong to the column's parameter and class.
func (m *Matrix) Check() error {
	rows, cols := m.dense.Dims()
	buf := make([]float64, cols)
	for r := 0; r < rows; r++ {
		mat.Row(buf, r, m.dense)
		if sum := floats.Sum(buf); sum != 1 {
			return modelerr.Newf(modelerr.CodeGroupingMismatch, "constraint: row %s sums to %g", m.RowLabel(r), sum).
				With("row", m.RowLabel(r))
		}
	}
	col := make([]float64, rows)
	for c := 0; c < cols; c++ {
		mat.Col(col, c, m.dense)
		p, class := m.colParam[c], m.colClass[c]
		members := map[int]bool{}
		for _, state := range m.classes[p][class] {
			members[state] = true
		}
		for r, v := range col {
			if v == 0 {
				continue
			}
			if r%len(m.params) != p || !members[r/len(m.params)+1] {
				return modelerr.Newf(modelerr.CodeGroupingMismatch, "constraint: column %s reaches row %s", m.ColLabel(c), m.RowLabel(r)).
					With("column", m.ColLabel(c))
			}
		}
	}
	return nil
}

func (m *Matrix) paramIndex(param distribution.Param) int {
	for i, candidate := range m.params {
		if candidate == param {
			return i
		}
	}
	return -1
}
