// Package model assembles a complete hierarchical HMM specification from a
// declarative definition: the state hierarchy, the observation distribution
// map and one constraint matrix per data stream, checked against each other.
package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kingrea/hhmmkit/internal/constraint"
	"github.com/kingrea/hhmmkit/internal/distribution"
	"github.com/kingrea/hhmmkit/internal/hierarchy"
	"github.com/kingrea/hhmmkit/internal/modelerr"
)

// Spec is a validated, immutable model specification.
type Spec struct {
	def         Definition
	tree        *hierarchy.Tree
	dists       *distribution.Map
	constraints map[string]*constraint.Matrix
	initial     map[string][]float64 // stream -> raw values in matrix row order
}

// Build turns a definition into a Spec. A nil registry uses the built-in
// family catalog.
func Build(def Definition, reg *distribution.Registry) (*Spec, error) {
	def, err := def.Normalized()
	if err != nil {
		return nil, err
	}
	tree, err := hierarchy.Build(def.Hierarchy)
	if err != nil {
		return nil, annotate(err, def.ID)
	}
	dists, err := distribution.Build(tree, reg, def.Distributions)
	if err != nil {
		return nil, annotate(err, def.ID)
	}
	for stream := range def.Constraints {
		if _, ok := dists.Stream(stream); !ok {
			return nil, unknownStream(def.ID, "constraints", stream, dists)
		}
	}
	for stream := range def.Initial {
		if _, ok := dists.Stream(stream); !ok {
			return nil, unknownStream(def.ID, "initial", stream, dists)
		}
	}

	spec := &Spec{
		def:         def,
		tree:        tree,
		dists:       dists,
		constraints: make(map[string]*constraint.Matrix),
		initial:     make(map[string][]float64),
	}
	for _, stream := range dists.Streams() {
		groups, err := resolveGroupings(tree, stream, def.Constraints[stream.Name])
		if err != nil {
			return nil, annotate(err, def.ID)
		}
		m, err := constraint.Build(tree.LeafCount(), stream.Family.Params(), groups)
		if err != nil {
			return nil, annotate(withStream(err, stream.Name), def.ID)
		}
		spec.constraints[stream.Name] = m

		if values, ok := def.Initial[stream.Name]; ok {
			raw, err := resolveInitial(tree, stream, m, values)
			if err != nil {
				return nil, annotate(err, def.ID)
			}
			spec.initial[stream.Name] = raw
		}
	}
	if err := Check(tree, dists, spec.constraints); err != nil {
		return nil, annotate(err, def.ID)
	}
	return spec, nil
}

// Check verifies that a hierarchy, distribution map and constraint matrices
// agree: same level names, one matrix per stream over every state, and matrix
// parameters in family order.
func Check(tree *hierarchy.Tree, dists *distribution.Map, constraints map[string]*constraint.Matrix) error {
	if tree == nil || dists == nil {
		return modelerr.New(modelerr.CodeInconsistentSpec, "model: hierarchy and distribution map are required")
	}
	want := tree.NonLeafNames()
	got := dists.LevelNames()
	sort.Strings(want)
	sort.Strings(got)
	if strings.Join(want, "\x00") != strings.Join(got, "\x00") {
		return modelerr.Newf(modelerr.CodeInconsistentSpec, "model: distribution levels [%s] do not match hierarchy levels [%s]",
			strings.Join(got, ", "), strings.Join(want, ", "))
	}
	for _, stream := range dists.Streams() {
		m, ok := constraints[stream.Name]
		if !ok {
			return modelerr.Newf(modelerr.CodeInconsistentSpec, "model: stream %s has no constraint matrix", stream.Name).
				With("stream", stream.Name)
		}
		if m.NumStates() != tree.LeafCount() {
			return modelerr.Newf(modelerr.CodeInconsistentSpec, "model: constraint matrix for %s covers %d states, hierarchy has %d",
				stream.Name, m.NumStates(), tree.LeafCount()).
				With("stream", stream.Name)
		}
		if !sameParams(m.Params(), stream.Family.Params()) {
			return modelerr.Newf(modelerr.CodeInconsistentSpec, "model: constraint matrix for %s does not follow the %s parameters",
				stream.Name, stream.Family.Name()).
				With("stream", stream.Name)
		}
		if err := m.Check(); err != nil {
			return withStream(err, stream.Name)
		}
	}
	for name := range constraints {
		if _, ok := dists.Stream(name); !ok {
			return modelerr.Newf(modelerr.CodeInconsistentSpec, "model: constraint matrix for undeclared stream %s", name).
				With("stream", name)
		}
	}
	return nil
}

func sameParams(a, b []distribution.Param) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func resolveGroupings(tree *hierarchy.Tree, stream distribution.Stream, declared StreamConstraints) (constraint.Groupings, error) {
	n := tree.LeafCount()
	groups := make(constraint.Groupings, stream.Family.ParamCount())
	for _, param := range stream.Family.Params() {
		groups[param] = constraint.Identity(n)
	}
	for name, grouping := range declared {
		param, ok := stream.Family.ParseParam(name)
		if !ok {
			names := make([]string, 0, stream.Family.ParamCount())
			for _, p := range stream.Family.Params() {
				names = append(names, p.String())
			}
			return nil, modelerr.Newf(modelerr.CodeInvalidDefinition, "constraint %s.%s: %s has no parameter %q",
				stream.Name, name, stream.Family.Name(), name).
				With("stream", stream.Name).
				With("param", name).
				WithSuggestion(modelerr.DidYouMean(name, names)...).
				WithSuggestion(fmt.Sprintf("%s parameters: %s", stream.Family.Name(), strings.Join(names, ", ")))
		}
		classes, err := groupingClasses(tree, grouping)
		if err != nil {
			return nil, withStream(err, stream.Name).With("param", name)
		}
		groups[param] = classes
	}
	return groups, nil
}

func groupingClasses(tree *hierarchy.Tree, g Grouping) ([][]int, error) {
	switch g.Strategy {
	case StrategyIdentity:
		return constraint.Identity(tree.LeafCount()), nil
	case StrategyShared:
		return constraint.Shared(tree.LeafCount()), nil
	case StrategySibling:
		return constraint.BySiblingPosition(tree), nil
	case "":
	default:
		return nil, modelerr.Newf(modelerr.CodeInvalidDefinition, "unknown grouping strategy %q", g.Strategy).
			WithSuggestion(modelerr.DidYouMean(g.Strategy, []string{StrategyIdentity, StrategyShared, StrategySibling})...)
	}
	out := make([][]int, len(g.Classes))
	for i, class := range g.Classes {
		out[i] = make([]int, 0, len(class))
		for _, member := range class {
			state, err := stateRef(tree, member)
			if err != nil {
				return nil, err
			}
			out[i] = append(out[i], state)
		}
	}
	return out, nil
}

// stateRef resolves a class member given as a state number or a leaf name.
// Numbers outside the state range pass through so the partition check reports them.
func stateRef(tree *hierarchy.Tree, member string) (int, error) {
	member = strings.TrimSpace(member)
	if n, err := strconv.Atoi(member); err == nil {
		return n, nil
	}
	node, ok := tree.Lookup(member)
	if ok && node.IsLeaf() {
		return node.State, nil
	}
	err := modelerr.Newf(modelerr.CodeGroupingMismatch, "class member %q is not a state of %s", member, tree.Name()).
		With("member", member)
	if ok {
		err.WithSuggestion(fmt.Sprintf("%s is a category; list its states %v instead", member, tree.LeavesUnder(member)))
	}
	return 0, err.WithSuggestion(modelerr.DidYouMean(member, tree.StateNames())...)
}

// resolveInitial checks per-state starting values and lays them out in
// matrix row order. States tied by a constraint must start equal.
func resolveInitial(tree *hierarchy.Tree, stream distribution.Stream, m *constraint.Matrix, values map[string][]float64) ([]float64, error) {
	params := stream.Family.Params()
	n := tree.LeafCount()
	raw := make([]float64, n*len(params))
	for name := range values {
		if _, ok := stream.Family.ParseParam(name); !ok {
			return nil, modelerr.Newf(modelerr.CodeInvalidParameter, "initial %s.%s: %s has no such parameter", stream.Name, name, stream.Family.Name()).
				With("stream", stream.Name).
				With("param", name)
		}
	}
	for p, param := range params {
		column, ok := values[param.String()]
		if !ok {
			return nil, modelerr.Newf(modelerr.CodeInvalidParameter, "initial %s: missing values for %s", stream.Name, param).
				With("stream", stream.Name).
				With("param", param.String())
		}
		if len(column) != n {
			return nil, modelerr.Newf(modelerr.CodeInvalidParameter, "initial %s.%s: %d values for %d states", stream.Name, param, len(column), n).
				With("stream", stream.Name).
				With("param", param.String())
		}
		for s, v := range column {
			raw[s*len(params)+p] = v
		}
	}
	for state := 1; state <= n; state++ {
		start := (state - 1) * len(params)
		if err := stream.Family.CheckValues(raw[start : start+len(params)]); err != nil {
			return nil, withStream(err, stream.Name).With("state", strconv.Itoa(state))
		}
	}
	for _, param := range params {
		classes, _ := m.Classes(param)
		column := values[param.String()]
		for _, class := range classes {
			first := class[0]
			for _, state := range class[1:] {
				if column[state-1] != column[first-1] {
					return nil, modelerr.Newf(modelerr.CodeInvalidParameter,
						"initial %s.%s: states %d and %d share a class but start at %g and %g",
						stream.Name, param, first, state, column[first-1], column[state-1]).
						With("stream", stream.Name).
						With("param", param.String())
				}
			}
		}
	}
	return raw, nil
}

func unknownStream(id, section, stream string, dists *distribution.Map) error {
	names := make([]string, 0)
	for _, s := range dists.Streams() {
		names = append(names, s.Name)
	}
	return modelerr.Newf(modelerr.CodeInvalidDefinition, "model %s: %s refers to undeclared stream %s", id, section, stream).
		With("stream", stream).
		WithSuggestion(modelerr.DidYouMean(stream, names)...)
}

func withStream(err error, stream string) *modelerr.Error {
	me, ok := err.(*modelerr.Error)
	if !ok {
		return modelerr.New(modelerr.CodeInvalidDefinition, err.Error()).WithCause(err).With("stream", stream)
	}
	return me.With("stream", stream)
}

func annotate(err error, id string) error {
	if me, ok := err.(*modelerr.Error); ok {
		me.With("model", id)
	}
	return err
}

// ID returns the model identifier.
func (s *Spec) ID() string {
	return s.def.ID
}

// Name returns the display name.
func (s *Spec) Name() string {
	return s.def.Name
}

// Description returns the free-form description.
func (s *Spec) Description() string {
	return s.def.Description
}

// Definition returns a copy of the normalized source definition.
func (s *Spec) Definition() Definition {
	return s.def.Clone()
}

// Hierarchy returns the state tree.
func (s *Spec) Hierarchy() *hierarchy.Tree {
	return s.tree
}

// Distributions returns the observation distribution map.
func (s *Spec) Distributions() *distribution.Map {
	return s.dists
}

// Constraint returns the matrix of one stream.
func (s *Spec) Constraint(stream string) (*constraint.Matrix, bool) {
	m, ok := s.constraints[stream]
	return m, ok
}

// StreamNames lists streams in map order.
func (s *Spec) StreamNames() []string {
	streams := s.dists.Streams()
	out := make([]string, len(streams))
	for i, stream := range streams {
		out[i] = stream.Name
	}
	return out
}

// HasInitial reports whether starting values were declared for the stream.
func (s *Spec) HasInitial(stream string) bool {
	_, ok := s.initial[stream]
	return ok
}

// InitialValues returns one state's starting parameters in family order.
func (s *Spec) InitialValues(stream string, state int) ([]float64, bool) {
	raw, ok := s.initial[stream]
	if !ok || state < 1 || state > s.tree.LeafCount() {
		return nil, false
	}
	width := len(raw) / s.tree.LeafCount()
	start := (state - 1) * width
	return append([]float64(nil), raw[start:start+width]...), true
}

// FreeInitial returns the starting value of each free parameter, in column
// order, such that the matrix expands it back to the per-state values.
func (s *Spec) FreeInitial(stream string) ([]float64, bool) {
	raw, ok := s.initial[stream]
	if !ok {
		return nil, false
	}
	m := s.constraints[stream]
	free := make([]float64, 0, m.Cols())
	params := m.Params()
	for p, param := range params {
		classes, _ := m.Classes(param)
		for _, class := range classes {
			free = append(free, raw[(class[0]-1)*len(params)+p])
		}
	}
	return free, true
}

// FreeParamCount is the total number of constraint matrix columns.
func (s *Spec) FreeParamCount() int {
	total := 0
	for _, m := range s.constraints {
		total += m.Cols()
	}
	return total
}

// RawParamCount is the total number of constraint matrix rows.
func (s *Spec) RawParamCount() int {
	total := 0
	for _, m := range s.constraints {
		total += m.Rows()
	}
	return total
}

// Summary is a one-line description for listings.
func (s *Spec) Summary() string {
	levels := 0
	for _, name := range s.dists.LevelNames() {
		if level, _ := s.dists.Level(name); len(level.Streams) > 0 {
			levels++
		}
	}
	return fmt.Sprintf("%s: %d states, depth %d, %d streams over %d levels, %d free of %d parameters",
		s.def.ID, s.tree.LeafCount(), s.tree.Depth(), len(s.constraints), levels, s.FreeParamCount(), s.RawParamCount())
}
