// Package distribution holds the observation side of a hierarchical HMM: the
// catalog of emission families and the map assigning data streams to the
// levels of a state hierarchy.
package distribution

import (
	"strings"

	"github.com/kingrea/hhmmkit/internal/hierarchy"
	"github.com/kingrea/hhmmkit/internal/modelerr"
)

// StreamSpec declares one data stream and its family.
type StreamSpec struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	Family string `json:"dist" yaml:"dist" validate:"required"`
}

// LevelSpec declares the streams observed at one hierarchy level.
type LevelSpec struct {
	Level   string       `json:"level" yaml:"level" validate:"required"`
	Streams []StreamSpec `json:"streams,omitempty" yaml:"streams,omitempty" validate:"dive"`
}

// Stream is a resolved data stream.
type Stream struct {
	Name   string
	Level  string
	Family Family
}

// Node mirrors one category of the hierarchy.
type Node struct {
	Name     string
	Streams  []Stream
	Children []*Node
}

// Map is the immutable observation distribution tree for one hierarchy.
type Map struct {
	root     *Node
	levels   map[string]*Node
	order    []string
	streams  []Stream
	byStream map[string]int
	tree     *hierarchy.Tree
}

// Build resolves levels against tree and families against reg. Nothing is
// returned unless every declaration is valid.
func Build(tree *hierarchy.Tree, reg *Registry, levels []LevelSpec) (*Map, error) {
	if tree == nil {
		return nil, modelerr.New(modelerr.CodeInvalidDefinition, "distribution: state hierarchy is required")
	}
	if reg == nil {
		reg = Default()
	}
	declared := make(map[string][]Stream, len(levels))
	streamLevel := map[string]string{}
	for _, spec := range levels {
		level := strings.TrimSpace(spec.Level)
		if !tree.IsLevel(level) {
			return nil, unknownLevel(tree, level)
		}
		if _, dup := declared[level]; dup {
			return nil, modelerr.Newf(modelerr.CodeDuplicateIdentifier, "distribution: level %s is declared more than once", level).
				With("level", level)
		}
		streams := make([]Stream, 0, len(spec.Streams))
		for _, s := range spec.Streams {
			name := strings.TrimSpace(s.Name)
			if name == "" {
				return nil, modelerr.Newf(modelerr.CodeInvalidDefinition, "distribution: level %s has a stream with no name", level).
					With("level", level)
			}
			if other, dup := streamLevel[name]; dup {
				return nil, modelerr.Newf(modelerr.CodeDuplicateIdentifier, "distribution: stream %s is declared at %s and %s", name, other, level).
					With("stream", name)
			}
			family, err := reg.Resolve(s.Family)
			if err != nil {
				if me, ok := err.(*modelerr.Error); ok {
					me.With("stream", name).With("level", level)
				}
				return nil, err
			}
			streamLevel[name] = level
			streams = append(streams, Stream{Name: name, Level: level, Family: family})
		}
		declared[level] = streams
	}

	m := &Map{
		levels:   map[string]*Node{},
		byStream: map[string]int{},
		tree:     tree,
	}
	m.root = &Node{Name: tree.Name(), Streams: declared[tree.Name()]}
	m.levels[m.root.Name] = m.root
	m.order = append(m.order, m.root.Name)
	m.mirror(tree.Root(), m.root, declared)
	for _, name := range m.order {
		for _, s := range m.levels[name].Streams {
			m.byStream[s.Name] = len(m.streams)
			m.streams = append(m.streams, s)
		}
	}
	return m, nil
}

// mirror copies the category structure of the hierarchy. Categories without
// declared streams are kept with an empty stream list.
func (m *Map) mirror(h *hierarchy.Node, attach *Node, declared map[string][]Stream) {
	for _, child := range h.Children {
		if child.IsLeaf() {
			continue
		}
		node := &Node{Name: child.Name, Streams: declared[child.Name]}
		attach.Children = append(attach.Children, node)
		m.levels[child.Name] = node
		m.order = append(m.order, child.Name)
		m.mirror(child, node, declared)
	}
}

func unknownLevel(tree *hierarchy.Tree, level string) error {
	err := modelerr.Newf(modelerr.CodeUnknownLevel, "distribution: level %q is not a category of hierarchy %s", level, tree.Name()).
		With("level", level)
	if node, ok := tree.Lookup(level); ok && node.IsLeaf() {
		err.WithSuggestion(level + " is a state; streams attach to the category above it")
	}
	return err.WithSuggestion(modelerr.DidYouMean(level, tree.NonLeafNames())...)
}

// Root returns the distribution node mirroring the hierarchy root.
func (m *Map) Root() *Node {
	return m.root
}

// LevelNames returns every level, root first, in hierarchy depth-first order.
func (m *Map) LevelNames() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Level returns a level node.
func (m *Map) Level(name string) (*Node, bool) {
	node, ok := m.levels[name]
	return node, ok
}

// Streams returns every stream, level by level.
func (m *Map) Streams() []Stream {
	out := make([]Stream, len(m.streams))
	copy(out, m.streams)
	return out
}

// Stream looks a stream up by name.
func (m *Map) Stream(name string) (Stream, bool) {
	idx, ok := m.byStream[name]
	if !ok {
		return Stream{}, false
	}
	return m.streams[idx], true
}

// ParamCount sums the per-state parameter counts of a level's streams.
func (m *Map) ParamCount(level string) int {
	node, ok := m.levels[level]
	if !ok {
		return 0
	}
	total := 0
	for _, s := range node.Streams {
		total += s.Family.ParamCount()
	}
	return total
}

// StatesFor returns the states that emit the stream: every leaf under its level.
func (m *Map) StatesFor(stream string) []int {
	s, ok := m.Stream(stream)
	if !ok {
		return nil
	}
	return m.tree.LeavesUnder(s.Level)
}

// Hierarchy returns the tree the map was built against.
func (m *Map) Hierarchy() *hierarchy.Tree {
	return m.tree
}
