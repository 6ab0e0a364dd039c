package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kingrea/hhmmkit/internal/hierarchy"
)

// Document is the serialisable form of a Spec handed to fitting tools.
type Document struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Hierarchy   hierarchy.Spec  `json:"hierarchy"`
	States      []StateDoc      `json:"states"`
	Levels      []LevelDoc      `json:"levels"`
	Constraints []ConstraintDoc `json:"constraints"`
}

// StateDoc describes one leaf state.
type StateDoc struct {
	State int      `json:"state"`
	Name  string   `json:"name"`
	Path  []string `json:"path"`
}

// LevelDoc lists the streams observed at one level.
type LevelDoc struct {
	Name    string      `json:"name"`
	Streams []StreamDoc `json:"streams"`
}

// StreamDoc is one stream with its family parameters.
type StreamDoc struct {
	Name   string   `json:"name"`
	Family string   `json:"dist"`
	Params []string `json:"params"`
	States []int    `json:"states"`
}

// ConstraintDoc is one stream's constraint matrix with labels and, when
// declared, the starting values of its free parameters.
type ConstraintDoc struct {
	Stream  string      `json:"stream"`
	Rows    []string    `json:"rows"`
	Cols    []string    `json:"cols"`
	Matrix  [][]float64 `json:"matrix"`
	Initial []float64   `json:"initial,omitempty"`
}

// Document renders the spec in a stable, fully ordered form.
func (s *Spec) Document() Document {
	doc := Document{
		ID:          s.def.ID,
		Name:        s.def.Name,
		Description: s.def.Description,
		Hierarchy:   s.tree.Spec(),
		States:      make([]StateDoc, 0, s.tree.LeafCount()),
		Levels:      []LevelDoc{},
		Constraints: []ConstraintDoc{},
	}
	for _, leaf := range s.tree.Leaves() {
		doc.States = append(doc.States, StateDoc{State: leaf.State, Name: leaf.Name, Path: s.tree.Path(leaf.Name)})
	}
	for _, name := range s.dists.LevelNames() {
		level, _ := s.dists.Level(name)
		ld := LevelDoc{Name: name, Streams: []StreamDoc{}}
		for _, stream := range level.Streams {
			sd := StreamDoc{Name: stream.Name, Family: stream.Family.Name(), States: s.dists.StatesFor(stream.Name)}
			for _, p := range stream.Family.Params() {
				sd.Params = append(sd.Params, p.String())
			}
			ld.Streams = append(ld.Streams, sd)
		}
		doc.Levels = append(doc.Levels, ld)
	}
	for _, stream := range s.StreamNames() {
		m := s.constraints[stream]
		cd := ConstraintDoc{Stream: stream, Rows: m.RowLabels(), Cols: m.ColLabels()}
		for r := 0; r < m.Rows(); r++ {
			row := make([]float64, m.Cols())
			for c := range row {
				row[c] = m.At(r, c)
			}
			cd.Matrix = append(cd.Matrix, row)
		}
		cd.Initial, _ = s.FreeInitial(stream)
		doc.Constraints = append(doc.Constraints, cd)
	}
	return doc
}

// MarshalJSON encodes the spec as its Document.
func (s *Spec) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Document())
}

// Fingerprint is a sha256 over the structural content of the spec. Display
// name and description do not contribute.
func (s *Spec) Fingerprint() string {
	doc := s.Document()
	doc.Name = ""
	doc.Description = ""
	data, err := json.Marshal(doc)
	if err != nil {
		// Document holds only strings, ints and finite floats
		panic(fmt.Sprintf("model: fingerprint %s: %v", s.def.ID, err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
