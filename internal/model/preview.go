package model

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
)

// PreviewRow summarises draws from one state's starting distribution.
type PreviewRow struct {
	Stream string
	Family string
	State  int
	Label  string
	Params []float64
	Mean   float64
	SD     float64
	Note   string
}

// Preview draws n observations per state for every stream with starting
// values and reports the sample moments. Streams without starting values or
// without a sampler get a row carrying only a note.
func (s *Spec) Preview(n int, seed uint64) ([]PreviewRow, error) {
	if n < 2 {
		return nil, fmt.Errorf("model: preview needs at least 2 draws, got %d", n)
	}
	var rows []PreviewRow
	draws := make([]float64, n)
	for idx, stream := range s.dists.Streams() {
		if !s.HasInitial(stream.Name) {
			rows = append(rows, PreviewRow{Stream: stream.Name, Family: stream.Family.Name(), Note: "no initial values"})
			continue
		}
		for _, leaf := range s.tree.Leaves() {
			values, _ := s.InitialValues(stream.Name, leaf.State)
			row := PreviewRow{
				Stream: stream.Name,
				Family: stream.Family.Name(),
				State:  leaf.State,
				Label:  leaf.Name,
				Params: values,
			}
			sampler, err := stream.Family.Sampler(values, rand.NewPCG(seed, uint64(idx)<<32|uint64(leaf.State)))
			if err != nil {
				row.Note = "no sampler"
				rows = append(rows, row)
				continue
			}
			for i := range draws {
				draws[i] = sampler.Rand()
			}
			row.Mean, row.SD = stat.MeanStdDev(draws, nil)
			rows = append(rows, row)
		}
	}
	return rows, nil
}
