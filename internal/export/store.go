package export

import (
	"bytes"
	"strconv"

	"github.com/kingrea/hhmmkit/internal/artifact"
	"github.com/kingrea/hhmmkit/internal/model"
)

// Tool is recorded as the producer in artifact metadata.
const Tool = "hhmm"

// WriteAll exports the spec JSON, one design matrix per stream, the R script
// and the summary into store. Artifacts already produced from the same
// fingerprint are left alone unless force is set. It returns the paths written.
func WriteAll(store *artifact.Store, spec *model.Spec, force bool) ([]string, error) {
	fingerprint := spec.Fingerprint()
	meta := artifact.Metadata{
		Fingerprint: fingerprint,
		Tool:        Tool,
		Notes: map[string]string{
			"states":  strconv.Itoa(spec.Hierarchy().LeafCount()),
			"streams": strconv.Itoa(len(spec.StreamNames())),
			"free":    strconv.Itoa(spec.FreeParamCount()),
		},
	}
	var written []string
	write := func(ref artifact.ArtifactRef, target artifact.Target, render func(*bytes.Buffer) error) error {
		if !force {
			if res, err := store.Check(ref, target); err == nil && res.Current(fingerprint) {
				return nil
			}
		}
		var buf bytes.Buffer
		if err := render(&buf); err != nil {
			return err
		}
		path, err := store.Write(ref, target, buf.Bytes(), meta)
		if err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	target := artifact.Target{Model: spec.ID()}
	if err := write(artifact.SpecJSON, target, func(b *bytes.Buffer) error { return SpecJSON(b, spec) }); err != nil {
		return written, err
	}
	for _, stream := range spec.StreamNames() {
		m, _ := spec.Constraint(stream)
		streamTarget := artifact.Target{Model: spec.ID(), Stream: stream}
		if err := write(artifact.DesignMatrixCSV, streamTarget, func(b *bytes.Buffer) error { return MatrixCSV(b, m) }); err != nil {
			return written, err
		}
	}
	if err := write(artifact.RScript, target, func(b *bytes.Buffer) error { return RScript(b, spec) }); err != nil {
		return written, err
	}
	if err := write(artifact.SummaryDoc, target, func(b *bytes.Buffer) error { return Summary(b, spec) }); err != nil {
		return written, err
	}
	return written, nil
}
