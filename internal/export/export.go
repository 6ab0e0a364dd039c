// Package export renders built specifications for fitting tools: constraint
// matrices as CSV, the full document as JSON, an R hand-off script and a
// markdown summary.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kingrea/hhmmkit/internal/constraint"
	"github.com/kingrea/hhmmkit/internal/model"
)

// Format selects an export rendering.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatR        Format = "r"
	FormatMarkdown Format = "md"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{FormatCSV, FormatJSON, FormatR, FormatMarkdown}
}

// ParseFormat accepts a format name case-insensitively.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case FormatCSV, FormatJSON, FormatR, FormatMarkdown:
		return f, nil
	case "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("export: unknown format %q (want csv, json, r or md)", value)
}

// MatrixCSV writes m with a header of column labels and one labelled row per
// raw parameter.
func MatrixCSV(w io.Writer, m *constraint.Matrix) error {
	cw := csv.NewWriter(w)
	header := append([]string{"row"}, m.ColLabels()...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	record := make([]string, m.Cols()+1)
	for r := 0; r < m.Rows(); r++ {
		record[0] = m.RowLabel(r)
		for c := 0; c < m.Cols(); c++ {
			record[c+1] = formatNumber(m.At(r, c))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export: write csv row %s: %w", record[0], err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SpecJSON writes the spec document as indented JSON.
func SpecJSON(w io.Writer, spec *model.Spec) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(spec.Document()); err != nil {
		return fmt.Errorf("export: encode %s: %w", spec.ID(), err)
	}
	return nil
}

// Render writes spec in the given format. CSV needs a stream name.
func Render(w io.Writer, spec *model.Spec, format Format, stream string) error {
	switch format {
	case FormatCSV:
		if stream == "" {
			return fmt.Errorf("export: csv needs a stream (one of %s)", strings.Join(spec.StreamNames(), ", "))
		}
		m, ok := spec.Constraint(stream)
		if !ok {
			return fmt.Errorf("export: model %s has no stream %q", spec.ID(), stream)
		}
		return MatrixCSV(w, m)
	case FormatJSON:
		return SpecJSON(w, spec)
	case FormatR:
		return RScript(w, spec)
	case FormatMarkdown:
		return Summary(w, spec)
	}
	return fmt.Errorf("export: unknown format %q", format)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
