package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/hhmmkit/internal/constraint"
	"github.com/kingrea/hhmmkit/internal/modelerr"
	"github.com/kingrea/hhmmkit/plugins"
)

type pane int

const (
	paneTree pane = iota
	paneStreams
	paneMatrix
)

var paneNames = []string{"Hierarchy", "Streams", "Constraints"}

// detailView renders the selected model: its hierarchy, its streams or one
// stream's constraint matrix at a time.
type detailView struct {
	pane     pane
	stream   int
	result   plugins.BuildResult
	versions int
	matrix   table.Model
	width    int
	height   int
}

func newDetailView() *detailView {
	return &detailView{
		matrix: table.New(table.WithHeight(12)),
		width:  80,
		height: 20,
	}
}

func (d *detailView) nextPane() {
	d.pane = (d.pane + 1) % pane(len(paneNames))
}

func (d *detailView) nextStream() {
	if d.result.Spec == nil {
		return
	}
	if n := len(d.result.Spec.StreamNames()); n > 0 {
		d.stream = (d.stream + 1) % n
	}
}

func (d *detailView) resize(width, height int) {
	d.width = max(20, width)
	d.height = max(5, height)
	d.matrix.SetWidth(d.width)
	d.matrix.SetHeight(d.height)
}

// show switches to a build result, keeping the stream index when it still fits.
func (d *detailView) show(res plugins.BuildResult, versions int) {
	d.result = res
	d.versions = versions
	if res.Spec == nil {
		d.stream = 0
		d.loadMatrix(nil)
		return
	}
	names := res.Spec.StreamNames()
	if d.stream >= len(names) {
		d.stream = 0
	}
	if len(names) == 0 {
		d.loadMatrix(nil)
		return
	}
	m, _ := res.Spec.Constraint(names[d.stream])
	d.loadMatrix(m)
}

func (d *detailView) currentStream() string {
	if d.result.Spec == nil {
		return ""
	}
	names := d.result.Spec.StreamNames()
	if d.stream < len(names) {
		return names[d.stream]
	}
	return ""
}

func (d *detailView) loadMatrix(m *constraint.Matrix) {
	// clear rows before the column count changes
	d.matrix.SetRows(nil)
	if m == nil {
		d.matrix.SetColumns(nil)
		return
	}
	labelWidth := 6
	for _, label := range m.RowLabels() {
		labelWidth = max(labelWidth, len(label))
	}
	columns := []table.Column{{Title: "", Width: labelWidth}}
	for _, label := range m.ColLabels() {
		columns = append(columns, table.Column{Title: label, Width: max(3, len(label))})
	}
	rows := make([]table.Row, m.Rows())
	for r := range rows {
		row := make(table.Row, m.Cols()+1)
		row[0] = m.RowLabel(r)
		for c := 0; c < m.Cols(); c++ {
			if m.At(r, c) == 0 {
				row[c+1] = "·"
			} else {
				row[c+1] = "1"
			}
		}
		rows[r] = row
	}
	d.matrix.SetColumns(columns)
	d.matrix.SetRows(rows)
	d.matrix.SetCursor(0)
}

func (d *detailView) tabs() string {
	parts := make([]string, len(paneNames))
	for i, name := range paneNames {
		if pane(i) == d.pane {
			parts[i] = labelStyle.Render("[" + name + "]")
		} else {
			parts[i] = mutedStyle.Render(" " + name + " ")
		}
	}
	return strings.Join(parts, " ")
}

// View renders the active pane.
func (d *detailView) View() string {
	res := d.result
	if res.File.Path == "" && res.Spec == nil {
		return mutedStyle.Render("No model definitions found. Add *.yaml files to the models directory.")
	}
	if res.Err != nil {
		return d.renderFailure()
	}
	spec := res.Spec
	title := labelStyle.Render(spec.Name())
	if spec.Name() != spec.ID() {
		title += " " + mutedStyle.Render(spec.ID())
	}
	lines := []string{title, mutedStyle.Render(spec.Summary())}
	if d.versions > 0 {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("%d stored version(s) · fingerprint %s", d.versions, shortID(spec.Fingerprint(), 12))))
	}
	lines = append(lines, "", d.tabs(), "")
	switch d.pane {
	case paneTree:
		lines = append(lines, RenderHierarchy(spec.Hierarchy(), spec.Distributions()))
	case paneStreams:
		lines = append(lines, RenderStreams(spec.Distributions()))
	case paneMatrix:
		stream := d.currentStream()
		if stream == "" {
			lines = append(lines, mutedStyle.Render("no streams declared"))
			break
		}
		streamInfo, _ := spec.Distributions().Stream(stream)
		m, _ := spec.Constraint(stream)
		lines = append(lines,
			fmt.Sprintf("%s %s (%s) · %d×%d",
				mutedStyle.Render(fmt.Sprintf("stream %d/%d", d.stream+1, len(spec.StreamNames()))),
				labelStyle.Render(stream), streamInfo.Family.Name(), m.Rows(), m.Cols()),
			d.matrix.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (d *detailView) renderFailure() string {
	res := d.result
	lines := []string{
		errStyle.Render("✗ " + res.File.Path),
		"",
		res.Err.Error(),
	}
	var me *modelerr.Error
	if errors.As(res.Err, &me) && len(me.Suggestions) > 0 {
		lines = append(lines, "")
		for _, s := range me.Suggestions {
			lines = append(lines, mutedStyle.Render("· "+s))
		}
	}
	return lipgloss.NewStyle().Width(d.width).Render(strings.Join(lines, "\n"))
}
