package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/kingrea/hhmmkit/internal/catalog"
	"github.com/kingrea/hhmmkit/internal/constraint"
	"github.com/kingrea/hhmmkit/internal/distribution"
	"github.com/kingrea/hhmmkit/internal/hierarchy"
	"github.com/kingrea/hhmmkit/internal/model"
)

var (
	accent     = lipgloss.Color("#5B8DEF")
	muted      = lipgloss.Color("#888888")
	border     = lipgloss.Color("#444444")
	alert      = lipgloss.Color("#FF6B6B")
	good       = lipgloss.Color("#6BCB77")
	labelStyle = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(muted)
	stateStyle = lipgloss.NewStyle().Foreground(good)
	errStyle   = lipgloss.NewStyle().Foreground(alert)
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
)

// RenderHierarchy draws the state tree. Categories list the streams attached
// to them; leaves show their state number.
func RenderHierarchy(h *hierarchy.Tree, dists *distribution.Map) string {
	var build func(n *hierarchy.Node) *tree.Tree
	label := func(n *hierarchy.Node) string {
		if n.IsLeaf() {
			return fmt.Sprintf("%s %s", stateStyle.Render(strconv.Itoa(n.State)), n.Name)
		}
		text := labelStyle.Render(n.Name)
		if dists != nil {
			if level, found := dists.Level(n.Name); found && len(level.Streams) > 0 {
				parts := make([]string, len(level.Streams))
				for i, s := range level.Streams {
					parts[i] = s.Name + ":" + s.Family.Name()
				}
				text += " " + mutedStyle.Render("["+strings.Join(parts, ", ")+"]")
			}
		}
		return text
	}
	build = func(n *hierarchy.Node) *tree.Tree {
		t := tree.Root(label(n)).Enumerator(tree.RoundedEnumerator)
		for _, child := range n.Children {
			if child.IsLeaf() {
				t.Child(label(child))
				continue
			}
			t.Child(build(child))
		}
		return t
	}
	return build(h.Root()).String()
}

// RenderMatrix draws a constraint matrix with labelled rows and columns.
// Zero entries are shown as dots.
func RenderMatrix(m *constraint.Matrix) string {
	headers := append([]string{""}, m.ColLabels()...)
	rows := make([][]string, m.Rows())
	for r := range rows {
		row := make([]string, m.Cols()+1)
		row[0] = m.RowLabel(r)
		for c := 0; c < m.Cols(); c++ {
			if m.At(r, c) == 0 {
				row[c+1] = "·"
			} else {
				row[c+1] = strconv.FormatFloat(m.At(r, c), 'g', -1, 64)
			}
		}
		rows[r] = row
	}
	return newTable(headers, rows).String()
}

// RenderPreview draws sample moments per stream and state.
func RenderPreview(rows []model.PreviewRow) string {
	body := make([][]string, 0, len(rows))
	for _, r := range rows {
		state, params, mean, sd := "", "", "", ""
		if r.State > 0 {
			state = fmt.Sprintf("%d %s", r.State, r.Label)
			params = formatFloats(r.Params)
		}
		if r.Note == "" {
			mean = strconv.FormatFloat(r.Mean, 'f', 3, 64)
			sd = strconv.FormatFloat(r.SD, 'f', 3, 64)
		}
		body = append(body, []string{r.Stream, r.Family, state, params, mean, sd, r.Note})
	}
	return newTable([]string{"stream", "dist", "state", "params", "mean", "sd", "note"}, body).String()
}

// RenderHistory draws stored versions, newest first.
func RenderHistory(records []catalog.Record) string {
	body := make([][]string, 0, len(records))
	for _, rec := range records {
		body = append(body, []string{
			shortID(rec.VersionID, 8),
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			strconv.Itoa(rec.States),
			strconv.Itoa(rec.Streams),
			strconv.Itoa(rec.FreeParams),
			shortID(rec.Fingerprint, 12),
		})
	}
	return newTable([]string{"version", "created", "states", "streams", "free", "fingerprint"}, body).String()
}

// RenderFailures draws logged build failures.
func RenderFailures(failures []catalog.Failure) string {
	body := make([][]string, 0, len(failures))
	for _, f := range failures {
		body = append(body, []string{f.CreatedAt.Local().Format("2006-01-02 15:04:05"), f.Code, f.Message})
	}
	return newTable([]string{"created", "code", "message"}, body).String()
}

// RenderError prints an error line in red.
func RenderError(text string) string {
	return errStyle.Render(text)
}

// RenderMuted prints secondary text.
func RenderMuted(text string) string {
	return mutedStyle.Render(text)
}

func newTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(border)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cellStyle.Foreground(accent).Bold(true)
			}
			if col == 0 {
				return cellStyle.Foreground(muted)
			}
			return cellStyle
		})
}

func formatFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', 4, 64)
	}
	return strings.Join(parts, " ")
}

func shortID(value string, n int) string {
	if len(value) <= n {
		return value
	}
	return value[:n]
}

// RenderStreams draws one row per stream with its level, family, parameters
// and emitting states.
func RenderStreams(dists *distribution.Map) string {
	var body [][]string
	for _, s := range dists.Streams() {
		params := make([]string, 0, s.Family.ParamCount())
		for _, p := range s.Family.Params() {
			params = append(params, p.String())
		}
		body = append(body, []string{s.Name, s.Level, s.Family.Name(), strings.Join(params, " "), formatStates(dists.StatesFor(s.Name))})
	}
	if len(body) == 0 {
		return mutedStyle.Render("no streams declared")
	}
	return newTable([]string{"stream", "level", "dist", "params", "states"}, body).String()
}

func formatStates(states []int) string {
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ",")
}
