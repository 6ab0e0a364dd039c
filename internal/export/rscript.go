package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"

	"github.com/kingrea/hhmmkit/internal/constraint"
	"github.com/kingrea/hhmmkit/internal/distribution"
	"github.com/kingrea/hhmmkit/internal/hierarchy"
	"github.com/kingrea/hhmmkit/internal/model"
)

var rTemplate = template.Must(template.New("model.R").Funcs(template.FuncMap{
	"rstr":  rString,
	"rstrs": rStrings,
	"rnums": rNumbers,
}).Parse(`# {{.Name}} ({{.ID}})
# fingerprint {{.Fingerprint}}
# {{.Summary}}
library(momentuHMM)
library(data.tree)

hierStates <- data.tree::Node$new({{rstr .Root}})
{{- range .States}}
{{.Var}} <- {{.Parent}}$AddChild({{rstr .Name}}{{if .State}}, state = {{.State}}{{end}})
{{- end}}

hierDist <- data.tree::Node$new({{rstr .DistRoot}})
{{- range .Dists}}
{{if .Family}}{{.Parent}}$AddChild({{rstr .Name}}, dist = {{rstr .Family}}) # {{.Category}}{{else}}{{.Var}} <- {{.Parent}}$AddChild({{rstr .Name}}){{end}}
{{- end}}

DM <- list(
{{- range $i, $m := .Matrices}}{{if $i}},{{end}}
  {{$m.Stream}} = matrix(c(
{{- range $r, $row := $m.Rows}}{{if $r}},{{end}}
    {{rnums $row}}
{{- end}}
  ), nrow = {{len $m.Rows}}, ncol = {{len $m.Cols}}, byrow = TRUE,
  dimnames = list({{rstrs $m.RowLabels}},
                  {{rstrs $m.Cols}}))
{{- end}}
)
{{if .Initial}}
Par0 <- list(
{{- range $i, $p := .Initial}}{{if $i}},{{end}}
  {{$p.Stream}} = c({{rnums $p.Values}})
{{- end}}
)
{{end}}`))

type rNode struct {
	Var      string
	Parent   string
	Name     string
	State    int
	Family   string
	Category string
}

type rMatrix struct {
	Stream    string
	RowLabels []string
	Cols      []string
	Rows      [][]float64
}

type rInitial struct {
	Stream string
	Values []float64
}

type rData struct {
	ID, Name, Summary, Fingerprint string
	Root, DistRoot                 string
	States                         []rNode
	Dists                          []rNode
	Matrices                       []rMatrix
	Initial                        []rInitial
}

// RScript writes a momentuHMM hand-off script that rebuilds the hierarchy as
// hierStates, the level/stream tree as hierDist and one DM matrix per stream.
// Streams with starting values also get a Par0 entry.
//
// momentuHMM names the hierDist children level1, level2, ... by category
// depth and reads DM rows parameter-major (mean_1, mean_2, ..., sd_1, ...),
// so rows are reordered from the state-major constraint matrix.
func RScript(w io.Writer, spec *model.Spec) error {
	tree := spec.Hierarchy()
	data := rData{
		ID:          spec.ID(),
		Name:        spec.Name(),
		Summary:     spec.Summary(),
		Fingerprint: spec.Fingerprint(),
		Root:        tree.Name(),
		DistRoot:    tree.Name() + " hierDist",
		States:      stateNodes(tree),
		Dists:       distNodes(spec.Distributions(), tree),
	}
	for _, stream := range spec.StreamNames() {
		m, _ := spec.Constraint(stream)
		rm := rMatrix{Stream: rName(stream), Cols: m.ColLabels()}
		for _, r := range paramMajorRows(m) {
			row := make([]float64, m.Cols())
			for c := range row {
				row[c] = m.At(r, c)
			}
			rm.RowLabels = append(rm.RowLabels, m.RowLabel(r))
			rm.Rows = append(rm.Rows, row)
		}
		data.Matrices = append(data.Matrices, rm)
		if free, ok := spec.FreeInitial(stream); ok {
			data.Initial = append(data.Initial, rInitial{Stream: rName(stream), Values: free})
		}
	}
	if err := rTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("export: render R script for %s: %w", spec.ID(), err)
	}
	return nil
}

func stateNodes(tree *hierarchy.Tree) []rNode {
	vars := map[string]string{tree.Name(): "hierStates"}
	var out []rNode
	tree.Walk(func(n *hierarchy.Node, depth int) bool {
		if depth == 0 {
			return true
		}
		parent, _ := tree.Parent(n.Name)
		v := "s" + strconv.Itoa(len(out)+1)
		vars[n.Name] = v
		out = append(out, rNode{Var: v, Parent: vars[parent], Name: n.Name, State: n.State})
		return true
	})
	return out
}

// paramMajorRows lists the matrix rows in momentuHMM order: every state for
// the first parameter, then every state for the next.
func paramMajorRows(m *constraint.Matrix) []int {
	numParams := len(m.Params())
	rows := make([]int, 0, m.Rows())
	for p := 0; p < numParams; p++ {
		for state := 1; state <= m.NumStates(); state++ {
			rows = append(rows, (state-1)*numParams+p)
		}
	}
	return rows
}

// distNodes groups streams into one levelN node per category depth. The root
// category is level1.
func distNodes(m *distribution.Map, tree *hierarchy.Tree) []rNode {
	depths := max(1, tree.Depth())
	byDepth := make([][]rNode, depths)
	for _, s := range m.Streams() {
		d := len(tree.Path(s.Level)) - 1
		if d < 0 || d >= depths {
			continue
		}
		byDepth[d] = append(byDepth[d], rNode{Name: s.Name, Family: s.Family.Name(), Category: s.Level})
	}
	var out []rNode
	for d, streams := range byDepth {
		v := "d" + strconv.Itoa(d+1)
		out = append(out, rNode{Var: v, Parent: "hierDist", Name: "level" + strconv.Itoa(d+1)})
		for _, s := range streams {
			s.Parent = v
			out = append(out, s)
		}
	}
	return out
}

// rName makes a stream usable as an R list name.
func rName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			b.WriteRune(r)
		default:
			return "`" + strings.ReplaceAll(name, "`", "") + "`"
		}
	}
	return b.String()
}

func rString(s string) string {
	return strconv.Quote(s)
}

func rStrings(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "c(" + strings.Join(quoted, ", ") + ")"
}

func rNumbers(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatNumber(v)
	}
	return strings.Join(parts, ", ")
}
