package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/hhmmkit/internal/artifact"
	"github.com/kingrea/hhmmkit/internal/model"
)

const batYAML = `
id: bat
name: Foraging bat
hierarchy:
  name: bat
  children:
    - name: a
      children: [{name: a1}, {name: a2}]
    - name: b
      children: [{name: b1}, {name: b2}]
distributions:
  - level: bat
    streams:
      - {name: step, dist: gamma}
  - level: a
    streams:
      - {name: turn, dist: vm}
constraints:
  step:
    mean: sibling
initial:
  step:
    mean: [1, 2, 1, 2]
    sd: [0.5, 0.6, 0.7, 0.8]
`

func batSpec(t *testing.T) *model.Spec {
	t.Helper()
	def, err := model.ParseDefinitionYAML([]byte(batYAML))
	require.NoError(t, err)
	spec, err := model.Build(def, nil)
	require.NoError(t, err)
	return spec
}

func TestMatrixCSV(t *testing.T) {
	spec := batSpec(t)
	m, ok := spec.Constraint("step")
	require.True(t, ok)

	var buf bytes.Buffer
	require.NoError(t, MatrixCSV(&buf, m))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, m.Rows()+1)
	assert.Equal(t, []string{"row", "mean:1.3", "mean:2.4", "sd:1", "sd:2", "sd:3", "sd:4"}, records[0])
	assert.Equal(t, []string{"mean_1", "1", "0", "0", "0", "0", "0"}, records[1])
	assert.Equal(t, []string{"sd_1", "0", "0", "1", "0", "0", "0"}, records[2])
	assert.Equal(t, []string{"mean_3", "1", "0", "0", "0", "0", "0"}, records[5])
}

func TestSpecJSON(t *testing.T) {
	spec := batSpec(t)
	var buf bytes.Buffer
	require.NoError(t, SpecJSON(&buf, spec))

	var doc model.Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "bat", doc.ID)
	assert.Len(t, doc.States, 4)
	require.Len(t, doc.Constraints, 2)
	assert.Equal(t, []float64{1, 2, 0.5, 0.6, 0.7, 0.8}, doc.Constraints[0].Initial)
	assert.Empty(t, doc.Constraints[1].Initial)
}

func TestRScript(t *testing.T) {
	spec := batSpec(t)
	var buf bytes.Buffer
	require.NoError(t, RScript(&buf, spec))
	script := buf.String()

	for _, want := range []string{
		"library(momentuHMM)",
		`hierStates <- data.tree::Node$new("bat")`,
		`s1 <- hierStates$AddChild("a")`,
		`s2 <- s1$AddChild("a1", state = 1)`,
		`s5 <- s4$AddChild("b1", state = 3)`,
		`d1 <- hierDist$AddChild("level1")`,
		`d1$AddChild("step", dist = "gamma") # bat`,
		`d2 <- hierDist$AddChild("level2")`,
		`d2$AddChild("turn", dist = "vm") # a`,
		"step = matrix(c(",
		"nrow = 8, ncol = 6, byrow = TRUE",
		`c("mean:1.3", "mean:2.4", "sd:1", "sd:2", "sd:3", "sd:4")`,
		"step = c(1, 2, 0.5, 0.6, 0.7, 0.8)",
		spec.Fingerprint(),
	} {
		assert.Contains(t, script, want)
	}
	assert.NotContains(t, script, "turn = c(")
	assert.Equal(t, 1, strings.Count(script, "Par0 <- list("))
}

func TestRScriptRowsAreParameterMajor(t *testing.T) {
	def, err := model.ParseDefinitionYAML([]byte(`
id: pair
hierarchy:
  name: root
  children: [{name: rest}, {name: move}]
distributions:
  - level: root
    streams:
      - {name: step, dist: gamma}
constraints:
  step:
    sd: shared
`))
	require.NoError(t, err)
	spec, err := model.Build(def, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RScript(&buf, spec))
	script := buf.String()

	assert.Contains(t, script, `dimnames = list(c("mean_1", "mean_2", "sd_1", "sd_2"),`)
	assert.Contains(t, script, `c("mean:1", "mean:2", "sd:1.2"))`)
	assert.Contains(t, script, "    1, 0, 0,\n    0, 1, 0,\n    0, 0, 1,\n    0, 0, 1\n")
	assert.Contains(t, script, `d1 <- hierDist$AddChild("level1")`)
	assert.NotContains(t, script, "level2")
}

func TestRNameQuotesAwkwardNames(t *testing.T) {
	assert.Equal(t, "step_len", rName("step_len"))
	assert.Equal(t, "`2d speed`", rName("2d speed"))
}

func TestSummary(t *testing.T) {
	spec := batSpec(t)
	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, spec))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Foraging bat\n"))
	assert.Contains(t, out, spec.Summary())
	assert.Contains(t, out, "| 3 | b1 | bat / b / b1 |")
	assert.Contains(t, out, "| step | gamma | mean, sd | 4 |")
	assert.Contains(t, out, "| turn | vm | mean, concentration | 2 |")
	assert.Contains(t, out, "| step | 8 | 6 |")
	assert.NotContains(t, out, "### b\n")
}

func TestRenderAndParseFormat(t *testing.T) {
	spec := batSpec(t)
	for _, name := range []string{"CSV", "json", "r", "markdown"} {
		format, err := ParseFormat(name)
		require.NoError(t, err, name)
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, spec, format, "turn"), name)
		assert.NotZero(t, buf.Len(), name)
	}
	_, err := ParseFormat("xlsx")
	assert.Error(t, err)

	var buf bytes.Buffer
	assert.ErrorContains(t, Render(&buf, spec, FormatCSV, ""), "step, turn")
	assert.Error(t, Render(&buf, spec, FormatCSV, "speed"))
}

func TestWriteAllSkipsCurrentArtifacts(t *testing.T) {
	spec := batSpec(t)
	store := artifact.NewStore(t.TempDir())

	written, err := WriteAll(store, spec, false)
	require.NoError(t, err)
	assert.Len(t, written, 5)
	for _, rel := range []string{"spec.json", "dm/step.csv", "dm/turn.csv", "model.R", "SUMMARY.md"} {
		_, err := os.Stat(filepath.Join(store.Root(), "bat", rel))
		assert.NoError(t, err, rel)
	}

	again, err := WriteAll(store, spec, false)
	require.NoError(t, err)
	assert.Empty(t, again)

	forced, err := WriteAll(store, spec, true)
	require.NoError(t, err)
	assert.Len(t, forced, 5)

	res, err := store.Check(artifact.DesignMatrixCSV, artifact.Target{Model: "bat", Stream: "step"})
	require.NoError(t, err)
	assert.True(t, res.Current(spec.Fingerprint()))
	assert.Equal(t, "4", res.Metadata.Notes["states"])
	assert.Equal(t, "14", res.Metadata.Notes["free"])
}
