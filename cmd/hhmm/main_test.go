package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const brokenModelYAML = `id: broken
hierarchy:
  name: root
  children: [{name: a}, {name: b}]
distributions:
  - level: rot
    streams:
      - {name: step, dist: gamma}
`

type result struct {
	code   int
	stdout string
	stderr string
}

func hhmm(t *testing.T, dir string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(append([]string{"--project", dir}, args...), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func initProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	res := hhmm(t, dir, "init")
	require.Equal(t, exitOK, res.code, res.stderr)
	return dir
}

func TestInitWritesExampleModel(t *testing.T) {
	dir := t.TempDir()
	res := hhmm(t, dir, "init")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.FileExists(t, filepath.Join(dir, ".hhmm", "config.yaml"))
	assert.FileExists(t, filepath.Join(dir, "models", "example.yaml"))

	again := hhmm(t, dir, "init")
	require.Equal(t, exitOK, again.code)
	assert.Contains(t, again.stdout, "1 model definition(s) already")
}

func TestValidateRecordsVersions(t *testing.T) {
	dir := initProject(t)

	res := hhmm(t, dir, "validate")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "✓ example")
	assert.Contains(t, res.stdout, "new version")

	rerun := hhmm(t, dir, "validate")
	require.Equal(t, exitOK, rerun.code)
	assert.NotContains(t, rerun.stdout, "new version")

	history := hhmm(t, dir, "history", "example")
	require.Equal(t, exitOK, history.code, history.stderr)
	assert.Contains(t, history.stdout, "fingerprint")
}

func TestValidateBrokenModelExitsOne(t *testing.T) {
	dir := initProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "models", "broken.yaml"), []byte(brokenModelYAML), 0o644))

	res := hhmm(t, dir, "validate")
	assert.Equal(t, exitValidation, res.code)
	assert.Contains(t, res.stdout, "✓ example")
	assert.Contains(t, res.stdout, "✗ broken")
	assert.Contains(t, res.stdout, `did you mean "root"?`)
	assert.Contains(t, res.stderr, "1 model(s) failed")

	failures := hhmm(t, dir, "history", "broken", "--failures")
	require.Equal(t, exitOK, failures.code)
	assert.Contains(t, failures.stdout, "UNKNOWN_LEVEL")

	allFailures := hhmm(t, dir, "history", "--failures")
	require.Equal(t, exitOK, allFailures.code)
	assert.Contains(t, allFailures.stdout, "UNKNOWN_LEVEL")
	assert.NotContains(t, allFailures.stdout, "no failures recorded")
}

func TestValidateExplicitFile(t *testing.T) {
	dir := initProject(t)
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte(brokenModelYAML), 0o644))

	res := hhmm(t, dir, "validate", "--no-record", path)
	assert.Equal(t, exitValidation, res.code)
	assert.NotContains(t, res.stdout, "example")

	missing := hhmm(t, dir, "validate", filepath.Join(dir, "nope.txt"))
	assert.Equal(t, exitValidation, missing.code)
}

func TestTreeAndMatrix(t *testing.T) {
	dir := initProject(t)

	tree := hhmm(t, dir, "tree")
	require.Equal(t, exitOK, tree.code, tree.stderr)
	for _, want := range []string{"root", "forage.fast", "angle:vm", "step"} {
		assert.Contains(t, tree.stdout, want)
	}

	matrix := hhmm(t, dir, "matrix", "example", "--stream", "step")
	require.Equal(t, exitOK, matrix.code, matrix.stderr)
	assert.Contains(t, matrix.stdout, "8 raw × 6 free")
	assert.Contains(t, matrix.stdout, "mean:1")

	csv := hhmm(t, dir, "matrix", "--stream", "step", "--csv")
	require.Equal(t, exitOK, csv.code, csv.stderr)
	assert.Contains(t, csv.stdout, "row,")

	noStream := hhmm(t, dir, "matrix", "--csv")
	assert.Equal(t, exitUsage, noStream.code)

	typo := hhmm(t, dir, "matrix", "--stream", "stp")
	assert.Equal(t, exitUsage, typo.code)
	assert.Contains(t, typo.stderr, `did you mean "step"?`)
}

func TestExport(t *testing.T) {
	dir := initProject(t)

	res := hhmm(t, dir, "export", "--format", "r")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "hierStates")

	out := filepath.Join(t.TempDir(), "spec.json")
	file := hhmm(t, dir, "export", "example", "-f", "json", "-o", out)
	require.Equal(t, exitOK, file.code, file.stderr)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id": "example"`)

	all := hhmm(t, dir, "export", "--all")
	require.Equal(t, exitOK, all.code, all.stderr)
	assert.FileExists(t, filepath.Join(dir, "exports", "example", "model.R"))

	current := hhmm(t, dir, "export", "--all")
	assert.Contains(t, current.stdout, "up to date")

	bad := hhmm(t, dir, "export", "--format", "xlsx")
	assert.Equal(t, exitUsage, bad.code)
}

func TestPreview(t *testing.T) {
	dir := initProject(t)
	res := hhmm(t, dir, "preview", "-n", "200", "--seed", "7")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "forage.slow")
	assert.Contains(t, res.stdout, "no initial values")

	tooFew := hhmm(t, dir, "preview", "-n", "1")
	assert.Equal(t, exitUsage, tooFew.code)
}

func TestUsageErrors(t *testing.T) {
	dir := initProject(t)

	unknown := hhmm(t, dir, "tree", "exampl")
	assert.Equal(t, exitUsage, unknown.code)
	assert.Contains(t, unknown.stderr, `did you mean "example"?`)

	flag := hhmm(t, dir, "tree", "--bogus")
	assert.Equal(t, exitUsage, flag.code)

	cmd := hhmm(t, dir, "frobnicate")
	assert.Equal(t, exitUsage, cmd.code)
}

func TestBrokenModelCommandExitsOne(t *testing.T) {
	dir := initProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "models", "broken.yaml"), []byte(brokenModelYAML), 0o644))

	res := hhmm(t, dir, "tree", "broken")
	assert.Equal(t, exitValidation, res.code)
	assert.Contains(t, res.stderr, "UNKNOWN_LEVEL")
	assert.Contains(t, res.stderr, "hint:")

	ambiguous := hhmm(t, dir, "tree")
	assert.Equal(t, exitUsage, ambiguous.code)
	assert.Contains(t, ambiguous.stderr, "model id required")
}
