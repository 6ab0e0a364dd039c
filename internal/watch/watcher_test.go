package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flatAtLevel = `id: %s
hierarchy:
  name: root
  children: [{name: s1}, {name: s2}]
distributions:
  - level: %s
    streams: [{name: step, dist: gamma}]
`

func writeModel(t *testing.T, dir, id string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".yaml"), []byte(fmtModel(id)), 0o644))
}

func fmtModel(id string) string {
	return fmt.Sprintf(flatAtLevel, id, "root")
}

func waitReport(t *testing.T, reports <-chan Report) Report {
	t.Helper()
	select {
	case r := <-reports:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
		return Report{}
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "flat-a")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(fmt.Sprintf(flatAtLevel, "broken", "nowhere")), 0o644))

	w, err := New(Options{ModelsDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	report := w.Reload(nil)
	require.NoError(t, report.Err)
	assert.Len(t, report.Results, 2)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, []string{filepath.Clean(dir)}, w.Dirs())
}

func TestReloadReportsDiscoveryError(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "flat-a")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "copy.yml"), []byte(fmtModel("flat-a")), 0o644))

	w, err := New(Options{ModelsDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	report := w.Reload(nil)
	assert.ErrorContains(t, report.Err, "duplicate model id")
	assert.Empty(t, report.Results)
}

func TestNewRequiresModelsDir(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{ModelsDir: filepath.Join(t.TempDir(), "absent")})
	assert.Error(t, err)
}

func TestRunReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "flat-a")

	w, err := New(Options{ModelsDir: dir, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	reports := make(chan Report, 8)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(r Report) { reports <- r }) }()

	initial := waitReport(t, reports)
	assert.Len(t, initial.Results, 1)
	assert.Empty(t, initial.Changed)

	writeModel(t, dir, "flat-b")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	changed := waitReport(t, reports)
	assert.Len(t, changed.Results, 2)
	assert.Contains(t, changed.Changed, filepath.Join(dir, "flat-b.yaml"))
	assert.NotContains(t, changed.Changed, filepath.Join(dir, "notes.txt"))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRelevant(t *testing.T) {
	cases := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "/m/a.yaml", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "/m/a.yml", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "/m/scripts/gen.go", Op: fsnotify.Remove}, true},
		{fsnotify.Event{Name: "/m/scripts/gen_test.go", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "/m/.a.yaml", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "/m/a.yaml", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "/m/readme.md", Op: fsnotify.Write}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, relevant(tc.event), tc.event.String())
	}
}
