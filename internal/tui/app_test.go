package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/hhmmkit/internal/config"
	"github.com/kingrea/hhmmkit/internal/hierarchy"
	"github.com/kingrea/hhmmkit/internal/logging"
	"github.com/kingrea/hhmmkit/internal/model"
	"github.com/kingrea/hhmmkit/internal/watch"
)

const seabirdYAML = `id: seabird
name: Seabird trips
hierarchy:
  name: trip
  children:
    - name: commute
      children: [{name: commute.fast}, {name: commute.slow}]
    - name: search
      children: [{name: search.area}, {name: search.dive}]
distributions:
  - level: trip
    streams:
      - {name: step, dist: gamma}
      - {name: angle, dist: vm}
`

const brokenYAML = `id: broken
hierarchy:
  name: root
  children: [{name: a}, {name: b}]
distributions:
  - level: rot
    streams:
      - {name: step, dist: gamma}
`

func newTestProject(t *testing.T, files map[string]string) *config.Config {
	t.Helper()
	projectDir := t.TempDir()
	if err := config.InitProjectDir(projectDir); err != nil {
		t.Fatalf("init project dir: %v", err)
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(cfg.ModelsDir(), name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return cfg
}

func loadedApp(t *testing.T, cfg *config.Config, opts ...AppOption) *App {
	t.Helper()
	app := NewApp(cfg, opts...)
	app.Update(tea.WindowSizeMsg{Width: 140, Height: 50})
	msg := app.Init()()
	if _, ok := msg.(reloadMsg); !ok {
		t.Fatalf("expected reloadMsg, got %T", msg)
	}
	app.Update(msg)
	return app
}

func press(app *App, key string) tea.Cmd {
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	return cmd
}

func TestReloadPopulatesList(t *testing.T) {
	cfg := newTestProject(t, map[string]string{"a-seabird.yaml": seabirdYAML, "b-broken.yaml": brokenYAML})
	app := loadedApp(t, cfg)

	if got := len(app.models.Items()); got != 2 {
		t.Fatalf("expected 2 models, got %d", got)
	}
	if !strings.Contains(app.statusMsg, "2 model(s), 1 failed") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
	view := app.View()
	for _, want := range []string{"seabird", "commute.fast", "step:gamma"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestFailedModelShowsSuggestion(t *testing.T) {
	cfg := newTestProject(t, map[string]string{"b-broken.yaml": brokenYAML})
	app := loadedApp(t, cfg)

	view := app.detail.View()
	if !strings.Contains(view, "UNKNOWN_LEVEL") {
		t.Fatalf("expected error code in view:\n%s", view)
	}
	if !strings.Contains(view, `did you mean "root"?`) {
		t.Fatalf("expected suggestion in view:\n%s", view)
	}
}

func TestPaneAndStreamCycling(t *testing.T) {
	cfg := newTestProject(t, map[string]string{"seabird.yaml": seabirdYAML})
	app := loadedApp(t, cfg)

	app.Update(tea.KeyMsg{Type: tea.KeyTab})
	if app.detail.pane != paneStreams {
		t.Fatalf("expected streams pane, got %d", app.detail.pane)
	}
	app.Update(tea.KeyMsg{Type: tea.KeyTab})
	if app.detail.pane != paneMatrix {
		t.Fatalf("expected matrix pane, got %d", app.detail.pane)
	}
	if got := app.detail.currentStream(); got != "step" {
		t.Fatalf("expected first stream step, got %s", got)
	}
	if cols := len(app.detail.matrix.Columns()); cols != 9 {
		t.Fatalf("expected label column plus 8 free parameters, got %d", cols)
	}

	press(app, "s")
	if got := app.detail.currentStream(); got != "angle" {
		t.Fatalf("expected angle after cycling, got %s", got)
	}
	if !strings.Contains(app.detail.View(), "stream 2/2") {
		t.Fatalf("matrix pane should show stream position:\n%s", app.detail.View())
	}
	press(app, "s")
	if got := app.detail.currentStream(); got != "step" {
		t.Fatalf("expected wrap to step, got %s", got)
	}

	app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if app.focus != focusDetail {
		t.Fatalf("enter on matrix pane should focus the table")
	}
	app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if app.focus != focusList {
		t.Fatalf("esc should return focus to the list")
	}
}

func TestExportWritesArtifacts(t *testing.T) {
	cfg := newTestProject(t, map[string]string{"seabird.yaml": seabirdYAML})
	app := loadedApp(t, cfg)

	cmd := press(app, "e")
	if cmd == nil {
		t.Fatalf("expected export command")
	}
	msg, ok := cmd().(exportedMsg)
	if !ok || msg.err != nil {
		t.Fatalf("export failed: %+v", msg)
	}
	app.Update(msg)
	if len(msg.paths) != 5 {
		t.Fatalf("expected 5 artifacts, got %v", msg.paths)
	}
	if _, err := os.Stat(filepath.Join(cfg.ExportsDir(), "seabird", "model.R")); err != nil {
		t.Fatalf("R script missing: %v", err)
	}
	if !strings.Contains(app.statusMsg, "Exported seabird") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
}

func TestSetDefaultModel(t *testing.T) {
	cfg := newTestProject(t, map[string]string{"seabird.yaml": seabirdYAML})
	app := loadedApp(t, cfg)

	press(app, "d")
	reloaded, err := config.NewConfig(cfg.ProjectDir)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if reloaded.DefaultModel() != "seabird" {
		t.Fatalf("default model not persisted: %q", reloaded.DefaultModel())
	}
}

func TestWatchMsgReplacesResults(t *testing.T) {
	cfg := newTestProject(t, map[string]string{"seabird.yaml": seabirdYAML})
	logger, err := logging.New(cfg.LogsDir(), logging.LevelInfo)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	app := loadedApp(t, cfg, WithLogger(logger))

	if err := os.WriteFile(filepath.Join(cfg.ModelsDir(), "broken.yaml"), []byte(brokenYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := watch.New(watch.Options{ModelsDir: cfg.ModelsDir(), Logger: logger})
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	app.Update(WatchMsg(w.Reload([]string{"broken.yaml"})))

	if got := len(app.models.Items()); got != 2 {
		t.Fatalf("expected 2 models after watch report, got %d", got)
	}
	if app.selectedID() != "seabird" {
		t.Fatalf("selection should stay on seabird, got %s", app.selectedID())
	}
	if !strings.Contains(app.View(), "LOG · hhmm.log") {
		t.Fatalf("expected log panel in view")
	}
}

func TestRenderHierarchyAndMatrix(t *testing.T) {
	def, err := model.ParseDefinitionYAML([]byte(seabirdYAML))
	if err != nil {
		t.Fatal(err)
	}
	spec, err := model.Build(def, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := RenderHierarchy(spec.Hierarchy(), spec.Distributions())
	for _, want := range []string{"trip", "commute", "search.dive", "angle:vm"} {
		if !strings.Contains(out, want) {
			t.Fatalf("tree missing %q:\n%s", want, out)
		}
	}
	m, _ := spec.Constraint("step")
	grid := RenderMatrix(m)
	if !strings.Contains(grid, "mean:1") || !strings.Contains(grid, "sd_4") {
		t.Fatalf("matrix missing labels:\n%s", grid)
	}

	bare, err := hierarchy.Build(hierarchy.Spec{Name: "r", Children: []hierarchy.Spec{{Name: "x"}, {Name: "y"}}})
	if err != nil {
		t.Fatal(err)
	}
	if out := RenderHierarchy(bare, nil); !strings.Contains(out, "2 y") {
		t.Fatalf("leaf should show its state:\n%s", out)
	}
}
