// internal/tui/app.go
//
// This is the browse TUI for hhmm. It follows The Elm Architecture:
//
// 1. Model: the discovered definitions and what is selected
// 2. Update: reloads, key presses and watcher reports change that state
// 3. View: a model list on the left, the selected spec on the right
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen

package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/hhmmkit/internal/artifact"
	"github.com/kingrea/hhmmkit/internal/catalog"
	"github.com/kingrea/hhmmkit/internal/config"
	"github.com/kingrea/hhmmkit/internal/distribution"
	"github.com/kingrea/hhmmkit/internal/export"
	"github.com/kingrea/hhmmkit/internal/logging"
	"github.com/kingrea/hhmmkit/internal/modelerr"
	"github.com/kingrea/hhmmkit/internal/watch"
	"github.com/kingrea/hhmmkit/plugins"
)

// focus says which side receives navigation keys.
type focus int

const (
	focusList   focus = iota // model list
	focusDetail              // matrix table
)

const logTailLines = 6

// reloadMsg carries a fresh discovery + build of every definition.
type reloadMsg struct {
	results []plugins.BuildResult
	err     error
}

// WatchMsg delivers a watcher report to a running program via Program.Send.
type WatchMsg watch.Report

type exportedMsg struct {
	id    string
	paths []string
	err   error
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithRegistry overrides the distribution registry used for builds.
func WithRegistry(reg *distribution.Registry) AppOption {
	return func(a *App) {
		if reg != nil {
			a.registry = reg
		}
	}
}

// WithLogger attaches the project log; its tail is shown under the panes.
func WithLogger(l *logging.Logger) AppOption {
	return func(a *App) {
		a.logger = l
	}
}

// WithCatalog lets the app show how many versions of a model are stored.
func WithCatalog(store *catalog.Store) AppOption {
	return func(a *App) {
		a.catalog = store
	}
}

// modelItem implements list.Item for one discovered definition.
type modelItem struct {
	result plugins.BuildResult
}

func (i modelItem) Title() string {
	if i.result.Err != nil {
		return "✗ " + i.id()
	}
	return i.id()
}

func (i modelItem) Description() string {
	if i.result.Err != nil {
		if code, found := modelerr.CodeOf(i.result.Err); found {
			return string(code)
		}
		return "build failed"
	}
	s := i.result.Spec
	return fmt.Sprintf("%d states · %d streams · %d free", s.Hierarchy().LeafCount(), len(s.StreamNames()), s.FreeParamCount())
}

func (i modelItem) FilterValue() string { return i.id() }

func (i modelItem) id() string {
	if id := i.result.File.Definition.ID; id != "" {
		return id
	}
	return filepath.Base(i.result.File.Path)
}

// App is the browse program model.
type App struct {
	config   *config.Config
	registry *distribution.Registry
	logger   *logging.Logger
	catalog  *catalog.Store

	results []plugins.BuildResult
	models  list.Model
	detail  *detailView
	focus   focus

	statusMsg string
	err       error

	// Window size (we get this from bubbletea)
	width  int
	height int
}

// NewApp creates a browser over the project's model definitions.
func NewApp(cfg *config.Config, opts ...AppOption) *App {
	models := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	models.Title = "⬡ MODELS"
	models.SetShowStatusBar(false)

	app := &App{
		config:   cfg,
		registry: distribution.Default(),
		models:   models,
		detail:   newDetailView(),
		focus:    focusList,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.reload()
}

func (a *App) reload() tea.Cmd {
	cfg, reg := a.config, a.registry
	return func() tea.Msg {
		files, err := plugins.DiscoverProject(cfg)
		if err != nil {
			return reloadMsg{err: err}
		}
		return reloadMsg{results: plugins.BuildAll(files, reg)}
	}
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return a, nil

	case reloadMsg:
		a.applyResults(msg.results, msg.err, "Reloaded")
		return a, nil

	case WatchMsg:
		a.applyResults(msg.Results, msg.Err, "Definitions changed")
		return a, nil

	case exportedMsg:
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("Export of %s failed: %v", msg.id, msg.err)
			a.logger.Error("export %s: %v", msg.id, msg.err)
		} else {
			a.statusMsg = fmt.Sprintf("Exported %s · %d file(s) written", msg.id, len(msg.paths))
			a.logger.Info("export %s: %d file(s)", msg.id, len(msg.paths))
		}
		return a, nil

	case tea.KeyMsg:
		if a.models.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "r":
			a.statusMsg = "Reloading definitions..."
			return a, a.reload()
		case "tab":
			a.detail.nextPane()
			a.syncDetail()
			return a, nil
		case "s":
			a.detail.nextStream()
			a.syncDetail()
			return a, nil
		case "enter":
			if a.focus == focusList && a.detail.pane == paneMatrix {
				a.focus = focusDetail
				a.detail.matrix.Focus()
				return a, nil
			}
		case "esc":
			if a.focus == focusDetail {
				a.focus = focusList
				a.detail.matrix.Blur()
				return a, nil
			}
		case "e":
			return a, a.exportSelected()
		case "d":
			a.setDefaultModel()
			return a, nil
		}
	}

	var cmd tea.Cmd
	if a.focus == focusDetail {
		a.detail.matrix, cmd = a.detail.matrix.Update(msg)
		return a, cmd
	}
	before := a.models.Index()
	a.models, cmd = a.models.Update(msg)
	if a.models.Index() != before {
		a.syncDetail()
	}
	return a, cmd
}

func (a *App) applyResults(results []plugins.BuildResult, err error, label string) {
	if err != nil {
		a.err = err
		a.statusMsg = fmt.Sprintf("%s: %v", label, err)
		a.logger.Error("discover: %v", err)
		return
	}
	a.err = nil
	selected := a.selectedID()
	a.results = results
	items := make([]list.Item, len(results))
	failed := 0
	for i, res := range results {
		items[i] = modelItem{result: res}
		if res.Err != nil {
			failed++
		}
	}
	a.models.SetItems(items)
	if selected == "" {
		selected = a.config.DefaultModel()
	}
	for i, item := range items {
		if item.(modelItem).id() == selected {
			a.models.Select(i)
			break
		}
	}
	a.statusMsg = fmt.Sprintf("%s · %d model(s), %d failed", label, len(results), failed)
	a.syncDetail()
}

func (a *App) selected() (plugins.BuildResult, bool) {
	item, found := a.models.SelectedItem().(modelItem)
	if !found {
		return plugins.BuildResult{}, false
	}
	return item.result, true
}

func (a *App) selectedID() string {
	if item, found := a.models.SelectedItem().(modelItem); found {
		return item.id()
	}
	return ""
}

func (a *App) syncDetail() {
	res, found := a.selected()
	if !found {
		a.detail.show(plugins.BuildResult{}, 0)
		return
	}
	versions := 0
	if a.catalog != nil && res.Spec != nil {
		if records, err := a.catalog.List(res.Spec.ID(), 0); err == nil {
			versions = len(records)
		}
	}
	a.detail.show(res, versions)
}

func (a *App) exportSelected() tea.Cmd {
	res, found := a.selected()
	if !found || res.Spec == nil {
		a.statusMsg = "Nothing to export: select a model that builds"
		return nil
	}
	spec := res.Spec
	store := artifact.NewStore(a.config.ExportsDir())
	a.statusMsg = fmt.Sprintf("Exporting %s...", spec.ID())
	return func() tea.Msg {
		paths, err := export.WriteAll(store, spec, false)
		return exportedMsg{id: spec.ID(), paths: paths, err: err}
	}
}

func (a *App) setDefaultModel() {
	id := a.selectedID()
	if id == "" {
		return
	}
	if err := a.config.SetDefaultModel(id); err != nil {
		a.statusMsg = fmt.Sprintf("Could not set default model: %v", err)
		return
	}
	a.statusMsg = fmt.Sprintf("Default model · %s", id)
	a.logger.Info("default model set to %s", id)
}

func (a *App) resize() {
	left, right := a.columns()
	a.models.SetSize(max(20, left-4), max(5, a.height-logTailLines-10))
	a.detail.resize(right-4, max(5, a.height-logTailLines-14))
}

func (a *App) columns() (int, int) {
	width := a.width
	if width <= 0 {
		width = 120
	}
	left := max(28, width/3)
	return left, max(40, width-left-4)
}

// View renders the current state to a string.
func (a *App) View() string {
	left, right := a.columns()
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(alert).
		MarginBottom(1).
		Render("⬡ HHMM · " + a.config.ProjectDir)
	leftBox := panelStyle(a.focus == focusList).Width(left).Render(a.models.View())
	rightBox := panelStyle(a.focus == focusDetail).Width(right).Render(a.detail.View())
	sections := []string{header, lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(muted).
		MarginTop(1).
		Render(a.statusMsg + "\n" + "tab pane · s stream · enter/esc matrix focus · e export · d default · r reload · q quit")
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderLogPanel() string {
	if a.logger == nil {
		return ""
	}
	lines, _ := a.logger.Tail(logTailLines)
	if len(lines) == 0 {
		return ""
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(accent).
		Render(fmt.Sprintf("LOG · %s", filepath.Base(a.logger.Path())))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

func panelStyle(active bool) lipgloss.Style {
	color := border
	if active {
		color = accent
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1)
}
