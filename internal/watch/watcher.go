// Package watch rebuilds every model definition when files under the models
// or scripts directory change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kingrea/hhmmkit/internal/distribution"
	"github.com/kingrea/hhmmkit/internal/logging"
	"github.com/kingrea/hhmmkit/plugins"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 300 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	ModelsDir  string
	ScriptsDir string
	Debounce   time.Duration
	Registry   *distribution.Registry
	Logger     *logging.Logger
}

// Report is the outcome of one reload. Err is set when discovery itself
// failed; per-model failures live in Results.
type Report struct {
	At      time.Time
	Changed []string
	Results []plugins.BuildResult
	Err     error
}

// Failed counts models that did not build.
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Handler receives every reload report.
type Handler func(Report)

// Watcher reloads definitions on file changes.
type Watcher struct {
	opts Options
	fs   *fsnotify.Watcher
	dirs []string
}

// New creates a watcher over the models directory and, when it exists, the
// scripts directory.
func New(opts Options) (*Watcher, error) {
	if strings.TrimSpace(opts.ModelsDir) == "" {
		return nil, errors.New("watch: models directory is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Registry == nil {
		opts.Registry = distribution.Default()
	}
	info, err := os.Stat(opts.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", opts.ModelsDir)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{opts: opts, fs: fsw}
	for _, dir := range []string{opts.ModelsDir, opts.ScriptsDir} {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch: add %s: %w", dir, err)
		}
		w.dirs = append(w.dirs, filepath.Clean(dir))
	}
	return w, nil
}

// Dirs lists the watched directories.
func (w *Watcher) Dirs() []string {
	return append([]string(nil), w.dirs...)
}

// Reload discovers and builds every definition once.
func (w *Watcher) Reload(changed []string) Report {
	report := Report{At: time.Now(), Changed: changed}
	files, err := plugins.Discover(w.opts.ModelsDir, w.opts.ScriptsDir)
	if err != nil {
		report.Err = err
		w.opts.Logger.Error("reload failed: %v", err)
		return report
	}
	report.Results = plugins.BuildAll(files, w.opts.Registry)
	for _, res := range report.Results {
		if res.Err != nil {
			w.opts.Logger.Warn("%s: %v", res.File.Path, res.Err)
		}
	}
	w.opts.Logger.Info("reloaded %d models (%d failed)", len(report.Results), report.Failed())
	return report
}

// Run reports an initial reload, then one reload per burst of changes, until
// ctx is cancelled. It closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context, handler Handler) error {
	defer w.fs.Close()
	if handler == nil {
		handler = func(Report) {}
	}
	handler(w.Reload(nil))

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending = map[string]struct{}{}
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.opts.Logger.Warn("watch: %v", err)
		case <-timerC:
			timer, timerC = nil, nil
			changed := make([]string, 0, len(pending))
			for path := range pending {
				changed = append(changed, path)
			}
			sort.Strings(changed)
			clear(pending)
			handler(w.Reload(changed))
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	return plugins.IsDefinitionFile(name) || plugins.IsScriptFile(name)
}

// Close releases the underlying watcher without running.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
