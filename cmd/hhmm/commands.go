package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/hhmmkit/internal/artifact"
	"github.com/kingrea/hhmmkit/internal/catalog"
	"github.com/kingrea/hhmmkit/internal/config"
	"github.com/kingrea/hhmmkit/internal/export"
	"github.com/kingrea/hhmmkit/internal/modelerr"
	"github.com/kingrea/hhmmkit/internal/tui"
	"github.com/kingrea/hhmmkit/internal/watch"
	"github.com/kingrea/hhmmkit/plugins"
)

const exampleModelYAML = `# Two coarse behaviours, each with two fine states. Step length is observed
# for every state, turning angle only within "forage".
id: example
name: Example two-level model
hierarchy:
  name: root
  children:
    - name: forage
      children:
        - name: forage.slow
        - name: forage.fast
    - name: travel
      children:
        - name: travel.slow
        - name: travel.fast
distributions:
  - level: root
    streams:
      - name: step
        dist: gamma
  - level: forage
    streams:
      - name: angle
        dist: vm
constraints:
  step:
    mean: sibling
initial:
  step:
    mean: [50, 500, 50, 500]
    sd: [20, 200, 20, 200]
`

func (c *cli) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the project layout and an example model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitProjectDir(c.cfg.ProjectDir); err != nil {
				return err
			}
			// reload so a freshly written config.yaml is picked up
			cfg, err := config.NewConfig(c.cfg.ProjectDir)
			if err != nil {
				return err
			}
			c.cfg = cfg
			fmt.Fprintf(c.out, "initialized %s\n", filepath.Join(cfg.ProjectDir, config.ProjectDirName))

			files, err := plugins.LoadDefinitionDir(cfg.ModelsDir())
			if err != nil {
				return err
			}
			if len(files) > 0 {
				fmt.Fprintf(c.out, "%d model definition(s) already in %s\n", len(files), cfg.ModelsDir())
				return nil
			}
			if err := os.MkdirAll(cfg.ModelsDir(), 0o755); err != nil {
				return err
			}
			path := filepath.Join(cfg.ModelsDir(), "example.yaml")
			if err := os.WriteFile(path, []byte(exampleModelYAML), 0o644); err != nil {
				return err
			}
			c.logger.Info("init: wrote %s", path)
			fmt.Fprintf(c.out, "wrote %s\n", path)
			return nil
		},
	}
}

func (c *cli) validateCmd() *cobra.Command {
	var noRecord bool
	cmd := &cobra.Command{
		Use:   "validate [files...]",
		Short: "Build model definitions and report errors",
		Long: `validate builds every definition in the project (or only the given
YAML files and Go scripts) and prints one line per model. Successful builds
are stored in the catalog as new versions unless --no-record is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []plugins.DefinitionFile
			if len(args) > 0 {
				for _, path := range args {
					loaded, err := plugins.LoadPath(path)
					if err != nil {
						return &exitError{code: exitValidation, err: err}
					}
					files = append(files, loaded...)
				}
			} else {
				discovered, err := c.discover()
				if err != nil {
					return &exitError{code: exitValidation, err: err}
				}
				files = discovered
			}
			if len(files) == 0 {
				fmt.Fprintln(c.out, tui.RenderMuted("no model definitions found in "+c.cfg.ModelsDir()))
				return nil
			}

			var store *catalog.Store
			if !noRecord {
				s, err := c.catalog()
				if err != nil {
					return err
				}
				store = s
			}
			results := plugins.BuildAll(files, c.registry)
			failures := 0
			for _, res := range results {
				if res.Err != nil {
					failures++
					c.reportFailure(res)
					if store != nil {
						if err := store.RecordFailure(res.File.Definition.ID, res.Err); err != nil {
							c.logger.Warn("catalog: %v", err)
						}
					}
					continue
				}
				line := fmt.Sprintf("✓ %s  %s", res.Spec.ID(), tui.RenderMuted(res.Spec.Summary()))
				if store != nil {
					rec, created, err := store.Save(res.Spec)
					if err != nil {
						return err
					}
					if created {
						line += tui.RenderMuted("  new version " + shortVersion(rec.VersionID))
					}
				}
				c.logger.Info("validate %s: ok", res.Spec.ID())
				fmt.Fprintln(c.out, line)
			}
			if failures > 0 {
				return failed(failures)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not store results in the catalog")
	return cmd
}

func (c *cli) reportFailure(res plugins.BuildResult) {
	name := res.File.Definition.ID
	if name == "" {
		name = res.File.Path
	}
	fmt.Fprintln(c.out, tui.RenderError(fmt.Sprintf("✗ %s (%s)", name, res.File.Path)))
	fmt.Fprintf(c.out, "    %v\n", res.Err)
	var me *modelerr.Error
	if errors.As(res.Err, &me) {
		for _, s := range me.Suggestions {
			fmt.Fprintf(c.out, "    hint: %s\n", s)
		}
	}
	c.logger.Warn("validate %s: %v", name, res.Err)
}

func (c *cli) treeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [model]",
		Short: "Show the state hierarchy and the streams attached to each level",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := c.loadSpec(args)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, tui.RenderHierarchy(spec.Hierarchy(), spec.Distributions()))
			fmt.Fprintln(c.out)
			fmt.Fprintln(c.out, tui.RenderStreams(spec.Distributions()))
			return nil
		},
	}
}

func (c *cli) matrixCmd() *cobra.Command {
	var (
		stream string
		asCSV  bool
	)
	cmd := &cobra.Command{
		Use:   "matrix [model]",
		Short: "Print constraint matrices",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := c.loadSpec(args)
			if err != nil {
				return err
			}
			streams := spec.StreamNames()
			if stream != "" {
				if _, ok := spec.Constraint(stream); !ok {
					msg := fmt.Sprintf("model %s has no stream %q", spec.ID(), stream)
					if hints := modelerr.DidYouMean(stream, streams); len(hints) > 0 {
						msg += " (" + strings.Join(hints, "; ") + ")"
					}
					return usageErrorf("%s", msg)
				}
				streams = []string{stream}
			}
			if asCSV {
				if len(streams) != 1 {
					return usageErrorf("--csv needs --stream (one of %s)", strings.Join(streams, ", "))
				}
				return export.Render(c.out, spec, export.FormatCSV, streams[0])
			}
			for i, name := range streams {
				m, _ := spec.Constraint(name)
				if i > 0 {
					fmt.Fprintln(c.out)
				}
				fmt.Fprintf(c.out, "%s  %s\n", name, tui.RenderMuted(fmt.Sprintf("%d raw × %d free", m.Rows(), m.Cols())))
				fmt.Fprintln(c.out, tui.RenderMatrix(m))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&stream, "stream", "s", "", "only this stream")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "write CSV instead of a table")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var (
		format string
		stream string
		out    string
		all    bool
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "export [model]",
		Short: "Render a spec as CSV, JSON, an R script or markdown",
		Long: `export writes one rendering to stdout (or --out). With --all every
artifact (spec JSON, one design matrix per stream, the R script and the
summary) is written under the exports directory, skipping files already
produced from the same spec unless --force is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := c.loadSpec(args)
			if err != nil {
				return err
			}
			if all {
				dir := c.cfg.ExportsDir()
				if out != "" {
					dir = out
				}
				paths, err := export.WriteAll(artifact.NewStore(dir), spec, force)
				if err != nil {
					return err
				}
				if len(paths) == 0 {
					fmt.Fprintln(c.out, tui.RenderMuted("exports are up to date"))
				}
				for _, p := range paths {
					fmt.Fprintln(c.out, p)
				}
				c.logger.Info("export %s: %d file(s)", spec.ID(), len(paths))
				return nil
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			if f == export.FormatCSV && stream == "" {
				if names := spec.StreamNames(); len(names) == 1 {
					stream = names[0]
				}
			}
			if out == "" {
				return export.Render(c.out, spec, f, stream)
			}
			file, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := export.Render(file, spec, f, stream); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			c.logger.Info("export %s: %s", spec.ID(), out)
			fmt.Fprintln(c.out, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatJSON), "csv, json, r or md")
	cmd.Flags().StringVarP(&stream, "stream", "s", "", "stream for csv output")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (directory with --all)")
	cmd.Flags().BoolVar(&all, "all", false, "write every artifact to the exports directory")
	cmd.Flags().BoolVar(&force, "force", false, "rewrite artifacts even when current")
	return cmd
}

func (c *cli) previewCmd() *cobra.Command {
	var (
		draws int
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "preview [model]",
		Short: "Sample each state's starting distribution and report moments",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := c.loadSpec(args)
			if err != nil {
				return err
			}
			rows, err := spec.Preview(draws, seed)
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			fmt.Fprintln(c.out, tui.RenderPreview(rows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&draws, "draws", "n", 1000, "draws per state")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var (
		limit    int
		failures bool
	)
	cmd := &cobra.Command{
		Use:   "history [model]",
		Short: "List stored spec versions or build failures",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.catalog()
			if err != nil {
				return err
			}
			modelID := ""
			if len(args) > 0 {
				modelID = strings.TrimSpace(args[0])
			}
			if failures {
				list, err := store.Failures(modelID, limit)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(c.out, tui.RenderMuted("no failures recorded"))
					return nil
				}
				fmt.Fprintln(c.out, tui.RenderFailures(list))
				return nil
			}
			records, err := store.List(modelID, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				if modelID == "" {
					fmt.Fprintln(c.out, tui.RenderMuted("no versions stored yet, run validate first"))
					return nil
				}
				known, _ := store.Models()
				msg := fmt.Sprintf("no versions stored for %q", modelID)
				if hints := modelerr.DidYouMean(modelID, known); len(hints) > 0 {
					msg += " (" + strings.Join(hints, "; ") + ")"
				}
				fmt.Fprintln(c.out, tui.RenderMuted(msg))
				return nil
			}
			fmt.Fprintln(c.out, tui.RenderHistory(records))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows (0 for all)")
	cmd.Flags().BoolVar(&failures, "failures", false, "show build failures instead of versions")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	var record bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild definitions whenever they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := c.newWatcher()
			if err != nil {
				return err
			}
			defer w.Close()
			var store *catalog.Store
			if record {
				if store, err = c.catalog(); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Fprintf(c.out, "watching %s (ctrl+c to stop)\n", strings.Join(w.Dirs(), ", "))
			err = w.Run(ctx, func(r watch.Report) {
				c.printReport(r, store)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "store each successful build in the catalog")
	return cmd
}

func (c *cli) printReport(r watch.Report, store *catalog.Store) {
	stamp := r.At.Local().Format("15:04:05")
	if r.Err != nil {
		fmt.Fprintln(c.out, tui.RenderError(fmt.Sprintf("[%s] %v", stamp, r.Err)))
		return
	}
	fmt.Fprintln(c.out, tui.RenderMuted(fmt.Sprintf("[%s] %d model(s), %d failed", stamp, len(r.Results), r.Failed())))
	for _, res := range r.Results {
		if res.Err != nil {
			c.reportFailure(res)
			if store != nil {
				if err := store.RecordFailure(res.File.Definition.ID, res.Err); err != nil {
					c.logger.Warn("catalog: %v", err)
				}
			}
			continue
		}
		fmt.Fprintf(c.out, "✓ %s  %s\n", res.Spec.ID(), tui.RenderMuted(res.Spec.Summary()))
		if store != nil {
			if _, _, err := store.Save(res.Spec); err != nil {
				c.logger.Warn("catalog: %v", err)
			}
		}
	}
}

func (c *cli) newWatcher() (*watch.Watcher, error) {
	return watch.New(watch.Options{
		ModelsDir:  c.cfg.ModelsDir(),
		ScriptsDir: c.cfg.PluginsDir(),
		Debounce:   c.cfg.WatchDebounce(),
		Registry:   c.registry,
		Logger:     c.logger,
	})
}

func (c *cli) browseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse models interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []tui.AppOption{tui.WithRegistry(c.registry), tui.WithLogger(c.logger)}
			if store, err := c.catalog(); err == nil {
				opts = append(opts, tui.WithCatalog(store))
			} else {
				c.logger.Warn("catalog: %v", err)
			}
			p := tea.NewProgram(tui.NewApp(c.cfg, opts...), tea.WithAltScreen())

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if w, err := c.newWatcher(); err == nil {
				defer w.Close()
				go func() {
					_ = w.Run(ctx, func(r watch.Report) {
						p.Send(tui.WatchMsg(r))
					})
				}()
			} else {
				c.logger.Warn("watch: %v", err)
			}

			_, err := p.Run()
			return err
		},
	}
}

func shortVersion(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
