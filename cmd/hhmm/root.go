package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/hhmmkit/internal/catalog"
	"github.com/kingrea/hhmmkit/internal/config"
	"github.com/kingrea/hhmmkit/internal/distribution"
	"github.com/kingrea/hhmmkit/internal/logging"
	"github.com/kingrea/hhmmkit/internal/model"
	"github.com/kingrea/hhmmkit/internal/modelerr"
	"github.com/kingrea/hhmmkit/plugins"
)

// cli holds what every subcommand shares once the project is resolved.
type cli struct {
	projectFlag string
	verbose     bool

	out    io.Writer
	errOut io.Writer

	cfg      *config.Config
	logger   *logging.Logger
	registry *distribution.Registry
	store    *catalog.Store
}

func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{out: stdout, errOut: stderr, registry: distribution.Default()}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	c.close()
	if err != nil {
		printError(stderr, err)
	}
	return exitCode(err)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hhmm",
		Short: "Build and inspect hierarchical HMM specifications",
		Long: `hhmm turns declarative model definitions (a state hierarchy, the data
streams observed at each level and the parameter sharing between states)
into validated specifications: numbered states, a distribution map and one
constraint matrix per stream, ready to hand to a fitting tool.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.PersistentFlags().StringVarP(&c.projectFlag, "project", "p", "", "project directory (defaults to $"+config.EnvProject+" or the working directory)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "echo warnings and errors from the log to stderr")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &exitError{code: exitUsage, err: fmt.Errorf("%w\n%s", err, strings.TrimRight(cmd.UsageString(), "\n"))}
	})

	root.AddCommand(
		c.initCmd(),
		c.validateCmd(),
		c.treeCmd(),
		c.matrixCmd(),
		c.exportCmd(),
		c.previewCmd(),
		c.historyCmd(),
		c.watchCmd(),
		c.browseCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	dir, err := config.ResolveProjectDir(c.projectFlag)
	if err != nil {
		return err
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return err
	}
	c.cfg = cfg
	level, err := logging.ParseLevel(cfg.LogLevel())
	if err != nil {
		level = logging.LevelInfo
	}
	logger, err := logging.New(cfg.LogsDir(), level)
	if err != nil {
		return err
	}
	if c.verbose {
		logger.SetEcho(c.errOut)
	}
	c.logger = logger
	c.logger.Debug("%s in %s", cmd.CommandPath(), cfg.ProjectDir)
	return nil
}

func (c *cli) close() {
	if c.store != nil {
		c.store.Close()
	}
	c.logger.Close()
}

// catalog opens the build history lazily.
func (c *cli) catalog() (*catalog.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	store, err := catalog.Open(c.cfg.CatalogPath())
	if err != nil {
		return nil, err
	}
	c.store = store
	return store, nil
}

func (c *cli) discover() ([]plugins.DefinitionFile, error) {
	files, err := plugins.DiscoverProject(c.cfg)
	if err != nil {
		return nil, err
	}
	return files, nil
}

// resolveModelID picks the model a command works on: the argument, the
// configured default, or the only model in the project.
func (c *cli) resolveModelID(args []string, files []plugins.DefinitionFile) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	if id := c.cfg.DefaultModel(); id != "" {
		return id, nil
	}
	if len(files) == 1 {
		return files[0].Definition.ID, nil
	}
	if len(files) == 0 {
		return "", usageErrorf("no model definitions in %s", c.cfg.ModelsDir())
	}
	return "", usageErrorf("model id required, one of: %s", strings.Join(plugins.IDs(files), ", "))
}

// loadSpec discovers definitions and builds the requested one.
func (c *cli) loadSpec(args []string) (*model.Spec, error) {
	files, err := c.discover()
	if err != nil {
		return nil, err
	}
	id, err := c.resolveModelID(args, files)
	if err != nil {
		return nil, err
	}
	file, found := plugins.Find(files, id)
	if !found {
		msg := fmt.Sprintf("unknown model %q", id)
		if hints := modelerr.DidYouMean(id, plugins.IDs(files)); len(hints) > 0 {
			msg += " (" + strings.Join(hints, "; ") + ")"
		}
		return nil, &exitError{code: exitUsage, err: errors.New(msg)}
	}
	spec, err := model.Build(file.Definition, c.registry)
	if err != nil {
		c.logger.Warn("%s: %v", file.Path, err)
		return nil, err
	}
	return spec, nil
}
