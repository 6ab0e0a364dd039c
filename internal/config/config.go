// internal/config/config.go
//
// This package handles configuration and the .hhmm directory structure.
// Every project that uses hhmm gets a .hhmm/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ProjectDirName is the name of the directory we create in each project
	ProjectDirName = ".hhmm"

	// EnvProject overrides the project directory.
	EnvProject = "HHMM_PROJECT"

	defaultModelsDir  = "models"
	defaultPluginsDir = "models/scripts"
	defaultExportsDir = "exports"
	defaultCatalog    = ".hhmm/catalog.db"
	defaultLogLevel   = "info"
	defaultDebounce   = 300 * time.Millisecond
)

const defaultProjectConfigYAML = `# hhmm project configuration
version: 1

models:
  # Directory holding *.yaml model definitions, relative to the project root.
  dir: models
  # Model used when a command is given no model id.
  default: ""

plugins:
  # Go scripts exposing ModelDefinitions() are loaded from here.
  dir: models/scripts

catalog:
  path: .hhmm/catalog.db

exports:
  dir: exports

log:
  # debug, info, warn or error
  level: info

watch:
  debounce: 300ms
`

// ModelsConfig locates model definitions.
type ModelsConfig struct {
	Dir     string `yaml:"dir"`
	Default string `yaml:"default,omitempty"`
}

// PluginsConfig locates scripted model generators.
type PluginsConfig struct {
	Dir string `yaml:"dir"`
}

// CatalogConfig locates the build history database.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// ExportsConfig locates exported artifacts.
type ExportsConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig sets the minimum log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// WatchConfig tunes the definition watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce,omitempty"`
}

// ProjectConfig models .hhmm/config.yaml.
type ProjectConfig struct {
	Version int           `yaml:"version"`
	Models  ModelsConfig  `yaml:"models"`
	Plugins PluginsConfig `yaml:"plugins"`
	Catalog CatalogConfig `yaml:"catalog"`
	Exports ExportsConfig `yaml:"exports"`
	Log     LogConfig     `yaml:"log"`
	Watch   WatchConfig   `yaml:"watch,omitempty"`
}

// Config holds the runtime configuration for one project.
type Config struct {
	// ProjectDir is the directory hhmm runs against
	ProjectDir string

	// StateDir is ProjectDir/.hhmm
	StateDir string

	Project ProjectConfig
}

// ResolveProjectDir picks the project directory: an explicit flag value,
// then HHMM_PROJECT, then the working directory.
func ResolveProjectDir(flagValue string) (string, error) {
	dir := strings.TrimSpace(flagValue)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(EnvProject))
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("config: working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("config: resolve %s: %w", dir, err)
	}
	return abs, nil
}

// InitProjectDir creates the .hhmm directory structure in the given project
// directory and writes a default config.yaml when none exists.
//
// Structure created:
// .hhmm/
// ├── config.yaml
// └── logs/         <- hhmm.log
// models/           <- model definitions (configurable)
// exports/          <- exported matrices and scripts (configurable)
func InitProjectDir(projectDir string) error {
	stateDir := filepath.Join(projectDir, ProjectDirName)
	dirs := []string{
		filepath.Join(stateDir, "logs"),
		filepath.Join(projectDir, defaultModelsDir),
		filepath.Join(projectDir, defaultExportsDir),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(stateDir, "config.yaml"))
}

// NewConfig creates a new Config instance populated with project settings.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir: projectDir,
		StateDir:   filepath.Join(projectDir, ProjectDirName),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// ModelsDir returns the directory scanned for model definitions.
func (c *Config) ModelsDir() string {
	return resolvePath(c.ProjectDir, c.Project.Models.Dir)
}

// PluginsDir returns the directory scanned for scripted definitions.
func (c *Config) PluginsDir() string {
	return resolvePath(c.ProjectDir, c.Project.Plugins.Dir)
}

// CatalogPath returns the SQLite catalog location.
func (c *Config) CatalogPath() string {
	return resolvePath(c.ProjectDir, c.Project.Catalog.Path)
}

// ExportsDir returns where exports are written.
func (c *Config) ExportsDir() string {
	return resolvePath(c.ProjectDir, c.Project.Exports.Dir)
}

// LogLevel returns the configured minimum log level.
func (c *Config) LogLevel() string {
	return c.Project.Log.Level
}

// WatchDebounce returns the watcher quiet period.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Project.Watch.Debounce)
	if err != nil || d <= 0 {
		return defaultDebounce
	}
	return d
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// DefaultModel returns the configured default model identifier.
func (c *Config) DefaultModel() string {
	return c.Project.Models.Default
}

// SetDefaultModel updates the default model identifier and persists the
// value back to .hhmm/config.yaml.
func (c *Config) SetDefaultModel(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("config: model id is required")
	}
	c.Project.Models.Default = id
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{Version: 1}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Models.Dir) == "" {
		pc.Models.Dir = defaultModelsDir
	}
	if strings.TrimSpace(pc.Plugins.Dir) == "" {
		pc.Plugins.Dir = defaultPluginsDir
	}
	if strings.TrimSpace(pc.Catalog.Path) == "" {
		pc.Catalog.Path = defaultCatalog
	}
	if strings.TrimSpace(pc.Exports.Dir) == "" {
		pc.Exports.Dir = defaultExportsDir
	}
	if strings.TrimSpace(pc.Log.Level) == "" {
		pc.Log.Level = defaultLogLevel
	}
	if strings.TrimSpace(pc.Watch.Debounce) == "" {
		pc.Watch.Debounce = defaultDebounce.String()
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Models.Dir = strings.TrimSpace(pc.Models.Dir)
	pc.Models.Default = strings.TrimSpace(pc.Models.Default)
	pc.Plugins.Dir = strings.TrimSpace(pc.Plugins.Dir)
	pc.Catalog.Path = strings.TrimSpace(pc.Catalog.Path)
	pc.Exports.Dir = strings.TrimSpace(pc.Exports.Dir)
	pc.Log.Level = strings.ToLower(strings.TrimSpace(pc.Log.Level))
	pc.Watch.Debounce = strings.TrimSpace(pc.Watch.Debounce)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	if d, err := time.ParseDuration(pc.Watch.Debounce); err != nil || d <= 0 {
		return fmt.Errorf("watch.debounce must be a positive duration such as 300ms")
	}
	if filepath.Clean(pc.Models.Dir) == filepath.Clean(pc.Exports.Dir) {
		return fmt.Errorf("exports.dir must differ from models.dir")
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure state dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
