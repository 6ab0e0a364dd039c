package plugins

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/kingrea/hhmmkit/internal/config"
	"github.com/kingrea/hhmmkit/internal/distribution"
	"github.com/kingrea/hhmmkit/internal/model"
)

// Discover loads YAML definitions from modelsDir and scripted definitions
// from scriptsDir. Model ids must be unique across both sources.
func Discover(modelsDir, scriptsDir string) ([]DefinitionFile, error) {
	yamlDefs, err := LoadDefinitionDir(modelsDir)
	if err != nil {
		return nil, err
	}
	goDefs, err := LoadGoDefinitionDir(scriptsDir)
	if err != nil {
		return nil, err
	}
	all := append(yamlDefs, goDefs...)
	seen := make(map[string]string, len(all))
	for _, file := range all {
		id := file.Definition.ID
		if existing, ok := seen[id]; ok {
			return nil, fmt.Errorf("plugin: duplicate model id %s (%s and %s)", id, existing, file.Path)
		}
		seen[id] = file.Path
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Path < all[j].Path })
	return all, nil
}

// LoadPath loads a single YAML definition or every definition a Go script
// generates.
func LoadPath(path string) ([]DefinitionFile, error) {
	name := filepath.Base(path)
	switch {
	case IsDefinitionFile(name):
		file, err := LoadDefinitionFile(path)
		if err != nil {
			return nil, err
		}
		return []DefinitionFile{file}, nil
	case IsScriptFile(name):
		return loadGoDefinitionFile(path)
	}
	return nil, fmt.Errorf("plugin: %s is neither a .yaml definition nor a .go script", path)
}

// DiscoverProject runs Discover against the directories configured for a project.
func DiscoverProject(cfg *config.Config) ([]DefinitionFile, error) {
	if cfg == nil {
		return nil, nil
	}
	return Discover(cfg.ModelsDir(), cfg.PluginsDir())
}

// Find returns the definition with the given id.
func Find(files []DefinitionFile, id string) (DefinitionFile, bool) {
	for _, file := range files {
		if file.Definition.ID == id {
			return file, true
		}
	}
	return DefinitionFile{}, false
}

// IDs lists model ids in discovery order.
func IDs(files []DefinitionFile) []string {
	out := make([]string, len(files))
	for i, file := range files {
		out[i] = file.Definition.ID
	}
	return out
}

// BuildResult is the outcome of building one discovered definition.
type BuildResult struct {
	File DefinitionFile
	Spec *model.Spec
	Err  error
}

// BuildAll builds every definition independently. A failure in one model
// does not stop the others.
func BuildAll(files []DefinitionFile, reg *distribution.Registry) []BuildResult {
	results := make([]BuildResult, len(files))
	for i, file := range files {
		spec, err := model.Build(file.Definition, reg)
		results[i] = BuildResult{File: file, Spec: spec, Err: err}
	}
	return results
}
