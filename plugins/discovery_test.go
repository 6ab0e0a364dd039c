package plugins

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kingrea/hhmmkit/internal/config"
)

func TestDiscoverProject(t *testing.T) {
	root := t.TempDir()
	if err := config.InitProjectDir(root); err != nil {
		t.Fatalf("init project: %v", err)
	}
	cfg, err := config.NewConfig(root)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := os.MkdirAll(cfg.PluginsDir(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.ModelsDir(), "two-state.yaml"), []byte(sampleDefinition), 0644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.PluginsDir(), "flat.go"), []byte(goPluginSource), 0644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	files, err := DiscoverProject(cfg)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 definitions, got %v", IDs(files))
	}
	if _, ok := Find(files, "flat-3"); !ok {
		t.Fatalf("flat-3 not found in %v", IDs(files))
	}

	results := BuildAll(files, nil)
	for _, res := range results {
		if res.Err != nil {
			t.Fatalf("build %s: %v", res.File.Definition.ID, res.Err)
		}
	}
}

func TestDiscoverRejectsDuplicateIDs(t *testing.T) {
	modelsDir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(modelsDir, name), []byte(sampleDefinition), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := Discover(modelsDir, ""); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestBuildAllKeepsGoing(t *testing.T) {
	good, err := LoadDefinitionDir(writeDefinition(t, sampleDefinition))
	if err != nil {
		t.Fatal(err)
	}
	bad := good[0]
	bad.Definition = good[0].Definition.Clone()
	bad.Definition.Distributions[0].Level = "nowhere"
	results := BuildAll([]DefinitionFile{bad, good[0]}, nil)
	if results[0].Err == nil || results[0].Spec != nil {
		t.Fatalf("expected first build to fail")
	}
	if results[1].Err != nil || results[1].Spec == nil {
		t.Fatalf("second build failed: %v", results[1].Err)
	}
}

func writeDefinition(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "model.yaml"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadPath(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "two-state.yml")
	scriptPath := filepath.Join(dir, "flat.go")
	if err := os.WriteFile(yamlPath, []byte(sampleDefinition), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(scriptPath, []byte(goPluginSource), 0644); err != nil {
		t.Fatal(err)
	}
	files, err := LoadPath(yamlPath)
	if err != nil || len(files) != 1 {
		t.Fatalf("yaml: %v (%d files)", err, len(files))
	}
	files, err = LoadPath(scriptPath)
	if err != nil || len(files) != 2 {
		t.Fatalf("script: %v (%d files)", err, len(files))
	}
	if _, err := LoadPath(filepath.Join(dir, "notes.txt")); err == nil {
		t.Fatalf("expected error for unsupported file")
	}
}
