package plugins

import (
	"os"
	"path/filepath"
	"testing"
)

const goPluginSource = `package main

import "fmt"

func ModelDefinitions() ([]map[string]any, error) {
	var out []map[string]any
	for n := 2; n <= 3; n++ {
		var leaves []map[string]any
		for i := 1; i <= n; i++ {
			leaves = append(leaves, map[string]any{"name": fmt.Sprintf("s%d", i)})
		}
		out = append(out, map[string]any{
			"id": fmt.Sprintf("flat-%d", n),
			"hierarchy": map[string]any{
				"name":     "root",
				"children": leaves,
			},
			"distributions": []map[string]any{
				{
					"level":   "root",
					"streams": []map[string]any{{"name": "step", "dist": "gamma"}},
				},
			},
			"constraints": map[string]any{
				"step": map[string]any{"sd": "shared"},
			},
		})
	}
	return out, nil
}`

func TestLoadGoDefinitionDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "flat.go"), []byte(goPluginSource), 0644); err != nil {
		t.Fatalf("write plugin: %v", err)
	}
	defs, err := LoadGoDefinitionDir(dir)
	if err != nil {
		t.Fatalf("load go defs: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Definition.ID != "flat-2" || defs[1].Definition.ID != "flat-3" {
		t.Fatalf("unexpected ids: %v", IDs(defs))
	}
	if got := len(defs[1].Definition.Hierarchy.Children); got != 3 {
		t.Fatalf("expected 3 leaves, got %d", got)
	}
	if defs[0].Definition.Constraints["step"]["sd"].Strategy != "shared" {
		t.Fatalf("strategy not decoded: %+v", defs[0].Definition.Constraints)
	}
}

func TestLoadGoDefinitionDirMissingFunc(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.go"), []byte("package main\n"), 0644); err != nil {
		t.Fatalf("write broken plugin: %v", err)
	}
	if _, err := LoadGoDefinitionDir(dir); err == nil {
		t.Fatalf("expected error for missing ModelDefinitions function")
	}
}

func TestLoadGoDefinitionDirPropagatesScriptError(t *testing.T) {
	dir := t.TempDir()
	src := "package main\n\nimport \"errors\"\n\nfunc ModelDefinitions() ([]map[string]any, error) {\n\treturn nil, errors.New(\"no models today\")\n}\n"
	if err := os.WriteFile(filepath.Join(dir, "failing.go"), []byte(src), 0644); err != nil {
		t.Fatalf("write plugin: %v", err)
	}
	if _, err := LoadGoDefinitionDir(dir); err == nil {
		t.Fatalf("expected script error to surface")
	}
}
