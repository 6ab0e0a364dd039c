package plugins

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDefinition = `id: two-state
name: Two state
hierarchy:
  name: root
  children:
    - name: rest
    - name: move
distributions:
  - level: root
    streams:
      - name: step
        dist: gamma
`

func TestLoadDefinitionDir(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "two-state.yaml")
	if err := os.WriteFile(path, []byte(sampleDefinition), 0644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatalf("write notes: %v", err)
	}
	defs, err := LoadDefinitionDir(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0].Path != path {
		t.Fatalf("expected path %s, got %s", path, defs[0].Path)
	}
	if defs[0].Definition.ID != "two-state" {
		t.Fatalf("unexpected id: %+v", defs[0].Definition)
	}
}

func TestLoadDefinitionDirMissing(t *testing.T) {
	defs, err := LoadDefinitionDir(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if defs != nil {
		t.Fatalf("expected nil slice for missing dir, got %v", defs)
	}
}

func TestLoadDefinitionDirReportsBrokenFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "broken.yml"), []byte("id: [\n"), 0644); err != nil {
		t.Fatalf("write broken: %v", err)
	}
	if _, err := LoadDefinitionDir(root); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLoadDefinitionFileRejectsDirectory(t *testing.T) {
	if _, err := LoadDefinitionFile(t.TempDir()); err == nil {
		t.Fatalf("expected error for directory path")
	}
}
