// Package artifact defines the files hhmm exports for a model and the
// provenance stored next to them. Each artifact has a stable identifier, a
// kind deciding where metadata lives, and a resolver that maps it to a path
// inside the exports directory.

package artifact

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// Kind captures the storage shape and serialization format for an artifact.
type Kind string

const (
	// KindDocument is a markdown document with YAML frontmatter.
	KindDocument Kind = "document"
	// KindJSON is a JSON document enriched with an _hhmm metadata block.
	KindJSON Kind = "json"
	// KindText is a file whose format cannot carry metadata (CSV, R); the
	// metadata goes to a .meta.yaml sidecar.
	KindText Kind = "text"
)

// Target names the model, and optionally the stream, an artifact belongs to.
type Target struct {
	Model  string
	Stream string
}

// PathResolver returns the path of an artifact relative to the exports root.
type PathResolver func(Target) string

// ArtifactRef declares a stable identifier and metadata for an artifact.
type ArtifactRef struct {
	ID          string
	Name        string
	Description string
	Kind        Kind
	PerStream   bool
	path        PathResolver
}

// Path resolves the artifact path under root.
func (r ArtifactRef) Path(root string, target Target) string {
	if r.path == nil || target.Model == "" {
		return ""
	}
	if r.PerStream && target.Stream == "" {
		return ""
	}
	return filepath.Clean(filepath.Join(root, r.path(target)))
}

// Validate ensures the reference is well-formed.
func (r ArtifactRef) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("artifact: id is required")
	}
	if r.Kind == "" {
		return fmt.Errorf("artifact: kind is required for %s", r.ID)
	}
	if r.path == nil {
		return fmt.Errorf("artifact: path resolver missing for %s", r.ID)
	}
	return nil
}

// Metadata captures provenance stored inside artifact frontmatter, metadata
// blocks or sidecars.
type Metadata struct {
	ArtifactID  string
	ModelID     string
	Stream      string
	Fingerprint string
	Tool        string
	CreatedAt   time.Time
	Checksum    string
	Notes       map[string]string
}

// WithDefaults ensures metadata carries the artifact ID and timestamps.
func (m Metadata) WithDefaults(ref ArtifactRef, target Target, now time.Time) Metadata {
	clone := m
	if clone.ArtifactID == "" {
		clone.ArtifactID = ref.ID
	}
	if clone.ModelID == "" {
		clone.ModelID = target.Model
	}
	if clone.Stream == "" {
		clone.Stream = target.Stream
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now.UTC()
	} else {
		clone.CreatedAt = clone.CreatedAt.UTC()
	}
	return clone
}

// ValidateFor ensures metadata matches the artifact contract.
func (m Metadata) ValidateFor(ref ArtifactRef) error {
	if m.ArtifactID != ref.ID {
		return fmt.Errorf("artifact: metadata id %s does not match ref %s", m.ArtifactID, ref.ID)
	}
	if m.ModelID == "" {
		return fmt.Errorf("artifact: model id is required for %s", ref.ID)
	}
	if m.Fingerprint == "" {
		return fmt.Errorf("artifact: fingerprint is required for %s", ref.ID)
	}
	return nil
}

// State captures the readiness of an artifact on disk.
type State string

const (
	StateMissing State = "missing"
	StateReady   State = "ready"
	StateInvalid State = "invalid"
	StateError   State = "error"
)

// CheckResult captures Store.Check results.
type CheckResult struct {
	Ref      ArtifactRef
	Path     string
	State    State
	Metadata *Metadata
	Err      error
}

// Current reports whether the artifact is ready and was produced from the
// given spec fingerprint.
func (r CheckResult) Current(fingerprint string) bool {
	return r.State == StateReady && r.Metadata != nil && r.Metadata.Fingerprint == fingerprint
}

// helper to register global references
func register(ref ArtifactRef) ArtifactRef {
	if refs == nil {
		refs = map[string]ArtifactRef{}
	}
	refs[ref.ID] = ref
	return ref
}

var refs map[string]ArtifactRef

// Lookup returns a registered artifact reference by ID.
func Lookup(id string) (ArtifactRef, bool) {
	ref, ok := refs[id]
	return ref, ok
}

// IDs lists registered artifact ids.
func IDs() []string {
	out := make([]string, 0, len(refs))
	for id := range refs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func newRef(id, name, desc string, kind Kind, perStream bool, resolver PathResolver) ArtifactRef {
	return ArtifactRef{
		ID:          id,
		Name:        name,
		Description: desc,
		Kind:        kind,
		PerStream:   perStream,
		path:        resolver,
	}
}

// Canonical export artifacts.
var (
	SpecJSON = register(newRef("spec-json", "Specification", "Full specification document for fitting tools", KindJSON, false, func(t Target) string {
		return filepath.Join(t.Model, "spec.json")
	}))
	DesignMatrixCSV = register(newRef("design-matrix", "Design Matrix", "Constraint matrix of one stream with row and column labels", KindText, true, func(t Target) string {
		return filepath.Join(t.Model, "dm", t.Stream+".csv")
	}))
	RScript = register(newRef("r-script", "R Hand-off Script", "momentuHMM script building hierStates, hierDist and DM", KindText, false, func(t Target) string {
		return filepath.Join(t.Model, "model.R")
	}))
	SummaryDoc = register(newRef("summary", "Summary Report", "SUMMARY.md describing states, streams and free parameters", KindDocument, false, func(t Target) string {
		return filepath.Join(t.Model, "SUMMARY.md")
	}))
)
