package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// SidecarSuffix is appended to KindText paths to locate their metadata.
const SidecarSuffix = ".meta.yaml"

const jsonMetaKey = "_hhmm"

// Store manages artifact IO rooted at the exports directory.
type Store struct {
	root string
	now  func() time.Time
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for metadata timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = clock
	}
}

// NewStore builds a store rooted at dir.
func NewStore(dir string, opts ...StoreOption) *Store {
	store := &Store{
		root: dir,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Root returns the exports directory.
func (s *Store) Root() string {
	return s.root
}

// Check inspects the artifact on disk and returns its status and metadata.
// A body whose checksum no longer matches its metadata is invalid.
func (s *Store) Check(ref ArtifactRef, target Target) (CheckResult, error) {
	path := ref.Path(s.root, target)
	if path == "" {
		err := fmt.Errorf("artifact: %s path could not be resolved", ref.ID)
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CheckResult{Ref: ref, Path: path, State: StateMissing}, nil
		}
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	var (
		meta    Metadata
		body    []byte
		metaErr error
	)
	switch ref.Kind {
	case KindJSON:
		meta, body, metaErr = parseJSONMetadata(data)
	case KindText:
		body = data
		sidecar, readErr := os.ReadFile(path + SidecarSuffix)
		if readErr != nil {
			if errors.Is(readErr, fs.ErrNotExist) {
				return invalidResult(ref, path, fmt.Errorf("artifact: %s has no metadata sidecar", path))
			}
			return CheckResult{Ref: ref, Path: path, State: StateError, Err: readErr}, readErr
		}
		meta, metaErr = parseEnvelope(sidecar)
	default:
		meta, body, metaErr = ParseFrontMatter(data)
	}
	if metaErr != nil {
		return invalidResult(ref, path, metaErr)
	}
	if meta.ArtifactID != ref.ID {
		return invalidResult(ref, path, fmt.Errorf("artifact: metadata id %s does not match %s", meta.ArtifactID, ref.ID))
	}
	if meta.Checksum != "" && meta.Checksum != Checksum(body) {
		return invalidResult(ref, path, fmt.Errorf("artifact: %s was modified after export", path))
	}
	return CheckResult{Ref: ref, Path: path, State: StateReady, Metadata: &meta}, nil
}

// Write persists the artifact contents and metadata based on its kind and
// returns the path written.
func (s *Store) Write(ref ArtifactRef, target Target, body []byte, meta Metadata) (string, error) {
	path := ref.Path(s.root, target)
	if path == "" {
		return "", fmt.Errorf("artifact: %s path could not be resolved", ref.ID)
	}
	if body == nil {
		body = []byte{}
	}
	prepared := meta.WithDefaults(ref, target, s.now())
	if err := prepared.ValidateFor(ref); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	switch ref.Kind {
	case KindJSON:
		return path, s.writeJSON(path, ref, body, prepared)
	case KindText:
		return path, s.writeText(path, body, prepared)
	default:
		return path, s.writeDocument(path, body, prepared)
	}
}

func (s *Store) writeDocument(path string, body []byte, meta Metadata) error {
	meta.Checksum = Checksum(body)
	content, err := WriteFrontMatter(meta, body)
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

func (s *Store) writeText(path string, body []byte, meta Metadata) error {
	meta.Checksum = Checksum(body)
	sidecar, err := encodeEnvelope(meta)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return err
	}
	return os.WriteFile(path+SidecarSuffix, sidecar, 0o644)
}

func (s *Store) writeJSON(path string, ref ArtifactRef, body []byte, meta Metadata) error {
	if len(body) == 0 {
		body = []byte("{}")
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("artifact: invalid json body for %s: %w", ref.ID, err)
	}
	meta.Checksum = Checksum(canonicalJSON(payload))
	block, err := json.Marshal(metadataToJSON(meta))
	if err != nil {
		return fmt.Errorf("artifact: encode metadata for %s: %w", ref.ID, err)
	}
	payload[jsonMetaKey] = block
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode json for %s: %w", ref.ID, err)
	}
	return os.WriteFile(path, encoded, 0o644)
}

// Checksum is the hex sha256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalJSON re-encodes a payload compactly with sorted keys so checksums
// survive indentation changes.
func canonicalJSON(payload map[string]json.RawMessage) []byte {
	clean := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == jsonMetaKey {
			continue
		}
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			clean[k] = string(v)
			continue
		}
		clean[k] = decoded
	}
	data, _ := json.Marshal(clean)
	return data
}

func invalidResult(ref ArtifactRef, path string, err error) (CheckResult, error) {
	return CheckResult{Ref: ref, Path: path, State: StateInvalid, Err: err}, err
}

func parseJSONMetadata(data []byte) (Metadata, []byte, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return Metadata{}, nil, fmt.Errorf("artifact: parse json metadata: %w", err)
	}
	raw, ok := payload[jsonMetaKey]
	if !ok {
		return Metadata{}, nil, fmt.Errorf("artifact: missing %s metadata", jsonMetaKey)
	}
	var block jsonMetadata
	if err := json.Unmarshal(raw, &block); err != nil {
		return Metadata{}, nil, fmt.Errorf("artifact: invalid %s metadata structure: %w", jsonMetaKey, err)
	}
	meta, err := block.toMetadata()
	if err != nil {
		return Metadata{}, nil, err
	}
	return meta, canonicalJSON(payload), nil
}

type jsonMetadata struct {
	Artifact    string            `json:"artifact"`
	Model       string            `json:"model"`
	Stream      string            `json:"stream,omitempty"`
	Fingerprint string            `json:"fingerprint"`
	Tool        string            `json:"tool,omitempty"`
	Created     string            `json:"created"`
	Checksum    string            `json:"checksum,omitempty"`
	Notes       map[string]string `json:"notes,omitempty"`
}

func metadataToJSON(meta Metadata) jsonMetadata {
	return jsonMetadata{
		Artifact:    meta.ArtifactID,
		Model:       meta.ModelID,
		Stream:      meta.Stream,
		Fingerprint: meta.Fingerprint,
		Tool:        meta.Tool,
		Created:     meta.CreatedAt.UTC().Format(timeLayout),
		Checksum:    meta.Checksum,
		Notes:       cloneNotes(meta.Notes),
	}
}

func (m jsonMetadata) toMetadata() (Metadata, error) {
	if m.Artifact == "" || m.Model == "" || m.Fingerprint == "" {
		return Metadata{}, fmt.Errorf("artifact: incomplete metadata")
	}
	created, err := parseTime(m.Created)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		ArtifactID:  m.Artifact,
		ModelID:     m.Model,
		Stream:      m.Stream,
		Fingerprint: m.Fingerprint,
		Tool:        m.Tool,
		CreatedAt:   created,
		Checksum:    m.Checksum,
		Notes:       cloneNotes(m.Notes),
	}, nil
}
