package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("artifact: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("artifact: malformed frontmatter")
)

// ParseFrontMatter extracts the metadata block and body from a document that starts
// with `---` YAML fences.
func ParseFrontMatter(content []byte) (Metadata, []byte, error) {
	if len(content) == 0 {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	normalized := normalizeNewlines(content)
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	rest := normalized[4:]
	parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Metadata{}, nil, ErrMalformedFrontMatter
	}
	meta, err := parseEnvelope(parts[0])
	if err != nil {
		return Metadata{}, nil, err
	}
	return meta, bytes.TrimPrefix(parts[1], []byte("\n")), nil
}

// WriteFrontMatter renders metadata + body with YAML fences.
func WriteFrontMatter(meta Metadata, body []byte) ([]byte, error) {
	data, err := encodeEnvelope(meta)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

func encodeEnvelope(meta Metadata) ([]byte, error) {
	if meta.ArtifactID == "" {
		return nil, fmt.Errorf("artifact: metadata missing artifact id")
	}
	envelope := hhmmEnvelope{}
	envelope.fromMetadata(meta)
	data, err := yaml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("artifact: encode metadata: %w", err)
	}
	return data, nil
}

func parseEnvelope(data []byte) (Metadata, error) {
	var envelope hhmmEnvelope
	if err := yaml.Unmarshal(data, &envelope); err != nil {
		return Metadata{}, fmt.Errorf("artifact: parse metadata: %w", err)
	}
	return envelope.toMetadata()
}

type hhmmEnvelope struct {
	HHMM hhmmMetadata `yaml:"hhmm"`
}

type hhmmMetadata struct {
	Artifact    string            `yaml:"artifact"`
	Model       string            `yaml:"model"`
	Stream      string            `yaml:"stream,omitempty"`
	Fingerprint string            `yaml:"fingerprint"`
	Tool        string            `yaml:"tool,omitempty"`
	Created     string            `yaml:"created"`
	Checksum    string            `yaml:"checksum,omitempty"`
	Notes       map[string]string `yaml:"notes,omitempty"`
}

func (e hhmmEnvelope) toMetadata() (Metadata, error) {
	if e.HHMM.Artifact == "" || e.HHMM.Model == "" || e.HHMM.Fingerprint == "" {
		return Metadata{}, ErrMalformedFrontMatter
	}
	created, err := parseTime(e.HHMM.Created)
	if err != nil {
		return Metadata{}, fmt.Errorf("artifact: parse created timestamp: %w", err)
	}
	return Metadata{
		ArtifactID:  e.HHMM.Artifact,
		ModelID:     e.HHMM.Model,
		Stream:      e.HHMM.Stream,
		Fingerprint: e.HHMM.Fingerprint,
		Tool:        e.HHMM.Tool,
		CreatedAt:   created,
		Checksum:    e.HHMM.Checksum,
		Notes:       cloneNotes(e.HHMM.Notes),
	}, nil
}

func (e *hhmmEnvelope) fromMetadata(meta Metadata) {
	e.HHMM.Artifact = meta.ArtifactID
	e.HHMM.Model = meta.ModelID
	e.HHMM.Stream = meta.Stream
	e.HHMM.Fingerprint = meta.Fingerprint
	e.HHMM.Tool = meta.Tool
	e.HHMM.Created = meta.CreatedAt.UTC().Format(timeLayout)
	e.HHMM.Checksum = meta.Checksum
	e.HHMM.Notes = cloneNotes(meta.Notes)
}

func cloneNotes(notes map[string]string) map[string]string {
	if len(notes) == 0 {
		return nil
	}
	cloned := make(map[string]string, len(notes))
	for k, v := range notes {
		cloned[k] = v
	}
	return cloned
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func parseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("artifact: empty created timestamp")
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func normalizeNewlines(content []byte) []byte {
	return bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
}
