// Package catalog keeps the build history of model specifications in SQLite.
// Every successful build with a new fingerprint becomes an immutable version;
// failed builds are logged with their error code.
package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kingrea/hhmmkit/internal/model"
	"github.com/kingrea/hhmmkit/internal/modelerr"
)

// ErrNotFound is returned when no version matches.
var ErrNotFound = errors.New("catalog: not found")

const schema = `
CREATE TABLE IF NOT EXISTS spec_versions (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id    TEXT NOT NULL UNIQUE,
	model_id      TEXT NOT NULL,
	parent_id     TEXT,
	fingerprint   TEXT NOT NULL,
	state_count   INTEGER NOT NULL,
	stream_count  INTEGER NOT NULL,
	free_params   INTEGER NOT NULL,
	summary       TEXT NOT NULL,
	spec_json     TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	UNIQUE (model_id, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_spec_versions_model ON spec_versions(model_id, seq);

CREATE TABLE IF NOT EXISTS build_failures (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	model_id      TEXT NOT NULL,
	code          TEXT NOT NULL,
	message       TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
`

// Record is one stored specification version.
type Record struct {
	VersionID   string
	ModelID     string
	ParentID    string
	Fingerprint string
	States      int
	Streams     int
	FreeParams  int
	Summary     string
	SpecJSON    json.RawMessage
	CreatedAt   time.Time
}

// Document decodes the stored specification.
func (r Record) Document() (model.Document, error) {
	var doc model.Document
	if err := json.Unmarshal(r.SpecJSON, &doc); err != nil {
		return model.Document{}, fmt.Errorf("catalog: decode %s: %w", r.VersionID, err)
	}
	return doc, nil
}

// Failure is one logged build failure.
type Failure struct {
	ModelID   string
	Code      string
	Message   string
	CreatedAt time.Time
}

// Store manages specification versions in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for created_at.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.now = clock
	}
}

// Open opens (or creates) the catalog database and runs migrations.
func Open(dbPath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("catalog: ensure dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("catalog: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a built spec. If the model already has a version with the same
// fingerprint, that version is returned and created is false.
func (s *Store) Save(spec *model.Spec) (rec Record, created bool, err error) {
	fingerprint := spec.Fingerprint()
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return Record{}, false, fmt.Errorf("catalog: marshal spec %s: %w", spec.ID(), err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Record{}, false, fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanRecord(tx.QueryRow(selectColumns+` WHERE model_id = ? AND fingerprint = ?`, spec.ID(), fingerprint))
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, ErrNotFound):
		return Record{}, false, err
	}

	var parent sql.NullString
	err = tx.QueryRow(`SELECT version_id FROM spec_versions WHERE model_id = ? ORDER BY seq DESC LIMIT 1`, spec.ID()).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, fmt.Errorf("catalog: find parent: %w", err)
	}

	rec = Record{
		VersionID:   uuid.New().String(),
		ModelID:     spec.ID(),
		ParentID:    parent.String,
		Fingerprint: fingerprint,
		States:      spec.Hierarchy().LeafCount(),
		Streams:     len(spec.StreamNames()),
		FreeParams:  spec.FreeParamCount(),
		Summary:     spec.Summary(),
		SpecJSON:    specJSON,
		CreatedAt:   s.now().UTC(),
	}
	_, err = tx.Exec(
		`INSERT INTO spec_versions (version_id, model_id, parent_id, fingerprint, state_count, stream_count, free_params, summary, spec_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, rec.ModelID, nullable(rec.ParentID), rec.Fingerprint, rec.States, rec.Streams, rec.FreeParams,
		rec.Summary, string(rec.SpecJSON), rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Record{}, false, fmt.Errorf("catalog: insert version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, false, fmt.Errorf("catalog: commit: %w", err)
	}
	return rec, true, nil
}

// Get retrieves a version by id.
func (s *Store) Get(versionID string) (Record, error) {
	rec, err := scanRecord(s.db.QueryRow(selectColumns+` WHERE version_id = ?`, versionID))
	if err != nil {
		return Record{}, fmt.Errorf("catalog: get %s: %w", versionID, err)
	}
	return rec, nil
}

// Latest returns the newest version of a model.
func (s *Store) Latest(modelID string) (Record, error) {
	rec, err := scanRecord(s.db.QueryRow(selectColumns+` WHERE model_id = ? ORDER BY seq DESC LIMIT 1`, modelID))
	if err != nil {
		return Record{}, fmt.Errorf("catalog: latest %s: %w", modelID, err)
	}
	return rec, nil
}

// List returns up to limit versions of a model, newest first. An empty
// modelID lists every model; limit <= 0 means no limit.
func (s *Store) List(modelID string, limit int) ([]Record, error) {
	query := selectColumns
	var args []any
	if modelID != "" {
		query += ` WHERE model_id = ?`
		args = append(args, modelID)
	}
	query += ` ORDER BY seq DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Models lists the ids that have at least one stored version.
func (s *Store) Models() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT model_id FROM spec_versions ORDER BY model_id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: models: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("catalog: scan model id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Delete removes a version. Children keep their parent id.
func (s *Store) Delete(versionID string) error {
	res, err := s.db.Exec(`DELETE FROM spec_versions WHERE version_id = ?`, versionID)
	if err != nil {
		return fmt.Errorf("catalog: delete %s: %w", versionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("catalog: delete %s: %w", versionID, ErrNotFound)
	}
	return nil
}

// RecordFailure logs a failed build. The error code comes from modelerr when present.
func (s *Store) RecordFailure(modelID string, buildErr error) error {
	if buildErr == nil {
		return nil
	}
	code := "ERROR"
	if c, ok := modelerr.CodeOf(buildErr); ok {
		code = string(c)
	}
	_, err := s.db.Exec(
		`INSERT INTO build_failures (model_id, code, message, created_at) VALUES (?, ?, ?, ?)`,
		modelID, code, buildErr.Error(), s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("catalog: record failure: %w", err)
	}
	return nil
}

// Failures returns up to limit logged failures for a model, newest first.
// An empty modelID lists failures of every model.
func (s *Store) Failures(modelID string, limit int) ([]Failure, error) {
	query := `SELECT model_id, code, message, created_at FROM build_failures`
	var args []any
	if modelID != "" {
		query += ` WHERE model_id = ?`
		args = append(args, modelID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: failures: %w", err)
	}
	defer rows.Close()
	var out []Failure
	for rows.Next() {
		var f Failure
		var created string
		if err := rows.Scan(&f.ModelID, &f.Code, &f.Message, &created); err != nil {
			return nil, fmt.Errorf("catalog: scan failure: %w", err)
		}
		f.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, f)
	}
	return out, rows.Err()
}

const selectColumns = `SELECT version_id, model_id, parent_id, fingerprint, state_count, stream_count, free_params, summary, spec_json, created_at FROM spec_versions`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var parent sql.NullString
	var specJSON, created string
	err := row.Scan(&rec.VersionID, &rec.ModelID, &parent, &rec.Fingerprint, &rec.States, &rec.Streams,
		&rec.FreeParams, &rec.Summary, &specJSON, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("catalog: scan version: %w", err)
	}
	rec.ParentID = parent.String
	rec.SpecJSON = json.RawMessage(specJSON)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return rec, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
