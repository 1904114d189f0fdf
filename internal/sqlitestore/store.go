// Package sqlitestore persists configurations, lifecycle scripts and
// settings in a SQLite database. It implements boxmgr.Store.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/axondata/go-boxmgr"
)

// Keys of settings held in the kv table
const (
	KeyCorePath  = "core_path"
	KeyAutoStart = "auto_start"
)

var (
	// ErrMissingTag is returned when a configuration or script has no tag
	ErrMissingTag = errors.New("missing tag")
	// ErrDuplicateTag is returned when a tag is already taken
	ErrDuplicateTag = errors.New("duplicate tag")
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrMissingKey is returned when a kv key is empty
	ErrMissingKey = errors.New("missing key")
)

const schema = `
CREATE TABLE IF NOT EXISTS config (
	id TEXT PRIMARY KEY,
	tag TEXT NOT NULL UNIQUE,
	content TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS script (
	id TEXT PRIMARY KEY,
	tag TEXT NOT NULL UNIQUE,
	content TEXT NOT NULL,
	run_type INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// ConfigRow is a stored configuration
type ConfigRow struct {
	ID      string `db:"id"`
	Tag     string `db:"tag"`
	Content string `db:"content"`
	Active  bool   `db:"active"`
}

// ScriptRow is a stored script
type ScriptRow struct {
	ID      string `db:"id"`
	Tag     string `db:"tag"`
	Content string `db:"content"`
	RunType uint8  `db:"run_type"`
}

// Store is a SQLite backed boxmgr.Store
type Store struct {
	db *sqlx.DB
}

var _ boxmgr.Store = (*Store)(nil)

// Open connects to the database at dsn and creates missing tables
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	tx, err := db.Beginx()
	if err != nil {
		db.Close()
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// CorePath implements boxmgr.Store
func (s *Store) CorePath(ctx context.Context) (string, error) {
	var path string
	ok, err := s.Get(ctx, KeyCorePath, &path)
	if err != nil || !ok {
		return "", err
	}
	return path, nil
}

// AutoStart implements boxmgr.Store
func (s *Store) AutoStart(ctx context.Context) (bool, error) {
	var on bool
	_, err := s.Get(ctx, KeyAutoStart, &on)
	return on, err
}

// ActiveConfig implements boxmgr.Store
func (s *Store) ActiveConfig(ctx context.Context) (*boxmgr.Config, error) {
	var row ConfigRow
	err := s.db.GetContext(ctx, &row, "SELECT id, tag, content, active FROM config WHERE active = 1 LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &boxmgr.Config{
		ID:       row.ID,
		Tag:      row.Tag,
		Document: json.RawMessage(row.Content),
	}, nil
}

// Script implements boxmgr.Store
func (s *Store) Script(ctx context.Context, runType boxmgr.RunType) (*boxmgr.Script, error) {
	if runType == boxmgr.RunDisabled {
		return nil, nil
	}
	var row ScriptRow
	err := s.db.GetContext(ctx, &row, "SELECT id, tag, content, run_type FROM script WHERE run_type = $1 LIMIT 1", uint8(runType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &boxmgr.Script{
		Tag:     row.Tag,
		Content: row.Content,
		RunType: boxmgr.RunType(row.RunType),
	}, nil
}

// ImportConfig stores document under tag and returns the new id. The
// document must be a JSON object.
func (s *Store) ImportConfig(ctx context.Context, tag string, document []byte, activate bool) (string, error) {
	if tag == "" {
		return "", ErrMissingTag
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(document, &object); err != nil || object == nil {
		return "", boxmgr.ErrInvalidConfig
	}

	id := newID()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if err := tagFree(ctx, tx, "config", tag); err != nil {
		return "", err
	}
	if activate {
		if _, err := tx.ExecContext(ctx, "UPDATE config SET active = 0"); err != nil {
			return "", err
		}
	}
	_, err = tx.ExecContext(ctx, "INSERT INTO config (id, tag, content, active) VALUES ($1, $2, $3, $4)",
		id, tag, string(document), activate)
	if err != nil {
		return "", err
	}
	return id, tx.Commit()
}

// ListConfigs returns all stored configurations ordered by tag
func (s *Store) ListConfigs(ctx context.Context) ([]ConfigRow, error) {
	var rows []ConfigRow
	err := s.db.SelectContext(ctx, &rows, "SELECT id, tag, content, active FROM config ORDER BY tag")
	return rows, err
}

// SetActive marks the configuration with the given id or tag as the only
// active one
func (s *Store) SetActive(ctx context.Context, idOrTag string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id string
	err = tx.GetContext(ctx, &id, "SELECT id FROM config WHERE id = $1 OR tag = $1 LIMIT 1", idOrTag)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("config %q: %w", idOrTag, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE config SET active = (id = $1)", id); err != nil {
		return err
	}
	return tx.Commit()
}

// SetCorePath records the core binary path
func (s *Store) SetCorePath(ctx context.Context, path string) error {
	return s.Set(ctx, KeyCorePath, path)
}

// SetAutoStart records whether the core starts at boot
func (s *Store) SetAutoStart(ctx context.Context, on bool) error {
	return s.Set(ctx, KeyAutoStart, on)
}

// SetScript stores content under tag attached to runType. A lifecycle run
// type is held by at most one script, so any other holder is disabled first.
// An existing script with the same tag is replaced.
func (s *Store) SetScript(ctx context.Context, tag, content string, runType boxmgr.RunType) error {
	if tag == "" {
		return ErrMissingTag
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if runType != boxmgr.RunDisabled {
		_, err := tx.ExecContext(ctx, "UPDATE script SET run_type = $1 WHERE run_type = $2 AND tag <> $3",
			uint8(boxmgr.RunDisabled), uint8(runType), tag)
		if err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO script (id, tag, content, run_type) VALUES ($1, $2, $3, $4)
ON CONFLICT (tag) DO UPDATE SET content = excluded.content, run_type = excluded.run_type`,
		newID(), tag, content, uint8(runType))
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ClearScript detaches whichever script holds runType
func (s *Store) ClearScript(ctx context.Context, runType boxmgr.RunType) error {
	_, err := s.db.ExecContext(ctx, "UPDATE script SET run_type = $1 WHERE run_type = $2",
		uint8(boxmgr.RunDisabled), uint8(runType))
	return err
}

// ListScripts returns all stored scripts ordered by tag
func (s *Store) ListScripts(ctx context.Context) ([]ScriptRow, error) {
	var rows []ScriptRow
	err := s.db.SelectContext(ctx, &rows, "SELECT id, tag, content, run_type FROM script ORDER BY tag")
	return rows, err
}

// Get decodes the JSON value stored under key into v. It reports false
// when the key is absent.
func (s *Store) Get(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := s.GetRaw(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// GetRaw returns the JSON value stored under key
func (s *Store) GetRaw(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM kv WHERE key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(value), true, nil
}

// Set stores v encoded as JSON under key
func (s *Store) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.SetRaw(ctx, key, raw)
}

// SetRaw stores a JSON value under key
func (s *Store) SetRaw(ctx context.Context, key string, raw json.RawMessage) error {
	if key == "" {
		return ErrMissingKey
	}
	if !json.Valid(raw) {
		return fmt.Errorf("value for %s is not valid JSON", key)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, string(raw))
	return err
}

func tagFree(ctx context.Context, tx *sqlx.Tx, table, tag string) error {
	var n int
	if err := tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table+" WHERE tag = $1", tag); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%s %q: %w", table, tag, ErrDuplicateTag)
	}
	return nil
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
