// Package localstate persists device-local state (row toggles, notes,
// the daily list, view settings, user recipes and a cache of the mirror)
// in a small SQLite key/value table.
package localstate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/rowstate"
)

// Namespace prefixes every key. Bumping it is the only migration: values
// under an old namespace are ignored.
const Namespace = "prep-v1"

const dbFileName = "device.db"

// Key names, stored as <namespace>.<name>.
const (
	KeyCompact   = "compact"
	KeyView      = "view"
	KeyOnHand    = "onhand"
	KeyPrep      = "prep"
	KeyHighlight = "highlight"
	KeyNotes     = "notes"
	KeyDaily     = "daily"
	KeyRecipes   = "recipes"
	KeyMirror    = "mirror"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

// State is everything a device keeps between runs.
type State struct {
	Compact bool
	View    models.ViewState
	Rows    rowstate.Snapshot
	Daily   models.Selection
	Recipes map[string]string
	Mirror  models.Dataset
}

// DefaultState is what a fresh device starts with.
func DefaultState() State {
	return State{
		View: models.DefaultViewState(),
		Rows: rowstate.Snapshot{
			OnHand:    map[string]bool{},
			Prep:      map[string]bool{},
			Highlight: map[string]bool{},
			Notes:     map[string]string{},
		},
		Daily:   models.Selection{Keys: map[string]bool{}},
		Recipes: map[string]string{},
	}
}

// Store is the device key/value database.
type Store struct {
	conn      *sql.DB
	dir       string
	namespace string
	lockWait  time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace overrides Namespace.
func WithNamespace(ns string) Option {
	return func(s *Store) { s.namespace = ns }
}

// WithLockTimeout sets how long writers wait for another process.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockWait = d }
}

// Open opens (creating if needed) the device database inside dir.
func Open(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	conn, err := sql.Open("sqlite", filepath.Join(dir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("open device db: %w", err)
	}
	s, err := New(conn, dir, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// New prepares an open connection. dir holds the write lock file.
func New(conn *sql.DB, dir string, opts ...Option) (*Store, error) {
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &Store{conn: conn, dir: dir, namespace: Namespace, lockWait: defaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) key(name string) string {
	return s.namespace + "." + name
}

// Raw returns the stored text for name.
func (s *Store) Raw(name string) (string, bool, error) {
	var v string
	err := s.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, s.key(name)).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", name, err)
	}
	return v, true, nil
}

// PutRaw stores text for name without validating it.
func (s *Store) PutRaw(name, value string) error {
	return s.withLock(func(tx *sql.Tx) error {
		return put(tx, s.key(name), value)
	})
}

// Load reads every key. A value that does not parse is logged and
// replaced by that key's default; only database failures are errors.
func (s *Store) Load() (State, error) {
	rows, err := s.conn.Query(`SELECT key, value FROM kv WHERE key LIKE ? ESCAPE '\'`, escapeLike(s.namespace)+".%")
	if err != nil {
		return State{}, fmt.Errorf("read device state: %w", err)
	}
	defer rows.Close()

	raw := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return State{}, fmt.Errorf("scan device state: %w", err)
		}
		raw[strings.TrimPrefix(k, s.namespace+".")] = v
	}
	if err := rows.Err(); err != nil {
		return State{}, fmt.Errorf("read device state: %w", err)
	}

	st := DefaultState()
	st.Compact = decode(raw, KeyCompact, st.Compact)
	st.View = decode(raw, KeyView, st.View).Normalize()
	st.Rows.OnHand = decode(raw, KeyOnHand, st.Rows.OnHand)
	st.Rows.Prep = decode(raw, KeyPrep, st.Rows.Prep)
	st.Rows.Highlight = decode(raw, KeyHighlight, st.Rows.Highlight)
	st.Rows.Notes = decode(raw, KeyNotes, st.Rows.Notes)
	st.Daily = decode(raw, KeyDaily, st.Daily)
	if st.Daily.Keys == nil {
		st.Daily.Keys = map[string]bool{}
	}
	st.Recipes = decode(raw, KeyRecipes, st.Recipes)
	st.Mirror = decode(raw, KeyMirror, st.Mirror)
	return st, nil
}

// Save writes every key in one transaction.
func (s *Store) Save(st State) error {
	values := []struct {
		name string
		v    any
	}{
		{KeyCompact, st.Compact},
		{KeyView, st.View},
		{KeyOnHand, st.Rows.OnHand},
		{KeyPrep, st.Rows.Prep},
		{KeyHighlight, st.Rows.Highlight},
		{KeyNotes, st.Rows.Notes},
		{KeyDaily, st.Daily},
		{KeyRecipes, st.Recipes},
		{KeyMirror, st.Mirror},
	}
	return s.withLock(func(tx *sql.Tx) error {
		for _, kv := range values {
			data, err := json.Marshal(kv.v)
			if err != nil {
				return fmt.Errorf("encode %s: %w", kv.name, err)
			}
			if err := put(tx, s.key(kv.name), string(data)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) withLock(fn func(*sql.Tx) error) error {
	locker := newWriteLocker(s.dir)
	if err := locker.acquire(s.lockWait); err != nil {
		return err
	}
	defer locker.release()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func put(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// decode parses raw[name] into a T, falling back to def when the key is
// missing or malformed.
func decode[T any](raw map[string]string, name string, def T) T {
	text, ok := raw[name]
	if !ok {
		return def
	}
	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		slog.Warn("localstate: malformed value, using default", "key", name, "err", err)
		return def
	}
	return v
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
