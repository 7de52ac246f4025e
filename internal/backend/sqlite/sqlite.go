// Package sqlite is the embedded backend. Every mutation appends to a
// change log in the same transaction; subscribers tail that log, which
// also lets several processes share one database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/marcus/prep/internal/backend"
	"github.com/marcus/prep/internal/models"
)

// timeFormat is fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// DefaultPollInterval is how often subscribers check the change log for
// writes made by other processes.
const DefaultPollInterval = time.Second

// Option configures a Store.
type Option func(*Store)

// WithPollInterval sets the change log poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.poll = d
		}
	}
}

// Store is a backend.Backend on a SQLite database.
type Store struct {
	conn *sql.DB
	poll time.Duration

	mu      sync.Mutex
	changed chan struct{}
}

var _ backend.Backend = (*Store)(nil)

// Open opens (creating if needed) the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s, err := New(conn, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// New prepares an already opened connection and runs pending migrations.
func New(conn *sql.DB, opts ...Option) (*Store, error) {
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{conn: conn, poll: DefaultPollInterval, changed: make(chan struct{})}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.runMigrations(); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) runMigrations() (int, error) {
	current := s.schemaVersion()
	if current >= SchemaVersion {
		return 0, nil
	}
	run := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := s.conn.Exec(m.SQL); err != nil {
			return run, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if err := s.setSchemaVersion(m.Version); err != nil {
			return run, err
		}
		run++
	}
	if err := s.setSchemaVersion(SchemaVersion); err != nil {
		return run, err
	}
	return run, nil
}

func (s *Store) schemaVersion() int {
	var v string
	if err := s.conn.QueryRow(`SELECT value FROM schema_info WHERE key = 'version'`).Scan(&v); err != nil {
		return 0
	}
	n, _ := strconv.Atoi(v)
	return n
}

func (s *Store) setSchemaVersion(v int) error {
	_, err := s.conn.Exec(`INSERT INTO schema_info (key, value) VALUES ('version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(v))
	if err != nil {
		return fmt.Errorf("set schema version %d: %w", v, err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.conn.Close()
}

// Changed returns a channel that is closed at the next commit made
// through this Store.
func (s *Store) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *Store) signal() {
	s.mu.Lock()
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// FetchAll implements backend.Backend.
func (s *Store) FetchAll(ctx context.Context) (models.Dataset, error) {
	var ds models.Dataset
	rows, err := s.conn.QueryContext(ctx, `SELECT id, name FROM dishes ORDER BY rowid`)
	if err != nil {
		return ds, backend.Wrap(backend.OpFetchAll, err)
	}
	for rows.Next() {
		var d models.DishRow
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			rows.Close()
			return ds, backend.Wrap(backend.OpFetchAll, err)
		}
		ds.Dishes = append(ds.Dishes, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ds, backend.Wrap(backend.OpFetchAll, err)
	}

	rows, err = s.conn.QueryContext(ctx, `SELECT id, dish_id, name, position, recipe FROM items ORDER BY position, rowid`)
	if err != nil {
		return ds, backend.Wrap(backend.OpFetchAll, err)
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return ds, backend.Wrap(backend.OpFetchAll, err)
		}
		ds.Items = append(ds.Items, it)
	}
	if err := rows.Err(); err != nil {
		return ds, backend.Wrap(backend.OpFetchAll, err)
	}
	return ds, nil
}

// InsertDish implements backend.Backend.
func (s *Store) InsertDish(ctx context.Context, name string) (models.DishRow, error) {
	row := models.DishRow{ID: uuid.NewString(), Name: name}
	err := s.withTx(ctx, backend.OpInsertDish, func(tx *sql.Tx, log changeLog) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO dishes (id, name, created_at) VALUES (?, ?, ?)`,
			row.ID, row.Name, now()); err != nil {
			return err
		}
		return log(models.ChangeEvent{Table: models.TableDishes, Type: models.EventInsert, Dish: &row})
	})
	if err != nil {
		return models.DishRow{}, err
	}
	return row, nil
}

// UpdateDish implements backend.Backend.
func (s *Store) UpdateDish(ctx context.Context, id, name string) (models.DishRow, error) {
	row := models.DishRow{ID: id, Name: name}
	err := s.withTx(ctx, backend.OpUpdateDish, func(tx *sql.Tx, log changeLog) error {
		old, err := getDish(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE dishes SET name = ? WHERE id = ?`, name, id); err != nil {
			return err
		}
		return log(models.ChangeEvent{Table: models.TableDishes, Type: models.EventUpdate, Dish: &row, OldDish: &old})
	})
	if err != nil {
		return models.DishRow{}, err
	}
	return row, nil
}

// DeleteDish implements backend.Backend. Each item of the dish is deleted
// and logged before the dish itself.
func (s *Store) DeleteDish(ctx context.Context, id string) error {
	return s.withTx(ctx, backend.OpDeleteDish, func(tx *sql.Tx, log changeLog) error {
		if _, err := getDish(ctx, tx, id); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, `SELECT id FROM items WHERE dish_id = ? ORDER BY position, rowid`, id)
		if err != nil {
			return err
		}
		var itemIDs []string
		for rows.Next() {
			var itemID string
			if err := rows.Scan(&itemID); err != nil {
				rows.Close()
				return err
			}
			itemIDs = append(itemIDs, itemID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, itemID := range itemIDs {
			if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, itemID); err != nil {
				return err
			}
			if err := log(models.ChangeEvent{Table: models.TableItems, Type: models.EventDelete,
				OldItem: &models.ItemRow{ID: itemID, DishID: id}}); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM dishes WHERE id = ?`, id); err != nil {
			return err
		}
		return log(models.ChangeEvent{Table: models.TableDishes, Type: models.EventDelete, OldDish: &models.DishRow{ID: id}})
	})
}

// InsertItem implements backend.Backend.
func (s *Store) InsertItem(ctx context.Context, dishID, name string, position int) (models.ItemRow, error) {
	row := models.ItemRow{ID: uuid.NewString(), DishID: dishID, Name: name, Position: position}
	err := s.withTx(ctx, backend.OpInsertItem, func(tx *sql.Tx, log changeLog) error {
		if _, err := getDish(ctx, tx, dishID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO items (id, dish_id, name, position, created_at) VALUES (?, ?, ?, ?, ?)`,
			row.ID, row.DishID, row.Name, row.Position, now()); err != nil {
			return err
		}
		return log(models.ChangeEvent{Table: models.TableItems, Type: models.EventInsert, Item: &row})
	})
	if err != nil {
		return models.ItemRow{}, err
	}
	return row, nil
}

// UpdateItem implements backend.Backend.
func (s *Store) UpdateItem(ctx context.Context, id, name string, position *int) (models.ItemRow, error) {
	return s.mutateItem(ctx, backend.OpUpdateItem, id, func(tx *sql.Tx, row *models.ItemRow) error {
		row.Name = name
		if position != nil {
			row.Position = *position
		}
		return nil
	})
}

// MoveItem implements backend.Backend.
func (s *Store) MoveItem(ctx context.Context, id, dishID string, position int) (models.ItemRow, error) {
	return s.mutateItem(ctx, backend.OpMoveItem, id, func(tx *sql.Tx, row *models.ItemRow) error {
		if _, err := getDish(ctx, tx, dishID); err != nil {
			return err
		}
		row.DishID = dishID
		row.Position = position
		return nil
	})
}

// UpdateItemRecipe implements backend.Backend.
func (s *Store) UpdateItemRecipe(ctx context.Context, id, text string) (models.ItemRow, error) {
	return s.mutateItem(ctx, backend.OpUpdateRecipe, id, func(tx *sql.Tx, row *models.ItemRow) error {
		row.Recipe = models.StringPtr(text)
		return nil
	})
}

// DeleteItem implements backend.Backend.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	return s.withTx(ctx, backend.OpDeleteItem, func(tx *sql.Tx, log changeLog) error {
		old, err := getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
			return err
		}
		return log(models.ChangeEvent{Table: models.TableItems, Type: models.EventDelete,
			OldItem: &models.ItemRow{ID: old.ID, DishID: old.DishID}})
	})
}

func (s *Store) mutateItem(ctx context.Context, op, id string, fn func(*sql.Tx, *models.ItemRow) error) (models.ItemRow, error) {
	var row models.ItemRow
	err := s.withTx(ctx, op, func(tx *sql.Tx, log changeLog) error {
		old, err := getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		row = old
		row.Recipe = models.CloneString(old.Recipe)
		if err := fn(tx, &row); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE items SET dish_id = ?, name = ?, position = ?, recipe = ? WHERE id = ?`,
			row.DishID, row.Name, row.Position, nullString(row.Recipe), id); err != nil {
			return err
		}
		return log(models.ChangeEvent{Table: models.TableItems, Type: models.EventUpdate, Item: &row, OldItem: &old})
	})
	if err != nil {
		return models.ItemRow{}, err
	}
	return row, nil
}

type changeLog func(models.ChangeEvent) error

func (s *Store) withTx(ctx context.Context, op string, fn func(*sql.Tx, changeLog) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return backend.Wrap(op, fmt.Errorf("begin: %w", err))
	}
	log := func(ev models.ChangeEvent) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode change: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO changes (tbl, op, row_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
			string(ev.Table), string(ev.Type), eventRowID(ev), string(payload), now())
		if err != nil {
			return fmt.Errorf("log change: %w", err)
		}
		return nil
	}
	if err := fn(tx, log); err != nil {
		tx.Rollback()
		return backend.Wrap(op, err)
	}
	if err := tx.Commit(); err != nil {
		return backend.Wrap(op, fmt.Errorf("commit: %w", err))
	}
	s.signal()
	return nil
}

// ChangesSince returns up to limit logged changes with seq greater than after.
func (s *Store) ChangesSince(ctx context.Context, after int64, limit int) ([]models.ChangeEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT seq, payload, created_at FROM changes WHERE seq > ? ORDER BY seq LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var out []models.ChangeEvent
	for rows.Next() {
		var (
			seq     int64
			payload string
			created string
		)
		if err := rows.Scan(&seq, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		var ev models.ChangeEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			slog.Warn("sqlite: skipping undecodable change", "seq", seq, "err", err)
			continue
		}
		ev.Seq = seq
		if t, err := time.Parse(timeFormat, created); err == nil {
			ev.At = t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LastSeq returns the newest change log sequence number, 0 when empty.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM changes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// Subscribe implements backend.Backend by tailing the change log from its
// current end.
func (s *Store) Subscribe(ctx context.Context, onEvent func(models.ChangeEvent)) (func(), error) {
	after, err := s.LastSeq(ctx)
	if err != nil {
		return nil, backend.Wrap(backend.OpSubscribe, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			changed := s.Changed()
			evs, err := s.ChangesSince(ctx, after, 0)
			if err != nil && ctx.Err() == nil {
				slog.Warn("sqlite: poll changes", "err", err)
			}
			for _, ev := range evs {
				after = ev.Seq
				onEvent(ev)
			}
			if len(evs) > 0 {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-changed:
			case <-ticker.C:
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (models.ItemRow, error) {
	var (
		it     models.ItemRow
		recipe sql.NullString
	)
	if err := sc.Scan(&it.ID, &it.DishID, &it.Name, &it.Position, &recipe); err != nil {
		return it, err
	}
	if recipe.Valid {
		it.Recipe = models.StringPtr(recipe.String)
	}
	return it, nil
}

func getDish(ctx context.Context, tx *sql.Tx, id string) (models.DishRow, error) {
	var d models.DishRow
	err := tx.QueryRowContext(ctx, `SELECT id, name FROM dishes WHERE id = ?`, id).Scan(&d.ID, &d.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("dish %s: %w", id, backend.ErrNotFound)
	}
	return d, err
}

func getItem(ctx context.Context, tx *sql.Tx, id string) (models.ItemRow, error) {
	it, err := scanItem(tx.QueryRowContext(ctx, `SELECT id, dish_id, name, position, recipe FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return it, fmt.Errorf("item %s: %w", id, backend.ErrNotFound)
	}
	return it, err
}

func eventRowID(ev models.ChangeEvent) string {
	switch {
	case ev.Dish != nil:
		return ev.Dish.ID
	case ev.OldDish != nil:
		return ev.OldDish.ID
	case ev.Item != nil:
		return ev.Item.ID
	case ev.OldItem != nil:
		return ev.OldItem.ID
	}
	return ""
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func now() string {
	return time.Now().UTC().Format(timeFormat)
}
