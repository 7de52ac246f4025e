// Package postgres is the PostgreSQL backend. Mutations append to a change
// log in the same transaction; a trigger on the log raises a notification
// that subscribers receive over LISTEN.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcus/prep/internal/backend"
	"github.com/marcus/prep/internal/models"
)

// Channel is the notification channel raised for every logged change.
const Channel = "prep_changes"

// writeLock is the advisory lock key that serializes writers, so change
// log sequence numbers become visible in commit order.
const writeLock = 0x70726570

const schema = `
CREATE TABLE IF NOT EXISTS dishes (
    ord BIGSERIAL,
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS items (
    ord BIGSERIAL,
    id TEXT PRIMARY KEY,
    dish_id TEXT NOT NULL REFERENCES dishes(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    recipe TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_items_dish_position ON items(dish_id, position);

CREATE TABLE IF NOT EXISTS changes (
    seq BIGSERIAL PRIMARY KEY,
    tbl TEXT NOT NULL,
    op TEXT NOT NULL,
    row_id TEXT NOT NULL,
    payload JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE OR REPLACE FUNCTION prep_notify_change() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('prep_changes', NEW.seq::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS prep_changes_notify ON changes;
CREATE TRIGGER prep_changes_notify AFTER INSERT ON changes
    FOR EACH ROW EXECUTE FUNCTION prep_notify_change();
`

// Store is a backend.Backend on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	changed chan struct{}
}

var _ backend.Backend = (*Store)(nil)

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New applies the schema on an existing pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool, changed: make(chan struct{})}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Changed returns a channel closed at the next commit made through this
// Store. Writers in other processes are only seen by Subscribe.
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
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM dishes ORDER BY ord`)
	if err != nil {
		return ds, backend.Wrap(backend.OpFetchAll, err)
	}
	ds.Dishes, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (models.DishRow, error) {
		var d models.DishRow
		err := r.Scan(&d.ID, &d.Name)
		return d, err
	})
	if err != nil {
		return ds, backend.Wrap(backend.OpFetchAll, err)
	}

	rows, err = s.pool.Query(ctx, `SELECT id, dish_id, name, position, recipe FROM items ORDER BY position, ord`)
	if err != nil {
		return ds, backend.Wrap(backend.OpFetchAll, err)
	}
	ds.Items, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (models.ItemRow, error) {
		return scanItem(r)
	})
	if err != nil {
		return ds, backend.Wrap(backend.OpFetchAll, err)
	}
	return ds, nil
}

// InsertDish implements backend.Backend.
func (s *Store) InsertDish(ctx context.Context, name string) (models.DishRow, error) {
	row := models.DishRow{ID: uuid.NewString(), Name: name}
	err := s.withTx(ctx, backend.OpInsertDish, func(tx pgx.Tx, log changeLog) error {
		if _, err := tx.Exec(ctx, `INSERT INTO dishes (id, name) VALUES ($1, $2)`, row.ID, row.Name); err != nil {
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
	err := s.withTx(ctx, backend.OpUpdateDish, func(tx pgx.Tx, log changeLog) error {
		old, err := getDish(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE dishes SET name = $1 WHERE id = $2`, name, id); err != nil {
			return err
		}
		return log(models.ChangeEvent{Table: models.TableDishes, Type: models.EventUpdate, Dish: &row, OldDish: &old})
	})
	if err != nil {
		return models.DishRow{}, err
	}
	return row, nil
}

// DeleteDish implements backend.Backend.
func (s *Store) DeleteDish(ctx context.Context, id string) error {
	return s.withTx(ctx, backend.OpDeleteDish, func(tx pgx.Tx, log changeLog) error {
		if _, err := getDish(ctx, tx, id); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `DELETE FROM items WHERE dish_id = $1 RETURNING id`, id)
		if err != nil {
			return err
		}
		itemIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		for _, itemID := range itemIDs {
			if err := log(models.ChangeEvent{Table: models.TableItems, Type: models.EventDelete,
				OldItem: &models.ItemRow{ID: itemID, DishID: id}}); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM dishes WHERE id = $1`, id); err != nil {
			return err
		}
		return log(models.ChangeEvent{Table: models.TableDishes, Type: models.EventDelete, OldDish: &models.DishRow{ID: id}})
	})
}

// InsertItem implements backend.Backend.
func (s *Store) InsertItem(ctx context.Context, dishID, name string, position int) (models.ItemRow, error) {
	row := models.ItemRow{ID: uuid.NewString(), DishID: dishID, Name: name, Position: position}
	err := s.withTx(ctx, backend.OpInsertItem, func(tx pgx.Tx, log changeLog) error {
		if _, err := getDish(ctx, tx, dishID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO items (id, dish_id, name, position) VALUES ($1, $2, $3, $4)`,
			row.ID, row.DishID, row.Name, row.Position); err != nil {
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
	return s.mutateItem(ctx, backend.OpUpdateItem, id, func(tx pgx.Tx, row *models.ItemRow) error {
		row.Name = name
		if position != nil {
			row.Position = *position
		}
		return nil
	})
}

// MoveItem implements backend.Backend.
func (s *Store) MoveItem(ctx context.Context, id, dishID string, position int) (models.ItemRow, error) {
	return s.mutateItem(ctx, backend.OpMoveItem, id, func(tx pgx.Tx, row *models.ItemRow) error {
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
	return s.mutateItem(ctx, backend.OpUpdateRecipe, id, func(tx pgx.Tx, row *models.ItemRow) error {
		row.Recipe = models.StringPtr(text)
		return nil
	})
}

// DeleteItem implements backend.Backend.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	return s.withTx(ctx, backend.OpDeleteItem, func(tx pgx.Tx, log changeLog) error {
		old, err := getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM items WHERE id = $1`, id); err != nil {
			return err
		}
		return log(models.ChangeEvent{Table: models.TableItems, Type: models.EventDelete,
			OldItem: &models.ItemRow{ID: old.ID, DishID: old.DishID}})
	})
}

func (s *Store) mutateItem(ctx context.Context, op, id string, fn func(pgx.Tx, *models.ItemRow) error) (models.ItemRow, error) {
	var row models.ItemRow
	err := s.withTx(ctx, op, func(tx pgx.Tx, log changeLog) error {
		old, err := getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		row = old
		row.Recipe = models.CloneString(old.Recipe)
		if err := fn(tx, &row); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE items SET dish_id = $1, name = $2, position = $3, recipe = $4 WHERE id = $5`,
			row.DishID, row.Name, row.Position, row.Recipe, id); err != nil {
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

func (s *Store) withTx(ctx context.Context, op string, fn func(pgx.Tx, changeLog) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return backend.Wrap(op, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, writeLock); err != nil {
		return backend.Wrap(op, fmt.Errorf("lock: %w", err))
	}
	log := func(ev models.ChangeEvent) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode change: %w", err)
		}
		_, err = tx.Exec(ctx, `INSERT INTO changes (tbl, op, row_id, payload) VALUES ($1, $2, $3, $4)`,
			string(ev.Table), string(ev.Type), eventRowID(ev), payload)
		if err != nil {
			return fmt.Errorf("log change: %w", err)
		}
		return nil
	}
	if err := fn(tx, log); err != nil {
		return backend.Wrap(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
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
	rows, err := s.pool.Query(ctx,
		`SELECT seq, payload, created_at FROM changes WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var out []models.ChangeEvent
	for rows.Next() {
		var (
			seq     int64
			payload []byte
			created time.Time
		)
		if err := rows.Scan(&seq, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		var ev models.ChangeEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			slog.Warn("postgres: skipping undecodable change", "seq", seq, "err", err)
			continue
		}
		ev.Seq = seq
		ev.At = created.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LastSeq returns the newest change log sequence number, 0 when empty.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM changes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// Subscribe implements backend.Backend. A dedicated connection runs
// LISTEN; each notification triggers a read of the change log past the
// last delivered sequence number, so coalesced or dropped notifications
// never lose events.
func (s *Store) Subscribe(ctx context.Context, onEvent func(models.ChangeEvent)) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, backend.Wrap(backend.OpSubscribe, err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, backend.Wrap(backend.OpSubscribe, err)
	}
	after, err := s.LastSeq(ctx)
	if err != nil {
		conn.Release()
		return nil, backend.Wrap(backend.OpSubscribe, err)
	}

	// The LISTEN session must not go back to the pool.
	listener := conn.Hijack()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer listener.Close(context.Background())
		for {
			n, err := listener.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("postgres: wait for notification", "err", err)
				}
				return
			}
			if seq, perr := strconv.ParseInt(n.Payload, 10, 64); perr == nil && seq <= after {
				continue
			}
			evs, err := s.ChangesSince(ctx, after, 0)
			if err != nil {
				slog.Warn("postgres: read changes", "err", err)
				continue
			}
			for _, ev := range evs {
				after = ev.Seq
				onEvent(ev)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

func scanItem(r pgx.Row) (models.ItemRow, error) {
	var it models.ItemRow
	err := r.Scan(&it.ID, &it.DishID, &it.Name, &it.Position, &it.Recipe)
	return it, err
}

func getDish(ctx context.Context, tx pgx.Tx, id string) (models.DishRow, error) {
	var d models.DishRow
	err := tx.QueryRow(ctx, `SELECT id, name FROM dishes WHERE id = $1`, id).Scan(&d.ID, &d.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return d, fmt.Errorf("dish %s: %w", id, backend.ErrNotFound)
	}
	return d, err
}

func getItem(ctx context.Context, tx pgx.Tx, id string) (models.ItemRow, error) {
	it, err := scanItem(tx.QueryRow(ctx, `SELECT id, dish_id, name, position, recipe FROM items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
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
