// Package memory is an in-process backend. Every mutation is broadcast to
// subscribers synchronously, in commit order.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/prep/internal/backend"
	"github.com/marcus/prep/internal/models"
)

// Backend keeps dishes and items in memory.
type Backend struct {
	mu        sync.Mutex
	dishes    []models.DishRow
	items     map[string]models.ItemRow
	itemOrder []string
	subs      map[int]func(models.ChangeEvent)
	nextSub   int
	seq       int64
	closed    bool
}

var _ backend.Backend = (*Backend)(nil)

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		items: make(map[string]models.ItemRow),
		subs:  make(map[int]func(models.ChangeEvent)),
	}
}

// FetchAll implements backend.Backend.
func (b *Backend) FetchAll(ctx context.Context) (models.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return models.Dataset{}, backend.Wrap(backend.OpFetchAll, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ds := models.Dataset{Dishes: append([]models.DishRow(nil), b.dishes...)}
	for _, id := range b.itemOrder {
		ds.Items = append(ds.Items, cloneItem(b.items[id]))
	}
	models.SortItems(ds.Items)
	return ds, nil
}

// InsertDish implements backend.Backend.
func (b *Backend) InsertDish(ctx context.Context, name string) (models.DishRow, error) {
	if err := ctx.Err(); err != nil {
		return models.DishRow{}, backend.Wrap(backend.OpInsertDish, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	row := models.DishRow{ID: uuid.NewString(), Name: name}
	b.dishes = append(b.dishes, row)
	b.emit(models.ChangeEvent{Table: models.TableDishes, Type: models.EventInsert, Dish: &row})
	return row, nil
}

// UpdateDish implements backend.Backend.
func (b *Backend) UpdateDish(ctx context.Context, id, name string) (models.DishRow, error) {
	if err := ctx.Err(); err != nil {
		return models.DishRow{}, backend.Wrap(backend.OpUpdateDish, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.dishIndex(id)
	if i < 0 {
		return models.DishRow{}, backend.Wrap(backend.OpUpdateDish, fmt.Errorf("dish %s: %w", id, backend.ErrNotFound))
	}
	old := b.dishes[i]
	b.dishes[i].Name = name
	row := b.dishes[i]
	b.emit(models.ChangeEvent{Table: models.TableDishes, Type: models.EventUpdate, Dish: &row, OldDish: &old})
	return row, nil
}

// DeleteDish implements backend.Backend. Item deletions are broadcast
// before the dish deletion.
func (b *Backend) DeleteDish(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return backend.Wrap(backend.OpDeleteDish, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.dishIndex(id)
	if i < 0 {
		return backend.Wrap(backend.OpDeleteDish, fmt.Errorf("dish %s: %w", id, backend.ErrNotFound))
	}
	for _, itemID := range append([]string(nil), b.itemOrder...) {
		if it := b.items[itemID]; it.DishID == id {
			b.removeItem(itemID)
			b.emit(models.ChangeEvent{Table: models.TableItems, Type: models.EventDelete, OldItem: &models.ItemRow{ID: it.ID, DishID: it.DishID}})
		}
	}
	old := b.dishes[i]
	b.dishes = append(b.dishes[:i], b.dishes[i+1:]...)
	b.emit(models.ChangeEvent{Table: models.TableDishes, Type: models.EventDelete, OldDish: &models.DishRow{ID: old.ID}})
	return nil
}

// InsertItem implements backend.Backend.
func (b *Backend) InsertItem(ctx context.Context, dishID, name string, position int) (models.ItemRow, error) {
	if err := ctx.Err(); err != nil {
		return models.ItemRow{}, backend.Wrap(backend.OpInsertItem, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dishIndex(dishID) < 0 {
		return models.ItemRow{}, backend.Wrap(backend.OpInsertItem, fmt.Errorf("dish %s: %w", dishID, backend.ErrNotFound))
	}
	row := models.ItemRow{ID: uuid.NewString(), DishID: dishID, Name: name, Position: position}
	b.items[row.ID] = row
	b.itemOrder = append(b.itemOrder, row.ID)
	b.emitItem(models.EventInsert, row, nil)
	return row, nil
}

// UpdateItem implements backend.Backend.
func (b *Backend) UpdateItem(ctx context.Context, id, name string, position *int) (models.ItemRow, error) {
	return b.mutateItem(ctx, backend.OpUpdateItem, id, func(row *models.ItemRow) error {
		row.Name = name
		if position != nil {
			row.Position = *position
		}
		return nil
	})
}

// MoveItem implements backend.Backend.
func (b *Backend) MoveItem(ctx context.Context, id, dishID string, position int) (models.ItemRow, error) {
	return b.mutateItem(ctx, backend.OpMoveItem, id, func(row *models.ItemRow) error {
		if b.dishIndex(dishID) < 0 {
			return fmt.Errorf("dish %s: %w", dishID, backend.ErrNotFound)
		}
		row.DishID = dishID
		row.Position = position
		return nil
	})
}

// UpdateItemRecipe implements backend.Backend.
func (b *Backend) UpdateItemRecipe(ctx context.Context, id, text string) (models.ItemRow, error) {
	return b.mutateItem(ctx, backend.OpUpdateRecipe, id, func(row *models.ItemRow) error {
		row.Recipe = models.StringPtr(text)
		return nil
	})
}

// DeleteItem implements backend.Backend.
func (b *Backend) DeleteItem(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return backend.Wrap(backend.OpDeleteItem, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.items[id]
	if !ok {
		return backend.Wrap(backend.OpDeleteItem, fmt.Errorf("item %s: %w", id, backend.ErrNotFound))
	}
	b.removeItem(id)
	b.emit(models.ChangeEvent{Table: models.TableItems, Type: models.EventDelete, OldItem: &models.ItemRow{ID: it.ID, DishID: it.DishID}})
	return nil
}

// Subscribe implements backend.Backend. onEvent runs with the backend
// locked, so it must not call back into it.
func (b *Backend) Subscribe(ctx context.Context, onEvent func(models.ChangeEvent)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.Wrap(backend.OpSubscribe, fmt.Errorf("backend closed"))
	}
	id := b.nextSub
	b.nextSub++
	b.subs[id] = onEvent

	var once sync.Once
	stop := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			close(stop)
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-stop:
		}
	}()
	return unsubscribe, nil
}

// Close drops every subscriber.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[int]func(models.ChangeEvent))
	return nil
}

func (b *Backend) mutateItem(ctx context.Context, op, id string, fn func(*models.ItemRow) error) (models.ItemRow, error) {
	if err := ctx.Err(); err != nil {
		return models.ItemRow{}, backend.Wrap(op, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	old, ok := b.items[id]
	if !ok {
		return models.ItemRow{}, backend.Wrap(op, fmt.Errorf("item %s: %w", id, backend.ErrNotFound))
	}
	row := cloneItem(old)
	if err := fn(&row); err != nil {
		return models.ItemRow{}, backend.Wrap(op, err)
	}
	b.items[id] = row
	b.emitItem(models.EventUpdate, row, &old)
	return cloneItem(row), nil
}

func (b *Backend) dishIndex(id string) int {
	for i, d := range b.dishes {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (b *Backend) removeItem(id string) {
	delete(b.items, id)
	for i, oid := range b.itemOrder {
		if oid == id {
			b.itemOrder = append(b.itemOrder[:i], b.itemOrder[i+1:]...)
			return
		}
	}
}

func (b *Backend) emitItem(typ models.EventType, row models.ItemRow, old *models.ItemRow) {
	r := cloneItem(row)
	b.emit(models.ChangeEvent{Table: models.TableItems, Type: typ, Item: &r, OldItem: old})
}

// emit must be called with b.mu held.
func (b *Backend) emit(ev models.ChangeEvent) {
	b.seq++
	ev.Seq = b.seq
	ev.At = time.Now().UTC()
	for _, fn := range b.subs {
		fn(ev)
	}
}

func cloneItem(r models.ItemRow) models.ItemRow {
	r.Recipe = models.CloneString(r.Recipe)
	return r
}
