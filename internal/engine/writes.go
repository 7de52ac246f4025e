package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/marcus/prep/internal/backend"
	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/suggest"
)

// FindDish resolves ref as a dish id, then as a case-insensitive name.
// The first dish in mirror order wins when names repeat.
func (e *Engine) FindDish(ref string) (models.Dish, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.findDishLocked(ref)
}

func (e *Engine) findDishLocked(ref string) (models.Dish, error) {
	ref = strings.TrimSpace(ref)
	if d, ok := e.mirror.Dish(ref); ok {
		return d, nil
	}
	dishes := e.mirror.Snapshot()
	names := make([]string, 0, len(dishes))
	for _, d := range dishes {
		if strings.EqualFold(d.Name, ref) {
			return d, nil
		}
		names = append(names, d.Name)
	}
	return models.Dish{}, fmt.Errorf("dish %q: %w%s", ref, ErrNotFound, suggest.Hint(ref, names))
}

// FindItem resolves ref as an item id, or as an item name within the dish
// named by dishRef.
func (e *Engine) FindItem(dishRef, ref string) (models.Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ref = strings.TrimSpace(ref)
	if it, ok := e.mirror.Item(ref); ok {
		return it, nil
	}
	if dishRef == "" {
		var names []string
		for _, d := range e.mirror.Snapshot() {
			names = append(names, itemNames(d)...)
		}
		return models.Item{}, fmt.Errorf("item %q: %w%s", ref, ErrNotFound, suggest.Hint(ref, names))
	}
	d, err := e.findDishLocked(dishRef)
	if err != nil {
		return models.Item{}, err
	}
	for _, it := range d.Items {
		if strings.EqualFold(it.Name, ref) {
			return it, nil
		}
	}
	return models.Item{}, fmt.Errorf("item %q in %s: %w%s", ref, d.Name, ErrNotFound, suggest.Hint(ref, itemNames(d)))
}

func itemNames(d models.Dish) []string {
	names := make([]string, len(d.Items))
	for i, it := range d.Items {
		names[i] = it.Name
	}
	return names
}

// AddDish creates a dish.
func (e *Engine) AddDish(ctx context.Context, name string) (models.DishRow, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.DishRow{}, ErrEmptyName
	}
	return write(e, backend.OpInsertDish, "", func() (models.DishRow, error) {
		return e.be.InsertDish(ctx, name)
	}, confirmDish(models.EventInsert))
}

// RenameDish renames a dish. Row state is keyed by id and is unaffected.
func (e *Engine) RenameDish(ctx context.Context, id, name string) (models.DishRow, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.DishRow{}, ErrEmptyName
	}
	return write(e, backend.OpUpdateDish, id, func() (models.DishRow, error) {
		return e.be.UpdateDish(ctx, id, name)
	}, confirmDish(models.EventUpdate))
}

// DeleteDish deletes a dish and its items, retiring every key under it.
func (e *Engine) DeleteDish(ctx context.Context, id string) error {
	_, err := write(e, backend.OpDeleteDish, id, func() (struct{}, error) {
		return struct{}{}, e.be.DeleteDish(ctx, id)
	}, func(struct{}) models.ChangeEvent {
		return models.ChangeEvent{Table: models.TableDishes, Type: models.EventDelete, OldDish: &models.DishRow{ID: id}}
	})
	return err
}

// AddItem appends an item to the end of a dish.
func (e *Engine) AddItem(ctx context.Context, dishID, name string) (models.ItemRow, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.ItemRow{}, ErrEmptyName
	}
	pos, err := e.nextPosition(dishID)
	if err != nil {
		return models.ItemRow{}, err
	}
	return write(e, backend.OpInsertItem, "", func() (models.ItemRow, error) {
		return e.be.InsertItem(ctx, dishID, name, pos)
	}, confirmItem(models.EventInsert))
}

// RenameItem renames an item in place.
func (e *Engine) RenameItem(ctx context.Context, id, name string) (models.ItemRow, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.ItemRow{}, ErrEmptyName
	}
	return write(e, backend.OpUpdateItem, id, func() (models.ItemRow, error) {
		return e.be.UpdateItem(ctx, id, name, nil)
	}, confirmItem(models.EventUpdate))
}

// RepositionItem moves an item within its dish.
func (e *Engine) RepositionItem(ctx context.Context, id string, position int) (models.ItemRow, error) {
	e.mu.Lock()
	it, ok := e.mirror.Item(id)
	e.mu.Unlock()
	if !ok {
		return models.ItemRow{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return write(e, backend.OpUpdateItem, id, func() (models.ItemRow, error) {
		return e.be.UpdateItem(ctx, id, it.Name, &position)
	}, confirmItem(models.EventUpdate))
}

// MoveItem reparents an item to the end of another dish. Its row state,
// meta and daily membership follow it to the new key.
func (e *Engine) MoveItem(ctx context.Context, id, dishID string) (models.ItemRow, error) {
	pos, err := e.nextPosition(dishID)
	if err != nil {
		return models.ItemRow{}, err
	}
	return write(e, backend.OpMoveItem, id, func() (models.ItemRow, error) {
		return e.be.MoveItem(ctx, id, dishID, pos)
	}, confirmItem(models.EventUpdate))
}

// DeleteItem deletes an item and retires its key.
func (e *Engine) DeleteItem(ctx context.Context, id string) error {
	_, err := write(e, backend.OpDeleteItem, id, func() (struct{}, error) {
		return struct{}{}, e.be.DeleteItem(ctx, id)
	}, func(struct{}) models.ChangeEvent {
		return models.ChangeEvent{Table: models.TableItems, Type: models.EventDelete, OldItem: &models.ItemRow{ID: id}}
	})
	return err
}

// SetRecipe stores recipe text on the shared item. Blank text clears it.
func (e *Engine) SetRecipe(ctx context.Context, id, text string) (models.ItemRow, error) {
	return write(e, backend.OpUpdateRecipe, id, func() (models.ItemRow, error) {
		return e.be.UpdateItemRecipe(ctx, id, text)
	}, confirmItem(models.EventUpdate))
}

// write runs one remote call on row id and merges the confirmed row that
// confirm builds from its result.
func write[T any](e *Engine, op, id string, fn func() (T, error), confirm func(T) models.ChangeEvent) (T, error) {
	m := e.beginWrite(id)
	v, err := timed(e, op, fn)
	if err != nil {
		e.endWrite(m, nil)
		return v, err
	}
	ev := confirm(v)
	e.endWrite(m, &ev)
	return v, nil
}

func confirmDish(typ models.EventType) func(models.DishRow) models.ChangeEvent {
	return func(row models.DishRow) models.ChangeEvent {
		return models.ChangeEvent{Table: models.TableDishes, Type: typ, Dish: &row}
	}
}

func confirmItem(typ models.EventType) func(models.ItemRow) models.ChangeEvent {
	return func(row models.ItemRow) models.ChangeEvent {
		return models.ChangeEvent{Table: models.TableItems, Type: typ, Item: &row}
	}
}

// nextPosition is one past the last position in the dish, or 0.
func (e *Engine) nextPosition(dishID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.mirror.Dish(dishID)
	if !ok {
		return 0, fmt.Errorf("dish %s: %w", dishID, ErrNotFound)
	}
	pos := 0
	for _, it := range d.Items {
		if it.Position >= pos {
			pos = it.Position + 1
		}
	}
	return pos, nil
}
