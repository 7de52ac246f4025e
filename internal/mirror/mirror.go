// Package mirror holds the in-memory copy of the backend's dishes and items.
// It is rebuilt from a bulk fetch and patched one change at a time; it does
// no locking of its own, the engine serializes access.
package mirror

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/marcus/prep/internal/models"
)

// ErrOrphan is returned when a change references a dish the mirror does not hold.
var ErrOrphan = errors.New("orphan reference")

type dish struct {
	id    string
	name  string
	items []models.Item
}

// Store is the local mirror.
type Store struct {
	order  []string // dish ids in discovery order
	dishes map[string]*dish
	owner  map[string]string // item id -> dish id
}

// New returns an empty mirror.
func New() *Store {
	return &Store{
		dishes: make(map[string]*dish),
		owner:  make(map[string]string),
	}
}

// Load replaces the mirror with a bulk fetch. Items are grouped by dish in
// the order given and then ordered by position; items of unknown dishes are dropped.
func (s *Store) Load(dishes []models.DishRow, items []models.ItemRow) {
	s.order = s.order[:0]
	s.dishes = make(map[string]*dish, len(dishes))
	s.owner = make(map[string]string, len(items))

	for _, d := range dishes {
		if d.ID == "" {
			slog.Warn("mirror load: skipping dish without id", "name", d.Name)
			continue
		}
		if _, dup := s.dishes[d.ID]; dup {
			continue
		}
		s.dishes[d.ID] = &dish{id: d.ID, name: d.Name}
		s.order = append(s.order, d.ID)
	}

	sorted := make([]models.ItemRow, len(items))
	copy(sorted, items)
	models.SortItems(sorted)
	for _, it := range sorted {
		if it.ID == "" {
			slog.Warn("mirror load: skipping item without id", "name", it.Name, "dish", it.DishID)
			continue
		}
		d, ok := s.dishes[it.DishID]
		if !ok {
			slog.Debug("mirror load: item for unknown dish", "item", it.ID, "dish", it.DishID)
			continue
		}
		if _, dup := s.owner[it.ID]; dup {
			continue
		}
		d.items = append(d.items, it.Item())
		s.owner[it.ID] = d.id
	}
}

// UpsertDish inserts a dish or renames it in place. It reports whether anything changed.
func (s *Store) UpsertDish(id, name string) bool {
	if d, ok := s.dishes[id]; ok {
		if d.name == name {
			return false
		}
		d.name = name
		return true
	}
	s.dishes[id] = &dish{id: id, name: name}
	s.order = append(s.order, id)
	return true
}

// RemoveDish drops a dish and returns the ids of the items it held.
func (s *Store) RemoveDish(id string) ([]string, bool) {
	d, ok := s.dishes[id]
	if !ok {
		return nil, false
	}
	removed := make([]string, 0, len(d.items))
	for _, it := range d.items {
		removed = append(removed, it.ID)
		delete(s.owner, it.ID)
	}
	delete(s.dishes, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return removed, true
}

// ItemChange describes what UpsertItem did.
type ItemChange struct {
	Inserted   bool
	Renamed    bool
	Moved      bool // position changed within the dish
	Reparented bool // item now belongs to a different dish
	RecipeSet  bool
	Previous   models.Item // zero when Inserted
}

// Changed reports whether the upsert had any effect.
func (c ItemChange) Changed() bool {
	return c.Inserted || c.Renamed || c.Moved || c.Reparented || c.RecipeSet
}

// UpsertItem inserts an item or updates it in place. The item is placed
// after every item whose position is <= its own, so per-dish order stays
// non-decreasing in position and untouched items keep their relative order.
func (s *Store) UpsertItem(row models.ItemRow) (ItemChange, error) {
	target, ok := s.dishes[row.DishID]
	if !ok {
		return ItemChange{}, fmt.Errorf("upsert item %s: dish %s: %w", row.ID, row.DishID, ErrOrphan)
	}

	var change ItemChange
	if prevDishID, exists := s.owner[row.ID]; exists {
		prevDish := s.dishes[prevDishID]
		idx := indexOf(prevDish.items, row.ID)
		prev := prevDish.items[idx]
		change.Previous = prev
		change.Renamed = prev.Name != row.Name
		change.Reparented = prevDishID != row.DishID
		change.Moved = prev.Position != row.Position
		change.RecipeSet = !models.EqualString(prev.Recipe, row.Recipe)
		if !change.Changed() {
			return change, nil
		}
		prevDish.items = append(prevDish.items[:idx], prevDish.items[idx+1:]...)
	} else {
		change.Inserted = true
	}

	target.items = insertByPosition(target.items, row.Item())
	s.owner[row.ID] = target.id
	return change, nil
}

// SetRecipe replaces an item's recipe. It reports whether the value changed.
func (s *Store) SetRecipe(itemID string, recipe *string) bool {
	dishID, ok := s.owner[itemID]
	if !ok {
		return false
	}
	d := s.dishes[dishID]
	idx := indexOf(d.items, itemID)
	if models.EqualString(d.items[idx].Recipe, recipe) {
		return false
	}
	d.items[idx].Recipe = models.CloneString(recipe)
	return true
}

// RemoveItem drops an item from its dish.
func (s *Store) RemoveItem(itemID string) (models.Item, bool) {
	dishID, ok := s.owner[itemID]
	if !ok {
		return models.Item{}, false
	}
	d := s.dishes[dishID]
	idx := indexOf(d.items, itemID)
	it := d.items[idx]
	d.items = append(d.items[:idx], d.items[idx+1:]...)
	delete(s.owner, itemID)
	return it, true
}

// HasDish reports whether the dish is in the mirror.
func (s *Store) HasDish(id string) bool {
	_, ok := s.dishes[id]
	return ok
}

// Dish returns a copy of one dish.
func (s *Store) Dish(id string) (models.Dish, bool) {
	d, ok := s.dishes[id]
	if !ok {
		return models.Dish{}, false
	}
	return d.export(), true
}

// Item returns a copy of one item, looked up by id alone.
func (s *Store) Item(itemID string) (models.Item, bool) {
	dishID, ok := s.owner[itemID]
	if !ok {
		return models.Item{}, false
	}
	d := s.dishes[dishID]
	it := d.items[indexOf(d.items, itemID)]
	it.Recipe = models.CloneString(it.Recipe)
	return it, true
}

// Len returns the number of dishes and items held.
func (s *Store) Len() (dishes, items int) {
	return len(s.dishes), len(s.owner)
}

// Snapshot returns a deep copy of every dish in discovery order.
func (s *Store) Snapshot() []models.Dish {
	out := make([]models.Dish, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.dishes[id].export())
	}
	return out
}

// Rows flattens the mirror back into backend rows, in mirror order.
func (s *Store) Rows() models.Dataset {
	var ds models.Dataset
	for _, id := range s.order {
		d := s.dishes[id]
		ds.Dishes = append(ds.Dishes, models.DishRow{ID: d.id, Name: d.name})
		for _, it := range d.items {
			ds.Items = append(ds.Items, models.ItemRow{
				ID: it.ID, DishID: it.DishID, Name: it.Name, Position: it.Position,
				Recipe: models.CloneString(it.Recipe),
			})
		}
	}
	return ds
}

func (d *dish) export() models.Dish {
	items := make([]models.Item, len(d.items))
	for i, it := range d.items {
		it.Recipe = models.CloneString(it.Recipe)
		items[i] = it
	}
	return models.Dish{ID: d.id, Name: d.name, Items: items}
}

func indexOf(items []models.Item, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	// owner and items are kept in step; reaching here is a bug.
	panic(fmt.Sprintf("mirror: item %s missing from its dish", id))
}

func insertByPosition(items []models.Item, it models.Item) []models.Item {
	at := len(items)
	for i, cur := range items {
		if cur.Position > it.Position {
			at = i
			break
		}
	}
	items = append(items, models.Item{})
	copy(items[at+1:], items[at:])
	items[at] = it
	return items
}
