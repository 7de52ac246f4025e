package engine

import (
	"fmt"
	"strings"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/recipe"
	"github.com/marcus/prep/internal/rowkey"
	"github.com/marcus/prep/internal/rowstate"
	"github.com/marcus/prep/internal/selection"
	"github.com/marcus/prep/internal/view"
)

// Key returns the composite key of an item in the mirror.
func (e *Engine) Key(itemID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	it, ok := e.mirror.Item(itemID)
	if !ok {
		return "", fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	return rowkey.Encode(it.DishID, it.ID)
}

// checkKeyLocked refuses keys whose item is not in the mirror, so no
// state is ever written under a dead key.
func (e *Engine) checkKeyLocked(key string) error {
	dishID, itemID, err := rowkey.Decode(key)
	if err != nil {
		return err
	}
	it, ok := e.mirror.Item(itemID)
	if !ok || it.DishID != dishID {
		return fmt.Errorf("row %s: %w", key, ErrNotFound)
	}
	return nil
}

// State returns the row state stored under key.
func (e *Engine) State(key string) models.RowState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rows.State(key)
}

// Toggle flips one attribute of a row and returns its new value. On hand
// and prep are exclusive: setting one clears the other.
func (e *Engine) Toggle(key string, a rowstate.Attr) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkKeyLocked(key); err != nil {
		return false, err
	}
	v := e.rows.Toggle(key, a)
	if v {
		switch a {
		case rowstate.AttrOnHand:
			e.rows.Set(key, rowstate.AttrPrep, false)
		case rowstate.AttrPrep:
			e.rows.Set(key, rowstate.AttrOnHand, false)
		}
	}
	e.touchLocked()
	return v, nil
}

// Cycle steps a row's cell none -> on hand -> prep -> none.
func (e *Engine) Cycle(key string) (models.Toggle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkKeyLocked(key); err != nil {
		return models.ToggleNone, err
	}
	t := e.rows.Cycle(key)
	e.touchLocked()
	return t, nil
}

// SetCell puts a row's cell into state t directly.
func (e *Engine) SetCell(key string, t models.Toggle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkKeyLocked(key); err != nil {
		return err
	}
	e.rows.Set(key, rowstate.AttrOnHand, t == models.ToggleOnHand)
	e.rows.Set(key, rowstate.AttrPrep, t == models.TogglePrep)
	e.touchLocked()
	return nil
}

// Star flips a row's highlight.
func (e *Engine) Star(key string) (bool, error) {
	return e.Toggle(key, rowstate.AttrHighlight)
}

// SetNote replaces a row's note. A blank note removes it.
func (e *Engine) SetNote(key, note string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkKeyLocked(key); err != nil {
		return err
	}
	e.rows.SetNote(key, strings.TrimSpace(note))
	e.touchLocked()
	return nil
}

// View returns the current view state.
func (e *Engine) View() models.ViewState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// SetView switches mode, filter and where expression together. Daily mode
// needs a picked daily list, a dish filter needs a dish in the mirror, and
// the where expression must compile.
func (e *Engine) SetView(v models.ViewState) error {
	v = v.Normalize()
	p, err := view.Compile(v.Where)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if v.Mode == models.ViewDaily && !e.sel.Enabled() {
		return ErrNoSelection
	}
	if v.Filter == models.FilterDish && !e.mirror.HasDish(v.DishID) {
		return fmt.Errorf("dish %s: %w", v.DishID, ErrNotFound)
	}
	e.view = v
	e.where = p
	e.touchLocked()
	return nil
}

// Daily returns the daily selection.
func (e *Engine) Daily() models.Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sel.Current()
}

// PickDaily replaces the daily list with keys. Every key must name an
// item in the mirror.
func (e *Engine) PickDaily(keys []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range keys {
		if err := e.checkKeyLocked(k); err != nil {
			return err
		}
	}
	e.sel.Set(selection.Build(keys))
	e.touchLocked()
	return nil
}

// ClearDaily drops the daily list and leaves daily mode if it was on.
func (e *Engine) ClearDaily() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sel.Set(selection.Clear())
	if e.view.Mode == models.ViewDaily {
		e.view.Mode = models.ViewFull
	}
	e.touchLocked()
}

// Compact reports the compact display flag.
func (e *Engine) Compact() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compact
}

// SetCompact sets the compact display flag.
func (e *Engine) SetCompact(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compact = on
	e.touchLocked()
}

// Recipe resolves the recipe shown for an item.
func (e *Engine) Recipe(itemID string) (string, recipe.Source, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	it, ok := e.mirror.Item(itemID)
	if !ok {
		return "", recipe.SourceNone, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	backendText := it.Recipe
	if m, ok := e.meta.Get(rowkey.MustEncode(it.DishID, it.ID)); ok {
		backendText = m.Recipe
	}
	text, src := e.book.Resolve(backendText, it.Name)
	return text, src, nil
}

// UserRecipes returns the device's recipe-by-name table.
func (e *Engine) UserRecipes() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.User()
}

// SetUserRecipe stores device-local recipe text for every item named name.
// Blank text removes it.
func (e *Engine) SetUserRecipe(name, text string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.book.SetUser(name, text)
	e.touchLocked()
	return nil
}

func (e *Engine) touchLocked() {
	e.dirty = true
	e.signal()
}
