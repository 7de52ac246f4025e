// Package view derives what the checklist shows from the mirror and the
// device-local stores. Project is a pure function of its input.
package view

import (
	"log/slog"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/rowkey"
)

// StateReader reads row state by composite key.
type StateReader interface {
	State(key string) models.RowState
}

// RecipeChecker reports whether an item has a recipe from any source.
type RecipeChecker interface {
	Has(backend *string, name string) bool
}

// Input is everything a projection depends on.
type Input struct {
	Dishes    []models.Dish
	View      models.ViewState
	Selection models.Selection
	Rows      StateReader
	Recipes   RecipeChecker
	Where     *Predicate
}

// Row is one visible item.
type Row struct {
	Key           string          `json:"key"`
	ItemID        string          `json:"item_id"`
	Name          string          `json:"name"`
	Position      int             `json:"position"`
	State         models.RowState `json:"state"`
	Shared        bool            `json:"shared"`
	MissingRecipe bool            `json:"missing_recipe"`
}

// DishView is one visible dish and the rows that passed the item test.
// Empty is set when the dish is shown but has no visible rows.
type DishView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Rows  []Row  `json:"rows"`
	Empty bool   `json:"empty"`
}

// Project computes the visible dishes and rows, in dish discovery order
// and then item position order.
func Project(in Input) []DishView {
	v := in.View.Normalize()
	shared := SharedNames(in.Dishes)
	daily := v.Mode == models.ViewDaily && in.Selection.Enabled

	out := make([]DishView, 0, len(in.Dishes))
	for _, d := range in.Dishes {
		if v.Filter == models.FilterDish && d.ID != v.DishID {
			continue
		}
		rows := make([]Row, 0, len(d.Items))
		for _, it := range d.Items {
			key, err := rowkey.Encode(d.ID, it.ID)
			if err != nil {
				slog.Warn("view: skipping item", "dish", d.ID, "item", it.ID, "err", err)
				continue
			}
			if daily && !in.Selection.Contains(key) {
				continue
			}
			st := readState(in.Rows, key)
			if v.Filter == models.FilterHighlighted && !st.Highlighted {
				continue
			}
			row := Row{
				Key:           key,
				ItemID:        it.ID,
				Name:          it.Name,
				Position:      it.Position,
				State:         st,
				Shared:        shared[it.Name],
				MissingRecipe: !hasRecipe(in.Recipes, it),
			}
			if !matches(in.Where, d, row) {
				continue
			}
			rows = append(rows, row)
		}
		if v.Filter == models.FilterHighlighted && len(rows) == 0 {
			continue
		}
		out = append(out, DishView{ID: d.ID, Name: d.Name, Rows: rows, Empty: len(rows) == 0})
	}
	return out
}

// SharedNames returns the item names that appear in two or more dishes.
func SharedNames(dishes []models.Dish) map[string]bool {
	count := make(map[string]int)
	for _, d := range dishes {
		seen := make(map[string]bool, len(d.Items))
		for _, it := range d.Items {
			if seen[it.Name] {
				continue
			}
			seen[it.Name] = true
			count[it.Name]++
		}
	}
	shared := make(map[string]bool)
	for name, n := range count {
		if n >= 2 {
			shared[name] = true
		}
	}
	return shared
}

func readState(r StateReader, key string) models.RowState {
	if r == nil {
		return models.RowState{}
	}
	return r.State(key)
}

func hasRecipe(r RecipeChecker, it models.Item) bool {
	if r == nil {
		return it.Recipe != nil && *it.Recipe != ""
	}
	return r.Has(it.Recipe, it.Name)
}

func matches(p *Predicate, d models.Dish, row Row) bool {
	ok, err := p.Match(Env{
		Name:        row.Name,
		Dish:        d.Name,
		OnHand:      row.State.OnHand,
		Prep:        row.State.Prep,
		Highlighted: row.State.Highlighted,
		Note:        row.State.Note,
		Shared:      row.Shared,
		HasRecipe:   !row.MissingRecipe,
		Position:    row.Position,
	})
	if err != nil {
		slog.Warn("view: predicate failed, hiding row", "key", row.Key, "err", err)
		return false
	}
	return ok
}
