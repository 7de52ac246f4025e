package snapshot

import (
	"encoding/json"
	"strings"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/rowkey"
)

// legacyDish is the old export shape: items listed by name only.
type legacyDish struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

// legacyShape reports whether raw dishes use the name-only item lists.
// Without dishes to judge by, the document is treated as legacy; Migrate
// keeps keys that already name a live item.
func legacyShape(raw json.RawMessage) bool {
	if raw == nil || string(raw) == "null" {
		return true
	}
	var dishes []legacyDish
	return json.Unmarshal(raw, &dishes) == nil
}

func legacyDishes(in []legacyDish) []models.Dish {
	out := make([]models.Dish, 0, len(in))
	for _, d := range in {
		dish := models.Dish{ID: d.ID, Name: d.Name, Items: []models.Item{}}
		for i, name := range d.Items {
			dish.Items = append(dish.Items, models.Item{DishID: d.ID, Name: name, Position: i})
		}
		out = append(out, dish)
	}
	return out
}

// Migrate rewrites the name-keyed state of a legacy document into id
// keys, resolving "<dishId>|<itemName>" against dishes (normally the
// current mirror). A key that already decodes to a live item is kept as
// is. Keys whose item cannot be found are dropped. A document that is not
// legacy is returned unchanged.
func Migrate(doc Document, rep Report, dishes []models.Dish) (Document, Report) {
	if !rep.Legacy {
		return doc, rep
	}

	byName := make(map[string]map[string]string, len(dishes))
	live := make(map[string]string)
	for _, d := range dishes {
		names := make(map[string]string, len(d.Items))
		for _, it := range d.Items {
			live[it.ID] = d.ID
			// First by position wins when a dish repeats a name.
			if _, ok := names[it.Name]; !ok {
				names[it.Name] = it.ID
			}
		}
		byName[d.ID] = names
	}
	resolve := func(old string) (string, bool) {
		if dishID, itemID, err := rowkey.Decode(old); err == nil && live[itemID] == dishID {
			return old, true
		}
		dishID, name, ok := strings.Cut(old, rowkey.Separator)
		if !ok || dishID == "" || name == "" {
			return "", false
		}
		itemID, ok := byName[dishID][name]
		if !ok {
			return "", false
		}
		key, err := rowkey.Encode(dishID, itemID)
		return key, err == nil
	}

	cells := make(map[string]bool, len(doc.Cells))
	for k, v := range doc.Cells {
		base, suffix := k, ""
		if b, ok := strings.CutSuffix(k, suffixOn); ok {
			base, suffix = b, suffixOn
		} else if b, ok := strings.CutSuffix(k, suffixPrep); ok {
			base, suffix = b, suffixPrep
		}
		key, ok := resolve(base)
		if !ok || suffix == "" {
			rep.Dropped++
			continue
		}
		rep.Migrated++
		cells[key+suffix] = v
	}
	doc.Cells = cells
	doc.RowHi = migrateMap(doc.RowHi, resolve, &rep)
	doc.Notes = migrateMap(doc.Notes, resolve, &rep)
	doc.DailySel.Keys = migrateMap(doc.DailySel.Keys, resolve, &rep)
	doc.Dishes = dishes
	rep.Legacy = false
	return doc, rep
}

func migrateMap[V any](in map[string]V, resolve func(string) (string, bool), rep *Report) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		key, ok := resolve(k)
		if !ok {
			rep.Dropped++
			continue
		}
		rep.Migrated++
		out[key] = v
	}
	return out
}
