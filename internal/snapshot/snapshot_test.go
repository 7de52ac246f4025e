package snapshot

import (
	"encoding/json"
	"reflect"
	"slices"
	"testing"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/rowkey"
	"github.com/marcus/prep/internal/rowstate"
)

func mirrorDishes() []models.Dish {
	return []models.Dish{
		{ID: "d1", Name: "Soup", Items: []models.Item{
			{ID: "i1", DishID: "d1", Name: "Stock", Position: 0},
			{ID: "i2", DishID: "d1", Name: "Onion", Position: 1},
		}},
		{ID: "d2", Name: "Salad", Items: []models.Item{
			{ID: "i3", DishID: "d2", Name: "Onion", Position: 0},
		}},
	}
}

func TestNewMarshalDecodeRoundTrip(t *testing.T) {
	k1 := rowkey.MustEncode("d1", "i1")
	k3 := rowkey.MustEncode("d2", "i3")
	rows := rowstate.Snapshot{
		OnHand:    map[string]bool{k1: true},
		Prep:      map[string]bool{k3: true},
		Highlight: map[string]bool{k3: true},
		Notes:     map[string]string{k1: "double batch"},
	}
	view := models.ViewState{Mode: models.ViewDaily, Filter: models.FilterHighlighted}
	daily := models.Selection{Enabled: true, Keys: map[string]bool{k1: true}}

	doc := New(mirrorDishes(), rows, view, daily, map[string]string{"Stock": "bones"}, true)
	if !doc.Cells[k1+"|on"] || !doc.Cells[k3+"|prep"] {
		t.Fatalf("cells = %v", doc.Cells)
	}

	data, err := Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	got, rep, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rep.Legacy || len(rep.Defaulted) != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Fatalf("round trip:\n got %+v\nwant %+v", got, doc)
	}
	if !reflect.DeepEqual(got.Rows(), rows) {
		t.Fatalf("Rows() = %+v, want %+v", got.Rows(), rows)
	}
}

func TestDecodeDefaultsPerField(t *testing.T) {
	data := []byte(`{
		"version": 2,
		"cells": {"d1|i1|on": true},
		"rowHi": "not a map",
		"view": {"mode": 7},
		"compact": true
	}`)
	doc, rep, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !doc.Cells["d1|i1|on"] || !doc.Compact {
		t.Errorf("valid fields lost: %+v", doc)
	}
	if len(doc.RowHi) != 0 || doc.View != models.DefaultViewState() {
		t.Errorf("malformed fields not defaulted: rowHi=%v view=%+v", doc.RowHi, doc.View)
	}
	if doc.DailySel.Enabled || doc.DailySel.Keys == nil {
		t.Errorf("dailySel = %+v", doc.DailySel)
	}

	want := []string{"dishes", "rowHi", "notes", "view", "dailySel", "userRecipes"}
	slices.Sort(want)
	gotFields := slices.Clone(rep.Defaulted)
	slices.Sort(gotFields)
	if !slices.Equal(gotFields, want) {
		t.Errorf("Defaulted = %v, want %v", gotFields, want)
	}
}

func TestDecodeRejectsNonObject(t *testing.T) {
	for _, in := range []string{``, `[]`, `"x"`, `{`} {
		if _, _, err := Decode([]byte(in)); err == nil {
			t.Errorf("Decode(%q) should fail", in)
		}
	}
}

func TestMigrateLegacyDocument(t *testing.T) {
	data := []byte(`{
		"dishes": [{"id": "d1", "name": "Soup", "items": ["Stock", "Onion"]}],
		"cells": {"d1|Stock|on": true, "d1|Onion|prep": true, "d1|Gone|on": true, "d1|Stock": true},
		"rowHi": {"d2|Onion": true},
		"notes": {"d1|Stock": "simmer 4h", "d9|Stock": "lost"},
		"view": {"mode": "daily", "filter": "all", "dishId": null},
		"dailySel": {"enabled": true, "items": {"d1|Onion": true}},
		"userRecipes": {"Stock": "bones"}
	}`)
	doc, rep, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !rep.Legacy {
		t.Fatal("document without version should be legacy")
	}
	if len(doc.Dishes) != 1 || doc.Dishes[0].Items[1].Name != "Onion" {
		t.Fatalf("legacy dishes = %+v", doc.Dishes)
	}

	doc, rep = Migrate(doc, rep, mirrorDishes())
	k1 := rowkey.MustEncode("d1", "i1")
	k2 := rowkey.MustEncode("d1", "i2")
	k3 := rowkey.MustEncode("d2", "i3")

	wantCells := map[string]bool{k1 + "|on": true, k2 + "|prep": true}
	if !reflect.DeepEqual(doc.Cells, wantCells) {
		t.Errorf("cells = %v, want %v", doc.Cells, wantCells)
	}
	if !reflect.DeepEqual(doc.RowHi, map[string]bool{k3: true}) {
		t.Errorf("rowHi = %v", doc.RowHi)
	}
	if !reflect.DeepEqual(doc.Notes, map[string]string{k1: "simmer 4h"}) {
		t.Errorf("notes = %v", doc.Notes)
	}
	if !doc.DailySel.Enabled || !reflect.DeepEqual(doc.DailySel.Keys, map[string]bool{k2: true}) {
		t.Errorf("dailySel = %+v", doc.DailySel)
	}
	if doc.View.Mode != models.ViewDaily || doc.UserRecipes["Stock"] != "bones" {
		t.Errorf("untouched fields changed: %+v", doc)
	}
	// Migrated: 2 cells, 1 rowHi, 1 note, 1 daily. Dropped: Gone, the
	// suffixless cell, and the note for an unknown dish.
	if rep.Migrated != 5 || rep.Dropped != 3 {
		t.Errorf("report = %+v, want 5 migrated, 3 dropped", rep)
	}
	if rep.Legacy {
		t.Error("report still legacy after migration")
	}
}

// withoutFields re-encodes an export with the named top-level fields removed.
func withoutFields(t *testing.T, doc Document, names ...string) []byte {
	t.Helper()
	data, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		delete(fields, n)
	}
	out, err := json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestDecodeWithoutVersionKeepsIdKeys(t *testing.T) {
	k1 := rowkey.MustEncode("d1", "i1")
	k3 := rowkey.MustEncode("d2", "i3")
	doc := New(mirrorDishes(),
		rowstate.Snapshot{OnHand: map[string]bool{k1: true}, Notes: map[string]string{k3: "thin"}},
		models.DefaultViewState(), models.Selection{}, nil, false)

	tests := []struct {
		name       string
		drop       []string
		wantLegacy bool
	}{
		{"version only", []string{"version"}, false},
		{"version and dishes", []string{"version", "dishes"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rep, err := Decode(withoutFields(t, doc, tt.drop...))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if rep.Legacy != tt.wantLegacy {
				t.Fatalf("Legacy = %v, want %v", rep.Legacy, tt.wantLegacy)
			}
			got, rep = Migrate(got, rep, mirrorDishes())
			rows := got.Rows()
			if !rows.OnHand[k1] || rows.Notes[k3] != "thin" {
				t.Errorf("id-keyed state lost: %+v", rows)
			}
			if rep.Dropped != 0 {
				t.Errorf("report = %+v, want nothing dropped", rep)
			}
		})
	}
}

func TestMigrateLeavesCurrentDocuments(t *testing.T) {
	doc := New(nil, rowstate.Snapshot{OnHand: map[string]bool{"d1|i1": true}}, models.DefaultViewState(), models.Selection{}, nil, false)
	got, rep := Migrate(doc, Report{}, mirrorDishes())
	if !reflect.DeepEqual(got, doc) || rep.Migrated != 0 {
		t.Fatalf("current document changed: %+v %+v", got, rep)
	}
}

func TestMigrateDuplicateNamesUseFirst(t *testing.T) {
	dishes := []models.Dish{{ID: "d1", Items: []models.Item{
		{ID: "a", DishID: "d1", Name: "Salt", Position: 0},
		{ID: "b", DishID: "d1", Name: "Salt", Position: 1},
	}}}
	doc := empty()
	doc.Notes = map[string]string{"d1|Salt": "flaky"}
	got, _ := Migrate(doc, Report{Legacy: true}, dishes)
	if got.Notes[rowkey.MustEncode("d1", "a")] != "flaky" {
		t.Fatalf("notes = %v", got.Notes)
	}
}
