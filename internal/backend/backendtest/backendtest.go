// Package backendtest is a conformance suite run against every backend.
package backendtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marcus/prep/internal/backend"
	"github.com/marcus/prep/internal/models"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) backend.Backend

// Run exercises the backend contract.
func Run(t *testing.T, newBackend Factory) {
	t.Run("CRUD", func(t *testing.T) { testCRUD(t, newBackend(t)) })
	t.Run("PositionOrder", func(t *testing.T) { testPositionOrder(t, newBackend(t)) })
	t.Run("DeleteDishCascades", func(t *testing.T) { testDeleteDishCascades(t, newBackend(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newBackend(t)) })
	t.Run("Subscribe", func(t *testing.T) { testSubscribe(t, newBackend(t)) })
}

// Recorder collects events delivered to a subscriber.
type Recorder struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

// Record is an onEvent callback.
func (r *Recorder) Record(ev models.ChangeEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of what was recorded.
func (r *Recorder) Events() []models.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ChangeEvent(nil), r.events...)
}

// WaitFor polls until n events have arrived or the timeout passes.
func (r *Recorder) WaitFor(t *testing.T, n int, timeout time.Duration) []models.ChangeEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		evs := r.Events()
		if len(evs) >= n {
			return evs
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d events after %s, want %d: %+v", len(evs), timeout, n, evs)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return c
}

func closeOnCleanup(t *testing.T, b backend.Backend) {
	t.Helper()
	t.Cleanup(func() {
		if err := b.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
}

func testCRUD(t *testing.T, b backend.Backend) {
	closeOnCleanup(t, b)
	c := ctx(t)

	soup, err := b.InsertDish(c, "Soup")
	if err != nil {
		t.Fatalf("InsertDish: %v", err)
	}
	if soup.ID == "" || soup.Name != "Soup" {
		t.Fatalf("InsertDish = %+v", soup)
	}
	stew, err := b.InsertDish(c, "Stew")
	if err != nil {
		t.Fatalf("InsertDish: %v", err)
	}
	if _, err := b.UpdateDish(c, soup.ID, "Soup of the day"); err != nil {
		t.Fatalf("UpdateDish: %v", err)
	}

	stock, err := b.InsertItem(c, soup.ID, "Stock", 0)
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if stock.ID == "" || stock.DishID != soup.ID || stock.Recipe != nil {
		t.Fatalf("InsertItem = %+v", stock)
	}

	pos := 3
	broth, err := b.UpdateItem(c, stock.ID, "Broth", &pos)
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if broth.Name != "Broth" || broth.Position != 3 {
		t.Errorf("UpdateItem = %+v", broth)
	}
	kept, err := b.UpdateItem(c, stock.ID, "Broth", nil)
	if err != nil || kept.Position != 3 {
		t.Errorf("UpdateItem without position = %+v, %v", kept, err)
	}

	withRecipe, err := b.UpdateItemRecipe(c, stock.ID, "simmer 4h")
	if err != nil {
		t.Fatalf("UpdateItemRecipe: %v", err)
	}
	if withRecipe.Recipe == nil || *withRecipe.Recipe != "simmer 4h" {
		t.Errorf("recipe = %v", withRecipe.Recipe)
	}

	moved, err := b.MoveItem(c, stock.ID, stew.ID, 1)
	if err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	if moved.DishID != stew.ID || moved.Position != 1 || moved.Recipe == nil {
		t.Errorf("MoveItem = %+v", moved)
	}

	ds, err := b.FetchAll(c)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(ds.Dishes) != 2 || ds.Dishes[0].Name != "Soup of the day" || ds.Dishes[1].ID != stew.ID {
		t.Errorf("dishes = %+v", ds.Dishes)
	}
	if len(ds.Items) != 1 || ds.Items[0].Name != "Broth" || ds.Items[0].DishID != stew.ID {
		t.Errorf("items = %+v", ds.Items)
	}

	if err := b.DeleteItem(c, stock.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	ds, _ = b.FetchAll(c)
	if len(ds.Items) != 0 {
		t.Errorf("items after delete = %+v", ds.Items)
	}
}

func testPositionOrder(t *testing.T, b backend.Backend) {
	closeOnCleanup(t, b)
	c := ctx(t)
	d, err := b.InsertDish(c, "Salad")
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range []struct {
		name string
		pos  int
	}{{"c", 2}, {"a", 0}, {"b", 1}, {"a2", 0}} {
		if _, err := b.InsertItem(c, d.ID, in.name, in.pos); err != nil {
			t.Fatal(err)
		}
	}
	ds, err := b.FetchAll(c)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, it := range ds.Items {
		got = append(got, it.Name)
	}
	want := []string{"a", "a2", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func testDeleteDishCascades(t *testing.T, b backend.Backend) {
	closeOnCleanup(t, b)
	c := ctx(t)
	d, _ := b.InsertDish(c, "Soup")
	other, _ := b.InsertDish(c, "Stew")
	for _, n := range []string{"Stock", "Leek"} {
		if _, err := b.InsertItem(c, d.ID, n, 0); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := b.InsertItem(c, other.ID, "Beef", 0); err != nil {
		t.Fatal(err)
	}
	if err := b.DeleteDish(c, d.ID); err != nil {
		t.Fatalf("DeleteDish: %v", err)
	}
	ds, _ := b.FetchAll(c)
	if len(ds.Dishes) != 1 || len(ds.Items) != 1 || ds.Items[0].Name != "Beef" {
		t.Errorf("after cascade = %+v", ds)
	}
}

func testNotFound(t *testing.T, b backend.Backend) {
	closeOnCleanup(t, b)
	c := ctx(t)
	checks := map[string]error{}
	_, checks["UpdateDish"] = b.UpdateDish(c, "missing", "x")
	checks["DeleteDish"] = b.DeleteDish(c, "missing")
	_, checks["InsertItem"] = b.InsertItem(c, "missing", "x", 0)
	_, checks["UpdateItem"] = b.UpdateItem(c, "missing", "x", nil)
	_, checks["UpdateItemRecipe"] = b.UpdateItemRecipe(c, "missing", "x")
	checks["DeleteItem"] = b.DeleteItem(c, "missing")

	for op, err := range checks {
		var re *backend.RemoteError
		if !errors.As(err, &re) {
			t.Errorf("%s: error %v is not a RemoteError", op, err)
			continue
		}
		if !errors.Is(err, backend.ErrNotFound) {
			t.Errorf("%s: error %v does not wrap ErrNotFound", op, err)
		}
	}
}

func testSubscribe(t *testing.T, b backend.Backend) {
	closeOnCleanup(t, b)
	c := ctx(t)
	var rec Recorder
	unsubscribe, err := b.Subscribe(c, rec.Record)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	d, _ := b.InsertDish(c, "Soup")
	it, _ := b.InsertItem(c, d.ID, "Stock", 0)
	if _, err := b.UpdateItem(c, it.ID, "Broth", nil); err != nil {
		t.Fatal(err)
	}
	if err := b.DeleteDish(c, d.ID); err != nil {
		t.Fatal(err)
	}

	evs := rec.WaitFor(t, 5, 5*time.Second)
	want := []struct {
		table models.Table
		typ   models.EventType
	}{
		{models.TableDishes, models.EventInsert},
		{models.TableItems, models.EventInsert},
		{models.TableItems, models.EventUpdate},
		{models.TableItems, models.EventDelete},
		{models.TableDishes, models.EventDelete},
	}
	for i, w := range want {
		if evs[i].Table != w.table || evs[i].Type != w.typ {
			t.Errorf("event %d = %s %s, want %s %s", i, evs[i].Table, evs[i].Type, w.table, w.typ)
		}
	}
	if evs[2].Item == nil || evs[2].Item.Name != "Broth" {
		t.Errorf("update payload = %+v", evs[2].Item)
	}
	if evs[3].OldItem == nil || evs[3].OldItem.ID != it.ID {
		t.Errorf("item delete payload = %+v", evs[3].OldItem)
	}
	if evs[4].OldDish == nil || evs[4].OldDish.ID != d.ID {
		t.Errorf("dish delete payload = %+v", evs[4].OldDish)
	}

	unsubscribe()
	before := len(rec.Events())
	if _, err := b.InsertDish(c, "Late"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := len(rec.Events()); got != before {
		t.Errorf("received %d events after unsubscribe", got-before)
	}
}
