package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/marcus/prep/internal/meta"
	"github.com/marcus/prep/internal/mirror"
	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/rowkey"
	"github.com/marcus/prep/internal/rowstate"
	"github.com/marcus/prep/internal/selection"
)

type fixture struct {
	mirror *mirror.Store
	rows   *rowstate.Store
	meta   *meta.Store
	sel    *selection.Manager
	notes  []Notification
	r      *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mirror: mirror.New(),
		rows:   rowstate.New(),
		meta:   meta.New(),
		sel:    selection.NewManager(),
	}
	f.r = New(f.mirror, f.rows, f.meta, f.sel, WithNotifier(NotifierFunc(func(n Notification) {
		f.notes = append(f.notes, n)
	})))
	return f
}

func (f *fixture) apply(t *testing.T, ev models.ChangeEvent) Outcome {
	t.Helper()
	out, err := f.r.Apply(ev)
	if err != nil {
		t.Fatalf("Apply(%+v): %v", ev, err)
	}
	return out
}

func dishEvent(typ models.EventType, id, name string) models.ChangeEvent {
	return models.ChangeEvent{Table: models.TableDishes, Type: typ, Dish: &models.DishRow{ID: id, Name: name}}
}

func itemEvent(typ models.EventType, row models.ItemRow) models.ChangeEvent {
	return models.ChangeEvent{Table: models.TableItems, Type: typ, Item: &row}
}

func itemDelete(id string) models.ChangeEvent {
	return models.ChangeEvent{Table: models.TableItems, Type: models.EventDelete, OldItem: &models.ItemRow{ID: id}}
}

func TestSoupStockRenamedToBroth(t *testing.T) {
	f := newFixture(t)
	f.apply(t, dishEvent(models.EventInsert, "d1", "Soup"))
	f.apply(t, itemEvent(models.EventInsert, models.ItemRow{ID: "i1", DishID: "d1", Name: "Stock", Position: 0}))

	// A fresh fetch replaces the mirror with backend truth.
	f.r.Reload(f.mirror.Rows())

	key := rowkey.MustEncode("d1", "i1")
	f.rows.Set(key, rowstate.AttrOnHand, true)

	out := f.apply(t, itemEvent(models.EventUpdate, models.ItemRow{ID: "i1", DishID: "d1", Name: "Broth", Position: 0}))
	if out != Applied {
		t.Fatalf("rename outcome = %s, want applied", out)
	}

	it, ok := f.mirror.Item("i1")
	if !ok || it.Name != "Broth" {
		t.Fatalf("mirror item = %+v, %v", it, ok)
	}
	if !f.rows.Get(key, rowstate.AttrOnHand) {
		t.Error("on-hand flag lost across rename")
	}
	last := f.notes[len(f.notes)-1]
	if last.Kind != ItemRenamed || last.OldName != "Stock" || last.Name != "Broth" {
		t.Errorf("last notification = %+v", last)
	}
}

func TestRenameKeepsMetaUnderSameKey(t *testing.T) {
	f := newFixture(t)
	f.apply(t, dishEvent(models.EventInsert, "d1", "Soup"))
	f.apply(t, itemEvent(models.EventInsert, models.ItemRow{ID: "i1", DishID: "d1", Name: "Stock", Recipe: models.StringPtr("bones")}))
	key := rowkey.MustEncode("d1", "i1")
	f.rows.SetNote(key, "strain twice")

	f.apply(t, itemEvent(models.EventUpdate, models.ItemRow{ID: "i1", DishID: "d1", Name: "Broth", Recipe: models.StringPtr("bones")}))

	m, ok := f.meta.Get(key)
	if !ok || m.RemoteID != "i1" || m.Recipe == nil || *m.Recipe != "bones" {
		t.Errorf("meta = %+v, %v", m, ok)
	}
	if f.rows.Note(key) != "strain twice" {
		t.Error("note lost across rename")
	}
	if got := f.meta.Keys(); len(got) != 1 {
		t.Errorf("meta keys = %v, want one", got)
	}
}

func TestDishDeleteRetiresAllState(t *testing.T) {
	f := newFixture(t)
	f.apply(t, dishEvent(models.EventInsert, "d1", "Soup"))
	f.apply(t, dishEvent(models.EventInsert, "d2", "Salad"))
	var keys []string
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("i%d", i)
		f.apply(t, itemEvent(models.EventInsert, models.ItemRow{ID: id, DishID: "d1", Name: id, Position: i}))
		k := rowkey.MustEncode("d1", id)
		keys = append(keys, k)
		f.rows.Set(k, rowstate.AttrPrep, true)
	}
	f.apply(t, itemEvent(models.EventInsert, models.ItemRow{ID: "keep", DishID: "d2", Name: "Lettuce"}))
	keep := rowkey.MustEncode("d2", "keep")
	f.rows.Set(keep, rowstate.AttrHighlight, true)
	f.sel.Set(selection.Build(append([]string{keep}, keys...)))

	// State left by a previous session for an item this mirror never saw.
	stale := rowkey.MustEncode("d1", "ghost")
	f.rows.SetNote(stale, "old")

	ev := models.ChangeEvent{Table: models.TableDishes, Type: models.EventDelete, OldDish: &models.DishRow{ID: "d1"}}
	if out := f.apply(t, ev); out != Applied {
		t.Fatalf("delete outcome = %s", out)
	}

	for _, k := range f.rows.Keys() {
		if d, _ := rowkey.DishID(k); d == "d1" {
			t.Errorf("row state left for %s", k)
		}
	}
	for _, k := range f.meta.Keys() {
		if d, _ := rowkey.DishID(k); d == "d1" {
			t.Errorf("meta left for %s", k)
		}
	}
	if got := f.sel.Keys(); len(got) != 1 || got[0] != keep {
		t.Errorf("selection = %v, want [%s]", got, keep)
	}
	if !f.rows.Highlighted(keep) {
		t.Error("unrelated dish state was touched")
	}
}

func TestReparentRekeysState(t *testing.T) {
	f := newFixture(t)
	f.apply(t, dishEvent(models.EventInsert, "d1", "Soup"))
	f.apply(t, dishEvent(models.EventInsert, "d2", "Stew"))
	f.apply(t, itemEvent(models.EventInsert, models.ItemRow{ID: "i1", DishID: "d1", Name: "Carrot"}))
	oldKey := rowkey.MustEncode("d1", "i1")
	newKey := rowkey.MustEncode("d2", "i1")
	f.rows.Set(oldKey, rowstate.AttrOnHand, true)
	f.sel.Set(selection.Build([]string{oldKey}))

	f.apply(t, itemEvent(models.EventUpdate, models.ItemRow{ID: "i1", DishID: "d2", Name: "Carrot"}))

	if f.rows.Get(oldKey, rowstate.AttrOnHand) || !f.rows.Get(newKey, rowstate.AttrOnHand) {
		t.Error("row state not re-keyed")
	}
	if f.sel.Contains(oldKey) || !f.sel.Contains(newKey) {
		t.Error("selection not re-keyed")
	}
	if _, ok := f.meta.Get(newKey); !ok {
		t.Error("meta not re-keyed")
	}
	last := f.notes[len(f.notes)-1]
	if last.Kind != ItemMoved || last.OldDishName != "Soup" || last.DishName != "Stew" {
		t.Errorf("notification = %+v", last)
	}
}

func TestRecipeChangeNotifiesSeparately(t *testing.T) {
	f := newFixture(t)
	f.apply(t, dishEvent(models.EventInsert, "d1", "Soup"))
	f.apply(t, itemEvent(models.EventInsert, models.ItemRow{ID: "i1", DishID: "d1", Name: "Stock"}))
	f.notes = nil

	f.apply(t, itemEvent(models.EventUpdate, models.ItemRow{ID: "i1", DishID: "d1", Name: "Broth", Recipe: models.StringPtr("simmer")}))

	if len(f.notes) != 2 || f.notes[0].Kind != ItemRenamed || f.notes[1].Kind != RecipeChanged {
		t.Fatalf("notifications = %+v", f.notes)
	}
	if r := f.meta.Recipe(rowkey.MustEncode("d1", "i1")); r == nil || *r != "simmer" {
		t.Errorf("meta recipe = %v", r)
	}
}

func TestEchoesAreSilentNoops(t *testing.T) {
	f := newFixture(t)
	ins := dishEvent(models.EventInsert, "d1", "Soup")
	item := itemEvent(models.EventInsert, models.ItemRow{ID: "i1", DishID: "d1", Name: "Stock", Position: 2})
	f.apply(t, ins)
	f.apply(t, item)
	f.notes = nil

	for _, ev := range []models.ChangeEvent{ins, item, itemEvent(models.EventUpdate, *item.Item), dishEvent(models.EventUpdate, "d1", "Soup")} {
		if out := f.apply(t, ev); out != Noop {
			t.Errorf("echo %s %s outcome = %s, want noop", ev.Table, ev.Type, out)
		}
	}
	if len(f.notes) != 0 {
		t.Errorf("echoes notified: %+v", f.notes)
	}
	if d, _ := f.mirror.Dish("d1"); len(d.Items) != 1 {
		t.Errorf("echo duplicated item: %+v", d.Items)
	}
}

func TestOrphansDropped(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		ev   models.ChangeEvent
	}{
		{"item insert unknown dish", itemEvent(models.EventInsert, models.ItemRow{ID: "i1", DishID: "nope", Name: "x"})},
		{"item update unknown dish", itemEvent(models.EventUpdate, models.ItemRow{ID: "i1", DishID: "nope", Name: "x"})},
		{"item delete unknown item", itemDelete("ghost")},
		{"dish delete unknown dish", models.ChangeEvent{Table: models.TableDishes, Type: models.EventDelete, OldDish: &models.DishRow{ID: "ghost"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out := f.apply(t, tt.ev); out != Orphan {
				t.Errorf("outcome = %s, want orphan", out)
			}
		})
	}
	if len(f.notes) != 0 {
		t.Errorf("orphans notified: %+v", f.notes)
	}
}

func TestInvalidEvents(t *testing.T) {
	f := newFixture(t)
	tests := []models.ChangeEvent{
		{Table: models.TableDishes, Type: models.EventInsert},
		{Table: models.TableItems, Type: models.EventUpdate, Item: &models.ItemRow{ID: "i1"}},
		{Table: models.TableItems, Type: models.EventDelete},
		{Table: "orders", Type: models.EventInsert},
		{Table: models.TableItems, Type: "TRUNCATE"},
	}
	for _, ev := range tests {
		out, err := f.r.Apply(ev)
		if out != Invalid || !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("Apply(%+v) = %s, %v", ev, out, err)
		}
	}
}

func TestItemDeleteRetiresKey(t *testing.T) {
	f := newFixture(t)
	f.apply(t, dishEvent(models.EventInsert, "d1", "Soup"))
	f.apply(t, itemEvent(models.EventInsert, models.ItemRow{ID: "i1", DishID: "d1", Name: "Stock"}))
	key := rowkey.MustEncode("d1", "i1")
	f.rows.Set(key, rowstate.AttrOnHand, true)
	f.sel.Set(selection.Build([]string{key}))

	f.apply(t, itemDelete("i1"))

	if len(f.rows.Keys()) != 0 || f.meta.Len() != 0 || len(f.sel.Keys()) != 0 {
		t.Errorf("state left behind: rows=%v meta=%v sel=%v", f.rows.Keys(), f.meta.Keys(), f.sel.Keys())
	}
	// A later item with a fresh id starts clean even with the same name.
	f.apply(t, itemEvent(models.EventInsert, models.ItemRow{ID: "i2", DishID: "d1", Name: "Stock"}))
	if f.rows.State(rowkey.MustEncode("d1", "i2")).OnHand {
		t.Error("new item inherited old state")
	}
}

func TestReloadRetiresStaleKeys(t *testing.T) {
	f := newFixture(t)
	live := rowkey.MustEncode("d1", "i1")
	gone := rowkey.MustEncode("d1", "i9")
	f.rows.Set(live, rowstate.AttrOnHand, true)
	f.rows.Set(gone, rowstate.AttrOnHand, true)
	f.sel.Set(selection.Build([]string{live, gone}))

	n := f.r.Reload(models.Dataset{
		Dishes: []models.DishRow{{ID: "d1", Name: "Soup"}},
		Items:  []models.ItemRow{{ID: "i1", DishID: "d1", Name: "Stock"}},
	})
	if n != 2 {
		t.Errorf("retired = %d, want 2", n)
	}
	if !f.rows.Get(live, rowstate.AttrOnHand) || !f.sel.Contains(live) {
		t.Error("live key was retired")
	}
	if _, ok := f.meta.Get(live); !ok {
		t.Error("meta not rebuilt")
	}
}

// Random interleavings of inserts, position updates, moves and deletes
// must always leave every dish ordered by position with unique item ids.
func TestPositionOrderUnderRandomEvents(t *testing.T) {
	dishes := []string{"d0", "d1", "d2"}
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		f := newFixture(t)
		for _, d := range dishes {
			f.apply(t, dishEvent(models.EventInsert, d, d))
		}
		live := map[string]models.ItemRow{}
		next := 0

		for step := 0; step < 300; step++ {
			var ev models.ChangeEvent
			switch op := rng.Intn(10); {
			case op < 4 || len(live) == 0:
				row := models.ItemRow{
					ID:       fmt.Sprintf("i%d", next),
					DishID:   dishes[rng.Intn(len(dishes))],
					Name:     fmt.Sprintf("item %d", next),
					Position: rng.Intn(8),
				}
				next++
				live[row.ID] = row
				ev = itemEvent(models.EventInsert, row)
			case op < 8:
				row := pick(rng, live)
				row.Position = rng.Intn(8)
				if rng.Intn(3) == 0 {
					row.DishID = dishes[rng.Intn(len(dishes))]
				}
				live[row.ID] = row
				ev = itemEvent(models.EventUpdate, row)
			case op < 9:
				row := pick(rng, live)
				delete(live, row.ID)
				ev = itemDelete(row.ID)
			default:
				// Replay of an event already applied.
				row := pick(rng, live)
				ev = itemEvent(models.EventUpdate, row)
			}
			f.apply(t, ev)
			checkOrder(t, seed, step, f.mirror)
		}

		if _, items := f.mirror.Len(); items != len(live) {
			t.Fatalf("seed %d: mirror holds %d items, want %d", seed, items, len(live))
		}
		for id, want := range live {
			got, ok := f.mirror.Item(id)
			if !ok || got.DishID != want.DishID || got.Position != want.Position {
				t.Fatalf("seed %d: item %s = %+v, want %+v", seed, id, got, want)
			}
		}
	}
}

func pick(rng *rand.Rand, live map[string]models.ItemRow) models.ItemRow {
	ids := make([]string, 0, len(live))
	for id := range live {
		ids = append(ids, id)
	}
	// Map order is random; sort for a reproducible pick per seed.
	sort.Strings(ids)
	return live[ids[rng.Intn(len(ids))]]
}

func checkOrder(t *testing.T, seed int64, step int, m *mirror.Store) {
	t.Helper()
	seen := map[string]bool{}
	for _, d := range m.Snapshot() {
		for i, it := range d.Items {
			if seen[it.ID] {
				t.Fatalf("seed %d step %d: duplicate item %s", seed, step, it.ID)
			}
			seen[it.ID] = true
			if i > 0 && d.Items[i-1].Position > it.Position {
				t.Fatalf("seed %d step %d: dish %s out of order at %d", seed, step, d.ID, i)
			}
		}
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 5; i++ {
		q.Push(models.ChangeEvent{Seq: int64(i)})
	}
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ev, err := q.Next(ctx)
		if err != nil || ev.Seq != int64(i) {
			t.Fatalf("Next = %d, %v; want %d", ev.Seq, err, i)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d", q.Len())
	}
}

func TestQueueNextWaitsForPush(t *testing.T) {
	q := NewQueue()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(models.ChangeEvent{Seq: 7})
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := q.Next(ctx)
	if err != nil || ev.Seq != 7 {
		t.Fatalf("Next = %+v, %v", ev, err)
	}
}

func TestQueueCloseAndCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next on cancelled ctx = %v", err)
	}

	q.Push(models.ChangeEvent{Seq: 1})
	q.Close()
	q.Push(models.ChangeEvent{Seq: 2})
	if ev, err := q.Next(context.Background()); err != nil || ev.Seq != 1 {
		t.Errorf("drain after close = %+v, %v", ev, err)
	}
	if _, err := q.Next(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Next after drain = %v, want ErrQueueClosed", err)
	}
}

func TestChanNotifierDropsWhenFull(t *testing.T) {
	n := NewChanNotifier(1, nil)
	n.Notify(Notification{Kind: DishAdded, Name: "Soup"})
	n.Notify(Notification{Kind: DishAdded, Name: "Stew"})
	got := <-n.C
	if got.Name != "Soup" {
		t.Errorf("got %+v", got)
	}
	select {
	case extra := <-n.C:
		t.Errorf("unexpected %+v", extra)
	default:
	}
}
