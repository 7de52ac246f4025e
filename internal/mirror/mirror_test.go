package mirror

import (
	"errors"
	"testing"

	"github.com/marcus/prep/internal/models"
)

func names(d models.Dish) []string {
	out := make([]string, len(d.Items))
	for i, it := range d.Items {
		out[i] = it.Name
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func loaded(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.Load(
		[]models.DishRow{{ID: "soup", Name: "Soup"}, {ID: "salad", Name: "Salad"}},
		[]models.ItemRow{
			{ID: "i3", DishID: "soup", Name: "Garnish", Position: 2},
			{ID: "i1", DishID: "soup", Name: "Stock", Position: 0},
			{ID: "i2", DishID: "soup", Name: "Onion", Position: 1},
			{ID: "i4", DishID: "salad", Name: "Lettuce", Position: 0},
			{ID: "i9", DishID: "ghost", Name: "Nobody", Position: 0},
		},
	)
	return s
}

func TestLoadOrdersByPositionAndDropsOrphans(t *testing.T) {
	s := loaded(t)
	soup, ok := s.Dish("soup")
	if !ok {
		t.Fatal("soup missing")
	}
	if got, want := names(soup), []string{"Stock", "Onion", "Garnish"}; !equal(got, want) {
		t.Errorf("soup items = %v, want %v", got, want)
	}
	if _, ok := s.Item("i9"); ok {
		t.Error("item of unknown dish should be dropped")
	}
	d, i := s.Len()
	if d != 2 || i != 4 {
		t.Errorf("Len = (%d, %d), want (2, 4)", d, i)
	}
}

func TestLoadReplacesPreviousContent(t *testing.T) {
	s := loaded(t)
	s.Load([]models.DishRow{{ID: "bread", Name: "Bread"}}, nil)
	if s.HasDish("soup") {
		t.Error("soup should be gone after reload")
	}
	if _, ok := s.Item("i1"); ok {
		t.Error("items should be gone after reload")
	}
}

func TestLoadSkipsRowsWithoutIds(t *testing.T) {
	s := New()
	s.Load(
		[]models.DishRow{{ID: "", Name: "Nameless"}, {ID: "soup", Name: "Soup"}},
		[]models.ItemRow{
			{ID: "", DishID: "soup", Name: "Blank", Position: 0},
			{ID: "i1", DishID: "soup", Name: "Stock", Position: 1},
			{ID: "i2", DishID: "", Name: "Stray", Position: 0},
		},
	)
	d, i := s.Len()
	if d != 1 || i != 1 {
		t.Fatalf("Len = (%d, %d), want (1, 1)", d, i)
	}
	for _, it := range s.Rows().Items {
		if it.ID == "" || it.DishID == "" {
			t.Errorf("row without id kept: %+v", it)
		}
	}
}

func TestUpsertDish(t *testing.T) {
	s := loaded(t)
	if s.UpsertDish("soup", "Soup") {
		t.Error("same name should be a no-op")
	}
	if !s.UpsertDish("soup", "Chowder") {
		t.Error("rename should report a change")
	}
	if !s.UpsertDish("pie", "Pie") {
		t.Error("insert should report a change")
	}
	snap := s.Snapshot()
	if snap[2].ID != "pie" {
		t.Errorf("new dish should be appended in discovery order, got %s", snap[2].ID)
	}
}

func TestUpsertItemRepositions(t *testing.T) {
	s := loaded(t)

	change, err := s.UpsertItem(models.ItemRow{ID: "i3", DishID: "soup", Name: "Garnish", Position: 0})
	if err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	if !change.Moved || change.Renamed {
		t.Errorf("change = %+v, want Moved only", change)
	}
	soup, _ := s.Dish("soup")
	// Garnish goes after Stock (also position 0); Onion keeps its place.
	if got, want := names(soup), []string{"Stock", "Garnish", "Onion"}; !equal(got, want) {
		t.Errorf("items = %v, want %v", got, want)
	}
}

func TestUpsertItemIsIdempotent(t *testing.T) {
	s := loaded(t)
	row := models.ItemRow{ID: "i2", DishID: "soup", Name: "Onion", Position: 1}
	change, err := s.UpsertItem(row)
	if err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	if change.Changed() {
		t.Errorf("re-applying identical row reported %+v", change)
	}
}

func TestUpsertItemReparent(t *testing.T) {
	s := loaded(t)
	change, err := s.UpsertItem(models.ItemRow{ID: "i2", DishID: "salad", Name: "Onion", Position: 5})
	if err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	if !change.Reparented || change.Previous.DishID != "soup" {
		t.Errorf("change = %+v, want reparent from soup", change)
	}
	soup, _ := s.Dish("soup")
	salad, _ := s.Dish("salad")
	if got := names(soup); !equal(got, []string{"Stock", "Garnish"}) {
		t.Errorf("soup = %v", got)
	}
	if got := names(salad); !equal(got, []string{"Lettuce", "Onion"}) {
		t.Errorf("salad = %v", got)
	}
}

func TestUpsertItemOrphan(t *testing.T) {
	s := loaded(t)
	_, err := s.UpsertItem(models.ItemRow{ID: "x", DishID: "ghost", Name: "X"})
	if !errors.Is(err, ErrOrphan) {
		t.Fatalf("err = %v, want ErrOrphan", err)
	}
}

func TestRemoveDishReturnsItems(t *testing.T) {
	s := loaded(t)
	removed, ok := s.RemoveDish("soup")
	if !ok {
		t.Fatal("RemoveDish reported missing")
	}
	if len(removed) != 3 {
		t.Errorf("removed = %v, want 3 ids", removed)
	}
	if _, ok := s.Item("i1"); ok {
		t.Error("items of removed dish should be gone")
	}
	if _, ok := s.RemoveDish("soup"); ok {
		t.Error("second remove should report missing")
	}
}

func TestRemoveItem(t *testing.T) {
	s := loaded(t)
	it, ok := s.RemoveItem("i2")
	if !ok || it.Name != "Onion" {
		t.Fatalf("RemoveItem = %+v, %v", it, ok)
	}
	if _, ok := s.RemoveItem("i2"); ok {
		t.Error("second remove should report missing")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := loaded(t)
	recipe := "simmer"
	s.SetRecipe("i1", &recipe)

	snap := s.Snapshot()
	snap[0].Items[0].Name = "Mutated"
	*snap[0].Items[0].Recipe = "mutated"

	soup, _ := s.Dish("soup")
	if soup.Items[0].Name != "Stock" || *soup.Items[0].Recipe != "simmer" {
		t.Error("snapshot mutation leaked into mirror")
	}
}
