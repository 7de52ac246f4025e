package rowstate

import (
	"testing"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/rowkey"
)

func TestSetIsTotal(t *testing.T) {
	s := New()
	key := rowkey.MustEncode("d", "i")
	if s.Get(key, AttrOnHand) {
		t.Fatal("fresh key should be false")
	}
	s.Set(key, AttrOnHand, true)
	s.SetNote(key, "two quarts")
	got := s.State(key)
	want := models.RowState{OnHand: true, Note: "two quarts"}
	if got != want {
		t.Errorf("State = %+v, want %+v", got, want)
	}
}

func TestCycle(t *testing.T) {
	s := New()
	key := rowkey.MustEncode("d", "i")
	want := []models.Toggle{models.ToggleOnHand, models.TogglePrep, models.ToggleNone, models.ToggleOnHand}
	for i, w := range want {
		if got := s.Cycle(key); got != w {
			t.Fatalf("step %d: Cycle = %q, want %q", i, got, w)
		}
	}
	st := s.State(key)
	if !st.OnHand || st.Prep {
		t.Errorf("flags after cycle = %+v", st)
	}
}

func TestToggleHighlight(t *testing.T) {
	s := New()
	key := rowkey.MustEncode("d", "i")
	if !s.Toggle(key, AttrHighlight) {
		t.Error("first toggle should set")
	}
	if s.Toggle(key, AttrHighlight) {
		t.Error("second toggle should clear")
	}
	if len(s.Keys()) != 0 {
		t.Errorf("cleared flags should not be stored, keys = %v", s.Keys())
	}
}

func TestRekey(t *testing.T) {
	s := New()
	oldKey := rowkey.MustEncode("soup", "i1")
	newKey := rowkey.MustEncode("stew", "i1")
	s.Set(oldKey, AttrOnHand, true)
	s.Set(oldKey, AttrHighlight, true)
	s.SetNote(oldKey, "keep warm")

	before := s.State(oldKey)
	s.Rekey(oldKey, newKey)

	if got := s.State(newKey); got != before {
		t.Errorf("state under new key = %+v, want %+v", got, before)
	}
	if got := s.State(oldKey); !got.IsZero() {
		t.Errorf("old key should be cleared, got %+v", got)
	}
}

func TestDeleteAllForDish(t *testing.T) {
	s := New()
	s.Set(rowkey.MustEncode("soup", "a"), AttrOnHand, true)
	s.SetNote(rowkey.MustEncode("soup", "b"), "x")
	s.Set(rowkey.MustEncode("soupy", "c"), AttrPrep, true)
	s.Set("legacy-garbage", AttrOnHand, true)

	if n := s.DeleteAllForDish("soup"); n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	for _, k := range s.Keys() {
		if rowkey.BelongsTo(k, "soup") {
			t.Errorf("key %q still references soup", k)
		}
	}
	if len(s.Keys()) != 2 {
		t.Errorf("remaining keys = %v, want soupy and the unparseable one", s.Keys())
	}
}

func TestExportImport(t *testing.T) {
	s := New()
	key := rowkey.MustEncode("d", "i")
	s.Set(key, AttrPrep, true)
	s.SetNote(key, "n")

	other := New()
	other.Import(s.Export())
	if other.State(key) != s.State(key) {
		t.Errorf("imported %+v, want %+v", other.State(key), s.State(key))
	}
}
