package selection

import (
	"testing"

	"github.com/marcus/prep/internal/rowkey"
)

func TestBuildAndClear(t *testing.T) {
	sel := Build([]string{"a|1", "a|2"})
	if !sel.Enabled || len(sel.Keys) != 2 || !sel.Contains("a|1") {
		t.Errorf("Build = %+v", sel)
	}
	cleared := Clear()
	if cleared.Enabled || len(cleared.Keys) != 0 {
		t.Errorf("Clear = %+v", cleared)
	}
	if cleared.Keys == nil {
		t.Error("Clear should return a non-nil key set")
	}
}

func TestManagerChurn(t *testing.T) {
	m := NewManager()
	soupA := rowkey.MustEncode("soup", "a")
	soupB := rowkey.MustEncode("soup", "b")
	salad := rowkey.MustEncode("salad", "c")
	m.Set(Build([]string{soupA, soupB, salad}))

	stewA := rowkey.MustEncode("stew", "a")
	m.Rekey(soupA, stewA)
	if m.Contains(soupA) || !m.Contains(stewA) {
		t.Error("rekey did not move membership")
	}

	if n := m.DeleteAllForDish("soup"); n != 1 {
		t.Errorf("DeleteAllForDish = %d, want 1", n)
	}
	if !m.Remove(salad) {
		t.Error("Remove should report removal")
	}
	if got := m.Keys(); len(got) != 1 || got[0] != stewA {
		t.Errorf("Keys = %v, want [%s]", got, stewA)
	}
	if !m.Enabled() {
		t.Error("churn must not disable the list")
	}
}

func TestCurrentIsCopy(t *testing.T) {
	m := NewManager()
	m.Set(Build([]string{"x|y"}))
	cur := m.Current()
	cur.Keys["z|w"] = true
	if m.Contains("z|w") {
		t.Error("Current leaked internal map")
	}
}
