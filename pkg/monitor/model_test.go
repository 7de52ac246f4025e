package monitor

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/prep/internal/backend/memory"
	"github.com/marcus/prep/internal/engine"
	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/reconcile"
	"github.com/marcus/prep/internal/rowkey"
	"github.com/marcus/prep/internal/version"
)

type fixture struct {
	be     *memory.Backend
	e      *engine.Engine
	soup   models.DishRow
	salad  models.DishRow
	stock  models.ItemRow
	onion  models.ItemRow
	lettuc models.ItemRow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{be: memory.New()}
	var err error
	if f.soup, err = f.be.InsertDish(ctx, "Soup"); err != nil {
		t.Fatal(err)
	}
	if f.stock, err = f.be.InsertItem(ctx, f.soup.ID, "Stock", 0); err != nil {
		t.Fatal(err)
	}
	if f.onion, err = f.be.InsertItem(ctx, f.soup.ID, "Onion", 1); err != nil {
		t.Fatal(err)
	}
	if f.salad, err = f.be.InsertDish(ctx, "Salad"); err != nil {
		t.Fatal(err)
	}
	if f.lettuc, err = f.be.InsertItem(ctx, f.salad.ID, "Lettuce", 0); err != nil {
		t.Fatal(err)
	}
	f.e = engine.New(f.be)
	if err := f.e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.e.Sync()
	t.Cleanup(func() { f.e.Close() })
	return f
}

func (f *fixture) key(it models.ItemRow) string {
	return rowkey.MustEncode(it.DishID, it.ID)
}

func newTestModel(t *testing.T, f *fixture) Model {
	t.Helper()
	m := NewModel(f.e)
	return send(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
}

func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func keys(s ...string) []tea.Msg {
	var out []tea.Msg
	for _, k := range s {
		switch k {
		case "space":
			out = append(out, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
		case "enter":
			out = append(out, tea.KeyMsg{Type: tea.KeyEnter})
		case "esc":
			out = append(out, tea.KeyMsg{Type: tea.KeyEsc})
		case "tab":
			out = append(out, tea.KeyMsg{Type: tea.KeyTab})
		default:
			out = append(out, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
		}
	}
	return out
}

func rowNames(m Model) []string {
	var out []string
	for _, l := range m.lines {
		if !l.isHeader() {
			out = append(out, m.dishes[l.dish].Rows[l.row].Name)
		}
	}
	return out
}

func TestLinesFollowProjection(t *testing.T) {
	f := newFixture(t)
	m := newTestModel(t, f)

	if len(m.lines) != 5 {
		t.Fatalf("lines = %d, want 2 headers and 3 rows", len(m.lines))
	}
	if got := strings.Join(rowNames(m), ","); got != "Stock,Onion,Lettuce" {
		t.Errorf("rows = %s", got)
	}
	if _, ok := m.selectedRow(); ok {
		t.Error("cursor should start on the first dish header")
	}
}

func TestRowKeys(t *testing.T) {
	f := newFixture(t)
	m := newTestModel(t, f)
	key := f.key(f.stock)

	tests := []struct {
		name  string
		keys  []string
		check func(models.RowState) bool
	}{
		{"o sets on hand", []string{"j", "o"}, func(s models.RowState) bool { return s.OnHand }},
		{"p sets prep", []string{"j", "p"}, func(s models.RowState) bool { return s.Prep && !s.OnHand }},
		{"space cycles to on hand", []string{"j", "space"}, func(s models.RowState) bool { return s.OnHand }},
		{"s stars", []string{"j", "s"}, func(s models.RowState) bool { return s.Highlighted }},
		{"o twice clears", []string{"j", "o", "o"}, func(s models.RowState) bool { return !s.OnHand }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.e.SetCell(key, models.ToggleNone)
			if f.e.State(key).Highlighted {
				f.e.Star(key)
			}
			got := send(t, m, keys(tt.keys...)...)
			if st := f.e.State(key); !tt.check(st) {
				t.Errorf("state after %v = %+v", tt.keys, st)
			}
			if r, _ := got.selectedRow(); r.Key != key {
				t.Errorf("cursor on %q, want Stock", r.Name)
			}
		})
	}
}

func TestRowKeysIgnoreHeaders(t *testing.T) {
	f := newFixture(t)
	m := newTestModel(t, f)
	m = send(t, m, keys("o", "s")...)
	for _, it := range []models.ItemRow{f.stock, f.onion} {
		if st := f.e.State(f.key(it)); !st.IsZero() {
			t.Errorf("%s state = %+v, want untouched", it.Name, st)
		}
	}
}

func TestNoteEditing(t *testing.T) {
	f := newFixture(t)
	m := newTestModel(t, f)

	m = send(t, m, keys("j", "n")...)
	if m.currentContext() != "note" {
		t.Fatalf("context = %s, want note", m.currentContext())
	}
	// q is text while editing, not quit.
	m = send(t, m, keys("strain q", "enter")...)
	if got := f.e.State(f.key(f.stock)).Note; got != "strain q" {
		t.Errorf("note = %q, want %q", got, "strain q")
	}
	if m.noteKey != "" {
		t.Error("editor should close after save")
	}

	m = send(t, m, keys("n", "xx", "esc")...)
	if got := f.e.State(f.key(f.stock)).Note; got != "strain q" {
		t.Errorf("note after cancel = %q", got)
	}
}

func TestDailyModeNeedsAList(t *testing.T) {
	f := newFixture(t)
	m := newTestModel(t, f)

	m = send(t, m, keys("d")...)
	if f.e.View().Mode != models.ViewFull {
		t.Fatal("daily mode switched on without a daily list")
	}
	if len(m.toasts) != 1 || !m.toasts[0].err {
		t.Fatalf("toasts = %+v, want one error", m.toasts)
	}

	m = send(t, m, keys("j", "t", "d")...)
	if f.e.View().Mode != models.ViewDaily {
		t.Fatal("daily mode not on after picking a row")
	}
	if got := strings.Join(rowNames(m), ","); got != "Stock" {
		t.Errorf("daily rows = %s, want Stock", got)
	}

	// Removing the last row clears the list and leaves daily mode.
	m = send(t, m, keys("t")...)
	if f.e.Daily().Enabled || f.e.View().Mode != models.ViewFull {
		t.Errorf("daily = %+v, mode = %s", f.e.Daily(), f.e.View().Mode)
	}
	if len(rowNames(m)) != 3 {
		t.Errorf("rows = %v, want all three", rowNames(m))
	}
}

func TestCycleFilter(t *testing.T) {
	f := newFixture(t)
	m := newTestModel(t, f)

	m = send(t, m, keys("j", "s", "f")...)
	if v := f.e.View(); v.Filter != models.FilterHighlighted {
		t.Fatalf("filter = %s, want highlighted", v.Filter)
	}
	if got := strings.Join(rowNames(m), ","); got != "Stock" {
		t.Errorf("highlighted rows = %s", got)
	}

	m = send(t, m, keys("f")...)
	if v := f.e.View(); v.Filter != models.FilterDish || v.DishID != f.soup.ID {
		t.Fatalf("view = %+v, want dish filter on Soup", v)
	}

	m = send(t, m, keys("f")...)
	if v := f.e.View(); v.Filter != models.FilterAll {
		t.Fatalf("filter = %s, want all", v.Filter)
	}
	if len(rowNames(m)) != 3 {
		t.Errorf("rows = %v", rowNames(m))
	}
}

func TestCursorFollowsRowAcrossRemoteChanges(t *testing.T) {
	f := newFixture(t)
	m := newTestModel(t, f)
	m = send(t, m, keys("j", "j")...)

	ctx := context.Background()
	if _, err := f.be.UpdateItem(ctx, f.onion.ID, "Shallot", nil); err != nil {
		t.Fatal(err)
	}
	pos := 0
	if _, err := f.be.UpdateItem(ctx, f.onion.ID, "Shallot", &pos); err != nil {
		t.Fatal(err)
	}
	f.e.Sync()
	m = send(t, m, ChangedMsg{})

	r, ok := m.selectedRow()
	if !ok || r.Name != "Shallot" {
		t.Fatalf("selected = %+v, want Shallot", r)
	}
}

func TestNotificationToast(t *testing.T) {
	f := newFixture(t)
	m := newTestModel(t, f)

	m = send(t, m, NotificationMsg{Kind: reconcile.ItemAdded, Name: "Leek", DishName: "Soup"})
	if len(m.toasts) != 1 || m.toasts[0].text != "Added Leek to Soup" {
		t.Fatalf("toasts = %+v", m.toasts)
	}
	if !strings.Contains(ansi.Strip(m.View()), "Added Leek to Soup") {
		t.Error("toast not rendered")
	}

	m = send(t, m, ToastExpiredMsg{ID: m.toasts[0].id})
	if len(m.toasts) != 0 {
		t.Errorf("toast not expired: %+v", m.toasts)
	}
}

func TestToastsAreCapped(t *testing.T) {
	f := newFixture(t)
	m := newTestModel(t, f)
	for i := 0; i < maxToasts+2; i++ {
		m = send(t, m, NotificationMsg{Kind: reconcile.DishAdded, Name: "D"})
	}
	if len(m.toasts) != maxToasts {
		t.Errorf("toasts = %d, want %d", len(m.toasts), maxToasts)
	}
}

func TestAddItemForm(t *testing.T) {
	f := newFixture(t)
	m := newTestModel(t, f)

	m = send(t, m, keys("a")...)
	if m.form == nil || m.form.kind != formAddItem || m.form.dishID != f.soup.ID {
		t.Fatalf("form = %+v, want add item to Soup", m.form)
	}
	m = send(t, m, keys("esc")...)
	if m.form != nil {
		t.Fatal("esc should close the form")
	}

	msg := submitForm(f.e, &formState{kind: formAddItem, dishID: f.soup.ID, label: "Soup", name: "Leek"})()
	done, ok := msg.(WriteDoneMsg)
	if !ok || done.Err != nil {
		t.Fatalf("submit = %#v", msg)
	}
	m = send(t, m, done)
	if got := strings.Join(rowNames(m), ","); got != "Stock,Onion,Leek,Lettuce" {
		t.Errorf("rows = %s", got)
	}
	if len(m.toasts) != 1 || m.toasts[0].text != "Added Leek to Soup" {
		t.Errorf("toasts = %+v", m.toasts)
	}
}

func TestDeclinedDeleteDoesNothing(t *testing.T) {
	f := newFixture(t)
	if msg := submitForm(f.e, &formState{kind: formDelete, itemID: f.stock.ID, label: "Stock"})(); msg != nil {
		t.Fatalf("declined delete returned %#v", msg)
	}
	if _, err := f.e.FindItem("", f.stock.ID); err != nil {
		t.Errorf("Stock gone after declined delete: %v", err)
	}
}

func TestWriteErrorBecomesToast(t *testing.T) {
	f := newFixture(t)
	m := newTestModel(t, f)
	msg := submitForm(f.e, &formState{kind: formAddItem, dishID: "missing", name: "Leek"})()
	m = send(t, m, msg)
	if len(m.toasts) != 1 || !m.toasts[0].err {
		t.Fatalf("toasts = %+v, want one error", m.toasts)
	}
}

func TestRecipeViewer(t *testing.T) {
	f := newFixture(t)
	if _, err := f.e.SetRecipe(context.Background(), f.stock.ID, "Simmer 2 cups water."); err != nil {
		t.Fatal(err)
	}
	m := newTestModel(t, f)

	m = send(t, m, keys("j", "enter")...)
	if m.recipe == nil {
		t.Fatal("recipe viewer not open")
	}
	if m.currentContext() != "recipe" {
		t.Errorf("context = %s", m.currentContext())
	}
	m = send(t, m, keys("+")...)
	if m.recipe.scale != 2 {
		t.Errorf("scale = %g, want 2", m.recipe.scale)
	}
	if !strings.Contains(ansi.Strip(m.View()), "4 cups") {
		t.Error("scaled quantity not rendered")
	}
	m = send(t, m, keys("esc")...)
	if m.recipe != nil {
		t.Fatal("esc should close the recipe")
	}

	m = send(t, m, keys("j", "enter")...)
	if m.recipe != nil {
		t.Fatal("opened a recipe for Onion, which has none")
	}
	if len(m.toasts) != 1 || m.toasts[0].text != "No recipe for Onion" {
		t.Errorf("toasts = %+v", m.toasts)
	}
}

func TestNavigation(t *testing.T) {
	f := newFixture(t)
	m := newTestModel(t, f)

	m = send(t, m, keys("tab")...)
	if m.cursor != 3 {
		t.Errorf("tab: cursor = %d, want Salad header at 3", m.cursor)
	}
	m = send(t, m, keys("G")...)
	if r, _ := m.selectedRow(); r.Name != "Lettuce" {
		t.Errorf("G: selected %q", r.Name)
	}
	m = send(t, m, keys("g", "g")...)
	if m.cursor != 0 {
		t.Errorf("g g: cursor = %d", m.cursor)
	}
	m = send(t, m, keys("k")...)
	if m.cursor != 0 {
		t.Errorf("k at top: cursor = %d", m.cursor)
	}
}

func TestHelpOverlay(t *testing.T) {
	f := newFixture(t)
	m := newTestModel(t, f)

	m = send(t, m, keys("?")...)
	if !m.helpOpen || !strings.Contains(m.View(), "CHECKLIST") {
		t.Fatal("help not shown")
	}
	// Row keys do nothing while help is open.
	m = send(t, m, keys("j", "o")...)
	if st := f.e.State(f.key(f.stock)); st.OnHand {
		t.Error("o changed state behind the help overlay")
	}
	m = send(t, m, keys("esc")...)
	if m.helpOpen {
		t.Error("esc should close help")
	}
}

func TestViewFitsWindow(t *testing.T) {
	f := newFixture(t)
	m := newTestModel(t, f)
	m = send(t, m, tea.WindowSizeMsg{Width: 20, Height: 6})

	out := m.View()
	lines := strings.Split(out, "\n")
	if len(lines) != 6 {
		t.Errorf("rendered %d lines, want 6", len(lines))
	}
	for _, l := range lines {
		if w := ansi.StringWidth(l); w > 20 {
			t.Errorf("line %q is %d wide", ansi.Strip(l), w)
		}
	}
}

func TestUpdateNoticeReplacesVersion(t *testing.T) {
	f := newFixture(t)
	m := NewModel(f.e, WithVersion("v1.0.0"))
	m = send(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	if !strings.Contains(m.renderHeader(), "v1.0.0") {
		t.Fatal("version missing from header")
	}
	m = send(t, m, version.UpdateAvailableMsg{CurrentVersion: "v1.0.0", LatestVersion: "v1.2.0"})
	if h := m.renderHeader(); !strings.Contains(h, "update v1.2.0") {
		t.Errorf("header %q lacks update notice", ansi.Strip(h))
	}
}
