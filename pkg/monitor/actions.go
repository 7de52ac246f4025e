package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/prep/internal/engine"
	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/output"
	"github.com/marcus/prep/internal/recipe"
	"github.com/marcus/prep/internal/rowstate"
)

// rowOp runs fn on the selected row and reports failures as a toast.
func (m *Model) rowOp(fn func(key string) error) tea.Cmd {
	r, ok := m.selectedRow()
	if !ok {
		return nil
	}
	if err := fn(r.Key); err != nil {
		return m.pushToast(err.Error(), true)
	}
	m.reload()
	return nil
}

func (m *Model) toggleOnHand() tea.Cmd {
	return m.rowOp(func(key string) error {
		_, err := m.engine.Toggle(key, rowstate.AttrOnHand)
		return err
	})
}

func (m *Model) togglePrep() tea.Cmd {
	return m.rowOp(func(key string) error {
		_, err := m.engine.Toggle(key, rowstate.AttrPrep)
		return err
	})
}

func (m *Model) cycle() tea.Cmd {
	return m.rowOp(func(key string) error {
		_, err := m.engine.Cycle(key)
		return err
	})
}

func (m *Model) star() tea.Cmd {
	return m.rowOp(func(key string) error {
		_, err := m.engine.Star(key)
		return err
	})
}

// toggleDaily adds the selected row to the daily list or removes it.
// Removing the last row clears the list.
func (m *Model) toggleDaily() tea.Cmd {
	return m.rowOp(func(key string) error {
		sel := m.engine.Daily()
		keys := make([]string, 0, len(sel.Keys)+1)
		for k := range sel.Keys {
			if k != key {
				keys = append(keys, k)
			}
		}
		if !sel.Contains(key) {
			keys = append(keys, key)
		}
		if len(keys) == 0 {
			m.engine.ClearDaily()
			return nil
		}
		return m.engine.PickDaily(keys)
	})
}

func (m Model) openNote() (tea.Model, tea.Cmd) {
	r, ok := m.selectedRow()
	if !ok {
		return m, nil
	}
	m.noteKey = r.Key
	m.noteInput.SetValue(r.State.Note)
	m.noteInput.CursorEnd()
	m.clampScroll()
	cmd := m.noteInput.Focus()
	return m, cmd
}

func (m *Model) saveNote() tea.Cmd {
	key := m.noteKey
	text := m.noteInput.Value()
	m.closeNote()
	if err := m.engine.SetNote(key, text); err != nil {
		return m.pushToast(err.Error(), true)
	}
	m.reload()
	return nil
}

func (m *Model) closeNote() {
	m.noteKey = ""
	m.noteInput.Blur()
	m.noteInput.Reset()
	m.clampScroll()
}

// cycleFilter steps all → highlighted → the cursor's dish → all.
func (m *Model) cycleFilter() tea.Cmd {
	v := m.engine.View()
	switch v.Filter {
	case models.FilterAll:
		v.Filter = models.FilterHighlighted
	case models.FilterHighlighted:
		d, ok := m.selectedDish()
		if !ok {
			v.Filter = models.FilterAll
			break
		}
		v.Filter = models.FilterDish
		v.DishID = d.ID
	default:
		v.Filter = models.FilterAll
		v.DishID = ""
	}
	return m.setView(v)
}

func (m *Model) toggleMode() tea.Cmd {
	v := m.engine.View()
	if v.Mode == models.ViewDaily {
		v.Mode = models.ViewFull
	} else {
		v.Mode = models.ViewDaily
	}
	return m.setView(v)
}

func (m *Model) setView(v models.ViewState) tea.Cmd {
	err := m.engine.SetView(v)
	if errors.Is(err, engine.ErrNoSelection) {
		return m.pushToast("No daily list yet: press t on rows to pick them", true)
	}
	if err != nil {
		return m.pushToast(err.Error(), true)
	}
	m.reload()
	return nil
}

// refresh reloads the whole dataset from the backend.
func (m Model) refresh() tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := e.Refresh(ctx); err != nil {
			return WriteDoneMsg{Err: err}
		}
		return WriteDoneMsg{Toast: "Reloaded from backend"}
	}
}

func (m *Model) openRecipe() tea.Cmd {
	r, ok := m.selectedRow()
	if !ok {
		return nil
	}
	text, src, err := m.engine.Recipe(r.ItemID)
	if err != nil {
		return m.pushToast(err.Error(), true)
	}
	if src == recipe.SourceNone {
		return m.pushToast(fmt.Sprintf("No recipe for %s", r.Name), false)
	}
	m.recipe = &recipeState{itemID: r.ItemID, name: r.Name, text: text, source: src, scale: 1}
	m.resizeRecipe()
	return nil
}

func (m *Model) scaleRecipe(factor float64) {
	if m.recipe == nil {
		return
	}
	next := m.recipe.scale * factor
	if next < 0.125 || next > 16 {
		return
	}
	m.recipe.scale = next
	m.renderRecipe()
}

// resizeRecipe fits the recipe viewport to the window and re-renders.
func (m *Model) resizeRecipe() {
	w := m.modalWidth() - 4
	h := m.height - 6
	if h < 3 {
		h = 3
	}
	m.recipe.vp = viewport.New(w, h)
	m.renderRecipe()
}

func (m *Model) renderRecipe() {
	rs := m.recipe
	rendered, err := output.RenderRecipe(rs.name, rs.text, rs.scale, rs.vp.Width)
	if err != nil {
		rendered = output.RecipeMarkdown(rs.name, rs.text, rs.scale)
	}
	rs.vp.SetContent(rendered)
}
