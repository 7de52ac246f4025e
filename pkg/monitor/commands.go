package monitor

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/prep/pkg/monitor/keymap"
)

// currentContext returns the keymap context based on current UI state
func (m Model) currentContext() keymap.Context {
	switch {
	case m.helpOpen:
		return keymap.ContextHelp
	case m.form != nil:
		return keymap.ContextForm
	case m.noteKey != "":
		return keymap.ContextNote
	case m.recipe != nil:
		return keymap.ContextRecipe
	}
	return keymap.ContextMain
}

// handleKey processes key input using the keymap registry
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := m.currentContext()

	// The note editor takes every key its bindings do not claim.
	if ctx == keymap.ContextNote {
		if cmd, found := m.keys.Lookup(msg, ctx); found && cmd != keymap.CmdQuit && cmd != keymap.CmdToggleHelp {
			return m.executeCommand(cmd)
		}
		if msg.Type == tea.KeyCtrlC {
			return m.executeCommand(keymap.CmdNoteCancel)
		}
		var cmd tea.Cmd
		m.noteInput, cmd = m.noteInput.Update(msg)
		return m, cmd
	}

	cmd, found := m.keys.Lookup(msg, ctx)
	if !found {
		return m, nil
	}
	return m.executeCommand(cmd)
}

// executeCommand runs a keymap command against the model.
func (m Model) executeCommand(cmd keymap.Command) (tea.Model, tea.Cmd) {
	var out tea.Cmd
	switch cmd {
	case keymap.CmdQuit:
		return m, tea.Quit

	case keymap.CmdToggleHelp:
		m.helpOpen = !m.helpOpen
		return m, nil

	case keymap.CmdRefresh:
		out = m.refresh()

	// Navigation
	case keymap.CmdCursorDown:
		m.moveCursor(1)
	case keymap.CmdCursorUp:
		m.moveCursor(-1)
	case keymap.CmdCursorTop:
		m.cursor = 0
		m.clampScroll()
	case keymap.CmdCursorBottom:
		m.cursor = len(m.lines) - 1
		m.clampScroll()
	case keymap.CmdHalfPageDown:
		m.moveCursor(m.bodyHeight() / 2)
	case keymap.CmdHalfPageUp:
		m.moveCursor(-m.bodyHeight() / 2)
	case keymap.CmdNextDish:
		m.jumpDish(1)
	case keymap.CmdPrevDish:
		m.jumpDish(-1)

	// Row state
	case keymap.CmdToggleOnHand:
		out = m.toggleOnHand()
	case keymap.CmdTogglePrep:
		out = m.togglePrep()
	case keymap.CmdCycle:
		out = m.cycle()
	case keymap.CmdStar:
		out = m.star()
	case keymap.CmdEditNote:
		return m.openNote()
	case keymap.CmdNoteSave:
		out = m.saveNote()
	case keymap.CmdNoteCancel:
		m.closeNote()
	case keymap.CmdToggleDaily:
		out = m.toggleDaily()

	// View
	case keymap.CmdCycleFilter:
		out = m.cycleFilter()
	case keymap.CmdToggleMode:
		out = m.toggleMode()
	case keymap.CmdToggleCompact:
		m.engine.SetCompact(!m.engine.Compact())
		m.reload()

	// Recipes
	case keymap.CmdOpenRecipe:
		out = m.openRecipe()
	case keymap.CmdClose:
		m.recipe = nil
	case keymap.CmdScrollDown:
		if m.recipe != nil {
			m.recipe.vp.ScrollDown(1)
		}
	case keymap.CmdScrollUp:
		if m.recipe != nil {
			m.recipe.vp.ScrollUp(1)
		}
	case keymap.CmdScaleUp:
		m.scaleRecipe(2)
	case keymap.CmdScaleDown:
		m.scaleRecipe(0.5)

	// Shared checklist edits
	case keymap.CmdAddDish:
		return m.openForm(formAddDish)
	case keymap.CmdAddItem:
		return m.openForm(formAddItem)
	case keymap.CmdRename:
		return m.openForm(formRename)
	case keymap.CmdDeleteItem:
		return m.openForm(formDelete)
	case keymap.CmdFormCancel:
		m.form = nil
	}
	return m, out
}

func (m *Model) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor >= len(m.lines) {
		m.cursor = len(m.lines) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.clampScroll()
}

// jumpDish moves the cursor to the next or previous dish header.
func (m *Model) jumpDish(dir int) {
	if len(m.lines) == 0 {
		return
	}
	cur := m.lines[m.cursor].dish
	for i := m.cursor + dir; i >= 0 && i < len(m.lines); i += dir {
		if m.lines[i].isHeader() && m.lines[i].dish != cur {
			m.cursor = i
			m.clampScroll()
			return
		}
	}
}
