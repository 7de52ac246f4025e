package keymap

// DefaultBindings returns the default key bindings for the checklist TUI.
func DefaultBindings() []Binding {
	return []Binding{
		// Global
		{Key: "q", Command: CmdQuit, Context: ContextGlobal, Description: "Quit"},
		{Key: "ctrl+c", Command: CmdQuit, Context: ContextGlobal, Description: "Quit"},
		{Key: "?", Command: CmdToggleHelp, Context: ContextGlobal, Description: "Toggle help"},

		// Main: movement
		{Key: "j", Command: CmdCursorDown, Context: ContextMain, Description: "Move down"},
		{Key: "down", Command: CmdCursorDown, Context: ContextMain, Description: "Move down"},
		{Key: "k", Command: CmdCursorUp, Context: ContextMain, Description: "Move up"},
		{Key: "up", Command: CmdCursorUp, Context: ContextMain, Description: "Move up"},
		{Key: "g g", Command: CmdCursorTop, Context: ContextMain, Description: "Go to top"},
		{Key: "home", Command: CmdCursorTop, Context: ContextMain, Description: "Go to top"},
		{Key: "G", Command: CmdCursorBottom, Context: ContextMain, Description: "Go to bottom"},
		{Key: "end", Command: CmdCursorBottom, Context: ContextMain, Description: "Go to bottom"},
		{Key: "ctrl+d", Command: CmdHalfPageDown, Context: ContextMain, Description: "Half page down"},
		{Key: "ctrl+u", Command: CmdHalfPageUp, Context: ContextMain, Description: "Half page up"},
		{Key: "tab", Command: CmdNextDish, Context: ContextMain, Description: "Next dish"},
		{Key: "shift+tab", Command: CmdPrevDish, Context: ContextMain, Description: "Previous dish"},

		// Main: row state
		{Key: "o", Command: CmdToggleOnHand, Context: ContextMain, Description: "Toggle on hand"},
		{Key: "p", Command: CmdTogglePrep, Context: ContextMain, Description: "Toggle needs prep"},
		{Key: "space", Command: CmdCycle, Context: ContextMain, Description: "Cycle cell"},
		{Key: "s", Command: CmdStar, Context: ContextMain, Description: "Toggle star"},
		{Key: "n", Command: CmdEditNote, Context: ContextMain, Description: "Edit note"},
		{Key: "t", Command: CmdToggleDaily, Context: ContextMain, Description: "Add to / remove from today"},

		// Main: view
		{Key: "f", Command: CmdCycleFilter, Context: ContextMain, Description: "Cycle filter"},
		{Key: "d", Command: CmdToggleMode, Context: ContextMain, Description: "Toggle daily view"},
		{Key: "c", Command: CmdToggleCompact, Context: ContextMain, Description: "Toggle compact rows"},
		{Key: "r", Command: CmdRefresh, Context: ContextMain, Description: "Reload from backend"},

		// Main: recipes and edits
		{Key: "enter", Command: CmdOpenRecipe, Context: ContextMain, Description: "Open recipe"},
		{Key: "A", Command: CmdAddDish, Context: ContextMain, Description: "Add dish"},
		{Key: "a", Command: CmdAddItem, Context: ContextMain, Description: "Add item to dish"},
		{Key: "R", Command: CmdRename, Context: ContextMain, Description: "Rename item"},
		{Key: "x", Command: CmdDeleteItem, Context: ContextMain, Description: "Delete item"},

		// Recipe viewer
		{Key: "esc", Command: CmdClose, Context: ContextRecipe, Description: "Close recipe"},
		{Key: "enter", Command: CmdClose, Context: ContextRecipe, Description: "Close recipe"},
		{Key: "j", Command: CmdScrollDown, Context: ContextRecipe, Description: "Scroll down"},
		{Key: "down", Command: CmdScrollDown, Context: ContextRecipe, Description: "Scroll down"},
		{Key: "k", Command: CmdScrollUp, Context: ContextRecipe, Description: "Scroll up"},
		{Key: "up", Command: CmdScrollUp, Context: ContextRecipe, Description: "Scroll up"},
		{Key: "+", Command: CmdScaleUp, Context: ContextRecipe, Description: "Double quantities"},
		{Key: "-", Command: CmdScaleDown, Context: ContextRecipe, Description: "Halve quantities"},

		// Note editor
		{Key: "enter", Command: CmdNoteSave, Context: ContextNote, Description: "Save note"},
		{Key: "esc", Command: CmdNoteCancel, Context: ContextNote, Description: "Cancel"},

		// Forms
		{Key: "esc", Command: CmdFormCancel, Context: ContextForm, Description: "Cancel"},

		// Help
		{Key: "esc", Command: CmdToggleHelp, Context: ContextHelp, Description: "Close help"},
	}
}

// RegisterDefaults registers all default bindings with the registry.
func RegisterDefaults(r *Registry) {
	r.RegisterBindings(DefaultBindings())
}
