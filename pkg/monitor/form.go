package monitor

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/marcus/prep/internal/engine"
	"github.com/marcus/prep/pkg/monitor/keymap"
)

// openForm builds the form for kind around the cursor's dish or row.
func (m Model) openForm(kind formKind) (tea.Model, tea.Cmd) {
	fs := &formState{kind: kind}
	switch kind {
	case formAddDish:
		fs.form = huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("New dish").Value(&fs.name).Validate(huh.ValidateNotEmpty()),
		))
	case formAddItem:
		d, ok := m.selectedDish()
		if !ok {
			cmd := m.pushToast("Move to a dish first", true)
			return m, cmd
		}
		fs.dishID, fs.label = d.ID, d.Name
		fs.form = huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Add item to "+d.Name).Value(&fs.name).Validate(huh.ValidateNotEmpty()),
		))
	case formRename:
		r, ok := m.selectedRow()
		if !ok {
			return m, nil
		}
		fs.itemID, fs.label, fs.name = r.ItemID, r.Name, r.Name
		fs.form = huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Rename "+r.Name).Value(&fs.name).Validate(huh.ValidateNotEmpty()),
		))
	case formDelete:
		r, ok := m.selectedRow()
		if !ok {
			return m, nil
		}
		fs.itemID, fs.label = r.ItemID, r.Name
		fs.form = huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete %s for everyone?", r.Name)).
				Affirmative("Delete").
				Negative("Keep").
				Value(&fs.confirm),
		))
	}
	fs.form.WithShowHelp(false).WithWidth(m.modalWidth())
	m.form = fs
	return m, fs.form.Init()
}

// updateForm forwards msg to the open form and submits it on completion.
func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		if cmd, found := m.keys.Lookup(key, m.currentContext()); found && cmd == keymap.CmdFormCancel {
			return m.executeCommand(cmd)
		}
	}

	model, cmd := m.form.form.Update(msg)
	if f, ok := model.(*huh.Form); ok {
		m.form.form = f
	}
	switch m.form.form.State {
	case huh.StateCompleted:
		fs := m.form
		m.form = nil
		return m, submitForm(m.engine, fs)
	case huh.StateAborted:
		m.form = nil
		return m, nil
	}
	return m, cmd
}

// submitForm performs the backend write a completed form describes.
func submitForm(e *engine.Engine, fs *formState) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		switch fs.kind {
		case formAddDish:
			row, err := e.AddDish(ctx, fs.name)
			if err != nil {
				return WriteDoneMsg{Err: err}
			}
			return WriteDoneMsg{Toast: "Added dish " + row.Name}
		case formAddItem:
			row, err := e.AddItem(ctx, fs.dishID, fs.name)
			if err != nil {
				return WriteDoneMsg{Err: err}
			}
			return WriteDoneMsg{Toast: fmt.Sprintf("Added %s to %s", row.Name, fs.label)}
		case formRename:
			if fs.name == fs.label {
				return nil
			}
			row, err := e.RenameItem(ctx, fs.itemID, fs.name)
			if err != nil {
				return WriteDoneMsg{Err: err}
			}
			return WriteDoneMsg{Toast: fmt.Sprintf("Renamed %s to %s", fs.label, row.Name)}
		case formDelete:
			if !fs.confirm {
				return nil
			}
			if err := e.DeleteItem(ctx, fs.itemID); err != nil {
				return WriteDoneMsg{Err: err}
			}
			return WriteDoneMsg{Toast: "Deleted " + fs.label}
		}
		return nil
	}
}
