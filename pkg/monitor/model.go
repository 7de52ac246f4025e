// Package monitor is the interactive checklist: a Bubble Tea program over
// a running engine that shows the projected view and edits row state.
package monitor

import (
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/prep/internal/engine"
	"github.com/marcus/prep/internal/reconcile"
	"github.com/marcus/prep/internal/version"
	"github.com/marcus/prep/internal/view"
	"github.com/marcus/prep/pkg/monitor/keymap"
)

// Model is the main Bubble Tea model for the checklist TUI
type Model struct {
	engine  *engine.Engine
	notes   <-chan reconcile.Notification
	keys    *keymap.Registry
	version string
	update  *version.UpdateAvailableMsg

	width  int
	height int

	dishes  []view.DishView
	lines   []line
	cursor  int
	offset  int
	compact bool

	helpOpen  bool
	noteKey   string
	noteInput textinput.Model
	recipe    *recipeState
	form      *formState

	toasts   []toast
	toastSeq int
}

// Option configures a Model.
type Option func(*Model)

// WithKeymap replaces the default key bindings.
func WithKeymap(r *keymap.Registry) Option {
	return func(m *Model) { m.keys = r }
}

// WithNotifications shows notifications read from ch as toasts.
func WithNotifications(ch <-chan reconcile.Notification) Option {
	return func(m *Model) { m.notes = ch }
}

// WithVersion shows v in the header.
func WithVersion(v string) Option {
	return func(m *Model) { m.version = v }
}

// NewModel builds the TUI over a started engine. The caller runs the
// engine's event loop.
func NewModel(e *engine.Engine, opts ...Option) Model {
	m := Model{engine: e, width: 80, height: 24}
	for _, opt := range opts {
		opt(&m)
	}
	if m.keys == nil {
		m.keys = keymap.NewRegistry()
		keymap.RegisterDefaults(m.keys)
	}
	ti := textinput.New()
	ti.Placeholder = "note"
	ti.CharLimit = 200
	m.noteInput = ti
	m.reload()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForChange(), m.waitForNotification(), saveTick()}
	if !version.IsDevelopmentVersion(m.version) {
		cmds = append(cmds, version.CheckAsync(m.version))
	}
	return tea.Batch(cmds...)
}

func (m Model) waitForChange() tea.Cmd {
	ch := m.engine.Changed()
	return func() tea.Msg {
		<-ch
		return ChangedMsg{}
	}
}

func (m Model) waitForNotification() tea.Cmd {
	if m.notes == nil {
		return nil
	}
	ch := m.notes
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return NotificationMsg(n)
	}
}

func saveTick() tea.Cmd {
	return tea.Tick(saveInterval, func(t time.Time) tea.Msg { return SaveTickMsg(t) })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if m.recipe != nil {
			m.resizeRecipe()
		}
		if m.form != nil {
			m.form.form.WithWidth(m.modalWidth())
		}
		m.clampScroll()
		return m, nil

	case ChangedMsg:
		m.reload()
		return m, m.waitForChange()

	case NotificationMsg:
		cmd := m.pushToast(reconcile.Notification(msg).String(), false)
		return m, tea.Batch(cmd, m.waitForNotification())

	case ToastExpiredMsg:
		kept := make([]toast, 0, len(m.toasts))
		for _, t := range m.toasts {
			if t.id != msg.ID {
				kept = append(kept, t)
			}
		}
		m.toasts = kept
		return m, nil

	case WriteDoneMsg:
		if msg.Err != nil {
			cmd := m.pushToast(msg.Err.Error(), true)
			return m, cmd
		}
		m.reload()
		if msg.Toast != "" {
			cmd := m.pushToast(msg.Toast, false)
			return m, cmd
		}
		return m, nil

	case version.UpdateAvailableMsg:
		m.update = &msg
		return m, nil

	case SaveTickMsg:
		if err := m.engine.Save(); err != nil {
			slog.Warn("monitor: save device state", "err", err)
		}
		return m, saveTick()
	}

	if m.form != nil {
		return m.updateForm(msg)
	}
	if key, ok := msg.(tea.KeyMsg); ok {
		return m.handleKey(key)
	}
	return m, nil
}

// reload re-projects the view and keeps the cursor on the same row when
// it is still visible.
func (m *Model) reload() {
	selected := m.selectedKey()
	m.dishes = m.engine.Project()
	m.compact = m.engine.Compact()
	m.lines = nil
	for di, d := range m.dishes {
		m.lines = append(m.lines, line{dish: di, row: -1})
		for ri := range d.Rows {
			m.lines = append(m.lines, line{dish: di, row: ri})
		}
	}
	if selected != "" {
		for i, l := range m.lines {
			if !l.isHeader() && m.dishes[l.dish].Rows[l.row].Key == selected {
				m.cursor = i
				break
			}
		}
	}
	if m.cursor >= len(m.lines) {
		m.cursor = len(m.lines) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.clampScroll()
}

// selectedRow returns the row under the cursor, or false on a dish header.
func (m Model) selectedRow() (view.Row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.lines) {
		return view.Row{}, false
	}
	l := m.lines[m.cursor]
	if l.isHeader() {
		return view.Row{}, false
	}
	return m.dishes[l.dish].Rows[l.row], true
}

// selectedDish returns the dish the cursor is in.
func (m Model) selectedDish() (view.DishView, bool) {
	if m.cursor < 0 || m.cursor >= len(m.lines) {
		return view.DishView{}, false
	}
	return m.dishes[m.lines[m.cursor].dish], true
}

func (m Model) selectedKey() string {
	r, ok := m.selectedRow()
	if !ok {
		return ""
	}
	return r.Key
}

// pushToast shows text in the footer for toastDuration.
func (m *Model) pushToast(text string, isErr bool) tea.Cmd {
	m.toastSeq++
	id := m.toastSeq
	m.toasts = append(m.toasts, toast{id: id, text: text, err: isErr})
	if len(m.toasts) > maxToasts {
		m.toasts = m.toasts[len(m.toasts)-maxToasts:]
	}
	return tea.Tick(toastDuration, func(time.Time) tea.Msg { return ToastExpiredMsg{ID: id} })
}

// bodyHeight is the number of checklist lines that fit between the header
// and the footer.
func (m Model) bodyHeight() int {
	h := m.height - 2 - len(m.toasts)
	if m.noteKey != "" {
		h--
	}
	if h < 1 {
		h = 1
	}
	return h
}

// clampScroll keeps the cursor inside the visible window.
func (m *Model) clampScroll() {
	h := m.bodyHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m Model) modalWidth() int {
	w := m.width * 3 / 4
	if w < 30 {
		w = min(30, m.width)
	}
	return w
}
