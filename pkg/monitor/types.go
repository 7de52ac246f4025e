package monitor

import (
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/huh"

	"github.com/marcus/prep/internal/recipe"
	"github.com/marcus/prep/internal/reconcile"
)

const (
	toastDuration = 4 * time.Second
	maxToasts     = 3
	saveInterval  = 30 * time.Second
	writeTimeout  = 10 * time.Second
)

// ChangedMsg is sent when the engine reports that the projection may have
// changed.
type ChangedMsg struct{}

// NotificationMsg carries a change made elsewhere.
type NotificationMsg reconcile.Notification

// ToastExpiredMsg removes the toast with the given id.
type ToastExpiredMsg struct{ ID int }

// WriteDoneMsg reports the outcome of a backend write.
type WriteDoneMsg struct {
	Toast string
	Err   error
}

// SaveTickMsg triggers a periodic save of device state.
type SaveTickMsg time.Time

// line is one rendered checklist line: a dish header (row < 0) or an item row.
type line struct {
	dish int
	row  int
}

func (l line) isHeader() bool { return l.row < 0 }

type toast struct {
	id   int
	text string
	err  bool
}

// recipeState is the open recipe viewer.
type recipeState struct {
	itemID string
	name   string
	text   string
	source recipe.Source
	scale  float64
	vp     viewport.Model
}

// formKind says what an open form will do when submitted.
type formKind int

const (
	formAddDish formKind = iota
	formAddItem
	formRename
	formDelete
)

// formState is an open huh form and the values it edits.
type formState struct {
	kind    formKind
	form    *huh.Form
	name    string
	confirm bool
	dishID  string
	itemID  string
	label   string
}
