package reconcile

import (
	"fmt"
	"log/slog"

	"github.com/marcus/prep/internal/metrics"
)

// Kind identifies a user-facing change notification.
type Kind string

const (
	DishAdded     Kind = "dish_added"
	DishRenamed   Kind = "dish_renamed"
	DishRemoved   Kind = "dish_removed"
	ItemAdded     Kind = "item_added"
	ItemRenamed   Kind = "item_renamed"
	ItemMoved     Kind = "item_moved"
	ItemRemoved   Kind = "item_removed"
	RecipeChanged Kind = "recipe_changed"
)

// Notification tells the user that someone else changed shared data.
type Notification struct {
	Kind        Kind   `json:"kind"`
	DishID      string `json:"dish_id"`
	ItemID      string `json:"item_id,omitempty"`
	Name        string `json:"name"`
	OldName     string `json:"old_name,omitempty"`
	DishName    string `json:"dish_name,omitempty"`
	OldDishName string `json:"old_dish_name,omitempty"`
}

// String renders the notification as a one-line toast.
func (n Notification) String() string {
	switch n.Kind {
	case DishAdded:
		return fmt.Sprintf("Dish added: %s", n.Name)
	case DishRenamed:
		return fmt.Sprintf("Dish renamed: %s → %s", n.OldName, n.Name)
	case DishRemoved:
		return fmt.Sprintf("Dish removed: %s", n.Name)
	case ItemAdded:
		return fmt.Sprintf("Added %s to %s", n.Name, n.DishName)
	case ItemRenamed:
		return fmt.Sprintf("Renamed %s → %s in %s", n.OldName, n.Name, n.DishName)
	case ItemMoved:
		return fmt.Sprintf("Moved %s from %s to %s", n.Name, n.OldDishName, n.DishName)
	case ItemRemoved:
		return fmt.Sprintf("Removed %s from %s", n.Name, n.DishName)
	case RecipeChanged:
		return fmt.Sprintf("Recipe updated: %s", n.Name)
	}
	return string(n.Kind)
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = NotifierFunc(func(Notification) {})

// ChanNotifier delivers notifications on a buffered channel and drops
// them when the buffer is full.
type ChanNotifier struct {
	C       chan Notification
	metrics *metrics.Metrics
}

// NewChanNotifier returns a notifier with a buffer of size n.
func NewChanNotifier(n int, m *metrics.Metrics) *ChanNotifier {
	return &ChanNotifier{C: make(chan Notification, n), metrics: m}
}

// Notify implements Notifier.
func (c *ChanNotifier) Notify(n Notification) {
	select {
	case c.C <- n:
	default:
		c.metrics.RecordNotificationDropped()
		slog.Debug("notification dropped", "kind", n.Kind, "name", n.Name)
	}
}
