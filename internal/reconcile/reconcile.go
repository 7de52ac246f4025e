// Package reconcile merges backend change events into the local stores.
//
// A Reconciler is a single-consumer state machine: events are applied one
// at a time, in arrival order, and each application leaves the mirror, row
// state, member meta and daily selection mutually consistent. Callers are
// responsible for serializing Apply against readers of those stores.
package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcus/prep/internal/meta"
	"github.com/marcus/prep/internal/metrics"
	"github.com/marcus/prep/internal/mirror"
	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/rowkey"
	"github.com/marcus/prep/internal/rowstate"
	"github.com/marcus/prep/internal/selection"
)

// ErrInvalidEvent is returned for events missing the payload their type requires.
var ErrInvalidEvent = errors.New("invalid change event")

// Outcome classifies what applying one event did.
type Outcome string

const (
	Applied Outcome = metrics.OutcomeApplied
	Noop    Outcome = metrics.OutcomeNoop
	Orphan  Outcome = metrics.OutcomeOrphan
	Invalid Outcome = metrics.OutcomeInvalid
)

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNotifier routes user-facing notifications to n.
func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notify = n }
}

// WithMetrics records outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// Reconciler applies change events to the stores it was built with.
type Reconciler struct {
	mirror  *mirror.Store
	rows    *rowstate.Store
	meta    *meta.Store
	sel     *selection.Manager
	notify  Notifier
	metrics *metrics.Metrics
}

// New builds a reconciler over the given stores.
func New(m *mirror.Store, rows *rowstate.Store, mt *meta.Store, sel *selection.Manager, opts ...Option) *Reconciler {
	r := &Reconciler{mirror: m, rows: rows, meta: mt, sel: sel, notify: Discard}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply merges one event into the stores.
func (r *Reconciler) Apply(ev models.ChangeEvent) (Outcome, error) {
	start := time.Now()
	var (
		out Outcome
		err error
	)
	switch ev.Table {
	case models.TableDishes:
		out, err = r.applyDish(ev)
	case models.TableItems:
		out, err = r.applyItem(ev)
	default:
		out, err = Invalid, fmt.Errorf("%w: unknown table %q", ErrInvalidEvent, ev.Table)
	}
	r.metrics.RecordEvent(string(ev.Table), string(ev.Type), string(out), time.Since(start))
	d, i := r.mirror.Len()
	r.metrics.SetMirrorSize(d, i)
	if out == Orphan {
		slog.Debug("reconcile: dropped orphan event", "table", ev.Table, "type", ev.Type, "seq", ev.Seq)
	}
	return out, err
}

func (r *Reconciler) applyDish(ev models.ChangeEvent) (Outcome, error) {
	switch ev.Type {
	case models.EventInsert, models.EventUpdate:
		if ev.Dish == nil || ev.Dish.ID == "" {
			return Invalid, fmt.Errorf("%w: dish %s without row", ErrInvalidEvent, ev.Type)
		}
		prev, existed := r.mirror.Dish(ev.Dish.ID)
		if !r.mirror.UpsertDish(ev.Dish.ID, ev.Dish.Name) {
			return Noop, nil
		}
		if existed {
			r.notify.Notify(Notification{Kind: DishRenamed, DishID: ev.Dish.ID, Name: ev.Dish.Name, OldName: prev.Name})
		} else {
			r.notify.Notify(Notification{Kind: DishAdded, DishID: ev.Dish.ID, Name: ev.Dish.Name})
		}
		return Applied, nil

	case models.EventDelete:
		id := dishID(ev)
		if id == "" {
			return Invalid, fmt.Errorf("%w: dish DELETE without id", ErrInvalidEvent)
		}
		prev, existed := r.mirror.Dish(id)
		r.mirror.RemoveDish(id)
		// Keys are scanned rather than derived from the mirror so state left
		// behind by an earlier session is retired too.
		n := r.rows.DeleteAllForDish(id) + r.sel.DeleteAllForDish(id) + r.meta.DeleteAllForDish(id)
		if !existed {
			if n > 0 {
				return Applied, nil
			}
			return Orphan, nil
		}
		r.notify.Notify(Notification{Kind: DishRemoved, DishID: id, Name: prev.Name})
		return Applied, nil
	}
	return Invalid, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Type)
}

func (r *Reconciler) applyItem(ev models.ChangeEvent) (Outcome, error) {
	switch ev.Type {
	case models.EventInsert, models.EventUpdate:
		if ev.Item == nil || ev.Item.ID == "" || ev.Item.DishID == "" {
			return Invalid, fmt.Errorf("%w: item %s without row", ErrInvalidEvent, ev.Type)
		}
		return r.upsertItem(*ev.Item)

	case models.EventDelete:
		id := itemID(ev)
		if id == "" {
			return Invalid, fmt.Errorf("%w: item DELETE without id", ErrInvalidEvent)
		}
		it, ok := r.mirror.RemoveItem(id)
		if !ok {
			return Orphan, nil
		}
		key := rowkey.MustEncode(it.DishID, it.ID)
		r.meta.Delete(key)
		r.rows.Delete(key)
		r.sel.Remove(key)
		r.notify.Notify(Notification{Kind: ItemRemoved, DishID: it.DishID, ItemID: it.ID, Name: it.Name, DishName: r.dishName(it.DishID)})
		return Applied, nil
	}
	return Invalid, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Type)
}

// upsertItem diffs the row against the mirror, never against the event's
// old image, since transports may send that partially.
func (r *Reconciler) upsertItem(row models.ItemRow) (Outcome, error) {
	change, err := r.mirror.UpsertItem(row)
	if errors.Is(err, mirror.ErrOrphan) {
		return Orphan, nil
	}
	if err != nil {
		return Invalid, err
	}

	newKey, err := rowkey.Encode(row.DishID, row.ID)
	if err != nil {
		return Invalid, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	entry := models.MemberMeta{RemoteID: row.ID, Recipe: row.Recipe}
	base := Notification{DishID: row.DishID, ItemID: row.ID, Name: row.Name, DishName: r.dishName(row.DishID)}

	if change.Inserted {
		r.meta.Put(newKey, entry)
		n := base
		n.Kind = ItemAdded
		r.notify.Notify(n)
		return Applied, nil
	}
	if !change.Changed() {
		if _, ok := r.meta.Get(newKey); !ok {
			r.meta.Put(newKey, entry)
		}
		return Noop, nil
	}

	prev := change.Previous
	if change.Reparented {
		oldKey := rowkey.MustEncode(prev.DishID, prev.ID)
		r.rows.Rekey(oldKey, newKey)
		r.sel.Rekey(oldKey, newKey)
		r.meta.Rekey(oldKey, newKey)
		n := base
		n.Kind = ItemMoved
		n.OldDishName = r.dishName(prev.DishID)
		r.notify.Notify(n)
	}
	if change.Renamed {
		n := base
		n.Kind = ItemRenamed
		n.OldName = prev.Name
		r.notify.Notify(n)
	}
	r.meta.Put(newKey, entry)
	if change.RecipeSet {
		n := base
		n.Kind = RecipeChanged
		r.notify.Notify(n)
	}
	return Applied, nil
}

// Reload replaces the mirror with a bulk fetch, rebuilds member meta from
// it and retires row state and selection keys whose item no longer exists.
// It returns the number of retired keys.
func (r *Reconciler) Reload(ds models.Dataset) int {
	r.mirror.Load(ds.Dishes, ds.Items)
	live := r.mirror.Rows()
	r.meta.Reset(live.Items)

	valid := make(map[string]bool, len(live.Items))
	for _, it := range live.Items {
		key, err := rowkey.Encode(it.DishID, it.ID)
		if err != nil {
			slog.Warn("reconcile: skipping unkeyable item on reload", "item", it.ID, "dish", it.DishID, "err", err)
			continue
		}
		valid[key] = true
	}
	retired := 0
	for _, key := range r.rows.Keys() {
		if !valid[key] {
			r.rows.Delete(key)
			retired++
		}
	}
	for _, key := range r.sel.Keys() {
		if !valid[key] {
			r.sel.Remove(key)
			retired++
		}
	}
	d, i := r.mirror.Len()
	r.metrics.SetMirrorSize(d, i)
	if retired > 0 {
		slog.Debug("reconcile: retired stale keys", "count", retired)
	}
	return retired
}

func (r *Reconciler) dishName(id string) string {
	d, ok := r.mirror.Dish(id)
	if !ok {
		return ""
	}
	return d.Name
}

func dishID(ev models.ChangeEvent) string {
	if ev.OldDish != nil && ev.OldDish.ID != "" {
		return ev.OldDish.ID
	}
	if ev.Dish != nil {
		return ev.Dish.ID
	}
	return ""
}

func itemID(ev models.ChangeEvent) string {
	if ev.OldItem != nil && ev.OldItem.ID != "" {
		return ev.OldItem.ID
	}
	if ev.Item != nil {
		return ev.Item.ID
	}
	return ""
}
