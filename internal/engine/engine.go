// Package engine ties the stores together: it owns the mirror, row state,
// member meta, daily selection and recipe book, feeds backend change
// events through the reconciler, performs remote writes, and persists the
// device-local state.
//
// All store access happens under one mutex. A reconcile step, a local edit
// and a projection never interleave; remote calls run outside the lock and
// their confirmed rows are applied through the reconciler afterwards, unless
// a pushed change to the same row got there first.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/prep/internal/backend"
	"github.com/marcus/prep/internal/localstate"
	"github.com/marcus/prep/internal/meta"
	"github.com/marcus/prep/internal/metrics"
	"github.com/marcus/prep/internal/mirror"
	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/recipe"
	"github.com/marcus/prep/internal/reconcile"
	"github.com/marcus/prep/internal/rowstate"
	"github.com/marcus/prep/internal/selection"
	"github.com/marcus/prep/internal/view"
)

var (
	// ErrNoSelection is returned when daily mode is requested before a
	// daily list has been picked.
	ErrNoSelection = errors.New("no daily list picked")
	// ErrNotFound is returned when a dish, item or key is not in the mirror.
	ErrNotFound = errors.New("not found")
	// ErrEmptyName is returned for blank dish and item names.
	ErrEmptyName = errors.New("name is required")
)

// Option configures an Engine.
type Option func(*Engine)

// WithLocalState persists device state to ls. Without it the engine keeps
// everything in memory.
func WithLocalState(ls *localstate.Store) Option {
	return func(e *Engine) { e.local = ls }
}

// WithNotifier receives notifications about changes made by other writers.
func WithNotifier(n reconcile.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithMetrics records reconcile and remote call metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine is the client-side checklist state.
type Engine struct {
	be       backend.Backend
	local    *localstate.Store
	notifier reconcile.Notifier
	metrics  *metrics.Metrics

	mu      sync.Mutex
	mirror  *mirror.Store
	rows    *rowstate.Store
	meta    *meta.Store
	sel     *selection.Manager
	book    *recipe.Book
	rec     *reconcile.Reconciler
	view    models.ViewState
	where   *view.Predicate
	compact bool
	quiet   bool
	dirty   bool

	// touched counts queued events per row id while remote writes are in
	// flight; nil when none are.
	inflight int
	touched  map[string]int

	queue       *reconcile.Queue
	changed     chan struct{}
	unsubscribe func()
}

// New builds an engine over be. Call Start before using it.
func New(be backend.Backend, opts ...Option) *Engine {
	e := &Engine{
		be:       be,
		notifier: reconcile.Discard,
		mirror:   mirror.New(),
		rows:     rowstate.New(),
		meta:     meta.New(),
		sel:      selection.NewManager(),
		book:     recipe.NewBook(nil),
		view:     models.DefaultViewState(),
		queue:    reconcile.NewQueue(),
		changed:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rec = reconcile.New(e.mirror, e.rows, e.meta, e.sel,
		reconcile.WithNotifier(reconcile.NotifierFunc(e.relay)),
		reconcile.WithMetrics(e.metrics))
	return e
}

// relay forwards reconciler notifications unless the engine is applying
// one of its own confirmed writes. Called with e.mu held.
func (e *Engine) relay(n reconcile.Notification) {
	if e.quiet {
		return
	}
	e.notifier.Notify(n)
}

// Start restores persisted state, subscribes to backend changes and
// fetches the full data set. Events that arrive during the fetch are
// queued and applied by Run or Sync.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.restore(); err != nil {
		return err
	}
	unsub, err := e.be.Subscribe(ctx, e.queue.Push)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	e.unsubscribe = unsub
	return e.Refresh(ctx)
}

// Refresh replaces the mirror with a fresh fetch and retires state whose
// item no longer exists.
func (e *Engine) Refresh(ctx context.Context) error {
	ds, err := timed(e, backend.OpFetchAll, func() (models.Dataset, error) {
		return e.be.FetchAll(ctx)
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	retired := e.rec.Reload(ds)
	e.dirty = true
	e.mu.Unlock()
	if retired > 0 {
		slog.Debug("engine: refresh retired keys", "count", retired)
	}
	e.signal()
	return nil
}

func (e *Engine) restore() error {
	if e.local == nil {
		return nil
	}
	st, err := e.local.Load()
	if err != nil {
		return fmt.Errorf("load device state: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows.Import(st.Rows)
	e.sel.Set(st.Daily)
	e.book = recipe.NewBook(st.Recipes)
	e.compact = st.Compact
	e.setViewLocked(st.View)
	if len(st.Mirror.Dishes) > 0 {
		e.rec.Reload(st.Mirror)
	}
	return nil
}

// setViewLocked installs a persisted or imported view. An invalid where
// expression is dropped rather than failing the load.
func (e *Engine) setViewLocked(v models.ViewState) {
	v = v.Normalize()
	p, err := view.Compile(v.Where)
	if err != nil {
		slog.Warn("engine: dropping invalid where expression", "where", v.Where, "err", err)
		v.Where = ""
		p = nil
	}
	e.view = v
	e.where = p
}

// Run applies queued change events until ctx is done or the engine is
// closed. It is the queue's only consumer.
func (e *Engine) Run(ctx context.Context) error {
	for {
		ev, err := e.queue.Next(ctx)
		if errors.Is(err, reconcile.ErrQueueClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		e.apply(ev)
	}
}

// Sync applies every event queued so far without waiting for more and
// returns how many were applied.
func (e *Engine) Sync() int {
	n := 0
	for e.queue.Len() > 0 {
		ev, err := e.queue.Next(context.Background())
		if err != nil {
			break
		}
		e.apply(ev)
		n++
	}
	return n
}

func (e *Engine) apply(ev models.ChangeEvent) {
	e.mu.Lock()
	if e.inflight > 0 {
		if id := eventRowID(ev); id != "" {
			e.touched[id]++
		}
	}
	out, err := e.rec.Apply(ev)
	if out == reconcile.Applied {
		e.dirty = true
	}
	e.mu.Unlock()
	e.metrics.SetQueueDepth(e.queue.Len())

	if err != nil {
		slog.Warn("engine: rejected change event", "table", ev.Table, "type", ev.Type, "seq", ev.Seq, "err", err)
		return
	}
	slog.Debug("engine: event applied", "table", ev.Table, "type", ev.Type, "seq", ev.Seq, "outcome", out)
	if out == reconcile.Applied {
		e.signal()
	}
}

// writeMark is taken before a remote write. It records how many queued
// events had touched the row when the write began.
type writeMark struct {
	id   string
	seen int
}

// beginWrite registers a remote write on row id. Inserts pass "".
func (e *Engine) beginWrite(id string) writeMark {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight == 0 {
		e.touched = make(map[string]int)
	}
	e.inflight++
	m := writeMark{id: id}
	if id != "" {
		m.seen = e.touched[id]
	}
	return m
}

// endWrite finishes a write. A non-nil ev is the row the backend confirmed;
// it is merged unless the queue applied an event for the same row while
// the call ran, since that event is at least as new. Deletes always apply.
// The write's own echo arrives later and is then a no-op.
func (e *Engine) endWrite(m writeMark, ev *models.ChangeEvent) {
	e.mu.Lock()
	e.inflight--
	var (
		err     error
		applied bool
	)
	if ev != nil {
		id := eventRowID(*ev)
		if m.id == "" {
			m.id = id
		}
		if ev.Type == models.EventDelete || e.touched[m.id] == m.seen {
			e.quiet = true
			_, err = e.rec.Apply(*ev)
			e.quiet = false
			e.dirty = true
			applied = true
		} else {
			slog.Debug("engine: confirmed row superseded by a queued event", "table", ev.Table, "id", id)
		}
	}
	if e.inflight == 0 {
		e.touched = nil
	}
	e.mu.Unlock()
	if err != nil {
		slog.Warn("engine: could not apply confirmed write", "table", ev.Table, "type", ev.Type, "err", err)
	}
	if applied {
		e.signal()
	}
}

// eventRowID is the id of the dish or item an event is about.
func eventRowID(ev models.ChangeEvent) string {
	switch {
	case ev.Item != nil:
		return ev.Item.ID
	case ev.OldItem != nil:
		return ev.OldItem.ID
	case ev.Dish != nil:
		return ev.Dish.ID
	case ev.OldDish != nil:
		return ev.OldDish.ID
	}
	return ""
}

// Changed returns a channel that receives after any change to what
// Project would return. Signals are coalesced.
func (e *Engine) Changed() <-chan struct{} {
	return e.changed
}

func (e *Engine) signal() {
	select {
	case e.changed <- struct{}{}:
	default:
	}
}

// Save persists device state if anything changed since the last save.
func (e *Engine) Save() error {
	if e.local == nil {
		return nil
	}
	e.mu.Lock()
	if !e.dirty {
		e.mu.Unlock()
		return nil
	}
	st := localstate.State{
		Compact: e.compact,
		View:    e.view,
		Rows:    e.rows.Export(),
		Daily:   e.sel.Current(),
		Recipes: e.book.User(),
		Mirror:  e.mirror.Rows(),
	}
	e.dirty = false
	e.mu.Unlock()

	if err := e.local.Save(st); err != nil {
		e.mu.Lock()
		e.dirty = true
		e.mu.Unlock()
		return fmt.Errorf("save device state: %w", err)
	}
	return nil
}

// Close stops the subscription and the queue, then saves device state.
// The backend and local store are left open for their owner to close.
func (e *Engine) Close() error {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	e.queue.Close()
	return e.Save()
}

// Project computes the current checklist.
func (e *Engine) Project() []view.DishView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return view.Project(view.Input{
		Dishes:    e.mirror.Snapshot(),
		View:      e.view,
		Selection: e.sel.Current(),
		Rows:      e.rows,
		Recipes:   e.book,
		Where:     e.where,
	})
}

// Dishes returns a copy of the mirror.
func (e *Engine) Dishes() []models.Dish {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mirror.Snapshot()
}

// timed runs one remote call and records it.
func timed[T any](e *Engine, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	e.metrics.RecordRemoteCall(op, err, time.Since(start))
	if err != nil {
		slog.Debug("engine: remote call failed", "op", op, "err", err)
	}
	return v, err
}
