package engine

import (
	"log/slog"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/recipe"
	"github.com/marcus/prep/internal/snapshot"
)

// Export captures the mirror and all device-local state as one document.
func (e *Engine) Export() snapshot.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot.New(e.mirror.Snapshot(), e.rows.Export(), e.view, e.sel.Current(), e.book.User(), e.compact)
}

// Import replaces device-local state with a decoded document. Legacy
// name-keyed state is migrated against the mirror; keys that match no
// current item are dropped and counted in the report. The document's
// dishes are informational and never touch the mirror.
func (e *Engine) Import(doc snapshot.Document, rep snapshot.Report) snapshot.Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, rep = snapshot.Migrate(doc, rep, e.mirror.Snapshot())
	e.rows.Import(doc.Rows())
	e.sel.Set(doc.DailySel)
	e.book = recipe.NewBook(doc.UserRecipes)
	e.compact = doc.Compact
	e.setViewLocked(doc.View)
	if e.view.Filter == models.FilterDish && !e.mirror.HasDish(e.view.DishID) {
		slog.Warn("engine: imported view names an unknown dish, showing all", "dish", e.view.DishID)
		e.view.Filter = models.FilterAll
		e.view.DishID = ""
	}

	retired := e.rec.Reload(e.mirror.Rows())
	rep.Dropped += retired
	if len(rep.Defaulted) > 0 {
		slog.Info("engine: import used defaults", "fields", rep.Defaulted)
	}
	e.touchLocked()
	return rep
}
