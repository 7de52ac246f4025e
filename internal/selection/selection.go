// Package selection manages the daily list: the subset of item keys a
// device is responsible for today.
package selection

import (
	"log/slog"
	"sort"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/rowkey"
)

// Build returns an enabled selection of exactly keys.
func Build(keys []string) models.Selection {
	sel := models.Selection{Enabled: true, Keys: make(map[string]bool, len(keys))}
	for _, k := range keys {
		sel.Keys[k] = true
	}
	return sel
}

// Clear returns the disabled, empty selection.
func Clear() models.Selection {
	return models.Selection{Enabled: false, Keys: map[string]bool{}}
}

// Manager owns the current selection and keeps it in step with item churn.
type Manager struct {
	sel models.Selection
}

// NewManager starts with a cleared selection.
func NewManager() *Manager {
	return &Manager{sel: Clear()}
}

// Current returns a copy of the selection.
func (m *Manager) Current() models.Selection {
	out := models.Selection{Enabled: m.sel.Enabled, Keys: make(map[string]bool, len(m.sel.Keys))}
	for k := range m.sel.Keys {
		out.Keys[k] = true
	}
	return out
}

// Set replaces the selection.
func (m *Manager) Set(sel models.Selection) {
	keys := make(map[string]bool, len(sel.Keys))
	for k, v := range sel.Keys {
		if v {
			keys[k] = true
		}
	}
	m.sel = models.Selection{Enabled: sel.Enabled, Keys: keys}
}

// Enabled reports whether a daily list has been picked.
func (m *Manager) Enabled() bool {
	return m.sel.Enabled
}

// Contains reports whether key is on the daily list.
func (m *Manager) Contains(key string) bool {
	return m.sel.Keys[key]
}

// Remove drops key from the list.
func (m *Manager) Remove(key string) bool {
	if !m.sel.Keys[key] {
		return false
	}
	delete(m.sel.Keys, key)
	return true
}

// Rekey moves membership from oldKey to newKey.
func (m *Manager) Rekey(oldKey, newKey string) {
	if oldKey == newKey || !m.sel.Keys[oldKey] {
		return
	}
	delete(m.sel.Keys, oldKey)
	m.sel.Keys[newKey] = true
}

// DeleteAllForDish drops every key belonging to dishID.
func (m *Manager) DeleteAllForDish(dishID string) int {
	n := 0
	for key := range m.sel.Keys {
		d, err := rowkey.DishID(key)
		if err != nil {
			slog.Warn("selection: skipping unparseable key", "key", key, "err", err)
			continue
		}
		if d == dishID {
			delete(m.sel.Keys, key)
			n++
		}
	}
	return n
}

// Keys returns the selected keys, sorted.
func (m *Manager) Keys() []string {
	keys := make([]string, 0, len(m.sel.Keys))
	for k := range m.sel.Keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
