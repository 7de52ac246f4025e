// Package meta keeps backend-sourced facts about each item (its remote id
// and recipe text) under the item's composite key.
package meta

import (
	"log/slog"
	"sort"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/rowkey"
)

// Store maps composite keys to MemberMeta.
type Store struct {
	entries map[string]models.MemberMeta
}

// New returns an empty store.
func New() *Store {
	return &Store{entries: make(map[string]models.MemberMeta)}
}

// Get returns the meta for key.
func (s *Store) Get(key string) (models.MemberMeta, bool) {
	m, ok := s.entries[key]
	if ok {
		m.Recipe = models.CloneString(m.Recipe)
	}
	return m, ok
}

// Put stores meta for key, reporting whether the recipe changed.
func (s *Store) Put(key string, m models.MemberMeta) bool {
	prev, ok := s.entries[key]
	s.entries[key] = models.MemberMeta{RemoteID: m.RemoteID, Recipe: models.CloneString(m.Recipe)}
	return !ok || !models.EqualString(prev.Recipe, m.Recipe)
}

// Recipe returns the backend recipe for key, if any.
func (s *Store) Recipe(key string) *string {
	return models.CloneString(s.entries[key].Recipe)
}

// Delete removes the entry for key.
func (s *Store) Delete(key string) {
	delete(s.entries, key)
}

// Rekey moves the entry stored under oldKey to newKey.
func (s *Store) Rekey(oldKey, newKey string) {
	if oldKey == newKey {
		return
	}
	m, ok := s.entries[oldKey]
	if !ok {
		return
	}
	delete(s.entries, oldKey)
	s.entries[newKey] = m
}

// DeleteAllForDish removes every entry whose key decodes to dishID.
func (s *Store) DeleteAllForDish(dishID string) int {
	n := 0
	for key := range s.entries {
		d, err := rowkey.DishID(key)
		if err != nil {
			slog.Warn("meta: skipping unparseable key", "key", key, "err", err)
			continue
		}
		if d == dishID {
			delete(s.entries, key)
			n++
		}
	}
	return n
}

// Reset replaces every entry, typically after a bulk fetch.
func (s *Store) Reset(items []models.ItemRow) {
	s.entries = make(map[string]models.MemberMeta, len(items))
	for _, it := range items {
		key, err := rowkey.Encode(it.DishID, it.ID)
		if err != nil {
			slog.Warn("meta: skipping item", "item", it.ID, "err", err)
			continue
		}
		s.entries[key] = models.MemberMeta{RemoteID: it.ID, Recipe: models.CloneString(it.Recipe)}
	}
}

// Keys returns all stored keys, sorted.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}
