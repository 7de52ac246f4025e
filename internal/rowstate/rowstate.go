// Package rowstate stores the device-local state of checklist rows:
// on-hand and prep toggles, the highlight star, and free-text notes.
package rowstate

import (
	"log/slog"
	"sort"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/rowkey"
)

// Attr names one boolean attribute family.
type Attr string

const (
	AttrOnHand    Attr = "on"
	AttrPrep      Attr = "prep"
	AttrHighlight Attr = "highlight"
)

// Store holds one map per attribute family, all keyed by composite key.
type Store struct {
	onHand    map[string]bool
	prep      map[string]bool
	highlight map[string]bool
	notes     map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		onHand:    make(map[string]bool),
		prep:      make(map[string]bool),
		highlight: make(map[string]bool),
		notes:     make(map[string]string),
	}
}

func (s *Store) flags(a Attr) map[string]bool {
	switch a {
	case AttrOnHand:
		return s.onHand
	case AttrPrep:
		return s.prep
	case AttrHighlight:
		return s.highlight
	}
	panic("rowstate: unknown attribute " + string(a))
}

// Get returns one boolean attribute.
func (s *Store) Get(key string, a Attr) bool {
	return s.flags(a)[key]
}

// Set writes one boolean attribute. False values are not stored.
func (s *Store) Set(key string, a Attr, v bool) {
	m := s.flags(a)
	if v {
		m[key] = true
	} else {
		delete(m, key)
	}
}

// Toggle flips one boolean attribute and returns the new value.
func (s *Store) Toggle(key string, a Attr) bool {
	v := !s.Get(key, a)
	s.Set(key, a, v)
	return v
}

// Cycle steps the ternary cell none -> on hand -> prep -> none.
func (s *Store) Cycle(key string) models.Toggle {
	next := models.ToggleNone
	switch s.State(key).Toggle() {
	case models.ToggleNone:
		next = models.ToggleOnHand
	case models.ToggleOnHand:
		next = models.TogglePrep
	}
	s.Set(key, AttrOnHand, next == models.ToggleOnHand)
	s.Set(key, AttrPrep, next == models.TogglePrep)
	return next
}

// Note returns the note for key.
func (s *Store) Note(key string) string {
	return s.notes[key]
}

// SetNote writes a note. An empty note removes the entry.
func (s *Store) SetNote(key, note string) {
	if note == "" {
		delete(s.notes, key)
		return
	}
	s.notes[key] = note
}

// State gathers every attribute for key.
func (s *Store) State(key string) models.RowState {
	return models.RowState{
		OnHand:      s.onHand[key],
		Prep:        s.prep[key],
		Highlighted: s.highlight[key],
		Note:        s.notes[key],
	}
}

// Highlighted reports the star for key.
func (s *Store) Highlighted(key string) bool {
	return s.highlight[key]
}

// Delete removes every attribute stored under key.
func (s *Store) Delete(key string) {
	delete(s.onHand, key)
	delete(s.prep, key)
	delete(s.highlight, key)
	delete(s.notes, key)
}

// Rekey moves all state from oldKey to newKey. State already stored under
// newKey is replaced.
func (s *Store) Rekey(oldKey, newKey string) {
	if oldKey == newKey {
		return
	}
	st := s.State(oldKey)
	s.Delete(oldKey)
	s.Delete(newKey)
	s.Set(newKey, AttrOnHand, st.OnHand)
	s.Set(newKey, AttrPrep, st.Prep)
	s.Set(newKey, AttrHighlight, st.Highlighted)
	s.SetNote(newKey, st.Note)
}

// DeleteAllForDish removes every key whose decoded dish id matches.
// Keys that fail to decode are logged and kept.
func (s *Store) DeleteAllForDish(dishID string) int {
	n := 0
	for _, key := range s.Keys() {
		d, err := rowkey.DishID(key)
		if err != nil {
			slog.Warn("rowstate: skipping unparseable key", "key", key, "err", err)
			continue
		}
		if d == dishID {
			s.Delete(key)
			n++
		}
	}
	return n
}

// Keys returns every key with any stored attribute, sorted.
func (s *Store) Keys() []string {
	seen := make(map[string]struct{})
	for _, m := range []map[string]bool{s.onHand, s.prep, s.highlight} {
		for k := range m {
			seen[k] = struct{}{}
		}
	}
	for k := range s.notes {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot is the persisted form of the store.
type Snapshot struct {
	OnHand    map[string]bool   `json:"on"`
	Prep      map[string]bool   `json:"prep"`
	Highlight map[string]bool   `json:"highlight"`
	Notes     map[string]string `json:"notes"`
}

// Export copies the store into a Snapshot.
func (s *Store) Export() Snapshot {
	return Snapshot{
		OnHand:    copyBools(s.onHand),
		Prep:      copyBools(s.prep),
		Highlight: copyBools(s.highlight),
		Notes:     copyStrings(s.notes),
	}
}

// Import replaces the store content with snap.
func (s *Store) Import(snap Snapshot) {
	s.onHand = trueOnly(snap.OnHand)
	s.prep = trueOnly(snap.Prep)
	s.highlight = trueOnly(snap.Highlight)
	s.notes = make(map[string]string, len(snap.Notes))
	for k, v := range snap.Notes {
		if v != "" {
			s.notes[k] = v
		}
	}
}

func copyBools(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func trueOnly(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		if v {
			out[k] = true
		}
	}
	return out
}
