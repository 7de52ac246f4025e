// Package snapshot reads and writes the single-file export of a device's
// checklist: the dishes it saw plus every piece of device-local state.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/rowstate"
)

// Version is written into every export. Documents without a version are
// told apart by the shape of their dishes; name-keyed ones are migrated on
// import.
const Version = 2

// Cell key suffixes.
const (
	suffixOn   = "|on"
	suffixPrep = "|prep"
)

// Document is the export file.
type Document struct {
	Version     int               `json:"version"`
	Dishes      []models.Dish     `json:"dishes"`
	Cells       map[string]bool   `json:"cells"`
	RowHi       map[string]bool   `json:"rowHi"`
	Notes       map[string]string `json:"notes"`
	View        models.ViewState  `json:"view"`
	DailySel    models.Selection  `json:"dailySel"`
	UserRecipes map[string]string `json:"userRecipes"`
	Compact     bool              `json:"compact"`
}

// Report says what Decode and Migrate had to repair.
type Report struct {
	Legacy    bool
	Defaulted []string // top-level fields that were missing or malformed
	Migrated  int      // legacy keys mapped to id keys
	Dropped   int      // legacy keys with no matching item
}

// New builds a document from device state.
func New(dishes []models.Dish, rows rowstate.Snapshot, view models.ViewState, daily models.Selection, recipes map[string]string, compact bool) Document {
	doc := empty()
	if dishes != nil {
		doc.Dishes = dishes
	}
	for k, v := range rows.OnHand {
		if v {
			doc.Cells[k+suffixOn] = true
		}
	}
	for k, v := range rows.Prep {
		if v {
			doc.Cells[k+suffixPrep] = true
		}
	}
	for k, v := range rows.Highlight {
		if v {
			doc.RowHi[k] = true
		}
	}
	for k, v := range rows.Notes {
		if v != "" {
			doc.Notes[k] = v
		}
	}
	doc.View = view
	doc.DailySel = daily
	if doc.DailySel.Keys == nil {
		doc.DailySel.Keys = map[string]bool{}
	}
	for k, v := range recipes {
		doc.UserRecipes[k] = v
	}
	doc.Compact = compact
	return doc
}

func empty() Document {
	return Document{
		Version:     Version,
		Dishes:      []models.Dish{},
		Cells:       map[string]bool{},
		RowHi:       map[string]bool{},
		Notes:       map[string]string{},
		View:        models.DefaultViewState(),
		DailySel:    models.Selection{Keys: map[string]bool{}},
		UserRecipes: map[string]string{},
	}
}

// Rows converts the cell, highlight and note maps back into row state.
func (d Document) Rows() rowstate.Snapshot {
	snap := rowstate.Snapshot{
		OnHand:    map[string]bool{},
		Prep:      map[string]bool{},
		Highlight: map[string]bool{},
		Notes:     map[string]string{},
	}
	for k, v := range d.Cells {
		if !v {
			continue
		}
		if key, ok := strings.CutSuffix(k, suffixOn); ok {
			snap.OnHand[key] = true
		} else if key, ok := strings.CutSuffix(k, suffixPrep); ok {
			snap.Prep[key] = true
		} else {
			slog.Debug("snapshot: ignoring cell without state suffix", "key", k)
		}
	}
	for k, v := range d.RowHi {
		if v {
			snap.Highlight[k] = true
		}
	}
	for k, v := range d.Notes {
		if v != "" {
			snap.Notes[k] = v
		}
	}
	return snap
}

// Marshal encodes the document as indented JSON.
func Marshal(d Document) ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses an export. Each top-level field is decoded on its own;
// a missing or malformed field takes its default and is listed in the
// report. Only a document that is not a JSON object is an error.
func Decode(data []byte) (Document, Report, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Document{}, Report{}, fmt.Errorf("decode snapshot: %w", err)
	}

	def := empty()
	var rep Report
	var version int
	raw, ok := fields["version"]
	if ok {
		if err := json.Unmarshal(raw, &version); err != nil {
			slog.Warn("snapshot: malformed version", "err", err)
			ok = false
		}
	}
	if ok {
		rep.Legacy = version < Version
	} else {
		rep.Legacy = legacyShape(fields["dishes"])
	}

	doc := Document{Version: Version}
	if rep.Legacy {
		doc.Dishes = legacyDishes(field(fields, "dishes", []legacyDish{}, &rep))
	} else {
		doc.Dishes = field(fields, "dishes", def.Dishes, &rep)
	}
	doc.Cells = field(fields, "cells", def.Cells, &rep)
	doc.RowHi = field(fields, "rowHi", def.RowHi, &rep)
	doc.Notes = field(fields, "notes", def.Notes, &rep)
	doc.View = field(fields, "view", def.View, &rep)
	doc.DailySel = field(fields, "dailySel", def.DailySel, &rep)
	doc.UserRecipes = field(fields, "userRecipes", def.UserRecipes, &rep)
	doc.Compact = field(fields, "compact", def.Compact, &rep)

	doc.View = doc.View.Normalize()
	if doc.Dishes == nil {
		doc.Dishes = []models.Dish{}
	}
	if doc.Cells == nil {
		doc.Cells = map[string]bool{}
	}
	if doc.RowHi == nil {
		doc.RowHi = map[string]bool{}
	}
	if doc.Notes == nil {
		doc.Notes = map[string]string{}
	}
	if doc.DailySel.Keys == nil {
		doc.DailySel.Keys = map[string]bool{}
	}
	if doc.UserRecipes == nil {
		doc.UserRecipes = map[string]string{}
	}
	return doc, rep, nil
}

// field decodes one top-level field, returning def when it is missing,
// null or malformed.
func field[T any](fields map[string]json.RawMessage, name string, def T, rep *Report) T {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		rep.Defaulted = append(rep.Defaulted, name)
		return def
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("snapshot: malformed field, using default", "field", name, "err", err)
		rep.Defaulted = append(rep.Defaulted, name)
		return def
	}
	return v
}
