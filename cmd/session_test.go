package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/prep/internal/config"
	"github.com/marcus/prep/internal/rowstate"
	"github.com/marcus/prep/pkg/monitor/keymap"
)

// useProject points the commands at a fresh project directory.
func useProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old := baseDir
	baseDir = dir
	t.Cleanup(func() { baseDir = old })
	t.Setenv(config.EnvBackend, "")
	t.Setenv(config.EnvDSN, "")
	t.Setenv(config.EnvURL, "")
	return dir
}

func TestSessionKeepsDeviceStateAcrossRuns(t *testing.T) {
	useProject(t)
	ctx := context.Background()

	s, err := openSession(ctx)
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	d, err := s.AddDish(ctx, "Soup")
	if err != nil {
		t.Fatalf("AddDish: %v", err)
	}
	if _, err := s.AddItem(ctx, d.ID, "Stock"); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	key, name, err := resolveItem(s, []string{"soup", "stock"})
	if err != nil {
		t.Fatalf("resolveItem: %v", err)
	}
	if name != "Stock" {
		t.Errorf("name = %q, want Stock", name)
	}
	if on, err := s.Toggle(key, rowstate.AttrOnHand); err != nil || !on {
		t.Fatalf("Toggle = %v, %v", on, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = openSession(ctx)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if !s.State(key).OnHand {
		t.Error("on hand state lost between sessions")
	}
	if got := len(s.Dishes()); got != 1 {
		t.Errorf("dishes = %d, want 1", got)
	}
}

func TestResolveItemArgs(t *testing.T) {
	useProject(t)
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer s.Close()

	d, _ := s.AddDish(ctx, "Salad")
	it, err := s.AddItem(ctx, d.ID, "Lettuce")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	key, _, err := resolveItem(s, []string{it.ID})
	if err != nil {
		t.Fatalf("resolveItem by id: %v", err)
	}
	byName, _, err := resolveItem(s, []string{"Salad", "lettuce"})
	if err != nil {
		t.Fatalf("resolveItem by name: %v", err)
	}
	if key != byName {
		t.Errorf("keys differ: %q vs %q", key, byName)
	}

	if _, _, err := resolveItem(s, []string{"a", "b", "c"}); err == nil {
		t.Error("expected error for three arguments")
	}
	if _, _, err := resolveItem(s, []string{"Salad", "Tomato"}); err == nil {
		t.Error("expected error for unknown item")
	}
}

func TestLoadKeymapOverrides(t *testing.T) {
	dir := t.TempDir()
	path := keymap.ConfigPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"bindings": {"main:ctrl+o": "toggle-on-hand"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	keys, err := loadKeymap(dir)
	if err != nil {
		t.Fatalf("loadKeymap: %v", err)
	}
	cmd, ok := keys.Lookup(tea.KeyMsg{Type: tea.KeyCtrlO}, keymap.ContextMain)
	if !ok || cmd != keymap.CmdToggleOnHand {
		t.Errorf("ctrl+o = %q, %v; want %q", cmd, ok, keymap.CmdToggleOnHand)
	}
	// Defaults remain.
	cmd, ok = keys.Lookup(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}}, keymap.ContextMain)
	if !ok || cmd != keymap.CmdTogglePrep {
		t.Errorf("p = %q, %v; want %q", cmd, ok, keymap.CmdTogglePrep)
	}
}

func TestLoadKeymapMalformed(t *testing.T) {
	dir := t.TempDir()
	path := keymap.ConfigPath(dir)
	os.MkdirAll(filepath.Dir(path), 0755)
	os.WriteFile(path, []byte("{not json"), 0644)

	if _, err := loadKeymap(dir); err == nil {
		t.Error("expected error for malformed keymap")
	}
}
